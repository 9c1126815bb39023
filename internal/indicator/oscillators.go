package indicator

import (
	"math"

	"chartdesk/internal/model"
)

// RSI calculates the Relative Strength Index from simple averages of the
// gains and losses over the trailing period close-to-close differences.
// The averages are not Wilder-smoothed: each point looks at its own window.
//
// Edge policy: when avgLoss is 0 the window had no down moves and the value
// is pinned to 100 instead of dividing by zero.
func RSI(period int) Func {
	return func(candles []model.Candle) []Line {
		if period <= 0 || len(candles) <= period {
			return nil
		}
		cl := closes(candles)
		vals := make([]float64, 0, len(cl)-period)
		for i := period; i < len(cl); i++ {
			gain, loss := 0.0, 0.0
			for k := i - period + 1; k <= i; k++ {
				delta := cl[k] - cl[k-1]
				if delta > 0 {
					gain += delta
				} else {
					loss -= delta
				}
			}
			avgGain := gain / float64(period)
			avgLoss := loss / float64(period)
			if avgLoss == 0 {
				vals = append(vals, 100.0)
				continue
			}
			rs := avgGain / avgLoss
			vals = append(vals, 100.0-(100.0/(1.0+rs)))
		}
		return single("rsi", align(candles, period, vals))
	}
}

// MACD computes EMA(fast) − EMA(slow), a signal EMA of that line and the
// histogram between the two. The MACD line starts where the slow EMA starts;
// signal and histogram start signalPeriod-1 points later.
func MACD(fast, slow, signalPeriod int) Func {
	return func(candles []model.Candle) []Line {
		cl := closes(candles)
		emaFast := emaValues(cl, fast)
		emaSlow := emaValues(cl, slow)
		if emaFast == nil || emaSlow == nil {
			return nil
		}

		// emaFast starts at fast-1, emaSlow at slow-1; line up on the later one.
		shift := slow - fast
		macd := make([]float64, len(emaSlow))
		for i := range emaSlow {
			macd[i] = emaFast[i+shift] - emaSlow[i]
		}

		lines := []Line{{Key: "macd", Points: align(candles, slow-1, macd)}}

		signal := emaValues(macd, signalPeriod)
		sigOffset := slow - 1 + signalPeriod - 1
		hist := make([]model.Point, len(signal))
		for i, s := range signal {
			h := macd[i+signalPeriod-1] - s
			hist[i] = model.Point{
				Time:  candles[sigOffset+i].Time,
				Value: h,
				Color: model.ColorFor(h >= 0),
			}
		}
		lines = append(lines,
			Line{Key: "signal", Points: align(candles, sigOffset, signal)},
			Line{Key: "histogram", Points: hist},
		)
		return lines
	}
}

// Stochastic computes the %K line:
// (close − lowestLow) / (highestHigh − lowestLow) × 100 over period candles.
// A flat window (highestHigh == lowestLow) yields 0.
func Stochastic(period int) Func {
	return func(candles []model.Candle) []Line {
		if period <= 0 || len(candles) < period {
			return nil
		}
		vals := make([]float64, 0, len(candles)-period+1)
		for i := period - 1; i < len(candles); i++ {
			win := candles[i-period+1 : i+1]
			hh, ll := highestHigh(win), lowestLow(win)
			if hh == ll {
				vals = append(vals, 0)
				continue
			}
			vals = append(vals, (candles[i].Close-ll)/(hh-ll)*100)
		}
		return single("k", align(candles, period-1, vals))
	}
}

// WilliamsR computes (highestHigh − close) / (highestHigh − lowestLow) × −100.
// A flat window yields 0.
func WilliamsR(period int) Func {
	return func(candles []model.Candle) []Line {
		if period <= 0 || len(candles) < period {
			return nil
		}
		vals := make([]float64, 0, len(candles)-period+1)
		for i := period - 1; i < len(candles); i++ {
			win := candles[i-period+1 : i+1]
			hh, ll := highestHigh(win), lowestLow(win)
			if hh == ll {
				vals = append(vals, 0)
				continue
			}
			vals = append(vals, (hh-candles[i].Close)/(hh-ll)*-100)
		}
		return single("r", align(candles, period-1, vals))
	}
}

// CCI computes the Commodity Channel Index on typical price:
// (tp − SMA(tp)) / (0.015 × mean absolute deviation). Zero deviation yields 0.
func CCI(period int) Func {
	return func(candles []model.Candle) []Line {
		if period <= 0 || len(candles) < period {
			return nil
		}
		tp := make([]float64, len(candles))
		for i, c := range candles {
			tp[i] = c.TypicalPrice()
		}
		means := smaValues(tp, period)
		vals := make([]float64, len(means))
		for j, mean := range means {
			i := j + period - 1
			dev := 0.0
			for _, v := range tp[i-period+1 : i+1] {
				dev += math.Abs(v - mean)
			}
			mad := dev / float64(period)
			if mad == 0 {
				continue // stays 0
			}
			vals[j] = (tp[i] - mean) / (0.015 * mad)
		}
		return single("cci", align(candles, period-1, vals))
	}
}

// ROC computes the rate of change of close over period candles, in percent.
// A zero base close yields 0.
func ROC(period int) Func {
	return func(candles []model.Candle) []Line {
		if period <= 0 || len(candles) <= period {
			return nil
		}
		vals := make([]float64, 0, len(candles)-period)
		for i := period; i < len(candles); i++ {
			base := candles[i-period].Close
			if base == 0 {
				vals = append(vals, 0)
				continue
			}
			vals = append(vals, (candles[i].Close-base)/base*100)
		}
		return single("roc", align(candles, period, vals))
	}
}
