package indicator

import (
	"math"

	"chartdesk/internal/model"
)

// Bollinger computes SMA(period) ± k·stddev(close, period).
// Variance is the population variance (divide by period, not period-1).
func Bollinger(period int, k float64) Func {
	return func(candles []model.Candle) []Line {
		cl := closes(candles)
		means := smaValues(cl, period)
		if means == nil {
			return nil
		}
		upper := make([]float64, len(means))
		lower := make([]float64, len(means))
		for j, mean := range means {
			i := j + period - 1
			variance := 0.0
			for _, v := range cl[i-period+1 : i+1] {
				d := v - mean
				variance += d * d
			}
			sd := math.Sqrt(variance / float64(period))
			upper[j] = mean + k*sd
			lower[j] = mean - k*sd
		}
		offset := period - 1
		return []Line{
			{Key: "upper", Points: align(candles, offset, upper)},
			{Key: "middle", Points: align(candles, offset, means)},
			{Key: "lower", Points: align(candles, offset, lower)},
		}
	}
}

// trueRanges returns max(h−l, |h−prevClose|, |l−prevClose|) for candles[1:].
func trueRanges(candles []model.Candle) []float64 {
	if len(candles) < 2 {
		return nil
	}
	out := make([]float64, len(candles)-1)
	for i := 1; i < len(candles); i++ {
		c, pc := candles[i], candles[i-1].Close
		out[i-1] = math.Max(c.High-c.Low, math.Max(math.Abs(c.High-pc), math.Abs(c.Low-pc)))
	}
	return out
}

// ATR computes the Average True Range as a simple rolling mean of period true
// ranges. The first true range needs a previous close, so the first point is
// at candle index period.
func ATR(period int) Func {
	return func(candles []model.Candle) []Line {
		vals := smaValues(trueRanges(candles), period)
		if vals == nil {
			return nil
		}
		return single("atr", align(candles, period, vals))
	}
}

// ParabolicSAR implements Wilder's stop-and-reverse with acceleration step
// and cap. The initial trend comes from the first two closes. Points start at
// candle index 1 and are tagged up while the trend is long.
func ParabolicSAR(step, maxAF float64) Func {
	return func(candles []model.Candle) []Line {
		if len(candles) < 2 {
			return nil
		}
		up := candles[1].Close >= candles[0].Close
		af := step
		var sar, ep float64
		if up {
			sar, ep = candles[0].Low, candles[0].High
		} else {
			sar, ep = candles[0].High, candles[0].Low
		}

		pts := make([]model.Point, 0, len(candles)-1)
		for i := 1; i < len(candles); i++ {
			c := candles[i]
			sar += af * (ep - sar)

			if up {
				// SAR may not move into the prior two bars' range
				sar = math.Min(sar, candles[i-1].Low)
				if i >= 2 {
					sar = math.Min(sar, candles[i-2].Low)
				}
				if c.Low < sar {
					up = false
					sar, ep, af = ep, c.Low, step
				} else if c.High > ep {
					ep = c.High
					af = math.Min(af+step, maxAF)
				}
			} else {
				sar = math.Max(sar, candles[i-1].High)
				if i >= 2 {
					sar = math.Max(sar, candles[i-2].High)
				}
				if c.High > sar {
					up = true
					sar, ep, af = ep, c.High, step
				} else if c.Low < ep {
					ep = c.Low
					af = math.Min(af+step, maxAF)
				}
			}
			pts = append(pts, model.Point{Time: c.Time, Value: sar, Color: model.ColorFor(up)})
		}
		return single("sar", pts)
	}
}
