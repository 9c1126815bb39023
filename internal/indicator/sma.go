package indicator

import "chartdesk/internal/model"

// smaValues returns the trailing-window arithmetic mean of vals.
// The first value corresponds to vals[period-1]; the result has
// len(vals)-period+1 entries, or none when vals is too short.
func smaValues(vals []float64, period int) []float64 {
	if period <= 0 || len(vals) < period {
		return nil
	}
	out := make([]float64, 0, len(vals)-period+1)
	sum := 0.0
	for i, v := range vals {
		sum += v
		if i >= period {
			// Drop the value leaving the window
			sum -= vals[i-period]
		}
		if i >= period-1 {
			out = append(out, sum/float64(period))
		}
	}
	return out
}

// SMA returns a Simple Moving Average of close over the trailing period candles.
func SMA(period int) Func {
	return func(candles []model.Candle) []Line {
		vals := smaValues(closes(candles), period)
		if vals == nil {
			return nil
		}
		return single("sma", align(candles, period-1, vals))
	}
}
