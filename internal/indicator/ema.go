package indicator

import "chartdesk/internal/model"

// emaValues returns an Exponential Moving Average of vals.
// The seed is the SMA of the first period values; after that
// ema = ema + (v - ema) * 2/(period+1). The first value corresponds to
// vals[period-1].
func emaValues(vals []float64, period int) []float64 {
	if period <= 0 || len(vals) < period {
		return nil
	}
	multiplier := 2.0 / float64(period+1)

	seed := 0.0
	for _, v := range vals[:period] {
		seed += v
	}
	seed /= float64(period)

	out := make([]float64, 0, len(vals)-period+1)
	out = append(out, seed)
	prev := seed
	for _, v := range vals[period:] {
		prev = prev + (v-prev)*multiplier
		out = append(out, prev)
	}
	return out
}

// EMA returns an Exponential Moving Average of close.
func EMA(period int) Func {
	return func(candles []model.Candle) []Line {
		vals := emaValues(closes(candles), period)
		if vals == nil {
			return nil
		}
		return single("ema", align(candles, period-1, vals))
	}
}
