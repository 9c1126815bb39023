// Package indicator provides technical indicator calculations over candle data.
//
// Every indicator is a pure function from a candle slice to one or more output
// lines. Functions never mutate their input and never panic on short input:
// when the series is shorter than the warm-up window the result is empty.
// Output points start at the first candle that completes the warm-up window,
// so a period-n moving average yields len(candles)-n+1 points.
package indicator

import "chartdesk/internal/model"

// Line is one named output series of an indicator (e.g. "signal" for MACD).
type Line struct {
	Key    string        `json:"key"`
	Points []model.Point `json:"points"`
}

// Func computes an indicator over a full candle series.
type Func func(candles []model.Candle) []Line

// closes extracts close prices.
func closes(candles []model.Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Close
	}
	return out
}

// align attaches candle timestamps to values that start at candle index offset.
func align(candles []model.Candle, offset int, values []float64) []model.Point {
	pts := make([]model.Point, len(values))
	for i, v := range values {
		pts[i] = model.Point{Time: candles[offset+i].Time, Value: v}
	}
	return pts
}

// single wraps one point slice into a one-line result. Empty input yields nil
// so callers can test len(result) == 0 for "not enough data".
func single(key string, pts []model.Point) []Line {
	if len(pts) == 0 {
		return nil
	}
	return []Line{{Key: key, Points: pts}}
}

func highestHigh(candles []model.Candle) float64 {
	hh := candles[0].High
	for _, c := range candles[1:] {
		if c.High > hh {
			hh = c.High
		}
	}
	return hh
}

func lowestLow(candles []model.Candle) float64 {
	ll := candles[0].Low
	for _, c := range candles[1:] {
		if c.Low < ll {
			ll = c.Low
		}
	}
	return ll
}
