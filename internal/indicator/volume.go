package indicator

import "chartdesk/internal/model"

// Volume passes candle volume through, tagged up when close ≥ open.
func Volume() Func {
	return func(candles []model.Candle) []Line {
		pts := make([]model.Point, len(candles))
		for i, c := range candles {
			pts[i] = model.Point{Time: c.Time, Value: c.Volume, Color: model.ColorFor(c.Up())}
		}
		return single("volume", pts)
	}
}

// OBV computes On-Balance Volume: +volume on an up close, −volume on a down
// close, unchanged otherwise. The first candle anchors the total at 0. Points
// are tagged by the sign of the running total.
func OBV() Func {
	return func(candles []model.Candle) []Line {
		if len(candles) == 0 {
			return nil
		}
		pts := make([]model.Point, len(candles))
		total := 0.0
		pts[0] = model.Point{Time: candles[0].Time, Value: 0, Color: model.ColorUp}
		for i := 1; i < len(candles); i++ {
			switch {
			case candles[i].Close > candles[i-1].Close:
				total += candles[i].Volume
			case candles[i].Close < candles[i-1].Close:
				total -= candles[i].Volume
			}
			pts[i] = model.Point{Time: candles[i].Time, Value: total, Color: model.ColorFor(total >= 0)}
		}
		return single("obv", pts)
	}
}

// VWAP computes cumulative (typicalPrice × volume) / cumulative volume from
// the first candle of the series. It does not reset per session.
// While cumulative volume is 0 the typical price is used.
func VWAP() Func {
	return func(candles []model.Candle) []Line {
		if len(candles) == 0 {
			return nil
		}
		pts := make([]model.Point, len(candles))
		var pv, vol float64
		for i, c := range candles {
			tp := c.TypicalPrice()
			pv += tp * c.Volume
			vol += c.Volume
			v := tp
			if vol != 0 {
				v = pv / vol
			}
			pts[i] = model.Point{Time: c.Time, Value: v}
		}
		return single("vwap", pts)
	}
}
