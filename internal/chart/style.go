package chart

import (
	"fmt"
	"math"
	"strings"

	"chartdesk/internal/model"
)

// Style is a chart-style selection for the primary pane.
type Style string

const (
	StyleCandlestick       Style = "candlestick"
	StyleBars              Style = "bars"
	StyleHollowCandlestick Style = "hollow-candlestick"
	StyleHighLow           Style = "high-low"
	StyleHeikinAshi        Style = "heikin-ashi"
	StyleRenko             Style = "renko"
	StyleLine              Style = "line"
	StyleLineBreak         Style = "line-break"
	StyleArea              Style = "area"
	StyleBaseline          Style = "baseline"
	StyleKagi              Style = "kagi"
	StyleHistogram         Style = "histogram"
	StyleColumns           Style = "columns"
	StylePointFigure       Style = "point-figure"
)

// SeriesKind is the sink series type a style renders with.
type SeriesKind string

const (
	KindCandlestick SeriesKind = "candlestick"
	KindBar         SeriesKind = "bar"
	KindLine        SeriesKind = "line"
	KindArea        SeriesKind = "area"
	KindBaseline    SeriesKind = "baseline"
	KindHistogram   SeriesKind = "histogram"
)

// StyleInfo describes a style for clients.
type StyleInfo struct {
	Style Style      `json:"style"`
	Kind  SeriesKind `json:"kind"`
	OHLC  bool       `json:"ohlc"`
}

var styles = []StyleInfo{
	{StyleCandlestick, KindCandlestick, true},
	{StyleBars, KindBar, true},
	{StyleHollowCandlestick, KindCandlestick, true},
	{StyleHighLow, KindBar, true},
	{StyleHeikinAshi, KindCandlestick, true},
	{StyleRenko, KindCandlestick, true},
	{StyleLine, KindLine, false},
	{StyleLineBreak, KindLine, false},
	{StyleArea, KindArea, false},
	{StyleBaseline, KindBaseline, false},
	{StyleKagi, KindLine, false},
	{StyleHistogram, KindHistogram, false},
	{StyleColumns, KindHistogram, false},
	{StylePointFigure, KindHistogram, false},
}

// DefaultStyle is used for an empty selection.
const DefaultStyle = StyleCandlestick

// Styles lists every supported style in display order.
func Styles() []StyleInfo {
	out := make([]StyleInfo, len(styles))
	copy(out, styles)
	return out
}

// ParseStyle validates a style name. Empty selects the default.
func ParseStyle(s string) (Style, error) {
	st := Style(strings.ToLower(strings.TrimSpace(s)))
	if st == "" {
		return DefaultStyle, nil
	}
	if _, ok := lookupStyle(st); !ok {
		return "", fmt.Errorf("unknown chart style %q", s)
	}
	return st, nil
}

func lookupStyle(st Style) (StyleInfo, bool) {
	for _, info := range styles {
		if info.Style == st {
			return info, true
		}
	}
	return StyleInfo{}, false
}

// Kind returns the sink series type for the style.
func (st Style) Kind() SeriesKind {
	info, ok := lookupStyle(st)
	if !ok {
		return KindCandlestick
	}
	return info.Kind
}

// SinkOptions returns style-specific rendering options for the primary sink.
func (st Style) SinkOptions() map[string]any {
	switch st {
	case StyleHollowCandlestick:
		return map[string]any{"hollow": true}
	case StyleHighLow:
		return map[string]any{"openVisible": false, "thinBars": true}
	case StyleBars:
		return map[string]any{"openVisible": true}
	case StyleKagi:
		return map[string]any{"lineWidth": 3}
	default:
		return nil
	}
}

// Formatted is the primary-sink payload for one style. Exactly one of Bars
// or Points is set.
type Formatted struct {
	Style  Style         `json:"style"`
	Kind   SeriesKind    `json:"kind"`
	Bars   []model.Bar   `json:"bars,omitempty"`
	Points []model.Point `json:"points,omitempty"`
	// BaseValue is the reference level for the baseline style: the mean close.
	BaseValue *float64 `json:"base_value,omitempty"`
}

// Len returns the number of formatted points.
func (f Formatted) Len() int {
	if f.Bars != nil {
		return len(f.Bars)
	}
	return len(f.Points)
}

// Data returns the slice to push to the sink.
func (f Formatted) Data() any {
	if f.Bars != nil {
		return f.Bars
	}
	return f.Points
}

// Format converts candles for the given style. It never changes the number
// of points: one formatted point per candle.
func Format(st Style, candles []model.Candle) Formatted {
	f := Formatted{Style: st, Kind: st.Kind()}

	switch st {
	case StyleLine, StyleLineBreak, StyleArea, StyleKagi:
		f.Points = closePoints(candles)

	case StyleBaseline:
		f.Points = closePoints(candles)
		if len(candles) > 0 {
			sum := 0.0
			for _, c := range candles {
				sum += c.Close
			}
			mean := sum / float64(len(candles))
			f.BaseValue = &mean
		}

	case StyleHistogram, StyleColumns:
		f.Points = make([]model.Point, len(candles))
		for i, c := range candles {
			f.Points[i] = model.Point{Time: c.Time, Value: math.Abs(c.Close - c.Open), Color: model.ColorFor(c.Up())}
		}

	case StylePointFigure:
		f.Points = make([]model.Point, len(candles))
		for i, c := range candles {
			f.Points[i] = model.Point{Time: c.Time, Value: c.Close, Color: model.ColorFor(i%2 == 0)}
		}

	case StyleHeikinAshi:
		f.Bars = HeikinAshi(candles)

	default:
		f.Bars = make([]model.Bar, len(candles))
		for i, c := range candles {
			f.Bars[i] = model.Bar{Time: c.Time, Open: c.Open, High: c.High, Low: c.Low, Close: c.Close}
		}
	}
	return f
}

func closePoints(candles []model.Candle) []model.Point {
	pts := make([]model.Point, len(candles))
	for i, c := range candles {
		pts[i] = model.Point{Time: c.Time, Value: c.Close}
	}
	return pts
}

// HeikinAshi smooths candles:
//
//	haClose   = (o+h+l+c)/4
//	haOpen[0] = (o+c)/2, haOpen[i] = (haOpen[i-1]+haClose[i-1])/2
//	haHigh    = max(h, haOpen, haClose)
//	haLow     = min(l, haOpen, haClose)
func HeikinAshi(candles []model.Candle) []model.Bar {
	out := make([]model.Bar, len(candles))
	var prevOpen, prevClose float64
	for i, c := range candles {
		haClose := (c.Open + c.High + c.Low + c.Close) / 4
		haOpen := (c.Open + c.Close) / 2
		if i > 0 {
			haOpen = (prevOpen + prevClose) / 2
		}
		out[i] = model.Bar{
			Time:  c.Time,
			Open:  haOpen,
			High:  math.Max(c.High, math.Max(haOpen, haClose)),
			Low:   math.Min(c.Low, math.Min(haOpen, haClose)),
			Close: haClose,
		}
		prevOpen, prevClose = haOpen, haClose
	}
	return out
}
