package model

// Color tags a point for two-tone rendering (histograms, volume bars).
type Color string

const (
	ColorNone Color = ""
	ColorUp   Color = "up"
	ColorDown Color = "down"
)

// ColorFor returns ColorUp when up is true, ColorDown otherwise.
func ColorFor(up bool) Color {
	if up {
		return ColorUp
	}
	return ColorDown
}

// Point is a single value on a time axis, used for indicator output and for
// value-style chart formats (line, area, histogram).
type Point struct {
	Time  int64   `json:"time"`
	Value float64 `json:"value"`
	Color Color   `json:"color,omitempty"`
}

// Bar is a formatted OHLC point for candle-style sinks.
type Bar struct {
	Time  int64   `json:"time"`
	Open  float64 `json:"open"`
	High  float64 `json:"high"`
	Low   float64 `json:"low"`
	Close float64 `json:"close"`
}

// Range is a visible window on a pane's time scale. From/To are logical bar
// indexes (fractional while the user is dragging).
type Range struct {
	From float64 `json:"from"`
	To   float64 `json:"to"`
}

// Equal reports whether two ranges match up to float rounding.
func (r Range) Equal(o Range) bool {
	const eps = 1e-6
	return abs(r.From-o.From) < eps && abs(r.To-o.To) < eps
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
