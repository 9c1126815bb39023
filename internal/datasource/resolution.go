package datasource

import (
	"strings"
	"time"
)

const day = 24 * time.Hour

// Resolution maps a chart interval to a lookback window and the bar size each
// provider understands. Initial fetch and backfill use the same table.
type Resolution struct {
	Interval string        `json:"interval"`
	Label    string        `json:"label"`
	Lookback time.Duration `json:"lookback"`
	Finnhub  string        `json:"finnhub"` // stock/candle "resolution" parameter
	Yahoo    string        `json:"yahoo"`   // v8 chart "interval" parameter
	BarSecs  int64         `json:"bar_secs"`
}

// DefaultInterval is used for unknown intervals.
const DefaultInterval = "1d"

var resolutions = []Resolution{
	{Interval: "1d", Label: "1 Day", Lookback: day, Finnhub: "1", Yahoo: "1m", BarSecs: 60},
	{Interval: "5d", Label: "5 Days", Lookback: 5 * day, Finnhub: "5", Yahoo: "5m", BarSecs: 5 * 60},
	{Interval: "1m", Label: "1 Month", Lookback: 30 * day, Finnhub: "15", Yahoo: "15m", BarSecs: 15 * 60},
	{Interval: "3m", Label: "3 Months", Lookback: 90 * day, Finnhub: "60", Yahoo: "60m", BarSecs: 60 * 60},
	{Interval: "1y", Label: "1 Year", Lookback: 365 * day, Finnhub: "D", Yahoo: "1d", BarSecs: 24 * 60 * 60},
	{Interval: "5y", Label: "5 Years", Lookback: 5 * 365 * day, Finnhub: "W", Yahoo: "1wk", BarSecs: 7 * 24 * 60 * 60},
	{Interval: "10y", Label: "10 Years", Lookback: 10 * 365 * day, Finnhub: "M", Yahoo: "1mo", BarSecs: 30 * 24 * 60 * 60},
}

// Resolve returns the table row for interval, falling back to 1d.
func Resolve(interval string) Resolution {
	iv := strings.TrimSpace(interval)
	for _, r := range resolutions {
		if r.Interval == iv {
			return r
		}
	}
	return resolutions[0]
}

// Known reports whether interval is in the table.
func Known(interval string) bool {
	for _, r := range resolutions {
		if r.Interval == interval {
			return true
		}
	}
	return false
}

// Resolutions returns the table in display order.
func Resolutions() []Resolution {
	out := make([]Resolution, len(resolutions))
	copy(out, resolutions)
	return out
}

// Window returns the fetch window ending at end: [end-lookback, end].
func (r Resolution) Window(end time.Time) (from, to int64) {
	return end.Add(-r.Lookback).Unix(), end.Unix()
}

// Intraday reports whether bars are shorter than a day.
func (r Resolution) Intraday() bool { return r.BarSecs < 24*60*60 }
