package gateway

import (
	"chartdesk/internal/chart"
	"chartdesk/internal/panesync"
)

// Client → server message types.
const (
	MsgSetSymbol     = "SET_SYMBOL"
	MsgSetInterval   = "SET_INTERVAL"
	MsgSetStyle      = "SET_STYLE"
	MsgSetIndicators = "SET_INDICATORS"
	MsgVisibleRange  = "VISIBLE_RANGE"
	MsgCrosshair     = "CROSSHAIR"
	MsgClick         = "CLICK"
	MsgRefresh       = "REFRESH"
)

// Server → client message types.
const (
	OutSetData      = "SET_DATA"
	OutRemoveSeries = "REMOVE_SERIES"
	OutLayout       = "LAYOUT"
	OutRange        = "RANGE"
	OutStatus       = "STATUS"
	OutCrosshair    = "CROSSHAIR"
	OutClick        = "CLICK"
	OutError        = "ERROR"
	OutStats        = "STATS"
)

// InboundMsg is any message a browser sends. Fields are read according to
// Type.
type InboundMsg struct {
	Type       string   `json:"type"`
	ReqID      string   `json:"req_id,omitempty"`
	Symbol     string   `json:"symbol,omitempty"`
	Interval   string   `json:"interval,omitempty"`
	Style      string   `json:"style,omitempty"`
	Indicators []string `json:"indicators,omitempty"`
	Pane       string   `json:"pane,omitempty"`
	From       float64  `json:"from,omitempty"`
	To         float64  `json:"to,omitempty"`
	Time       int64    `json:"time,omitempty"`
	X          float64  `json:"x,omitempty"`
	Ping       int64    `json:"ping,omitempty"`
}

// SetDataMsg replaces one series' data in the browser. The browser creates
// the series on first sight of Sink.
type SetDataMsg struct {
	Type string `json:"type"`
	chart.SinkSpec
	Data any `json:"data"`
}

// RemoveSeriesMsg drops a series the session disposed.
type RemoveSeriesMsg struct {
	Type string `json:"type"`
	Sink string `json:"sink"`
	Pane string `json:"pane"`
}

// LayoutMsg carries pane heights in percent.
type LayoutMsg struct {
	Type  string            `json:"type"`
	Panes []panesync.Height `json:"panes"`
}

// RangeMsg moves panes to a logical range.
type RangeMsg struct {
	Type    string            `json:"type"`
	Updates []panesync.Update `json:"updates"`
}

// StatusMsg reports session state, including whether synthetic data is shown.
type StatusMsg struct {
	Type   string         `json:"type"`
	Status chart.Snapshot `json:"status"`
}

// CrosshairMsg reports the bar under the cursor.
type CrosshairMsg struct {
	Type string `json:"type"`
	chart.Crosshair
}

// ClickMsg reports the time of a clicked bar.
type ClickMsg struct {
	Type string `json:"type"`
	chart.Click
}

// ErrorMsg reports a rejected request.
type ErrorMsg struct {
	Type  string `json:"type"`
	ReqID string `json:"req_id,omitempty"`
	Error string `json:"error"`
}
