package chart

import (
	"errors"

	"chartdesk/internal/panesync"
)

// ErrDisposed is returned by a sink written after teardown. The session
// swallows it: a fetch may complete after its sink was replaced.
var ErrDisposed = errors.New("sink disposed")

// SinkSpec describes a rendering target.
type SinkSpec struct {
	ID      string         `json:"sink"`
	Pane    string         `json:"pane"`
	Kind    SeriesKind     `json:"kind"`
	Color   string         `json:"color,omitempty"`
	Options map[string]any `json:"options,omitempty"`
}

// Sink receives formatted series data.
type Sink interface {
	Spec() SinkSpec
	// SetData replaces the sink's data. Returns ErrDisposed after Dispose.
	SetData(data any) error
	Dispose()
}

// SinkFactory creates sinks.
type SinkFactory interface {
	NewSink(spec SinkSpec) Sink
}

// Host is the session's view of the UI it drives.
type Host interface {
	SinkFactory
	Layout(heights []panesync.Height)
	SyncRanges(updates []panesync.Update)
	Status(snap Snapshot)
}
