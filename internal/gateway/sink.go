package gateway

import (
	"sync"

	"chartdesk/internal/chart"
)

// wsSink forwards a session's series data to the browser as SET_DATA frames.
type wsSink struct {
	client *Client
	spec   chart.SinkSpec

	mu       sync.Mutex
	disposed bool
}

func (s *wsSink) Spec() chart.SinkSpec { return s.spec }

func (s *wsSink) SetData(data any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		return chart.ErrDisposed
	}

	msg := SetDataMsg{Type: OutSetData, SinkSpec: s.spec, Data: data}
	if f, ok := data.(chart.Formatted); ok {
		msg.Data = f.Data()
		if f.BaseValue != nil {
			opts := make(map[string]any, len(s.spec.Options)+1)
			for k, v := range s.spec.Options {
				opts[k] = v
			}
			opts["base_value"] = *f.BaseValue
			msg.Options = opts
		}
	}
	if frame, ok := marshalFrame(msg); ok {
		s.client.enqueueData(s.spec.ID, frame)
	}
	return nil
}

func (s *wsSink) Dispose() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		return
	}
	s.disposed = true
	s.client.release(s.spec.ID)
	s.client.sendJSON(RemoveSeriesMsg{Type: OutRemoveSeries, Sink: s.spec.ID, Pane: s.spec.Pane})
}
