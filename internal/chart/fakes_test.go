package chart

import (
	"context"
	"sync"
	"testing"
	"time"

	"chartdesk/internal/datasource"
	"chartdesk/internal/model"
	"chartdesk/internal/panesync"
)

var testNow = time.Unix(1_700_000_000, 0)

type fakeSink struct {
	spec SinkSpec

	mu       sync.Mutex
	data     any
	writes   int
	disposed bool
}

func (s *fakeSink) Spec() SinkSpec { return s.spec }

func (s *fakeSink) SetData(data any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		return ErrDisposed
	}
	s.data = data
	s.writes++
	return nil
}

func (s *fakeSink) Dispose() {
	s.mu.Lock()
	s.disposed = true
	s.mu.Unlock()
}

func (s *fakeSink) isDisposed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disposed
}

func (s *fakeSink) last() any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data
}

type fakeHost struct {
	mu       sync.Mutex
	sinks    []*fakeSink
	layouts  [][]panesync.Height
	ranges   [][]panesync.Update
	statuses []Snapshot
}

func (h *fakeHost) NewSink(spec SinkSpec) Sink {
	h.mu.Lock()
	defer h.mu.Unlock()
	s := &fakeSink{spec: spec}
	h.sinks = append(h.sinks, s)
	return s
}

func (h *fakeHost) Layout(hs []panesync.Height) {
	h.mu.Lock()
	h.layouts = append(h.layouts, hs)
	h.mu.Unlock()
}

func (h *fakeHost) SyncRanges(ups []panesync.Update) {
	h.mu.Lock()
	h.ranges = append(h.ranges, ups)
	h.mu.Unlock()
}

func (h *fakeHost) Status(s Snapshot) {
	h.mu.Lock()
	h.statuses = append(h.statuses, s)
	h.mu.Unlock()
}

// live returns the newest undisposed sink with id.
func (h *fakeHost) live(id string) *fakeSink {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i := len(h.sinks) - 1; i >= 0; i-- {
		if h.sinks[i].spec.ID == id && !h.sinks[i].isDisposed() {
			return h.sinks[i]
		}
	}
	return nil
}

func (h *fakeHost) all(id string) []*fakeSink {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []*fakeSink
	for _, s := range h.sinks {
		if s.spec.ID == id {
			out = append(out, s)
		}
	}
	return out
}

func (h *fakeHost) lastLayout() []panesync.Height {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.layouts) == 0 {
		return nil
	}
	return h.layouts[len(h.layouts)-1]
}

func (h *fakeHost) lastRanges() []panesync.Update {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.ranges) == 0 {
		return nil
	}
	return h.ranges[len(h.ranges)-1]
}

// pendingCall is a fetch the test answers by hand.
type pendingCall struct {
	req   datasource.Request
	reply chan fetchReply
}

type fetchReply struct {
	res datasource.Result
	err error
}

func (c pendingCall) answer(res datasource.Result, err error) {
	c.reply <- fetchReply{res: res, err: err}
}

type manualFetcher struct {
	calls chan pendingCall
}

func newManualFetcher() *manualFetcher {
	return &manualFetcher{calls: make(chan pendingCall, 16)}
}

func (f *manualFetcher) Fetch(ctx context.Context, req datasource.Request) (datasource.Result, error) {
	c := pendingCall{req: req, reply: make(chan fetchReply, 1)}
	select {
	case f.calls <- c:
	case <-ctx.Done():
		return datasource.Result{}, ctx.Err()
	}
	select {
	case r := <-c.reply:
		return r.res, r.err
	case <-ctx.Done():
		return datasource.Result{}, ctx.Err()
	}
}

func (f *manualFetcher) Now() time.Time { return testNow }

func (f *manualFetcher) next(t *testing.T) pendingCall {
	t.Helper()
	select {
	case c := <-f.calls:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("expected a fetch")
		return pendingCall{}
	}
}

func (f *manualFetcher) expectNone(t *testing.T) {
	t.Helper()
	select {
	case c := <-f.calls:
		t.Fatalf("unexpected fetch %+v", c.req)
	case <-time.After(50 * time.Millisecond):
	}
}

// bars returns n real candles spaced step seconds apart starting at start.
func bars(n int, start, step int64, base float64) []model.Candle {
	out := make([]model.Candle, n)
	for i := range out {
		p := base + float64(i)
		out[i] = model.Candle{
			Time: start + int64(i)*step, Open: p, High: p + 2, Low: p - 1, Close: p + 1,
			Volume: 100, Provenance: model.ProvenanceReal,
		}
	}
	return out
}

// staticProvider is a datasource.Provider with a scripted answer per call.
type staticProvider struct {
	mu      sync.Mutex
	answers [][]model.Candle
	calls   int
}

func (p *staticProvider) Name() string { return "finnhub" }

func (p *staticProvider) Candles(context.Context, string, datasource.Resolution, int64, int64) ([]model.Candle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	i := p.calls
	p.calls++
	if i < len(p.answers) {
		return p.answers[i], nil
	}
	return nil, nil
}
