// Package chart drives one interactive chart: it loads a symbol's series,
// formats it for the selected chart style, keeps the active indicators in
// sync with the data and pulls in history as the user scrolls left.
package chart

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"chartdesk/internal/datasource"
	"chartdesk/internal/indicator"
	"chartdesk/internal/logger"
	"chartdesk/internal/metrics"
	"chartdesk/internal/model"
	"chartdesk/internal/panesync"
	"chartdesk/internal/series"
)

const (
	// BackfillThreshold triggers a backfill when the primary pane's visible
	// range starts within this many bars of the oldest candle.
	BackfillThreshold = 5

	// PrimarySinkID names the price series sink.
	PrimarySinkID = "price"

	eventQueueSize = 64
)

// Fetcher is the data source used by a session.
type Fetcher interface {
	Fetch(ctx context.Context, req datasource.Request) (datasource.Result, error)
	Now() time.Time
}

// Crosshair is the bar under the cursor. Value styles report their value as
// all four prices.
type Crosshair struct {
	Time      int64   `json:"time"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Synthetic bool    `json:"synthetic,omitempty"`
}

// Click is a pane click translated to the nearest candle time.
type Click struct {
	Pane string `json:"pane"`
	Time int64  `json:"time"`
}

// Snapshot is a point-in-time view of a session. It is also pushed to the
// host as the session status.
type Snapshot struct {
	Session     string                   `json:"session"`
	Symbol      string                   `json:"symbol"`
	Interval    string                   `json:"interval"`
	Style       Style                    `json:"style"`
	State       State                    `json:"state"`
	Indicators  []indicator.ID           `json:"indicators"`
	Panes       []string                 `json:"panes"`
	Candles     int                      `json:"candles"`
	Oldest      int64                    `json:"oldest,omitempty"`
	Newest      int64                    `json:"newest,omitempty"`
	Synthetic   bool                     `json:"synthetic"`
	Provenance  map[model.Provenance]int `json:"provenance,omitempty"`
	Provider    string                   `json:"provider,omitempty"`
	Fallback    string                   `json:"fallback,omitempty"`
	LastError   string                   `json:"last_error,omitempty"`
	Backfilling bool                     `json:"backfilling"`
	Exhausted   bool                     `json:"history_exhausted,omitempty"`
	UpdatedAt   time.Time                `json:"updated_at"`
}

// Config configures a session. Symbol may be empty; the session then waits
// for SetSymbol.
type Config struct {
	ID         string
	Fetcher    Fetcher
	Host       Host
	Metrics    *metrics.Metrics
	Symbol     string
	Interval   string
	Style      Style
	Indicators []indicator.ID
}

// Session is one chart. Every exported method is safe for concurrent use: it
// posts a closure to the session's event loop, which owns all state. Fetches
// run on their own goroutines and post their results back tagged with the
// generation that issued them; a result from an older generation is dropped.
//
// Host methods and callbacks run on the event loop and must not call State or
// Snapshot synchronously.
type Session struct {
	id      string
	fetcher Fetcher
	host    Host
	prom    *metrics.Metrics
	log     *slog.Logger

	ctx       context.Context
	cancel    context.CancelFunc
	events    chan func()
	done      chan struct{}
	closeOnce sync.Once

	// event-loop state
	symbol      string
	interval    string
	style       Style
	active      indicator.Set
	state       State
	gen         uint64
	store       *series.Store
	sync        *panesync.Synchronizer
	primary     Sink
	indSinks    map[indicator.ID]map[string]Sink
	formatted   Formatted
	backfilling bool
	refreshing  bool
	exhausted   bool
	provider    string
	fallback    string
	lastErr     string
	updatedAt   time.Time

	onCrosshair func(Crosshair)
	onClick     func(Click)
}

// NewSession starts a session's event loop. When cfg.Symbol is set the
// initial load starts immediately.
func NewSession(cfg Config) *Session {
	if cfg.ID == "" {
		cfg.ID = logger.NewSessionID()
	}
	if !datasource.Known(cfg.Interval) {
		cfg.Interval = datasource.DefaultInterval
	}
	if _, ok := lookupStyle(cfg.Style); !ok {
		cfg.Style = DefaultStyle
	}

	ctx, cancel := context.WithCancel(logger.WithSessionID(context.Background(), cfg.ID))
	s := &Session{
		id:       cfg.ID,
		fetcher:  cfg.Fetcher,
		host:     cfg.Host,
		prom:     cfg.Metrics,
		log:      logger.From(ctx).With(slog.String("component", "chart")),
		ctx:      ctx,
		cancel:   cancel,
		events:   make(chan func(), eventQueueSize),
		done:     make(chan struct{}),
		interval: cfg.Interval,
		style:    cfg.Style,
		active:   indicator.NewSet(cfg.Indicators...),
		store:    series.NewStore(),
		sync:     panesync.New(),
		indSinks: make(map[indicator.ID]map[string]Sink),
	}
	for _, id := range s.active.Panes() {
		s.sync.AddPane(string(id))
	}
	if s.prom != nil {
		s.prom.ActiveSessions.Inc()
	}

	go s.run()

	if sym := normalizeSymbol(cfg.Symbol); sym != "" {
		s.post(func() { s.setSymbol(sym) })
	}
	return s
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

func (s *Session) run() {
	defer close(s.done)
	for {
		select {
		case fn := <-s.events:
			fn()
		case <-s.ctx.Done():
			s.teardown()
			return
		}
	}
}

// post queues fn on the event loop. Returns false once the session is closed.
func (s *Session) post(fn func()) bool {
	select {
	case <-s.ctx.Done():
		return false
	default:
	}
	select {
	case s.events <- fn:
		return true
	case <-s.ctx.Done():
		return false
	}
}

// call runs fn on the event loop and waits for it.
func (s *Session) call(fn func()) bool {
	ran := make(chan struct{})
	if !s.post(func() { fn(); close(ran) }) {
		return false
	}
	select {
	case <-ran:
		return true
	case <-s.done:
		return false
	}
}

// Close tears the session down and waits for the event loop to exit.
// In-flight fetches are cancelled and their results dropped.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.cancel()
		<-s.done
		if s.prom != nil {
			s.prom.ActiveSessions.Dec()
		}
	})
}

// Done is closed when the session has shut down.
func (s *Session) Done() <-chan struct{} { return s.done }

// ── Host-facing operations ──

// SetSymbol switches to symbol, discarding the current series.
func (s *Session) SetSymbol(symbol string) {
	sym := normalizeSymbol(symbol)
	if sym == "" {
		return
	}
	s.post(func() { s.setSymbol(sym) })
}

// SetInterval switches the interval, discarding the current series. Unknown
// intervals fall back to 1d.
func (s *Session) SetInterval(interval string) {
	s.post(func() { s.setInterval(interval) })
}

// SetChartStyle recreates the primary sink for style and reformats the
// existing series without refetching.
func (s *Session) SetChartStyle(style Style) {
	s.post(func() { s.setStyle(style) })
}

// SetActiveIndicators replaces the active indicator set. Unknown IDs are
// ignored.
func (s *Session) SetActiveIndicators(ids []indicator.ID) {
	next := indicator.NewSet(ids...)
	s.post(func() { s.applyIndicators(next) })
}

// OnCrosshairMove registers the crosshair callback.
func (s *Session) OnCrosshairMove(cb func(Crosshair)) {
	s.post(func() { s.onCrosshair = cb })
}

// OnPaneClick registers the click callback; it receives the clicked time.
func (s *Session) OnPaneClick(cb func(Click)) {
	s.post(func() { s.onClick = cb })
}

// Refresh fetches bars newer than the newest loaded candle and appends them.
// It never resets the view and keeps the series when nothing comes back.
func (s *Session) Refresh() {
	s.post(s.refresh)
}

// VisibleRangeChanged reports a pane's new visible logical range.
func (s *Session) VisibleRangeChanged(pane string, r model.Range) {
	s.post(func() { s.rangeChanged(pane, r) })
}

// Crosshair reports the cursor at time t.
func (s *Session) Crosshair(t int64) {
	s.post(func() { s.crosshair(t) })
}

// Click reports a click at logical index x in pane.
func (s *Session) Click(pane string, x float64) {
	s.post(func() { s.click(pane, x) })
}

// State returns the current state, or StateUninitialized after Close.
func (s *Session) State() State {
	st := StateUninitialized
	s.call(func() { st = s.state })
	return st
}

// Snapshot returns a consistent view of the session.
func (s *Session) Snapshot() Snapshot {
	snap := Snapshot{Session: s.id, State: StateUninitialized}
	s.call(func() { snap = s.snapshot() })
	return snap
}

// Candles returns a copy of the loaded series.
func (s *Session) Candles() []model.Candle {
	var out []model.Candle
	s.call(func() { out = s.store.Candles() })
	return out
}

// ── Event-loop internals ──

func normalizeSymbol(sym string) string {
	return strings.ToUpper(strings.TrimSpace(sym))
}

func (s *Session) setSymbol(sym string) {
	if sym == s.symbol && s.state != StateUninitialized {
		return
	}
	s.symbol = sym
	s.load()
}

func (s *Session) setInterval(iv string) {
	iv = strings.TrimSpace(iv)
	if !datasource.Known(iv) {
		s.log.Warn("unknown interval, using default", slog.String("interval", iv))
		iv = datasource.DefaultInterval
	}
	if iv == s.interval && s.state != StateUninitialized {
		return
	}
	s.interval = iv
	if s.symbol != "" {
		s.load()
	}
}

func (s *Session) setStyle(st Style) {
	if _, ok := lookupStyle(st); !ok {
		s.log.Warn("unknown chart style ignored", slog.String("style", string(st)))
		return
	}
	if st == s.style {
		return
	}
	s.style = st
	if s.state == StateUninitialized {
		return
	}
	s.replacePrimary()
	s.pushPrimary()
	s.publishStatus()
}

// load starts a new generation: old sinks are torn down, the store cleared
// and the initial fetch issued.
func (s *Session) load() {
	s.gen++
	s.store.Reset()
	s.sync.Reset()
	s.backfilling, s.refreshing, s.exhausted = false, false, false
	s.provider, s.fallback, s.lastErr = "", "", ""
	s.disposeAll()

	s.setState(StateLoading)
	s.replacePrimary()
	s.host.Layout(s.sync.Layout())
	s.publishStatus()

	req := datasource.InitialRequest(s.symbol, s.interval, s.fetcher.Now())
	s.log.Info("loading series",
		slog.String("symbol", s.symbol),
		slog.String("interval", s.interval),
		slog.Uint64("gen", s.gen),
	)
	s.spawn(req, s.onInitial)
}

// spawn runs req off the loop and posts done back with the issuing generation.
func (s *Session) spawn(req datasource.Request, done func(uint64, datasource.Result, error)) {
	gen := s.gen
	go func() {
		res, err := s.fetcher.Fetch(s.ctx, req)
		s.post(func() { done(gen, res, err) })
	}()
}

// live reports whether a result from gen may still touch session state.
func (s *Session) live(gen uint64) bool {
	if gen == s.gen {
		return true
	}
	if s.prom != nil {
		s.prom.StaleResultsDropped.Inc()
	}
	s.log.Debug("dropping stale fetch result", slog.Uint64("gen", gen), slog.Uint64("current", s.gen))
	return false
}

func (s *Session) onInitial(gen uint64, res datasource.Result, err error) {
	if !s.live(gen) {
		return
	}
	s.noteResult(res, err)
	if len(res.Candles) > 0 {
		s.store.Merge(res.Candles, series.Initial)
	}
	// Ready even when synthesis was impossible: never stuck in Loading.
	s.setState(StateReady)
	s.pushAll()
	s.publishStatus()
}

func (s *Session) rangeChanged(pane string, r model.Range) {
	ups := s.sync.Changed(pane, r)
	if ups == nil {
		return
	}
	if len(ups) > 0 {
		s.host.SyncRanges(ups)
	}
	s.maybeBackfill(r)
}

func (s *Session) maybeBackfill(r model.Range) {
	if r.From >= BackfillThreshold || s.state != StateReady || s.backfilling || s.exhausted || s.store.Len() == 0 {
		return
	}
	first, _ := s.store.At(0)
	s.backfilling = true
	s.setState(StateBackfillPending)
	s.publishStatus()
	s.spawn(datasource.BackfillRequest(s.symbol, s.interval, first.Time, first.Open), s.onBackfill)
}

func (s *Session) onBackfill(gen uint64, res datasource.Result, err error) {
	if !s.live(gen) {
		return
	}
	s.backfilling = false
	if s.state == StateBackfillPending {
		s.setState(StateReady)
	}
	if err != nil {
		s.noteResult(res, err)
		s.observeBackfill("failed")
		s.publishStatus()
		return
	}

	before := s.store.Len()
	s.store.Merge(res.Candles, series.Prepend)
	added := s.store.Len() - before
	s.noteResult(res, nil)

	if added == 0 {
		s.exhausted = true
		s.observeBackfill("skipped")
		s.publishStatus()
		return
	}
	if res.Synthetic {
		s.observeBackfill("synthetic")
	} else {
		s.observeBackfill("merged")
	}

	s.pushAll()
	// keep the same bars on screen: the view moves right by the prepended count
	if cur, ok := s.sync.Current(); ok {
		shift := float64(added)
		s.host.SyncRanges(s.sync.Broadcast(model.Range{From: cur.From + shift, To: cur.To + shift}))
	}
	s.publishStatus()
}

func (s *Session) refresh() {
	if (s.state != StateReady && s.state != StateBackfillPending) || s.refreshing || s.store.Len() == 0 {
		return
	}
	s.refreshing = true
	s.spawn(datasource.RefreshRequest(s.symbol, s.interval, s.store.Newest(), s.fetcher.Now()), s.onRefresh)
}

func (s *Session) onRefresh(gen uint64, res datasource.Result, err error) {
	if !s.live(gen) {
		return
	}
	s.refreshing = false
	if err != nil {
		// keep the live chart as is
		s.log.Debug("refresh returned nothing", slog.String("err", err.Error()))
		return
	}
	s.store.Merge(res.Candles, series.Append)
	s.updatedAt = time.Now()
	s.pushAll()
	s.publishStatus()
}

func (s *Session) noteResult(res datasource.Result, err error) {
	if res.Provider != "" {
		s.provider = res.Provider
	}
	s.fallback = ""
	if res.Fallback != nil {
		s.fallback = res.Fallback.Error()
	}
	s.lastErr = ""
	if err != nil {
		s.lastErr = err.Error()
		s.log.Warn("fetch failed", slog.String("symbol", s.symbol), slog.String("err", err.Error()))
	}
	s.updatedAt = time.Now()
}

func (s *Session) applyIndicators(next indicator.Set) {
	var syncUps []panesync.Update
	for id := range s.active {
		if next.Has(id) {
			continue
		}
		for _, sink := range s.indSinks[id] {
			sink.Dispose()
		}
		delete(s.indSinks, id)
		s.sync.RemovePane(string(id))
	}
	for _, id := range next.Panes() {
		if s.active.Has(id) {
			continue
		}
		if u, ok := s.sync.AddPane(string(id)); ok {
			syncUps = append(syncUps, u)
		}
	}
	s.active = next

	s.host.Layout(s.sync.Layout())
	if s.state != StateUninitialized {
		s.refreshIndicators()
	}
	if len(syncUps) > 0 {
		s.host.SyncRanges(syncUps)
	}
	s.publishStatus()
}

func (s *Session) pushAll() {
	s.pushPrimary()
	s.refreshIndicators()
}

func (s *Session) replacePrimary() {
	if s.primary != nil {
		s.primary.Dispose()
	}
	s.primary = s.host.NewSink(SinkSpec{
		ID:      PrimarySinkID,
		Pane:    panesync.Primary,
		Kind:    s.style.Kind(),
		Options: s.style.SinkOptions(),
	})
}

func (s *Session) pushPrimary() {
	s.formatted = Format(s.style, s.store.View())
	if s.primary != nil {
		s.write(s.primary, s.formatted)
	}
}

// refreshIndicators recomputes every active indicator over the full series.
func (s *Session) refreshIndicators() {
	start := time.Now()
	candles := s.store.View()
	for _, id := range s.active.Sorted() {
		spec, ok := indicator.Lookup(id)
		if !ok {
			continue
		}
		lines := spec.Compute(candles)
		seen := make(map[string]bool, len(lines))
		for _, ln := range lines {
			seen[ln.Key] = true
			s.write(s.indicatorSink(spec, ln.Key), ln.Points)
		}
		// not enough data any more: clear what was drawn
		for key, sink := range s.indSinks[id] {
			if !seen[key] {
				s.write(sink, []model.Point{})
			}
		}
	}
	if s.prom != nil {
		s.prom.IndicatorComputeDur.Observe(time.Since(start).Seconds())
	}
}

// lineColors overrides the indicator color for secondary lines.
var lineColors = map[string]string{
	"signal": "#FF6D00",
	"middle": "#B0BEC5",
}

func (s *Session) indicatorSink(spec indicator.Spec, key string) Sink {
	sinks := s.indSinks[spec.ID]
	if sinks == nil {
		sinks = make(map[string]Sink)
		s.indSinks[spec.ID] = sinks
	}
	if sink, ok := sinks[key]; ok {
		return sink
	}

	pane := panesync.Primary
	if spec.Placement == indicator.Pane {
		pane = string(spec.ID)
	}
	kind := KindLine
	if spec.Kind == indicator.KindHistogram || key == "histogram" {
		kind = KindHistogram
	}
	color := spec.Color
	if c, ok := lineColors[key]; ok {
		color = c
	}
	var opts map[string]any
	if len(spec.RefLines) > 0 {
		opts = map[string]any{"ref_lines": spec.RefLines}
	}

	sink := s.host.NewSink(SinkSpec{
		ID:      fmt.Sprintf("%s:%s", spec.ID, key),
		Pane:    pane,
		Kind:    kind,
		Color:   color,
		Options: opts,
	})
	sinks[key] = sink
	return sink
}

// write pushes data, swallowing writes to sinks torn down mid-flight.
func (s *Session) write(sink Sink, data any) {
	if err := sink.SetData(data); err != nil {
		if errors.Is(err, ErrDisposed) {
			s.log.Debug("write to disposed sink", slog.String("sink", sink.Spec().ID))
			return
		}
		s.log.Warn("sink write failed", slog.String("sink", sink.Spec().ID), slog.String("err", err.Error()))
	}
}

func (s *Session) disposeAll() {
	if s.primary != nil {
		s.primary.Dispose()
		s.primary = nil
	}
	for id, sinks := range s.indSinks {
		for _, sink := range sinks {
			sink.Dispose()
		}
		delete(s.indSinks, id)
	}
	s.formatted = Formatted{}
}

func (s *Session) teardown() {
	s.gen++
	s.disposeAll()
	s.setState(StateUninitialized)
	s.log.Info("session closed")
}

func (s *Session) crosshair(t int64) {
	if s.onCrosshair == nil {
		return
	}
	candles := s.store.View()
	i, ok := nearestIndex(candles, t)
	if !ok || i >= s.formatted.Len() {
		return
	}
	ch := Crosshair{Time: candles[i].Time, Synthetic: candles[i].Provenance == model.ProvenanceSynthetic}
	if s.formatted.Bars != nil {
		b := s.formatted.Bars[i]
		ch.Open, ch.High, ch.Low, ch.Close = b.Open, b.High, b.Low, b.Close
	} else {
		v := s.formatted.Points[i].Value
		ch.Open, ch.High, ch.Low, ch.Close = v, v, v, v
	}
	s.onCrosshair(ch)
}

// nearestIndex finds the candle closest to t.
func nearestIndex(candles []model.Candle, t int64) (int, bool) {
	n := len(candles)
	if n == 0 {
		return 0, false
	}
	i := sort.Search(n, func(i int) bool { return candles[i].Time >= t })
	switch {
	case i == n:
		return n - 1, true
	case i == 0 || candles[i].Time == t:
		return i, true
	case t-candles[i-1].Time <= candles[i].Time-t:
		return i - 1, true
	default:
		return i, true
	}
}

func (s *Session) click(pane string, x float64) {
	if s.onClick == nil || math.IsNaN(x) {
		return
	}
	c, ok := s.store.At(int(math.Round(x)))
	if !ok {
		return
	}
	s.onClick(Click{Pane: pane, Time: c.Time})
}

func (s *Session) setState(st State) {
	if st == s.state {
		return
	}
	s.log.Debug("state transition", slog.String("from", s.state.String()), slog.String("to", st.String()))
	s.state = st
	if s.prom != nil {
		s.prom.SessionTransitions.WithLabelValues(st.String()).Inc()
	}
}

func (s *Session) observeBackfill(outcome string) {
	if s.prom != nil {
		s.prom.BackfillsTotal.WithLabelValues(outcome).Inc()
	}
}

func (s *Session) snapshot() Snapshot {
	prov := s.store.Provenance()
	return Snapshot{
		Session:     s.id,
		Symbol:      s.symbol,
		Interval:    s.interval,
		Style:       s.style,
		State:       s.state,
		Indicators:  s.active.Sorted(),
		Panes:       s.sync.Panes(),
		Candles:     s.store.Len(),
		Oldest:      s.store.Oldest(),
		Newest:      s.store.Newest(),
		Synthetic:   prov[model.ProvenanceSynthetic] > 0,
		Provenance:  prov,
		Provider:    s.provider,
		Fallback:    s.fallback,
		LastError:   s.lastErr,
		Backfilling: s.backfilling,
		Exhausted:   s.exhausted,
		UpdatedAt:   s.updatedAt,
	}
}

func (s *Session) publishStatus() {
	s.host.Status(s.snapshot())
}
