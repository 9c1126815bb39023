// Package datasource fetches candles from the two upstream providers and
// falls back to synthetic bars when an initial load or backfill comes back
// empty.
package datasource

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"chartdesk/internal/metrics"
	"chartdesk/internal/model"

	"golang.org/x/time/rate"
)

// Mode says what a fetch is for.
type Mode int

const (
	// ModeInitial loads the lookback window ending now.
	ModeInitial Mode = iota
	// ModeBackfill loads the lookback window ending at the oldest loaded bar.
	ModeBackfill
	// ModeRefresh loads bars since the newest loaded bar. Never synthetic,
	// never cached.
	ModeRefresh
)

func (m Mode) String() string {
	switch m {
	case ModeInitial:
		return "initial"
	case ModeBackfill:
		return "prepend"
	case ModeRefresh:
		return "append"
	default:
		return "unknown"
	}
}

// Request describes one fetch. Build it with InitialRequest, BackfillRequest
// or RefreshRequest so the window always comes from the resolution table.
type Request struct {
	Symbol   string
	Interval string
	Mode     Mode
	From     int64
	To       int64
	// SeedOpen anchors a synthetic walk (the oldest loaded open for backfill).
	SeedOpen float64
}

// InitialRequest covers [now-lookback, now].
func InitialRequest(symbol, interval string, now time.Time) Request {
	from, to := Resolve(interval).Window(now)
	return Request{Symbol: symbol, Interval: interval, Mode: ModeInitial, From: from, To: to}
}

// BackfillRequest covers [oldest-lookback, oldest].
func BackfillRequest(symbol, interval string, oldest int64, seedOpen float64) Request {
	from, to := Resolve(interval).Window(time.Unix(oldest, 0))
	return Request{Symbol: symbol, Interval: interval, Mode: ModeBackfill, From: from, To: to, SeedOpen: seedOpen}
}

// RefreshRequest covers [newest, now]. The newest bar is refetched because it
// may still be forming.
func RefreshRequest(symbol, interval string, newest int64, now time.Time) Request {
	return Request{Symbol: symbol, Interval: interval, Mode: ModeRefresh, From: newest, To: now.Unix()}
}

// Result is the outcome of a fetch.
type Result struct {
	Candles   []model.Candle
	Provider  string
	Synthetic bool // every candle was generated locally
	Cached    bool
	// Fallback holds the provider error that triggered synthesis, if any.
	Fallback error
}

// Options wires the adapter. Only Finnhub and Yahoo are required.
type Options struct {
	Finnhub Provider
	Yahoo   Provider

	Cache   model.ResponseCache
	Journal model.FetchJournal
	Metrics *metrics.Metrics
	Synth   *Synthesizer

	Timeout       time.Duration // per fetch, default 10s
	CacheTTL      time.Duration // used to bucket cache keys, default 5m
	RatePerMinute int           // per provider, default 60
	Now           func() time.Time
}

// Adapter routes requests to a provider and applies the failure policy.
// Safe for concurrent use.
type Adapter struct {
	finnhub  Provider
	yahoo    Provider
	cache    model.ResponseCache
	journal  model.FetchJournal
	prom     *metrics.Metrics
	synth    *Synthesizer
	timeout  time.Duration
	cacheTTL time.Duration
	limiters map[string]*rate.Limiter
	now      func() time.Time
}

// NewAdapter creates an adapter.
func NewAdapter(opts Options) *Adapter {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 5 * time.Minute
	}
	if opts.RatePerMinute <= 0 {
		opts.RatePerMinute = 60
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Synth == nil {
		opts.Synth = NewSynthesizer(opts.Now().UnixNano())
	}

	limit := rate.Every(time.Minute / time.Duration(opts.RatePerMinute))
	burst := opts.RatePerMinute / 10
	if burst < 1 {
		burst = 1
	}

	a := &Adapter{
		finnhub:  opts.Finnhub,
		yahoo:    opts.Yahoo,
		cache:    opts.Cache,
		journal:  opts.Journal,
		prom:     opts.Metrics,
		synth:    opts.Synth,
		timeout:  opts.Timeout,
		cacheTTL: opts.CacheTTL,
		limiters: make(map[string]*rate.Limiter, 2),
		now:      opts.Now,
	}
	for _, p := range []Provider{opts.Finnhub, opts.Yahoo} {
		if p != nil {
			a.limiters[p.Name()] = rate.NewLimiter(limit, burst)
		}
	}
	return a
}

// Now returns the adapter clock.
func (a *Adapter) Now() time.Time { return a.now() }

// Route returns the provider for symbol.
func (a *Adapter) Route(symbol string) Provider {
	if IsExchangeListed(symbol) {
		return a.yahoo
	}
	return a.finnhub
}

// CacheKey builds the response-cache key. The window bounds are bucketed by
// the cache TTL so repeated loads within one TTL share an entry.
func CacheKey(provider, symbol, res string, from, to int64, bucket time.Duration) string {
	b := int64(bucket / time.Second)
	if b > 1 {
		from -= from % b
		to -= to % b
	}
	return fmt.Sprintf("chart:cache:%s:%s:%s:%d:%d", provider, symbol, res, from, to)
}

// Fetch runs req through cache, rate limiter and provider. Initial and
// backfill requests always succeed with some candles unless synthesis itself
// is impossible. Refresh requests return ErrEmptyUpstream or a FetchFailure
// instead of synthesizing, and the caller keeps its data.
func (a *Adapter) Fetch(ctx context.Context, req Request) (Result, error) {
	start := time.Now()
	res := Resolve(req.Interval)
	p := a.Route(req.Symbol)
	if p == nil {
		return Result{}, fmt.Errorf("%w: no provider for %q", ErrFetchFailure, req.Symbol)
	}

	rec := model.FetchRecord{
		At:       a.now(),
		Symbol:   req.Symbol,
		Interval: res.Interval,
		Provider: p.Name(),
		Mode:     req.Mode.String(),
		From:     req.From,
		To:       req.To,
	}
	finish := func(r Result, err error, outcome string) (Result, error) {
		rec.DurationMs = float64(time.Since(start).Microseconds()) / 1000.0
		rec.Cached = r.Cached
		for _, c := range r.Candles {
			if c.Provenance == model.ProvenanceSynthetic {
				rec.SyntheticCount++
			} else {
				rec.RealCount++
			}
		}
		switch {
		case err != nil:
			rec.Err = err.Error()
		case r.Fallback != nil:
			rec.Err = r.Fallback.Error()
		}
		if a.journal != nil {
			a.journal.Record(rec)
		}
		if a.prom != nil {
			a.prom.FetchesTotal.WithLabelValues(p.Name(), outcome).Inc()
			if rec.SyntheticCount > 0 {
				a.prom.SyntheticCandles.Add(float64(rec.SyntheticCount))
			}
		}
		return r, err
	}

	useCache := a.cache != nil && req.Mode != ModeRefresh
	key := CacheKey(p.Name(), req.Symbol, providerRes(p, res), req.From, req.To, a.cacheTTL)
	if useCache {
		if candles, ok := a.cache.Get(ctx, key); ok && len(candles) > 0 {
			a.observeCache(true)
			return finish(Result{Candles: candles, Provider: p.Name(), Cached: true}, nil, "cached")
		}
		a.observeCache(false)
	}

	candles, err := a.call(ctx, p, req, res)
	candles = validOnly(candles)

	if err == nil && len(candles) > 0 {
		if useCache {
			a.cache.Set(ctx, key, candles)
		}
		return finish(Result{Candles: candles, Provider: p.Name()}, nil, "ok")
	}

	if err == nil {
		err = ErrEmptyUpstream
	}
	if req.Mode == ModeRefresh {
		outcome := "error"
		if errors.Is(err, ErrEmptyUpstream) {
			outcome = "empty"
		}
		return finish(Result{Provider: p.Name()}, err, outcome)
	}

	log.Printf("[datasource] %s %s %s via %s: %v, using synthetic bars", req.Mode, req.Symbol, res.Interval, p.Name(), err)
	synth, serr := a.synth.Generate(req.From, req.To, req.SeedOpen)
	if serr != nil {
		return finish(Result{Provider: p.Name()}, fmt.Errorf("%w: %w", err, serr), "error")
	}
	return finish(Result{Candles: synth, Provider: p.Name(), Synthetic: true, Fallback: err}, nil, "synthetic")
}

// call waits on the provider's limiter and runs the request under the fetch
// timeout. A timeout surfaces as a FetchFailure.
func (a *Adapter) call(ctx context.Context, p Provider, req Request, res Resolution) ([]model.Candle, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	if lim := a.limiters[p.Name()]; lim != nil {
		waitStart := time.Now()
		if err := lim.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%w: rate limit: %v", ErrFetchFailure, err)
		}
		if a.prom != nil {
			a.prom.RateLimitWaitDur.Observe(time.Since(waitStart).Seconds())
		}
	}

	callStart := time.Now()
	candles, err := p.Candles(ctx, req.Symbol, res, req.From, req.To)
	if a.prom != nil {
		a.prom.FetchDur.WithLabelValues(p.Name()).Observe(time.Since(callStart).Seconds())
	}
	if err != nil {
		if !errors.Is(err, ErrFetchFailure) {
			err = fmt.Errorf("%w: %v", ErrFetchFailure, err)
		}
		return nil, err
	}
	return candles, nil
}

func (a *Adapter) observeCache(hit bool) {
	if a.prom == nil {
		return
	}
	if hit {
		a.prom.CacheHits.Inc()
	} else {
		a.prom.CacheMisses.Inc()
	}
}

func providerRes(p Provider, res Resolution) string {
	if p.Name() == "yahoo" {
		return res.Yahoo
	}
	return res.Finnhub
}

func validOnly(candles []model.Candle) []model.Candle {
	out := candles[:0:0]
	for _, c := range candles {
		if c.Valid() {
			out = append(out, c)
		}
	}
	return out
}
