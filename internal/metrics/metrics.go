package metrics

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the chart server.
type Metrics struct {
	// Data source
	FetchesTotal     *prometheus.CounterVec   // labels: provider, outcome
	FetchDur         *prometheus.HistogramVec // labels: provider
	SyntheticCandles prometheus.Counter
	RateLimitWaitDur prometheus.Histogram

	// Response cache
	CacheHits                prometheus.Counter
	CacheMisses              prometheus.Counter
	RedisCircuitBreakerState prometheus.Gauge // 0=closed, 1=open, 2=half-open
	RedisCircuitBreakerTrips prometheus.Counter

	// Chart sessions
	ActiveSessions      prometheus.Gauge
	SessionTransitions  *prometheus.CounterVec // labels: state
	BackfillsTotal      *prometheus.CounterVec // labels: outcome
	StaleResultsDropped prometheus.Counter
	IndicatorComputeDur prometheus.Histogram

	// Gateway
	WSMessagesSent prometheus.Counter
	WSDrops        prometheus.Counter

	// Journal
	JournalRecords  prometheus.Counter
	SQLiteCommitDur prometheus.Histogram

	// Market session
	MarketState  prometheus.Gauge // 0=closed, 1=open
	RefreshTicks prometheus.Counter
}

// NewMetrics registers all metrics on the default Prometheus registry.
func NewMetrics() *Metrics {
	return NewMetricsWith(prometheus.DefaultRegisterer)
}

// NewMetricsWith registers all metrics on reg. Tests pass a fresh registry.
func NewMetricsWith(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		FetchesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chartd_fetches_total",
			Help: "Data source fetches by provider and outcome (ok, cached, empty, error, synthetic)",
		}, []string{"provider", "outcome"}),
		FetchDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "chartd_fetch_duration_seconds",
			Help:    "Upstream fetch latency",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"provider"}),
		SyntheticCandles: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chartd_synthetic_candles_total",
			Help: "Fallback candles generated because the provider returned nothing",
		}),
		RateLimitWaitDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "chartd_rate_limit_wait_seconds",
			Help:    "Time spent waiting on per-provider rate limiters",
			Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1, 5},
		}),

		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chartd_cache_hits_total",
			Help: "Response cache hits",
		}),
		CacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chartd_cache_misses_total",
			Help: "Response cache misses (including cache errors)",
		}),
		RedisCircuitBreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "chartd_redis_circuit_breaker_state",
			Help: "Redis circuit breaker state (0=closed, 1=open, 2=half-open)",
		}),
		RedisCircuitBreakerTrips: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chartd_redis_circuit_breaker_trips_total",
			Help: "Times the Redis circuit breaker tripped open",
		}),

		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "chartd_active_sessions",
			Help: "Open chart sessions",
		}),
		SessionTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chartd_session_transitions_total",
			Help: "Chart session state transitions by target state",
		}, []string{"state"}),
		BackfillsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chartd_backfills_total",
			Help: "Historical backfills by outcome (merged, synthetic, failed, skipped)",
		}, []string{"outcome"}),
		StaleResultsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chartd_stale_results_dropped_total",
			Help: "Fetch results discarded because the session moved on",
		}),
		IndicatorComputeDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "chartd_indicator_compute_duration_seconds",
			Help:    "Full indicator refresh latency per session update",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
		}),

		WSMessagesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chartd_ws_messages_sent_total",
			Help: "Messages queued to WebSocket clients",
		}),
		WSDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chartd_ws_drops_total",
			Help: "Messages dropped because a client send buffer was full",
		}),

		JournalRecords: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chartd_journal_records_total",
			Help: "Fetch records committed to SQLite",
		}),
		SQLiteCommitDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "chartd_sqlite_commit_duration_seconds",
			Help:    "SQLite batch commit latency",
			Buckets: prometheus.DefBuckets,
		}),

		MarketState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "chartd_market_state",
			Help: "Market session state (0=closed, 1=open)",
		}),
		RefreshTicks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chartd_refresh_ticks_total",
			Help: "Scheduled refresh ticks fanned out to sessions",
		}),
	}

	reg.MustRegister(
		m.FetchesTotal,
		m.FetchDur,
		m.SyntheticCandles,
		m.RateLimitWaitDur,
		m.CacheHits,
		m.CacheMisses,
		m.RedisCircuitBreakerState,
		m.RedisCircuitBreakerTrips,
		m.ActiveSessions,
		m.SessionTransitions,
		m.BackfillsTotal,
		m.StaleResultsDropped,
		m.IndicatorComputeDur,
		m.WSMessagesSent,
		m.WSDrops,
		m.JournalRecords,
		m.SQLiteCommitDur,
		m.MarketState,
		m.RefreshTicks,
	)

	return m
}

// HealthStatus represents the system health.
type HealthStatus struct {
	mu sync.RWMutex

	RedisEnabled   bool `json:"redis_enabled"`
	RedisConnected bool `json:"redis_connected"`
	SQLiteEnabled  bool `json:"sqlite_enabled"`
	SQLiteOK       bool `json:"sqlite_ok"`
	Sessions       int  `json:"sessions"`
	MarketOpen     bool `json:"market_open"`

	// Liveness probe results
	RedisLatencyMs  float64   `json:"redis_latency_ms"`
	SQLiteLatencyMs float64   `json:"sqlite_latency_ms"`
	LastCheckAt     time.Time `json:"last_check_at"`
	StartedAt       time.Time `json:"started_at"`
}

// NewHealthStatus returns a default health status.
func NewHealthStatus() *HealthStatus {
	return &HealthStatus{
		StartedAt: time.Now(),
	}
}

func (h *HealthStatus) SetRedisConnected(v bool) {
	h.mu.Lock()
	h.RedisEnabled = true
	h.RedisConnected = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetSQLiteOK(v bool) {
	h.mu.Lock()
	h.SQLiteEnabled = true
	h.SQLiteOK = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetSessions(n int) {
	h.mu.Lock()
	h.Sessions = n
	h.mu.Unlock()
}

func (h *HealthStatus) SetMarketOpen(v bool) {
	h.mu.Lock()
	h.MarketOpen = v
	h.mu.Unlock()
}

// CheckRedis pings Redis and records latency + connectivity.
func (h *HealthStatus) CheckRedis(ctx context.Context, rdb *goredis.Client) {
	start := time.Now()
	err := rdb.Ping(ctx).Err()
	latency := time.Since(start)

	h.mu.Lock()
	h.RedisEnabled = true
	h.RedisConnected = err == nil
	h.RedisLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// CheckSQLite runs a trivial query and records latency + health.
func (h *HealthStatus) CheckSQLite(ctx context.Context, db *sql.DB) {
	start := time.Now()
	err := db.PingContext(ctx)
	latency := time.Since(start)

	h.mu.Lock()
	h.SQLiteEnabled = true
	h.SQLiteOK = err == nil
	h.SQLiteLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// StartLivenessChecker runs periodic dependency checks. Either client may be nil.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, rdb *goredis.Client, sqlDB *sql.DB, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
				if rdb != nil {
					h.CheckRedis(probeCtx, rdb)
				}
				if sqlDB != nil {
					h.CheckSQLite(probeCtx, sqlDB)
				}
				cancel()
			}
		}
	}()
}

// Overall returns "healthy", "degraded" or "unhealthy". Optional dependencies
// that were never enabled do not count against health; the chart keeps
// working without the cache and journal.
func (h *HealthStatus) Overall() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.overall()
}

func (h *HealthStatus) overall() string {
	redisDown := h.RedisEnabled && !h.RedisConnected
	sqliteDown := h.SQLiteEnabled && !h.SQLiteOK
	switch {
	case redisDown && sqliteDown:
		return "unhealthy"
	case redisDown || sqliteDown:
		return "degraded"
	default:
		return "healthy"
	}
}

// ServeHTTP handles the /healthz endpoint.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	overallStatus := h.overall()
	httpCode := http.StatusOK
	if overallStatus != "healthy" {
		httpCode = http.StatusServiceUnavailable
	}

	status := struct {
		Status          string  `json:"status"`
		Uptime          string  `json:"uptime"`
		Sessions        int     `json:"sessions"`
		MarketOpen      bool    `json:"market_open"`
		RedisEnabled    bool    `json:"redis_enabled"`
		RedisConnected  bool    `json:"redis_connected"`
		RedisLatencyMs  float64 `json:"redis_latency_ms"`
		SQLiteEnabled   bool    `json:"sqlite_enabled"`
		SQLiteOK        bool    `json:"sqlite_ok"`
		SQLiteLatencyMs float64 `json:"sqlite_latency_ms"`
		LastCheckAt     string  `json:"last_check_at"`
	}{
		Status:          overallStatus,
		Uptime:          time.Since(h.StartedAt).Round(time.Second).String(),
		Sessions:        h.Sessions,
		MarketOpen:      h.MarketOpen,
		RedisEnabled:    h.RedisEnabled,
		RedisConnected:  h.RedisConnected,
		RedisLatencyMs:  h.RedisLatencyMs,
		SQLiteEnabled:   h.SQLiteEnabled,
		SQLiteOK:        h.SQLiteOK,
		SQLiteLatencyMs: h.SQLiteLatencyMs,
		LastCheckAt:     h.LastCheckAt.Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	if httpCode != http.StatusOK {
		w.WriteHeader(httpCode)
	}
	json.NewEncoder(w).Encode(status)
}

// Server runs an HTTP server exposing /metrics and /healthz.
type Server struct {
	health *HealthStatus
	addr   string
	srv    *http.Server
}

// NewServer creates a metrics and health server.
func NewServer(addr string, health *HealthStatus) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", health.ServeHTTP)

	return &Server{
		health: health,
		addr:   addr,
		srv: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
	}
}

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		log.Printf("[metrics] server listening on %s", s.addr)
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Printf("[metrics] server error: %v", err)
		}
	}()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
