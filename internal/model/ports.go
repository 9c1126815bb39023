package model

import (
	"context"
	"time"
)

// ── Storage Port Interfaces ──
// These interfaces decouple the data source from concrete storage
// implementations (Redis, SQLite).

// FetchRecord is one data-source call outcome, kept for provenance audits.
type FetchRecord struct {
	At             time.Time `json:"at"`
	Symbol         string    `json:"symbol"`
	Interval       string    `json:"interval"`
	Provider       string    `json:"provider"`
	Mode           string    `json:"mode"` // initial, prepend, append
	From           int64     `json:"from"`
	To             int64     `json:"to"`
	RealCount      int       `json:"real_count"`
	SyntheticCount int       `json:"synthetic_count"`
	Cached         bool      `json:"cached"`
	Err            string    `json:"err,omitempty"`
	DurationMs     float64   `json:"duration_ms"`
}

// ProvenanceSummary aggregates fetch records per symbol.
type ProvenanceSummary struct {
	Symbol         string `json:"symbol"`
	Fetches        int    `json:"fetches"`
	Failures       int    `json:"failures"`
	RealCount      int    `json:"real_count"`
	SyntheticCount int    `json:"synthetic_count"`
}

// FetchJournal records fetch outcomes.
type FetchJournal interface {
	// Record stores one outcome. Implementations must not block the caller
	// for long; failures are logged, not returned.
	Record(rec FetchRecord)

	// Close flushes pending records and releases resources.
	Close() error
}

// JournalReader reads aggregated provenance data.
type JournalReader interface {
	Summary(ctx context.Context, since time.Time) ([]ProvenanceSummary, error)
	Recent(ctx context.Context, limit int) ([]FetchRecord, error)
}

// ResponseCache caches raw provider candles by request key.
type ResponseCache interface {
	// Get returns (nil, false) on miss or any cache error.
	Get(ctx context.Context, key string) ([]Candle, bool)
	Set(ctx context.Context, key string, candles []Candle)
	Close() error
}
