package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"chartdesk/internal/model"
)

// Reader provides read-only access to the fetch journal for the provenance API.
type Reader struct {
	db *sql.DB
}

// NewReader opens a SQLite connection for reading.
func NewReader(dbPath string) (*Reader, error) {
	db, err := open(dbPath)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(2)

	log.Printf("[sqlite-reader] opened %s", dbPath)
	return &Reader{db: db}, nil
}

// Summary aggregates fetches per symbol since the given time, busiest first.
func (r *Reader) Summary(ctx context.Context, since time.Time) ([]model.ProvenanceSummary, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT symbol,
		       COUNT(*),
		       SUM(CASE WHEN err IS NOT NULL THEN 1 ELSE 0 END),
		       SUM(real_count),
		       SUM(synthetic_count)
		FROM fetch_journal
		WHERE at >= ?
		GROUP BY symbol
		ORDER BY COUNT(*) DESC, symbol ASC
	`, since.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("sqlite query summary: %w", err)
	}
	defer rows.Close()

	var out []model.ProvenanceSummary
	for rows.Next() {
		var s model.ProvenanceSummary
		if err := rows.Scan(&s.Symbol, &s.Fetches, &s.Failures, &s.RealCount, &s.SyntheticCount); err != nil {
			return nil, fmt.Errorf("sqlite scan summary: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Recent returns the newest limit records, newest first.
func (r *Reader) Recent(ctx context.Context, limit int) ([]model.FetchRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT at, symbol, interval, provider, mode, from_ts, to_ts,
		       real_count, synthetic_count, cached, err, duration_ms
		FROM fetch_journal
		ORDER BY at DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite query recent: %w", err)
	}
	defer rows.Close()

	var out []model.FetchRecord
	for rows.Next() {
		var (
			rec     model.FetchRecord
			atMilli int64
			errText sql.NullString
			dur     sql.NullFloat64
		)
		if err := rows.Scan(&atMilli, &rec.Symbol, &rec.Interval, &rec.Provider, &rec.Mode, &rec.From, &rec.To,
			&rec.RealCount, &rec.SyntheticCount, &rec.Cached, &errText, &dur); err != nil {
			return nil, fmt.Errorf("sqlite scan recent: %w", err)
		}
		rec.At = time.UnixMilli(atMilli).UTC()
		rec.Err = errText.String
		rec.DurationMs = dur.Float64
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Close closes the reader.
func (r *Reader) Close() error {
	return r.db.Close()
}
