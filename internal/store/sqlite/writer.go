package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"sync"
	"time"

	"chartdesk/internal/model"

	_ "github.com/mattn/go-sqlite3"
)

const (
	defaultBatchSize  = 100
	defaultFlushDelay = 200 * time.Millisecond
	defaultQueueSize  = 1024
)

// WriterConfig configures the fetch journal.
type WriterConfig struct {
	DBPath string // path to SQLite database file, e.g. "data/chartd.db"
}

// Writer is a single-goroutine SQLite writer for fetch records with
// transaction batching. Record never blocks: when the queue is full the
// record is dropped and logged.
type Writer struct {
	db    *sql.DB
	queue chan model.FetchRecord
	done  chan struct{}

	mu     sync.RWMutex
	closed bool

	// OnCommit is called after every successful batch commit.
	OnCommit func(n int, took time.Duration)
}

// DB returns the underlying sql.DB for health checks.
func (w *Writer) DB() *sql.DB { return w.db }

// New opens the database with WAL mode and creates the schema.
func New(cfg WriterConfig) (*Writer, error) {
	db, err := open(cfg.DBPath)
	if err != nil {
		return nil, err
	}

	// single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	log.Printf("[sqlite] opened journal at %s", cfg.DBPath)
	return &Writer{
		db:    db,
		queue: make(chan model.FetchRecord, defaultQueueSize),
		done:  make(chan struct{}),
	}, nil
}

func open(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}
	return db, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS fetch_journal (
			id              INTEGER PRIMARY KEY AUTOINCREMENT,
			at              INTEGER NOT NULL,
			symbol          TEXT    NOT NULL,
			interval        TEXT    NOT NULL,
			provider        TEXT    NOT NULL,
			mode            TEXT    NOT NULL,
			from_ts         INTEGER NOT NULL,
			to_ts           INTEGER NOT NULL,
			real_count      INTEGER NOT NULL DEFAULT 0,
			synthetic_count INTEGER NOT NULL DEFAULT 0,
			cached          INTEGER NOT NULL DEFAULT 0,
			err             TEXT,
			duration_ms     REAL
		);

		CREATE INDEX IF NOT EXISTS idx_fetch_journal_at ON fetch_journal (at);
		CREATE INDEX IF NOT EXISTS idx_fetch_journal_symbol ON fetch_journal (symbol, at);
	`)
	return err
}

// Record queues rec for the next batch.
func (w *Writer) Record(rec model.FetchRecord) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return
	}
	select {
	case w.queue <- rec:
	default:
		log.Printf("[sqlite] journal queue full, dropping record for %s", rec.Symbol)
	}
}

// Run drains the queue in batched transactions, flushing every batchSize
// records OR every flushDelay, whichever first. It returns after Close has
// drained the queue or ctx is cancelled.
func (w *Writer) Run(ctx context.Context) {
	defer close(w.done)

	batch := make([]model.FetchRecord, 0, defaultBatchSize)
	timer := time.NewTimer(defaultFlushDelay)
	defer timer.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		start := time.Now()
		if err := w.insertBatch(batch); err != nil {
			log.Printf("[sqlite] batch insert error: %v", err)
		} else if w.OnCommit != nil {
			w.OnCommit(len(batch), time.Since(start))
		}
		batch = batch[:0]
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return

		case rec, ok := <-w.queue:
			if !ok {
				flush()
				return
			}
			batch = append(batch, rec)
			if len(batch) >= defaultBatchSize {
				flush()
				timer.Reset(defaultFlushDelay)
			}

		case <-timer.C:
			flush()
			timer.Reset(defaultFlushDelay)
		}
	}
}

func (w *Writer) insertBatch(recs []model.FetchRecord) error {
	tx, err := w.db.Begin()
	if err != nil {
		return err
	}

	stmt, err := tx.Prepare(`
		INSERT INTO fetch_journal (at, symbol, interval, provider, mode, from_ts, to_ts,
			real_count, synthetic_count, cached, err, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, r := range recs {
		var errText sql.NullString
		if r.Err != "" {
			errText = sql.NullString{String: r.Err, Valid: true}
		}
		_, err := stmt.Exec(r.At.UnixMilli(), r.Symbol, r.Interval, r.Provider, r.Mode, r.From, r.To,
			r.RealCount, r.SyntheticCount, r.Cached, errText, r.DurationMs)
		if err != nil {
			tx.Rollback()
			return err
		}
	}

	return tx.Commit()
}

// Close stops accepting records, waits for Run to flush the queue (when Run
// was started) and closes the database.
func (w *Writer) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	close(w.queue)
	w.mu.Unlock()

	select {
	case <-w.done:
	case <-time.After(5 * time.Second):
		log.Printf("[sqlite] journal flush timed out")
	}
	return w.db.Close()
}
