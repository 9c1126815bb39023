package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
)

const (
	prefsKeyPrefix = "chart:prefs:"
	prefsTTL       = 30 * 24 * time.Hour
)

// Preferences is what a returning browser gets restored.
type Preferences struct {
	Symbol     string   `json:"symbol"`
	Interval   string   `json:"interval"`
	Style      string   `json:"style"`
	Indicators []string `json:"indicators"`
}

// PrefStore persists per-browser chart preferences in Redis. Without Redis
// (or while it is unreachable) preferences live in memory for the process
// lifetime.
type PrefStore struct {
	rdb      goredis.Cmdable
	defaults Preferences

	mu  sync.RWMutex
	mem map[string]Preferences
}

// NewPrefStore creates a store. rdb may be nil.
func NewPrefStore(rdb goredis.Cmdable, defaults Preferences) *PrefStore {
	return &PrefStore{rdb: rdb, defaults: defaults, mem: make(map[string]Preferences)}
}

// Defaults returns the preferences used for unknown browsers.
func (ps *PrefStore) Defaults() Preferences { return ps.defaults }

// Load restores preferences for key, falling back to the defaults.
func (ps *PrefStore) Load(ctx context.Context, key string) Preferences {
	if key == "" {
		return ps.defaults
	}
	if ps.rdb != nil {
		cctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
		defer cancel()
		data, err := ps.rdb.Get(cctx, prefsKeyPrefix+key).Bytes()
		if err == nil {
			var p Preferences
			if json.Unmarshal(data, &p) == nil {
				return p
			}
		} else if !errors.Is(err, goredis.Nil) {
			log.Printf("[prefs] redis load failed for %s: %v", key, err)
		}
	}

	ps.mu.RLock()
	defer ps.mu.RUnlock()
	if p, ok := ps.mem[key]; ok {
		return p
	}
	return ps.defaults
}

// Save stores preferences for key. Redis failures are logged; the in-memory
// copy is always updated.
func (ps *PrefStore) Save(ctx context.Context, key string, p Preferences) {
	if key == "" {
		return
	}
	ps.mu.Lock()
	ps.mem[key] = p
	ps.mu.Unlock()

	if ps.rdb == nil {
		return
	}
	data, err := json.Marshal(p)
	if err != nil {
		return
	}
	cctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()
	if err := ps.rdb.Set(cctx, prefsKeyPrefix+key, data, prefsTTL).Err(); err != nil {
		log.Printf("[prefs] WARNING: failed to persist preferences for %s: %v", key, err)
	}
}
