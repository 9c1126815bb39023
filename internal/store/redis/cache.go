package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"chartdesk/internal/model"

	goredis "github.com/go-redis/redis/v8"
)

const (
	defaultCacheTTL = 5 * time.Minute
	opTimeout       = 500 * time.Millisecond
)

// CacheConfig configures the response cache.
type CacheConfig struct {
	Addr     string // Redis address, e.g. "localhost:6379"
	Password string
	DB       int
	TTL      time.Duration // default 5m

	// Breaker settings; defaults 5 failures / 30s.
	MaxFailures int
	Cooldown    time.Duration
}

// Cache stores raw provider responses keyed by request. Every Redis call goes
// through a circuit breaker so an outage costs one timeout per cool-down, not
// one per fetch. Errors are logged and reported as misses.
type Cache struct {
	client *goredis.Client
	kv     kv
	cb     *CircuitBreaker
	ttl    time.Duration
}

// kv is the part of the Redis client the cache reads and writes through.
type kv interface {
	Get(ctx context.Context, key string) *goredis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *goredis.StatusCmd
}

// NewCache connects to Redis and pings the server.
func NewCache(cfg CacheConfig) (*Cache, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	maxFailures, cooldown := cfg.MaxFailures, cfg.Cooldown
	if maxFailures <= 0 {
		maxFailures = 5
	}
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}

	log.Printf("[redis] cache connected to %s", cfg.Addr)
	return NewCacheWithClient(client, NewCircuitBreaker(maxFailures, cooldown), cfg.TTL), nil
}

// NewCacheWithClient wraps an existing client. A zero ttl means 5 minutes.
func NewCacheWithClient(client *goredis.Client, cb *CircuitBreaker, ttl time.Duration) *Cache {
	c := newCache(client, cb, ttl)
	c.client = client
	return c
}

func newCache(store kv, cb *CircuitBreaker, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	cb.Benign = func(err error) bool { return errors.Is(err, goredis.Nil) }
	return &Cache{kv: store, cb: cb, ttl: ttl}
}

// Client returns the underlying Redis client for health checks and other
// Redis-backed stores.
func (c *Cache) Client() *goredis.Client { return c.client }

// Breaker exposes the circuit breaker so callers can observe transitions.
func (c *Cache) Breaker() *CircuitBreaker { return c.cb }

// Get returns the cached candles for key, marked as cached.
func (c *Cache) Get(ctx context.Context, key string) ([]model.Candle, bool) {
	var raw []byte
	err := c.cb.Execute(func() error {
		opCtx, cancel := context.WithTimeout(ctx, opTimeout)
		defer cancel()
		b, err := c.kv.Get(opCtx, key).Bytes()
		raw = b
		return err
	})
	switch {
	case errors.Is(err, goredis.Nil):
		return nil, false
	case errors.Is(err, ErrCircuitOpen):
		return nil, false
	case err != nil:
		log.Printf("[redis] cache get %s: %v", key, err)
		return nil, false
	}

	var candles []model.Candle
	if err := json.Unmarshal(raw, &candles); err != nil {
		log.Printf("[redis] cache decode %s: %v", key, err)
		return nil, false
	}
	for i := range candles {
		if candles[i].Provenance != model.ProvenanceSynthetic {
			candles[i].Provenance = model.ProvenanceCached
		}
	}
	return candles, true
}

// Set stores candles under key with the configured TTL. Empty batches are not
// cached so an upstream hiccup is retried on the next request.
func (c *Cache) Set(ctx context.Context, key string, candles []model.Candle) {
	if len(candles) == 0 {
		return
	}
	data, err := json.Marshal(candles)
	if err != nil {
		log.Printf("[redis] cache encode %s: %v", key, err)
		return
	}
	err = c.cb.Execute(func() error {
		opCtx, cancel := context.WithTimeout(ctx, opTimeout)
		defer cancel()
		return c.kv.Set(opCtx, key, data, c.ttl).Err()
	})
	if err != nil && !errors.Is(err, ErrCircuitOpen) {
		log.Printf("[redis] cache set %s: %v", key, err)
	}
}

// Close releases the Redis connection pool.
func (c *Cache) Close() error {
	if c.client == nil {
		return nil
	}
	return c.client.Close()
}
