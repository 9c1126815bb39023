package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"chartdesk/internal/model"

	goredis "github.com/go-redis/redis/v8"
)

// unreachableClient points at a port nothing listens on, so every call fails
// fast without a Redis server.
func unreachableClient() *goredis.Client {
	return goredis.NewClient(&goredis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
}

func TestCache_ImplementsPort(t *testing.T) {
	var _ model.ResponseCache = (*Cache)(nil)
}

func TestCache_UnreachableRedisIsMissAndTripsBreaker(t *testing.T) {
	cb := NewCircuitBreaker(2, time.Minute)
	c := NewCacheWithClient(unreachableClient(), cb, 0)
	defer c.Close()

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if _, ok := c.Get(ctx, "chart:cache:yahoo:TCS.NS:1d:1:2"); ok {
			t.Fatal("expected miss from unreachable redis")
		}
	}
	if cb.CurrentState() != StateOpen {
		t.Fatalf("expected breaker open after repeated failures, got %v", cb.CurrentState())
	}

	// open breaker: calls return immediately
	start := time.Now()
	c.Set(ctx, "k", []model.Candle{{Time: 1, Open: 1, High: 1, Low: 1, Close: 1}})
	if _, ok := c.Get(ctx, "k"); ok {
		t.Fatal("expected miss while breaker open")
	}
	if time.Since(start) > 40*time.Millisecond {
		t.Errorf("open breaker should short-circuit, took %v", time.Since(start))
	}
}

func TestCache_DefaultTTL(t *testing.T) {
	c := NewCacheWithClient(unreachableClient(), NewCircuitBreaker(1, time.Second), 0)
	defer c.Close()
	if c.ttl != 5*time.Minute {
		t.Errorf("expected 5m default ttl, got %v", c.ttl)
	}
	if c.Breaker().Benign == nil {
		t.Error("cache should classify redis.Nil as benign")
	}
}

// memKV keeps values in a map and records the TTL of every write.
type memKV struct {
	vals map[string][]byte
	ttls map[string]time.Duration
	err  error
}

func newMemKV() *memKV {
	return &memKV{vals: make(map[string][]byte), ttls: make(map[string]time.Duration)}
}

func (m *memKV) Get(_ context.Context, key string) *goredis.StringCmd {
	if m.err != nil {
		return goredis.NewStringResult("", m.err)
	}
	v, ok := m.vals[key]
	if !ok {
		return goredis.NewStringResult("", goredis.Nil)
	}
	return goredis.NewStringResult(string(v), nil)
}

func (m *memKV) Set(_ context.Context, key string, value interface{}, ttl time.Duration) *goredis.StatusCmd {
	if m.err != nil {
		return goredis.NewStatusResult("", m.err)
	}
	m.vals[key] = value.([]byte)
	m.ttls[key] = ttl
	return goredis.NewStatusResult("OK", nil)
}

func TestCache_RoundTripMarksCached(t *testing.T) {
	kv := newMemKV()
	c := newCache(kv, NewCircuitBreaker(3, time.Minute), 2*time.Minute)
	ctx := context.Background()

	in := []model.Candle{
		{Time: 100, Open: 10, High: 12, Low: 9, Close: 11, Volume: 500, Provenance: model.ProvenanceReal},
		{Time: 200, Open: 11, High: 13, Low: 10, Close: 12, Volume: model.PlaceholderVolume, VolumeMissing: true},
		{Time: 300, Open: 12, High: 14, Low: 11, Close: 13, Volume: 700, Provenance: model.ProvenanceSynthetic},
	}
	c.Set(ctx, "chart:cache:finnhub:AAPL:D:1:2", in)
	if got := kv.ttls["chart:cache:finnhub:AAPL:D:1:2"]; got != 2*time.Minute {
		t.Fatalf("expected 2m ttl, got %v", got)
	}

	out, ok := c.Get(ctx, "chart:cache:finnhub:AAPL:D:1:2")
	if !ok {
		t.Fatal("expected hit")
	}
	if len(out) != 3 {
		t.Fatalf("expected 3 candles, got %d", len(out))
	}
	if out[0].Provenance != model.ProvenanceCached || out[1].Provenance != model.ProvenanceCached {
		t.Errorf("real bars must come back as cached, got %q %q", out[0].Provenance, out[1].Provenance)
	}
	if out[2].Provenance != model.ProvenanceSynthetic {
		t.Errorf("synthetic bars keep their provenance, got %q", out[2].Provenance)
	}
	if out[1].Close != 12 || !out[1].VolumeMissing || out[0].Volume != 500 {
		t.Errorf("values not preserved: %+v", out)
	}
	if in[0].Provenance != model.ProvenanceReal {
		t.Error("Get must not alter the stored input")
	}
}

func TestCache_MissAndEmptyBatch(t *testing.T) {
	kv := newMemKV()
	cb := NewCircuitBreaker(1, time.Minute)
	c := newCache(kv, cb, 0)
	ctx := context.Background()

	if _, ok := c.Get(ctx, "absent"); ok {
		t.Fatal("expected miss")
	}
	if cb.CurrentState() != StateClosed {
		t.Error("a missing key must not count as a failure")
	}

	c.Set(ctx, "empty", nil)
	if _, stored := kv.vals["empty"]; stored {
		t.Error("empty batches must not be cached")
	}
	if c.Close() != nil {
		t.Error("close without a client should be a no-op")
	}
}

func TestCache_CorruptValueIsMiss(t *testing.T) {
	kv := newMemKV()
	kv.vals["bad"] = []byte("{not json")
	c := newCache(kv, NewCircuitBreaker(3, time.Minute), 0)
	if _, ok := c.Get(context.Background(), "bad"); ok {
		t.Fatal("undecodable value should be a miss")
	}
}

func TestCache_ErrorsTripBreaker(t *testing.T) {
	kv := newMemKV()
	kv.err = errors.New("connection reset")
	cb := NewCircuitBreaker(2, time.Minute)
	c := newCache(kv, cb, 0)
	ctx := context.Background()

	c.Set(ctx, "k", []model.Candle{{Time: 1, Open: 1, High: 1, Low: 1, Close: 1}})
	c.Get(ctx, "k")
	if cb.CurrentState() != StateOpen {
		t.Fatalf("expected breaker open, got %v", cb.CurrentState())
	}
}
