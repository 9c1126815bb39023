package gateway

import (
	"math"
	"sort"
	"sync"
	"time"
)

// LatencyTracker keeps the most recent command round trips (browser request
// received → session status pushed) and reports percentiles in milliseconds.
type LatencyTracker struct {
	mu      sync.Mutex
	samples []float64
	next    int
	filled  bool
}

// NewLatencyTracker creates a tracker holding the last capacity samples.
func NewLatencyTracker(capacity int) *LatencyTracker {
	if capacity <= 0 {
		capacity = 1024
	}
	return &LatencyTracker{samples: make([]float64, capacity)}
}

// Record adds one round trip.
func (lt *LatencyTracker) Record(d time.Duration) {
	if d < 0 {
		return
	}
	lt.mu.Lock()
	lt.samples[lt.next] = float64(d.Microseconds()) / 1000
	lt.next++
	if lt.next == len(lt.samples) {
		lt.next, lt.filled = 0, true
	}
	lt.mu.Unlock()
}

// Count returns the number of retained samples.
func (lt *LatencyTracker) Count() int {
	lt.mu.Lock()
	defer lt.mu.Unlock()
	if lt.filled {
		return len(lt.samples)
	}
	return lt.next
}

// Percentiles returns p50, p95 and p99 in milliseconds; zero when empty.
func (lt *LatencyTracker) Percentiles() (p50, p95, p99 float64) {
	lt.mu.Lock()
	n := lt.next
	if lt.filled {
		n = len(lt.samples)
	}
	sorted := make([]float64, n)
	copy(sorted, lt.samples[:n])
	lt.mu.Unlock()

	if n == 0 {
		return 0, 0, 0
	}
	sort.Float64s(sorted)
	return percentile(sorted, 0.50), percentile(sorted, 0.95), percentile(sorted, 0.99)
}

// percentile interpolates linearly between closest ranks of a sorted slice.
func percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 1 {
		return sorted[0]
	}
	rank := p * float64(n-1)
	lo := int(math.Floor(rank))
	if lo+1 >= n {
		return sorted[n-1]
	}
	frac := rank - float64(lo)
	return sorted[lo]*(1-frac) + sorted[lo+1]*frac
}
