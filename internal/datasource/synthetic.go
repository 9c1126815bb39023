package datasource

import (
	"fmt"
	"math"
	"math/rand"
	"sync"

	"chartdesk/internal/model"

	"github.com/shopspring/decimal"
)

const (
	// SyntheticCount is the number of bars generated per fallback.
	SyntheticCount = 100

	defaultBasePrice = 1000.0
	basePriceSpread  = 500.0
	maxStep          = 20.0 // close moves by up to ±maxStep/2 per bar
	maxWick          = 10.0
	clampSpanSecs    = 24 * 60 * 60
)

// Synthesizer generates random-walk bars used when a provider fails during an
// initial load or backfill. Bars are tagged synthetic and carry the
// placeholder volume.
type Synthesizer struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewSynthesizer creates a generator. A fixed seed gives a reproducible walk.
func NewSynthesizer(seed int64) *Synthesizer {
	return &Synthesizer{rng: rand.New(rand.NewSource(seed))}
}

// Generate builds SyntheticCount bars spaced evenly over [start, end).
// seedOpen anchors the walk (the oldest loaded open during backfill); zero
// picks a random base in [1000, 1500). end ≤ start is clamped to a one-day
// span.
func (s *Synthesizer) Generate(start, end int64, seedOpen float64) ([]model.Candle, error) {
	if end <= start {
		end = start + clampSpanSecs
	}
	step := (end - start) / SyntheticCount
	if step <= 0 {
		return nil, fmt.Errorf("%w: time step %d over [%d, %d]", ErrSyntheticAborted, step, start, end)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	price := seedOpen
	if price <= 0 || math.IsNaN(price) || math.IsInf(price, 0) {
		price = defaultBasePrice + s.rng.Float64()*basePriceSpread
	}

	out := make([]model.Candle, SyntheticCount)
	for i := range out {
		open := price
		close := price + (s.rng.Float64()-0.5)*maxStep
		high := math.Max(open, close) + s.rng.Float64()*maxWick
		low := math.Min(open, close) - s.rng.Float64()*maxWick

		out[i] = model.Candle{
			Time:          start + int64(i)*step,
			Open:          round2(open),
			High:          round2(high),
			Low:           round2(low),
			Close:         round2(close),
			Volume:        model.PlaceholderVolume,
			VolumeMissing: true,
			Provenance:    model.ProvenanceSynthetic,
		}
		price = close
	}
	return out, nil
}

func round2(v float64) float64 {
	f, _ := decimal.NewFromFloat(v).Round(2).Float64()
	return f
}
