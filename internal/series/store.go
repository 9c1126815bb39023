// Package series holds the canonical candle sequence for one chart session.
package series

import (
	"sort"

	"chartdesk/internal/model"
)

// Mode selects how a batch is combined with the existing series.
type Mode int

const (
	// Initial replaces the series with the batch.
	Initial Mode = iota
	// Prepend places the batch before the existing series (historical backfill).
	Prepend
	// Append places the batch after the existing series (live refresh).
	Append
)

func (m Mode) String() string {
	switch m {
	case Initial:
		return "initial"
	case Prepend:
		return "prepend"
	case Append:
		return "append"
	default:
		return "unknown"
	}
}

// Store keeps a strictly ascending, duplicate-free candle series.
// It is owned by one session event loop and is not safe for concurrent use.
type Store struct {
	candles []model.Candle
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{}
}

// Reset clears the series. The backfill cursor is derived from the series,
// so it is cleared too.
func (s *Store) Reset() {
	s.candles = nil
}

// Merge validates batch, combines it with the existing series according to
// mode, sorts ascending and removes duplicate timestamps. For a duplicated
// time the value supplied later in merge order wins: Append lets the batch
// override existing bars, Prepend keeps existing bars. Merge never assumes
// its inputs are sorted. Returns the number of candles after the merge.
func (s *Store) Merge(batch []model.Candle, mode Mode) int {
	valid := make([]model.Candle, 0, len(batch))
	for _, c := range batch {
		if c.Valid() {
			valid = append(valid, c)
		}
	}

	var combined []model.Candle
	switch mode {
	case Prepend:
		combined = make([]model.Candle, 0, len(valid)+len(s.candles))
		combined = append(combined, valid...)
		combined = append(combined, s.candles...)
	case Append:
		combined = make([]model.Candle, 0, len(valid)+len(s.candles))
		combined = append(combined, s.candles...)
		combined = append(combined, valid...)
	default:
		combined = valid
	}

	s.candles = dedupSorted(combined)
	return len(s.candles)
}

// dedupSorted stable-sorts by time and keeps the last occurrence of each time.
func dedupSorted(in []model.Candle) []model.Candle {
	sort.SliceStable(in, func(i, j int) bool { return in[i].Time < in[j].Time })

	out := make([]model.Candle, 0, len(in))
	for i, c := range in {
		if i+1 < len(in) && in[i+1].Time == c.Time {
			continue // a later-supplied candle has the same time
		}
		out = append(out, c)
	}
	return out
}

// Candles returns a copy of the series.
func (s *Store) Candles() []model.Candle {
	out := make([]model.Candle, len(s.candles))
	copy(out, s.candles)
	return out
}

// View returns the series without copying. Callers must not modify it or hold
// it across a Merge.
func (s *Store) View() []model.Candle { return s.candles }

// Len returns the number of candles.
func (s *Store) Len() int { return len(s.candles) }

// Oldest returns the timestamp of the first candle, or 0 when empty.
// It is the cursor used to compute the next backfill window.
func (s *Store) Oldest() int64 {
	if len(s.candles) == 0 {
		return 0
	}
	return s.candles[0].Time
}

// Newest returns the timestamp of the last candle, or 0 when empty.
func (s *Store) Newest() int64 {
	if len(s.candles) == 0 {
		return 0
	}
	return s.candles[len(s.candles)-1].Time
}

// Span returns Newest − Oldest in seconds.
func (s *Store) Span() int64 {
	return s.Newest() - s.Oldest()
}

// At returns the candle at logical index i, clamped to the series bounds.
func (s *Store) At(i int) (model.Candle, bool) {
	if len(s.candles) == 0 {
		return model.Candle{}, false
	}
	if i < 0 {
		i = 0
	}
	if i >= len(s.candles) {
		i = len(s.candles) - 1
	}
	return s.candles[i], true
}

// Provenance counts candles by provenance.
func (s *Store) Provenance() map[model.Provenance]int {
	out := make(map[model.Provenance]int, 3)
	for _, c := range s.candles {
		p := c.Provenance
		if p == "" {
			p = model.ProvenanceReal
		}
		out[p]++
	}
	return out
}
