package series

import (
	"math"
	"testing"

	"chartdesk/internal/model"
)

func bar(ts int64, close float64) model.Candle {
	return model.Candle{Time: ts, Open: close, High: close + 1, Low: close - 1, Close: close, Volume: 10}
}

func assertAscending(t *testing.T, candles []model.Candle) {
	t.Helper()
	for i := 1; i < len(candles); i++ {
		if candles[i].Time <= candles[i-1].Time {
			t.Fatalf("series not strictly ascending at %d: %d after %d", i, candles[i].Time, candles[i-1].Time)
		}
	}
}

func TestMerge_InitialSortsAndDedups(t *testing.T) {
	s := NewStore()
	n := s.Merge([]model.Candle{bar(300, 3), bar(100, 1), bar(200, 2), bar(100, 9)}, Initial)
	if n != 3 {
		t.Fatalf("expected 3 candles, got %d", n)
	}
	got := s.Candles()
	assertAscending(t, got)
	// later-supplied duplicate wins
	if got[0].Close != 9 {
		t.Errorf("expected duplicate at 100 to keep close 9, got %f", got[0].Close)
	}
}

func TestMerge_InitialReplaces(t *testing.T) {
	s := NewStore()
	s.Merge([]model.Candle{bar(100, 1), bar(200, 2)}, Initial)
	s.Merge([]model.Candle{bar(500, 5)}, Initial)
	if s.Len() != 1 || s.Oldest() != 500 {
		t.Fatalf("initial merge should replace series, got len=%d oldest=%d", s.Len(), s.Oldest())
	}
}

func TestMerge_DropsInvalid(t *testing.T) {
	s := NewStore()
	bad := bar(200, 2)
	bad.High = math.NaN()
	s.Merge([]model.Candle{bar(100, 1), bad, bar(0, 3), bar(-5, 4), bar(300, 3)}, Initial)
	if s.Len() != 2 {
		t.Fatalf("expected invalid candles dropped, got %d", s.Len())
	}
	if s.Oldest() != 100 || s.Newest() != 300 {
		t.Errorf("unexpected bounds %d..%d", s.Oldest(), s.Newest())
	}
}

func TestMerge_PrependNoBoundaryDuplicate(t *testing.T) {
	s := NewStore()
	s.Merge([]model.Candle{bar(300, 3), bar(400, 4), bar(500, 5)}, Initial)
	spanBefore := s.Span()

	// backfill overlaps the oldest bar
	s.Merge([]model.Candle{bar(100, 1), bar(200, 2), bar(300, 99)}, Prepend)

	got := s.Candles()
	assertAscending(t, got)
	if len(got) != 5 {
		t.Fatalf("expected 5 candles, got %d", len(got))
	}
	if got[2].Close != 3 {
		t.Errorf("prepend must keep the existing bar at the boundary, got close %f", got[2].Close)
	}
	if s.Span() < spanBefore {
		t.Errorf("prepend shrank span: %d < %d", s.Span(), spanBefore)
	}
	if s.Oldest() != 100 {
		t.Errorf("expected cursor to move to 100, got %d", s.Oldest())
	}
}

func TestMerge_PrependEmptyBatchKeepsSeries(t *testing.T) {
	s := NewStore()
	s.Merge([]model.Candle{bar(300, 3), bar(400, 4)}, Initial)
	s.Merge(nil, Prepend)
	if s.Len() != 2 || s.Oldest() != 300 {
		t.Fatalf("empty prepend changed series: len=%d oldest=%d", s.Len(), s.Oldest())
	}
}

func TestMerge_AppendBatchOverridesExisting(t *testing.T) {
	s := NewStore()
	s.Merge([]model.Candle{bar(100, 1), bar(200, 2)}, Initial)
	s.Merge([]model.Candle{bar(200, 20), bar(300, 3)}, Append)

	got := s.Candles()
	assertAscending(t, got)
	if len(got) != 3 {
		t.Fatalf("expected 3 candles, got %d", len(got))
	}
	if got[1].Close != 20 {
		t.Errorf("append must refresh the forming bar, got close %f", got[1].Close)
	}
}

func TestMerge_UnsortedInputsAnyMode(t *testing.T) {
	s := NewStore()
	s.Merge([]model.Candle{bar(900, 9), bar(700, 7)}, Initial)
	s.Merge([]model.Candle{bar(500, 5), bar(100, 1), bar(300, 3)}, Prepend)
	s.Merge([]model.Candle{bar(1100, 11), bar(1000, 10)}, Append)
	got := s.Candles()
	assertAscending(t, got)
	if len(got) != 7 {
		t.Fatalf("expected 7 candles, got %d", len(got))
	}
}

func TestCandles_ReturnsCopy(t *testing.T) {
	s := NewStore()
	s.Merge([]model.Candle{bar(100, 1)}, Initial)
	c := s.Candles()
	c[0].Close = 42
	if s.View()[0].Close != 1 {
		t.Error("Candles must return a copy")
	}
}

func TestReset(t *testing.T) {
	s := NewStore()
	s.Merge([]model.Candle{bar(100, 1), bar(200, 2)}, Initial)
	s.Reset()
	if s.Len() != 0 || s.Oldest() != 0 || s.Newest() != 0 || s.Span() != 0 {
		t.Fatal("reset should clear series and cursor")
	}
}

func TestAt_Clamps(t *testing.T) {
	s := NewStore()
	if _, ok := s.At(0); ok {
		t.Fatal("At on empty store should report false")
	}
	s.Merge([]model.Candle{bar(100, 1), bar(200, 2), bar(300, 3)}, Initial)
	if c, _ := s.At(-4); c.Time != 100 {
		t.Errorf("expected clamp to first, got %d", c.Time)
	}
	if c, _ := s.At(99); c.Time != 300 {
		t.Errorf("expected clamp to last, got %d", c.Time)
	}
}

func TestProvenanceCounts(t *testing.T) {
	s := NewStore()
	a, b, c := bar(100, 1), bar(200, 2), bar(300, 3)
	b.Provenance = model.ProvenanceSynthetic
	c.Provenance = model.ProvenanceCached
	s.Merge([]model.Candle{a, b, c}, Initial)
	p := s.Provenance()
	if p[model.ProvenanceReal] != 1 || p[model.ProvenanceSynthetic] != 1 || p[model.ProvenanceCached] != 1 {
		t.Errorf("unexpected provenance counts %v", p)
	}
}
