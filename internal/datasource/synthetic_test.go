package datasource

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSynthesizer_ShapeAndSpacing(t *testing.T) {
	s := NewSynthesizer(7)
	candles, err := s.Generate(1_000_000, 1_000_000+100*60, 0)
	require.NoError(t, err)
	require.Len(t, candles, SyntheticCount)

	for i, c := range candles {
		assert.Equal(t, int64(1_000_000+i*60), c.Time)
		assert.True(t, c.Valid())
		assert.GreaterOrEqual(t, c.High, math.Max(c.Open, c.Close))
		assert.LessOrEqual(t, c.Low, math.Min(c.Open, c.Close))
		assert.True(t, c.VolumeMissing)
		// two decimal places
		assert.InDelta(t, math.Round(c.Close*100)/100, c.Close, 1e-9)
	}
	assert.GreaterOrEqual(t, candles[0].Open, 1000.0)
	assert.Less(t, candles[0].Open, 1500.0)
}

func TestSynthesizer_WalkIsContinuous(t *testing.T) {
	candles, err := NewSynthesizer(1).Generate(0, 10_000, 500)
	require.NoError(t, err)
	assert.Equal(t, 500.0, candles[0].Open)
	for i := 1; i < len(candles); i++ {
		assert.InDelta(t, candles[i-1].Close, candles[i].Open, 0.011)
		assert.LessOrEqual(t, math.Abs(candles[i].Close-candles[i].Open), 10.01)
	}
}

func TestSynthesizer_ClampsDegenerateRange(t *testing.T) {
	candles, err := NewSynthesizer(1).Generate(5000, 5000, 0)
	require.NoError(t, err)
	require.Len(t, candles, SyntheticCount)
	step := int64(24 * 60 * 60 / SyntheticCount)
	assert.Equal(t, int64(5000)+step, candles[1].Time)
}

func TestSynthesizer_AbortsOnZeroStep(t *testing.T) {
	// a 50 second window cannot hold 100 distinct whole-second bars
	_, err := NewSynthesizer(1).Generate(1000, 1050, 0)
	assert.ErrorIs(t, err, ErrSyntheticAborted)
}

func TestSynthesizer_Deterministic(t *testing.T) {
	a, _ := NewSynthesizer(99).Generate(0, 100_000, 0)
	b, _ := NewSynthesizer(99).Generate(0, 100_000, 0)
	assert.Equal(t, a, b)
}
