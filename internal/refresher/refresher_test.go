package refresher

import (
	"sort"
	"testing"
	"time"

	"chartdesk/internal/markethours"
	"chartdesk/internal/metrics"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTarget struct {
	symbols   []string
	refreshed []string
}

func (f *fakeTarget) RefreshWhere(keep func(string) bool) int {
	for _, s := range f.symbols {
		if keep(s) {
			f.refreshed = append(f.refreshed, s)
		}
	}
	return len(f.refreshed)
}

func newTest(t *testing.T, at time.Time) (*Refresher, *fakeTarget, *metrics.Metrics) {
	t.Helper()
	target := &fakeTarget{symbols: []string{"AAPL", "INFY.NS", "TCS.BO"}}
	m := metrics.NewMetricsWith(prometheus.NewRegistry())
	r, err := New("", target, m)
	require.NoError(t, err)
	r.now = func() time.Time { return at }
	return r, target, m
}

func TestTick_OnlyOpenExchanges(t *testing.T) {
	at := time.Date(2026, 3, 2, 10, 0, 0, 0, markethours.IST) // NSE open, US closed
	r, target, m := newTest(t, at)

	var reported []bool
	r.OnMarket = func(open bool) { reported = append(reported, open) }

	assert.Equal(t, 2, r.Tick())
	assert.Equal(t, []bool{true}, reported)
	sort.Strings(target.refreshed)
	assert.Equal(t, []string{"INFY.NS", "TCS.BO"}, target.refreshed)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.MarketState))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RefreshTicks))
}

func TestTick_AllClosed(t *testing.T) {
	at := time.Date(2026, 3, 7, 12, 0, 0, 0, time.UTC) // Saturday
	r, target, m := newTest(t, at)

	assert.Equal(t, 0, r.Tick())
	assert.Empty(t, target.refreshed)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.MarketState))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.RefreshTicks))
}

func TestNew_RejectsBadSpec(t *testing.T) {
	_, err := New("every now and then", &fakeTarget{}, nil)
	assert.Error(t, err)

	r, err := New("@every 1m", &fakeTarget{}, nil)
	require.NoError(t, err)
	r.Start()
	r.Stop()
}
