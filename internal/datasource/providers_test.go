package datasource

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"chartdesk/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsExchangeListed(t *testing.T) {
	assert.True(t, IsExchangeListed("RELIANCE.NS"))
	assert.True(t, IsExchangeListed("tcs.bo"))
	assert.False(t, IsExchangeListed("AAPL"))
	assert.False(t, IsExchangeListed("NS"))
}

func TestFinnhubSymbolStripsNSE(t *testing.T) {
	assert.Equal(t, "RELIANCE", finnhubSymbol("RELIANCE.NS"))
	assert.Equal(t, "AAPL", finnhubSymbol("AAPL"))
	assert.Equal(t, "TCS.BO", finnhubSymbol("TCS.BO"))
}

func TestFinnhub_ParsesColumnarPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/stock/candle", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "AAPL", q.Get("symbol"))
		assert.Equal(t, "D", q.Get("resolution"))
		assert.Equal(t, "100", q.Get("from"))
		assert.Equal(t, "300", q.Get("to"))
		assert.Equal(t, "secret", q.Get("token"))
		w.Write([]byte(`{"s":"ok","t":[100,200],"o":[10,11],"h":[12,13],"l":[9,10],"c":[11,12],"v":[500,600]}`))
	}))
	defer srv.Close()

	p := NewFinnhubProvider("secret")
	p.BaseURL = srv.URL
	candles, err := p.Candles(context.Background(), "AAPL", Resolve("1y"), 100, 300)
	require.NoError(t, err)
	require.Len(t, candles, 2)
	assert.Equal(t, model.Candle{Time: 200, Open: 11, High: 13, Low: 10, Close: 12, Volume: 600, Provenance: model.ProvenanceReal}, candles[1])
}

func TestFinnhub_MissingVolumeUsesPlaceholder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"s":"ok","t":[100],"o":[10],"h":[12],"l":[9],"c":[11]}`))
	}))
	defer srv.Close()

	p := NewFinnhubProvider("k")
	p.BaseURL = srv.URL
	candles, err := p.Candles(context.Background(), "AAPL", Resolve("1d"), 1, 2)
	require.NoError(t, err)
	require.Len(t, candles, 1)
	assert.Equal(t, model.PlaceholderVolume, candles[0].Volume)
	assert.True(t, candles[0].VolumeMissing)
}

func TestFinnhub_SkipsNullBars(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"s":"ok","t":[100,200,300],"o":[10,11,null],"h":[12,13,14],"l":[9,10,11],"c":[11,null,13],"v":[500,null,700]}`))
	}))
	defer srv.Close()

	p := NewFinnhubProvider("k")
	p.BaseURL = srv.URL
	candles, err := p.Candles(context.Background(), "AAPL", Resolve("1y"), 1, 400)
	require.NoError(t, err)
	require.Len(t, candles, 1)
	assert.Equal(t, int64(100), candles[0].Time)
	assert.Equal(t, 11.0, candles[0].Close)
}

func TestFinnhub_NullVolumeUsesPlaceholder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"s":"ok","t":[100],"o":[10],"h":[12],"l":[9],"c":[11],"v":[null]}`))
	}))
	defer srv.Close()

	p := NewFinnhubProvider("k")
	p.BaseURL = srv.URL
	candles, err := p.Candles(context.Background(), "AAPL", Resolve("1y"), 1, 400)
	require.NoError(t, err)
	require.Len(t, candles, 1)
	assert.True(t, candles[0].VolumeMissing)
}

func TestFinnhub_NoDataIsEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"s":"no_data"}`))
	}))
	defer srv.Close()

	p := NewFinnhubProvider("k")
	p.BaseURL = srv.URL
	candles, err := p.Candles(context.Background(), "AAPL", Resolve("1d"), 1, 2)
	require.NoError(t, err)
	assert.Empty(t, candles)
}

func TestFinnhub_Non200IsFetchFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	p := NewFinnhubProvider("k")
	p.BaseURL = srv.URL
	_, err := p.Candles(context.Background(), "AAPL", Resolve("1d"), 1, 2)
	assert.ErrorIs(t, err, ErrFetchFailure)
}

func TestYahoo_ParsesChartAndSkipsNullBars(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v8/finance/chart/RELIANCE.NS", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "1000", q.Get("period1"))
		assert.Equal(t, "2000", q.Get("period2"))
		assert.Equal(t, "1wk", q.Get("interval"))
		assert.NotEmpty(t, r.Header.Get("User-Agent"))
		w.Write([]byte(`{"chart":{"result":[{"timestamp":[300,100,200],
			"indicators":{"quote":[{
				"open":[12,10,null],"high":[12,12,null],"low":[8,9,null],"close":[9,11,null],"volume":[null,700,null]
			}]}}],"error":null}}`))
	}))
	defer srv.Close()

	p := NewYahooProvider()
	p.BaseURL = srv.URL
	candles, err := p.Candles(context.Background(), "RELIANCE.NS", Resolve("5y"), 1000, 2000)
	require.NoError(t, err)
	require.Len(t, candles, 2)
	assert.Equal(t, int64(100), candles[0].Time, "result must be sorted")
	assert.Equal(t, 700.0, candles[0].Volume)
	assert.True(t, candles[1].VolumeMissing)
}

func TestYahoo_APIErrorIsFetchFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"chart":{"result":null,"error":{"code":"Not Found","description":"No data found"}}}`))
	}))
	defer srv.Close()

	p := NewYahooProvider()
	p.BaseURL = srv.URL
	_, err := p.Candles(context.Background(), "XYZ.NS", Resolve("1d"), 1, 2)
	assert.ErrorIs(t, err, ErrFetchFailure)
}
