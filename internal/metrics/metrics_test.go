package metrics

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewMetricsWith_RegistersOnGivenRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetricsWith(reg)

	m.FetchesTotal.WithLabelValues("yahoo", "ok").Inc()
	m.SyntheticCandles.Add(100)

	if got := testutil.ToFloat64(m.FetchesTotal.WithLabelValues("yahoo", "ok")); got != 1 {
		t.Errorf("expected 1 fetch, got %f", got)
	}
	if got := testutil.ToFloat64(m.SyntheticCandles); got != 100 {
		t.Errorf("expected 100 synthetic candles, got %f", got)
	}

	// a second set on a separate registry must not panic
	NewMetricsWith(prometheus.NewRegistry())
}

func TestHealth_OptionalDepsIgnoredUntilEnabled(t *testing.T) {
	h := NewHealthStatus()
	if got := h.Overall(); got != "healthy" {
		t.Fatalf("fresh status should be healthy, got %s", got)
	}
	h.SetRedisConnected(false)
	if got := h.Overall(); got != "degraded" {
		t.Fatalf("expected degraded with redis down, got %s", got)
	}
	h.SetSQLiteOK(false)
	if got := h.Overall(); got != "unhealthy" {
		t.Fatalf("expected unhealthy with both down, got %s", got)
	}
}

func TestHealth_ServeHTTP(t *testing.T) {
	h := NewHealthStatus()
	h.SetSessions(3)
	h.SetRedisConnected(true)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body struct {
		Status   string `json:"status"`
		Sessions int    `json:"sessions"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Status != "healthy" || body.Sessions != 3 {
		t.Errorf("unexpected body %+v", body)
	}

	h.SetRedisConnected(false)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503 when degraded, got %d", rec.Code)
	}
}
