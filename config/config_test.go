package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"CONFIG_FILE", "FINNHUB_API_KEY", "REDIS_ADDR", "SQLITE_PATH", "LISTEN_ADDR",
		"METRICS_ADDR", "FETCH_TIMEOUT", "CACHE_TTL", "REFRESH_SPEC", "LOG_LEVEL",
	} {
		t.Setenv(k, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, ":9090", cfg.MetricsAddr)
	assert.Equal(t, 10*time.Second, cfg.Fetch.Timeout)
	assert.Equal(t, 5*time.Minute, cfg.Fetch.CacheTTL)
	assert.Equal(t, 60, cfg.Fetch.RatePerMinute)
	assert.Equal(t, "1d", cfg.Chart.DefaultInterval)
	assert.Empty(t, cfg.RedisAddr, "redis is opt-in")
	assert.True(t, cfg.JournalEnabled())

	t.Setenv("SQLITE_PATH", "off")
	cfg, err = Load("")
	require.NoError(t, err)
	assert.False(t, cfg.JournalEnabled())
}

func TestLoad_YAMLThenEnv(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "chartd.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
finnhub:
  api_key: from-file
fetch:
  timeout: 3s
  cache_ttl: 1m
chart:
  default_symbol: INFY.NS
  indicators: [rsi, sma20]
redis_addr: redis:6379
`), 0o644))

	t.Setenv("FINNHUB_API_KEY", "from-env")
	t.Setenv("CACHE_TTL", "90s")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Finnhub.APIKey)
	assert.Equal(t, 3*time.Second, cfg.Fetch.Timeout)
	assert.Equal(t, 90*time.Second, cfg.Fetch.CacheTTL)
	assert.Equal(t, "INFY.NS", cfg.Chart.DefaultSymbol)
	assert.Equal(t, []string{"rsi", "sma20"}, cfg.Chart.Indicators)
	assert.Equal(t, "redis:6379", cfg.RedisAddr)
}

func TestLoad_ConfigFileEnvAndMissingFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "absent.yaml"))
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.ListenAddr)
}

func TestLoad_Errors(t *testing.T) {
	clearEnv(t)
	t.Setenv("FETCH_TIMEOUT", "soon")
	_, err := Load("")
	assert.ErrorContains(t, err, "FETCH_TIMEOUT")

	clearEnv(t)
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("fetch: [unclosed"), 0o644))
	_, err = Load(path)
	assert.ErrorContains(t, err, "parse config")

	clearEnv(t)
	t.Setenv("LISTEN_ADDR", ":7000")
	t.Setenv("METRICS_ADDR", ":7000")
	_, err = Load("")
	assert.ErrorContains(t, err, "must differ")
}
