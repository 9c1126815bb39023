// Package config loads chartd settings from an optional YAML file, then
// environment variables, then defaults.
package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Finnhub struct {
		APIKey  string `yaml:"api_key"`
		BaseURL string `yaml:"base_url"`
	} `yaml:"finnhub"`
	Yahoo struct {
		BaseURL string `yaml:"base_url"`
	} `yaml:"yahoo"`

	Fetch struct {
		Timeout       time.Duration `yaml:"timeout"`
		RatePerMinute int           `yaml:"rate_per_minute"`
		CacheTTL      time.Duration `yaml:"cache_ttl"`
	} `yaml:"fetch"`

	Chart struct {
		DefaultSymbol   string   `yaml:"default_symbol"`
		DefaultInterval string   `yaml:"default_interval"`
		DefaultStyle    string   `yaml:"default_style"`
		Indicators      []string `yaml:"indicators"`
		RefreshSpec     string   `yaml:"refresh_spec"`
	} `yaml:"chart"`

	// Infrastructure. An empty RedisAddr disables the response cache and
	// SQLitePath "off" disables the fetch journal.
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	SQLitePath    string `yaml:"sqlite_path"`
	ListenAddr    string `yaml:"listen_addr"`
	MetricsAddr   string `yaml:"metrics_addr"`
	LogLevel      string `yaml:"log_level"`
}

// Load reads path (when it exists), applies environment overrides and fills
// defaults. An empty path uses CONFIG_FILE.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("CONFIG_FILE")
	}
	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if len(data) > 0 {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	if cfg.Finnhub.APIKey == "" {
		log.Println("[config] FINNHUB_API_KEY not set: US symbols will show synthetic data")
	}
	return cfg, cfg.Validate()
}

func (c *Config) applyEnv() error {
	setString(&c.Finnhub.APIKey, "FINNHUB_API_KEY")
	setString(&c.Finnhub.BaseURL, "FINNHUB_BASE_URL")
	setString(&c.Yahoo.BaseURL, "YAHOO_BASE_URL")
	setString(&c.RedisAddr, "REDIS_ADDR")
	setString(&c.RedisPassword, "REDIS_PASSWORD")
	setString(&c.SQLitePath, "SQLITE_PATH")
	setString(&c.ListenAddr, "LISTEN_ADDR")
	setString(&c.MetricsAddr, "METRICS_ADDR")
	setString(&c.LogLevel, "LOG_LEVEL")
	setString(&c.Chart.RefreshSpec, "REFRESH_SPEC")
	setString(&c.Chart.DefaultSymbol, "DEFAULT_SYMBOL")

	if err := setDuration(&c.Fetch.Timeout, "FETCH_TIMEOUT"); err != nil {
		return err
	}
	if err := setDuration(&c.Fetch.CacheTTL, "CACHE_TTL"); err != nil {
		return err
	}
	if v := os.Getenv("FETCH_RATE_PER_MINUTE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("FETCH_RATE_PER_MINUTE: %w", err)
		}
		c.Fetch.RatePerMinute = n
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.ListenAddr == "" {
		c.ListenAddr = ":8080"
	}
	if c.MetricsAddr == "" {
		c.MetricsAddr = ":9090"
	}
	if c.SQLitePath == "" {
		c.SQLitePath = "data/chartd.db"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Fetch.Timeout == 0 {
		c.Fetch.Timeout = 10 * time.Second
	}
	if c.Fetch.CacheTTL == 0 {
		c.Fetch.CacheTTL = 5 * time.Minute
	}
	if c.Fetch.RatePerMinute == 0 {
		c.Fetch.RatePerMinute = 60
	}
	if c.Chart.DefaultInterval == "" {
		c.Chart.DefaultInterval = "1d"
	}
	if c.Chart.DefaultStyle == "" {
		c.Chart.DefaultStyle = "candlestick"
	}
	if c.Chart.RefreshSpec == "" {
		c.Chart.RefreshSpec = "*/30 * * * * *"
	}
}

// JournalEnabled reports whether the SQLite fetch journal is on.
func (c *Config) JournalEnabled() bool { return c.SQLitePath != "off" }

// Validate checks values that would otherwise fail at first use.
func (c *Config) Validate() error {
	if c.Fetch.Timeout < 0 {
		return fmt.Errorf("fetch.timeout must be positive")
	}
	if c.Fetch.CacheTTL < 0 {
		return fmt.Errorf("fetch.cache_ttl must be positive")
	}
	if c.Fetch.RatePerMinute < 0 {
		return fmt.Errorf("fetch.rate_per_minute must be positive")
	}
	if c.ListenAddr == c.MetricsAddr {
		return fmt.Errorf("listen_addr and metrics_addr must differ (both %s)", c.ListenAddr)
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = d
	return nil
}
