// Command chartd serves interactive stock charts over WebSocket.
package main

import (
	"context"
	"database/sql"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"chartdesk/config"
	"chartdesk/internal/datasource"
	"chartdesk/internal/gateway"
	"chartdesk/internal/logger"
	"chartdesk/internal/markethours"
	"chartdesk/internal/metrics"
	"chartdesk/internal/model"
	"chartdesk/internal/refresher"
	redisstore "chartdesk/internal/store/redis"
	sqlitestore "chartdesk/internal/store/sqlite"

	goredis "github.com/go-redis/redis/v8"
	"github.com/hashicorp/go-multierror"
)

var processStart = time.Now()

func main() {
	configPath := flag.String("config", "", "YAML config file (default $CONFIG_FILE)")
	flag.Parse()

	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("[chartd] config: %v", err)
	}
	logger.Init("chartd", logger.ParseLevel(cfg.LogLevel))
	log.Println("[chartd] starting...")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	prom := metrics.NewMetrics()
	health := metrics.NewHealthStatus()

	// Response cache (optional)
	var (
		cache *redisstore.Cache
		rdb   *goredis.Client
	)
	if cfg.RedisAddr != "" {
		cache, err = redisstore.NewCache(redisstore.CacheConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			TTL:      cfg.Fetch.CacheTTL,
		})
		if err != nil {
			log.Printf("[chartd] WARNING: redis unavailable, running without cache: %v", err)
			health.SetRedisConnected(false)
		} else {
			rdb = cache.Client()
			health.SetRedisConnected(true)
			cache.Breaker().OnStateChange = func(from, to redisstore.State) {
				prom.RedisCircuitBreakerState.Set(float64(to))
				if to == redisstore.StateOpen {
					prom.RedisCircuitBreakerTrips.Inc()
				}
				log.Printf("[redis] circuit breaker %s -> %s", from, to)
			}
		}
	}

	// Fetch journal (optional)
	var (
		journal *sqlitestore.Writer
		reader  *sqlitestore.Reader
	)
	if cfg.JournalEnabled() {
		if err := os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0o755); err != nil {
			log.Printf("[chartd] WARNING: journal dir: %v", err)
		}
		journal, err = sqlitestore.New(sqlitestore.WriterConfig{DBPath: cfg.SQLitePath})
		if err != nil {
			log.Printf("[chartd] WARNING: fetch journal disabled: %v", err)
			health.SetSQLiteOK(false)
		} else {
			journal.OnCommit = func(n int, took time.Duration) {
				prom.JournalRecords.Add(float64(n))
				prom.SQLiteCommitDur.Observe(took.Seconds())
			}
			go journal.Run(ctx)
			health.SetSQLiteOK(true)

			reader, err = sqlitestore.NewReader(cfg.SQLitePath)
			if err != nil {
				log.Printf("[chartd] WARNING: journal reader: %v", err)
			}
		}
	}

	finnhub := datasource.NewFinnhubProvider(cfg.Finnhub.APIKey)
	if cfg.Finnhub.BaseURL != "" {
		finnhub.BaseURL = cfg.Finnhub.BaseURL
	}
	yahoo := datasource.NewYahooProvider()
	if cfg.Yahoo.BaseURL != "" {
		yahoo.BaseURL = cfg.Yahoo.BaseURL
	}

	opts := datasource.Options{
		Finnhub:       finnhub,
		Yahoo:         yahoo,
		Metrics:       prom,
		Synth:         datasource.NewSynthesizer(time.Now().UnixNano()),
		Timeout:       cfg.Fetch.Timeout,
		CacheTTL:      cfg.Fetch.CacheTTL,
		RatePerMinute: cfg.Fetch.RatePerMinute,
	}
	if cache != nil {
		opts.Cache = cache
	}
	if journal != nil {
		opts.Journal = journal
	}
	adapter := datasource.NewAdapter(opts)

	prefs := gateway.NewPrefStore(nilIfAbsent(rdb), gateway.Preferences{
		Symbol:     cfg.Chart.DefaultSymbol,
		Interval:   cfg.Chart.DefaultInterval,
		Style:      cfg.Chart.DefaultStyle,
		Indicators: cfg.Chart.Indicators,
	})
	hub := gateway.NewHub(gateway.HubConfig{
		Fetcher: adapter,
		Prefs:   prefs,
		Metrics: prom,
		Health:  health,
	})

	var journalReader model.JournalReader
	if reader != nil {
		journalReader = reader
	}
	mux := http.NewServeMux()
	gateway.RegisterRoutes(mux, hub, journalReader, processStart)
	srv := &http.Server{Addr: cfg.ListenAddr, Handler: mux}

	ref, err := refresher.New(cfg.Chart.RefreshSpec, hub, prom)
	if err != nil {
		log.Fatalf("[chartd] refresher: %v", err)
	}
	ref.OnMarket = health.SetMarketOpen
	ref.Start()

	metricsSrv := metrics.NewServer(cfg.MetricsAddr, health)
	metricsSrv.Start()

	health.StartLivenessChecker(ctx, rdb, journalDB(journal), 10*time.Second)
	health.SetMarketOpen(markethours.IsMarketOpen(time.Now()))
	go hub.StartStatsBroadcast(ctx, processStart, 2*time.Second)

	go func() {
		log.Printf("[chartd] serving at http://localhost%s", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Fatalf("[chartd] server error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Println("[chartd] shutting down...")

	if err := shutdown(srv, metricsSrv, ref, hub, cache, journal, reader); err != nil {
		log.Printf("[chartd] shutdown: %v", err)
	}
	cancel()
}

// shutdown stops intake first, then sessions, then the stores they write to.
func shutdown(srv *http.Server, metricsSrv *metrics.Server, ref *refresher.Refresher, hub *gateway.Hub,
	cache *redisstore.Cache, journal *sqlitestore.Writer, reader *sqlitestore.Reader) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var result error
	ref.Stop()
	if err := srv.Shutdown(ctx); err != nil {
		result = multierror.Append(result, err)
	}
	hub.Close()
	if journal != nil {
		if err := journal.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	if reader != nil {
		if err := reader.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	if cache != nil {
		if err := cache.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	if err := metricsSrv.Stop(ctx); err != nil {
		result = multierror.Append(result, err)
	}
	return result
}

func journalDB(w *sqlitestore.Writer) *sql.DB {
	if w == nil {
		return nil
	}
	return w.DB()
}

// nilIfAbsent keeps a nil *Client from becoming a non-nil Cmdable.
func nilIfAbsent(rdb *goredis.Client) goredis.Cmdable {
	if rdb == nil {
		return nil
	}
	return rdb
}
