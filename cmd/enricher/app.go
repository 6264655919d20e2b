package main

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/Sternrassler/api-enricher/internal/config"
	"github.com/Sternrassler/api-enricher/pkg/client"
	"github.com/Sternrassler/api-enricher/pkg/enrich"
	"github.com/Sternrassler/api-enricher/pkg/fetch"
	"github.com/Sternrassler/api-enricher/pkg/logging"
	"github.com/Sternrassler/api-enricher/pkg/metrics"
	"github.com/Sternrassler/api-enricher/pkg/pagination"
	"github.com/Sternrassler/api-enricher/pkg/report"
	"github.com/Sternrassler/api-enricher/pkg/resource"
)

// app holds what the subcommands share: configuration, logger, the
// optional redis connection and the metrics server.
type app struct {
	v      *viper.Viper
	cfg    *config.Config
	logger zerolog.Logger
	redis  *redis.Client

	logOutput   io.Writer
	metricsAddr net.Addr
	metricsDone <-chan error
	stopMetrics context.CancelFunc
}

func newApp(v *viper.Viper) *app {
	return &app{v: v, logOutput: os.Stderr, logger: zerolog.Nop()}
}

// flag name -> config key
var flagKeys = map[string]string{
	"swapi-base-url":   "swapi_base_url",
	"trippin-base-url": "trippin_base_url",
	"employees-url":    "employees_url",
	"user-agent":       "user_agent",
	"timeout":          "timeout",
	"fetch-timeout":    "fetch_timeout",
	"concurrency":      "concurrency",
	"workers":          "workers",
	"max-retries":      "max_retries",
	"rate-limit":       "rate_limit",
	"rate-burst":       "rate_burst",
	"redis-url":        "redis_url",
	"cache-ttl":        "cache_ttl",
	"log-level":        "log_level",
	"log-pretty":       "log_pretty",
	"metrics-addr":     "metrics_addr",
}

func (a *app) bindFlags(flags *pflag.FlagSet) {
	v := a.v
	flags.String("swapi-base-url", v.GetString("swapi_base_url"), "SWAPI root URL")
	flags.String("trippin-base-url", v.GetString("trippin_base_url"), "TripPin OData service root URL")
	flags.String("employees-url", v.GetString("employees_url"), "employees endpoint URL")
	flags.String("user-agent", v.GetString("user_agent"), "User-Agent header")
	flags.Duration("timeout", v.GetDuration("timeout"), "HTTP timeout per request and per page")
	flags.Duration("fetch-timeout", v.GetDuration("fetch_timeout"), "timeout per referenced resource")
	flags.Int("concurrency", v.GetInt("concurrency"), "max simultaneous resource fetches")
	flags.Int("workers", v.GetInt("workers"), "max records enriched in parallel")
	flags.Int("max-retries", v.GetInt("max_retries"), "attempts per request for retriable failures")
	flags.Float64("rate-limit", v.GetFloat64("rate_limit"), "requests per second, 0 disables")
	flags.Int("rate-burst", v.GetInt("rate_burst"), "rate limiter burst")
	flags.String("redis-url", v.GetString("redis_url"), "redis URL for the HTTP response cache (disabled when empty)")
	flags.Duration("cache-ttl", v.GetDuration("cache_ttl"), "response cache lifetime when the API sends no Cache-Control or Expires")
	flags.String("log-level", v.GetString("log_level"), "log level (debug, info, warn, error)")
	flags.Bool("log-pretty", v.GetBool("log_pretty"), "human-readable logs")
	flags.String("metrics-addr", v.GetString("metrics_addr"), "serve Prometheus metrics on this address while running")

	for name, key := range flagKeys {
		_ = v.BindPFlag(key, flags.Lookup(name))
	}
}

func (a *app) setup(ctx context.Context) error {
	cfg, err := config.Load(a.v)
	if err != nil {
		return err
	}
	a.cfg = cfg

	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	logging.Setup(logging.Config{Level: level, Pretty: cfg.LogPretty, Output: a.logOutput})
	a.logger = logging.NewLogger("cli")

	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("parse redis url: %w", err)
		}
		rdb := redis.NewClient(opts)

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			rdb.Close()
			return fmt.Errorf("connect to redis: %w", err)
		}
		a.redis = rdb
		a.logger.Info().Str("addr", opts.Addr).Msg("HTTP response cache enabled")
	}

	if cfg.MetricsAddr != "" {
		metricsCtx, cancel := context.WithCancel(ctx)
		addr, done, err := metrics.Serve(metricsCtx, cfg.MetricsAddr)
		if err != nil {
			cancel()
			return err
		}
		a.metricsAddr = addr
		a.metricsDone = done
		a.stopMetrics = cancel
	}

	return nil
}

// close stops the metrics server and the redis connection. Safe to call
// more than once and after a failed setup.
func (a *app) close() {
	if a.stopMetrics != nil {
		a.stopMetrics()
		if err := <-a.metricsDone; err != nil {
			a.logger.Warn().Err(err).Msg("Metrics server stopped with error")
		}
		a.stopMetrics = nil
	}
	if a.redis != nil {
		a.redis.Close()
		a.redis = nil
	}
}

// newClient builds an HTTP client. headers are added to every request.
func (a *app) newClient(headers map[string]string) (*client.Client, error) {
	cfg := client.DefaultConfig(a.cfg.UserAgent)
	cfg.Redis = a.redis
	cfg.CacheTTL = a.cfg.CacheTTL
	cfg.Timeout = a.cfg.Timeout
	cfg.RateLimit = a.cfg.RateLimit
	cfg.RateBurst = a.cfg.RateBurst
	cfg.MaxRetries = a.cfg.MaxRetries
	for k, v := range headers {
		cfg.Headers[k] = v
	}
	return client.New(cfg)
}

func (a *app) newEngine(c *client.Client, format pagination.Format) (*enrich.Engine, error) {
	fetcher, err := fetch.NewHTTPFetcher(c, fetch.Config{Timeout: a.cfg.FetchTimeout})
	if err != nil {
		return nil, err
	}
	pages, err := pagination.NewHTTPPageFetcher(c, format)
	if err != nil {
		return nil, err
	}
	return enrich.New(fetcher, pages, enrich.Config{
		Concurrency: a.cfg.Concurrency,
		Workers:     a.cfg.Workers,
		PageTimeout: a.cfg.Timeout,
	})
}

// writeJSON writes v to path, or to the command's stdout for "-".
func writeJSON(cmd *cobra.Command, path string, v any) error {
	if path == "-" {
		return report.WriteJSON(cmd.OutOrStdout(), v)
	}
	return report.WriteJSONFile(path, v)
}

// writeCSV writes records to path, or to the command's stdout for "-".
func writeCSV(cmd *cobra.Command, path string, columns []string, records []resource.Resource) error {
	if path == "-" {
		return report.WriteCSV(cmd.OutOrStdout(), columns, records)
	}
	return report.WriteCSVFile(path, columns, records)
}
