// Package client provides the HTTP transport used by the enrichment engine:
// rate limiting, optional response caching, retries with backoff and error
// classification for JSON REST/OData APIs.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/Sternrassler/api-enricher/pkg/cache"
	"github.com/Sternrassler/api-enricher/pkg/ratelimit"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for client operations.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "enricher_http_requests_total",
		Help: "Total HTTP requests by host and status",
	}, []string{"host", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "enricher_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds by host",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"host"})

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "enricher_http_errors_total",
		Help: "Total HTTP errors by class",
	}, []string{"class"})
)

// ErrorClass represents a classification of request failures.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx client errors (except 429).
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx server errors.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassRateLimit represents 429 Too Many Requests.
	ErrorClassRateLimit ErrorClass = "rate_limit"

	// ErrorClassNetwork represents network/timeout errors.
	ErrorClassNetwork ErrorClass = "network"

	// ErrorClassDecode represents a 2xx response whose body is not valid JSON.
	ErrorClassDecode ErrorClass = "decode"
)

// Client is the HTTP client shared by every fetch of an enrichment run.
type Client struct {
	httpClient  *http.Client
	rateLimiter *ratelimit.Tracker
	cache       *cache.Manager
	config      Config
	logger      zerolog.Logger
}

// Config holds the client configuration.
type Config struct {
	// Redis enables the HTTP response cache. Nil disables it.
	Redis *redis.Client

	// User-Agent header sent with every request
	UserAgent string

	// Headers added to every request (e.g. API-TOKEN, Authorization)
	Headers map[string]string

	// Timeout bounds a single HTTP exchange
	Timeout time.Duration

	// CacheTTL is how long responses without freshness headers stay in the
	// response cache. 0 uses cache.DefaultTTL.
	CacheTTL time.Duration

	// Rate Limiting
	RateLimit float64 // Requests per second, <= 0 disables the token bucket
	RateBurst int

	// Retry
	MaxRetries     int           // Attempts including the first, 0 uses the per-class defaults
	InitialBackoff time.Duration // 0 uses the per-class defaults

	// Transport allows injecting a custom round tripper (tests, proxies).
	Transport http.RoundTripper
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig(userAgent string) Config {
	return Config{
		UserAgent: userAgent,
		Headers:   map[string]string{},
		Timeout:   30 * time.Second,
		RateLimit: 10,
		RateBurst: 5,
	}
}

// New creates a new client.
func New(cfg Config) (*Client, error) {
	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("user-agent is required")
	}

	if cfg.Timeout < 0 {
		return nil, fmt.Errorf("timeout must be >= 0 (got %s)", cfg.Timeout)
	}

	if cfg.CacheTTL < 0 {
		return nil, fmt.Errorf("cache_ttl must be >= 0 (got %s)", cfg.CacheTTL)
	}

	if cfg.MaxRetries < 0 {
		return nil, fmt.Errorf("max_retries must be >= 0 (got %d)", cfg.MaxRetries)
	}

	logger := log.With().Str("component", "http-client").Logger()

	c := &Client{
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: cfg.Transport,
		},
		rateLimiter: ratelimit.NewTracker(cfg.RateLimit, cfg.RateBurst, logger),
		config:      cfg,
		logger:      logger,
	}

	if cfg.Redis != nil {
		c.cache = cache.NewManager(cfg.Redis)
	}

	return c, nil
}

// Do performs an HTTP request with rate limiting, caching, retries and
// error classification. 4xx responses (other than 429) are returned to the
// caller unchanged; retriable failures that exhaust their attempts are
// returned as errors.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	host := req.URL.Host

	startTime := time.Now()
	defer func() {
		requestDuration.WithLabelValues(host).Observe(time.Since(startTime).Seconds())
	}()

	req.Header.Set("User-Agent", c.config.UserAgent)
	req.Header.Set("Accept", "application/json")
	for k, v := range c.config.Headers {
		req.Header.Set(k, v)
	}

	// Cache lookup and conditional request
	var cacheKey cache.CacheKey
	var cachedEntry *cache.CacheEntry
	if c.cache != nil && req.Method == http.MethodGet {
		cacheKey = cache.KeyFromRequest(req)
		entry, err := c.cache.Get(ctx, cacheKey)
		if err != nil && err != cache.ErrCacheMiss {
			c.logger.Warn().Err(err).Str("url", req.URL.String()).Msg("Cache get error")
		}
		if entry != nil {
			cachedEntry = entry
			if cache.ShouldMakeConditionalRequest(entry) {
				cache.AddConditionalHeaders(req, entry)
				cache.ConditionalRequestsSent.Inc()
				c.logger.Debug().
					Str("url", req.URL.String()).
					Str("etag", entry.ETag).
					Msg("Making conditional request")
			} else {
				c.logger.Debug().
					Str("url", req.URL.String()).
					Dur("age", entry.Age()).
					Msg("Serving response from cache")
				return cache.EntryToResponse(entry, req), nil
			}
		}
	}

	c.logger.Debug().
		Str("url", req.URL.String()).
		Str("method", req.Method).
		Msg("Executing request")

	var resp *http.Response

	retryErr := retryWithBackoff(ctx, c.retryConfig, func() (ErrorClass, error) {
		if err := c.rateLimiter.Wait(ctx); err != nil {
			return "", err
		}

		var reqErr error
		resp, reqErr = c.httpClient.Do(req)
		if reqErr != nil {
			errClass := c.classifyError(nil, reqErr)
			errorsTotal.WithLabelValues(string(errClass)).Inc()
			requestsTotal.WithLabelValues(host, "network_error").Inc()
			c.logger.Debug().Err(reqErr).Str("url", req.URL.String()).Msg("HTTP request failed")
			if ctx.Err() != nil {
				// Caller gave up; retrying cannot succeed
				return "", reqErr
			}
			return errClass, reqErr
		}

		if err := c.rateLimiter.UpdateFromHeaders(resp.StatusCode, resp.Header); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to update rate limit from headers")
		}

		requestsTotal.WithLabelValues(host, strconv.Itoa(resp.StatusCode)).Inc()

		if resp.StatusCode == http.StatusNotModified {
			return "", nil
		}

		if resp.StatusCode >= 400 {
			errClass := c.classifyError(resp, nil)
			errorsTotal.WithLabelValues(string(errClass)).Inc()

			c.logger.Debug().
				Str("url", req.URL.String()).
				Int("status", resp.StatusCode).
				Str("error_class", string(errClass)).
				Msg("Request error")

			if shouldRetry(errClass) {
				apiErr := &APIError{
					StatusCode: resp.StatusCode,
					ErrorClass: errClass,
					Message:    resp.Status,
					URL:        req.URL.String(),
				}
				resp.Body.Close()
				resp = nil
				return errClass, apiErr
			}

			// Client errors are not retried, the caller handles the status
			return "", nil
		}

		return "", nil
	})

	if retryErr != nil {
		if resp != nil && resp.Body != nil {
			resp.Body.Close()
		}
		return nil, retryErr
	}

	if resp.StatusCode == http.StatusNotModified && cachedEntry != nil {
		c.logger.Debug().Str("url", req.URL.String()).Msg("304 Not Modified - using cache")
		cache.NotModifiedResponses.Inc()

		if newExpires, ok := cache.RevalidatedExpiry(resp.Header); ok {
			if err := c.cache.UpdateTTL(ctx, cacheKey, newExpires); err != nil {
				c.logger.Warn().Err(err).Msg("Failed to update cache TTL")
			}
		}

		resp.Body.Close()
		return cache.EntryToResponse(cachedEntry, req), nil
	}

	if c.cache != nil && req.Method == http.MethodGet && cache.IsCacheable(resp) {
		entry, err := cache.ResponseToEntry(resp, c.config.CacheTTL)
		if errors.Is(err, cache.ErrNotJSON) {
			c.logger.Debug().Str("url", req.URL.String()).Msg("Not caching non-JSON response")
		} else if err != nil {
			c.logger.Warn().Err(err).Msg("Failed to create cache entry")
		} else if err := c.cache.Set(ctx, cacheKey, entry); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to cache response")
		} else {
			c.logger.Debug().
				Str("url", req.URL.String()).
				Dur("ttl", entry.TTL()).
				Msg("Cached response")
		}
	}

	return resp, nil
}

// classifyError categorizes an error for observability and retry handling.
func (c *Client) classifyError(resp *http.Response, err error) ErrorClass {
	if err != nil {
		return ErrorClassNetwork
	}
	return classifyStatus(resp.StatusCode)
}

func classifyStatus(status int) ErrorClass {
	switch {
	case status == http.StatusTooManyRequests:
		return ErrorClassRateLimit
	case status >= 400 && status < 500:
		return ErrorClassClient
	case status >= 500:
		return ErrorClassServer
	default:
		return ""
	}
}

// retryConfig applies the client overrides to the per-class defaults.
func (c *Client) retryConfig(errorClass ErrorClass) RetryConfig {
	cfg := RetryConfigForErrorClass(errorClass)
	if c.config.MaxRetries > 0 {
		cfg.MaxAttempts = c.config.MaxRetries
	}
	if c.config.InitialBackoff > 0 {
		cfg.InitialBackoff = c.config.InitialBackoff
		if cfg.MaxBackoff < cfg.InitialBackoff {
			cfg.MaxBackoff = cfg.InitialBackoff
		}
	}
	return cfg
}

// Get performs a GET request to an absolute URL.
func (c *Client) Get(ctx context.Context, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	return c.Do(req)
}

// GetJSON performs a GET request and decodes the JSON body into v.
// Non-2xx statuses and undecodable bodies are returned as *APIError.
func (c *Client) GetJSON(ctx context.Context, rawURL string, v any) error {
	resp, err := c.Get(ctx, rawURL)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{
			StatusCode: resp.StatusCode,
			ErrorClass: classifyStatus(resp.StatusCode),
			Message:    resp.Status,
			URL:        rawURL,
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		errorsTotal.WithLabelValues(string(ErrorClassDecode)).Inc()
		return &APIError{
			StatusCode: resp.StatusCode,
			ErrorClass: ErrorClassDecode,
			Message:    "decode response body",
			URL:        rawURL,
			Err:        err,
		}
	}

	return nil
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// GetCache returns the response cache manager, nil when disabled.
func (c *Client) GetCache() *cache.Manager {
	return c.cache
}
