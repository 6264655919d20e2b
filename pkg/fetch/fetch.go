// Package fetch retrieves single resources by identifier. Every failure is
// collapsed into the Absent outcome so callers never handle transport errors
// for leaf lookups.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Sternrassler/api-enricher/pkg/client"
	"github.com/Sternrassler/api-enricher/pkg/resource"
)

var fetchTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "enricher_fetch_total",
		Help: "Resource fetches by outcome (ok, absent)",
	},
	[]string{"outcome"},
)

// Fetcher retrieves one resource. The boolean is false when the resource is
// Absent, for whatever reason.
type Fetcher interface {
	Fetch(ctx context.Context, id string) (resource.Resource, bool)
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, id string) (resource.Resource, bool)

// Fetch calls f(ctx, id).
func (f FetcherFunc) Fetch(ctx context.Context, id string) (resource.Resource, bool) {
	return f(ctx, id)
}

// JSONGetter is the part of the HTTP client the fetcher needs.
// *client.Client satisfies it.
type JSONGetter interface {
	GetJSON(ctx context.Context, rawURL string, v any) error
}

// Config holds HTTP fetcher configuration.
type Config struct {
	// Timeout bounds a single fetch. Zero disables the per-fetch bound.
	Timeout time.Duration

	// BaseURL resolves relative identifiers. Optional.
	BaseURL string
}

// DefaultConfig returns the default fetcher configuration.
func DefaultConfig() Config {
	return Config{
		Timeout: 15 * time.Second,
	}
}

// HTTPFetcher fetches JSON objects by URL.
type HTTPFetcher struct {
	getter JSONGetter
	cfg    Config
	base   *url.URL
	logger zerolog.Logger
}

// NewHTTPFetcher creates a fetcher on top of getter.
func NewHTTPFetcher(getter JSONGetter, cfg Config) (*HTTPFetcher, error) {
	if getter == nil {
		return nil, errors.New("getter is required")
	}
	if cfg.Timeout < 0 {
		return nil, fmt.Errorf("timeout must be >= 0 (got %s)", cfg.Timeout)
	}

	f := &HTTPFetcher{
		getter: getter,
		cfg:    cfg,
		logger: log.With().Str("component", "fetch").Logger(),
	}

	if cfg.BaseURL != "" {
		base, err := url.Parse(cfg.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("parse base url: %w", err)
		}
		f.base = base
	}

	return f, nil
}

// Fetch performs one GET for id. Empty ids, timeouts, transport errors,
// non-2xx statuses and undecodable bodies all yield Absent.
func (f *HTTPFetcher) Fetch(ctx context.Context, id string) (resource.Resource, bool) {
	if id == "" {
		fetchTotal.WithLabelValues("absent").Inc()
		return nil, false
	}

	target, err := f.resolve(id)
	if err != nil {
		f.logger.Warn().Err(err).Str("id", id).Msg("Invalid resource identifier")
		fetchTotal.WithLabelValues("absent").Inc()
		return nil, false
	}

	if f.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.cfg.Timeout)
		defer cancel()
	}

	var res resource.Resource
	if err := f.getter.GetJSON(ctx, target, &res); err != nil {
		event := f.logger.Warn()
		if status := client.StatusCodeOf(err); status == 404 {
			event = f.logger.Debug()
		}
		event.Err(err).Str("url", target).Msg("Resource absent")
		fetchTotal.WithLabelValues("absent").Inc()
		return nil, false
	}

	// A JSON null body decodes to a nil map.
	if res == nil {
		f.logger.Debug().Str("url", target).Msg("Resource body was null")
		fetchTotal.WithLabelValues("absent").Inc()
		return nil, false
	}

	fetchTotal.WithLabelValues("ok").Inc()
	return res, true
}

func (f *HTTPFetcher) resolve(id string) (string, error) {
	u, err := url.Parse(id)
	if err != nil {
		return "", err
	}
	if u.IsAbs() {
		return id, nil
	}
	if f.base == nil {
		return "", fmt.Errorf("relative identifier %q without base url", id)
	}
	return f.base.ResolveReference(u).String(), nil
}
