// Package enrich resolves reference fields of records into denormalized
// output. An Engine starts runs; each Run owns a fresh resolution cache so
// identifiers are fetched at most once per run.
package enrich

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/Sternrassler/api-enricher/pkg/fetch"
	"github.com/Sternrassler/api-enricher/pkg/pagination"
	"github.com/Sternrassler/api-enricher/pkg/resource"
)

var (
	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "enricher_runs_total",
		Help: "Enrichment jobs by outcome (ok, failed)",
	}, []string{"outcome"})

	runDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "enricher_run_duration_seconds",
		Help:    "Duration of enrichment jobs",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
	})

	recordsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "enricher_records_total",
		Help: "Records processed by stage (enriched, kept)",
	}, []string{"stage"})
)

// Job describes one enrichment: where the records come from, which of their
// fields to keep, how references are resolved and what happens afterwards.
type Job struct {
	// Name is used in logs.
	Name string

	// Root is the URL of the paginated root collection. Only Engine.Run uses it.
	Root string

	Projection resource.Projection
	Plan       Plan

	// Derive computes extra fields on each enriched record. Optional.
	Derive func(resource.Resource) resource.Resource

	// Filter keeps a record when it returns true. It always sees fully
	// enriched (and derived) records. Optional.
	Filter func(resource.Resource) bool
}

// Config holds engine configuration.
type Config struct {
	// Concurrency bounds simultaneous resource fetches per run.
	Concurrency int

	// Workers bounds records enriched in parallel.
	Workers int

	// PageTimeout bounds each page fetch of the root listing.
	PageTimeout time.Duration
}

// DefaultConfig returns the default engine configuration.
func DefaultConfig() Config {
	return Config{
		Concurrency: 8,
		Workers:     runtime.GOMAXPROCS(0),
		PageTimeout: 30 * time.Second,
	}
}

// Engine creates enrichment runs over one fetcher and page fetcher.
type Engine struct {
	fetcher fetch.Fetcher
	pages   pagination.PageFetcher
	config  Config
	logger  zerolog.Logger
}

// New creates an engine.
func New(fetcher fetch.Fetcher, pages pagination.PageFetcher, cfg Config) (*Engine, error) {
	if fetcher == nil {
		return nil, errors.New("fetcher is required")
	}
	if cfg.Concurrency < 1 {
		return nil, fmt.Errorf("concurrency must be >= 1 (got %d)", cfg.Concurrency)
	}
	if cfg.Workers < 1 {
		return nil, fmt.Errorf("workers must be >= 1 (got %d)", cfg.Workers)
	}

	return &Engine{
		fetcher: fetcher,
		pages:   pages,
		config:  cfg,
		logger:  log.With().Str("component", "enrich").Logger(),
	}, nil
}

// NewRun starts a run with an empty resolution cache.
func (e *Engine) NewRun() *Run {
	id := uuid.NewString()
	logger := e.logger.With().Str("run_id", id).Logger()
	cache := NewCache(e.fetcher, e.config.Concurrency, logger)

	run := &Run{
		ID:       id,
		engine:   e,
		cache:    cache,
		resolver: NewResolver(cache, logger),
		logger:   logger,
	}
	if e.pages != nil {
		run.paginator = pagination.New(e.pages, pagination.Config{Timeout: e.config.PageTimeout})
	}
	return run
}

// Run executes job in a fresh run: the whole root listing is collected
// first, then every record is enriched. A listing failure returns no
// records.
func (e *Engine) Run(ctx context.Context, job Job) ([]resource.Resource, error) {
	if err := job.Plan.Validate(); err != nil {
		return nil, err
	}
	if job.Root == "" {
		return nil, errors.New("job root is required")
	}

	run := e.NewRun()
	records, err := run.Collect(ctx, job.Root)
	if err != nil {
		runsTotal.WithLabelValues("failed").Inc()
		return nil, fmt.Errorf("collect %s: %w", job.Root, err)
	}

	return run.Enrich(ctx, records, job)
}

// Run is one enrichment pass sharing a resolution cache.
type Run struct {
	ID string

	engine    *Engine
	cache     *Cache
	resolver  *Resolver
	paginator *pagination.Paginator
	logger    zerolog.Logger
}

// Collect reads every record of the listing at url.
func (r *Run) Collect(ctx context.Context, url string) ([]resource.Resource, error) {
	if r.paginator == nil {
		return nil, errors.New("engine has no page fetcher")
	}
	return r.paginator.All(ctx, url)
}

// Resolve fetches one resource through the run cache.
func (r *Run) Resolve(ctx context.Context, id string) (resource.Resource, bool) {
	return r.cache.Resolve(ctx, id)
}

// Stats returns the run's cache statistics.
func (r *Run) Stats() Stats {
	return r.cache.Stats()
}

// EnrichIdentifiers resolves ids through the run cache and enriches the
// resulting records. Absent ids are skipped; order follows ids.
func (r *Run) EnrichIdentifiers(ctx context.Context, ids []string, job Job) ([]resource.Resource, error) {
	records := make([]resource.Resource, len(ids))
	found := make([]bool, len(ids))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.engine.config.Workers)
	for i, id := range ids {
		g.Go(func() error {
			records[i], found[i] = r.cache.Resolve(gctx, id)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	kept := make([]resource.Resource, 0, len(ids))
	for i, rec := range records {
		if found[i] {
			kept = append(kept, rec)
		} else {
			r.logger.Warn().Str("id", ids[i]).Msg("Skipping absent record")
		}
	}

	return r.Enrich(ctx, kept, job)
}

// Enrich projects and resolves records, then applies Derive and Filter.
// Output order matches input order. The input records are not modified.
func (r *Run) Enrich(ctx context.Context, records []resource.Resource, job Job) ([]resource.Resource, error) {
	start := time.Now()

	if err := job.Plan.Validate(); err != nil {
		runsTotal.WithLabelValues("failed").Inc()
		return nil, err
	}

	enriched := make([]resource.Resource, len(records))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.engine.config.Workers)
	for i, rec := range records {
		g.Go(func() error {
			projected := rec
			if !job.Projection.IsZero() {
				projected = job.Projection.Apply(rec)
			}

			out, err := r.resolver.Apply(gctx, projected, job.Plan)
			if err != nil {
				return fmt.Errorf("record %d: %w", i, err)
			}
			if job.Derive != nil {
				out = job.Derive(out)
			}
			enriched[i] = out
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		runsTotal.WithLabelValues("failed").Inc()
		r.logger.Error().Err(err).Str("job", job.Name).Msg("Enrichment failed")
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		runsTotal.WithLabelValues("failed").Inc()
		return nil, err
	}

	out := make([]resource.Resource, 0, len(enriched))
	for _, rec := range enriched {
		if job.Filter == nil || job.Filter(rec) {
			out = append(out, rec)
		}
	}

	duration := time.Since(start)
	stats := r.cache.Stats()

	runsTotal.WithLabelValues("ok").Inc()
	runDuration.Observe(duration.Seconds())
	recordsTotal.WithLabelValues("enriched").Add(float64(len(enriched)))
	recordsTotal.WithLabelValues("kept").Add(float64(len(out)))

	r.logger.Info().
		Str("job", job.Name).
		Int("records", len(enriched)).
		Int("kept", len(out)).
		Int64("fetches", stats.Fetches).
		Int64("cache_hits", stats.Hits).
		Int64("absent", stats.Absent).
		Dur("duration", duration).
		Msg("Enrichment complete")

	return out, nil
}
