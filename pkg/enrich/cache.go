package enrich

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"

	"github.com/Sternrassler/api-enricher/pkg/fetch"
	"github.com/Sternrassler/api-enricher/pkg/resource"
)

var (
	resolutionHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "enricher_resolution_cache_hits_total",
		Help: "Resolutions answered from the run cache",
	})

	resolutionMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "enricher_resolution_cache_misses_total",
		Help: "Resolutions that required a fetch",
	})

	resolutionAbsent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "enricher_resolution_absent_total",
		Help: "Fetches that ended Absent",
	})
)

// outcome is a stored fetch result. ok=false is a cached Absent.
type outcome struct {
	res resource.Resource
	ok  bool
}

// Stats summarizes cache activity of one run.
type Stats struct {
	Fetches int64
	Hits    int64
	Absent  int64
	Entries int
}

// Cache memoizes fetch outcomes by identifier for the lifetime of one run.
// Absent outcomes are cached too, so a failing identifier is fetched once.
type Cache struct {
	fetcher fetch.Fetcher
	sem     *semaphore.Weighted
	group   singleflight.Group
	logger  zerolog.Logger

	mu      sync.RWMutex
	entries map[string]outcome

	fetches atomic.Int64
	hits    atomic.Int64
	absent  atomic.Int64
}

// NewCache creates an empty cache. concurrency bounds simultaneous fetches;
// values < 1 are treated as 1.
func NewCache(fetcher fetch.Fetcher, concurrency int, logger zerolog.Logger) *Cache {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Cache{
		fetcher: fetcher,
		sem:     semaphore.NewWeighted(int64(concurrency)),
		logger:  logger,
		entries: make(map[string]outcome),
	}
}

// Resolve returns the resource for id, fetching it on first use. Concurrent
// callers for the same id share one fetch. Resources returned are shared and
// must not be mutated.
func (c *Cache) Resolve(ctx context.Context, id string) (resource.Resource, bool) {
	if o, found := c.lookup(id); found {
		c.hits.Add(1)
		resolutionHits.Inc()
		return o.res, o.ok
	}

	v, _, _ := c.group.Do(id, func() (any, error) {
		// A flight for id may have completed between lookup and Do.
		if o, found := c.lookup(id); found {
			return o, nil
		}
		return c.fetch(ctx, id), nil
	})

	o := v.(outcome)
	return o.res, o.ok
}

func (c *Cache) lookup(id string) (outcome, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	o, found := c.entries[id]
	return o, found
}

func (c *Cache) fetch(ctx context.Context, id string) outcome {
	if err := c.sem.Acquire(ctx, 1); err != nil {
		c.logger.Debug().Err(err).Str("id", id).Msg("Fetch slot not acquired")
		return outcome{}
	}
	res, ok := c.fetcher.Fetch(ctx, id)
	c.sem.Release(1)

	c.fetches.Add(1)
	resolutionMisses.Inc()

	// A cancelled run must not poison the cache with Absent.
	if !ok && ctx.Err() != nil {
		return outcome{}
	}

	if !ok {
		c.absent.Add(1)
		resolutionAbsent.Inc()
		c.logger.Debug().Str("id", id).Msg("Resolved absent")
	}

	o := outcome{res: res, ok: ok}
	c.mu.Lock()
	c.entries[id] = o
	c.mu.Unlock()

	return o
}

// Stats returns a snapshot of the cache counters.
func (c *Cache) Stats() Stats {
	c.mu.RLock()
	entries := len(c.entries)
	c.mu.RUnlock()

	return Stats{
		Fetches: c.fetches.Load(),
		Hits:    c.hits.Load(),
		Absent:  c.absent.Load(),
		Entries: entries,
	}
}
