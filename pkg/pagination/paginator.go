package pagination

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Sternrassler/api-enricher/pkg/resource"
)

var (
	pagesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "enricher_pagination_pages_total",
		Help: "Pages fetched by the paginator",
	})

	cyclesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "enricher_pagination_cycles_total",
		Help: "Listings terminated because a next link revisited a page",
	})

	failuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "enricher_pagination_failures_total",
		Help: "Listings aborted by a page fetch failure",
	})
)

// Config holds paginator configuration.
type Config struct {
	// Timeout per page fetch
	Timeout time.Duration
}

// DefaultConfig returns the default paginator configuration.
func DefaultConfig() Config {
	return Config{
		Timeout: 30 * time.Second,
	}
}

// Paginator follows next links of a listing.
type Paginator struct {
	fetcher PageFetcher
	config  Config
	logger  zerolog.Logger
}

// New creates a paginator.
func New(fetcher PageFetcher, config Config) *Paginator {
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}

	return &Paginator{
		fetcher: fetcher,
		config:  config,
		logger:  log.With().Str("component", "paginator").Logger(),
	}
}

// Iterate returns a lazy, single-pass iterator over every record of the
// listing starting at startURL. Nothing is fetched until Next is called.
func (p *Paginator) Iterate(ctx context.Context, startURL string) *Iterator {
	return &Iterator{
		p:       p,
		ctx:     ctx,
		next:    startURL,
		start:   startURL,
		visited: make(map[string]struct{}),
	}
}

// All collects the whole listing. On failure no records are returned.
func (p *Paginator) All(ctx context.Context, startURL string) ([]resource.Resource, error) {
	start := time.Now()
	it := p.Iterate(ctx, startURL)

	var out []resource.Resource
	for it.Next() {
		out = append(out, it.Resource())
	}
	if err := it.Err(); err != nil {
		return nil, err
	}

	p.logger.Info().
		Str("url", startURL).
		Int("pages", it.Pages()).
		Int("records", len(out)).
		Dur("duration", time.Since(start)).
		Msg("Listing complete")

	return out, nil
}

// Iterator yields the records of a listing in page order.
type Iterator struct {
	p       *Paginator
	ctx     context.Context
	start   string
	next    string
	visited map[string]struct{}

	buf   []resource.Resource
	cur   resource.Resource
	err   error
	pages int
	done  bool
}

// Next advances to the next record, fetching the next page when the current
// one is exhausted. It returns false at the end of the listing or on error.
func (it *Iterator) Next() bool {
	for len(it.buf) == 0 {
		if it.done || it.err != nil {
			it.cur = nil
			return false
		}
		it.fetchNext()
	}

	it.cur = it.buf[0]
	it.buf = it.buf[1:]
	return true
}

// Resource returns the current record.
func (it *Iterator) Resource() resource.Resource {
	return it.cur
}

// Err returns the failure that stopped the iteration, if any.
func (it *Iterator) Err() error {
	return it.err
}

// Pages returns the number of pages fetched so far.
func (it *Iterator) Pages() int {
	return it.pages
}

func (it *Iterator) fetchNext() {
	if it.pages == 0 && it.next == "" {
		it.fail(&PageError{Err: errors.New("empty start url")})
		return
	}
	if it.next == "" {
		it.done = true
		return
	}

	if _, seen := it.visited[it.next]; seen {
		it.p.logger.Warn().
			Str("url", it.start).
			Str("next", it.next).
			Int("pages", it.pages).
			Msg("Next link revisits a page, stopping listing")
		cyclesTotal.Inc()
		it.done = true
		return
	}
	it.visited[it.next] = struct{}{}

	if err := it.ctx.Err(); err != nil {
		it.fail(&PageError{URL: it.next, Err: err})
		return
	}

	pageCtx, cancel := context.WithTimeout(it.ctx, it.p.config.Timeout)
	page, err := it.p.fetcher.FetchPage(pageCtx, it.next)
	cancel()

	if err != nil {
		var pageErr *PageError
		if !errors.As(err, &pageErr) {
			pageErr = &PageError{URL: it.next, Err: err}
		}
		it.fail(pageErr)
		return
	}

	it.pages++
	pagesTotal.Inc()

	it.p.logger.Debug().
		Str("url", it.next).
		Int("page", it.pages).
		Int("records", len(page.Results)).
		Msg("Page fetched")

	it.buf = page.Results
	it.next = page.Next
}

func (it *Iterator) fail(err *PageError) {
	failuresTotal.Inc()
	it.p.logger.Error().
		Err(err).
		Str("url", it.start).
		Int("pages", it.pages).
		Msg("Listing failed")
	it.err = err
	it.buf = nil
}
