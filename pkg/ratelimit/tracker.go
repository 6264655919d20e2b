package ratelimit

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Prometheus metrics for rate limit tracking.
var (
	rateLimitRemaining = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "enricher_rate_limit_remaining",
		Help: "Requests remaining in the current server rate limit window",
	})

	rateLimitBlocksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "enricher_rate_limit_blocks_total",
		Help: "Total number of requests held until the rate limit window reset",
	})

	rateLimitThrottlesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "enricher_rate_limit_throttles_total",
		Help: "Total number of requests throttled due to low remaining quota",
	})
)

// ThrottleDelay is the extra pause applied when the quota is low.
var ThrottleDelay = 250 * time.Millisecond

// StateMaxAge is how long a low-quota reading keeps throttling requests
// without a newer response confirming it.
var StateMaxAge = time.Minute

// Tracker paces outgoing requests.
type Tracker struct {
	limiter *rate.Limiter
	logger  zerolog.Logger

	mu    sync.RWMutex
	state State
}

// NewTracker creates a tracker allowing perSecond requests with the given
// burst. perSecond <= 0 disables the local token bucket.
func NewTracker(perSecond float64, burst int, logger zerolog.Logger) *Tracker {
	limit := rate.Limit(perSecond)
	if perSecond <= 0 {
		limit = rate.Inf
	}
	if burst <= 0 {
		burst = 1
	}
	return &Tracker{
		limiter: rate.NewLimiter(limit, burst),
		logger:  logger,
	}
}

// GetState returns a copy of the current state.
func (t *Tracker) GetState() State {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state
}

// UpdateFromHeaders records the quota reported by a response.
// 429 responses without quota headers are treated as an exhausted window
// using Retry-After.
func (t *Tracker) UpdateFromHeaders(statusCode int, headers http.Header) error {
	now := time.Now()
	state := State{LastUpdate: now}

	remainStr := headers.Get(HeaderRemaining)
	retryAfter := headers.Get(HeaderRetryAfter)

	switch {
	case remainStr != "":
		remain, err := strconv.Atoi(remainStr)
		if err != nil {
			return fmt.Errorf("parse %s header: %w", HeaderRemaining, err)
		}
		state.Known = true
		state.Remaining = remain
		state.ResetAt = now
		if resetStr := headers.Get(HeaderReset); resetStr != "" {
			reset, err := parseReset(resetStr, now)
			if err != nil {
				return fmt.Errorf("parse %s header: %w", HeaderReset, err)
			}
			state.ResetAt = reset
		}
	case statusCode == http.StatusTooManyRequests:
		state.Known = true
		state.Remaining = 0
		state.ResetAt = now.Add(parseRetryAfter(retryAfter, now))
	default:
		// No quota information on this response
		return nil
	}

	t.mu.Lock()
	t.state = state
	t.mu.Unlock()

	rateLimitRemaining.Set(float64(state.Remaining))

	if state.NeedsCriticalBlock() {
		t.logger.Warn().
			Int("remaining", state.Remaining).
			Time("reset_at", state.ResetAt).
			Msg("Rate limit exhausted - requests will wait for reset")
	} else {
		t.logger.Debug().
			Int("remaining", state.Remaining).
			Time("reset_at", state.ResetAt).
			Msg("Rate limit state updated")
	}

	return nil
}

// Wait blocks until a request may be sent or ctx is done.
func (t *Tracker) Wait(ctx context.Context) error {
	state := t.GetState()

	if state.NeedsCriticalBlock() {
		wait := state.TimeUntilReset()
		t.logger.Warn().
			Int("remaining", state.Remaining).
			Dur("wait_duration", wait).
			Msg("Rate limit exhausted - holding request")
		rateLimitBlocksTotal.Inc()
		if err := sleepCtx(ctx, wait); err != nil {
			return err
		}
	} else if state.NeedsThrottling() && !state.IsStale(StateMaxAge) {
		t.logger.Debug().
			Int("remaining", state.Remaining).
			Msg("Rate limit low - throttling request")
		rateLimitThrottlesTotal.Inc()
		if err := sleepCtx(ctx, ThrottleDelay); err != nil {
			return err
		}
	}

	if err := t.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}
	return nil
}

// parseReset accepts either seconds until reset or a unix timestamp.
func parseReset(value string, now time.Time) (time.Time, error) {
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	// Values larger than a day of seconds are unix timestamps.
	if n > 86400 {
		return time.Unix(n, 0), nil
	}
	return now.Add(time.Duration(n) * time.Second), nil
}

func parseRetryAfter(value string, now time.Time) time.Duration {
	if value == "" {
		return time.Second
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		return at.Sub(now)
	}
	return time.Second
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
