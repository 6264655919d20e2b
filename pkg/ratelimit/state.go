// Package ratelimit implements client-side request pacing for remote APIs.
// It combines a local token bucket with the quota the server reports through
// the X-RateLimit-Remaining / X-RateLimit-Reset / Retry-After headers, so a
// long enrichment run backs off before the API starts rejecting requests.
package ratelimit

import (
	"time"
)

// Header names read by the tracker.
const (
	HeaderRemaining  = "X-RateLimit-Remaining"
	HeaderReset      = "X-RateLimit-Reset"
	HeaderRetryAfter = "Retry-After"
)

// Thresholds for rate limit decisions.
const (
	// RemainingThresholdCritical blocks requests until the reset time when the
	// remaining quota falls to this value.
	RemainingThresholdCritical = 0

	// RemainingThresholdWarning applies throttling below this value.
	RemainingThresholdWarning = 5
)

// State represents the server-reported rate limit state.
type State struct {
	// Known is false until a response carried rate limit headers.
	Known bool `json:"known"`

	// Remaining is the number of requests left in the current window.
	Remaining int `json:"remaining"`

	// ResetAt is when the window resets.
	ResetAt time.Time `json:"reset_at"`

	// LastUpdate is when this state was last updated.
	LastUpdate time.Time `json:"last_update"`
}

// IsStale returns true if the state data is older than the given duration.
func (s *State) IsStale(maxAge time.Duration) bool {
	return time.Since(s.LastUpdate) > maxAge
}

// NeedsCriticalBlock returns true if requests must wait for the reset.
func (s *State) NeedsCriticalBlock() bool {
	return s.Known && s.Remaining <= RemainingThresholdCritical && s.TimeUntilReset() > 0
}

// NeedsThrottling returns true if requests should be slowed down.
func (s *State) NeedsThrottling() bool {
	return s.Known && s.Remaining < RemainingThresholdWarning && !s.NeedsCriticalBlock()
}

// TimeUntilReset returns the duration until the window resets.
// Returns 0 if the reset time has already passed.
func (s *State) TimeUntilReset() time.Duration {
	duration := time.Until(s.ResetAt)
	if duration < 0 {
		return 0
	}
	return duration
}
