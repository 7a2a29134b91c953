// Package ratelimit tracks the request quota OilPriceAPI advertises in the
// X-RateLimit-Limit, X-RateLimit-Remaining and X-RateLimit-Reset response
// headers. State is kept in Redis so several processes sharing one API key
// see the same numbers.
package ratelimit

import (
	"time"
)

// Redis key layout. Every key is prefixed with the tracker namespace.
const (
	redisKeyPrefix = "oilpriceapi:quota:"

	fieldLimit      = "limit"
	fieldRemaining  = "remaining"
	fieldResetAt    = "reset_at"
	fieldLastUpdate = "last_update"
)

// Thresholds, as a fraction of the quota limit.
const (
	// RemainingThresholdCritical marks the quota as nearly exhausted.
	RemainingThresholdCritical = 0.02

	// RemainingThresholdWarning marks the quota as running low.
	RemainingThresholdWarning = 0.10

	// RemainingThresholdHealthy is the fraction at or above which the quota is healthy.
	RemainingThresholdHealthy = 0.25
)

// QuotaState is the last quota reported by the API.
type QuotaState struct {
	// Limit is the number of requests allowed in the current window.
	Limit int `json:"limit"`

	// Remaining is the number of requests left in the current window.
	Remaining int `json:"remaining"`

	// ResetAt is when the window resets. Zero when the API did not say.
	ResetAt time.Time `json:"reset_at"`

	// LastUpdate is when this state was recorded.
	LastUpdate time.Time `json:"last_update"`

	// IsHealthy is true when RemainingRatio >= RemainingThresholdHealthy.
	IsHealthy bool `json:"is_healthy"`
}

// RemainingRatio returns Remaining/Limit, or 1 when the limit is unknown.
func (s *QuotaState) RemainingRatio() float64 {
	if s.Limit <= 0 {
		return 1
	}
	ratio := float64(s.Remaining) / float64(s.Limit)
	if ratio < 0 {
		return 0
	}
	return ratio
}

// IsStale returns true if the state is older than maxAge.
func (s *QuotaState) IsStale(maxAge time.Duration) bool {
	return time.Since(s.LastUpdate) > maxAge
}

// IsCritical returns true when the quota is exhausted or nearly so.
func (s *QuotaState) IsCritical() bool {
	if s.Remaining <= 0 {
		return true
	}
	return s.RemainingRatio() < RemainingThresholdCritical
}

// IsLow returns true when the quota is below the warning threshold but not critical.
func (s *QuotaState) IsLow() bool {
	return s.RemainingRatio() < RemainingThresholdWarning && !s.IsCritical()
}

// TimeUntilReset returns the duration until the window resets, or 0.
func (s *QuotaState) TimeUntilReset() time.Duration {
	if s.ResetAt.IsZero() {
		return 0
	}
	duration := time.Until(s.ResetAt)
	if duration < 0 {
		return 0
	}
	return duration
}

// UpdateHealth updates IsHealthy from the current counts.
func (s *QuotaState) UpdateHealth() {
	s.IsHealthy = s.RemainingRatio() >= RemainingThresholdHealthy
}
