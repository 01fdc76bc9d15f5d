// Package ratelimit tracks the ad server request quota and gates requests.
// It reads the X-Quota-Remaining and X-Quota-Reset response headers so that
// callers back off before the server starts rejecting them.
package ratelimit

import (
	"time"
)

// Redis keys for quota state storage.
const (
	RedisKeyRemaining      = "adserver:quota:remaining"
	RedisKeyResetTimestamp = "adserver:quota:reset_timestamp"
	RedisKeyLastUpdate     = "adserver:quota:last_update"
)

// Response headers carrying quota information.
const (
	HeaderRemaining = "X-Quota-Remaining"
	HeaderReset     = "X-Quota-Reset"
)

// Thresholds for quota decisions.
const (
	// QuotaThresholdCritical blocks all requests when remaining quota falls below this value.
	QuotaThresholdCritical = 5

	// QuotaThresholdWarning applies throttling when remaining quota falls below this value.
	QuotaThresholdWarning = 20

	// QuotaThresholdHealthy indicates normal operation.
	QuotaThresholdHealthy = 50
)

// QuotaState is the last known request quota of the network.
type QuotaState struct {
	// Remaining is the number of requests left in the current window.
	Remaining int `json:"remaining"`

	// ResetAt is when the quota window resets.
	ResetAt time.Time `json:"reset_at"`

	// LastUpdate is when this state was last updated from headers.
	LastUpdate time.Time `json:"last_update"`

	// IsHealthy is true when Remaining >= QuotaThresholdHealthy.
	IsHealthy bool `json:"is_healthy"`
}

// IsStale returns true if the state data is older than the given duration.
func (s *QuotaState) IsStale(maxAge time.Duration) bool {
	return time.Since(s.LastUpdate) > maxAge
}

// NeedsCriticalBlock returns true if requests should be blocked.
func (s *QuotaState) NeedsCriticalBlock() bool {
	return s.Remaining < QuotaThresholdCritical && s.TimeUntilReset() > 0
}

// NeedsThrottling returns true if requests should be slowed down.
func (s *QuotaState) NeedsThrottling() bool {
	return s.Remaining < QuotaThresholdWarning && !s.NeedsCriticalBlock() && s.TimeUntilReset() > 0
}

// TimeUntilReset returns the duration until the quota resets.
// Returns 0 if the reset time has already passed.
func (s *QuotaState) TimeUntilReset() time.Duration {
	duration := time.Until(s.ResetAt)
	if duration < 0 {
		return 0
	}
	return duration
}

// UpdateHealth updates the IsHealthy field based on current Remaining.
func (s *QuotaState) UpdateHealth() {
	s.IsHealthy = s.Remaining >= QuotaThresholdHealthy
}

func defaultState() *QuotaState {
	now := time.Now()
	return &QuotaState{
		Remaining:  100, // assume healthy until the server says otherwise
		ResetAt:    now.Add(60 * time.Second),
		LastUpdate: now,
		IsHealthy:  true,
	}
}
