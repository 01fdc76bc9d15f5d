package ratelimit

import (
	"testing"
	"time"
)

func TestQuotaState_IsStale(t *testing.T) {
	tests := []struct {
		name     string
		state    *QuotaState
		maxAge   time.Duration
		expected bool
	}{
		{
			name:     "fresh state",
			state:    &QuotaState{LastUpdate: time.Now()},
			maxAge:   5 * time.Minute,
			expected: false,
		},
		{
			name:     "stale state",
			state:    &QuotaState{LastUpdate: time.Now().Add(-10 * time.Minute)},
			maxAge:   5 * time.Minute,
			expected: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.state.IsStale(tt.maxAge); got != tt.expected {
				t.Errorf("IsStale() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestQuotaState_Gating(t *testing.T) {
	tests := []struct {
		name           string
		remaining      int
		resetIn        time.Duration
		expectBlock    bool
		expectThrottle bool
		expectHealthy  bool
	}{
		{"healthy", 100, time.Minute, false, false, true},
		{"at healthy threshold", QuotaThresholdHealthy, time.Minute, false, false, true},
		{"warning", 15, time.Minute, false, true, false},
		{"at critical threshold", QuotaThresholdCritical, time.Minute, false, true, false},
		{"critical", 3, time.Minute, true, false, false},
		{"critical but window reset", 0, -time.Second, false, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state := &QuotaState{
				Remaining:  tt.remaining,
				ResetAt:    time.Now().Add(tt.resetIn),
				LastUpdate: time.Now(),
			}
			state.UpdateHealth()

			if got := state.NeedsCriticalBlock(); got != tt.expectBlock {
				t.Errorf("NeedsCriticalBlock() = %v, want %v", got, tt.expectBlock)
			}
			if got := state.NeedsThrottling(); got != tt.expectThrottle {
				t.Errorf("NeedsThrottling() = %v, want %v", got, tt.expectThrottle)
			}
			if state.IsHealthy != tt.expectHealthy {
				t.Errorf("IsHealthy = %v, want %v", state.IsHealthy, tt.expectHealthy)
			}
		})
	}
}

func TestQuotaState_TimeUntilReset(t *testing.T) {
	past := &QuotaState{ResetAt: time.Now().Add(-time.Minute)}
	if past.TimeUntilReset() != 0 {
		t.Errorf("TimeUntilReset() = %v, want 0", past.TimeUntilReset())
	}

	future := &QuotaState{ResetAt: time.Now().Add(time.Minute)}
	if d := future.TimeUntilReset(); d <= 0 || d > time.Minute {
		t.Errorf("TimeUntilReset() = %v, want (0, 1m]", d)
	}
}
