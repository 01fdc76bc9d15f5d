package ratelimit

import (
	"context"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newLocalTracker() *Tracker {
	tracker := NewTracker(nil, zerolog.New(os.Stderr).Level(zerolog.Disabled))
	tracker.ThrottleDelay = time.Millisecond
	return tracker
}

func TestTracker_DefaultState(t *testing.T) {
	state, err := newLocalTracker().GetState(context.Background())
	if err != nil {
		t.Fatalf("GetState() error = %v", err)
	}
	if state.Remaining != 100 || !state.IsHealthy {
		t.Errorf("default state = %+v, want healthy with 100 remaining", state)
	}
}

func TestUpdateFromHeaders_InvalidHeaders(t *testing.T) {
	tracker := newLocalTracker()

	tests := []struct {
		name         string
		remainHeader string
		resetHeader  string
		shouldError  bool
	}{
		{"missing remain header", "", "60", false},
		{"invalid remain header", "invalid", "60", true},
		{"missing reset header", "100", "", true},
		{"invalid reset header", "100", "invalid", true},
		{"both headers missing", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			headers := http.Header{}
			if tt.remainHeader != "" {
				headers.Set(HeaderRemaining, tt.remainHeader)
			}
			if tt.resetHeader != "" {
				headers.Set(HeaderReset, tt.resetHeader)
			}

			err := tracker.UpdateFromHeaders(context.Background(), headers)
			if tt.shouldError && err == nil {
				t.Error("Expected error but got nil")
			}
			if !tt.shouldError && err != nil {
				t.Errorf("Unexpected error: %v", err)
			}
		})
	}
}

func TestTracker_ShouldAllowRequest(t *testing.T) {
	tests := []struct {
		name      string
		remaining string
		allowed   bool
	}{
		{"healthy", "90", true},
		{"warning throttles but allows", "10", true},
		{"critical blocks", "2", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tracker := newLocalTracker()
			headers := http.Header{}
			headers.Set(HeaderRemaining, tt.remaining)
			headers.Set(HeaderReset, "60")

			if err := tracker.UpdateFromHeaders(context.Background(), headers); err != nil {
				t.Fatalf("UpdateFromHeaders() error = %v", err)
			}

			allowed, err := tracker.ShouldAllowRequest(context.Background())
			if err != nil {
				t.Fatalf("ShouldAllowRequest() error = %v", err)
			}
			if allowed != tt.allowed {
				t.Errorf("ShouldAllowRequest() = %v, want %v", allowed, tt.allowed)
			}
		})
	}
}

func TestTracker_ThrottleHonoursContext(t *testing.T) {
	tracker := newLocalTracker()
	tracker.ThrottleDelay = time.Hour

	headers := http.Header{}
	headers.Set(HeaderRemaining, "10")
	headers.Set(HeaderReset, "60")
	if err := tracker.UpdateFromHeaders(context.Background(), headers); err != nil {
		t.Fatalf("UpdateFromHeaders() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	allowed, err := tracker.ShouldAllowRequest(ctx)
	if allowed || err == nil {
		t.Errorf("ShouldAllowRequest() = %v, %v; want false with context error", allowed, err)
	}
}
