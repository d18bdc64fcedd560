package ratelimit

import (
	"testing"
	"time"
)

func TestWeightedCount(t *testing.T) {
	tests := []struct {
		name    string
		prev    int
		cur     int
		elapsed time.Duration
		want    float64
	}{
		{"window start counts full previous", 60, 1, 0, 61},
		{"window end drops previous", 60, 10, time.Minute, 10},
		{"halfway blends half", 60, 10, 30 * time.Second, 40},
		{"no previous traffic", 0, 5, 45 * time.Second, 5},
		{"negative elapsed clamps to start", 10, 1, -time.Second, 11},
		{"overlong elapsed clamps to end", 10, 1, 2 * time.Minute, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := WeightedCount(tt.prev, tt.cur, tt.elapsed)
			if got != tt.want {
				t.Errorf("WeightedCount(%d, %d, %v) = %v, want %v",
					tt.prev, tt.cur, tt.elapsed, got, tt.want)
			}
		})
	}
}

func TestRetryAfterSeconds(t *testing.T) {
	base := time.Date(2025, 3, 1, 12, 30, 0, 0, time.UTC)

	if got := RetryAfterSeconds(base.Add(10 * time.Second)); got != 50 {
		t.Errorf("RetryAfterSeconds at :10 = %d, want 50", got)
	}
	if got := RetryAfterSeconds(base.Add(59 * time.Second)); got != 1 {
		t.Errorf("RetryAfterSeconds at :59 = %d, want 1", got)
	}
	// Never returns zero, clients always get at least one second.
	if got := RetryAfterSeconds(base.Add(59*time.Second + 900*time.Millisecond)); got < 1 {
		t.Errorf("RetryAfterSeconds near boundary = %d, want >= 1", got)
	}
}
