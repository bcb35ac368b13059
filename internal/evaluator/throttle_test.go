package evaluator

import (
	"context"
	"testing"
	"time"

	"github.com/robert-nguyenn/strategy-engine/internal/storage"
)

func TestThrottleAllowThenDeny(t *testing.T) {
	redis := storage.NewMockRedisClient()
	throttle := NewThrottle(redis, 5*time.Minute)
	ctx := context.Background()

	if !throttle.Allow(ctx, "strategy-1", "action-1", time.Minute) {
		t.Fatal("first trigger should be allowed")
	}
	if throttle.Allow(ctx, "strategy-1", "action-1", time.Minute) {
		t.Error("second trigger inside the cooldown should be denied")
	}

	// A different pair has its own gate.
	if !throttle.Allow(ctx, "strategy-1", "action-2", time.Minute) {
		t.Error("different action should not share the gate")
	}
	if !throttle.Allow(ctx, "strategy-2", "action-1", time.Minute) {
		t.Error("different strategy should not share the gate")
	}
}

func TestThrottleReopensAfterCooldownExpires(t *testing.T) {
	redis := storage.NewMockRedisClient()
	throttle := NewThrottle(redis, 5*time.Minute)
	ctx := context.Background()

	if !throttle.Allow(ctx, "strategy-1", "action-1", 30*time.Millisecond) {
		t.Fatal("first trigger should be allowed")
	}
	if throttle.Allow(ctx, "strategy-1", "action-1", 30*time.Millisecond) {
		t.Fatal("gate should be closed immediately after arming")
	}

	time.Sleep(50 * time.Millisecond)

	if !throttle.Allow(ctx, "strategy-1", "action-1", 30*time.Millisecond) {
		t.Error("gate should reopen once the record expires")
	}
}

func TestThrottleDeniesOnStoreError(t *testing.T) {
	redis := storage.NewMockRedisClient()
	redis.GetErr = context.DeadlineExceeded
	throttle := NewThrottle(redis, 5*time.Minute)

	if throttle.Allow(context.Background(), "strategy-1", "action-1", time.Minute) {
		t.Error("store errors must deny the trigger")
	}
}

func TestCooldownForInterval(t *testing.T) {
	throttle := NewThrottle(storage.NewMockRedisClient(), 5*time.Minute)

	tests := []struct {
		interval string
		expected time.Duration
	}{
		{"1min", 2 * time.Minute},
		{"5min", 10 * time.Minute},
		{"15min", 30 * time.Minute},
		{"30min", time.Hour},
		{"60min", 2 * time.Hour},
		{"daily", 23 * time.Hour},
		{"weekly", 6 * 24 * time.Hour},
		{"monthly", 27 * 24 * time.Hour},
		{"", 5 * time.Minute},
		{"fortnightly", 5 * time.Minute},
	}

	for _, tt := range tests {
		if got := throttle.CooldownForInterval(tt.interval); got != tt.expected {
			t.Errorf("CooldownForInterval(%q) = %v, want %v", tt.interval, got, tt.expected)
		}
	}
}
