package evaluator

import (
	"context"
	"fmt"
	"time"

	"github.com/robert-nguyenn/strategy-engine/internal/cache"
	"github.com/robert-nguyenn/strategy-engine/internal/storage"
	"github.com/robert-nguyenn/strategy-engine/pkg/logger"
)

// Throttle is the per-(strategy, action) cooldown gate. A record in the
// store means the pair fired within its cooldown window; records expire via
// TTL, so an allowed trigger re-arms the gate by writing a fresh record.
type Throttle struct {
	redis           storage.RedisClient
	defaultCooldown time.Duration
}

// NewThrottle creates a throttle over the given Redis client.
func NewThrottle(redis storage.RedisClient, defaultCooldown time.Duration) *Throttle {
	if defaultCooldown <= 0 {
		defaultCooldown = 5 * time.Minute
	}
	return &Throttle{redis: redis, defaultCooldown: defaultCooldown}
}

// ThrottleKey builds the throttle-store key for a strategy/action pair.
func ThrottleKey(strategyID, actionID string) string {
	return fmt.Sprintf("throttle:%s:%s", strategyID, actionID)
}

// CooldownForInterval maps the triggering event's interval to a cooldown
// window. Intraday windows are twice the interval, floored at one minute;
// longer intervals re-fire just under their natural period.
func (t *Throttle) CooldownForInterval(interval string) time.Duration {
	switch interval {
	case cache.Interval1Min, cache.Interval5Min, cache.Interval15Min, cache.Interval30Min, cache.Interval60Min:
		seconds := intervalSeconds(interval)
		cooldown := 2 * seconds
		if cooldown < time.Minute {
			cooldown = time.Minute
		}
		return cooldown
	case cache.IntervalDaily:
		return 23 * time.Hour
	case cache.IntervalWeekly:
		return 6 * 24 * time.Hour
	case cache.IntervalMonthly:
		return 27 * 24 * time.Hour
	default:
		return t.defaultCooldown
	}
}

// Allow checks the gate and, when open, arms it for the cooldown window.
// Returns false when the pair is still cooling down. Store errors deny the
// trigger: a missed action is recoverable, a duplicate order is not.
func (t *Throttle) Allow(ctx context.Context, strategyID, actionID string, cooldown time.Duration) bool {
	key := ThrottleKey(strategyID, actionID)

	exists, err := t.redis.Exists(ctx, key)
	if err != nil {
		logger.Warn("Throttle check failed, denying trigger",
			logger.ErrorField(err),
			logger.String("key", key),
		)
		return false
	}
	if exists {
		return false
	}

	if err := t.redis.Set(ctx, key, time.Now().Unix(), cooldown); err != nil {
		logger.Warn("Failed to arm throttle",
			logger.ErrorField(err),
			logger.String("key", key),
		)
		// The trigger was allowed; losing the record only risks an early
		// re-fire, which the per-run dedupe still bounds.
	}
	return true
}

func intervalSeconds(interval string) time.Duration {
	switch interval {
	case cache.Interval1Min:
		return time.Minute
	case cache.Interval5Min:
		return 5 * time.Minute
	case cache.Interval15Min:
		return 15 * time.Minute
	case cache.Interval30Min:
		return 30 * time.Minute
	case cache.Interval60Min:
		return 60 * time.Minute
	default:
		return 0
	}
}
