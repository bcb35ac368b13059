// Package cache implements the tiered indicator cache: a standard tier keyed
// by the indicator fingerprint and a longer-lived priority tier for entries
// classified HIGH. All I/O errors degrade to cache misses; the cache never
// fails a fetch or evaluation path.
package cache

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/robert-nguyenn/strategy-engine/internal/fingerprint"
	"github.com/robert-nguyenn/strategy-engine/internal/models"
	"github.com/robert-nguyenn/strategy-engine/internal/storage"
	"github.com/robert-nguyenn/strategy-engine/pkg/logger"
)

// PriorityKeyPrefix marks the priority-tier shadow copy of an entry.
const PriorityKeyPrefix = "priority:"

const (
	evictAccessThreshold   = 2  // Below this, LOW entries are swept
	promoteAccessThreshold = 10 // Above this, non-HIGH entries are promoted
)

var (
	cacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "indicator_cache_hits_total",
			Help: "Total number of indicator cache hits",
		},
		[]string{"tier"},
	)

	cacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "indicator_cache_misses_total",
			Help: "Total number of indicator cache misses",
		},
	)

	cacheCorrupt = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "indicator_cache_corrupt_entries_total",
			Help: "Total number of corrupt cache entries deleted on read",
		},
	)

	cacheOptimizerActions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "indicator_cache_optimizer_actions_total",
			Help: "Total number of optimizer sweep actions",
		},
		[]string{"action"}, // "evicted" or "promoted"
	)
)

// Cache is the tiered indicator cache over a shared Redis client.
type Cache struct {
	redis storage.RedisClient
}

// New creates a cache over the given Redis client.
func New(redis storage.RedisClient) *Cache {
	return &Cache{redis: redis}
}

// Get returns the cached entry for a fingerprint, checking the priority tier
// first. On a hit, access metadata is refreshed asynchronously so the read
// path never waits for the write-back. Corrupt entries are deleted and
// reported as misses. Returns (nil, false) on any miss or I/O error.
func (c *Cache) Get(ctx context.Context, fp string) (*models.CacheEntry, bool) {
	for _, key := range []string{PriorityKeyPrefix + fp, fp} {
		entry, ok := c.getKey(ctx, key)
		if !ok {
			continue
		}
		tier := "standard"
		if strings.HasPrefix(key, PriorityKeyPrefix) {
			tier = "priority"
		}
		cacheHits.WithLabelValues(tier).Inc()
		go c.touch(key, entry)
		return entry, true
	}
	cacheMisses.Inc()
	return nil, false
}

// BatchGet fetches many fingerprints in one pipelined round trip, priority
// tier first. On a batch failure it falls back to sequential Gets so one bad
// round trip does not fail a whole strategy run. Missing fingerprints are
// absent from the result map.
func (c *Cache) BatchGet(ctx context.Context, fps []string) map[string]*models.CacheEntry {
	result := make(map[string]*models.CacheEntry, len(fps))
	if len(fps) == 0 {
		return result
	}

	// Interleave priority and standard keys so one MGET covers both tiers.
	keys := make([]string, 0, len(fps)*2)
	for _, fp := range fps {
		keys = append(keys, PriorityKeyPrefix+fp, fp)
	}

	values, err := c.redis.MGet(ctx, keys)
	if err != nil {
		logger.Warn("Cache batch read failed, falling back to sequential gets",
			logger.ErrorField(err),
			logger.Int("keys", len(fps)),
		)
		for _, fp := range fps {
			if entry, ok := c.Get(ctx, fp); ok {
				result[fp] = entry
			}
		}
		return result
	}

	for i, fp := range fps {
		for j, key := range []string{keys[i*2], keys[i*2+1]} {
			raw := values[i*2+j]
			if raw == "" {
				continue
			}
			var entry models.CacheEntry
			if err := json.Unmarshal([]byte(raw), &entry); err != nil {
				c.deleteCorrupt(ctx, key, err)
				continue
			}
			tier := "standard"
			if j == 0 {
				tier = "priority"
			}
			cacheHits.WithLabelValues(tier).Inc()
			go c.touch(key, &entry)
			result[fp] = &entry
			break
		}
		if _, ok := result[fp]; !ok {
			cacheMisses.Inc()
		}
	}
	return result
}

// Set writes the standard-tier entry and, for HIGH-priority requests, mirrors
// it into the priority tier with double the TTL.
func (c *Cache) Set(ctx context.Context, fp string, data map[string]map[string]interface{}, meta models.CacheMetadata, ttl time.Duration) error {
	indicatorType, symbol := identityFromFingerprint(fp)
	meta.Priority = ClassifyPriority(indicatorType, symbol)
	meta.CachedAt = time.Now()
	meta.TTLSeconds = int(ttl.Seconds())

	entry := &models.CacheEntry{Data: data, Metadata: meta}
	if err := c.redis.Set(ctx, fp, entry, ttl); err != nil {
		return err
	}

	if meta.Priority == models.PriorityHigh {
		if err := c.redis.Set(ctx, PriorityKeyPrefix+fp, entry, ttl*2); err != nil {
			logger.Warn("Failed to write priority-tier cache entry",
				logger.ErrorField(err),
				logger.String("key", fp),
			)
			// Standard tier succeeded; the write as a whole did not fail.
		}
	}
	return nil
}

// Optimize sweeps all standard-tier entries: low-value LOW-priority entries
// are evicted, heavily accessed entries are promoted to HIGH with extended
// TTL. Runs on a schedule; errors are logged and the sweep continues.
func (c *Cache) Optimize(ctx context.Context) {
	keys, err := c.redis.Keys(ctx, fingerprint.Namespace+"*")
	if err != nil {
		logger.Warn("Cache optimizer key scan failed", logger.ErrorField(err))
		return
	}

	var evicted, promoted int
	for _, key := range keys {
		entry, ok := c.getKey(ctx, key)
		if !ok {
			continue
		}

		if entry.Metadata.AccessCount < evictAccessThreshold && entry.Metadata.Priority == models.PriorityLow {
			if err := c.redis.Delete(ctx, key); err != nil {
				logger.Warn("Cache optimizer eviction failed",
					logger.ErrorField(err),
					logger.String("key", key),
				)
				continue
			}
			evicted++
			cacheOptimizerActions.WithLabelValues("evicted").Inc()
			continue
		}

		if entry.Metadata.AccessCount > promoteAccessThreshold && entry.Metadata.Priority != models.PriorityHigh {
			entry.Metadata.Priority = models.PriorityHigh
			ttl := time.Duration(entry.Metadata.TTLSeconds) * time.Second
			if ttl <= 0 {
				ttl = TTLForInterval(Interval5Min, time.Now())
			}
			if err := c.redis.Set(ctx, key, entry, ttl); err != nil {
				logger.Warn("Cache optimizer promotion failed",
					logger.ErrorField(err),
					logger.String("key", key),
				)
				continue
			}
			if err := c.redis.Set(ctx, PriorityKeyPrefix+key, entry, ttl*2); err != nil {
				logger.Warn("Cache optimizer priority-tier write failed",
					logger.ErrorField(err),
					logger.String("key", key),
				)
			}
			promoted++
			cacheOptimizerActions.WithLabelValues("promoted").Inc()
		}
	}

	logger.Info("Cache optimizer sweep complete",
		logger.Int("scanned", len(keys)),
		logger.Int("evicted", evicted),
		logger.Int("promoted", promoted),
	)
}

// getKey reads and decodes a single cache key. Corrupt entries are deleted
// (self-healing) and reported absent. I/O errors are logged as misses.
func (c *Cache) getKey(ctx context.Context, key string) (*models.CacheEntry, bool) {
	raw, err := c.redis.Get(ctx, key)
	if err != nil {
		logger.Warn("Cache read failed, treating as miss",
			logger.ErrorField(err),
			logger.String("key", key),
		)
		return nil, false
	}
	if raw == "" {
		return nil, false
	}

	var entry models.CacheEntry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		c.deleteCorrupt(ctx, key, err)
		return nil, false
	}
	return &entry, true
}

func (c *Cache) deleteCorrupt(ctx context.Context, key string, cause error) {
	cacheCorrupt.Inc()
	logger.Warn("Deleting corrupt cache entry",
		logger.ErrorField(cause),
		logger.String("key", key),
	)
	if err := c.redis.Delete(ctx, key); err != nil {
		logger.Warn("Failed to delete corrupt cache entry",
			logger.ErrorField(err),
			logger.String("key", key),
		)
	}
}

// touch refreshes access metadata for a hit. Runs off the read path; the
// remaining TTL is preserved so a touch never extends an entry's life.
func (c *Cache) touch(key string, entry *models.CacheEntry) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	ttl, err := c.redis.TTL(ctx, key)
	if err != nil || ttl <= 0 {
		return
	}

	updated := *entry
	updated.Metadata.AccessCount++
	updated.Metadata.LastAccessedAt = time.Now()
	if err := c.redis.Set(ctx, key, &updated, ttl); err != nil {
		logger.Debug("Cache metadata touch failed",
			logger.ErrorField(err),
			logger.String("key", key),
		)
	}
}

// identityFromFingerprint recovers the indicatorType and symbol fields from a
// rendered fingerprint for priority classification. The fingerprint format is
// owned by the fingerprint package; this only splits the rendered fields.
func identityFromFingerprint(fp string) (indicatorType, symbol string) {
	trimmed := strings.TrimPrefix(fp, fingerprint.Namespace)
	for _, part := range strings.Split(trimmed, "|") {
		name, value, ok := strings.Cut(part, ":")
		if !ok || value == "NULL" {
			continue
		}
		switch name {
		case "indicatorType":
			indicatorType = value
		case "symbol":
			symbol = value
		}
	}
	return indicatorType, symbol
}
