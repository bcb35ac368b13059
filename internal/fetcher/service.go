package fetcher

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/robert-nguyenn/strategy-engine/internal/cache"
	"github.com/robert-nguyenn/strategy-engine/internal/fingerprint"
	"github.com/robert-nguyenn/strategy-engine/internal/models"
	"github.com/robert-nguyenn/strategy-engine/internal/storage"
	"github.com/robert-nguyenn/strategy-engine/pkg/indicator"
	"github.com/robert-nguyenn/strategy-engine/pkg/logger"
)

// computedDataSource marks profiles whose series is calculated locally from
// raw closes instead of requested from a provider indicator endpoint.
const computedDataSource = "computed"

const defaultIndicatorPeriod = 14

var (
	refreshesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fetcher_refreshes_total",
			Help: "Total number of indicator refresh attempts",
		},
		[]string{"outcome"}, // "fetched", "fresh", "error"
	)

	updatesPublished = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fetcher_updates_published_total",
			Help: "Total number of indicator update events published",
		},
	)
)

// Service refreshes indicator profiles: fetch, cache, publish.
type Service struct {
	provider Provider
	cache    *cache.Cache
	redis    storage.RedisClient
	stream   string
}

// NewService creates a refresh service publishing to the given stream.
func NewService(provider Provider, c *cache.Cache, redis storage.RedisClient, stream string) *Service {
	return &Service{
		provider: provider,
		cache:    c,
		redis:    redis,
		stream:   stream,
	}
}

// RefreshProfile refreshes one indicator profile if its cached entry has
// consumed enough of its TTL, then publishes an update event. Returns whether
// an update was published.
func (s *Service) RefreshProfile(ctx context.Context, profile *models.IndicatorProfile) (bool, error) {
	fp := fingerprint.ForProfile(profile)
	now := time.Now()

	if entry, ok := s.cache.Get(ctx, fp); ok {
		if !cache.ShouldRefresh(entry, profile.Interval, now) {
			refreshesTotal.WithLabelValues("fresh").Inc()
			logger.Debug("Cached indicator still fresh, skipping fetch",
				logger.String("cache_key", fp),
			)
			return false, nil
		}
	}

	series, err := s.fetchSeries(ctx, profile)
	if err != nil {
		refreshesTotal.WithLabelValues("error").Inc()
		return false, fmt.Errorf("failed to fetch %s: %w", fp, err)
	}

	meta := models.CacheMetadata{
		ProviderLastRefreshed: series.LastRefreshed,
		FetchedAt:             now,
	}
	ttl := cache.TTLForInterval(profile.Interval, now)
	if err := s.cache.Set(ctx, fp, series.Data, meta, ttl); err != nil {
		refreshesTotal.WithLabelValues("error").Inc()
		return false, fmt.Errorf("failed to cache %s: %w", fp, err)
	}

	event := &models.IndicatorUpdateEvent{
		CacheKey:      fp,
		IndicatorType: profile.IndicatorType,
		Symbol:        profile.Symbol,
		Interval:      profile.Interval,
		DataSource:    profile.DataSource,
		DataKey:       profile.DataKey,
		Parameters:    profile.Parameters,
		LastRefreshed: series.LastRefreshed,
		FetchTime:     now,
	}
	values, err := event.ToStreamValues()
	if err != nil {
		refreshesTotal.WithLabelValues("error").Inc()
		return false, fmt.Errorf("failed to encode update event: %w", err)
	}
	if err := s.redis.PublishToStream(ctx, s.stream, values); err != nil {
		refreshesTotal.WithLabelValues("error").Inc()
		return false, fmt.Errorf("failed to publish update event: %w", err)
	}

	refreshesTotal.WithLabelValues("fetched").Inc()
	updatesPublished.Inc()
	logger.Info("Indicator refreshed",
		logger.String("cache_key", fp),
		logger.String("interval", profile.Interval),
		logger.Int("points", len(series.Data)),
		logger.Duration("ttl", ttl),
	)
	return true, nil
}

// fetchSeries routes between provider-computed and locally computed series.
func (s *Service) fetchSeries(ctx context.Context, profile *models.IndicatorProfile) (*Series, error) {
	if strings.EqualFold(profile.DataSource, computedDataSource) {
		return s.computeSeries(ctx, profile)
	}
	return s.provider.FetchSeries(ctx, profile)
}

// computeSeries fetches raw closes and runs the local calculator over them.
func (s *Service) computeSeries(ctx context.Context, profile *models.IndicatorProfile) (*Series, error) {
	calc, err := indicator.New(profile.IndicatorType, profilePeriod(profile))
	if err != nil {
		return nil, err
	}

	closes, lastRefreshed, err := s.provider.FetchCloses(ctx, profile.Symbol, profile.Interval)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch closes for %s: %w", profile.Symbol, err)
	}

	values, firstValid, err := calc.Compute(closes)
	if err != nil {
		return nil, fmt.Errorf("%s computation failed: %w", calc.Name(), err)
	}

	field := profile.DataKey
	if field == "" {
		field = strings.ToLower(profile.IndicatorType)
	}

	// Synthetic date keys preserve chronological ordering under the
	// descending sort the evaluator applies when extracting values.
	data := make(map[string]map[string]interface{}, len(values)-firstValid)
	base := time.Now().AddDate(0, 0, -(len(values) - 1))
	for i := firstValid; i < len(values); i++ {
		date := base.AddDate(0, 0, i).Format("2006-01-02")
		data[date] = map[string]interface{}{field: values[i]}
	}

	return &Series{Data: data, LastRefreshed: lastRefreshed}, nil
}

func profilePeriod(profile *models.IndicatorProfile) int {
	for _, key := range []string{"time_period", "period"} {
		switch v := profile.Parameters[key].(type) {
		case float64:
			return int(v)
		case int:
			return v
		}
	}
	return defaultIndicatorPeriod
}
