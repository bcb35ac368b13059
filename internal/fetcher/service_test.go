package fetcher

import (
	"context"
	"testing"

	"github.com/robert-nguyenn/strategy-engine/internal/cache"
	"github.com/robert-nguyenn/strategy-engine/internal/fingerprint"
	"github.com/robert-nguyenn/strategy-engine/internal/models"
	"github.com/robert-nguyenn/strategy-engine/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testStream = "indicator.updates"

func newTestService(provider Provider, redis *storage.MockRedisClient) *Service {
	return NewService(provider, cache.New(redis), redis, testStream)
}

func rsiProfile() *models.IndicatorProfile {
	return &models.IndicatorProfile{
		IndicatorType: "RSI",
		Symbol:        "AAPL",
		Interval:      "daily",
		DataSource:    "alphavantage",
		DataKey:       "RSI",
		Parameters:    models.Parameters{"time_period": 14.0},
	}
}

func TestRefreshProfileFetchesCachesAndPublishes(t *testing.T) {
	redis := storage.NewMockRedisClient()
	provider := NewMockProvider()
	provider.SeriesResult = &Series{
		Data: map[string]map[string]interface{}{
			"2025-06-02": {"RSI": "28.5"},
			"2025-06-01": {"RSI": "35.0"},
		},
		LastRefreshed: "2025-06-02",
	}
	service := newTestService(provider, redis)

	profile := rsiProfile()
	published, err := service.RefreshProfile(context.Background(), profile)
	require.NoError(t, err)
	assert.True(t, published)

	// Cached under the profile fingerprint.
	fp := fingerprint.ForProfile(profile)
	entry, ok := cache.New(redis).Get(context.Background(), fp)
	require.True(t, ok)
	assert.Equal(t, "28.5", entry.Data["2025-06-02"]["RSI"])
	assert.Equal(t, "2025-06-02", entry.Metadata.ProviderLastRefreshed)

	// Published on the update stream with a parseable payload.
	messages := redis.Published[testStream]
	require.Len(t, messages, 1)
	event, err := models.IndicatorUpdateEventFromValues(messages[0].Values)
	require.NoError(t, err)
	assert.Equal(t, fp, event.CacheKey)
	assert.Equal(t, "RSI", event.IndicatorType)
	assert.Equal(t, "2025-06-02", event.LastRefreshed)
}

func TestRefreshProfileSkipsFreshEntries(t *testing.T) {
	redis := storage.NewMockRedisClient()
	provider := NewMockProvider()
	provider.SeriesResult = &Series{
		Data:          map[string]map[string]interface{}{"2025-06-02": {"RSI": "28.5"}},
		LastRefreshed: "2025-06-02",
	}
	service := newTestService(provider, redis)
	ctx := context.Background()

	profile := rsiProfile()

	published, err := service.RefreshProfile(ctx, profile)
	require.NoError(t, err)
	assert.True(t, published)

	// Immediately after a fetch the entry is nowhere near its refresh
	// threshold; the second run must not touch the provider.
	published, err = service.RefreshProfile(ctx, profile)
	require.NoError(t, err)
	assert.False(t, published)

	seriesCalls, _ := provider.CallCounts()
	assert.Equal(t, 1, seriesCalls)
	assert.Len(t, redis.Published[testStream], 1)
}

func TestRefreshProfileComputedIndicator(t *testing.T) {
	redis := storage.NewMockRedisClient()
	provider := NewMockProvider()
	provider.Closes = []float64{1, 2, 3, 4, 5}
	provider.ClosesRefreshed = "2025-06-02"
	service := newTestService(provider, redis)

	profile := &models.IndicatorProfile{
		IndicatorType: "SMA",
		Symbol:        "AAPL",
		Interval:      "daily",
		DataSource:    "computed",
		Parameters:    models.Parameters{"period": 3.0},
	}

	published, err := service.RefreshProfile(context.Background(), profile)
	require.NoError(t, err)
	assert.True(t, published)

	seriesCalls, closesCalls := provider.CallCounts()
	assert.Equal(t, 0, seriesCalls, "computed profiles fetch closes, not provider indicators")
	assert.Equal(t, 1, closesCalls)

	fp := fingerprint.ForProfile(profile)
	entry, ok := cache.New(redis).Get(context.Background(), fp)
	require.True(t, ok)

	// SMA(3) over 1..5: the latest value is the mean of {3,4,5}.
	values := extractLatest(t, entry, "sma")
	assert.InDelta(t, 4.0, values, 1e-9)
}

func TestRefreshProfileProviderFailure(t *testing.T) {
	redis := storage.NewMockRedisClient()
	provider := NewMockProvider()
	provider.SeriesErr = assert.AnError
	service := newTestService(provider, redis)

	published, err := service.RefreshProfile(context.Background(), rsiProfile())
	assert.Error(t, err)
	assert.False(t, published)
	assert.Empty(t, redis.Published[testStream])
}

// extractLatest returns the field value at the lexicographically greatest
// date key.
func extractLatest(t *testing.T, entry *models.CacheEntry, field string) float64 {
	t.Helper()
	latestDate := ""
	for date := range entry.Data {
		if date > latestDate {
			latestDate = date
		}
	}
	require.NotEmpty(t, latestDate)
	value, ok := entry.Data[latestDate][field].(float64)
	require.True(t, ok, "field %q missing or non-numeric at %s", field, latestDate)
	return value
}
