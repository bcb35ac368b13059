package fetcher

import (
	"context"
	"testing"
	"time"

	"github.com/robert-nguyenn/strategy-engine/internal/cache"
	"github.com/robert-nguyenn/strategy-engine/internal/config"
	"github.com/robert-nguyenn/strategy-engine/internal/models"
	"github.com/robert-nguyenn/strategy-engine/internal/storage"
	"github.com/robert-nguyenn/strategy-engine/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func conditionBlock(cond *models.Condition) *models.StrategyBlock {
	return &models.StrategyBlock{
		ID:          "if-" + cond.ID,
		BlockType:   models.BlockConditionIf,
		ConditionID: cond.ID,
		Condition:   cond,
	}
}

func newTestScheduler(st *store.MockStrategyStore) (*Scheduler, *MockProvider) {
	redis := storage.NewMockRedisClient()
	provider := NewMockProvider()
	provider.SeriesResult = &Series{
		Data:          map[string]map[string]interface{}{"2025-06-02": {"RSI": "28.5"}},
		LastRefreshed: "2025-06-02",
	}
	indicatorCache := cache.New(redis)
	service := NewService(provider, indicatorCache, redis, testStream)
	cfg := config.FetcherConfig{
		StreamName:        testStream,
		DiscoveryInterval: time.Minute,
		OptimizeSpec:      "0 * * * *",
	}
	return NewScheduler(cfg, st, service, indicatorCache), provider
}

func TestSyncSchedulesDiscoveredProfiles(t *testing.T) {
	st := store.NewMockStrategyStore()
	rsi := &models.Condition{
		ID:            "cond-1",
		IndicatorType: "RSI",
		Symbol:        "AAPL",
		Interval:      "daily",
		DataSource:    "alphavantage",
	}
	sma := &models.Condition{
		ID:            "cond-2",
		IndicatorType: "SMA",
		Symbol:        "MSFT",
		Interval:      "5min",
		DataSource:    "alphavantage",
	}
	st.Strategies["strategy-1"] = &models.Strategy{ID: "strategy-1", UserID: "user-1", IsActive: true}
	st.Trees["strategy-1"] = &models.StrategyBlock{
		ID:        "root",
		BlockType: models.BlockRoot,
		Children:  []*models.StrategyBlock{conditionBlock(rsi), conditionBlock(sma)},
	}

	scheduler, _ := newTestScheduler(st)
	defer scheduler.Stop()

	added, pruned, err := scheduler.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, added)
	assert.Equal(t, 0, pruned)
	assert.Equal(t, 2, scheduler.JobCount())
}

func TestSyncIsIdempotent(t *testing.T) {
	st := store.NewMockStrategyStore()
	cond := &models.Condition{
		ID:            "cond-1",
		IndicatorType: "RSI",
		Symbol:        "AAPL",
		Interval:      "daily",
		DataSource:    "alphavantage",
	}
	st.Strategies["strategy-1"] = &models.Strategy{ID: "strategy-1", UserID: "user-1", IsActive: true}
	st.Trees["strategy-1"] = &models.StrategyBlock{
		ID:        "root",
		BlockType: models.BlockRoot,
		Children:  []*models.StrategyBlock{conditionBlock(cond)},
	}

	scheduler, _ := newTestScheduler(st)
	defer scheduler.Stop()
	ctx := context.Background()

	added, pruned, err := scheduler.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, added)

	// An unchanged store is a no-op on the second pass.
	added, pruned, err = scheduler.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, added)
	assert.Equal(t, 0, pruned)
	assert.Equal(t, 1, scheduler.JobCount())
}

func TestSyncPrunesVanishedProfiles(t *testing.T) {
	st := store.NewMockStrategyStore()
	cond := &models.Condition{
		ID:            "cond-1",
		IndicatorType: "RSI",
		Symbol:        "AAPL",
		Interval:      "daily",
		DataSource:    "alphavantage",
	}
	st.Strategies["strategy-1"] = &models.Strategy{ID: "strategy-1", UserID: "user-1", IsActive: true}
	st.Trees["strategy-1"] = &models.StrategyBlock{
		ID:        "root",
		BlockType: models.BlockRoot,
		Children:  []*models.StrategyBlock{conditionBlock(cond)},
	}

	scheduler, _ := newTestScheduler(st)
	defer scheduler.Stop()
	ctx := context.Background()

	_, _, err := scheduler.Sync(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, scheduler.JobCount())

	// Deactivate the only strategy; its profile job must go away.
	st.Strategies["strategy-1"].IsActive = false

	added, pruned, err := scheduler.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, added)
	assert.Equal(t, 1, pruned)
	assert.Equal(t, 0, scheduler.JobCount())
}

func TestSyncEmptyStore(t *testing.T) {
	scheduler, _ := newTestScheduler(store.NewMockStrategyStore())
	defer scheduler.Stop()

	added, pruned, err := scheduler.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, added)
	assert.Equal(t, 0, pruned)
	assert.Equal(t, 0, scheduler.JobCount())
}

func TestCronSpecForInterval(t *testing.T) {
	tests := []struct {
		interval string
		expected string
	}{
		{"1min", "* * * * *"},
		{"5min", "*/5 * * * *"},
		{"15min", "*/15 * * * *"},
		{"30min", "*/30 * * * *"},
		{"60min", "0 * * * *"},
		{"daily", "15 21 * * 1-5"},
		{"weekly", "30 21 * * 5"},
		{"monthly", "0 22 1 * *"},
		{"", "*/5 * * * *"},
	}
	for _, tt := range tests {
		if got := cronSpecForInterval(tt.interval); got != tt.expected {
			t.Errorf("cronSpecForInterval(%q) = %q, want %q", tt.interval, got, tt.expected)
		}
	}
}

// Interval-to-schedule coverage for discovered trees with nested groups.
func TestSyncWalksNestedTrees(t *testing.T) {
	st := store.NewMockStrategyStore()
	leaf := &models.Condition{
		ID:            "cond-deep",
		IndicatorType: "EMA",
		Symbol:        "NVDA",
		Interval:      "15min",
		DataSource:    "alphavantage",
	}
	st.Strategies["strategy-1"] = &models.Strategy{ID: "strategy-1", UserID: "user-1", IsActive: true}
	st.Trees["strategy-1"] = &models.StrategyBlock{
		ID:        "root",
		BlockType: models.BlockRoot,
		Children: []*models.StrategyBlock{
			{
				ID:        "group-1",
				BlockType: models.BlockGroup,
				Children:  []*models.StrategyBlock{conditionBlock(leaf)},
			},
		},
	}

	scheduler, _ := newTestScheduler(st)
	defer scheduler.Stop()

	added, _, err := scheduler.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, added)
}
