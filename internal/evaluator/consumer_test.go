package evaluator

import (
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

func testEvaluatorConfig() config.EvaluatorConfig {
	return config.EvaluatorConfig{
		StreamName:       "indicator.updates",
		ConsumerGroup:    "strategy-evaluator",
		ActionStreamName: "actions.required",
		ConcurrencyLimit: 2,
		ErrorBackoff:     time.Millisecond,
		TreeMaxDepth:     4,
		DefaultCooldown:  5 * time.Minute,
	}
}

// newPipeline wires a consumer whose evaluator publishes to the mock Redis
// action stream, so tests can assert end to end.
func newPipeline(st *store.MockStrategyStore, redis *storage.MockRedisClient) *Consumer {
	cfg := testEvaluatorConfig()
	e := NewEvaluator(st, cache.New(redis), NewThrottle(redis, cfg.DefaultCooldown), NewStreamActionPublisher(redis, cfg.ActionStreamName))
	return NewConsumer(cfg, redis, st, e, "consumer-test")
}

func TestProcessMessagePoisonIsAckedAndDropped(t *testing.T) {
	redis := storage.NewMockRedisClient()
	consumer := newPipeline(store.NewMockStrategyStore(), redis)

	consumer.ProcessMessage(storage.StreamMessage{
		ID:     "1-1",
		Stream: "indicator.updates",
		Values: map[string]interface{}{"cacheKey": "indicator:x"}, // no indicatorType
	})

	assert.Equal(t, []string{"1-1"}, redis.Acked)
	assert.Empty(t, redis.Published["actions.required"])

	stats := consumer.GetStats()
	assert.Equal(t, int64(1), stats.EventsPoison)
}

func TestProcessMessageNoMatchingStrategies(t *testing.T) {
	redis := storage.NewMockRedisClient()
	consumer := newPipeline(store.NewMockStrategyStore(), redis)

	event := &models.IndicatorUpdateEvent{
		CacheKey:      "indicator:x",
		IndicatorType: "RSI",
		Symbol:        "AAPL",
		Interval:      "daily",
		DataSource:    "alphavantage",
		FetchTime:     time.Now(),
	}
	values, err := event.ToStreamValues()
	require.NoError(t, err)

	consumer.ProcessMessage(storage.StreamMessage{ID: "1-2", Values: values})

	assert.Equal(t, []string{"1-2"}, redis.Acked)
	stats := consumer.GetStats()
	assert.Equal(t, int64(1), stats.EventsNoMatch)
	assert.Equal(t, int64(0), stats.StrategiesEvaluated)
}

func TestProcessMessageStoreFailureStillAcks(t *testing.T) {
	redis := storage.NewMockRedisClient()
	st := store.NewMockStrategyStore()
	st.MatchErr = assert.AnError
	consumer := newPipeline(st, redis)

	event := &models.IndicatorUpdateEvent{
		CacheKey:      "indicator:x",
		IndicatorType: "RSI",
		FetchTime:     time.Now(),
	}
	values, err := event.ToStreamValues()
	require.NoError(t, err)

	consumer.ProcessMessage(storage.StreamMessage{ID: "1-3", Values: values})

	assert.Equal(t, []string{"1-3"}, redis.Acked)
	assert.Equal(t, int64(1), consumer.GetStats().EventsFailed)
}

func TestProcessMessageEndToEndBuy(t *testing.T) {
	redis := storage.NewMockRedisClient()
	st := store.NewMockStrategyStore()
	consumer := newPipeline(st, redis)

	cond := oversoldCondition()
	seedSeries(t, redis, cond, 35.0, 28.5)

	st.Conditions[cond.ID] = cond
	st.Strategies["strategy-1"] = &models.Strategy{ID: "strategy-1", UserID: "user-1", IsActive: true}
	st.Trees["strategy-1"] = &models.StrategyBlock{
		ID:        "root",
		BlockType: models.BlockRoot,
		Children: []*models.StrategyBlock{
			{
				ID:          "if-1",
				BlockType:   models.BlockConditionIf,
				ConditionID: cond.ID,
				Condition:   cond,
				Children: []*models.StrategyBlock{
					actionBlock("act-1", 0, buyAction("action-buy")),
				},
			},
		},
	}

	// Inactive strategies referencing the same condition must not run.
	st.Strategies["strategy-2"] = &models.Strategy{ID: "strategy-2", UserID: "user-2", IsActive: false}
	st.Trees["strategy-2"] = st.Trees["strategy-1"]

	event := &models.IndicatorUpdateEvent{
		CacheKey:      "indicator:trigger",
		IndicatorType: cond.IndicatorType,
		Symbol:        cond.Symbol,
		Interval:      cond.Interval,
		DataSource:    cond.DataSource,
		DataKey:       cond.DataKey,
		FetchTime:     time.Now(),
	}
	values, err := event.ToStreamValues()
	require.NoError(t, err)

	consumer.ProcessMessage(storage.StreamMessage{ID: "1-4", Values: values})

	assert.Equal(t, []string{"1-4"}, redis.Acked)

	published := redis.Published["actions.required"]
	require.Len(t, published, 1)

	actionEvent, err := models.ActionRequiredEventFromValues(published[0].Values)
	require.NoError(t, err)
	assert.Equal(t, "action-buy", actionEvent.ActionID)
	assert.Equal(t, models.ActionBuy, actionEvent.ActionType)
	assert.Equal(t, "strategy-1", actionEvent.StrategyID)
	assert.Equal(t, "user-1", actionEvent.UserID)

	stats := consumer.GetStats()
	assert.Equal(t, int64(1), stats.EventsEvaluated)
	assert.Equal(t, int64(1), stats.StrategiesEvaluated)
}
