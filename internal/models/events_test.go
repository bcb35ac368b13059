package models

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIndicatorUpdateEventWireRoundTrip(t *testing.T) {
	fetchTime := time.Date(2025, 6, 2, 14, 30, 0, 123456789, time.UTC)
	event := &IndicatorUpdateEvent{
		CacheKey:      "indicator:dataSource:alphavantage|indicatorType:RSI|interval:daily|parameters:NULL|symbol:AAPL",
		IndicatorType: "RSI",
		Symbol:        "AAPL",
		Interval:      "daily",
		DataSource:    "alphavantage",
		DataKey:       "RSI",
		Parameters:    Parameters{"time_period": 14.0},
		LastRefreshed: "2025-06-02",
		FetchTime:     fetchTime,
	}

	values, err := event.ToStreamValues()
	require.NoError(t, err)

	// Stream field maps must be flat strings apart from the encoder's own types.
	parsed, err := IndicatorUpdateEventFromValues(values)
	require.NoError(t, err)

	assert.Equal(t, event.CacheKey, parsed.CacheKey)
	assert.Equal(t, event.IndicatorType, parsed.IndicatorType)
	assert.Equal(t, event.Parameters, parsed.Parameters)
	assert.True(t, parsed.FetchTime.Equal(fetchTime))
}

func TestIndicatorUpdateEventFromValuesRejectsGarbage(t *testing.T) {
	tests := []struct {
		name   string
		values map[string]interface{}
	}{
		{
			name:   "missing cacheKey",
			values: map[string]interface{}{"indicatorType": "RSI"},
		},
		{
			name:   "missing indicatorType",
			values: map[string]interface{}{"cacheKey": "indicator:x"},
		},
		{
			name: "malformed parameters",
			values: map[string]interface{}{
				"cacheKey":      "indicator:x",
				"indicatorType": "RSI",
				"parameters":    "{not json",
			},
		},
		{
			name: "malformed fetchTime",
			values: map[string]interface{}{
				"cacheKey":      "indicator:x",
				"indicatorType": "RSI",
				"fetchTime":     "yesterday",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := IndicatorUpdateEventFromValues(tt.values)
			assert.Error(t, err)
		})
	}
}

func TestActionRequiredEventWireRoundTrip(t *testing.T) {
	event := &ActionRequiredEvent{
		ActionID:   "action-1",
		ActionType: ActionBuy,
		Parameters: Parameters{"symbol": "AAPL", "quantity": 10.0},
		StrategyID: "strategy-1",
		UserID:     "user-1",
		TriggeringIndicator: &IndicatorUpdateEvent{
			CacheKey:      "indicator:x",
			IndicatorType: "RSI",
			FetchTime:     time.Date(2025, 6, 2, 14, 30, 0, 0, time.UTC),
		},
	}

	values, err := event.ToStreamValues()
	require.NoError(t, err)

	parsed, err := ActionRequiredEventFromValues(values)
	require.NoError(t, err)

	assert.Equal(t, event.ActionID, parsed.ActionID)
	assert.Equal(t, ActionBuy, parsed.ActionType)
	assert.Equal(t, event.Parameters, parsed.Parameters)
	require.NotNil(t, parsed.TriggeringIndicator)
	assert.Equal(t, "RSI", parsed.TriggeringIndicator.IndicatorType)
}

func TestActionRequiredEventValidation(t *testing.T) {
	event := &ActionRequiredEvent{
		ActionType: ActionSell,
		StrategyID: "strategy-1",
		UserID:     "user-1",
	}
	err := event.Validate()
	assert.True(t, errors.Is(err, ErrMissingField))

	// Events without a triggering indicator stay valid; the executor does not
	// need it to act.
	event.ActionID = "action-1"
	assert.NoError(t, event.Validate())

	values, err := event.ToStreamValues()
	require.NoError(t, err)
	parsed, err := ActionRequiredEventFromValues(values)
	require.NoError(t, err)
	assert.Nil(t, parsed.TriggeringIndicator)
}
