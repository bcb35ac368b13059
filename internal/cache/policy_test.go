package cache

import (
	"testing"
	"time"

	"github.com/robert-nguyenn/strategy-engine/internal/models"
)

func TestClassifyPriority(t *testing.T) {
	tests := []struct {
		name          string
		indicatorType string
		symbol        string
		expected      models.Priority
	}{
		{"popular type and symbol", "RSI", "AAPL", models.PriorityHigh},
		{"popular type only", "RSI", "ZZTOP", models.PriorityMedium},
		{"popular symbol only", "OBSCURE_OSC", "SPY", models.PriorityMedium},
		{"neither popular", "OBSCURE_OSC", "ZZTOP", models.PriorityLow},
		{"empty symbol", "SMA", "", models.PriorityMedium},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ClassifyPriority(tt.indicatorType, tt.symbol)
			if got != tt.expected {
				t.Errorf("ClassifyPriority(%s, %s) = %s, want %s", tt.indicatorType, tt.symbol, got, tt.expected)
			}
		})
	}
}

func TestTTLForIntervalMarketHoursScaling(t *testing.T) {
	// Wednesday 2025-06-04, 11:00 and 20:00 Eastern.
	inSession := time.Date(2025, 6, 4, 11, 0, 0, 0, nyse)
	afterHours := time.Date(2025, 6, 4, 20, 0, 0, 0, nyse)
	weekend := time.Date(2025, 6, 7, 11, 0, 0, 0, nyse)

	base := 10 * time.Minute // 5min interval

	if got := TTLForInterval(Interval5Min, inSession); got != base*7/10 {
		t.Errorf("in-session TTL = %v, want %v", got, base*7/10)
	}
	if got := TTLForInterval(Interval5Min, afterHours); got != base*3 {
		t.Errorf("after-hours TTL = %v, want %v", got, base*3)
	}
	if got := TTLForInterval(Interval5Min, weekend); got != base*3 {
		t.Errorf("weekend TTL = %v, want %v", got, base*3)
	}
}

func TestTTLForIntervalDailyUnaffectedBySession(t *testing.T) {
	inSession := time.Date(2025, 6, 4, 11, 0, 0, 0, nyse)
	afterHours := time.Date(2025, 6, 4, 20, 0, 0, 0, nyse)

	want := 2880 * time.Minute
	if got := TTLForInterval(IntervalDaily, inSession); got != want {
		t.Errorf("daily in-session TTL = %v, want %v", got, want)
	}
	if got := TTLForInterval(IntervalDaily, afterHours); got != want {
		t.Errorf("daily after-hours TTL = %v, want %v", got, want)
	}
}

func TestTTLForIntervalUnknownFallsBackTo5Min(t *testing.T) {
	// An unknown interval behaves exactly like 5min, session scaling included.
	inSession := time.Date(2025, 6, 4, 11, 0, 0, 0, nyse)
	afterHours := time.Date(2025, 6, 4, 20, 0, 0, 0, nyse)

	if got, want := TTLForInterval("fortnightly", afterHours), 30*time.Minute; got != want {
		t.Errorf("unknown-interval after-hours TTL = %v, want %v", got, want)
	}
	if got, want := TTLForInterval("fortnightly", inSession), 7*time.Minute; got != want {
		t.Errorf("unknown-interval in-session TTL = %v, want %v", got, want)
	}
}

func TestShouldRefresh(t *testing.T) {
	now := time.Date(2025, 6, 4, 12, 0, 0, 0, time.UTC)

	if !ShouldRefresh(nil, Interval5Min, now) {
		t.Error("nil entry should always refresh")
	}

	// 5min interval: threshold 0.60 of 10 minutes = 6 minutes.
	fresh := &models.CacheEntry{Metadata: models.CacheMetadata{FetchedAt: now.Add(-5 * time.Minute)}}
	stale := &models.CacheEntry{Metadata: models.CacheMetadata{FetchedAt: now.Add(-7 * time.Minute)}}

	if ShouldRefresh(fresh, Interval5Min, now) {
		t.Error("entry under the refresh threshold should not refresh")
	}
	if !ShouldRefresh(stale, Interval5Min, now) {
		t.Error("entry past the refresh threshold should refresh")
	}
}
