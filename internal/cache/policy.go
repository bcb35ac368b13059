package cache

import (
	"time"

	"github.com/robert-nguyenn/strategy-engine/internal/models"
)

// Supported fetch intervals.
const (
	Interval1Min    = "1min"
	Interval5Min    = "5min"
	Interval15Min   = "15min"
	Interval30Min   = "30min"
	Interval60Min   = "60min"
	IntervalDaily   = "daily"
	IntervalWeekly  = "weekly"
	IntervalMonthly = "monthly"
)

// baseTTLMinutes is the pre-multiplier TTL per interval.
var baseTTLMinutes = map[string]int{
	Interval1Min:    2,
	Interval5Min:    10,
	Interval15Min:   30,
	Interval30Min:   60,
	Interval60Min:   120,
	IntervalDaily:   2880,
	IntervalWeekly:  10080,
	IntervalMonthly: 43200,
}

// refreshThresholds is the fraction of the TTL after which an entry is
// considered due for refresh. Intraday intervals refresh more eagerly.
var refreshThresholds = map[string]float64{
	Interval1Min:    0.50,
	Interval5Min:    0.60,
	Interval15Min:   0.65,
	Interval30Min:   0.70,
	Interval60Min:   0.75,
	IntervalDaily:   0.85,
	IntervalWeekly:  0.90,
	IntervalMonthly: 0.95,
}

// popularIndicatorTypes and popularSymbols drive priority classification.
// Curated, not derived; keep small.
var popularIndicatorTypes = map[string]bool{
	"SMA":    true,
	"EMA":    true,
	"RSI":    true,
	"MACD":   true,
	"BBANDS": true,
	"VWAP":   true,
	"PRICE":  true,
}

var popularSymbols = map[string]bool{
	"AAPL": true,
	"MSFT": true,
	"GOOGL": true,
	"AMZN": true,
	"NVDA": true,
	"META": true,
	"TSLA": true,
	"SPY":  true,
	"QQQ":  true,
}

// nyse is the exchange timezone used for market-hours TTL scaling.
var nyse *time.Location

func init() {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		loc = time.UTC
	}
	nyse = loc
}

// ClassifyPriority classifies an indicator request for cache tiering.
// HIGH if both the indicator type and the symbol are popular, MEDIUM if
// either is, LOW otherwise.
func ClassifyPriority(indicatorType, symbol string) models.Priority {
	typePopular := popularIndicatorTypes[indicatorType]
	symbolPopular := popularSymbols[symbol]
	switch {
	case typePopular && symbolPopular:
		return models.PriorityHigh
	case typePopular || symbolPopular:
		return models.PriorityMedium
	default:
		return models.PriorityLow
	}
}

// TTLForInterval computes the effective TTL for an interval at a moment in
// time. Intraday TTLs are reduced ~30% during market hours and tripled
// outside them; daily and longer intervals are unaffected.
func TTLForInterval(interval string, now time.Time) time.Duration {
	// Unknown intervals are treated as 5min everywhere, including the
	// session scaling below.
	if _, ok := baseTTLMinutes[interval]; !ok {
		interval = Interval5Min
	}
	ttl := time.Duration(baseTTLMinutes[interval]) * time.Minute

	if isIntraday(interval) {
		if isMarketHours(now) {
			ttl = ttl * 7 / 10
		} else {
			ttl = ttl * 3
		}
	}
	return ttl
}

// ShouldRefresh reports whether a cached entry is due for a refresh. Absent
// entries always refresh. Otherwise the age since the provider fetch is
// compared against the interval's TTL scaled by its refresh threshold.
func ShouldRefresh(entry *models.CacheEntry, interval string, now time.Time) bool {
	if entry == nil {
		return true
	}
	threshold, ok := refreshThresholds[interval]
	if !ok {
		threshold = refreshThresholds[Interval5Min]
	}
	minutes, ok := baseTTLMinutes[interval]
	if !ok {
		minutes = baseTTLMinutes[Interval5Min]
	}
	maxAge := time.Duration(float64(minutes)*threshold) * time.Minute
	return now.Sub(entry.Metadata.FetchedAt) > maxAge
}

func isIntraday(interval string) bool {
	switch interval {
	case Interval1Min, Interval5Min, Interval15Min, Interval30Min, Interval60Min:
		return true
	}
	return false
}

// isMarketHours reports whether NYSE is in its regular session (weekdays
// 9:30-16:00 Eastern). Holidays are not modeled; the cost of a miss is just a
// slightly shorter TTL.
func isMarketHours(now time.Time) bool {
	et := now.In(nyse)
	if et.Weekday() == time.Saturday || et.Weekday() == time.Sunday {
		return false
	}
	open := time.Date(et.Year(), et.Month(), et.Day(), 9, 30, 0, 0, nyse)
	sessionClose := time.Date(et.Year(), et.Month(), et.Day(), 16, 0, 0, 0, nyse)
	return !et.Before(open) && et.Before(sessionClose)
}
