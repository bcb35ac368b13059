package fingerprint

import (
	"strings"
	"testing"

	"github.com/robert-nguyenn/strategy-engine/internal/models"
)

func TestComputeDeterministicAcrossParameterOrder(t *testing.T) {
	// Maps iterate in random order; the fingerprint must not care.
	a := models.Parameters{
		"time_period": 14.0,
		"series_type": "close",
		"nested": map[string]interface{}{
			"b": 2.0,
			"a": 1.0,
		},
	}
	b := models.Parameters{
		"nested": map[string]interface{}{
			"a": 1.0,
			"b": 2.0,
		},
		"series_type": "close",
		"time_period": 14.0,
	}

	for i := 0; i < 50; i++ {
		fpA := Compute("RSI", "AAPL", "daily", a, "alphavantage")
		fpB := Compute("RSI", "AAPL", "daily", b, "alphavantage")
		if fpA != fpB {
			t.Fatalf("fingerprints diverged:\n%s\n%s", fpA, fpB)
		}
	}
}

func TestComputeRenderedShape(t *testing.T) {
	fp := Compute("SMA", "MSFT", "5min", nil, "alphavantage")

	if !strings.HasPrefix(fp, Namespace) {
		t.Errorf("fingerprint missing namespace prefix: %s", fp)
	}

	// Fields render in lexicographic order joined with "|".
	want := Namespace + "dataSource:alphavantage|indicatorType:SMA|interval:5min|parameters:NULL|symbol:MSFT"
	if fp != want {
		t.Errorf("Compute() = %s, want %s", fp, want)
	}
}

func TestComputeNullSentinels(t *testing.T) {
	fp := Compute("VIX", "", "", nil, "")

	for _, field := range []string{"dataSource:NULL", "interval:NULL", "parameters:NULL", "symbol:NULL"} {
		if !strings.Contains(fp, field) {
			t.Errorf("fingerprint missing sentinel %q: %s", field, fp)
		}
	}
}

func TestComputeDistinguishesRequests(t *testing.T) {
	base := Compute("SMA", "AAPL", "daily", models.Parameters{"time_period": 20.0}, "alphavantage")

	variants := []string{
		Compute("EMA", "AAPL", "daily", models.Parameters{"time_period": 20.0}, "alphavantage"),
		Compute("SMA", "MSFT", "daily", models.Parameters{"time_period": 20.0}, "alphavantage"),
		Compute("SMA", "AAPL", "5min", models.Parameters{"time_period": 20.0}, "alphavantage"),
		Compute("SMA", "AAPL", "daily", models.Parameters{"time_period": 50.0}, "alphavantage"),
		Compute("SMA", "AAPL", "daily", models.Parameters{"time_period": 20.0}, "computed"),
		Compute("SMA", "AAPL", "daily", nil, "alphavantage"),
	}
	for i, v := range variants {
		if v == base {
			t.Errorf("variant %d collides with base fingerprint: %s", i, v)
		}
	}
}

func TestForHelpersAgree(t *testing.T) {
	params := models.Parameters{"time_period": 14.0}

	cond := &models.Condition{
		IndicatorType: "RSI",
		Symbol:        "TSLA",
		Interval:      "daily",
		DataSource:    "alphavantage",
		Parameters:    params,
	}
	profile := &models.IndicatorProfile{
		IndicatorType: "RSI",
		Symbol:        "TSLA",
		Interval:      "daily",
		DataSource:    "alphavantage",
		Parameters:    params,
	}
	event := &models.IndicatorUpdateEvent{
		IndicatorType: "RSI",
		Symbol:        "TSLA",
		Interval:      "daily",
		DataSource:    "alphavantage",
		Parameters:    params,
	}

	fp := ForCondition(cond)
	if ForProfile(profile) != fp {
		t.Errorf("ForProfile() = %s, want %s", ForProfile(profile), fp)
	}
	if ForEvent(event) != fp {
		t.Errorf("ForEvent() = %s, want %s", ForEvent(event), fp)
	}
}
