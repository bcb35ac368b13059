// Package fetcher keeps the indicator cache warm: it discovers the indicator
// profiles referenced by active strategies, fetches them from the data
// provider on interval-appropriate schedules, and publishes an update event
// for every refreshed series.
package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/robert-nguyenn/strategy-engine/internal/config"
	"github.com/robert-nguyenn/strategy-engine/internal/models"
)

// Series is a provider-native indicator payload: date-keyed field maps plus
// the provider's own last-refreshed stamp.
type Series struct {
	Data          map[string]map[string]interface{}
	LastRefreshed string
}

// Provider fetches indicator and price series from an external data API.
type Provider interface {
	// FetchSeries fetches the provider-computed series for a profile.
	FetchSeries(ctx context.Context, profile *models.IndicatorProfile) (*Series, error)

	// FetchCloses fetches the raw close-price series for a symbol at an
	// interval, in chronological order. Used for locally computed indicators.
	FetchCloses(ctx context.Context, symbol, interval string) ([]float64, string, error)
}

// AlphaVantageProvider fetches series from the Alpha Vantage query API.
type AlphaVantageProvider struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

// NewAlphaVantageProvider creates a provider client from config.
func NewAlphaVantageProvider(cfg config.ProviderConfig) *AlphaVantageProvider {
	return &AlphaVantageProvider{
		httpClient: &http.Client{Timeout: cfg.RequestTimeout},
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
	}
}

// FetchSeries calls the query endpoint with the profile's indicator type as
// the function and the profile parameters passed through as query params.
func (p *AlphaVantageProvider) FetchSeries(ctx context.Context, profile *models.IndicatorProfile) (*Series, error) {
	params := url.Values{}
	params.Set("function", strings.ToUpper(profile.IndicatorType))
	if profile.Symbol != "" {
		params.Set("symbol", profile.Symbol)
	}
	if profile.Interval != "" {
		params.Set("interval", providerInterval(profile.Interval))
	}
	for name, value := range profile.Parameters {
		params.Set(name, paramString(value))
	}

	return p.query(ctx, params)
}

// FetchCloses fetches a raw price series and extracts the close column.
func (p *AlphaVantageProvider) FetchCloses(ctx context.Context, symbol, interval string) ([]float64, string, error) {
	params := url.Values{}
	if isIntradayInterval(interval) {
		params.Set("function", "TIME_SERIES_INTRADAY")
		params.Set("interval", providerInterval(interval))
	} else {
		params.Set("function", "TIME_SERIES_DAILY")
	}
	params.Set("symbol", symbol)
	params.Set("outputsize", "compact")

	series, err := p.query(ctx, params)
	if err != nil {
		return nil, "", err
	}

	// Chronological order: the evaluator and the calculators both want
	// oldest-first.
	dates := make([]string, 0, len(series.Data))
	for date := range series.Data {
		dates = append(dates, date)
	}
	sort.Strings(dates)

	closes := make([]float64, 0, len(dates))
	for _, date := range dates {
		value, ok := closeValue(series.Data[date])
		if !ok {
			return nil, "", fmt.Errorf("price series for %s has no close at %s", symbol, date)
		}
		closes = append(closes, value)
	}
	return closes, series.LastRefreshed, nil
}

func (p *AlphaVantageProvider) query(ctx context.Context, params url.Values) (*Series, error) {
	params.Set("apikey", p.apiKey)

	endpoint := fmt.Sprintf("%s/query?%s", p.baseURL, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build provider request: %w", err)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("provider request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("provider returned status %d: %s", resp.StatusCode, string(body))
	}

	var payload map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode provider response: %w", err)
	}

	return parseSeries(payload)
}

// parseSeries extracts the series block and last-refreshed stamp from a
// provider response. The series key varies by function ("Technical Analysis:
// SMA", "Time Series (Daily)", ...) so any non-metadata object block is
// accepted.
func parseSeries(payload map[string]interface{}) (*Series, error) {
	for _, key := range []string{"Error Message", "Note", "Information"} {
		if msg, ok := payload[key].(string); ok {
			return nil, fmt.Errorf("provider error: %s", msg)
		}
	}

	series := &Series{}
	for key, value := range payload {
		block, ok := value.(map[string]interface{})
		if !ok {
			continue
		}
		if strings.Contains(key, "Meta Data") {
			for metaKey, metaValue := range block {
				if strings.Contains(metaKey, "Last Refreshed") {
					series.LastRefreshed, _ = metaValue.(string)
				}
			}
			continue
		}

		data := make(map[string]map[string]interface{}, len(block))
		for date, fields := range block {
			fieldMap, ok := fields.(map[string]interface{})
			if !ok {
				continue
			}
			data[date] = fieldMap
		}
		if len(data) > 0 {
			series.Data = data
		}
	}

	if series.Data == nil {
		return nil, fmt.Errorf("provider response contains no series data")
	}
	return series, nil
}

// closeValue finds the close price in a provider field map. Intraday and
// daily responses label it "4. close"; be liberal about the prefix.
func closeValue(fields map[string]interface{}) (float64, bool) {
	for name, value := range fields {
		if !strings.Contains(strings.ToLower(name), "close") {
			continue
		}
		switch v := value.(type) {
		case float64:
			return v, true
		case string:
			if parsed, err := strconv.ParseFloat(v, 64); err == nil {
				return parsed, true
			}
		}
	}
	return 0, false
}

// providerInterval maps internal interval names to the provider's wire names.
func providerInterval(interval string) string {
	switch interval {
	case "1min", "5min", "15min", "30min", "60min":
		return interval
	case "hourly":
		return "60min"
	default:
		return "daily"
	}
}

func isIntradayInterval(interval string) bool {
	switch interval {
	case "1min", "5min", "15min", "30min", "60min", "hourly":
		return true
	}
	return false
}

func paramString(value interface{}) string {
	switch v := value.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case bool:
		return strconv.FormatBool(v)
	default:
		encoded, _ := json.Marshal(v)
		return string(encoded)
	}
}
