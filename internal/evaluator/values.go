package evaluator

import (
	"sort"
	"strconv"

	"github.com/robert-nguyenn/strategy-engine/internal/models"
)

// ExtractValues pulls the latest/previous numeric values out of a cached
// provider payload. Data keys (date-like strings) sort descending; latest
// comes from the most recent record, previous from the one before it. When
// dataKey is set, that field is used; otherwise the first numeric field in
// ascending field-name order wins. Missing or non-numeric slots stay nil and
// make any dependent condition evaluate to false.
func ExtractValues(entry *models.CacheEntry, dataKey string) models.IndicatorValues {
	var values models.IndicatorValues
	if entry == nil || len(entry.Data) == 0 {
		return values
	}

	dates := make([]string, 0, len(entry.Data))
	for d := range entry.Data {
		dates = append(dates, d)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(dates)))

	values.Latest = extractNumeric(entry.Data[dates[0]], dataKey)
	if len(dates) > 1 {
		values.Previous = extractNumeric(entry.Data[dates[1]], dataKey)
	}
	return values
}

func extractNumeric(record map[string]interface{}, dataKey string) *float64 {
	if len(record) == 0 {
		return nil
	}
	if dataKey != "" {
		return parseNumeric(record[dataKey])
	}

	fields := make([]string, 0, len(record))
	for f := range record {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	for _, f := range fields {
		if v := parseNumeric(record[f]); v != nil {
			return v
		}
	}
	return nil
}

// parseNumeric accepts float64 (decoded JSON numbers) and numeric strings
// (the provider returns series values as strings).
func parseNumeric(value interface{}) *float64 {
	switch v := value.(type) {
	case float64:
		return &v
	case int:
		f := float64(v)
		return &f
	case string:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil
		}
		return &f
	default:
		return nil
	}
}
