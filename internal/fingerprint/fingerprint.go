// Package fingerprint derives the canonical cache/join key for an indicator
// request. Every caller (fetcher, scheduler, evaluator) must go through this
// package: a single divergent byte breaks the join between update events and
// strategy conditions.
package fingerprint

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/robert-nguyenn/strategy-engine/internal/models"
)

// Namespace prefixes every fingerprint so cache keys are greppable.
const Namespace = "indicator:"

// nullToken is the sentinel rendered for missing/empty fields.
const nullToken = "NULL"

// Compute builds the deterministic fingerprint for an indicator request.
// Fields are rendered as "name:value" in lexicographic field-name order and
// joined with "|". Empty fields render as the NULL token. Parameters are
// serialized with recursively sorted keys, so logically identical requests
// produce byte-identical fingerprints regardless of map insertion order.
func Compute(indicatorType, symbol, interval string, parameters models.Parameters, dataSource string) string {
	fields := []struct {
		name  string
		value string
	}{
		{"dataSource", renderScalar(dataSource)},
		{"indicatorType", renderScalar(indicatorType)},
		{"interval", renderScalar(interval)},
		{"parameters", renderParameters(parameters)},
		{"symbol", renderScalar(symbol)},
	}

	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		parts = append(parts, fmt.Sprintf("%s:%s", f.name, f.value))
	}
	return Namespace + strings.Join(parts, "|")
}

// ForCondition computes the fingerprint of a condition's left operand.
func ForCondition(c *models.Condition) string {
	return Compute(c.IndicatorType, c.Symbol, c.Interval, c.Parameters, c.DataSource)
}

// ForProfile computes the fingerprint of a discovered fetch profile.
func ForProfile(p *models.IndicatorProfile) string {
	return Compute(p.IndicatorType, p.Symbol, p.Interval, p.Parameters, p.DataSource)
}

// ForEvent computes the fingerprint of an indicator update event.
func ForEvent(e *models.IndicatorUpdateEvent) string {
	return Compute(e.IndicatorType, e.Symbol, e.Interval, e.Parameters, e.DataSource)
}

func renderScalar(value string) string {
	if value == "" {
		return nullToken
	}
	return value
}

func renderParameters(parameters models.Parameters) string {
	if len(parameters) == 0 {
		return nullToken
	}
	data, err := json.Marshal(canonicalize(map[string]interface{}(parameters)))
	if err != nil {
		// Parameters always originate from JSON, so this cannot happen for
		// well-formed records; fall back to the sentinel rather than panic.
		return nullToken
	}
	return string(data)
}

// canonicalize rebuilds maps with sorted keys at every nesting level.
// encoding/json already sorts map keys, but the explicit walk also normalizes
// nested []interface{} elements and keeps the contract independent of the
// encoder's behavior.
func canonicalize(value interface{}) interface{} {
	switch v := value.(type) {
	case map[string]interface{}:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := make(map[string]interface{}, len(v))
		for _, k := range keys {
			out[k] = canonicalize(v[k])
		}
		return out
	case models.Parameters:
		return canonicalize(map[string]interface{}(v))
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, e := range v {
			out[i] = canonicalize(e)
		}
		return out
	case nil:
		return nullToken
	default:
		return v
	}
}
