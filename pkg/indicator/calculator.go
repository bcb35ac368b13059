// Package indicator computes technical indicator series from raw close
// prices. The fetch service uses it for profiles whose data source asks for
// local computation instead of a provider-side indicator endpoint.
package indicator

import (
	"fmt"
	"strings"
)

// Calculator computes an indicator series over a chronological close series.
// The returned slice is aligned to the input; positions before the warm-up
// period hold zero and are reported through the second return.
type Calculator interface {
	// Name returns the indicator name, e.g. "sma_20"
	Name() string

	// Compute returns the indicator series and the index of the first
	// meaningful value.
	Compute(closes []float64) ([]float64, int, error)
}

// New creates a calculator by indicator type and period.
func New(indicatorType string, period int) (Calculator, error) {
	switch strings.ToUpper(indicatorType) {
	case "SMA":
		return NewSMA(period)
	case "EMA":
		return NewEMA(period)
	case "RSI":
		return NewRSI(period)
	default:
		return nil, fmt.Errorf("unsupported computed indicator type: %s", indicatorType)
	}
}
