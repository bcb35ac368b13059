package indicator

import (
	"fmt"

	"github.com/sdcoffey/techan"
)

// RSI is a relative strength index calculator.
type RSI struct {
	period int
}

// NewRSI creates an RSI calculator with the given period.
func NewRSI(period int) (*RSI, error) {
	if period < 1 {
		return nil, fmt.Errorf("rsi period must be positive, got %d", period)
	}
	return &RSI{period: period}, nil
}

// Name returns the indicator name.
func (r *RSI) Name() string {
	return fmt.Sprintf("rsi_%d", r.period)
}

// Compute calculates the RSI series over the given closes. RSI needs one
// extra bar beyond the period for the first gain/loss delta.
func (r *RSI) Compute(closes []float64) ([]float64, int, error) {
	out, _, err := compute(closes, r.period+1, func(ind techan.Indicator) techan.Indicator {
		return techan.NewRelativeStrengthIndexIndicator(ind, r.period)
	})
	if err != nil {
		return nil, 0, err
	}
	return out, r.period, nil
}
