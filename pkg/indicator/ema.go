package indicator

import (
	"fmt"

	"github.com/sdcoffey/techan"
)

// EMA is an exponential moving average calculator.
type EMA struct {
	period int
}

// NewEMA creates an EMA calculator with the given period.
func NewEMA(period int) (*EMA, error) {
	if period < 1 {
		return nil, fmt.Errorf("ema period must be positive, got %d", period)
	}
	return &EMA{period: period}, nil
}

// Name returns the indicator name.
func (e *EMA) Name() string {
	return fmt.Sprintf("ema_%d", e.period)
}

// Compute calculates the EMA series over the given closes.
func (e *EMA) Compute(closes []float64) ([]float64, int, error) {
	return compute(closes, e.period, func(ind techan.Indicator) techan.Indicator {
		return techan.NewEMAIndicator(ind, e.period)
	})
}
