package indicator

import (
	"fmt"

	"github.com/sdcoffey/techan"
)

// SMA is a simple moving average calculator.
type SMA struct {
	period int
}

// NewSMA creates an SMA calculator with the given period.
func NewSMA(period int) (*SMA, error) {
	if period < 1 {
		return nil, fmt.Errorf("sma period must be positive, got %d", period)
	}
	return &SMA{period: period}, nil
}

// Name returns the indicator name.
func (s *SMA) Name() string {
	return fmt.Sprintf("sma_%d", s.period)
}

// Compute calculates the SMA series over the given closes.
func (s *SMA) Compute(closes []float64) ([]float64, int, error) {
	return compute(closes, s.period, func(ind techan.Indicator) techan.Indicator {
		return techan.NewSimpleMovingAverage(ind, s.period)
	})
}
