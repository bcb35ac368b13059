package indicator

import (
	"fmt"
	"time"

	"github.com/sdcoffey/big"
	"github.com/sdcoffey/techan"
)

// buildSeries wraps a chronological close series in a techan time series.
// The candle timestamps are synthetic; the calculators only look at close
// prices and ordering.
func buildSeries(closes []float64) *techan.TimeSeries {
	series := techan.NewTimeSeries()
	start := time.Unix(0, 0)
	for i, c := range closes {
		period := techan.NewTimePeriod(start.Add(time.Duration(i)*time.Minute), time.Minute)
		candle := techan.NewCandle(period)
		candle.ClosePrice = big.NewDecimal(c)
		candle.OpenPrice = candle.ClosePrice
		candle.MaxPrice = candle.ClosePrice
		candle.MinPrice = candle.ClosePrice
		series.AddCandle(candle)
	}
	return series
}

// compute runs a techan indicator over the series and collects the aligned
// float series. firstValid marks where the warm-up period ends.
func compute(closes []float64, period int, build func(techan.Indicator) techan.Indicator) ([]float64, int, error) {
	if len(closes) < period {
		return nil, 0, fmt.Errorf("need at least %d closes, got %d", period, len(closes))
	}

	series := buildSeries(closes)
	ind := build(techan.NewClosePriceIndicator(series))

	out := make([]float64, len(closes))
	for i := range closes {
		out[i] = ind.Calculate(i).Float()
	}
	return out, period - 1, nil
}
