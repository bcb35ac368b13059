package fetcher

import (
	"context"
	"sync"

	"github.com/robert-nguyenn/strategy-engine/internal/models"
)

// MockProvider is an in-memory Provider for tests.
type MockProvider struct {
	mu sync.Mutex

	// SeriesResult is returned from FetchSeries when SeriesErr is nil.
	SeriesResult *Series
	SeriesErr    error

	// Closes and ClosesRefreshed are returned from FetchCloses.
	Closes          []float64
	ClosesRefreshed string
	ClosesErr       error

	SeriesCalls int
	ClosesCalls int
}

// NewMockProvider creates an empty mock provider.
func NewMockProvider() *MockProvider {
	return &MockProvider{}
}

func (m *MockProvider) FetchSeries(_ context.Context, _ *models.IndicatorProfile) (*Series, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SeriesCalls++
	if m.SeriesErr != nil {
		return nil, m.SeriesErr
	}
	return m.SeriesResult, nil
}

func (m *MockProvider) FetchCloses(_ context.Context, _, _ string) ([]float64, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ClosesCalls++
	if m.ClosesErr != nil {
		return nil, "", m.ClosesErr
	}
	return m.Closes, m.ClosesRefreshed, nil
}

// CallCounts returns how many times each fetch method ran.
func (m *MockProvider) CallCounts() (series, closes int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.SeriesCalls, m.ClosesCalls
}
