package forecast

import (
	"context"

	"github.com/couchcryptid/drought-cdi-service/internal/domain"
	"github.com/couchcryptid/drought-cdi-service/internal/observability"
)

// MockSource implements domain.PredictionSource with the deterministic
// placeholder series. It fails only when ctx is already done.
type MockSource struct {
	metrics *observability.Metrics
}

// NewMockSource creates a MockSource.
func NewMockSource(metrics *observability.Metrics) *MockSource {
	return &MockSource{metrics: metrics}
}

func (m *MockSource) Fetch(ctx context.Context, key domain.SeriesKey) (domain.Series, error) {
	if err := ctx.Err(); err != nil {
		m.metrics.PredictionFetches.WithLabelValues("mock", "error").Inc()
		return domain.Series{}, err
	}
	m.metrics.PredictionFetches.WithLabelValues("mock", "success").Inc()
	return domain.MockSeries(key), nil
}
