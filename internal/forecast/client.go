package forecast

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/couchcryptid/drought-cdi-service/internal/domain"
	"github.com/couchcryptid/drought-cdi-service/internal/observability"
)

// Client implements domain.PredictionSource against a forecast backend that
// serves GET {baseURL}/predictions?region=&woreda=.
type Client struct {
	httpClient *http.Client
	baseURL    string
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewClient creates a forecast backend client.
func NewClient(baseURL string, timeout time.Duration, metrics *observability.Metrics, logger *slog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL: baseURL,
		metrics: metrics,
		logger:  logger,
	}
}

// Fetch retrieves the twelve-month series for key.
func (c *Client) Fetch(ctx context.Context, key domain.SeriesKey) (domain.Series, error) {
	params := url.Values{"region": {string(key.Region)}}
	if key.Woreda != "" {
		params.Set("woreda", key.Woreda)
	}

	start := time.Now()
	series, err := c.doRequest(ctx, c.baseURL+"/predictions?"+params.Encode())
	c.metrics.PredictionDuration.WithLabelValues("http").Observe(time.Since(start).Seconds())
	if err != nil {
		c.metrics.PredictionFetches.WithLabelValues("http", "error").Inc()
		return domain.Series{}, fmt.Errorf("fetch predictions %s: %w", key, err)
	}
	c.metrics.PredictionFetches.WithLabelValues("http", "success").Inc()
	return series, nil
}

func (c *Client) doRequest(ctx context.Context, fullURL string) (domain.Series, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return domain.Series{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.Series{}, fmt.Errorf("predictions request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return domain.Series{}, fmt.Errorf("forecast API error: status %d: %s", resp.StatusCode, body)
	}

	var payload response
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return domain.Series{}, fmt.Errorf("decode response: %w", err)
	}
	if len(payload.Predictions) != domain.ForecastMonths {
		return domain.Series{}, fmt.Errorf("expected %d predictions, got %d", domain.ForecastMonths, len(payload.Predictions))
	}

	var s domain.Series
	copy(s[:], payload.Predictions)
	return s, nil
}

// Forecast API response types.

type response struct {
	Region      string    `json:"region"`
	Woreda      string    `json:"woreda,omitempty"`
	Predictions []float64 `json:"predictions"`
}
