package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the drought service.
type Metrics struct {
	// Prediction metrics.
	PredictionFetches   *prometheus.CounterVec   // labels: source={mock,http}, outcome={success,error}
	PredictionCache     *prometheus.CounterVec   // labels: result={hit,miss}
	PredictionDuration  *prometheus.HistogramVec // labels: source={mock,http}
	StaleResultsDropped *prometheus.CounterVec   // labels: loop={primary,regions,woredas,map,headline}

	// Map metrics.
	FeatureLoads    *prometheus.CounterVec // labels: region, outcome={success,error,cached}
	RenderersActive prometheus.Gauge

	// Side effects.
	AlertsRaised   *prometheus.CounterVec // labels: phase={Warn,Alert}
	ReportRequests *prometheus.CounterVec // labels: outcome={success,error}
	TranslateCalls *prometheus.CounterVec // labels: outcome={success,error,skipped}

	// Sessions.
	SessionsActive prometheus.Gauge
	AuthAttempts   *prometheus.CounterVec // labels: action={login,register}, outcome={success,rejected}

	// HTTP.
	HTTPRequests *prometheus.CounterVec // labels: route, code
}

// NewMetrics creates and registers all service metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.PredictionFetches,
		m.PredictionCache,
		m.PredictionDuration,
		m.StaleResultsDropped,
		m.FeatureLoads,
		m.RenderersActive,
		m.AlertsRaised,
		m.ReportRequests,
		m.TranslateCalls,
		m.SessionsActive,
		m.AuthAttempts,
		m.HTTPRequests,
	)
	return m
}

// NewMetricsForTesting creates Metrics without registering them, avoiding
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		PredictionFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "drought_cdi",
			Name:      "prediction_fetches_total",
			Help:      "Prediction series fetched from the underlying source by outcome.",
		}, []string{"source", "outcome"}),
		PredictionCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "drought_cdi",
			Name:      "prediction_cache_total",
			Help:      "Prediction cache lookups by result.",
		}, []string{"result"}),
		PredictionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "drought_cdi",
			Name:      "prediction_fetch_duration_seconds",
			Help:      "Duration of a prediction series fetch.",
			Buckets:   []float64{0.001, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"source"}),
		StaleResultsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "drought_cdi",
			Name:      "stale_results_dropped_total",
			Help:      "Async completions discarded because a newer request superseded them.",
		}, []string{"loop"}),
		FeatureLoads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "drought_cdi",
			Name:      "feature_collection_loads_total",
			Help:      "Region feature collection loads by outcome.",
		}, []string{"region", "outcome"}),
		RenderersActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "drought_cdi",
			Name:      "map_renderers_active",
			Help:      "Map renderers mounted and not yet destroyed.",
		}),
		AlertsRaised: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "drought_cdi",
			Name:      "alerts_raised_total",
			Help:      "Drought alerts raised on phase escalation.",
		}, []string{"phase"}),
		ReportRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "drought_cdi",
			Name:      "report_requests_total",
			Help:      "Report generation requests by outcome.",
		}, []string{"outcome"}),
		TranslateCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "drought_cdi",
			Name:      "translate_requests_total",
			Help:      "Translation API calls by outcome.",
		}, []string{"outcome"}),
		SessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "drought_cdi",
			Name:      "sessions_active",
			Help:      "Dashboard sessions currently open.",
		}),
		AuthAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "drought_cdi",
			Name:      "auth_attempts_total",
			Help:      "Login and registration attempts by outcome.",
		}, []string{"action", "outcome"}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "drought_cdi",
			Name:      "http_requests_total",
			Help:      "HTTP requests by route pattern and status code.",
		}, []string{"route", "code"}),
	}
}
