package http

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/couchcryptid/drought-cdi-service/internal/dashboard"
	"github.com/couchcryptid/drought-cdi-service/internal/domain"
	"github.com/couchcryptid/drought-cdi-service/internal/geo"
	"github.com/couchcryptid/drought-cdi-service/internal/observability"
	"github.com/couchcryptid/drought-cdi-service/internal/session"
	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Translator translates text for the translate proxy.
type Translator interface {
	Translate(ctx context.Context, q []string, target, source string) ([]string, error)
}

// Deps are the services behind the API routes.
type Deps struct {
	Ready       sharedobs.ReadinessChecker
	Sessions    *session.Manager
	Dashboards  *dashboard.Registry
	Predictions domain.PredictionSource
	Geo         geo.Source
	Translator  Translator
	Metrics     *observability.Metrics
	Logger      *slog.Logger
}

// Server exposes the dashboard API plus health, readiness, and metrics endpoints.
type Server struct {
	httpServer *http.Server
	deps       Deps
	logger     *slog.Logger
}

// NewServer creates the HTTP server and registers every route.
func NewServer(addr string, deps Deps) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       10 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		deps:   deps,
		logger: deps.Logger,
	}

	mux.HandleFunc("GET /healthz", sharedobs.LivenessHandler())
	mux.HandleFunc("GET /readyz", sharedobs.ReadinessHandler(deps.Ready))
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.Handle("POST /api/auth/login", s.instrument(s.handleLogin))
	mux.Handle("POST /api/auth/register", s.instrument(s.handleRegister))
	mux.Handle("POST /api/translate", s.instrument(s.handleTranslate))

	mux.Handle("POST /api/auth/logout", s.instrument(s.requireSession(s.handleLogout)))
	mux.Handle("GET /api/me", s.instrument(s.requireSession(s.handleMe)))
	mux.Handle("GET /api/predictions", s.instrument(s.requireSession(s.handlePredictions)))
	mux.Handle("GET /api/geo/{region}", s.instrument(s.requireSession(s.handleGeo)))
	mux.Handle("GET /api/dashboard", s.instrument(s.requireSession(s.handleDashboard)))
	mux.Handle("POST /api/dashboard", s.instrument(s.requireSession(s.handleDashboardUpdate)))
	mux.Handle("GET /api/map", s.instrument(s.requireSession(s.handleMap)))
	mux.Handle("POST /api/map/select", s.instrument(s.requireSession(s.handleMapSelect)))
	mux.Handle("GET /api/datasets", s.instrument(s.requireSession(s.handleDatasets)))
	mux.Handle("GET /api/reports", s.instrument(s.requireSession(s.handleReports)))
	mux.Handle("POST /api/reports", s.instrument(s.requireSession(s.handleReportRequest)))

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// instrument counts requests by route pattern and status code.
func (s *Server) instrument(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next(rec, r)
		s.deps.Metrics.HTTPRequests.WithLabelValues(r.Pattern, strconv.Itoa(rec.status)).Inc()
	})
}
