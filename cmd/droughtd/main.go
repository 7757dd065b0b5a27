package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	httpadapter "github.com/couchcryptid/drought-cdi-service/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/drought-cdi-service/internal/adapter/kafka"
	"github.com/couchcryptid/drought-cdi-service/internal/adapter/logsink"
	"github.com/couchcryptid/drought-cdi-service/internal/config"
	"github.com/couchcryptid/drought-cdi-service/internal/dashboard"
	"github.com/couchcryptid/drought-cdi-service/internal/domain"
	"github.com/couchcryptid/drought-cdi-service/internal/forecast"
	"github.com/couchcryptid/drought-cdi-service/internal/geo"
	"github.com/couchcryptid/drought-cdi-service/internal/maprender"
	"github.com/couchcryptid/drought-cdi-service/internal/observability"
	"github.com/couchcryptid/drought-cdi-service/internal/session"
	"github.com/couchcryptid/drought-cdi-service/internal/translate"
	"github.com/jonboulle/clockwork"
)

// sideEffects delivers alerts and report requests.
type sideEffects interface {
	domain.AlertNotifier
	domain.ReportRequester
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Map assets.
	geoFiles := geo.NewFileSource(cfg.GeoDir)
	geoCache := geo.NewCache(geoFiles, metrics, logger)
	loaded := geoCache.Preload(ctx)
	logger.Info("feature collections loaded", "dir", geoFiles.Dir(), "regions", loaded)

	var watcher *geo.Watcher
	if cfg.GeoWatch {
		watcher, err = geo.NewWatcher(geoFiles.Dir(), geoCache, logger)
		if err != nil {
			logger.Warn("geo watcher disabled", "error", err)
		} else {
			go watcher.Run(ctx)
		}
	}

	// Predictions (feature-flagged via PREDICTIONS_URL).
	var backend domain.PredictionSource
	if cfg.PredictionsURL != "" {
		backend = forecast.NewClient(cfg.PredictionsURL, cfg.PredictionsTimeout, metrics, logger)
		logger.Info("prediction backend enabled", "url", cfg.PredictionsURL, "timeout", cfg.PredictionsTimeout)
	} else {
		backend = forecast.NewMockSource(metrics)
		logger.Info("prediction backend disabled, serving mock series")
	}
	predictions := forecast.NewCachedSource(backend, cfg.PredictionsCacheSize, cfg.PredictionsCacheTTL, clockwork.NewRealClock(), metrics)

	// Sessions.
	store, err := session.OpenStore(cfg.SessionDBPath, logger)
	if err != nil {
		logger.Error("failed to open session store", "error", err)
		os.Exit(1)
	}
	users := domain.DemoUsers()
	if cfg.UsersSeedFile != "" {
		users, err = session.LoadSeedFile(cfg.UsersSeedFile)
		if err != nil {
			logger.Error("failed to load user seed file", "path", cfg.UsersSeedFile, "error", err)
			os.Exit(1)
		}
	}
	seeded, err := store.Seed(users)
	if err != nil {
		logger.Error("failed to seed users", "error", err)
		os.Exit(1)
	}
	logger.Info("user store ready", "path", cfg.SessionDBPath, "seeded", seeded)
	clock := clockwork.NewRealClock()
	sessions := session.NewManager(store, cfg.SessionSecret, cfg.SessionTTL, clock, metrics, logger)
	if _, err := sessions.Sweep(); err != nil {
		logger.Warn("initial session sweep failed", "error", err)
	}

	// Alerts and report requests (Kafka when brokers are configured).
	var effects sideEffects
	var publisher *kafkaadapter.Publisher
	if cfg.KafkaEnabled() {
		publisher = kafkaadapter.NewPublisher(cfg, logger)
		effects = publisher
		logger.Info("kafka side effects enabled", "brokers", cfg.KafkaBrokers,
			"alert_topic", cfg.KafkaAlertTopic, "report_topic", cfg.KafkaReportTopic)
	} else {
		effects = logsink.New(logger)
		logger.Info("kafka side effects disabled, logging alerts and report requests")
	}

	translator := translate.NewClient(cfg.TranslateAPIKey, cfg.TranslateTimeout, metrics, logger)

	dashboards := dashboard.NewRegistry(dashboard.Deps{
		Source:        predictions,
		Geo:           geoCache,
		Notifier:      effects,
		Reports:       effects,
		Translator:    translator,
		Tiles:         maprender.DefaultTiles,
		ForecastStart: cfg.ForecastStart,
		Clock:         clock,
		Metrics:       metrics,
		Logger:        logger,
	})

	// Expired sessions release their dashboards even when never seen again.
	go sessions.Run(ctx, cfg.SessionSweep, dashboards.Close)
	go dashboards.Run(ctx, cfg.SessionSweep)

	srv := httpadapter.NewServer(cfg.HTTPAddr, httpadapter.Deps{
		Ready:       geoCache,
		Sessions:    sessions,
		Dashboards:  dashboards,
		Predictions: predictions,
		Geo:         geoCache,
		Translator:  translator,
		Metrics:     metrics,
		Logger:      logger,
	})

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	dashboards.CloseAll()
	if watcher != nil {
		if err := watcher.Close(); err != nil {
			logger.Error("geo watcher close error", "error", err)
		}
	}
	if publisher != nil {
		if err := publisher.Close(); err != nil {
			logger.Error("kafka writer close error", "error", err)
		}
	}
	if err := store.Close(); err != nil {
		logger.Error("session store close error", "error", err)
	}

	logger.Info("shutdown complete")
}
