package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// devSessionSecret signs tokens when SESSION_SECRET is unset and APP_ENV is not production.
const devSessionSecret = "drought-cdi-dev-secret"

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Map assets.
	GeoDir   string
	GeoWatch bool

	// Prediction backend. Empty URL selects the deterministic mock.
	PredictionsURL       string
	PredictionsTimeout   time.Duration
	PredictionsCacheSize int
	PredictionsCacheTTL  time.Duration
	ForecastStart        time.Time

	// Google Translate v2.
	TranslateAPIKey  string
	TranslateTimeout time.Duration

	// Sessions.
	SessionDBPath string
	SessionSecret string
	SessionTTL    time.Duration
	SessionSweep  time.Duration
	UsersSeedFile string

	// Kafka side effects. No brokers means alerts and report requests are only logged.
	KafkaBrokers     []string
	KafkaAlertTopic  string
	KafkaReportTopic string
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	predictionsTimeout, err := parsePositiveDuration("PREDICTIONS_TIMEOUT", "5s")
	if err != nil {
		return nil, err
	}
	predictionsCacheTTL, err := parsePositiveDuration("PREDICTIONS_CACHE_TTL", "10m")
	if err != nil {
		return nil, err
	}
	translateTimeout, err := parsePositiveDuration("TRANSLATE_TIMEOUT", "5s")
	if err != nil {
		return nil, err
	}
	sessionTTL, err := parsePositiveDuration("SESSION_TTL", "12h")
	if err != nil {
		return nil, err
	}
	sessionSweep, err := parsePositiveDuration("SESSION_SWEEP_INTERVAL", "1m")
	if err != nil {
		return nil, err
	}

	forecastStart, err := time.Parse("2006-01", sharedcfg.EnvOrDefault("FORECAST_START", "2025-08"))
	if err != nil {
		return nil, errors.New("invalid FORECAST_START, expected YYYY-MM")
	}

	geoWatch := true
	if v := os.Getenv("GEO_WATCH"); v != "" {
		geoWatch = v == "true"
	}

	sessionSecret := os.Getenv("SESSION_SECRET")
	if sessionSecret == "" && os.Getenv("APP_ENV") != "production" {
		sessionSecret = devSessionSecret
	}

	cfg := &Config{
		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		GeoDir:   sharedcfg.EnvOrDefault("GEO_DIR", "data/geo"),
		GeoWatch: geoWatch,

		PredictionsURL:       strings.TrimRight(os.Getenv("PREDICTIONS_URL"), "/"),
		PredictionsTimeout:   predictionsTimeout,
		PredictionsCacheSize: parsePositiveInt("PREDICTIONS_CACHE_SIZE", 256),
		PredictionsCacheTTL:  predictionsCacheTTL,
		ForecastStart:        forecastStart,

		TranslateAPIKey:  os.Getenv("TRANSLATE_API_KEY"),
		TranslateTimeout: translateTimeout,

		SessionDBPath: sharedcfg.EnvOrDefault("SESSION_DB_PATH", "data/sessions"),
		SessionSecret: sessionSecret,
		SessionTTL:    sessionTTL,
		SessionSweep:  sessionSweep,
		UsersSeedFile: os.Getenv("USERS_SEED_FILE"),

		KafkaBrokers:     sharedcfg.ParseBrokers(os.Getenv("KAFKA_BROKERS")),
		KafkaAlertTopic:  sharedcfg.EnvOrDefault("KAFKA_ALERT_TOPIC", "drought-alerts"),
		KafkaReportTopic: sharedcfg.EnvOrDefault("KAFKA_REPORT_TOPIC", "report-requests"),
	}

	if cfg.GeoDir == "" {
		return nil, errors.New("GEO_DIR is required")
	}
	if cfg.SessionSecret == "" {
		return nil, errors.New("SESSION_SECRET is required in production")
	}
	if len(cfg.KafkaBrokers) > 0 && (cfg.KafkaAlertTopic == "" || cfg.KafkaReportTopic == "") {
		return nil, errors.New("KAFKA_ALERT_TOPIC and KAFKA_REPORT_TOPIC are required when KAFKA_BROKERS is set")
	}

	return cfg, nil
}

// KafkaEnabled reports whether side effects should be published to Kafka.
func (c *Config) KafkaEnabled() bool {
	return len(c.KafkaBrokers) > 0
}

func parsePositiveDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, def))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

func parsePositiveInt(key string, def int) int {
	if s := os.Getenv(key); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			return n
		}
	}
	return def
}
