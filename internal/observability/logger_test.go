package observability

import (
	"bufio"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"testing"

	"github.com/couchcryptid/drought-cdi-service/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// withStdout points os.Stdout at a pipe while fn builds and uses a logger.
func withStdout(t *testing.T, fn func()) []byte {
	t.Helper()
	r, w, err := os.Pipe()
	require.NoError(t, err)
	orig, origDefault := os.Stdout, slog.Default()
	os.Stdout = w
	t.Cleanup(func() {
		os.Stdout = orig
		slog.SetDefault(origDefault)
	})

	fn()
	require.NoError(t, w.Close())
	line, err := bufio.NewReader(r).ReadBytes('\n')
	if err != nil && len(line) == 0 {
		return nil
	}
	return line
}

func TestNewLogger_JSON(t *testing.T) {
	out := withStdout(t, func() {
		logger := NewLogger(&config.Config{LogLevel: "info", LogFormat: "json"})
		logger.Info("prediction fetched", "region", "afar")
	})

	var line map[string]any
	require.NoError(t, json.Unmarshal(out, &line))
	assert.Equal(t, "prediction fetched", line["msg"])
	assert.Equal(t, "afar", line["region"])
	assert.Equal(t, "drought-cdi", line["service"])
}

func TestNewLogger_TextAndLevel(t *testing.T) {
	var logger *slog.Logger
	out := withStdout(t, func() {
		logger = NewLogger(&config.Config{LogLevel: "warn", LogFormat: "text"})
		logger.Info("hidden")
		logger.Warn("shown")
	})

	assert.False(t, logger.Enabled(context.Background(), slog.LevelInfo))
	assert.Contains(t, string(out), "msg=shown")
	assert.NotContains(t, string(out), "hidden")
}

func TestNewMetricsForTesting_Independent(t *testing.T) {
	a := NewMetricsForTesting()
	b := NewMetricsForTesting()
	a.AlertsRaised.WithLabelValues("Warn").Inc()
	assert.NotSame(t, a.AlertsRaised, b.AlertsRaised)
}
