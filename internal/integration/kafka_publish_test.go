//go:build integration

package integration_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/couchcryptid/drought-cdi-service/internal/adapter/kafka"
	"github.com/couchcryptid/drought-cdi-service/internal/config"
	"github.com/couchcryptid/drought-cdi-service/internal/dashboard"
	"github.com/couchcryptid/drought-cdi-service/internal/domain"
	"github.com/couchcryptid/drought-cdi-service/internal/forecast"
	"github.com/couchcryptid/drought-cdi-service/internal/geo"
	"github.com/couchcryptid/drought-cdi-service/internal/maprender"
	"github.com/couchcryptid/drought-cdi-service/internal/observability"
	"github.com/couchcryptid/drought-cdi-service/internal/translate"
	"github.com/paulmach/orb/geojson"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tckafka "github.com/testcontainers/testcontainers-go/modules/kafka"
)

const (
	testAlertTopic  = "test-drought-alerts"
	testReportTopic = "test-report-requests"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// startKafka runs a single-node KRaft broker and returns its address.
func startKafka(ctx context.Context, t *testing.T) string {
	t.Helper()
	ctr, err := tckafka.Run(ctx, "confluentinc/confluent-local:7.5.0", tckafka.WithClusterID("drought-test"))
	testcontainers.CleanupContainer(t, ctr)
	require.NoError(t, err, "start kafka container")

	brokers, err := ctr.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers)
	return brokers[0]
}

func createTopic(t *testing.T, broker, topic string) {
	t.Helper()
	conn, err := kafkago.Dial("tcp", broker)
	require.NoError(t, err)
	defer conn.Close()

	controller, err := conn.Controller()
	require.NoError(t, err)
	ctrlConn, err := kafkago.Dial("tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	require.NoError(t, err)
	defer ctrlConn.Close()

	require.NoError(t, ctrlConn.CreateTopics(kafkago.TopicConfig{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	}))
}

// consumedMessage is a message read back from a topic.
type consumedMessage struct {
	Key     string
	Value   []byte
	Headers map[string]string
}

func readOne(ctx context.Context, t *testing.T, broker, topic string) consumedMessage {
	t.Helper()
	reader := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     []string{broker},
		Topic:       topic,
		GroupID:     fmt.Sprintf("test-%s-%d", topic, time.Now().UnixNano()),
		StartOffset: kafkago.FirstOffset,
		MaxWait:     500 * time.Millisecond,
	})
	t.Cleanup(func() { _ = reader.Close() })

	readCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	msg, err := reader.ReadMessage(readCtx)
	require.NoError(t, err, "read from %s", topic)

	headers := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	return consumedMessage{Key: string(msg.Key), Value: msg.Value, Headers: headers}
}

// TestDashboardPublishesToKafka drives a dashboard whose selection starts in
// Warn and checks that the alert and a report request reach their topics.
func TestDashboardPublishesToKafka(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testAlertTopic)
	createTopic(t, broker, testReportTopic)

	cfg := &config.Config{
		KafkaBrokers:     []string{broker},
		KafkaAlertTopic:  testAlertTopic,
		KafkaReportTopic: testReportTopic,
	}
	publisher := kafka.NewPublisher(cfg, discardLogger())
	t.Cleanup(func() { _ = publisher.Close() })

	metrics := observability.NewMetricsForTesting()
	registry := dashboard.NewRegistry(dashboard.Deps{
		Source:        forecast.NewMockSource(metrics),
		Geo:           geo.NewCache(placeholderSource{}, metrics, discardLogger()),
		Notifier:      publisher,
		Reports:       publisher,
		Translator:    translate.NewClient("", time.Second, metrics, discardLogger()),
		Tiles:         maprender.DefaultTiles,
		ForecastStart: time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC),
		Metrics:       metrics,
		Logger:        discardLogger(),
	})
	t.Cleanup(registry.CloseAll)

	var officer domain.User
	for _, u := range domain.DemoUsers() {
		if u.Role == domain.RoleWoredaOfficer {
			officer = u
		}
	}

	c, err := registry.Open(ctx, "session-1", officer, time.Now().Add(time.Hour))
	require.NoError(t, err)
	snap, err := c.Snapshot()
	require.NoError(t, err)
	require.NotNil(t, snap.LastAlert, "Gode opens in Warn")

	alertMsg := readOne(ctx, t, broker, testAlertTopic)
	assert.Equal(t, string(domain.RegionSomali), alertMsg.Key)
	assert.Equal(t, "drought_alert", alertMsg.Headers["event_type"])
	assert.Equal(t, snap.LastAlert.Phase, alertMsg.Headers["phase"])
	var alert domain.Alert
	require.NoError(t, json.Unmarshal(alertMsg.Value, &alert))
	assert.Equal(t, snap.LastAlert.ID, alert.ID)
	assert.Equal(t, "Gode", alert.Woreda)
	assert.Equal(t, officer.Email, alert.UserEmail)

	req, err := c.RequestReport(ctx, dashboard.ReportInput{Region: "somali", Type: "Forecast", Months: 6, Title: "Gode outlook"})
	require.NoError(t, err)

	reportMsg := readOne(ctx, t, broker, testReportTopic)
	assert.Equal(t, req.ID, reportMsg.Key)
	assert.Equal(t, "report_request", reportMsg.Headers["event_type"])
	assert.Equal(t, "Forecast", reportMsg.Headers["report_type"])
	var got domain.ReportRequest
	require.NoError(t, json.Unmarshal(reportMsg.Value, &got))
	assert.Equal(t, req.ID, got.ID)
	assert.Equal(t, 6, got.Months)
}

type placeholderSource struct{}

func (placeholderSource) Load(_ context.Context, region domain.Region) (*geojson.FeatureCollection, error) {
	return geo.Placeholder(region), nil
}
