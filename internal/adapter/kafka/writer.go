package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/drought-cdi-service/internal/config"
	"github.com/couchcryptid/drought-cdi-service/internal/domain"
	kafkago "github.com/segmentio/kafka-go"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Publisher produces drought alerts and report requests to their topics.
// It implements domain.AlertNotifier and domain.ReportRequester.
type Publisher struct {
	alerts  messageWriter
	reports messageWriter
	logger  *slog.Logger
}

// NewPublisher creates Kafka producers for the configured alert and report topics.
func NewPublisher(cfg *config.Config, logger *slog.Logger) *Publisher {
	return &Publisher{
		alerts:  newTopicWriter(cfg.KafkaBrokers, cfg.KafkaAlertTopic),
		reports: newTopicWriter(cfg.KafkaBrokers, cfg.KafkaReportTopic),
		logger:  logger,
	}
}

func newTopicWriter(brokers []string, topic string) *kafkago.Writer {
	return &kafkago.Writer{
		Addr:                   kafkago.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafkago.Hash{},
		RequiredAcks:           kafkago.RequireAll,
		AllowAutoTopicCreation: true,
	}
}

// NotifyAlert publishes an alert keyed by region so that alerts for one
// region stay ordered.
func (p *Publisher) NotifyAlert(ctx context.Context, alert domain.Alert) error {
	msg, err := alertMessage(alert)
	if err != nil {
		return err
	}
	if err := p.alerts.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish alert %s: %w", alert.ID, err)
	}
	p.logger.Debug("alert published", "alert_id", alert.ID, "region", alert.Region, "phase", alert.Phase)
	return nil
}

// RequestReport publishes a report generation request.
func (p *Publisher) RequestReport(ctx context.Context, req domain.ReportRequest) error {
	msg, err := reportMessage(req)
	if err != nil {
		return err
	}
	if err := p.reports.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish report request %s: %w", req.ID, err)
	}
	p.logger.Debug("report request published", "request_id", req.ID, "region", req.Region, "type", req.Type)
	return nil
}

func (p *Publisher) Close() error {
	return errors.Join(p.alerts.Close(), p.reports.Close())
}

// alertMessage marshals an Alert into a Kafka message.
func alertMessage(alert domain.Alert) (kafkago.Message, error) {
	data, err := json.Marshal(alert)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize alert: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(alert.Region),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "event_type", Value: []byte("drought_alert")},
			{Key: "phase", Value: []byte(alert.Phase)},
			{Key: "raised_at", Value: []byte(alert.RaisedAt.Format(time.RFC3339))},
		},
	}, nil
}

// reportMessage marshals a ReportRequest into a Kafka message.
func reportMessage(req domain.ReportRequest) (kafkago.Message, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize report request: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(req.ID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "event_type", Value: []byte("report_request")},
			{Key: "report_type", Value: []byte(req.Type)},
			{Key: "requested_at", Value: []byte(req.RequestedAt.Format(time.RFC3339))},
		},
	}, nil
}
