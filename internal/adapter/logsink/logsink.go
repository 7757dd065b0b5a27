// Package logsink records alerts and report requests in the service log when
// no broker is configured.
package logsink

import (
	"context"
	"log/slog"

	"github.com/couchcryptid/drought-cdi-service/internal/domain"
)

// Sink implements domain.AlertNotifier and domain.ReportRequester by logging.
type Sink struct {
	logger *slog.Logger
}

// New creates a Sink.
func New(logger *slog.Logger) *Sink {
	return &Sink{logger: logger}
}

func (s *Sink) NotifyAlert(_ context.Context, alert domain.Alert) error {
	s.logger.Info("sending drought alert email",
		"alert_id", alert.ID,
		"user", alert.UserEmail,
		"region", alert.Region,
		"woreda", alert.Woreda,
		"phase", alert.Phase,
		"cdi", alert.CDI,
	)
	return nil
}

func (s *Sink) RequestReport(_ context.Context, req domain.ReportRequest) error {
	s.logger.Info("generating report",
		"request_id", req.ID,
		"region", req.Region,
		"type", req.Type,
		"months", req.Months,
		"title", req.Title,
	)
	return nil
}
