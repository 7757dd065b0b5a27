package domain

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Alert is raised when the selected area's phase escalates into Warn or Alert.
type Alert struct {
	ID         string    `json:"id"`
	UserEmail  string    `json:"user_email,omitempty"`
	Region     Region    `json:"region"`
	Woreda     string    `json:"woreda,omitempty"`
	MonthIndex int       `json:"month_index"`
	CDI        float64   `json:"cdi"`
	Class      string    `json:"class"`
	Phase      string    `json:"phase"`
	RaisedAt   time.Time `json:"raised_at"`
}

// NewAlert builds an alert for an assessment of key at month offset month.
func NewAlert(userEmail string, key SeriesKey, month int, a Assessment) Alert {
	return Alert{
		ID:         uuid.NewString(),
		UserEmail:  userEmail,
		Region:     key.Region,
		Woreda:     key.Woreda,
		MonthIndex: month,
		CDI:        a.Value,
		Class:      a.Class.String(),
		Phase:      a.Phase.String(),
		RaisedAt:   clock.Now().UTC(),
	}
}

// AlertNotifier delivers drought alerts. Delivery is one-way; callers log failures.
type AlertNotifier interface {
	NotifyAlert(ctx context.Context, alert Alert) error
}

// Report types offered by the report generator.
var ReportTypes = []string{"Situation", "Forecast", "Rainfall"}

// ReportRequest asks the report generator for a new report.
type ReportRequest struct {
	ID          string    `json:"id"`
	Region      Region    `json:"region"`
	Type        string    `json:"type"`
	Months      int       `json:"months"`
	Title       string    `json:"title,omitempty"`
	RequestedBy string    `json:"requested_by,omitempty"`
	RequestedAt time.Time `json:"requested_at"`
}

// ErrInvalidReport wraps report request validation failures.
var ErrInvalidReport = errors.New("invalid report request")

// NewReportRequest validates the parameters and stamps an ID and time.
func NewReportRequest(region Region, reportType string, months int, title, requestedBy string) (ReportRequest, error) {
	if !region.Valid() {
		return ReportRequest{}, fmt.Errorf("%w: %w: %q", ErrInvalidReport, ErrUnknownRegion, region)
	}
	if !slices.Contains(ReportTypes, reportType) {
		return ReportRequest{}, fmt.Errorf("%w: unknown type %q", ErrInvalidReport, reportType)
	}
	if months < 1 || months > ForecastMonths {
		return ReportRequest{}, fmt.Errorf("%w: months must be between 1 and %d", ErrInvalidReport, ForecastMonths)
	}
	return ReportRequest{
		ID:          uuid.NewString(),
		Region:      region,
		Type:        reportType,
		Months:      months,
		Title:       strings.TrimSpace(title),
		RequestedBy: requestedBy,
		RequestedAt: clock.Now().UTC(),
	}, nil
}

// ReportRequester hands report requests to the report generator.
type ReportRequester interface {
	RequestReport(ctx context.Context, req ReportRequest) error
}
