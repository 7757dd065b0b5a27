package domain

import (
	"context"
	"math"
	"time"
	"unicode/utf16"
)

// ForecastMonths is the length of every prediction series.
const ForecastMonths = 12

// accuracyDecayPerMonth is how many percentage points forecast confidence
// loses for each month past the forecast start.
const accuracyDecayPerMonth = 5

// Series holds one CDI value per forecast month offset.
type Series [ForecastMonths]float64

// At returns the value at month offset i, or 0 when i is out of range.
func (s Series) At(i int) float64 {
	if i < 0 || i >= ForecastMonths {
		return 0
	}
	return s[i]
}

// SeriesKey identifies a prediction series. An empty Woreda means the whole region.
type SeriesKey struct {
	Region Region `json:"region"`
	Woreda string `json:"woreda,omitempty"`
}

func (k SeriesKey) String() string {
	if k.Woreda == "" {
		return string(k.Region)
	}
	return string(k.Region) + "/" + k.Woreda
}

// PredictionSource supplies CDI forecast series.
type PredictionSource interface {
	Fetch(ctx context.Context, key SeriesKey) (Series, error)
}

// MockSeries computes the deterministic placeholder series for key.
func MockSeries(key SeriesKey) Series {
	seed := string(key.Region) + key.Woreda
	var checksum int
	for _, u := range utf16.Encode([]rune(seed)) {
		checksum += int(u)
	}

	var s Series
	for i := range s {
		h := float64(checksum + i*31)
		v := ((math.Sin(h)+1)/2)*3 - 1.8
		s[i] = math.Round(v*100) / 100
	}
	return s
}

// ClampMonth keeps a month offset within the series.
func ClampMonth(i int) int {
	return max(0, min(ForecastMonths-1, i))
}

// MonthLabel formats the calendar month for offset i relative to start, e.g. "Aug 2025".
func MonthLabel(start time.Time, i int) string {
	first := time.Date(start.Year(), start.Month(), 1, 0, 0, 0, 0, time.UTC)
	return first.AddDate(0, i, 0).Format("Jan 2006")
}

// Accuracy is the forecast confidence in percent for month offset i.
func Accuracy(i int) int {
	return max(0, min(100, 100-i*accuracyDecayPerMonth))
}
