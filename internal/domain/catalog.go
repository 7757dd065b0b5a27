package domain

import "strings"

// DatasetStatus is the lifecycle state of an ingested dataset.
type DatasetStatus string

const (
	DatasetActive     DatasetStatus = "active"
	DatasetProcessing DatasetStatus = "processing"
	DatasetArchived   DatasetStatus = "archived"
)

// Dataset describes an input or output data product.
type Dataset struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	Region      Region        `json:"region"`
	Variable    string        `json:"variable"`
	Type        string        `json:"type"`
	LastUpdated string        `json:"last_updated"`
	Records     int           `json:"records"`
	Status      DatasetStatus `json:"status"`
}

// ReportStatus is the generation state of a report.
type ReportStatus string

const (
	ReportReady      ReportStatus = "ready"
	ReportGenerating ReportStatus = "generating"
	ReportFailed     ReportStatus = "failed"
)

// Report is a generated situation or forecast document.
type Report struct {
	ID      string       `json:"id"`
	Title   string       `json:"title"`
	Region  Region       `json:"region"`
	Period  string       `json:"period"`
	Type    string       `json:"type"`
	Created string       `json:"created"`
	Status  ReportStatus `json:"status"`
	SizeKB  int          `json:"size_kb"`
}

var sampleDatasets = []Dataset{
	{ID: "ds-001", Name: "Historical CDI 2015-2024", Region: RegionAfar, Variable: "CDI", Type: "Historical", LastUpdated: "2025-08-01", Records: 1080, Status: DatasetActive},
	{ID: "ds-002", Name: "Forecast CDI Aug25-Aug26", Region: RegionSomali, Variable: "CDI", Type: "Forecast", LastUpdated: "2025-08-15", Records: 360, Status: DatasetActive},
	{ID: "ds-003", Name: "Rainfall Observations 2025", Region: RegionAfar, Variable: "Rainfall", Type: "Ingest", LastUpdated: "2025-08-18", Records: 240, Status: DatasetProcessing},
	{ID: "ds-004", Name: "Vegetation Index (NDVI)", Region: RegionSomali, Variable: "NDVI", Type: "Remote Sensing", LastUpdated: "2025-08-10", Records: 520, Status: DatasetActive},
	{ID: "ds-005", Name: "Soil Moisture (Surface)", Region: RegionAfar, Variable: "Soil Moisture", Type: "Remote Sensing", LastUpdated: "2025-08-12", Records: 520, Status: DatasetArchived},
}

var sampleReports = []Report{
	{ID: "r-101", Title: "Afar Monthly Situation - Jul 2025", Region: RegionAfar, Period: "Jul 2025", Type: "Situation", Created: "2025-08-01", Status: ReportReady, SizeKB: 412},
	{ID: "r-102", Title: "Somali Forecast Outlook (Q4 2025)", Region: RegionSomali, Period: "Q4 2025", Type: "Forecast", Created: "2025-08-12", Status: ReportReady, SizeKB: 655},
	{ID: "r-103", Title: "Afar Rainfall Anomaly Snapshot", Region: RegionAfar, Period: "Aug 2025", Type: "Rainfall", Created: "2025-08-16", Status: ReportGenerating, SizeKB: 0},
}

// DatasetFilter narrows the dataset listing. Empty fields (or "all") match everything.
type DatasetFilter struct {
	Region   string
	Variable string
	Status   string
	Search   string
}

// DatasetSummary aggregates a filtered dataset listing.
type DatasetSummary struct {
	Total      int `json:"total"`
	Records    int `json:"records"`
	Processing int `json:"processing"`
}

// Datasets lists the datasets visible to u that match f. Non-admin users
// only ever see datasets for their own region.
func Datasets(u *User, f DatasetFilter) ([]Dataset, DatasetSummary) {
	search := strings.ToLower(strings.TrimSpace(f.Search))
	out := make([]Dataset, 0, len(sampleDatasets))
	var sum DatasetSummary
	for _, d := range sampleDatasets {
		if !visibleToUser(u, d.Region) {
			continue
		}
		if !matchesFilter(f.Region, string(d.Region)) ||
			!matchesFilter(f.Variable, d.Variable) ||
			!matchesFilter(f.Status, string(d.Status)) {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(d.Name), search) {
			continue
		}
		out = append(out, d)
		sum.Total++
		sum.Records += d.Records
		if d.Status == DatasetProcessing {
			sum.Processing++
		}
	}
	return out, sum
}

// ReportSummary aggregates a report listing.
type ReportSummary struct {
	Total      int `json:"total"`
	Generating int `json:"generating"`
	Ready      int `json:"ready"`
}

// Reports lists the reports visible to u.
func Reports(u *User) ([]Report, ReportSummary) {
	out := make([]Report, 0, len(sampleReports))
	var sum ReportSummary
	for _, r := range sampleReports {
		if !visibleToUser(u, r.Region) {
			continue
		}
		out = append(out, r)
		sum.Total++
		switch r.Status {
		case ReportGenerating:
			sum.Generating++
		case ReportReady:
			sum.Ready++
		}
	}
	return out, sum
}

func visibleToUser(u *User, region Region) bool {
	return u == nil || u.Role == RoleAdmin || u.PlaceOfInterest.Region == region
}

func matchesFilter(want, got string) bool {
	return want == "" || want == "all" || want == got
}
