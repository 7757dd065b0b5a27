package dashboard

import (
	"github.com/couchcryptid/drought-cdi-service/internal/domain"
)

// Snapshot is the dashboard state as shown to the user.
type Snapshot struct {
	Tab            string          `json:"tab"`
	Tabs           []string        `json:"tabs"`
	Headline       string          `json:"headline"`
	Lang           string          `json:"lang"`
	Region         domain.Region   `json:"region"`
	RegionName     string          `json:"region_name"`
	Woreda         string          `json:"woreda,omitempty"`
	AllowedRegions []domain.Region `json:"allowed_regions"`
	AllowedWoredas []string        `json:"allowed_woredas"`

	Month        int               `json:"month"`
	MonthLabel   string            `json:"month_label"`
	Accuracy     int               `json:"accuracy"`
	Series       domain.Series     `json:"predictions"`
	SeriesLoaded bool              `json:"predictions_loaded"`
	Current      domain.Assessment `json:"current"`

	Comparison Comparison    `json:"comparison"`
	LastAlert  *domain.Alert `json:"last_alert,omitempty"`
}

// Comparison holds the preloaded series for the comparison views.
type Comparison struct {
	Mode    string                          `json:"mode,omitempty"`
	Region  domain.Region                   `json:"region,omitempty"`
	Regions map[domain.Region]domain.Series `json:"regions,omitempty"`
	Woredas map[string]domain.Series        `json:"woredas,omitempty"`
}

// Snapshot returns the current state.
func (c *Controller) Snapshot() (Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return Snapshot{}, ErrClosed
	}

	s := c.sel
	loaded := c.seriesKey == s.key()
	series := domain.Series{}
	if loaded {
		series = c.series
	}
	snap := Snapshot{
		Tab:            s.tab,
		Tabs:           Tabs,
		Headline:       c.headline,
		Lang:           s.lang,
		Region:         s.region,
		RegionName:     s.region.DisplayName(),
		Woreda:         s.woreda,
		AllowedRegions: domain.AllowedRegions(&c.user),
		AllowedWoredas: domain.AllowedWoredas(&c.user, s.region),
		Month:          s.month,
		MonthLabel:     domain.MonthLabel(c.deps.ForecastStart, s.month),
		Accuracy:       domain.Accuracy(s.month),
		Series:         series,
		SeriesLoaded:   loaded,
		Current:        domain.Assess(series.At(s.month)),
		Comparison:     Comparison{Mode: s.compareMode},
	}
	if c.lastAlert != nil {
		a := *c.lastAlert
		snap.LastAlert = &a
	}

	if c.regionComparison() {
		snap.Comparison.Regions = make(map[domain.Region]domain.Series, len(c.regions))
		for r, rs := range c.regions {
			snap.Comparison.Regions[r] = rs
		}
	}
	if c.woredaComparison(s) {
		snap.Comparison.Region = s.compareRegion
		snap.Comparison.Woredas = make(map[string]domain.Series)
		for _, w := range domain.Woredas(s.compareRegion) {
			if ws, ok := c.woredas[domain.SeriesKey{Region: s.compareRegion, Woreda: w}]; ok {
				snap.Comparison.Woredas[w] = ws
			}
		}
	}
	return snap, nil
}
