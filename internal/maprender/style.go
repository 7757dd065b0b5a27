package maprender

import "github.com/couchcryptid/drought-cdi-service/internal/domain"

// Style is the Leaflet-compatible path style of a rendered feature.
type Style struct {
	Color       string  `json:"color"`
	FillColor   string  `json:"fillColor"`
	Weight      float64 `json:"weight"`
	Opacity     float64 `json:"opacity"`
	FillOpacity float64 `json:"fillOpacity"`
}

// TileLayer configures the base map tiles drawn beneath every layer.
type TileLayer struct {
	URLTemplate string `json:"url_template"`
	Attribution string `json:"attribution"`
	MaxZoom     int    `json:"max_zoom"`
}

// DefaultTiles is the light OpenStreetMap layer used in every theme.
var DefaultTiles = TileLayer{
	URLTemplate: "https://{s}.tile.openstreetmap.org/{z}/{x}/{y}.png",
	Attribution: `&copy; <a href="https://www.openstreetmap.org/copyright">OpenStreetMap</a> contributors`,
	MaxZoom:     20,
}

// maskStyle hides everything outside the region's features.
var maskStyle = Style{
	Color:       "#f3f4f6",
	FillColor:   "#f3f4f6",
	Weight:      0,
	Opacity:     0,
	FillOpacity: 1,
}

// LegendEntry pairs a severity label with its fill colour.
type LegendEntry struct {
	Label string `json:"label"`
	Color string `json:"color"`
}

// Legend lists every severity class from most to least severe.
func Legend() []LegendEntry {
	out := make([]LegendEntry, 0, len(domain.SeverityClasses))
	for _, c := range domain.SeverityClasses {
		out = append(out, LegendEntry{Label: c.String(), Color: c.Color()})
	}
	return out
}

// featureStyle styles a feature of class c. A selected feature is drawn
// heavier; when some other feature is selected this one is dimmed.
func featureStyle(c domain.SeverityClass, selected, dimmed bool) Style {
	s := Style{
		Color:       c.Color(),
		FillColor:   c.Color(),
		Weight:      1.5,
		Opacity:     1,
		FillOpacity: 0.5,
	}
	switch {
	case selected:
		s.Weight = 3
		s.FillOpacity = 0.75
	case dimmed:
		s.Weight = 1
		s.Opacity = 0.4
		s.FillOpacity = 0.2
	}
	return s
}
