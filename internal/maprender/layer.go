package maprender

import (
	"github.com/couchcryptid/drought-cdi-service/internal/domain"
	"github.com/couchcryptid/drought-cdi-service/internal/geo"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// worldRing is the outer ring of the mask, covering the whole map.
var worldRing = orb.Ring{{-180, -90}, {180, -90}, {180, 90}, {-180, 90}, {-180, -90}}

// Layer is everything a client needs to draw the current map.
type Layer struct {
	State    State                      `json:"state"`
	Tiles    TileLayer                  `json:"tiles"`
	Region   domain.Region              `json:"region,omitempty"`
	Woreda   string                     `json:"woreda,omitempty"`
	Features *geojson.FeatureCollection `json:"features,omitempty"`
	Mask     *geojson.Feature           `json:"mask,omitempty"`
	View     domain.Bounds              `json:"view"`
	Legend   []LegendEntry              `json:"legend"`
}

// Snapshot builds the drawable layer for the current state. Before a
// collection is rendered it carries only the base tiles and a view framing
// the active region, or the whole country when none is set.
func (r *Renderer) Snapshot() (Layer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == StateDestroyed {
		return Layer{}, ErrDestroyed
	}

	l := Layer{
		State:  r.state,
		Tiles:  r.tiles,
		Region: r.region,
		Woreda: r.woreda,
		View:   domain.EthiopiaBounds,
		Legend: Legend(),
	}
	if r.region.Valid() {
		l.View = domain.BoundsOf(r.region)
	}
	if r.state != StateRendered || r.features == nil {
		return l, nil
	}

	l.Features = r.styledFeatures()
	l.Mask = buildMask(r.features)
	l.View = r.fitView()
	return l, nil
}

// styledFeatures copies the source collection, annotating each feature with
// its value, classification, and path style.
func (r *Renderer) styledFeatures() *geojson.FeatureCollection {
	selected := findFeature(r.features, r.woreda) != nil
	out := geojson.NewFeatureCollection()
	for _, f := range r.features.Features {
		name := geo.FeatureName(f)
		a := domain.Assess(r.values.valueFor(name))
		isSelected := selected && name == r.woreda

		cp := geojson.NewFeature(f.Geometry)
		cp.ID = f.ID
		cp.Properties = f.Properties.Clone()
		cp.Properties["name"] = name
		cp.Properties["value"] = a.Value
		cp.Properties["class"] = a.Class.String()
		cp.Properties["phase"] = a.Phase.String()
		cp.Properties["selected"] = isSelected
		cp.Properties["style"] = featureStyle(a.Class, isSelected, selected && !isSelected)
		out.Append(cp)
	}
	return out
}

// fitView frames the selected feature, or every feature when none is selected.
func (r *Renderer) fitView() domain.Bounds {
	if f := findFeature(r.features, r.woreda); f != nil && f.Geometry != nil {
		return toBounds(f.Geometry.Bound())
	}
	var (
		b     orb.Bound
		found bool
	)
	for _, f := range r.features.Features {
		if f.Geometry == nil {
			continue
		}
		if !found {
			b = f.Geometry.Bound()
			found = true
			continue
		}
		b = b.Union(f.Geometry.Bound())
	}
	if !found {
		if r.region.Valid() {
			return domain.BoundsOf(r.region)
		}
		return domain.EthiopiaBounds
	}
	return toBounds(b)
}

// buildMask returns a world polygon with every feature's outer ring cut out,
// so that only the rendered region shows through.
func buildMask(fc *geojson.FeatureCollection) *geojson.Feature {
	poly := orb.Polygon{worldRing}
	for _, f := range fc.Features {
		switch g := f.Geometry.(type) {
		case orb.Polygon:
			if len(g) > 0 {
				poly = append(poly, g[0])
			}
		case orb.MultiPolygon:
			for _, p := range g {
				if len(p) > 0 {
					poly = append(poly, p[0])
				}
			}
		}
	}
	mask := geojson.NewFeature(poly)
	mask.Properties["mask"] = true
	mask.Properties["style"] = maskStyle
	return mask
}

func toBounds(b orb.Bound) domain.Bounds {
	return domain.Bounds{
		SouthWest: domain.LatLng{Lat: b.Min.Lat(), Lng: b.Min.Lon()},
		NorthEast: domain.LatLng{Lat: b.Max.Lat(), Lng: b.Max.Lon()},
	}
}
