package geo

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/couchcryptid/drought-cdi-service/internal/domain"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// placeholderHalfSize is the half-width in degrees of a generated woreda square.
const placeholderHalfSize = 0.4

// Placeholder builds a collection with one square polygon per woreda of
// region, centred on the woreda's representative point. It stands in for real
// administrative boundaries until they are published.
func Placeholder(region domain.Region) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, w := range domain.Woredas(region) {
		p, ok := domain.WoredaCoords(w)
		if !ok {
			continue
		}
		b := orb.Bound{
			Min: orb.Point{p.Lng - placeholderHalfSize, p.Lat - placeholderHalfSize},
			Max: orb.Point{p.Lng + placeholderHalfSize, p.Lat + placeholderHalfSize},
		}
		f := geojson.NewFeature(b.ToPolygon())
		f.Properties["name"] = w
		f.Properties["region"] = string(region)
		fc.Append(f)
	}
	return fc
}

// WritePlaceholders writes <dir>/<region>.geojson for every region.
func WritePlaceholders(dir string) ([]string, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create %s: %w", dir, err)
	}
	var written []string
	for _, r := range domain.Regions {
		data, err := Placeholder(r).MarshalJSON()
		if err != nil {
			return written, fmt.Errorf("encode %s: %w", r, err)
		}
		path := filepath.Join(dir, string(r)+".geojson")
		if err := os.WriteFile(path, data, 0o644); err != nil { //nolint:gosec // static map assets are world-readable
			return written, fmt.Errorf("write %s: %w", path, err)
		}
		written = append(written, path)
	}
	return written, nil
}
