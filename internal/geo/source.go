// Package geo loads the per-region GeoJSON feature collections drawn by the
// map renderer and keeps them cached for the life of the process.
package geo

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/couchcryptid/drought-cdi-service/internal/domain"
	"github.com/paulmach/orb/geojson"
)

// ErrNoFeatures is returned for a collection file that contains no features.
var ErrNoFeatures = errors.New("feature collection is empty")

// nameProperties are checked in order for a feature's display name.
var nameProperties = []string{"name", "NAME", "shapeName", "woreda"}

// Source loads a region's feature collection.
type Source interface {
	Load(ctx context.Context, region domain.Region) (*geojson.FeatureCollection, error)
}

// FileSource reads <dir>/<region>.geojson.
type FileSource struct {
	dir string
}

// NewFileSource creates a FileSource rooted at dir.
func NewFileSource(dir string) *FileSource {
	return &FileSource{dir: dir}
}

// Path returns the file backing region.
func (s *FileSource) Path(region domain.Region) string {
	return filepath.Join(s.dir, string(region)+".geojson")
}

// Dir is the directory holding the collection files.
func (s *FileSource) Dir() string {
	return s.dir
}

func (s *FileSource) Load(ctx context.Context, region domain.Region) (*geojson.FeatureCollection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.Path(region))
	if err != nil {
		return nil, fmt.Errorf("read %s features: %w", region, err)
	}
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("decode %s features: %w", region, err)
	}
	if len(fc.Features) == 0 {
		return nil, fmt.Errorf("%s: %w", region, ErrNoFeatures)
	}
	return fc, nil
}

// FeatureName returns the display name of f, or "" when it has none.
func FeatureName(f *geojson.Feature) string {
	for _, key := range nameProperties {
		if name := f.Properties.MustString(key, ""); name != "" {
			return name
		}
	}
	return ""
}
