// Command validate checks the map assets, mock forecast data, and user seed
// the service starts with: every region has a feature collection, every
// woreda in the catalog has a named feature inside its region, the mock
// series classify consistently, and every seeded user can see its place of
// interest.
//
// Usage:
//
//	go run ./cmd/validate -geo-dir data/geo [-users users.yaml]
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"github.com/couchcryptid/drought-cdi-service/internal/domain"
	"github.com/couchcryptid/drought-cdi-service/internal/geo"
	"github.com/couchcryptid/drought-cdi-service/internal/session"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

func main() {
	geoDir := flag.String("geo-dir", "data/geo", "directory containing <region>.geojson files")
	usersFile := flag.String("users", "", "user seed YAML file (defaults to the demo users)")
	flag.Parse()

	if *geoDir == "" {
		flag.Usage()
		os.Exit(1)
	}

	if code := run(*geoDir, *usersFile); code != 0 {
		os.Exit(code)
	}
}

func run(geoDir, usersFile string) int {
	fmt.Println("=== Drought Map Data Validation ===")
	fmt.Println()

	src := geo.NewFileSource(geoDir)
	collections := make(map[domain.Region]*geojson.FeatureCollection, len(domain.Regions))

	phases := []*phase{
		validateCollections(src, collections),
		validateCatalog(collections),
		validateSeries(),
		validateUsers(usersFile),
	}

	for _, p := range phases {
		status := "PASS"
		if !p.passed() {
			status = "FAIL"
		}
		fmt.Printf("  %-42s %s\n", p.name, status)
	}

	failed := false
	for _, p := range phases {
		if p.passed() {
			continue
		}
		failed = true
		fmt.Printf("\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Printf("  [%d] %s\n", i+1, e)
		}
	}

	if !failed {
		fmt.Println("\nAll validations passed.")
		return 0
	}
	fmt.Println("\nValidation FAILED.")
	return 1
}

func validateCollections(src *geo.FileSource, out map[domain.Region]*geojson.FeatureCollection) *phase {
	p := &phase{name: "Phase 1: Feature collections load"}
	for _, r := range domain.Regions {
		fc, err := src.Load(context.Background(), r)
		if err != nil {
			p.errorf("%s: %v", src.Path(r), err)
			continue
		}
		for i, f := range fc.Features {
			switch f.Geometry.(type) {
			case orb.Polygon, orb.MultiPolygon:
			case nil:
				p.errorf("%s feature %d: no geometry", r, i)
			default:
				p.errorf("%s feature %d: geometry %s is not a polygon", r, i, f.Geometry.GeoJSONType())
			}
		}
		out[r] = fc
	}
	return p
}

func validateCatalog(collections map[domain.Region]*geojson.FeatureCollection) *phase {
	p := &phase{name: "Phase 2: Woreda catalog vs features"}
	for _, r := range domain.Regions {
		fc, ok := collections[r]
		if !ok {
			p.errorf("%s: no collection to check", r)
			continue
		}
		names := make([]string, 0, len(fc.Features))
		for _, f := range fc.Features {
			names = append(names, geo.FeatureName(f))
		}
		for _, w := range domain.Woredas(r) {
			if !slices.Contains(names, w) {
				p.errorf("%s: woreda %q has no feature", r, w)
			}
			if owner, ok := domain.RegionOfWoreda(w); !ok || owner != r {
				p.errorf("%s: woreda %q resolves to region %q", r, w, owner)
			}
			if pt, ok := domain.WoredaCoords(w); !ok || !domain.BoundsOf(r).Contains(pt) {
				p.errorf("%s: woreda %q point is missing or outside the region", r, w)
			}
		}
		for _, n := range names {
			if n == "" {
				p.errorf("%s: feature without a name property", r)
				continue
			}
			if !domain.HasWoreda(r, n) {
				fmt.Printf("  Note: %s feature %q is not in the woreda catalog\n", r, n)
			}
		}
	}
	return p
}

func validateSeries() *phase {
	p := &phase{name: "Phase 3: Mock series classification"}
	for _, r := range domain.Regions {
		keys := []domain.SeriesKey{{Region: r}}
		for _, w := range domain.Woredas(r) {
			keys = append(keys, domain.SeriesKey{Region: r, Woreda: w})
		}
		for _, key := range keys {
			s := domain.MockSeries(key)
			if s != domain.MockSeries(key) {
				p.errorf("%s: mock series is not deterministic", key)
			}
			for i, v := range s {
				a := domain.Assess(v)
				if domain.PhaseOf(a.Class) != a.Phase {
					p.errorf("%s month %d: phase %s does not follow class %s", key, i, a.Phase, a.Class)
				}
			}
			a := domain.Assess(s.At(0))
			fmt.Printf("  %-20s %6.2f  %-20s %s\n", key, a.Value, a.Class, a.Phase)
		}
	}
	return p
}

func validateUsers(usersFile string) *phase {
	p := &phase{name: "Phase 4: User seed"}
	users := domain.DemoUsers()
	if usersFile != "" {
		var err error
		users, err = session.LoadSeedFile(usersFile)
		if err != nil {
			p.errorf("%v", err)
			return p
		}
	}

	store, err := session.OpenStore(":memory:", slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		p.errorf("open store: %v", err)
		return p
	}
	defer store.Close()
	if _, err := store.Seed(users); err != nil {
		p.errorf("%v", err)
		return p
	}
	stored, err := store.Users()
	if err != nil {
		p.errorf("list users: %v", err)
		return p
	}
	if len(stored) != len(users) {
		p.errorf("seeded %d users but the store holds %d, emails must be unique", len(users), len(stored))
	}

	for _, u := range stored {
		place := u.PlaceOfInterest
		if !domain.CanViewRegion(&u, place.Region) {
			p.errorf("%s: cannot view its own region %s", u.Email, place.Region)
		}
		if place.Woreda != "" && !slices.Contains(domain.AllowedWoredas(&u, place.Region), place.Woreda) {
			p.errorf("%s: cannot view its own woreda %q", u.Email, place.Woreda)
		}
	}
	fmt.Printf("  %d users checked\n", len(stored))
	return p
}
