// Package maprender turns a region's feature collection and CDI values into a
// styled, masked map layer with a fitted view and legend.
//
// A Renderer moves through these states:
//
//	Uninitialized --Mount--> Ready --SetRegion--> Loading --load ok--> Rendered
//	                                                  |
//	                                                  +--load failed--> Ready (base tiles only)
//	Rendered --SetRegion--> Loading
//	any --Destroy--> Destroyed
//
// Only the most recent SetRegion call may complete a load; results of
// superseded loads are dropped.
package maprender

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"

	"github.com/couchcryptid/drought-cdi-service/internal/domain"
	"github.com/couchcryptid/drought-cdi-service/internal/geo"
	"github.com/couchcryptid/drought-cdi-service/internal/observability"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"
)

// State is the renderer lifecycle state.
type State int

const (
	StateUninitialized State = iota
	StateReady
	StateLoading
	StateRendered
	StateDestroyed
)

func (s State) String() string {
	switch s {
	case StateReady:
		return "ready"
	case StateLoading:
		return "loading"
	case StateRendered:
		return "rendered"
	case StateDestroyed:
		return "destroyed"
	default:
		return "uninitialized"
	}
}

// MarshalText encodes the state name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

var (
	// ErrDestroyed is returned by every operation after Destroy.
	ErrDestroyed = errors.New("renderer destroyed")
	// ErrNotMounted is returned when an operation needs a mounted renderer.
	ErrNotMounted = errors.New("renderer not mounted")
	// ErrNotRendered is returned when no feature layer is drawn.
	ErrNotRendered = errors.New("no feature layer rendered")
	// ErrUnknownFeature is returned when a clicked name matches no feature.
	ErrUnknownFeature = errors.New("unknown feature")
	// ErrStaleLoad is returned by SetRegion when a newer call superseded it.
	ErrStaleLoad = errors.New("region load superseded")
)

// Values carries the CDI value for each feature. Features missing from
// ByFeature use Region.
type Values struct {
	Region    float64
	ByFeature map[string]float64
}

func (v Values) valueFor(name string) float64 {
	if x, ok := v.ByFeature[name]; ok {
		return x
	}
	return v.Region
}

// Popup is the information shown for a clicked feature.
type Popup struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
	Class string  `json:"class"`
	Phase string  `json:"phase"`
}

// SelectFunc receives the name of a clicked feature.
type SelectFunc func(name string)

// Renderer owns the map layer for one dashboard session.
type Renderer struct {
	source  geo.Source
	metrics *observability.Metrics
	logger  *slog.Logger

	mu        sync.Mutex
	state     State
	tiles     TileLayer
	region    domain.Region
	woreda    string
	values    Values
	features  *geojson.FeatureCollection
	gen       uint64
	listeners map[int]SelectFunc
	nextID    int
}

// New creates an unmounted renderer that loads collections from source.
func New(source geo.Source, metrics *observability.Metrics, logger *slog.Logger) *Renderer {
	return &Renderer{
		source:    source,
		metrics:   metrics,
		logger:    logger,
		listeners: make(map[int]SelectFunc),
	}
}

// Mount attaches the base tile layer. Mounting twice is a no-op.
func (r *Renderer) Mount(ctx context.Context, tiles TileLayer) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	switch r.state {
	case StateDestroyed:
		return ErrDestroyed
	case StateUninitialized:
		r.tiles = tiles
		r.state = StateReady
		r.metrics.RenderersActive.Inc()
	}
	return nil
}

// State returns the current lifecycle state.
func (r *Renderer) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// SetRegion loads (or reuses) region's collection and renders it. A failed
// load is logged and leaves only the base tiles; it is not retried.
func (r *Renderer) SetRegion(ctx context.Context, region domain.Region) error {
	r.mu.Lock()
	switch r.state {
	case StateDestroyed:
		r.mu.Unlock()
		return ErrDestroyed
	case StateUninitialized:
		r.mu.Unlock()
		return ErrNotMounted
	}
	r.gen++
	gen := r.gen
	r.region = region
	r.features = nil
	r.state = StateLoading
	r.mu.Unlock()

	fc, err := r.source.Load(ctx, region)

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == StateDestroyed {
		return ErrDestroyed
	}
	if gen != r.gen {
		r.metrics.StaleResultsDropped.WithLabelValues("map").Inc()
		return ErrStaleLoad
	}
	if err != nil {
		r.logger.Error("feature collection load failed", "region", region, "error", err)
		r.state = StateReady
		return nil
	}
	r.features = fc
	r.state = StateRendered
	return nil
}

// SetWoreda changes the highlighted feature. An empty name clears the highlight.
func (r *Renderer) SetWoreda(woreda string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == StateDestroyed {
		return ErrDestroyed
	}
	r.woreda = woreda
	return nil
}

// SetValues replaces the per-feature CDI values used for styling.
func (r *Renderer) SetValues(v Values) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == StateDestroyed {
		return ErrDestroyed
	}
	r.values = Values{Region: v.Region, ByFeature: maps.Clone(v.ByFeature)}
	return nil
}

// OnSelect registers fn for feature clicks and returns a function removing it.
func (r *Renderer) OnSelect(fn SelectFunc) (remove func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.nextID
	r.nextID++
	r.listeners[id] = fn
	return func() {
		r.mu.Lock()
		delete(r.listeners, id)
		r.mu.Unlock()
	}
}

// Click handles a click on the named feature: listeners receive the name and
// the popup for the feature is returned.
func (r *Renderer) Click(name string) (Popup, error) {
	r.mu.Lock()
	if err := r.requireRendered(); err != nil {
		r.mu.Unlock()
		return Popup{}, err
	}
	if findFeature(r.features, name) == nil {
		r.mu.Unlock()
		return Popup{}, fmt.Errorf("%w: %q", ErrUnknownFeature, name)
	}
	a := domain.Assess(r.values.valueFor(name))
	listeners := slices.Collect(maps.Values(r.listeners))
	r.mu.Unlock()

	for _, fn := range listeners {
		fn(name)
	}
	return Popup{Name: name, Value: a.Value, Class: a.Class.String(), Phase: a.Phase.String()}, nil
}

// ClickAt handles a click at a coordinate, resolving it to the feature containing it.
func (r *Renderer) ClickAt(p domain.LatLng) (Popup, error) {
	r.mu.Lock()
	if err := r.requireRendered(); err != nil {
		r.mu.Unlock()
		return Popup{}, err
	}
	name, ok := featureAt(r.features, orb.Point{p.Lng, p.Lat})
	r.mu.Unlock()
	if !ok {
		return Popup{}, fmt.Errorf("%w at %.4f,%.4f", ErrUnknownFeature, p.Lat, p.Lng)
	}
	return r.Click(name)
}

// Destroy releases the feature layer and every listener. It is idempotent.
func (r *Renderer) Destroy() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == StateDestroyed {
		return
	}
	if r.state != StateUninitialized {
		r.metrics.RenderersActive.Dec()
	}
	r.state = StateDestroyed
	r.features = nil
	r.values = Values{}
	clear(r.listeners)
}

func (r *Renderer) requireRendered() error {
	switch r.state {
	case StateDestroyed:
		return ErrDestroyed
	case StateRendered:
		return nil
	default:
		return ErrNotRendered
	}
}

func findFeature(fc *geojson.FeatureCollection, name string) *geojson.Feature {
	if fc == nil || name == "" {
		return nil
	}
	for _, f := range fc.Features {
		if geo.FeatureName(f) == name {
			return f
		}
	}
	return nil
}

func featureAt(fc *geojson.FeatureCollection, p orb.Point) (string, bool) {
	if fc == nil {
		return "", false
	}
	for _, f := range fc.Features {
		switch g := f.Geometry.(type) {
		case orb.Polygon:
			if planar.PolygonContains(g, p) {
				return geo.FeatureName(f), true
			}
		case orb.MultiPolygon:
			if planar.MultiPolygonContains(g, p) {
				return geo.FeatureName(f), true
			}
		}
	}
	return "", false
}
