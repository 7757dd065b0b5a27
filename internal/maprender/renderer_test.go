package maprender

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/couchcryptid/drought-cdi-service/internal/domain"
	"github.com/couchcryptid/drought-cdi-service/internal/geo"
	"github.com/couchcryptid/drought-cdi-service/internal/observability"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type placeholderSource struct{}

func (placeholderSource) Load(ctx context.Context, region domain.Region) (*geojson.FeatureCollection, error) {
	return geo.Placeholder(region), ctx.Err()
}

type failingSource struct{}

func (failingSource) Load(context.Context, domain.Region) (*geojson.FeatureCollection, error) {
	return nil, errors.New("404 not found")
}

// gatedSource blocks loads of one region until release is closed.
type gatedSource struct {
	gated   domain.Region
	started chan struct{}
	release chan struct{}
}

func (s *gatedSource) Load(ctx context.Context, region domain.Region) (*geojson.FeatureCollection, error) {
	if region == s.gated {
		close(s.started)
		<-s.release
	}
	return geo.Placeholder(region), nil
}

func newTestRenderer(t *testing.T, src geo.Source) (*Renderer, *observability.Metrics) {
	t.Helper()
	m := observability.NewMetricsForTesting()
	r := New(src, m, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, r.Mount(context.Background(), DefaultTiles))
	return r, m
}

func featureByName(t *testing.T, fc *geojson.FeatureCollection, name string) *geojson.Feature {
	t.Helper()
	for _, f := range fc.Features {
		if f.Properties.MustString("name", "") == name {
			return f
		}
	}
	t.Fatalf("feature %q not found", name)
	return nil
}

func TestRenderer_Lifecycle(t *testing.T) {
	m := observability.NewMetricsForTesting()
	r := New(placeholderSource{}, m, slog.New(slog.NewTextHandler(io.Discard, nil)))
	assert.Equal(t, StateUninitialized, r.State())
	assert.ErrorIs(t, r.SetRegion(context.Background(), domain.RegionAfar), ErrNotMounted)

	require.NoError(t, r.Mount(context.Background(), DefaultTiles))
	require.NoError(t, r.Mount(context.Background(), DefaultTiles))
	assert.Equal(t, StateReady, r.State())
	assert.InDelta(t, 1, testutil.ToFloat64(m.RenderersActive), 0)

	require.NoError(t, r.SetRegion(context.Background(), domain.RegionAfar))
	assert.Equal(t, StateRendered, r.State())

	r.Destroy()
	r.Destroy()
	assert.Equal(t, StateDestroyed, r.State())
	assert.InDelta(t, 0, testutil.ToFloat64(m.RenderersActive), 0)
	assert.ErrorIs(t, r.SetRegion(context.Background(), domain.RegionSomali), ErrDestroyed)
	assert.ErrorIs(t, r.Mount(context.Background(), DefaultTiles), ErrDestroyed)
	_, err := r.Snapshot()
	assert.ErrorIs(t, err, ErrDestroyed)
}

func TestRenderer_SnapshotBeforeRegion(t *testing.T) {
	r, _ := newTestRenderer(t, placeholderSource{})
	l, err := r.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, StateReady, l.State)
	assert.Equal(t, DefaultTiles, l.Tiles)
	assert.Nil(t, l.Features)
	assert.Nil(t, l.Mask)
	assert.Equal(t, domain.EthiopiaBounds, l.View)
	assert.Len(t, l.Legend, 5)
}

func TestRenderer_FailedLoadShowsBaseTilesOnly(t *testing.T) {
	r, _ := newTestRenderer(t, failingSource{})
	require.NoError(t, r.SetRegion(context.Background(), domain.RegionAfar))
	assert.Equal(t, StateReady, r.State())

	l, err := r.Snapshot()
	require.NoError(t, err)
	assert.Nil(t, l.Features)
	assert.Nil(t, l.Mask)
	assert.Equal(t, DefaultTiles, l.Tiles)
	assert.Equal(t, domain.BoundsOf(domain.RegionAfar), l.View)

	_, err = r.Click("Elidar")
	assert.ErrorIs(t, err, ErrNotRendered)
}

func TestRenderer_PerFeatureStyling(t *testing.T) {
	r, _ := newTestRenderer(t, placeholderSource{})
	require.NoError(t, r.SetRegion(context.Background(), domain.RegionAfar))
	require.NoError(t, r.SetValues(Values{
		Region:    0.1,
		ByFeature: map[string]float64{"Elidar": -1.6, "Bidu": -0.7},
	}))

	l, err := r.Snapshot()
	require.NoError(t, err)
	require.Len(t, l.Features.Features, 3)

	elidar := featureByName(t, l.Features, "Elidar")
	assert.Equal(t, "Extreme Drought", elidar.Properties["class"])
	assert.Equal(t, "Alert", elidar.Properties["phase"])
	assert.Equal(t, domain.SeverityExtreme.Color(), elidar.Properties["style"].(Style).FillColor)

	bidu := featureByName(t, l.Features, "Bidu")
	assert.Equal(t, "Moderate Drought", bidu.Properties["class"])

	kori := featureByName(t, l.Features, "Kori")
	assert.InDelta(t, 0.1, kori.Properties["value"].(float64), 1e-9)
	assert.Equal(t, "Normal", kori.Properties["class"])
	assert.Equal(t, 0.5, kori.Properties["style"].(Style).FillOpacity)
}

func TestRenderer_SelectionDimsOthersAndFitsView(t *testing.T) {
	r, _ := newTestRenderer(t, placeholderSource{})
	require.NoError(t, r.SetRegion(context.Background(), domain.RegionAfar))

	all, err := r.Snapshot()
	require.NoError(t, err)

	require.NoError(t, r.SetWoreda("Bidu"))
	l, err := r.Snapshot()
	require.NoError(t, err)

	bidu := featureByName(t, l.Features, "Bidu")
	assert.Equal(t, true, bidu.Properties["selected"])
	assert.Equal(t, 3.0, bidu.Properties["style"].(Style).Weight)
	assert.Equal(t, 0.75, bidu.Properties["style"].(Style).FillOpacity)

	kori := featureByName(t, l.Features, "Kori")
	assert.Equal(t, false, kori.Properties["selected"])
	assert.Equal(t, 0.2, kori.Properties["style"].(Style).FillOpacity)

	p, _ := domain.WoredaCoords("Bidu")
	assert.True(t, l.View.Contains(p))
	assert.Less(t, l.View.NorthEast.Lat-l.View.SouthWest.Lat, all.View.NorthEast.Lat-all.View.SouthWest.Lat)

	for _, w := range domain.Woredas(domain.RegionAfar) {
		p, _ := domain.WoredaCoords(w)
		assert.True(t, all.View.Contains(p), w)
	}

	require.NoError(t, r.SetWoreda(""))
	l, err = r.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, all.View, l.View)
	assert.Equal(t, 0.5, featureByName(t, l.Features, "Kori").Properties["style"].(Style).FillOpacity)
}

func TestRenderer_UnknownWoredaDoesNotDim(t *testing.T) {
	r, _ := newTestRenderer(t, placeholderSource{})
	require.NoError(t, r.SetRegion(context.Background(), domain.RegionSomali))
	require.NoError(t, r.SetWoreda("Elidar"))

	l, err := r.Snapshot()
	require.NoError(t, err)
	for _, f := range l.Features.Features {
		assert.Equal(t, 0.5, f.Properties["style"].(Style).FillOpacity)
	}
}

func TestRenderer_MaskCutsOutFeatures(t *testing.T) {
	r, _ := newTestRenderer(t, placeholderSource{})
	require.NoError(t, r.SetRegion(context.Background(), domain.RegionSomali))

	l, err := r.Snapshot()
	require.NoError(t, err)
	require.NotNil(t, l.Mask)

	poly, ok := l.Mask.Geometry.(orb.Polygon)
	require.True(t, ok)
	assert.Len(t, poly, 4)
	assert.Equal(t, worldRing, poly[0])
	assert.Equal(t, maskStyle, l.Mask.Properties["style"])
}

func TestRenderer_ClickEmitsAndReturnsPopup(t *testing.T) {
	r, _ := newTestRenderer(t, placeholderSource{})
	require.NoError(t, r.SetRegion(context.Background(), domain.RegionSomali))
	require.NoError(t, r.SetValues(Values{Region: -1.2}))

	var got []string
	remove := r.OnSelect(func(name string) { got = append(got, name) })

	p, err := r.Click("Gode")
	require.NoError(t, err)
	assert.Equal(t, Popup{Name: "Gode", Value: -1.2, Class: "Severe Drought", Phase: "Warn"}, p)
	assert.Equal(t, []string{"Gode"}, got)

	_, err = r.Click("Elidar")
	assert.ErrorIs(t, err, ErrUnknownFeature)

	remove()
	_, err = r.Click("Fik")
	require.NoError(t, err)
	assert.Equal(t, []string{"Gode"}, got)
}

func TestRenderer_ClickAt(t *testing.T) {
	r, _ := newTestRenderer(t, placeholderSource{})
	require.NoError(t, r.SetRegion(context.Background(), domain.RegionAfar))

	at, _ := domain.WoredaCoords("Kori")
	p, err := r.ClickAt(at)
	require.NoError(t, err)
	assert.Equal(t, "Kori", p.Name)

	_, err = r.ClickAt(domain.LatLng{Lat: 0, Lng: 0})
	assert.ErrorIs(t, err, ErrUnknownFeature)
}

func TestRenderer_DestroyClearsListeners(t *testing.T) {
	r, _ := newTestRenderer(t, placeholderSource{})
	require.NoError(t, r.SetRegion(context.Background(), domain.RegionAfar))
	called := false
	r.OnSelect(func(string) { called = true })

	r.Destroy()
	_, err := r.Click("Elidar")
	assert.ErrorIs(t, err, ErrDestroyed)
	assert.False(t, called)
	assert.Empty(t, r.listeners)
}

func TestRenderer_StaleLoadDiscarded(t *testing.T) {
	src := &gatedSource{gated: domain.RegionAfar, started: make(chan struct{}), release: make(chan struct{})}
	r, m := newTestRenderer(t, src)

	var (
		wg       sync.WaitGroup
		staleErr error
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		staleErr = r.SetRegion(context.Background(), domain.RegionAfar)
	}()
	<-src.started

	require.NoError(t, r.SetRegion(context.Background(), domain.RegionSomali))
	close(src.release)
	wg.Wait()

	require.ErrorIs(t, staleErr, ErrStaleLoad)
	assert.InDelta(t, 1, testutil.ToFloat64(m.StaleResultsDropped.WithLabelValues("map")), 0)

	l, err := r.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, domain.RegionSomali, l.Region)
	featureByName(t, l.Features, "Gode")
}

func TestLegend_Order(t *testing.T) {
	legend := Legend()
	require.Len(t, legend, 5)
	assert.Equal(t, LegendEntry{Label: "Extreme Drought", Color: "#dc2626"}, legend[0])
	assert.Equal(t, LegendEntry{Label: "No Drought", Color: "#22c55e"}, legend[4])
}
