package geo

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/couchcryptid/drought-cdi-service/internal/domain"
	"github.com/couchcryptid/drought-cdi-service/internal/observability"
	"github.com/fsnotify/fsnotify"
	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// --- mock for cache tests ---

type countingSource struct {
	calls atomic.Int64
	err   error
}

func (m *countingSource) Load(_ context.Context, region domain.Region) (*geojson.FeatureCollection, error) {
	m.calls.Add(1)
	if m.err != nil {
		return nil, m.err
	}
	return Placeholder(region), nil
}

func TestPlaceholder(t *testing.T) {
	fc := Placeholder(domain.RegionAfar)
	require.Len(t, fc.Features, 3)

	var names []string
	for _, f := range fc.Features {
		names = append(names, FeatureName(f))
		c := f.Geometry.Bound().Center()
		assert.True(t, domain.BoundsOf(domain.RegionAfar).Contains(domain.LatLng{Lat: c[1], Lng: c[0]}))
	}
	assert.Equal(t, domain.Woredas(domain.RegionAfar), names)
}

func TestFileSource_Load(t *testing.T) {
	dir := t.TempDir()
	_, err := WritePlaceholders(dir)
	require.NoError(t, err)

	src := NewFileSource(dir)
	assert.Equal(t, dir, src.Dir())
	assert.Equal(t, filepath.Join(dir, "somali.geojson"), src.Path(domain.RegionSomali))
	fc, err := src.Load(context.Background(), domain.RegionSomali)
	require.NoError(t, err)
	assert.Len(t, fc.Features, 3)
	assert.Equal(t, "Gode", FeatureName(fc.Features[0]))
}

func TestFileSource_Missing(t *testing.T) {
	_, err := NewFileSource(t.TempDir()).Load(context.Background(), domain.RegionAfar)
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestFileSource_Invalid(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "afar.geojson"), []byte("{not json"), 0o600))
	_, err := NewFileSource(dir).Load(context.Background(), domain.RegionAfar)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode afar features")
}

func TestFileSource_Empty(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "afar.geojson"), []byte(`{"type":"FeatureCollection","features":[]}`), 0o600))
	_, err := NewFileSource(dir).Load(context.Background(), domain.RegionAfar)
	assert.ErrorIs(t, err, ErrNoFeatures)
}

func TestFeatureName_Fallbacks(t *testing.T) {
	f := geojson.NewFeature(nil)
	assert.Empty(t, FeatureName(f))
	f.Properties["shapeName"] = "Fik"
	assert.Equal(t, "Fik", FeatureName(f))
	f.Properties["name"] = "Gode"
	assert.Equal(t, "Gode", FeatureName(f))
}

// gatedSource blocks the first load until release is closed and fails it
// if the context it was given has been cancelled by then.
type gatedSource struct {
	calls   atomic.Int64
	once    sync.Once
	started chan struct{}
	release chan struct{}
}

func newGatedSource() *gatedSource {
	return &gatedSource{started: make(chan struct{}), release: make(chan struct{})}
}

func (g *gatedSource) Load(ctx context.Context, region domain.Region) (*geojson.FeatureCollection, error) {
	g.calls.Add(1)
	g.once.Do(func() {
		close(g.started)
		<-g.release
	})
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return Placeholder(region), nil
}

func TestCache_LoadsOncePerRegion(t *testing.T) {
	inner := &countingSource{}
	c := NewCache(inner, observability.NewMetricsForTesting(), discardLogger())

	for range 3 {
		_, err := c.Load(context.Background(), domain.RegionAfar)
		require.NoError(t, err)
	}
	assert.Equal(t, int64(1), inner.calls.Load())
	assert.True(t, c.Cached(domain.RegionAfar))

	c.Invalidate(domain.RegionAfar)
	assert.False(t, c.Cached(domain.RegionAfar))
	_, err := c.Load(context.Background(), domain.RegionAfar)
	require.NoError(t, err)
	assert.Equal(t, int64(2), inner.calls.Load())
}

func TestCache_FailuresNotCached(t *testing.T) {
	inner := &countingSource{err: errors.New("disk gone")}
	c := NewCache(inner, observability.NewMetricsForTesting(), discardLogger())

	_, err := c.Load(context.Background(), domain.RegionSomali)
	require.Error(t, err)
	_, err = c.Load(context.Background(), domain.RegionSomali)
	require.Error(t, err)
	assert.Equal(t, int64(2), inner.calls.Load())
}

func TestCache_InvalidateDuringLoadDropsResult(t *testing.T) {
	inner := newGatedSource()
	c := NewCache(inner, observability.NewMetricsForTesting(), discardLogger())

	done := make(chan error, 1)
	go func() {
		fc, err := c.Load(context.Background(), domain.RegionAfar)
		if err == nil && len(fc.Features) == 0 {
			err = errors.New("empty collection")
		}
		done <- err
	}()
	<-inner.started
	c.Invalidate(domain.RegionAfar)
	close(inner.release)

	require.NoError(t, <-done, "the in-flight caller still gets its collection")
	assert.False(t, c.Cached(domain.RegionAfar))

	_, err := c.Load(context.Background(), domain.RegionAfar)
	require.NoError(t, err)
	assert.Equal(t, int64(2), inner.calls.Load())
	assert.True(t, c.Cached(domain.RegionAfar))
}

func TestCache_CancelledCallerDoesNotFailSharedLoad(t *testing.T) {
	inner := newGatedSource()
	c := NewCache(inner, observability.NewMetricsForTesting(), discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	leaderErr := make(chan error, 1)
	go func() {
		_, err := c.Load(ctx, domain.RegionSomali)
		leaderErr <- err
	}()
	<-inner.started
	cancel()
	require.ErrorIs(t, <-leaderErr, context.Canceled)

	follower := make(chan error, 1)
	go func() {
		_, err := c.Load(context.Background(), domain.RegionSomali)
		follower <- err
	}()
	close(inner.release)

	require.NoError(t, <-follower)
	assert.Equal(t, int64(1), inner.calls.Load())
	assert.Eventually(t, func() bool { return c.Cached(domain.RegionSomali) }, time.Second, 10*time.Millisecond)
}

func TestCache_PreloadAndReadiness(t *testing.T) {
	c := NewCache(&countingSource{err: errors.New("missing")}, observability.NewMetricsForTesting(), discardLogger())
	require.Error(t, c.CheckReadiness(context.Background()))

	assert.Equal(t, 0, c.Preload(context.Background()))
	assert.NoError(t, c.CheckReadiness(context.Background()), "failed regions degrade, they do not block readiness")

	ok := NewCache(&countingSource{}, observability.NewMetricsForTesting(), discardLogger())
	assert.Equal(t, len(domain.Regions), ok.Preload(context.Background()))
}

func TestWatcher_PicksUpRewrittenFile(t *testing.T) {
	dir := t.TempDir()
	_, err := WritePlaceholders(dir)
	require.NoError(t, err)

	c := NewCache(NewFileSource(dir), observability.NewMetricsForTesting(), discardLogger())
	_, err = c.Load(context.Background(), domain.RegionAfar)
	require.NoError(t, err)

	w, err := NewWatcher(dir, c, discardLogger())
	require.NoError(t, err)
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	trimmed := Placeholder(domain.RegionAfar)
	trimmed.Features = trimmed.Features[:1]
	data, err := trimmed.MarshalJSON()
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "afar.geojson"), data, 0o600))

	assert.Eventually(t, func() bool {
		fc, err := c.Load(ctx, domain.RegionAfar)
		return err == nil && len(fc.Features) == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestWatcher_ReloadsWarmRegion(t *testing.T) {
	inner := &countingSource{}
	c := NewCache(inner, observability.NewMetricsForTesting(), discardLogger())
	w := &Watcher{cache: c, logger: discardLogger()}
	ctx := context.Background()

	_, err := c.Load(ctx, domain.RegionAfar)
	require.NoError(t, err)

	w.handle(ctx, fsnotify.Event{Name: "/srv/geo/afar.geojson", Op: fsnotify.Write})
	assert.True(t, c.Cached(domain.RegionAfar))
	assert.Equal(t, int64(2), inner.calls.Load())

	w.handle(ctx, fsnotify.Event{Name: "/srv/geo/somali.geojson", Op: fsnotify.Write})
	assert.False(t, c.Cached(domain.RegionSomali), "cold regions stay lazy")

	w.handle(ctx, fsnotify.Event{Name: "/srv/geo/afar.geojson", Op: fsnotify.Remove})
	assert.False(t, c.Cached(domain.RegionAfar))
	assert.Equal(t, int64(2), inner.calls.Load())
}

func TestRegionForPath(t *testing.T) {
	r, ok := regionForPath("/srv/geo/somali.geojson")
	assert.True(t, ok)
	assert.Equal(t, domain.RegionSomali, r)

	_, ok = regionForPath("/srv/geo/somali.json")
	assert.False(t, ok)
	_, ok = regionForPath("/srv/geo/oromia.geojson")
	assert.False(t, ok)
}
