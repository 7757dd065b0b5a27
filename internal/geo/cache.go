package geo

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/couchcryptid/drought-cdi-service/internal/domain"
	"github.com/couchcryptid/drought-cdi-service/internal/observability"
	"github.com/paulmach/orb/geojson"
	"golang.org/x/sync/singleflight"
)

// Cache keeps one loaded collection per region. Failed loads are not cached.
type Cache struct {
	inner   Source
	metrics *observability.Metrics
	logger  *slog.Logger

	mu        sync.RWMutex
	byName    map[domain.Region]*geojson.FeatureCollection
	versions  map[domain.Region]uint64 // bumped by Invalidate
	flight    singleflight.Group
	preloaded atomic.Bool
}

var errNotPreloaded = errors.New("feature collections have not been preloaded yet")

// NewCache creates a caching decorator around src.
func NewCache(src Source, metrics *observability.Metrics, logger *slog.Logger) *Cache {
	return &Cache{
		inner:    src,
		metrics:  metrics,
		logger:   logger,
		byName:   make(map[domain.Region]*geojson.FeatureCollection),
		versions: make(map[domain.Region]uint64),
	}
}

// Load returns the cached collection for region, loading it on first use.
// Callers must treat the returned collection as read-only.
func (c *Cache) Load(ctx context.Context, region domain.Region) (*geojson.FeatureCollection, error) {
	c.mu.RLock()
	fc, ok := c.byName[region]
	c.mu.RUnlock()
	if ok {
		c.metrics.FeatureLoads.WithLabelValues(string(region), "cached").Inc()
		return fc, nil
	}

	loadCtx := context.WithoutCancel(ctx)
	ch := c.flight.DoChan(string(region), func() (any, error) {
		c.mu.RLock()
		version := c.versions[region]
		c.mu.RUnlock()

		fc, err := c.inner.Load(loadCtx, region)
		if err != nil {
			return nil, err
		}
		// A file change during the load may have made fc stale; hand it to
		// the waiting callers but do not keep it.
		c.mu.Lock()
		if c.versions[region] == version {
			c.byName[region] = fc
		}
		c.mu.Unlock()
		return fc, nil
	})

	var res singleflight.Result
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res = <-ch:
	}
	if res.Err != nil {
		c.metrics.FeatureLoads.WithLabelValues(string(region), "error").Inc()
		return nil, res.Err
	}
	c.metrics.FeatureLoads.WithLabelValues(string(region), "success").Inc()
	return res.Val.(*geojson.FeatureCollection), nil
}

// Invalidate drops the cached collection for region. A load already in
// flight completes for its callers but is not cached.
func (c *Cache) Invalidate(region domain.Region) {
	c.mu.Lock()
	delete(c.byName, region)
	c.versions[region]++
	c.mu.Unlock()
	c.flight.Forget(string(region))
	c.logger.Info("feature collection invalidated", "region", region)
}

// Preload loads every region, logging failures. It returns the number of
// regions now cached.
func (c *Cache) Preload(ctx context.Context) int {
	loaded := 0
	for _, r := range domain.Regions {
		if _, err := c.Load(ctx, r); err != nil {
			c.logger.Warn("feature collection preload failed", "region", r, "error", err)
			continue
		}
		loaded++
	}
	c.preloaded.Store(true)
	return loaded
}

// CheckReadiness reports ready once Preload has run. Regions that failed to
// load still render with base tiles only, so they do not block readiness.
func (c *Cache) CheckReadiness(_ context.Context) error {
	if !c.preloaded.Load() {
		return errNotPreloaded
	}
	return nil
}

// Cached reports whether region's collection is currently held.
func (c *Cache) Cached(region domain.Region) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.byName[region]
	return ok
}
