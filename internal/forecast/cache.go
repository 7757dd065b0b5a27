package forecast

import (
	"context"
	"sync"
	"time"

	"github.com/couchcryptid/drought-cdi-service/internal/domain"
	"github.com/couchcryptid/drought-cdi-service/internal/observability"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/singleflight"
)

// CachedSource wraps a PredictionSource with an in-memory LRU cache whose
// entries expire after ttl. Concurrent misses for the same key share one
// upstream fetch.
type CachedSource struct {
	inner   domain.PredictionSource
	cache   *lruCache
	flight  singleflight.Group
	metrics *observability.Metrics
}

// NewCachedSource creates a cache decorator around a prediction source.
func NewCachedSource(inner domain.PredictionSource, maxEntries int, ttl time.Duration, clock clockwork.Clock, metrics *observability.Metrics) *CachedSource {
	return &CachedSource{
		inner:   inner,
		cache:   newLRUCache(maxEntries, ttl, clock),
		metrics: metrics,
	}
}

func (c *CachedSource) Fetch(ctx context.Context, key domain.SeriesKey) (domain.Series, error) {
	k := key.String()
	if s, ok := c.cache.get(k); ok {
		c.metrics.PredictionCache.WithLabelValues("hit").Inc()
		return s, nil
	}
	c.metrics.PredictionCache.WithLabelValues("miss").Inc()

	// The shared fetch runs detached so one caller going away does not fail
	// the others waiting on it; each caller still stops waiting on its own ctx.
	fetchCtx := context.WithoutCancel(ctx)
	ch := c.flight.DoChan(k, func() (any, error) {
		s, err := c.inner.Fetch(fetchCtx, key)
		if err != nil {
			return domain.Series{}, err
		}
		c.cache.put(k, s)
		return s, nil
	})
	select {
	case <-ctx.Done():
		return domain.Series{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return domain.Series{}, res.Err
		}
		return res.Val.(domain.Series), nil
	}
}

// lruCache is a simple thread-safe LRU cache for prediction series.
type lruCache struct {
	maxEntries int
	ttl        time.Duration
	clock      clockwork.Clock
	mu         sync.Mutex
	entries    map[string]*entry
	head       *entry // most recently used
	tail       *entry // least recently used
}

type entry struct {
	key     string
	value   domain.Series
	expires time.Time
	prev    *entry
	next    *entry
}

func newLRUCache(maxEntries int, ttl time.Duration, clock clockwork.Clock) *lruCache {
	return &lruCache{
		maxEntries: maxEntries,
		ttl:        ttl,
		clock:      clock,
		entries:    make(map[string]*entry),
	}
}

func (c *lruCache) get(key string) (domain.Series, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return domain.Series{}, false
	}
	if c.ttl > 0 && !c.clock.Now().Before(e.expires) {
		delete(c.entries, key)
		c.remove(e)
		return domain.Series{}, false
	}
	c.moveToFront(e)
	return e.value, true
}

func (c *lruCache) put(key string, value domain.Series) {
	c.mu.Lock()
	defer c.mu.Unlock()

	expires := c.clock.Now().Add(c.ttl)
	if e, ok := c.entries[key]; ok {
		e.value = value
		e.expires = expires
		c.moveToFront(e)
		return
	}

	e := &entry{key: key, value: value, expires: expires}
	c.entries[key] = e
	c.addToFront(e)

	if len(c.entries) > c.maxEntries {
		c.evictTail()
	}
}

func (c *lruCache) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *lruCache) moveToFront(e *entry) {
	if e == c.head {
		return
	}
	c.remove(e)
	c.addToFront(e)
}

func (c *lruCache) addToFront(e *entry) {
	e.next = c.head
	e.prev = nil
	if c.head != nil {
		c.head.prev = e
	}
	c.head = e
	if c.tail == nil {
		c.tail = e
	}
}

func (c *lruCache) remove(e *entry) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		c.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		c.tail = e.prev
	}
}

func (c *lruCache) evictTail() {
	if c.tail == nil {
		return
	}
	delete(c.entries, c.tail.key)
	c.remove(c.tail)
}
