package dashboard

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/couchcryptid/drought-cdi-service/internal/domain"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/singleflight"
)

// ErrExpired is returned when opening a dashboard for a session past its expiry.
var ErrExpired = errors.New("session expired")

type entry struct {
	c         *Controller
	expiresAt time.Time
}

// Registry owns one controller per session. Controllers are created at
// login and torn down at logout or once their session expires.
type Registry struct {
	deps   Deps
	clock  clockwork.Clock
	flight singleflight.Group

	mu      sync.Mutex
	entries map[string]entry
}

// NewRegistry creates an empty registry whose controllers share deps.
func NewRegistry(deps Deps) *Registry {
	clock := deps.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Registry{deps: deps, clock: clock, entries: make(map[string]entry)}
}

// Open returns the controller for sessionID, creating and initialising it
// for user on first use. Concurrent opens of one session share a single
// initialisation. The controller is closed once expiresAt passes.
func (r *Registry) Open(ctx context.Context, sessionID string, user domain.User, expiresAt time.Time) (*Controller, error) {
	if !r.clock.Now().Before(expiresAt) {
		r.Close(sessionID)
		return nil, ErrExpired
	}
	if c, ok := r.Get(sessionID); ok {
		return c, nil
	}
	v, err, _ := r.flight.Do(sessionID, func() (any, error) {
		if c, ok := r.Get(sessionID); ok {
			return c, nil
		}
		c := New(user, r.deps)
		if _, err := c.Init(ctx); err != nil {
			c.Close()
			return nil, err
		}
		r.mu.Lock()
		r.entries[sessionID] = entry{c: c, expiresAt: expiresAt}
		r.mu.Unlock()
		return c, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Controller), nil
}

// Get returns the controller for sessionID if one is open and its session
// has not expired. An expired controller is closed.
func (r *Registry) Get(sessionID string) (*Controller, bool) {
	r.mu.Lock()
	e, ok := r.entries[sessionID]
	if ok && !r.clock.Now().Before(e.expiresAt) {
		delete(r.entries, sessionID)
		r.mu.Unlock()
		e.c.Close()
		return nil, false
	}
	r.mu.Unlock()
	return e.c, ok
}

// Close tears down the controller for sessionID, if any.
func (r *Registry) Close(sessionID string) {
	r.mu.Lock()
	e, ok := r.entries[sessionID]
	delete(r.entries, sessionID)
	r.mu.Unlock()
	if ok {
		e.c.Close()
	}
}

// CloseAll tears down every controller.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	all := r.entries
	r.entries = make(map[string]entry)
	r.mu.Unlock()
	for _, e := range all {
		e.c.Close()
	}
}

// Sweep closes the controllers of expired sessions and returns how many it closed.
func (r *Registry) Sweep() int {
	now := r.clock.Now()
	r.mu.Lock()
	var expired []*Controller
	for id, e := range r.entries {
		if !now.Before(e.expiresAt) {
			expired = append(expired, e.c)
			delete(r.entries, id)
		}
	}
	r.mu.Unlock()
	for _, c := range expired {
		c.Close()
	}
	return len(expired)
}

// Run sweeps every interval until ctx is cancelled.
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	ticker := r.clock.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			if n := r.Sweep(); n > 0 {
				r.deps.Logger.Info("expired dashboards closed", "count", n, "open", r.Len())
			}
		}
	}
}

// Len is the number of open controllers.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
