package geo

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/couchcryptid/drought-cdi-service/internal/domain"
	"github.com/fsnotify/fsnotify"
)

// Watcher invalidates cached collections when their files change on disk.
type Watcher struct {
	fsw    *fsnotify.Watcher
	cache  *Cache
	logger *slog.Logger
}

// NewWatcher starts watching dir. Call Run to process events and Close to stop.
func NewWatcher(dir string, cache *Cache, logger *slog.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create geo watcher: %w", err)
	}
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("watch %s: %w", dir, err)
	}
	return &Watcher{fsw: fsw, cache: cache, logger: logger}, nil
}

// Run handles file events until ctx is cancelled or the watcher is closed.
func (w *Watcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handle(ctx, ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("geo watcher error", "error", err)
		}
	}
}

// handle invalidates the changed region and reloads it when it was held,
// so regions that were warm stay warm.
func (w *Watcher) handle(ctx context.Context, ev fsnotify.Event) {
	if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Remove) && !ev.Has(fsnotify.Rename) {
		return
	}
	region, ok := regionForPath(ev.Name)
	if !ok {
		return
	}
	warm := w.cache.Cached(region)
	w.logger.Debug("geo file changed", "path", ev.Name, "op", ev.Op.String(), "cached", warm)
	w.cache.Invalidate(region)
	if !warm || ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename) {
		return
	}
	if _, err := w.cache.Load(ctx, region); err != nil {
		w.logger.Warn("feature collection reload failed", "region", region, "error", err)
	}
}

// Close stops the underlying watcher.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}

func regionForPath(path string) (domain.Region, bool) {
	base := filepath.Base(path)
	if !strings.HasSuffix(base, ".geojson") {
		return "", false
	}
	r, err := domain.ParseRegion(strings.TrimSuffix(base, ".geojson"))
	if err != nil {
		return "", false
	}
	return r, true
}
