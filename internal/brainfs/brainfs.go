// Package brainfs watches brain files for external modification
// (edits made by another process, a restored backup, a manual copy)
// and invalidates any cache entries tagged with that brain's slug —
// the concurrency model's cache-invalidation requirement (spec.md §5),
// since the store itself always reads through to disk rather than
// keeping a long-lived in-memory brain cache.
//
// Grounded on the teacher's fsnotify usage for hook-file watching
// (internal/hooks), repurposed here from hook-script reloading to
// brain-file cache invalidation.
package brainfs

import (
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/dominikletica/aaviondb/internal/aerr"
	"github.com/dominikletica/aaviondb/internal/cachestore"
	"github.com/dominikletica/aaviondb/internal/eventbus"
)

// Watcher observes one or more directories containing ".brain" files
// and invalidates cache tags named after the modified brain's slug.
type Watcher struct {
	fsw   *fsnotify.Watcher
	cache *cachestore.Store
	bus   *eventbus.Bus

	mu     sync.Mutex
	closed bool
}

// New creates a Watcher backed by the given cache store. Call Watch to
// add directories, then Start to begin consuming events.
func New(cache *cachestore.Store, bus *eventbus.Bus) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, aerr.Wrap(aerr.KindStorageFailure, err, "create brain file watcher")
	}
	if bus == nil {
		bus = eventbus.New(nil)
	}
	return &Watcher{fsw: fsw, cache: cache, bus: bus}, nil
}

// Watch adds dir to the set of watched directories (system storage dir,
// user storage dir).
func (w *Watcher) Watch(dir string) error {
	if err := w.fsw.Add(dir); err != nil {
		return aerr.Wrap(aerr.KindStorageFailure, err, "watch directory %s", dir)
	}
	return nil
}

// Start consumes filesystem events until Close is called. Intended to
// run in its own goroutine.
func (w *Watcher) Start() {
	for {
		select {
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handle(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.bus.Emit("brainfs.error", map[string]any{"error": err.Error()})
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
		return
	}
	name := filepath.Base(ev.Name)
	if !strings.HasSuffix(name, ".brain") {
		return
	}
	slug := strings.TrimSuffix(name, ".brain")
	if err := w.cache.InvalidateByTag(slug); err != nil {
		w.bus.Emit("brainfs.error", map[string]any{"error": err.Error(), "slug": slug})
		return
	}
	w.bus.Emit("brainfs.invalidated", map[string]any{"slug": slug})
}

// Close stops the underlying fsnotify watcher. Idempotent.
func (w *Watcher) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	return w.fsw.Close()
}
