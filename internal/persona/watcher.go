package persona

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"quorum/internal/logging"
)

// Watcher watches the persona library directory and reloads the store when
// YAML files settle after a change. Rapid saves are debounced so a reload
// sees the final file state.
type Watcher struct {
	mu       sync.Mutex
	watcher  *fsnotify.Watcher
	store    *Store
	dirty    map[string]time.Time
	debounce time.Duration
	stopCh   chan struct{}
	doneCh   chan struct{}
	running  bool
}

// NewWatcher creates a watcher over the store's library directory.
func NewWatcher(store *Store) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		watcher:  fw,
		store:    store,
		dirty:    make(map[string]time.Time),
		debounce: 500 * time.Millisecond,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}, nil
}

// Start begins watching. Non-blocking; the event loop runs in a goroutine
// until Stop or context cancellation.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	if err := w.watcher.Add(w.store.dir); err != nil {
		// Directory may not exist yet. Builtins still work.
		logging.PersonaWarn("watcher: initial watch failed for %s: %v", w.store.dir, err)
	} else {
		logging.Persona("watcher: watching %s", w.store.dir)
	}

	go w.run(ctx)
	return nil
}

// Stop stops the watcher and waits for the event loop to exit.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh
	w.watcher.Close()
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)

	tick := time.NewTicker(100 * time.Millisecond)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logging.PersonaWarn("watcher error: %v", err)
		case <-tick.C:
			w.flush()
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if !strings.HasSuffix(event.Name, ".yaml") && !strings.HasSuffix(event.Name, ".yml") {
		return
	}
	if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
		return
	}
	w.mu.Lock()
	w.dirty[event.Name] = time.Now()
	w.mu.Unlock()
}

// flush reloads the library once all pending changes have settled past the
// debounce window.
func (w *Watcher) flush() {
	w.mu.Lock()
	if len(w.dirty) == 0 {
		w.mu.Unlock()
		return
	}
	now := time.Now()
	settled := true
	for _, t := range w.dirty {
		if now.Sub(t) < w.debounce {
			settled = false
			break
		}
	}
	if !settled {
		w.mu.Unlock()
		return
	}
	w.dirty = make(map[string]time.Time)
	w.mu.Unlock()

	if err := w.store.Reload(); err != nil {
		// Keep the previous library on a bad edit.
		logging.PersonaWarn("watcher: reload failed, keeping previous library: %v", err)
		return
	}
	logging.Persona("watcher: library reloaded")
}
