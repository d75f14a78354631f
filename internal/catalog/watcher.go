package catalog

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher keeps the database in step with the catalog file. Changes are
// picked up through fsnotify, with mtime polling as a safety net.
type Watcher struct {
	path     string
	store    Store
	interval time.Duration
	// OnSync runs after every successful sync, e.g. to drop cached brand
	// credentials.
	OnSync func(SyncResult)

	mu      sync.Mutex
	modTime time.Time
}

func NewWatcher(path string, store Store, interval time.Duration) *Watcher {
	if interval <= 0 {
		interval = 60 * time.Second
	}
	return &Watcher{path: path, store: store, interval: interval}
}

// Reload loads and syncs the file unconditionally. On error nothing is
// written and the previously synced rows stay in place.
func (w *Watcher) Reload(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	info, err := os.Stat(w.path)
	if err != nil {
		return err
	}
	f, err := Load(w.path)
	if err != nil {
		return err
	}
	res, err := Sync(ctx, w.store, f)
	if err != nil {
		return err
	}
	w.modTime = info.ModTime()
	log.Printf("Catalog: synced %d brands, %d products from %s", res.Brands, res.Products, w.path)
	if w.OnSync != nil {
		w.OnSync(res)
	}
	return nil
}

// ReloadIfChanged reloads only when the file mtime moved since the last
// successful sync.
func (w *Watcher) ReloadIfChanged(ctx context.Context) error {
	info, err := os.Stat(w.path)
	if err != nil {
		return err
	}
	w.mu.Lock()
	same := info.ModTime().Equal(w.modTime)
	w.mu.Unlock()
	if same {
		return nil
	}
	return w.Reload(ctx)
}

// Start watches until ctx is cancelled.
func (w *Watcher) Start(ctx context.Context) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		log.Printf("Catalog Watcher: fsnotify failed (%v), polling only", err)
	} else if err := watcher.Add(filepath.Dir(w.path)); err != nil {
		// Editors replace files by rename, so the directory is watched.
		log.Printf("Catalog Watcher: failed to watch %s (%v), polling only", w.path, err)
		watcher.Close()
		watcher = nil
	}

	if watcher != nil {
		go w.watch(ctx, watcher)
	}
	go w.poll(ctx)
}

func (w *Watcher) watch(ctx context.Context, watcher *fsnotify.Watcher) {
	defer watcher.Close()
	target := filepath.Clean(w.path)
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				// Let the writer finish.
				time.Sleep(100 * time.Millisecond)
				if err := w.ReloadIfChanged(ctx); err != nil {
					log.Printf("Catalog Watcher: reload rejected: %v", err)
				}
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			log.Printf("Catalog Watcher Error: %v", err)
		}
	}
}

func (w *Watcher) poll(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.ReloadIfChanged(ctx); err != nil {
				log.Printf("Catalog Watcher: reload rejected: %v", err)
			}
		}
	}
}
