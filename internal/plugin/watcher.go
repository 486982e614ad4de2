package plugin

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ErrWatcherClosed is returned when operating on a closed watcher.
var ErrWatcherClosed = errors.New("watcher is closed")

// DefaultDebounce is how long a file must be quiet before it is loaded.
const DefaultDebounce = 150 * time.Millisecond

// Watcher loads plugin files created or changed under a directory after
// the initial scan. Failures follow the scanner: logged, published and
// skipped.
type Watcher struct {
	mu sync.Mutex

	scanner  *Scanner
	watcher  *fsnotify.Watcher
	debounce time.Duration
	pending  map[string]*time.Timer

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	closed bool
}

// NewWatcher watches dir and every directory below it.
func NewWatcher(scanner *Scanner, dir string, debounce time.Duration) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	ctx, cancel := context.WithCancel(context.Background())
	w := &Watcher{
		scanner:  scanner,
		watcher:  fsw,
		debounce: debounce,
		pending:  make(map[string]*time.Timer),
		ctx:      ctx,
		cancel:   cancel,
	}

	if err := w.addTree(dir); err != nil {
		cancel()
		_ = fsw.Close()
		return nil, err
	}

	w.wg.Add(1)
	go w.processLoop()
	return w, nil
}

// addTree adds dir and its subdirectories to the fsnotify watcher.
func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		return w.watcher.Add(path)
	})
}

// processLoop handles incoming fsnotify events.
func (w *Watcher) processLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return

		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handle(ev)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.scanner.logger.Warn("Plugin watcher error", "err", err)
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	path := ev.Name
	if strings.HasPrefix(filepath.Base(path), ".") {
		return
	}

	switch {
	case ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write):
		info, err := os.Stat(path)
		if err != nil {
			return
		}
		if info.IsDir() {
			if ev.Has(fsnotify.Create) {
				if err := w.addTree(path); err != nil {
					w.scanner.logger.Warn("Unable to watch directory", "dir", path, "err", err)
				}
				w.loadTree(path)
			}
			return
		}
		if w.scanner.manager.Accepts(path) {
			w.schedule(path)
		}

	case ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename):
		w.cancelPending(path)
		if w.scanner.manager.IsLoaded(path) {
			if err := w.scanner.manager.Unload(w.ctx, path); err != nil {
				w.scanner.logger.Warn("Unable to unload plugin", "path", path, "err", err)
			}
		}
	}
}

// loadTree loads the files of a directory moved or created under the
// watched tree.
func (w *Watcher) loadTree(dir string) {
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err == nil && !d.IsDir() && w.scanner.manager.Accepts(path) {
			w.schedule(path)
		}
		return nil
	})
}

// schedule loads path once it has been quiet for the debounce interval.
func (w *Watcher) schedule(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return
	}
	if t, ok := w.pending[path]; ok {
		// A timer that already fired will load the latest content anyway.
		if t.Stop() {
			t.Reset(w.debounce)
		}
		return
	}

	w.wg.Add(1)
	w.pending[path] = time.AfterFunc(w.debounce, func() {
		defer w.wg.Done()

		w.mu.Lock()
		_, ok := w.pending[path]
		delete(w.pending, path)
		closed := w.closed
		w.mu.Unlock()
		if !ok || closed {
			return
		}

		if w.scanner.manager.IsLoaded(path) {
			if err := w.scanner.manager.Unload(w.ctx, path); err != nil {
				w.scanner.logger.Warn("Unable to unload plugin", "path", path, "err", err)
			}
		}
		_, _ = w.scanner.LoadFile(w.ctx, path)
	})
}

func (w *Watcher) cancelPending(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if t, ok := w.pending[path]; ok {
		if t.Stop() {
			w.wg.Done()
		}
		delete(w.pending, path)
	}
}

// Close stops watching and waits for in-flight loads.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return ErrWatcherClosed
	}
	w.closed = true
	for path, t := range w.pending {
		if t.Stop() {
			w.wg.Done()
		}
		delete(w.pending, path)
	}
	w.mu.Unlock()

	w.cancel()
	err := w.watcher.Close()
	w.wg.Wait()
	return err
}
