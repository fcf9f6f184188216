package manifest

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/mfeshell/internal/logging"
)

// debounceWindow coalesces editor write bursts into one reload.
const debounceWindow = 200 * time.Millisecond

// Watcher reloads the manifest wholesale whenever the source file changes.
// A reload that fails to fetch or validate keeps the previous manifest
// active and logs the failure; the registry is never partially applied.
type Watcher struct {
	source  string
	loader  *Loader
	store   *Store
	watcher *fsnotify.Watcher
	logger  *logging.Logger
	stop    chan struct{}

	onReload func(context.Context)
}

// NewWatcher creates a watcher for a file-based manifest source.
func NewWatcher(source string, loader *Loader, store *Store, logger *logging.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	return &Watcher{
		source:  source,
		loader:  loader,
		store:   store,
		watcher: fsw,
		logger:  logger.Named("manifest.watcher"),
		stop:    make(chan struct{}),
	}, nil
}

// OnReload registers a callback invoked after each successful reload has
// been applied to the store. Must be set before Start.
func (w *Watcher) OnReload(fn func(context.Context)) {
	w.onReload = fn
}

// Start begins watching. Watching the containing directory instead of the
// file itself survives the rename-based atomic writes most editors and
// deploy tools perform.
func (w *Watcher) Start(ctx context.Context) error {
	dir := filepath.Dir(w.source)
	if err := w.watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	go w.processEvents(ctx)
	return nil
}

// Stop stops the watcher and cleans up resources.
func (w *Watcher) Stop() {
	select {
	case <-w.stop:
		// Already stopped
	default:
		close(w.stop)
		_ = w.watcher.Close()
	}
}

func (w *Watcher) processEvents(ctx context.Context) {
	var timer *time.Timer
	var timerC <-chan time.Time

	target, _ := filepath.Abs(w.source)

	for {
		select {
		case <-w.stop:
			return
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			name, _ := filepath.Abs(event.Name)
			if name != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(debounceWindow)
				timerC = timer.C
			} else {
				timer.Reset(debounceWindow)
			}
		case <-timerC:
			timer = nil
			timerC = nil
			w.reload(ctx)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn(ctx, "manifest watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) reload(ctx context.Context) {
	m, err := w.loader.Load(ctx, w.source)
	if err != nil {
		w.logger.Error(ctx, "manifest reload failed, keeping previous registry",
			zap.String("source", w.source), zap.Error(err))
		return
	}
	w.store.Replace(m)
	w.logger.Info(ctx, "manifest reloaded",
		zap.String("version", m.Version), zap.Int("modules", len(m.MFEs)))
	if w.onReload != nil {
		w.onReload(ctx)
	}
}
