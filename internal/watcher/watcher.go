// Package watcher reindexes source roots when their files change.
// fsnotify events are filtered down to indexable source files,
// debounced, and turned into refresh triggers.
package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/dkallur/srcindex/internal/scanner"
)

// Operation is the kind of change observed on a file.
type Operation int

const (
	OpCreate Operation = iota
	OpModify
	OpDelete
	OpRename
)

func (op Operation) String() string {
	switch op {
	case OpCreate:
		return "CREATE"
	case OpModify:
		return "MODIFY"
	case OpDelete:
		return "DELETE"
	case OpRename:
		return "RENAME"
	default:
		return "UNKNOWN"
	}
}

// FileEvent is one observed change to an indexable file.
type FileEvent struct {
	Path      string
	Operation Operation
	Timestamp time.Time
}

// DefaultDebounceWindow is used when no window is configured.
const DefaultDebounceWindow = 500 * time.Millisecond

// Watcher watches source roots and triggers a refresh when indexable
// files change.
type Watcher struct {
	roots    []string
	scanner  *scanner.Scanner
	window   time.Duration
	onChange func(ctx context.Context, events []FileEvent)
	logger   *slog.Logger

	mu      sync.Mutex
	fsw     *fsnotify.Watcher
	deb     *Debouncer
	stopped bool
}

// Config configures a Watcher.
type Config struct {
	// Roots are the directories to watch recursively.
	Roots []string

	// Scan holds the same path rules the indexer uses, so the watcher
	// ignores exactly what a refresh would skip.
	Scan scanner.Config

	// DebounceWindow is how long a burst must be quiet before a
	// refresh fires.
	DebounceWindow time.Duration

	// OnChange is invoked with each debounced batch.
	OnChange func(ctx context.Context, events []FileEvent)
}

// New creates a watcher. OnChange is required.
func New(cfg Config, logger *slog.Logger) (*Watcher, error) {
	if len(cfg.Roots) == 0 {
		return nil, fmt.Errorf("no roots to watch")
	}
	if cfg.OnChange == nil {
		return nil, fmt.Errorf("OnChange callback is required")
	}
	if cfg.DebounceWindow <= 0 {
		cfg.DebounceWindow = DefaultDebounceWindow
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Watcher{
		roots:    cfg.Roots,
		scanner:  scanner.New(cfg.Scan, logger),
		window:   cfg.DebounceWindow,
		onChange: cfg.OnChange,
		logger:   logger,
	}, nil
}

// Run watches until the context is cancelled or Stop is called.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}

	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		_ = fsw.Close()
		return nil
	}
	w.fsw = fsw
	w.deb = NewDebouncer(w.window, w.logger)
	deb := w.deb
	w.mu.Unlock()

	defer func() {
		deb.Stop()
		_ = fsw.Close()
	}()

	for _, root := range w.roots {
		if err := w.addRecursive(fsw, root); err != nil {
			return fmt.Errorf("watch %s: %w", root, err)
		}
	}

	w.logger.Info("watching for changes",
		slog.Int("roots", len(w.roots)),
		slog.Duration("debounce", w.window))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case events, ok := <-deb.Output():
			if !ok {
				return nil
			}
			w.logger.Info("file changes detected",
				slog.Int("events", len(events)))
			w.onChange(ctx, events)

		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			w.handleEvent(fsw, deb, event)

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watcher error", slog.String("error", err.Error()))
		}
	}
}

// Stop ends the watch loop. Safe to call more than once.
func (w *Watcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return
	}
	w.stopped = true
	if w.fsw != nil {
		_ = w.fsw.Close()
	}
}

// handleEvent filters one fsnotify event down to an indexable change
// and feeds it into the debouncer.
func (w *Watcher) handleEvent(fsw *fsnotify.Watcher, deb *Debouncer, event fsnotify.Event) {
	var op Operation
	switch {
	case event.Op&fsnotify.Create != 0:
		op = OpCreate
	case event.Op&fsnotify.Write != 0:
		op = OpModify
	case event.Op&fsnotify.Remove != 0:
		op = OpDelete
	case event.Op&fsnotify.Rename != 0:
		op = OpRename
	default:
		// Chmod and friends never change index contents.
		return
	}

	// New directories must be added to the watch before their files
	// start producing events.
	if op == OpCreate {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if !w.scanner.IsExcludedDir(filepath.Base(event.Name)) {
				_ = w.addRecursive(fsw, event.Name)
			}
			return
		}
	}

	if !w.relevant(event.Name) {
		return
	}

	deb.Add(FileEvent{
		Path:      event.Name,
		Operation: op,
		Timestamp: time.Now(),
	})
}

// relevant reports whether a path would be picked up by a scan: right
// extension, not generated, not inside an excluded directory.
func (w *Watcher) relevant(path string) bool {
	ext := strings.ToLower(w.scanner.Extension())
	if !strings.HasSuffix(strings.ToLower(path), ext) {
		return false
	}
	return !w.scanner.IsGeneratedPath(path)
}

// addRecursive watches root and every non-excluded directory under it.
func (w *Watcher) addRecursive(fsw *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && w.scanner.IsExcludedDir(d.Name()) {
			return filepath.SkipDir
		}
		return fsw.Add(path)
	})
}
