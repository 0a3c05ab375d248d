package packmgr

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// debounceTime matches a typical fsnotify debounce window: pack
// files are written with a rename-into-place, which fsnotify usually
// reports as a burst of events for the same path.
const debounceTime = 100 * time.Millisecond

// PackOp describes what happened to a pack file.
type PackOp int

const (
	// PackChanged means the pack file was created or modified in place.
	PackChanged PackOp = iota
	// PackRemoved means the pack file (or its directory entry) disappeared.
	PackRemoved
)

// String renders the op the way inspector clients see it over JSON.
func (op PackOp) String() string {
	if op == PackRemoved {
		return "removed"
	}
	return "changed"
}

// MarshalJSON renders PackOp as its string form rather than a bare int.
func (op PackOp) MarshalJSON() ([]byte, error) {
	return []byte(`"` + op.String() + `"`), nil
}

// PackChangeEvent is delivered to Manager (and, over /ws, to inspector
// clients) whenever a watched pack file changes on disk.
type PackChangeEvent struct {
	ID string `json:"id"`
	Op PackOp `json:"op"`
}

// Watcher wraps a single fsnotify.Watcher on one flat directory (pack
// directories are not expected to nest, unlike gitvista's .git tree), with
// per-file debounce instead of one global timer.
type Watcher struct {
	fsw     *fsnotify.Watcher
	dir     string
	logger  *slog.Logger
	onEvent func(PackChangeEvent)

	mu     sync.Mutex
	timers map[string]*time.Timer
}

func newWatcher(dir string, logger *slog.Logger, onEvent func(PackChangeEvent)) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return nil, err
	}
	return &Watcher{
		fsw:     fsw,
		dir:     dir,
		logger:  logger,
		onEvent: onEvent,
		timers:  make(map[string]*time.Timer),
	}, nil
}

// run drains fsnotify events until ctx is cancelled, debouncing per pack
// file so a rename-into-place burst produces exactly one PackChangeEvent.
func (w *Watcher) run(ctx context.Context) {
	defer w.fsw.Close()
	defer w.stopAllTimers()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if shouldIgnorePackEvent(event) {
				continue
			}
			w.debounce(ctx, event)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Error("pack watcher error", "error", err)
		}
	}
}

func (w *Watcher) debounce(ctx context.Context, event fsnotify.Event) {
	id := strings.TrimSuffix(filepath.Base(event.Name), ".offsets")
	op := PackChanged
	if event.Op&fsnotify.Remove != 0 || event.Op&fsnotify.Rename != 0 {
		op = PackRemoved
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if t, exists := w.timers[id]; exists {
		t.Stop()
	}
	w.timers[id] = time.AfterFunc(debounceTime, func() {
		if ctx.Err() != nil {
			return
		}
		w.onEvent(PackChangeEvent{ID: id, Op: op})
	})
}

func (w *Watcher) stopAllTimers() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, t := range w.timers {
		t.Stop()
	}
}

// shouldIgnorePackEvent filters out everything but a pack file (or its
// sidecar manifest) being written, created, removed, or renamed. Adapted
// from editor/git lockfile churn.
func shouldIgnorePackEvent(event fsnotify.Event) bool {
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
		return true
	}
	base := filepath.Base(event.Name)
	if strings.HasSuffix(base, ".lock") || strings.HasSuffix(base, ".tmp") {
		return true
	}
	if !strings.HasSuffix(base, ".pack") && !strings.HasSuffix(base, ".offsets") {
		return true
	}
	return false
}
