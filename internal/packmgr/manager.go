// Package packmgr discovers pack-v4 files in a directory, opens and
// dictionary-warms them, and caches decoded objects. It is the domain
// layer sitting on top of the stateless internal/packv4 decoder: none of
// its bookkeeping is visible to, or required by, a single GetCommit or
// GetTree call.
package packmgr

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/vcslab/packv4/internal/packv4"
)

// PackState is the lifecycle state of a discovered pack file. Adapted from
// repomanager.RepoState, trimmed to the states a local pack actually
// passes through: there is no cloning step, only opening and warming.
type PackState int

const (
	// StateDiscovered means the file has been seen but not yet opened.
	StateDiscovered PackState = iota
	// StateWarming means the pack is open and its dictionaries are being
	// materialized.
	StateWarming
	// StateReady means the pack is open and ready for Decode calls.
	StateReady
	// StateError means opening or warming failed.
	StateError
)

func (s PackState) String() string {
	switch s {
	case StateDiscovered:
		return "discovered"
	case StateWarming:
		return "warming"
	case StateReady:
		return "ready"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Config holds settings for the Manager.
type Config struct {
	Dir                string
	MaxConcurrentOpens int
	InactivityTTL      time.Duration
	DecodeCacheSize    int
	Logger             *slog.Logger
}

func (c *Config) defaults() {
	if c.MaxConcurrentOpens <= 0 {
		c.MaxConcurrentOpens = 4
	}
	if c.InactivityTTL <= 0 {
		c.InactivityTTL = 30 * time.Minute
	}
	if c.DecodeCacheSize <= 0 {
		c.DecodeCacheSize = 1000
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// ManagedPack tracks one discovered pack file through open and warmup.
// Adapted from repomanager.ManagedRepo; Repo/DiskPath/Progress become
// Pack/Path, and there is no clone progress to track since opening a
// local file has no incremental phases worth reporting.
type ManagedPack struct {
	mu         sync.RWMutex
	ID         string // path relative to the watched directory
	Path       string // absolute path
	State      PackState
	Error      string
	Pack       *packv4.PackHandle
	Manifest   *Manifest
	NumObjects int
	CreatedAt  time.Time
	LastAccess time.Time
}

// PackInfo is a read-only snapshot of a managed pack, used by List.
type PackInfo struct {
	ID         string
	Path       string
	State      PackState
	Error      string
	NumObjects int
	LastAccess time.Time
}

// Manager discovers, opens, and serves decoded objects from every pack-v4
// file in a directory.
type Manager struct {
	cfg    Config
	logger *slog.Logger

	mu    sync.RWMutex
	packs map[string]*ManagedPack

	cache *LRUCache[[]byte]

	subsMu sync.RWMutex
	subs   []func(PackChangeEvent)

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	watcher *Watcher
}

// Subscribe registers fn to be called, from the watcher's goroutine, with
// every PackChangeEvent the manager observes — used by the inspector
// server to forward change notifications to its WebSocket clients.
func (m *Manager) Subscribe(fn func(PackChangeEvent)) {
	m.subsMu.Lock()
	defer m.subsMu.Unlock()
	m.subs = append(m.subs, fn)
}

func (m *Manager) notifySubscribers(ev PackChangeEvent) {
	m.subsMu.RLock()
	defer m.subsMu.RUnlock()
	for _, fn := range m.subs {
		fn(ev)
	}
}

// New creates a Manager and performs the initial directory scan. The scan
// retries a transient os.ReadDir failure (e.g. the directory briefly
// missing during a concurrent writer's rename-into-place) with
// go-retry's exponential backoff before giving up.
func New(ctx context.Context, cfg Config) (*Manager, error) {
	cfg.defaults()

	mctx, cancel := context.WithCancel(ctx)
	m := &Manager{
		cfg:    cfg,
		logger: cfg.Logger,
		packs:  make(map[string]*ManagedPack),
		cache:  NewLRUCache[[]byte](cfg.DecodeCacheSize),
		ctx:    mctx,
		cancel: cancel,
	}

	if err := m.scan(mctx); err != nil {
		cancel()
		return nil, err
	}

	if err := m.warmAll(mctx); err != nil {
		m.logger.Warn("some packs failed to warm during startup", "error", err)
	}

	watcher, err := newWatcher(cfg.Dir, m.logger, m.handleChange)
	if err != nil {
		m.logger.Warn("pack watcher unavailable", "error", err)
	} else {
		m.watcher = watcher
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			watcher.run(mctx)
		}()
	}

	return m, nil
}

// Close stops the watcher and releases every open pack handle.
func (m *Manager) Close() {
	m.cancel()
	m.wg.Wait()

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, mp := range m.packs {
		mp.mu.Lock()
		if mp.Pack != nil {
			mp.Pack.Close()
		}
		mp.mu.Unlock()
	}
}

// scan walks cfg.Dir for *.pack files and registers any not already known.
func (m *Manager) scan(ctx context.Context) error {
	backoff := retry.WithMaxRetries(5, retry.NewExponential(50*time.Millisecond))

	var names []string
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		entries, err := os.ReadDir(m.cfg.Dir)
		if err != nil {
			if os.IsNotExist(err) {
				return retry.RetryableError(err)
			}
			return err
		}
		names = names[:0]
		for _, e := range entries {
			if !e.IsDir() && strings.HasSuffix(e.Name(), ".pack") {
				names = append(names, e.Name())
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("packmgr: scan %s: %w", m.cfg.Dir, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, name := range names {
		if _, exists := m.packs[name]; exists {
			continue
		}
		now := time.Now()
		m.packs[name] = &ManagedPack{
			ID:         name,
			Path:       filepath.Join(m.cfg.Dir, name),
			State:      StateDiscovered,
			CreatedAt:  now,
			LastAccess: now,
		}
	}
	return nil
}

// warmAll opens and dictionary-warms every discovered pack concurrently,
// bounded by cfg.MaxConcurrentOpens, collecting per-pack failures with
// multierr instead of aborting the whole batch — one corrupt pack should
// not prevent the rest of the directory from becoming usable.
func (m *Manager) warmAll(ctx context.Context) error {
	m.mu.RLock()
	var targets []*ManagedPack
	for _, mp := range m.packs {
		mp.mu.RLock()
		state := mp.State
		mp.mu.RUnlock()
		if state == StateDiscovered {
			targets = append(targets, mp)
		}
	}
	m.mu.RUnlock()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.cfg.MaxConcurrentOpens)

	var warmErrs error
	var errMu sync.Mutex

	for _, mp := range targets {
		mp := mp
		g.Go(func() error {
			if err := m.warmOne(gctx, mp); err != nil {
				errMu.Lock()
				warmErrs = multierr.Append(warmErrs, fmt.Errorf("%s: %w", mp.ID, err))
				errMu.Unlock()
			}
			return nil // never abort sibling warmups
		})
	}
	_ = g.Wait()
	return warmErrs
}

// warmOne opens a single pack, loads its manifest, and forces both
// dictionaries to materialize so the first real Decode call never pays
// the dictionary-load cost.
func (m *Manager) warmOne(_ context.Context, mp *ManagedPack) error {
	mp.mu.Lock()
	mp.State = StateWarming
	path := mp.Path
	mp.mu.Unlock()

	numObjects, err := readNumObjects(path)
	if err != nil {
		m.failPack(mp, err)
		return err
	}

	manifestPath := path + ".offsets"
	manifest, err := loadManifest(manifestPath, numObjects)
	if err != nil {
		m.failPack(mp, err)
		return err
	}

	pack, err := packv4.OpenFile(path, numObjects)
	if err != nil {
		m.failPack(mp, err)
		return err
	}

	if err := warmDictionaries(pack); err != nil {
		pack.Close()
		m.failPack(mp, err)
		return err
	}

	mp.mu.Lock()
	mp.Pack = pack
	mp.Manifest = manifest
	mp.NumObjects = numObjects
	mp.State = StateReady
	mp.Error = ""
	mp.mu.Unlock()

	m.logger.Info("pack warmed", "id", mp.ID, "num_objects", numObjects)
	return nil
}

func (m *Manager) failPack(mp *ManagedPack, err error) {
	mp.mu.Lock()
	mp.State = StateError
	mp.Error = err.Error()
	mp.mu.Unlock()
	m.logger.Error("pack warmup failed", "id", mp.ID, "error", err)
}

// warmDictionaries forces both the identity and path dictionaries to
// materialize via packv4's exported WarmIdentDictionary/WarmPathDictionary
// wrappers.
func warmDictionaries(pack *packv4.PackHandle) error {
	if err := pack.WarmIdentDictionary(); err != nil {
		return fmt.Errorf("identity dictionary: %w", err)
	}
	if err := pack.WarmPathDictionary(); err != nil {
		return fmt.Errorf("path dictionary: %w", err)
	}
	return nil
}

// Open returns the opened *packv4.PackHandle and manifest for id (the
// pack's filename), rescanning the directory once if id is unknown so a
// pack that appeared after startup is picked up on first request.
func (m *Manager) Open(id string) (*packv4.PackHandle, *Manifest, error) {
	mp, err := m.lookup(id)
	if err != nil {
		return nil, nil, err
	}

	mp.mu.Lock()
	defer mp.mu.Unlock()
	switch mp.State {
	case StateReady:
		mp.LastAccess = time.Now()
		return mp.Pack, mp.Manifest, nil
	case StateError:
		return nil, nil, fmt.Errorf("pack %s: %s", id, mp.Error)
	default:
		return nil, nil, fmt.Errorf("pack %s is still %s", id, mp.State)
	}
}

func (m *Manager) lookup(id string) (*ManagedPack, error) {
	m.mu.RLock()
	mp, exists := m.packs[id]
	m.mu.RUnlock()
	if exists {
		return mp, nil
	}

	if err := m.scan(m.ctx); err != nil {
		return nil, err
	}
	if err := m.warmAll(m.ctx); err != nil {
		m.logger.Debug("warmAll reported errors during lookup rescan", "error", err)
	}

	m.mu.RLock()
	mp, exists = m.packs[id]
	m.mu.RUnlock()
	if !exists {
		return nil, fmt.Errorf("pack not found: %s", id)
	}
	return mp, nil
}

// Decode reconstructs the object at offset/size in pack id, serving from
// the decode cache when possible. kind selects commit vs. tree
// reconstruction, since the two share no call signature.
func (m *Manager) Decode(id string, offset, size int64, kind packv4.ObjectKind) ([]byte, error) {
	key := fmt.Sprintf("%s@%d", id, offset)
	if cached, ok := m.cache.Get(key); ok {
		return cached, nil
	}

	pack, manifest, err := m.Open(id)
	if err != nil {
		return nil, err
	}

	var out []byte
	switch kind {
	case packv4.KindCommit:
		out, err = pack.GetCommit(offset, size)
	case packv4.KindTree:
		out, err = pack.GetTree(offset, size, manifest.FindOffsetOn(pack), manifest.NthOffset)
	default:
		return nil, fmt.Errorf("unknown object kind %v", kind)
	}
	if err != nil {
		return nil, err
	}

	m.cache.Put(key, out)
	return out, nil
}

// List returns a snapshot of every known pack.
func (m *Manager) List() []PackInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]PackInfo, 0, len(m.packs))
	for _, mp := range m.packs {
		mp.mu.RLock()
		out = append(out, PackInfo{
			ID:         mp.ID,
			Path:       mp.Path,
			State:      mp.State,
			Error:      mp.Error,
			NumObjects: mp.NumObjects,
			LastAccess: mp.LastAccess,
		})
		mp.mu.RUnlock()
	}
	return out
}

// handleChange reacts to a PackChangeEvent from the watcher: invalidate
// cached decodes for the pack, then close and forget the handle of a
// removed pack, close and immediately rewarm a changed one, or scan and
// warm a pack not seen before.
func (m *Manager) handleChange(ev PackChangeEvent) {
	defer m.notifySubscribers(ev)

	m.cache.Evict(ev.ID + "@")

	if ev.Op == PackRemoved {
		m.mu.Lock()
		mp, exists := m.packs[ev.ID]
		delete(m.packs, ev.ID)
		m.mu.Unlock()
		if exists {
			mp.mu.Lock()
			if mp.Pack != nil {
				mp.Pack.Close()
				mp.Pack = nil
			}
			mp.mu.Unlock()
		}
		return
	}

	m.mu.RLock()
	mp, exists := m.packs[ev.ID]
	m.mu.RUnlock()
	if !exists {
		if err := m.scan(m.ctx); err == nil {
			if err := m.warmAll(m.ctx); err != nil {
				m.logger.Warn("warm after change failed", "id", ev.ID, "error", err)
			}
		}
		return
	}

	mp.mu.Lock()
	if mp.Pack != nil {
		mp.Pack.Close()
	}
	mp.Pack = nil
	mp.Manifest = nil
	mp.State = StateDiscovered
	mp.mu.Unlock()

	if err := m.warmOne(m.ctx, mp); err != nil {
		m.logger.Warn("rewarm after change failed", "id", ev.ID, "error", err)
	}
}
