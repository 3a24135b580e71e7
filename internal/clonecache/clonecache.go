// Package clonecache manages the shallow-clone directory cache: one
// directory per repository+ref(+submodules) key under a single cache
// root, bounded by per-repo and aggregate size quotas and an idle TTL.
//
// Locking: Manager.mu guards the entry index and size accounting; each
// entry has its own mutex, held for the whole time a fetch reads from
// the clone. Manager.mu is only ever taken while holding an entry
// mutex, never the other way around. Eviction paths that already hold
// Manager.mu probe entries with TryLock, so an in-use clone is never
// removed and the two levels cannot deadlock.
package clonecache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"repofetch/internal/config"
	"repofetch/internal/errors"
	"repofetch/internal/gitexec"
	"repofetch/internal/identity"
	"repofetch/internal/logging"
	"repofetch/internal/notify"
	"repofetch/internal/remote"
)

// Cloner performs the actual git clone. Satisfied by gitexec.Runner.
type Cloner interface {
	Clone(ctx context.Context, opts gitexec.CloneOptions) error
}

// Options configures a Manager.
type Options struct {
	// Root is the cache directory; created if missing.
	Root string
	// Quota bounds individual clones, the aggregate cache, and idle age.
	Quota config.QuotaConfig
	// CloneTimeout bounds a plain clone; SubmoduleCloneTimeout bounds a
	// clone that also fetches submodules.
	CloneTimeout          time.Duration
	SubmoduleCloneTimeout time.Duration

	Remote   remote.Client
	Cloner   Cloner
	Logger   *logging.Logger
	Notifier notify.Notifier
}

// Manager owns the clone cache.
type Manager struct {
	root                  string
	quota                 config.QuotaConfig
	cloneTimeout          time.Duration
	submoduleCloneTimeout time.Duration
	remote                remote.Client
	cloner                Cloner
	logger                *logging.Logger
	notifier              notify.Notifier

	mu        sync.Mutex
	entries   map[string]*entry
	totalSize int64
}

// entry is one cached clone. The fields below mu are guarded by
// Manager.mu; mu itself is held by whichever fetch currently reads
// from the directory.
type entry struct {
	mu sync.Mutex

	dirName    string
	key        string
	id         identity.Identity
	submodules bool
	known      bool
	size       int64
	createdAt  time.Time
	lastAccess time.Time
}

// Lease grants exclusive use of one clone directory until released.
type Lease struct {
	m    *Manager
	e    *entry
	once sync.Once
}

// Dir returns the clone directory the lease protects.
func (l *Lease) Dir() string {
	return l.m.dirPath(l.e)
}

// Release ends the lease and marks the clone recently used. Safe to
// call more than once.
func (l *Lease) Release() {
	l.once.Do(func() {
		l.m.mu.Lock()
		l.e.lastAccess = time.Now()
		l.m.mu.Unlock()
		l.e.mu.Unlock()
	})
}

// NewManager creates the cache root if needed and restores state from
// the directories already present in it.
func NewManager(opts Options) (*Manager, error) {
	if opts.Root == "" {
		return nil, errors.New(errors.ConfigInvalid, "clone cache root must not be empty")
	}
	if opts.Cloner == nil || opts.Remote == nil {
		return nil, errors.New(errors.Internal, "clone cache requires a cloner and a remote client")
	}
	if opts.Logger == nil {
		opts.Logger = logging.Nop()
	}
	if opts.Notifier == nil {
		opts.Notifier = notify.Nop()
	}

	if err := os.MkdirAll(opts.Root, 0755); err != nil {
		return nil, errors.Wrap(errors.Internal, "creating clone cache root", err)
	}

	m := &Manager{
		root:                  opts.Root,
		quota:                 opts.Quota,
		cloneTimeout:          opts.CloneTimeout,
		submoduleCloneTimeout: opts.SubmoduleCloneTimeout,
		remote:                opts.Remote,
		cloner:                opts.Cloner,
		logger:                opts.Logger,
		notifier:              opts.Notifier,
		entries:               make(map[string]*entry),
	}
	if err := m.scan(); err != nil {
		return nil, err
	}
	// A budget that shrank since the last run takes effect right away.
	// Idle-age eviction stays with EvictExpired callers.
	m.enforceBudget()
	return m, nil
}

// scan restores entries from directories left by earlier runs and
// removes the leftovers of interrupted clones.
func (m *Manager) scan() error {
	dirEntries, err := os.ReadDir(m.root)
	if err != nil {
		return errors.Wrap(errors.Internal, "scanning clone cache root", err)
	}

	for _, de := range dirEntries {
		name := de.Name()
		full := filepath.Join(m.root, name)

		if strings.HasPrefix(name, ".tmp-") || strings.HasPrefix(name, ".trash-") {
			m.logger.Debug("removing leftover clone directory", map[string]interface{}{"dir": name})
			_ = os.RemoveAll(full)
			continue
		}
		if !de.IsDir() {
			continue
		}

		size := dirSize(full)
		stamp := time.Now()
		if info, err := de.Info(); err == nil {
			stamp = info.ModTime()
		}
		// Identity is unknown until a fetch references this key again;
		// until then the directory still counts against the quota and
		// ages out normally.
		e := &entry{
			dirName:    name,
			key:        name,
			size:       size,
			createdAt:  stamp,
			lastAccess: stamp,
		}
		m.entries[name] = e
		m.totalSize += size
	}

	if len(m.entries) > 0 {
		m.logger.Info("restored clone cache", map[string]interface{}{
			"clones":     len(m.entries),
			"totalBytes": m.totalSize,
		})
	}
	return nil
}

// Acquire returns a lease on the clone for id, cloning it first when it
// is not cached (or when refresh forces a re-clone). The lease blocks
// other fetches of the same key until released.
func (m *Manager) Acquire(ctx context.Context, id identity.Identity, submodules bool, refresh bool) (*Lease, error) {
	key := cacheKey(id, submodules)
	dirName := dirNameFor(key)

	for {
		m.mu.Lock()
		e, ok := m.entries[dirName]
		if !ok {
			e = &entry{dirName: dirName, key: key, id: id, submodules: submodules, known: true}
			e.mu.Lock()
			m.entries[dirName] = e
			m.mu.Unlock()

			size, err := m.populate(ctx, e)
			if err != nil {
				m.mu.Lock()
				delete(m.entries, dirName)
				m.mu.Unlock()
				e.mu.Unlock()
				return nil, err
			}
			m.finishPopulate(e, size, 0)
			return &Lease{m: m, e: e}, nil
		}
		m.mu.Unlock()

		e.mu.Lock()
		m.mu.Lock()
		if cur, ok := m.entries[dirName]; !ok || cur != e {
			// Evicted while we waited for the lock; start over.
			m.mu.Unlock()
			e.mu.Unlock()
			continue
		}
		// Adopt directories restored by scan under their real identity.
		e.id = id
		e.key = key
		e.submodules = submodules
		e.known = true
		oldSize := e.size
		m.mu.Unlock()

		stale := refresh
		if _, err := os.Stat(m.dirPath(e)); err != nil {
			stale = true
		}
		if !stale {
			m.mu.Lock()
			e.lastAccess = time.Now()
			m.mu.Unlock()
			return &Lease{m: m, e: e}, nil
		}

		size, err := m.populate(ctx, e)
		if err != nil {
			// The swap is atomic, so the old clone normally survives a
			// failed refresh; deregister only if it is actually gone.
			if _, statErr := os.Stat(m.dirPath(e)); statErr != nil {
				m.mu.Lock()
				if cur, ok := m.entries[dirName]; ok && cur == e {
					delete(m.entries, dirName)
					m.totalSize -= oldSize
				}
				m.mu.Unlock()
			}
			e.mu.Unlock()
			return nil, err
		}
		m.finishPopulate(e, size, oldSize)
		return &Lease{m: m, e: e}, nil
	}
}

// populate clones the entry's repository into a temp directory, checks
// it against the per-repo quota, and swaps it into place. The caller
// must hold e.mu. Only the final rename touches the resting directory,
// so an existing clone survives any earlier failure.
func (m *Manager) populate(ctx context.Context, e *entry) (int64, error) {
	if info, err := m.remote.RepositoryInfo(ctx, e.id); err != nil {
		m.logger.Warn("size probe failed, cloning anyway", map[string]interface{}{
			"repo":  e.key,
			"error": err.Error(),
		})
	} else if info.SizeBytes > m.quota.MaxRepoBytes() {
		return 0, errors.Newf(errors.CloneTooLarge,
			"repository %s is %d bytes, over the %d byte clone limit",
			e.key, info.SizeBytes, m.quota.MaxRepoBytes())
	}

	tmp := filepath.Join(m.root, ".tmp-"+uuid.NewString())
	cloneErr := m.cloner.Clone(ctx, gitexec.CloneOptions{
		URL:              m.remote.CloneURL(e.id),
		Ref:              e.id.Ref,
		Dir:              tmp,
		Submodules:       e.submodules,
		Timeout:          m.cloneTimeout,
		SubmoduleTimeout: m.submoduleCloneTimeout,
	})
	if cloneErr != nil {
		_ = os.RemoveAll(tmp)
		return 0, cloneErr
	}

	size := dirSize(tmp)
	if size > m.quota.MaxRepoBytes() {
		_ = os.RemoveAll(tmp)
		return 0, errors.Newf(errors.CloneTooLarge,
			"clone of %s came to %d bytes, over the %d byte limit",
			e.key, size, m.quota.MaxRepoBytes())
	}

	dir := m.dirPath(e)
	if _, err := os.Stat(dir); err == nil {
		trash := filepath.Join(m.root, ".trash-"+uuid.NewString())
		if err := os.Rename(dir, trash); err != nil {
			_ = os.RemoveAll(tmp)
			return 0, errors.Wrap(errors.Internal, "replacing cached clone", err)
		}
		_ = os.RemoveAll(trash)
	}
	if err := os.Rename(tmp, dir); err != nil {
		_ = os.RemoveAll(tmp)
		return 0, errors.Wrap(errors.Internal, "moving clone into cache", err)
	}
	return size, nil
}

// finishPopulate records the new clone in the accounting, then brings
// the aggregate back under budget.
func (m *Manager) finishPopulate(e *entry, newSize, oldSize int64) {
	now := time.Now()
	m.mu.Lock()
	e.size = newSize
	e.createdAt = now
	e.lastAccess = now
	m.totalSize += newSize - oldSize
	m.mu.Unlock()

	m.logger.Info("clone cached", map[string]interface{}{
		"repo":      e.key,
		"sizeBytes": newSize,
	})
	m.emit(notify.EventCloneCreated, e.key, map[string]interface{}{
		"key":       e.key,
		"sizeBytes": newSize,
	})
	m.enforceBudget()
}

// Evicted describes one clone removed from the cache.
type Evicted struct {
	Key        string    `json:"key"`
	SizeBytes  int64     `json:"sizeBytes"`
	LastAccess time.Time `json:"lastAccess"`
	Reason     string    `json:"reason"`
}

// EvictExpired removes every clone idle longer than the configured
// maximum age, then trims least-recently-used clones until the
// aggregate size fits the quota. Clones a fetch currently holds are
// skipped in both passes.
func (m *Manager) EvictExpired(now time.Time) []Evicted {
	var evicted []Evicted

	m.mu.Lock()
	for name, e := range m.entries {
		if now.Sub(e.lastAccess) <= m.quota.MaxAge() {
			continue
		}
		if !e.mu.TryLock() {
			continue
		}
		_ = os.RemoveAll(m.dirPath(e))
		delete(m.entries, name)
		m.totalSize -= e.size
		e.mu.Unlock()
		evicted = append(evicted, Evicted{Key: e.key, SizeBytes: e.size, LastAccess: e.lastAccess, Reason: "expired"})
	}
	m.mu.Unlock()

	for _, ev := range evicted {
		m.logger.Info("evicted expired clone", map[string]interface{}{
			"repo":      ev.Key,
			"sizeBytes": ev.SizeBytes,
		})
		m.emit(notify.EventCloneEvicted, ev.Key, map[string]interface{}{
			"key":       ev.Key,
			"sizeBytes": ev.SizeBytes,
			"reason":    ev.Reason,
		})
	}

	return append(evicted, m.enforceBudget()...)
}

// enforceBudget evicts least-recently-used idle clones until the
// aggregate size fits the quota. Clones a fetch holds are skipped, so
// the budget can be exceeded temporarily while everything is in use.
func (m *Manager) enforceBudget() []Evicted {
	var evicted []Evicted

	m.mu.Lock()
	candidates := make([]*entry, 0, len(m.entries))
	for _, e := range m.entries {
		candidates = append(candidates, e)
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].lastAccess.Before(candidates[j].lastAccess)
	})
	for _, e := range candidates {
		if m.totalSize <= m.quota.MaxTotalBytes() {
			break
		}
		if !e.mu.TryLock() {
			continue
		}
		_ = os.RemoveAll(m.dirPath(e))
		delete(m.entries, e.dirName)
		m.totalSize -= e.size
		e.mu.Unlock()
		evicted = append(evicted, Evicted{Key: e.key, SizeBytes: e.size, LastAccess: e.lastAccess, Reason: "over budget"})
	}
	if m.totalSize > m.quota.MaxTotalBytes() {
		m.logger.Warn("clone cache over budget but every clone is in use", map[string]interface{}{
			"totalBytes": m.totalSize,
			"maxBytes":   m.quota.MaxTotalBytes(),
		})
	}
	m.mu.Unlock()

	for _, ev := range evicted {
		m.logger.Info("evicted clone over budget", map[string]interface{}{
			"repo":      ev.Key,
			"sizeBytes": ev.SizeBytes,
		})
		m.emit(notify.EventCloneEvicted, ev.Key, map[string]interface{}{
			"key":       ev.Key,
			"sizeBytes": ev.SizeBytes,
			"reason":    ev.Reason,
		})
	}
	return evicted
}

// Cleanup removes the cached clones for an identity, both with and
// without submodules, waiting for in-flight fetches to finish first.
// It returns how many clones were removed.
func (m *Manager) Cleanup(id identity.Identity) (int, error) {
	removed := 0
	for _, submodules := range []bool{false, true} {
		dirName := dirNameFor(cacheKey(id, submodules))
		if m.remove(dirName) {
			removed++
		}
	}
	return removed, nil
}

// Purge removes every cached clone, waiting for in-flight fetches.
func (m *Manager) Purge() (int, error) {
	m.mu.Lock()
	names := make([]string, 0, len(m.entries))
	for name := range m.entries {
		names = append(names, name)
	}
	m.mu.Unlock()

	removed := 0
	for _, name := range names {
		if m.remove(name) {
			removed++
		}
	}
	return removed, nil
}

func (m *Manager) remove(dirName string) bool {
	m.mu.Lock()
	e, ok := m.entries[dirName]
	m.mu.Unlock()
	if !ok {
		return false
	}

	e.mu.Lock()
	m.mu.Lock()
	cur, ok := m.entries[dirName]
	if !ok || cur != e {
		m.mu.Unlock()
		e.mu.Unlock()
		return false
	}
	_ = os.RemoveAll(m.dirPath(e))
	delete(m.entries, dirName)
	m.totalSize -= e.size
	m.mu.Unlock()
	e.mu.Unlock()

	m.logger.Info("removed cached clone", map[string]interface{}{"repo": e.key})
	m.emit(notify.EventCloneRemoved, e.key, map[string]interface{}{"key": e.key})
	return true
}

// CloneStatus describes one cached clone for status reporting.
type CloneStatus struct {
	Key        string    `json:"key"`
	Dir        string    `json:"dir"`
	Repository string    `json:"repository,omitempty"`
	Ref        string    `json:"ref,omitempty"`
	Submodules bool      `json:"submodules,omitempty"`
	SizeBytes  int64     `json:"sizeBytes"`
	CreatedAt  time.Time `json:"createdAt"`
	LastAccess time.Time `json:"lastAccess"`
	InUse      bool      `json:"inUse"`
}

// Report is a point-in-time snapshot of the whole cache.
type Report struct {
	Root           string        `json:"root"`
	TotalSizeBytes int64         `json:"totalSizeBytes"`
	MaxTotalBytes  int64         `json:"maxTotalBytes"`
	Clones         []CloneStatus `json:"clones"`
}

// Status snapshots the cache.
func (m *Manager) Status() Report {
	m.mu.Lock()
	defer m.mu.Unlock()

	report := Report{
		Root:           m.root,
		TotalSizeBytes: m.totalSize,
		MaxTotalBytes:  m.quota.MaxTotalBytes(),
		Clones:         make([]CloneStatus, 0, len(m.entries)),
	}
	for _, e := range m.entries {
		inUse := !e.mu.TryLock()
		if !inUse {
			e.mu.Unlock()
		}
		status := CloneStatus{
			Key:        e.key,
			Dir:        m.dirPath(e),
			SizeBytes:  e.size,
			CreatedAt:  e.createdAt,
			LastAccess: e.lastAccess,
			InUse:      inUse,
		}
		if e.known {
			status.Repository = e.id.FullName()
			status.Ref = e.id.RefLabel()
			status.Submodules = e.submodules
		}
		report.Clones = append(report.Clones, status)
	}
	sort.Slice(report.Clones, func(i, j int) bool {
		return report.Clones[i].Key < report.Clones[j].Key
	})
	return report
}

func (m *Manager) dirPath(e *entry) string {
	return filepath.Join(m.root, e.dirName)
}

func (m *Manager) emit(t notify.EventType, source string, data map[string]interface{}) {
	event, err := notify.NewEvent(t, source, data)
	if err != nil {
		return
	}
	m.notifier.Emit(event)
}

// cacheKey names a clone: repository, ref label, and whether submodules
// were pulled in. The same repo at two refs caches separately, as do
// clones with and without submodules.
func cacheKey(id identity.Identity, submodules bool) string {
	key := id.FullName() + "#" + id.RefLabel()
	if submodules {
		key += "#submodules"
	}
	return key
}

// dirNameFor derives a stable directory name from a cache key: the
// sanitized key for readability plus a short hash for uniqueness.
func dirNameFor(key string) string {
	sum := sha256.Sum256([]byte(key))
	return sanitize(key) + "-" + hex.EncodeToString(sum[:])[:8]
}

func sanitize(key string) string {
	var b strings.Builder
	b.Grow(len(key))
	for _, r := range key {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('-')
		}
	}
	return b.String()
}

func dirSize(path string) int64 {
	var total int64
	_ = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.Type().IsRegular() {
			if info, err := d.Info(); err == nil {
				total += info.Size()
			}
		}
		return nil
	})
	return total
}
