// Package statecache provides the per-module state cache.
//
// Modules use it to survive their own unmount/mount cycles: a module writes
// view state before deactivation and reads it back on the next activation.
// Nothing survives a process restart.
//
// The underlying store is a single flat bounded map shared by all modules;
// namespacing happens at the boundary where a per-module View is created,
// by prefixing every key with the module id. Capacity pressure from one
// module can therefore evict another module's entries; there is no
// per-module quota.
//
// Expiry is lazy. A read of an expired entry reports absence and deletes
// the entry; there is no background sweep.
package statecache

import (
	"strings"
	"sync"
	"time"
)

const (
	// DefaultCapacity is the total entry budget across all namespaces.
	DefaultCapacity = 50

	// DefaultTTL applies when a Set carries no explicit TTL.
	DefaultTTL = 5 * time.Minute
)

// entry is a stored value with its absolute expiry.
type entry struct {
	value any

	// expiresAt is the zero time for entries that never expire.
	expiresAt time.Time

	// version is an optional schema tag supplied by the writer.
	version string
}

func (e *entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// SetOptions controls a single Set call.
type SetOptions struct {
	// TTL overrides the store default. Zero means "use the default".
	TTL time.Duration

	// NoExpire pins the entry forever, overriding TTL.
	NoExpire bool

	// Version is an optional schema tag readable via GetVersion.
	Version string
}

// Store is the shared bounded cache. Insertion order doubles as the
// eviction order: when a new key arrives at capacity, the oldest-inserted
// key still present is evicted (approximate LRU; overwrites keep their
// original position, as the contract promises eviction by insertion, not
// access).
type Store struct {
	mu         sync.Mutex
	entries    map[string]*entry
	order      []string
	capacity   int
	defaultTTL time.Duration
	metrics    *Metrics

	// now is swappable for expiry tests.
	now func() time.Time
}

// NewStore creates a store with the given total capacity and default TTL.
// Non-positive arguments fall back to the package defaults.
func NewStore(capacity int, defaultTTL time.Duration) *Store {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if defaultTTL <= 0 {
		defaultTTL = DefaultTTL
	}
	return &Store{
		entries:    make(map[string]*entry),
		capacity:   capacity,
		defaultTTL: defaultTTL,
		now:        time.Now,
	}
}

// SetMetrics attaches Prometheus metrics. Optional.
func (s *Store) SetMetrics(m *Metrics) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics = m
}

// Namespace returns the per-module view for moduleID. Views are cheap;
// callers may create one per activation.
func (s *Store) Namespace(moduleID string) *View {
	return &View{store: s, prefix: moduleID + "/"}
}

// Len returns the number of live entries across all namespaces.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *Store) get(key string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		if s.metrics != nil {
			s.metrics.RecordMiss()
		}
		return nil, false
	}
	if e.expired(s.now()) {
		s.deleteLocked(key)
		if s.metrics != nil {
			s.metrics.RecordMiss()
			s.metrics.SetSize(len(s.entries))
		}
		return nil, false
	}
	if s.metrics != nil {
		s.metrics.RecordHit()
	}
	return e.value, true
}

func (s *Store) getVersion(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok || e.expired(s.now()) {
		return "", false
	}
	return e.version, true
}

func (s *Store) set(key string, value any, opts SetOptions) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var expiresAt time.Time
	if !opts.NoExpire {
		ttl := opts.TTL
		if ttl <= 0 {
			ttl = s.defaultTTL
		}
		expiresAt = s.now().Add(ttl)
	}

	if _, exists := s.entries[key]; !exists {
		if len(s.entries) >= s.capacity {
			s.evictOldestLocked()
		}
		s.order = append(s.order, key)
	}

	s.entries[key] = &entry{value: value, expiresAt: expiresAt, version: opts.Version}
	if s.metrics != nil {
		s.metrics.SetSize(len(s.entries))
	}
}

func (s *Store) delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleteLocked(key)
	if s.metrics != nil {
		s.metrics.SetSize(len(s.entries))
	}
}

// clearPrefix removes every entry under prefix. Other namespaces are
// untouched.
func (s *Store) clearPrefix(prefix string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.order[:0]
	for _, key := range s.order {
		if strings.HasPrefix(key, prefix) {
			delete(s.entries, key)
		} else {
			kept = append(kept, key)
		}
	}
	s.order = kept
	if s.metrics != nil {
		s.metrics.SetSize(len(s.entries))
	}
}

// evictOldestLocked removes the oldest-inserted key still present.
func (s *Store) evictOldestLocked() {
	for len(s.order) > 0 {
		oldest := s.order[0]
		s.order = s.order[1:]
		if _, ok := s.entries[oldest]; ok {
			delete(s.entries, oldest)
			if s.metrics != nil {
				s.metrics.RecordEviction()
			}
			return
		}
	}
}

func (s *Store) deleteLocked(key string) {
	if _, ok := s.entries[key]; !ok {
		return
	}
	delete(s.entries, key)
	for i, k := range s.order {
		if k == key {
			s.order = append(s.order[:i:i], s.order[i+1:]...)
			break
		}
	}
}

// View is the namespaced handle handed to a module through its capability
// bundle. All keys are transparently prefixed with the module id.
type View struct {
	store  *Store
	prefix string
}

// Get returns the value for key if present and not expired. An expired
// entry is deleted and reported absent.
func (v *View) Get(key string) (any, bool) {
	return v.store.get(v.prefix + key)
}

// GetVersion returns the schema version tag recorded for key, if any.
func (v *View) GetVersion(key string) (string, bool) {
	return v.store.getVersion(v.prefix + key)
}

// Set inserts or overwrites key. A new key at capacity evicts the
// oldest-inserted entry in the whole store.
func (v *View) Set(key string, value any, opts SetOptions) {
	v.store.set(v.prefix+key, value, opts)
}

// Delete removes key from the view's namespace.
func (v *View) Delete(key string) {
	v.store.delete(v.prefix + key)
}

// Clear removes all entries under the view's namespace only.
func (v *View) Clear() {
	v.store.clearPrefix(v.prefix)
}

// Get is a typed read helper over a view. It reports absence when the
// stored value is present but of a different concrete type.
func Get[T any](v *View, key string) (T, bool) {
	var zero T
	raw, ok := v.Get(key)
	if !ok {
		return zero, false
	}
	typed, ok := raw.(T)
	if !ok {
		return zero, false
	}
	return typed, true
}
