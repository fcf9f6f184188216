// Package routes provides the dynamic route registry and the merge of
// static and dynamic secondary-navigation entries.
//
// Static entries come from the manifest's nested menu children; dynamic
// entries are registered by a module at activation time. Merging is by
// path, dynamic overriding static, with the result sorted by order
// ascending (stable on ties).
package routes

import (
	"sort"
	"sync"

	"github.com/fyrsmithlabs/mfeshell/internal/auth"
	"github.com/fyrsmithlabs/mfeshell/internal/eventbus"
)

// Entry is one secondary-navigation entry.
type Entry struct {
	Label       string   `json:"label"`
	Path        string   `json:"path"`
	Icon        string   `json:"icon,omitempty"`
	Order       int      `json:"order,omitempty"`
	Permissions []string `json:"permissions,omitempty"`

	// External marks the entry as an external link rendered outside the
	// shell's navigation.
	External bool `json:"external,omitempty"`
}

// Registry holds the dynamic routes registered per module id.
type Registry struct {
	mu      sync.RWMutex
	dynamic map[string][]Entry

	// bus, when set, carries routes-registered/unregistered events so
	// chrome observing the registry re-reads the merged table.
	bus *eventbus.Bus
}

// NewRegistry creates a registry. bus may be nil.
func NewRegistry(bus *eventbus.Bus) *Registry {
	return &Registry{
		dynamic: make(map[string][]Entry),
		bus:     bus,
	}
}

// Register replaces (not merges) the full dynamic route list for moduleID
// and notifies observers.
func (r *Registry) Register(moduleID string, entries []Entry) {
	copied := make([]Entry, len(entries))
	copy(copied, entries)

	r.mu.Lock()
	r.dynamic[moduleID] = copied
	r.mu.Unlock()

	if r.bus != nil {
		r.bus.Emit(eventbus.EventRoutesRegistered, map[string]any{
			"moduleId": moduleID,
			"count":    len(copied),
		})
	}
}

// Unregister removes the module's dynamic entry entirely and notifies
// observers. Unregistering an unknown module is a no-op without
// notification.
func (r *Registry) Unregister(moduleID string) {
	r.mu.Lock()
	_, existed := r.dynamic[moduleID]
	delete(r.dynamic, moduleID)
	r.mu.Unlock()

	if existed && r.bus != nil {
		r.bus.Emit(eventbus.EventRoutesUnregistered, map[string]any{
			"moduleId": moduleID,
		})
	}
}

// Dynamic returns the dynamic routes registered for moduleID.
func (r *Registry) Dynamic(moduleID string) []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entries := r.dynamic[moduleID]
	copied := make([]Entry, len(entries))
	copy(copied, entries)
	return copied
}

// Modules returns the module ids with dynamic routes registered.
func (r *Registry) Modules() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.dynamic))
	for id := range r.dynamic {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Merged returns the merged static+dynamic table for moduleID.
func (r *Registry) Merged(moduleID string, static []Entry) []Entry {
	return Merge(static, r.Dynamic(moduleID))
}

// Merge combines static and dynamic entries by path. A dynamic entry
// overrides a static entry sharing the same path. The result is sorted by
// Order ascending; entries with equal order keep static-before-dynamic,
// each in declaration order.
func Merge(static, dynamic []Entry) []Entry {
	overridden := make(map[string]bool, len(dynamic))
	for _, d := range dynamic {
		overridden[d.Path] = true
	}

	merged := make([]Entry, 0, len(static)+len(dynamic))
	for _, s := range static {
		if !overridden[s.Path] {
			merged = append(merged, s)
		}
	}
	merged = append(merged, dynamic...)

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Order < merged[j].Order
	})
	return merged
}

// FilterByPermissions drops entries whose required permissions the user
// does not carry. Entries without permissions always pass.
func FilterByPermissions(entries []Entry, user auth.User) []Entry {
	filtered := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if user.HasAll(e.Permissions) {
			filtered = append(filtered, e)
		}
	}
	return filtered
}
