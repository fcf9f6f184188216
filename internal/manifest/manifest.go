// Package manifest loads and validates the static registry of available
// micro-frontend modules.
//
// The manifest is the single source of truth for module identity, code
// entry URLs, route prefixes, menu metadata, and permission gates. It is
// reloaded wholesale, never patched incrementally; registrations are
// immutable once loaded.
package manifest

import (
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/mfeshell/internal/routes"
)

// Manifest is the static registry describing available modules.
type Manifest struct {
	Version string         `json:"version"`
	MFEs    []Registration `json:"mfes"`
}

// Registration is the static descriptor of one module.
type Registration struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Entry string `json:"entry"`
	Route string `json:"route"`

	// StyleURL optionally overrides stylesheet discovery. When empty the
	// style loader probes conventional candidates derived from Entry.
	StyleURL string `json:"styleUrl,omitempty"`

	// ActiveWhen lists additional path prefixes that activate this module
	// beyond Route.
	ActiveWhen []string `json:"activeWhen,omitempty"`

	Menu        *Menu    `json:"menu,omitempty"`
	Permissions []string `json:"permissions,omitempty"`
	FeatureFlag string   `json:"featureFlag,omitempty"`
}

// Menu holds menu placement metadata for a registration.
type Menu struct {
	Label    string      `json:"label"`
	Icon     string      `json:"icon,omitempty"`
	Order    int         `json:"order,omitempty"`
	Section  string      `json:"section,omitempty"`
	Children []MenuChild `json:"children,omitempty"`
}

// MenuChild is a statically configured sub-navigation entry.
type MenuChild struct {
	Label       string   `json:"label"`
	Path        string   `json:"path"`
	Icon        string   `json:"icon,omitempty"`
	Order       int      `json:"order,omitempty"`
	Permissions []string `json:"permissions,omitempty"`
}

// Matches reports whether path activates this registration: true when path
// starts with Route or with any ActiveWhen prefix.
func (r *Registration) Matches(path string) bool {
	if strings.HasPrefix(path, r.Route) {
		return true
	}
	for _, prefix := range r.ActiveWhen {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// StaticRoutes converts the registration's nested menu children into route
// entries for merging with dynamically registered ones.
func (r *Registration) StaticRoutes() []routes.Entry {
	if r.Menu == nil {
		return nil
	}
	entries := make([]routes.Entry, 0, len(r.Menu.Children))
	for _, child := range r.Menu.Children {
		entries = append(entries, routes.Entry{
			Label:       child.Label,
			Path:        child.Path,
			Icon:        child.Icon,
			Order:       child.Order,
			Permissions: child.Permissions,
		})
	}
	return entries
}

// Resolve maps path to at most one registration by prefix match. The FIRST
// matching entry in manifest order wins; manifest order is preserved from
// the source document so resolution stays reproducible. Registrations
// gated behind a disabled feature flag are skipped.
func (m *Manifest) Resolve(path string, flags map[string]bool) (*Registration, bool) {
	for i := range m.MFEs {
		reg := &m.MFEs[i]
		if reg.FeatureFlag != "" && !flags[reg.FeatureFlag] {
			continue
		}
		if reg.Matches(path) {
			return reg, true
		}
	}
	return nil, false
}

// Get returns the registration with the given id.
func (m *Manifest) Get(id string) (*Registration, bool) {
	for i := range m.MFEs {
		if m.MFEs[i].ID == id {
			return &m.MFEs[i], true
		}
	}
	return nil, false
}

// Validate checks the manifest for structural problems. With strictRoutes
// set it additionally rejects manifests where two registrations could
// claim the same path, instead of silently resolving the tie by list
// order.
func (m *Manifest) Validate(strictRoutes bool) error {
	if len(m.MFEs) == 0 {
		return fmt.Errorf("%w: manifest lists no modules", ErrInvalidManifest)
	}

	seen := make(map[string]bool, len(m.MFEs))
	for i := range m.MFEs {
		reg := &m.MFEs[i]
		if reg.ID == "" {
			return fmt.Errorf("%w: registration %d has no id", ErrInvalidManifest, i)
		}
		if seen[reg.ID] {
			return fmt.Errorf("%w: duplicate module id %q", ErrInvalidManifest, reg.ID)
		}
		seen[reg.ID] = true

		if reg.Entry == "" {
			return fmt.Errorf("%w: module %q has no entry", ErrInvalidManifest, reg.ID)
		}
		if reg.Route == "" || !strings.HasPrefix(reg.Route, "/") {
			return fmt.Errorf("%w: module %q route %q must start with /", ErrInvalidManifest, reg.ID, reg.Route)
		}
		for _, prefix := range reg.ActiveWhen {
			if !strings.HasPrefix(prefix, "/") {
				return fmt.Errorf("%w: module %q activeWhen prefix %q must start with /", ErrInvalidManifest, reg.ID, prefix)
			}
		}
		if reg.Menu != nil {
			for _, child := range reg.Menu.Children {
				if child.Path == "" {
					return fmt.Errorf("%w: module %q menu child %q has no path", ErrInvalidManifest, reg.ID, child.Label)
				}
			}
		}
	}

	if strictRoutes {
		if a, b, ok := m.overlappingRoutes(); ok {
			return fmt.Errorf("%w: modules %q and %q claim overlapping route prefixes", ErrAmbiguousRoutes, a, b)
		}
	}
	return nil
}

// overlappingRoutes finds the first pair of registrations whose activation
// prefixes overlap (one is a prefix of the other).
func (m *Manifest) overlappingRoutes() (string, string, bool) {
	type prefixOwner struct {
		prefix string
		id     string
	}
	var all []prefixOwner
	for i := range m.MFEs {
		reg := &m.MFEs[i]
		all = append(all, prefixOwner{reg.Route, reg.ID})
		for _, p := range reg.ActiveWhen {
			all = append(all, prefixOwner{p, reg.ID})
		}
	}
	for i := 0; i < len(all); i++ {
		for j := i + 1; j < len(all); j++ {
			if all[i].id == all[j].id {
				continue
			}
			if strings.HasPrefix(all[i].prefix, all[j].prefix) ||
				strings.HasPrefix(all[j].prefix, all[i].prefix) {
				return all[i].id, all[j].id, true
			}
		}
	}
	return "", "", false
}
