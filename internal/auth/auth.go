// Package auth defines the authentication boundary consumed by the shell.
//
// The shell never implements authentication itself. A Provider supplies
// point-in-time snapshots of the current identity; the snapshot travels
// inside each module's capability bundle. The bundled Login and Logout
// callbacks delegate back to the provider.
package auth

import (
	"context"
	"slices"
	"sync"
)

// User identifies the authenticated principal.
type User struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Email       string   `json:"email,omitempty"`
	Permissions []string `json:"permissions,omitempty"`
}

// HasPermission reports whether the user carries the named permission.
func (u User) HasPermission(perm string) bool {
	return slices.Contains(u.Permissions, perm)
}

// HasAll reports whether the user carries every named permission.
func (u User) HasAll(perms []string) bool {
	for _, p := range perms {
		if !u.HasPermission(p) {
			return false
		}
	}
	return true
}

// Snapshot is the point-in-time auth state handed to modules.
// It is a value copy; provider-side changes never mutate a handed-out
// snapshot, modules observe changes through the auth:changed event.
type Snapshot struct {
	User            User
	Token           string
	IsAuthenticated bool

	// Login and Logout delegate to the provider. Either may be nil when
	// the provider does not support interactive transitions.
	Login  func(ctx context.Context) error
	Logout func(ctx context.Context) error
}

// Provider supplies auth snapshots and change notifications.
type Provider interface {
	// Snapshot returns the current auth state.
	Snapshot() Snapshot

	// Subscribe registers a callback invoked after every auth state
	// change. The returned function cancels the subscription.
	Subscribe(fn func(Snapshot)) (cancel func())
}

// StaticProvider is a Provider backed by a fixed user. It supports
// logout/login transitions between the configured identity and anonymous,
// which is enough for single-operator deployments and tests.
type StaticProvider struct {
	mu        sync.RWMutex
	user      User
	token     string
	loggedIn  bool
	nextSubID int
	subs      map[int]func(Snapshot)
}

// NewStaticProvider creates a provider for the given identity, initially
// logged in.
func NewStaticProvider(user User, token string) *StaticProvider {
	return &StaticProvider{
		user:     user,
		token:    token,
		loggedIn: true,
		subs:     make(map[int]func(Snapshot)),
	}
}

// Snapshot implements Provider.
func (p *StaticProvider) Snapshot() Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.snapshotLocked()
}

func (p *StaticProvider) snapshotLocked() Snapshot {
	snap := Snapshot{
		IsAuthenticated: p.loggedIn,
		Login:           p.login,
		Logout:          p.logout,
	}
	if p.loggedIn {
		snap.User = p.user
		snap.Token = p.token
	}
	return snap
}

// Subscribe implements Provider.
func (p *StaticProvider) Subscribe(fn func(Snapshot)) (cancel func()) {
	p.mu.Lock()
	id := p.nextSubID
	p.nextSubID++
	p.subs[id] = fn
	p.mu.Unlock()

	return func() {
		p.mu.Lock()
		delete(p.subs, id)
		p.mu.Unlock()
	}
}

func (p *StaticProvider) login(context.Context) error {
	p.setLoggedIn(true)
	return nil
}

func (p *StaticProvider) logout(context.Context) error {
	p.setLoggedIn(false)
	return nil
}

func (p *StaticProvider) setLoggedIn(loggedIn bool) {
	p.mu.Lock()
	if p.loggedIn == loggedIn {
		p.mu.Unlock()
		return
	}
	p.loggedIn = loggedIn
	snap := p.snapshotLocked()
	subs := make([]func(Snapshot), 0, len(p.subs))
	for _, fn := range p.subs {
		subs = append(subs, fn)
	}
	p.mu.Unlock()

	for _, fn := range subs {
		fn(snap)
	}
}
