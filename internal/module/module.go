// Package module defines the contract every loadable micro-frontend module
// must satisfy, and the capability bundle the shell supplies at activation.
//
// The shell treats modules as opaque, untrusted black boxes: whatever
// renders inside the container is the module's business. The only
// requirements are the lifecycle functions below.
package module

import (
	"context"

	"github.com/fyrsmithlabs/mfeshell/internal/auth"
	"github.com/fyrsmithlabs/mfeshell/internal/eventbus"
	"github.com/fyrsmithlabs/mfeshell/internal/routes"
	"github.com/fyrsmithlabs/mfeshell/internal/sharedstate"
	"github.com/fyrsmithlabs/mfeshell/internal/statecache"
)

// Module is the lifecycle contract.
//
// Init runs at most once per process lifetime, on first load. Activate and
// Deactivate form the repeatable mount/unmount pair and may run many times
// after a single Init. All three receive the capability bundle assembled
// for the current activation.
type Module interface {
	Init(ctx context.Context, caps *Capabilities) error
	Activate(ctx context.Context, caps *Capabilities) error
	Deactivate(ctx context.Context, caps *Capabilities) error
}

// Finalizer is the optional final-teardown hook, invoked only if a module
// is ever evicted or the shell shuts down for good.
type Finalizer interface {
	Shutdown(ctx context.Context) error
}

// Container is the mount target a module renders into. The shell owns it;
// modules must treat everything outside it as off limits (the shell does
// not police this, it is outside the protection envelope).
type Container interface {
	ID() string
}

// NewContainer returns a named container handle.
func NewContainer(id string) Container {
	return container(id)
}

type container string

func (c container) ID() string { return string(c) }

// Navigation is the per-module route registration handle. The module id is
// bound in when the bundle is assembled, so a module can only touch its
// own secondary-navigation entries.
type Navigation interface {
	// RegisterRoutes replaces the module's dynamic route list.
	RegisterRoutes(entries []routes.Entry)

	// UnregisterRoutes removes the module's dynamic routes.
	UnregisterRoutes()

	// CurrentPath returns the shell's current navigation path.
	CurrentPath() string
}

// Capabilities is the bundle of host-provided services passed to a module
// at initialization and on every activation. A fresh bundle is assembled
// per activation; the auth snapshot and theme are point-in-time copies.
type Capabilities struct {
	// Container is where the module renders.
	Container Container

	// BasePath is the route prefix the module was matched under.
	BasePath string

	// Auth is the point-in-time authentication snapshot.
	Auth auth.Snapshot

	// Bus is the process-wide event bus.
	Bus *eventbus.Bus

	// Navigate asks the shell to navigate to path. Safe to call from
	// inside lifecycle functions; the request is queued behind the swap
	// in flight.
	Navigate func(path string)

	// Theme is the current theme at activation time.
	Theme string

	// Navigation registers secondary-navigation routes for this module.
	Navigation Navigation

	// Cache is the module's namespaced view of the shared state cache.
	// Contents survive this module's unmount/mount cycles.
	Cache *statecache.View

	// Shared exposes the globally visible reactive cells.
	Shared *sharedstate.Store
}

// Func adapts three functions into a Module. Used by builtin modules and
// tests.
type Func struct {
	InitFunc       func(ctx context.Context, caps *Capabilities) error
	ActivateFunc   func(ctx context.Context, caps *Capabilities) error
	DeactivateFunc func(ctx context.Context, caps *Capabilities) error
}

// Init implements Module.
func (f *Func) Init(ctx context.Context, caps *Capabilities) error {
	if f.InitFunc == nil {
		return nil
	}
	return f.InitFunc(ctx, caps)
}

// Activate implements Module.
func (f *Func) Activate(ctx context.Context, caps *Capabilities) error {
	if f.ActivateFunc == nil {
		return nil
	}
	return f.ActivateFunc(ctx, caps)
}

// Deactivate implements Module.
func (f *Func) Deactivate(ctx context.Context, caps *Capabilities) error {
	if f.DeactivateFunc == nil {
		return nil
	}
	return f.DeactivateFunc(ctx, caps)
}
