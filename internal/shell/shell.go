// Package shell is the orchestration core: it resolves navigation paths
// against the manifest, swaps the active module through the loader, and
// assembles the capability bundle each module receives.
//
// Navigation is reentrant without cancellation. A navigation that arrives
// while a swap is in flight is queued; only the latest queued path is
// kept, and the swap loop drains it after the current swap settles. A
// slow module can therefore never wedge the shell, and rapid path changes
// converge on the last one requested.
package shell

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/mfeshell/internal/auth"
	"github.com/fyrsmithlabs/mfeshell/internal/eventbus"
	"github.com/fyrsmithlabs/mfeshell/internal/loader"
	"github.com/fyrsmithlabs/mfeshell/internal/logging"
	"github.com/fyrsmithlabs/mfeshell/internal/manifest"
	"github.com/fyrsmithlabs/mfeshell/internal/module"
	"github.com/fyrsmithlabs/mfeshell/internal/routes"
	"github.com/fyrsmithlabs/mfeshell/internal/sharedstate"
	"github.com/fyrsmithlabs/mfeshell/internal/statecache"
)

// Options configures the shell controller.
type Options struct {
	// ContainerID names the root mount point handed to modules.
	ContainerID string

	// Theme is the initial theme.
	Theme string

	// FeatureFlags gates manifest registrations carrying a feature_flag.
	FeatureFlags map[string]bool
}

// Controller drives the single-active-module lifecycle. All navigation
// funnels through Navigate; the mutex guards the reentrancy bookkeeping
// only, never a lifecycle call.
type Controller struct {
	mu          sync.Mutex
	currentPath string
	activeID    string
	inFlight    bool
	hasPending  bool

	manifests *manifest.Store
	loader    *loader.Loader
	routes    *routes.Registry
	bus       *eventbus.Bus
	auth      auth.Provider
	cache     *statecache.Store
	shared    *sharedstate.Store
	container module.Container
	flags     map[string]bool

	logger     *logging.Logger
	tracer     trace.Tracer
	cancelAuth func()
}

// New wires a controller. The auth provider's changes are mirrored onto
// the bus as auth:changed and into the shared user cell.
func New(
	manifests *manifest.Store,
	ldr *loader.Loader,
	routeReg *routes.Registry,
	bus *eventbus.Bus,
	authProvider auth.Provider,
	cache *statecache.Store,
	shared *sharedstate.Store,
	logger *logging.Logger,
	opts Options,
) *Controller {
	if logger == nil {
		logger = logging.NewNop()
	}
	if opts.ContainerID == "" {
		opts.ContainerID = "shell-root"
	}
	c := &Controller{
		manifests: manifests,
		loader:    ldr,
		routes:    routeReg,
		bus:       bus,
		auth:      authProvider,
		cache:     cache,
		shared:    shared,
		container: module.NewContainer(opts.ContainerID),
		flags:     opts.FeatureFlags,
		logger:    logger.Named("shell"),
		tracer:    otel.Tracer("mfeshell/shell"),
	}
	if opts.Theme != "" {
		shared.Theme.Set(opts.Theme)
	}
	c.cancelAuth = authProvider.Subscribe(func(snap auth.Snapshot) {
		shared.User.Set(snap.User)
		bus.Emit(eventbus.EventAuthChanged, snap)
	})
	return c
}

// Navigate moves the shell to path, deactivating the currently active
// module and activating whichever manifest registration matches. If a
// swap is already in flight the request is queued (latest path wins) and
// Navigate returns immediately; the in-flight call finishes the work.
//
// The returned error reports the outcome of swaps this call performed
// itself. Load failures leave the shell with no active module; the
// failing module is retried on the next navigation that resolves to it.
func (c *Controller) Navigate(ctx context.Context, path string) error {
	c.mu.Lock()
	c.currentPath = path
	if c.inFlight {
		c.hasPending = true
		c.mu.Unlock()
		c.logger.Debug(ctx, "navigation queued behind in-flight swap", zap.String("path", path))
		return nil
	}
	c.inFlight = true
	c.mu.Unlock()

	return c.swapLoop(ctx)
}

// swapLoop performs swaps until no navigation arrived while one was in
// flight. Exactly one goroutine runs it at a time.
func (c *Controller) swapLoop(ctx context.Context) error {
	var lastErr error
	for {
		c.mu.Lock()
		path := c.currentPath
		c.hasPending = false
		c.mu.Unlock()

		if err := c.swapTo(ctx, path); err != nil {
			lastErr = err
		} else {
			c.bus.Emit(eventbus.EventNavigationChanged, path)
		}

		c.mu.Lock()
		if !c.hasPending {
			c.inFlight = false
			c.mu.Unlock()
			return lastErr
		}
		c.mu.Unlock()
	}
}

// swapTo deactivates the active module if path resolves elsewhere, then
// activates the matching registration. A path that resolves to the
// already-active module is a no-op on the lifecycle.
func (c *Controller) swapTo(ctx context.Context, path string) error {
	ctx = logging.WithPath(ctx, path)
	ctx, span := c.tracer.Start(ctx, "shell.swap",
		trace.WithAttributes(attribute.String("nav.path", path)))
	defer span.End()

	target := c.resolve(ctx, path)

	c.mu.Lock()
	active := c.activeID
	c.mu.Unlock()

	if target != nil && target.ID == active {
		// Same module, new path. The module observes the path change
		// through its navigation capability and the bus event.
		return nil
	}

	if active != "" {
		c.loader.Deactivate(ctx, active)
		c.mu.Lock()
		c.activeID = ""
		c.mu.Unlock()
	}

	if target == nil {
		c.logger.Info(ctx, "no module matches path")
		return nil
	}

	// The deactivation above may have taken a while; if a newer
	// navigation superseded this one, leave the activation to the next
	// loop iteration instead of mounting a stale module.
	c.mu.Lock()
	stale := c.hasPending || c.currentPath != path
	c.mu.Unlock()
	if stale {
		c.logger.Debug(ctx, "swap superseded before activation", zap.String("module", target.ID))
		return nil
	}

	if err := c.loader.Activate(ctx, target, c.capabilities(target)); err != nil {
		c.logger.Error(ctx, "module activation failed",
			zap.String("module", target.ID),
			zap.Error(err),
		)
		return err
	}

	c.mu.Lock()
	c.activeID = target.ID
	c.mu.Unlock()
	return nil
}

// resolve picks the manifest registration for path, honoring feature
// flags and the current user's permissions. Nil means nothing matches.
func (c *Controller) resolve(ctx context.Context, path string) *manifest.Registration {
	m := c.manifests.Current()
	if m == nil {
		return nil
	}
	target, ok := m.Resolve(path, c.flags)
	if !ok {
		return nil
	}
	if len(target.Permissions) > 0 {
		snap := c.auth.Snapshot()
		if !snap.User.HasAll(target.Permissions) {
			c.logger.Warn(ctx, "module denied by permissions",
				zap.String("module", target.ID),
				zap.String("user", snap.User.ID),
			)
			return nil
		}
	}
	return target
}

// capabilities assembles a fresh bundle for one activation.
func (c *Controller) capabilities(reg *manifest.Registration) *module.Capabilities {
	return &module.Capabilities{
		Container: c.container,
		BasePath:  reg.Route,
		Auth:      c.auth.Snapshot(),
		Bus:       c.bus,
		Navigate: func(path string) {
			// Runs on the module's goroutine; queuing inside Navigate
			// keeps this safe even mid-activation.
			if err := c.Navigate(context.Background(), path); err != nil {
				c.logger.Error(context.Background(), "module-initiated navigation failed",
					zap.String("path", path), zap.Error(err))
			}
		},
		Theme:      c.shared.Theme.Get(),
		Navigation: &navAPI{controller: c, moduleID: reg.ID},
		Cache:      c.cache.Namespace(reg.ID),
		Shared:     c.shared,
	}
}

// CurrentPath returns the most recently requested navigation path, which
// may be ahead of the active module while a swap is in flight.
func (c *Controller) CurrentPath() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentPath
}

// ActiveModule returns the id of the mounted module, if any.
func (c *Controller) ActiveModule() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.activeID, c.activeID != ""
}

// Routes returns the merged static and dynamic routes for moduleID,
// filtered to what the current user may see. Dynamic routes override
// static ones on path collisions.
func (c *Controller) Routes(moduleID string) []routes.Entry {
	var static []routes.Entry
	if m := c.manifests.Current(); m != nil {
		if reg, ok := m.Get(moduleID); ok {
			static = reg.StaticRoutes()
		}
	}
	merged := c.routes.Merged(moduleID, static)
	return routes.FilterByPermissions(merged, c.auth.Snapshot().User)
}

// ModuleStatuses reports loader state for the inspection API.
func (c *Controller) ModuleStatuses() []loader.Status {
	return c.loader.Statuses()
}

// Refresh re-resolves the current path. Called after a manifest reload so
// the active module reflects the new registry.
func (c *Controller) Refresh(ctx context.Context) error {
	return c.Navigate(ctx, c.CurrentPath())
}

// Shutdown deactivates everything and stops mirroring auth changes.
func (c *Controller) Shutdown(ctx context.Context) {
	if c.cancelAuth != nil {
		c.cancelAuth()
	}
	c.loader.Shutdown(ctx)
	c.mu.Lock()
	c.activeID = ""
	c.mu.Unlock()
	c.logger.Info(ctx, "shell shut down")
}

// navAPI is the per-module navigation capability.
type navAPI struct {
	controller *Controller
	moduleID   string
}

func (n *navAPI) RegisterRoutes(entries []routes.Entry) {
	n.controller.routes.Register(n.moduleID, entries)
}

func (n *navAPI) UnregisterRoutes() {
	n.controller.routes.Unregister(n.moduleID)
}

func (n *navAPI) CurrentPath() string {
	return n.controller.CurrentPath()
}
