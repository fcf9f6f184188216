// Package loader owns the lifecycle of micro-frontend modules: fetching
// their code, running init exactly once, and mounting/unmounting them
// against a capability bundle.
//
// Each module moves through a small state machine:
//
//	unloaded -> loading -> loaded -> active -> loaded -> active -> ...
//
// Loaded module code and the initialized flag persist for the life of
// the process; only the mount comes and goes. A failed load returns the
// module to unloaded so a later activation retries from scratch.
package loader

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/mfeshell/internal/logging"
	"github.com/fyrsmithlabs/mfeshell/internal/manifest"
	"github.com/fyrsmithlabs/mfeshell/internal/module"
	"github.com/fyrsmithlabs/mfeshell/internal/routes"
	"github.com/fyrsmithlabs/mfeshell/internal/styles"
)

// State is the lifecycle state of a single module.
type State string

const (
	StateUnloaded State = "unloaded"
	StateLoading  State = "loading"
	StateLoaded   State = "loaded"
	StateActive   State = "active"
)

// MountRecord tracks one live activation. It exists from a successful
// activate until the matching deactivate completes.
type MountRecord struct {
	ID        string
	ModuleID  string
	Caps      *module.Capabilities
	MountedAt time.Time
}

// Status is a point-in-time view of one module, as reported by the
// shell's inspection API.
type Status struct {
	ModuleID    string     `json:"module_id"`
	State       State      `json:"state"`
	Initialized bool       `json:"initialized"`
	MountID     string     `json:"mount_id,omitempty"`
	MountedAt   *time.Time `json:"mounted_at,omitempty"`
}

type handle struct {
	mod         module.Module
	initialized bool
}

// Loader loads module code via a Resolver and drives the per-module
// lifecycle. The mutex guards bookkeeping only; lifecycle functions run
// outside it since modules are free to block.
type Loader struct {
	mu      sync.Mutex
	handles map[string]*handle
	states  map[string]State
	mounts  map[string]*MountRecord
	idleAt  map[string]time.Time
	maxIdle time.Duration
	timeNow func() time.Time

	resolver Resolver
	styles   *styles.Manager
	routes   *routes.Registry
	logger   *logging.Logger
	metrics  *Metrics
	tracer   trace.Tracer
}

// New creates a Loader. The styles manager and route registry receive
// the unconditional cleanup calls the lifecycle contract requires.
func New(resolver Resolver, stylesMgr *styles.Manager, routeReg *routes.Registry, logger *logging.Logger) *Loader {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Loader{
		handles:  make(map[string]*handle),
		states:   make(map[string]State),
		mounts:   make(map[string]*MountRecord),
		idleAt:   make(map[string]time.Time),
		timeNow:  time.Now,
		resolver: resolver,
		styles:   stylesMgr,
		routes:   routeReg,
		logger:   logger.Named("loader"),
		metrics:  NewMetrics(),
		tracer:   otel.Tracer("mfeshell/loader"),
	}
}

// SetMaxIdle bounds how long a deactivated module keeps its loaded code.
// Zero, the default, retains handles for the life of the process. Evicted
// modules reload and re-init on their next activation.
func (l *Loader) SetMaxIdle(d time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.maxIdle = d
}

// State reports the lifecycle state of a module. Unknown modules are
// unloaded.
func (l *Loader) State(moduleID string) State {
	l.mu.Lock()
	defer l.mu.Unlock()
	if s, ok := l.states[moduleID]; ok {
		return s
	}
	return StateUnloaded
}

// Mount returns the live mount record for a module, if any.
func (l *Loader) Mount(moduleID string) (*MountRecord, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	rec, ok := l.mounts[moduleID]
	return rec, ok
}

// Statuses returns the state of every module the loader has touched.
func (l *Loader) Statuses() []Status {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]Status, 0, len(l.states))
	for id, state := range l.states {
		st := Status{ModuleID: id, State: state}
		if h, ok := l.handles[id]; ok {
			st.Initialized = h.initialized
		}
		if rec, ok := l.mounts[id]; ok {
			st.MountID = rec.ID
			mountedAt := rec.MountedAt
			st.MountedAt = &mountedAt
		}
		out = append(out, st)
	}
	return out
}

// Activate brings a module to the active state: stylesheet attachment,
// code load and one-time init on first activation, then the module's
// activate function. On success a MountRecord is created. On failure the
// module ends in a consistent fallback state: unloaded after a load or
// init failure, loaded after an activate failure, with the stylesheet
// removed and no dynamic routes registered either way.
//
// Callers must serialize swaps; concurrent activation of the same module
// returns ErrLoadInFlight or ErrAlreadyActive rather than queueing.
func (l *Loader) Activate(ctx context.Context, reg *manifest.Registration, caps *module.Capabilities) error {
	ctx = logging.WithModuleID(ctx, reg.ID)
	ctx, span := l.tracer.Start(ctx, "module.activate",
		trace.WithAttributes(attribute.String("module.id", reg.ID)))
	defer span.End()

	h, err := l.ensureLoaded(ctx, reg, caps)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	if err := l.mount(ctx, reg, h, caps); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

// ensureLoaded moves the module to the loaded state, fetching and
// initializing it on the first activation. On reactivation it only
// re-attaches the stylesheet, which a prior deactivation removed.
func (l *Loader) ensureLoaded(ctx context.Context, reg *manifest.Registration, caps *module.Capabilities) (*handle, error) {
	l.mu.Lock()
	switch l.states[reg.ID] {
	case StateLoading:
		l.mu.Unlock()
		return nil, fmt.Errorf("module %s: %w", reg.ID, ErrLoadInFlight)
	case StateActive:
		l.mu.Unlock()
		return nil, fmt.Errorf("module %s: %w", reg.ID, ErrAlreadyActive)
	}
	if h, ok := l.handles[reg.ID]; ok {
		if l.maxIdle > 0 {
			if idle, seen := l.idleAt[reg.ID]; seen && l.timeNow().Sub(idle) > l.maxIdle {
				delete(l.handles, reg.ID)
				delete(l.idleAt, reg.ID)
				l.states[reg.ID] = StateUnloaded
				h = nil
			}
		}
		if h != nil {
			l.mu.Unlock()
			// Code survives deactivation; only the stylesheet needs to
			// come back.
			if err := l.styles.Ensure(ctx, reg.ID, reg.Entry, reg.StyleURL); err != nil {
				l.logger.Warn(ctx, "stylesheet re-attach failed", zap.Error(err))
			}
			return h, nil
		}
	}
	l.states[reg.ID] = StateLoading
	l.mu.Unlock()

	start := time.Now()
	if err := l.styles.Ensure(ctx, reg.ID, reg.Entry, reg.StyleURL); err != nil {
		// Missing styles never block a module; real fetch errors are logged
		// by the manager. Nothing fatal reaches this path.
		l.logger.Warn(ctx, "stylesheet attach failed", zap.Error(err))
	}

	loadCtx, loadSpan := l.tracer.Start(ctx, "module.load")
	mod, err := l.resolver.Resolve(loadCtx, reg.Entry)
	loadSpan.End()
	if err != nil {
		l.rollbackToUnloaded(ctx, reg.ID)
		l.metrics.RecordFailure(reg.ID, PhaseLoad)
		return nil, &LoadError{ModuleID: reg.ID, Entry: reg.Entry, Err: err}
	}

	h := &handle{mod: mod}

	initCtx, initSpan := l.tracer.Start(ctx, "module.init")
	err = safeCall(func() error { return mod.Init(initCtx, caps) })
	initSpan.End()
	if err != nil {
		l.rollbackToUnloaded(ctx, reg.ID)
		l.metrics.RecordFailure(reg.ID, PhaseInit)
		return nil, &LifecycleError{ModuleID: reg.ID, Phase: PhaseInit, Err: err}
	}
	h.initialized = true

	l.mu.Lock()
	l.handles[reg.ID] = h
	l.states[reg.ID] = StateLoaded
	l.mu.Unlock()

	l.metrics.ObserveLoad(time.Since(start))
	l.logger.Info(ctx, "module loaded",
		zap.String("entry", reg.Entry),
		zap.Duration("duration", time.Since(start)),
	)
	return h, nil
}

// mount runs the module's activate function and records the mount.
func (l *Loader) mount(ctx context.Context, reg *manifest.Registration, h *handle, caps *module.Capabilities) error {
	err := safeCall(func() error { return h.mod.Activate(ctx, caps) })
	if err != nil {
		// The module stays loaded, but nothing of the failed activation
		// may remain visible.
		l.routes.Unregister(reg.ID)
		l.styles.Remove(reg.ID)
		l.mu.Lock()
		l.states[reg.ID] = StateLoaded
		l.mu.Unlock()
		l.metrics.RecordFailure(reg.ID, PhaseActivate)
		return &LifecycleError{ModuleID: reg.ID, Phase: PhaseActivate, Err: err}
	}

	rec := &MountRecord{
		ID:        uuid.NewString(),
		ModuleID:  reg.ID,
		Caps:      caps,
		MountedAt: time.Now(),
	}
	l.mu.Lock()
	l.mounts[reg.ID] = rec
	l.states[reg.ID] = StateActive
	active := len(l.mounts)
	l.mu.Unlock()

	l.metrics.RecordActivation(reg.ID)
	l.metrics.SetActive(active)
	l.logger.Info(ctx, "module activated", zap.String("mount_id", rec.ID))
	return nil
}

// Deactivate unmounts a module. The module's own deactivate errors are
// reported but never block teardown: dynamic routes are unregistered,
// the mount record dropped, and the stylesheet removed unconditionally.
// Deactivating a module that is not active is a no-op.
func (l *Loader) Deactivate(ctx context.Context, moduleID string) {
	ctx = logging.WithModuleID(ctx, moduleID)
	ctx, span := l.tracer.Start(ctx, "module.deactivate",
		trace.WithAttributes(attribute.String("module.id", moduleID)))
	defer span.End()

	l.mu.Lock()
	rec, mounted := l.mounts[moduleID]
	h := l.handles[moduleID]
	l.mu.Unlock()
	if !mounted {
		return
	}

	// Routes first, so nothing resolves to a module that is going away.
	l.routes.Unregister(moduleID)

	if err := safeCall(func() error { return h.mod.Deactivate(ctx, rec.Caps) }); err != nil {
		l.metrics.RecordFailure(moduleID, PhaseDeactivate)
		l.logger.Error(ctx, "module deactivate failed",
			zap.String("mount_id", rec.ID),
			zap.Error(err),
		)
	}

	l.mu.Lock()
	delete(l.mounts, moduleID)
	l.states[moduleID] = StateLoaded
	l.idleAt[moduleID] = l.timeNow()
	active := len(l.mounts)
	l.mu.Unlock()

	l.styles.Remove(moduleID)
	l.metrics.RecordDeactivation(moduleID)
	l.metrics.SetActive(active)
	l.logger.Info(ctx, "module deactivated", zap.String("mount_id", rec.ID))
}

// DeactivateAll unmounts every active module. Used at shell teardown.
func (l *Loader) DeactivateAll(ctx context.Context) {
	l.mu.Lock()
	ids := make([]string, 0, len(l.mounts))
	for id := range l.mounts {
		ids = append(ids, id)
	}
	l.mu.Unlock()

	for _, id := range ids {
		l.Deactivate(ctx, id)
	}
}

// Shutdown deactivates everything and gives loaded modules that opt in
// a final teardown hook.
func (l *Loader) Shutdown(ctx context.Context) {
	l.DeactivateAll(ctx)

	l.mu.Lock()
	type loaded struct {
		id  string
		mod module.Module
	}
	all := make([]loaded, 0, len(l.handles))
	for id, h := range l.handles {
		all = append(all, loaded{id: id, mod: h.mod})
	}
	l.mu.Unlock()

	for _, m := range all {
		fin, ok := m.mod.(module.Finalizer)
		if !ok {
			continue
		}
		if err := safeCall(func() error { return fin.Shutdown(ctx) }); err != nil {
			l.metrics.RecordFailure(m.id, PhaseShutdown)
			l.logger.Error(ctx, "module shutdown failed",
				zap.String("module", m.id),
				zap.Error(err),
			)
		}
	}
}

// rollbackToUnloaded undoes a failed load attempt so a retry starts
// from scratch.
func (l *Loader) rollbackToUnloaded(ctx context.Context, moduleID string) {
	l.mu.Lock()
	delete(l.handles, moduleID)
	l.states[moduleID] = StateUnloaded
	l.mu.Unlock()
	l.styles.Remove(moduleID)
	l.logger.Warn(ctx, "module load rolled back")
}

// safeCall invokes fn, converting a panic into an error so one module
// cannot take the shell down.
func safeCall(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn()
}
