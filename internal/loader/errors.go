package loader

import (
	"errors"
	"fmt"
)

// Sentinel errors for loader misuse.
var (
	// ErrLoadInFlight is returned when Activate is called for a module
	// whose load is still running. Callers are expected to serialize
	// swaps; this error is the backstop, not a queueing mechanism.
	ErrLoadInFlight = errors.New("module load already in flight")

	// ErrAlreadyActive is returned when Activate is called for a module
	// that is currently mounted.
	ErrAlreadyActive = errors.New("module already active")
)

// Phase identifies which lifecycle function a module failed in.
type Phase string

const (
	PhaseLoad       Phase = "load"
	PhaseInit       Phase = "init"
	PhaseActivate   Phase = "activate"
	PhaseDeactivate Phase = "deactivate"
	PhaseShutdown   Phase = "shutdown"
)

// LoadError wraps a network or import failure for a module's code. It is
// recoverable: the module returns to the unloaded state and a retry
// re-attempts the full load.
type LoadError struct {
	ModuleID string
	Entry    string
	Err      error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("failed to load module %s from %s: %v", e.ModuleID, e.Entry, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// LifecycleError wraps an error (or recovered panic) thrown by a module's
// own lifecycle function.
type LifecycleError struct {
	ModuleID string
	Phase    Phase
	Err      error
}

func (e *LifecycleError) Error() string {
	return fmt.Sprintf("module %s failed in %s: %v", e.ModuleID, e.Phase, e.Err)
}

func (e *LifecycleError) Unwrap() error { return e.Err }
