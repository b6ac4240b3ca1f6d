package derive

import (
	"errors"
	"fmt"
)

// ErrCycle is reported for a computed property that depends on itself,
// directly or through other computed properties, or that depends on one
// that does. The entry keeps its previous value for the pass.
var ErrCycle = errors.New("derive: computed dependency cycle")

// ErrComputeFailed is reported when a computed function returns an error or
// panics. The entry keeps its previous value; other entries are unaffected.
var ErrComputeFailed = errors.New("derive: computed function failed")

// ErrRecomputeLimit is reported when one computed property is re-evaluated
// more than the configured number of times in a single settle pass. This
// catches cycles that only appear for particular data values.
var ErrRecomputeLimit = errors.New("derive: computed recompute limit exceeded")

// ErrBatchLimit is returned when watch callbacks keep queueing new batches
// beyond the configured bound within one SetData call.
var ErrBatchLimit = errors.New("derive: batch limit exceeded")

// ErrDetached is returned by SetData after the component was detached.
var ErrDetached = errors.New("derive: component detached")

// ErrInvalidDefinition is returned by New for malformed definitions.
var ErrInvalidDefinition = errors.New("derive: invalid definition")

// EntryError attributes a failure to one computed property or watcher.
type EntryError struct {
	// Name is the computed property path or the watch key.
	Name string

	// Err is the underlying failure; it wraps one of the sentinel errors
	// for computed entries.
	Err error
}

// Error implements the error interface.
func (e *EntryError) Error() string {
	return fmt.Sprintf("%s: %v", e.Name, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *EntryError) Unwrap() error {
	return e.Err
}

func entryError(name string, sentinel error, cause error) *EntryError {
	if cause == nil {
		return &EntryError{Name: name, Err: sentinel}
	}
	return &EntryError{Name: name, Err: fmt.Errorf("%w: %w", sentinel, cause)}
}
