package derive

import (
	"context"
	"time"
)

// PassInfo describes a settle pass that is about to run.
type PassInfo struct {
	// Component is the definition name.
	Component string

	// Batch is the component-local sequence number of the pass.
	Batch uint64

	// Initial is true for the first pass run by Attached.
	Initial bool

	// Touched are the paths directly assigned by the batch.
	Touched []string
}

// Report summarises a completed settle pass.
type Report struct {
	PassInfo

	// Evaluated lists computed properties evaluated, in evaluation order.
	// A property evaluated twice in one pass appears twice.
	Evaluated []string

	// Written lists computed properties whose new value was written.
	Written []string

	// Fired lists watch keys whose callback ran, in declaration order.
	Fired []string

	// Errors holds every failure of the pass: cycles, computed failures,
	// recompute limits and watch callback errors. All are *EntryError.
	Errors []error

	// Duration is the wall time of the pass.
	Duration time.Duration
}

// Observer is notified around settle passes. BeginSettle is called before
// the pass and returns a function called with the finished report, or nil.
type Observer interface {
	BeginSettle(ctx context.Context, info PassInfo) func(*Report)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(ctx context.Context, info PassInfo) func(*Report)

// BeginSettle calls f.
func (f ObserverFunc) BeginSettle(ctx context.Context, info PassInfo) func(*Report) {
	return f(ctx, info)
}
