package track

import (
	"errors"
	"fmt"

	"github.com/vango-dev/derive/pkg/datapath"
)

// ErrPanic wraps a panic recovered from a tracked function.
var ErrPanic = errors.New("tracked function panicked")

// Func is a function evaluated under tracking. It reads data only through
// the View it receives.
type Func func(data *View) (any, error)

// Result is the outcome of one tracked evaluation.
type Result struct {
	// Value is what fn returned, with every View unwrapped to its value.
	Value any

	// Paths are the concrete paths read, in first-read order.
	Paths []datapath.Path

	// Err is the error returned by fn, or ErrPanic if it panicked.
	Err error
}

// Recorder collects the paths read through a View tree. Each path is kept
// once, in the order it was first read.
type Recorder struct {
	paths []datapath.Path
	seen  map[string]struct{}
}

// NewRecorder returns an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{seen: make(map[string]struct{})}
}

// Record adds p unless it is already present.
func (r *Recorder) Record(p datapath.Path) {
	if r == nil {
		return
	}
	key := p.String()
	if _, ok := r.seen[key]; ok {
		return
	}
	r.seen[key] = struct{}{}
	r.paths = append(r.paths, p)
}

// Paths returns a copy of the recorded paths.
func (r *Recorder) Paths() []datapath.Path {
	if r == nil {
		return nil
	}
	return append([]datapath.Path(nil), r.paths...)
}

// Len returns the number of distinct recorded paths.
func (r *Recorder) Len() int {
	if r == nil {
		return 0
	}
	return len(r.paths)
}

// Track runs fn against a read-observing view of data and returns its result
// together with every path it read. A panic in fn is recovered and reported
// as ErrPanic; the paths read before the panic are still returned.
func Track(data map[string]any, fn Func) (res Result) {
	rec := NewRecorder()
	root := Wrap(data, rec)

	defer func() {
		if r := recover(); r != nil {
			res = Result{
				Paths: rec.Paths(),
				Err:   fmt.Errorf("%w: %v", ErrPanic, r),
			}
		}
	}()

	v, err := fn(root)
	if err != nil {
		return Result{Paths: rec.Paths(), Err: err}
	}
	value := unwrap(v)
	return Result{Value: value, Paths: rec.Paths()}
}

// unwrap replaces Views anywhere inside v by their underlying values. A View
// that is returned as-is is a pass-through of live data, so its container
// path is recorded as a wildcard dependency by Value.
func unwrap(v any) any {
	switch t := v.(type) {
	case *View:
		return t.Value()
	case []*View:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = e.Value()
		}
		return out
	case map[string]any:
		for k, e := range t {
			t[k] = unwrap(e)
		}
		return t
	case []any:
		for i, e := range t {
			t[i] = unwrap(e)
		}
		return t
	}
	return v
}
