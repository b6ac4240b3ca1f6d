package track

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/vango-dev/derive/pkg/datapath"
)

// View is a read-observing facade over one location of component data.
//
// Every navigation (Get, At, Path) records the concrete child path before
// the child is returned, so deep reads are attributed to their exact
// sub-path. Operations that depend on the shape of a container (Len, Keys,
// and the slice helpers) record the container as a wildcard, since any
// change below it can change their result.
//
// A View for a missing location is still usable: its accessors return zero
// values and Exists reports false.
type View struct {
	rec   *Recorder
	path  datapath.Path
	value any
	ok    bool
}

// Wrap returns a root view over data that records into rec.
func Wrap(data map[string]any, rec *Recorder) *View {
	return &View{rec: rec, value: data, ok: data != nil}
}

// Location returns the path this view stands for.
func (v *View) Location() datapath.Path {
	return v.path
}

// Exists reports whether the location holds a value (possibly nil).
func (v *View) Exists() bool {
	return v.ok
}

// IsNil reports whether the location is missing or holds nil.
func (v *View) IsNil() bool {
	return !v.ok || v.value == nil
}

func (v *View) child(seg datapath.Segment) *View {
	var p datapath.Path
	if seg.IsIndex {
		p = v.path.At(seg.Index)
	} else {
		p = v.path.Child(seg.Key)
	}
	v.rec.Record(p)
	val, ok := datapath.Step(v.value, seg)
	return &View{rec: v.rec, path: p, value: val, ok: ok}
}

// Get returns the view of a map key.
func (v *View) Get(key string) *View {
	return v.child(datapath.KeySegment(key))
}

// At returns the view of a slice element.
func (v *View) At(i int) *View {
	if i < 0 {
		p := v.path.At(0)
		return &View{rec: v.rec, path: p}
	}
	return v.child(datapath.IndexSegment(i))
}

// Path navigates a relative path expression such as "a.d" or "b[0]",
// recording every step. An unparsable expression yields a missing view.
func (v *View) Path(expr string) *View {
	p, err := datapath.Parse(expr)
	if err != nil || p.Wildcard() {
		return &View{rec: v.rec, path: v.path}
	}
	cur := v
	for _, seg := range p.Segments() {
		cur = cur.child(seg)
	}
	return cur
}

// Value returns the underlying value. For containers the value is live data
// shared with the component, so the container is recorded as a wildcard
// dependency: any later change beneath it must be seen by whoever holds it.
// Callers must not mutate the returned containers.
func (v *View) Value() any {
	if datapath.IsContainer(v.value) {
		v.rec.Record(v.path.AsWildcard())
	}
	return v.value
}

// Float returns the value as float64, or 0 when it is not a number.
func (v *View) Float() float64 {
	f, _ := datapath.ToFloat(v.value)
	return f
}

// Int returns the value truncated to int, or 0 when it is not a number.
func (v *View) Int() int {
	return int(v.Float())
}

// String returns a string value as-is and formats scalars; containers and
// missing values yield "".
func (v *View) String() string {
	switch t := v.value.(type) {
	case string:
		return t
	case nil:
		return ""
	case bool:
		return strconv.FormatBool(t)
	}
	if f, ok := datapath.ToFloat(v.value); ok {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	if datapath.IsContainer(v.value) {
		return ""
	}
	return fmt.Sprint(v.value)
}

// Bool returns a bool value, or false for anything else.
func (v *View) Bool() bool {
	b, _ := v.value.(bool)
	return b
}

// Truthy applies loose truthiness: missing, nil, false, 0, NaN and "" are
// false; everything else, including empty containers, is true.
func (v *View) Truthy() bool {
	if !v.ok {
		return false
	}
	switch t := v.value.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	}
	if f, ok := datapath.ToFloat(v.value); ok {
		return f != 0 && f == f
	}
	return true
}

// Len returns the number of elements of a slice or keys of a map.
func (v *View) Len() int {
	v.recordShape()
	n, _ := datapath.Len(v.value)
	return n
}

// Keys returns the sorted keys of a map.
func (v *View) Keys() []string {
	v.recordShape()
	m, ok := datapath.AsMap(v.value)
	if !ok {
		return nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (v *View) recordShape() {
	if datapath.IsContainer(v.value) {
		v.rec.Record(v.path.AsWildcard())
	}
}
