package track

import "github.com/vango-dev/derive/pkg/datapath"

// Slice query helpers. Each one records the slice as a wildcard (its length
// is part of the answer) and routes every element access through At, so the
// element paths are recorded exactly as if the caller had indexed them.

func (v *View) length() int {
	v.recordShape()
	if _, ok := datapath.AsMap(v.value); ok {
		return 0
	}
	n, _ := datapath.Len(v.value)
	return n
}

// Items returns a tracked view of every element.
func (v *View) Items() []*View {
	n := v.length()
	out := make([]*View, n)
	for i := range n {
		out[i] = v.At(i)
	}
	return out
}

// ForEach calls fn for every element in order.
func (v *View) ForEach(fn func(i int, item *View)) {
	n := v.length()
	for i := range n {
		fn(i, v.At(i))
	}
}

// Filter returns the elements for which keep reports true.
func (v *View) Filter(keep func(i int, item *View) bool) []*View {
	n := v.length()
	var out []*View
	for i := range n {
		item := v.At(i)
		if keep(i, item) {
			out = append(out, item)
		}
	}
	return out
}

// Map returns fn applied to every element. Views returned by fn are
// unwrapped when the enclosing tracked function returns.
func (v *View) Map(fn func(i int, item *View) any) []any {
	n := v.length()
	out := make([]any, n)
	for i := range n {
		out[i] = fn(i, v.At(i))
	}
	return out
}

// Reduce folds the elements left to right starting from initial.
func (v *View) Reduce(fn func(acc any, i int, item *View) any, initial any) any {
	n := v.length()
	acc := initial
	for i := range n {
		acc = fn(acc, i, v.At(i))
	}
	return acc
}

// IndexOf returns the index of the first element deep-equal to x, or -1.
// Elements are read up to and including the match.
func (v *View) IndexOf(x any) int {
	n := v.length()
	for i := range n {
		if datapath.Equal(v.At(i).value, x) {
			return i
		}
	}
	return -1
}

// Includes reports whether some element is deep-equal to x.
func (v *View) Includes(x any) bool {
	return v.IndexOf(x) >= 0
}

// Find returns the first element for which match reports true, or a
// missing view.
func (v *View) Find(match func(i int, item *View) bool) *View {
	n := v.length()
	for i := range n {
		item := v.At(i)
		if match(i, item) {
			return item
		}
	}
	return &View{rec: v.rec, path: v.path}
}
