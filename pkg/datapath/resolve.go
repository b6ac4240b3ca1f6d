package datapath

import (
	"fmt"
	"reflect"
)

// Resolve evaluates p against root. A path that does not exist yields
// (nil, false); it is never an error. A wildcard path resolves to the value
// at its prefix.
func Resolve(root any, p Path) (any, bool) {
	cur := root
	for _, seg := range p.segs {
		next, ok := Step(cur, seg)
		if !ok {
			return nil, false
		}
		cur = next
	}
	return cur, true
}

// Get parses expr and resolves it against root.
func Get(root any, expr string) (any, bool) {
	p, err := Parse(expr)
	if err != nil {
		return nil, false
	}
	return Resolve(root, p)
}

// Step resolves a single segment against a container.
func Step(container any, seg Segment) (any, bool) {
	switch c := container.(type) {
	case map[string]any:
		v, ok := c[seg.mapKey()]
		return v, ok
	case []any:
		if !seg.IsIndex || seg.Index >= len(c) {
			return nil, false
		}
		return c[seg.Index], true
	case nil:
		return nil, false
	}
	return stepReflect(container, seg)
}

// stepReflect handles typed maps and slices supplied by hosts that do not
// normalise to map[string]any / []any.
func stepReflect(container any, seg Segment) (any, bool) {
	rv, ok := deref(container)
	if !ok {
		return nil, false
	}
	switch rv.Kind() {
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil, false
		}
		v := rv.MapIndex(reflect.ValueOf(seg.mapKey()).Convert(rv.Type().Key()))
		if !v.IsValid() {
			return nil, false
		}
		return v.Interface(), true
	case reflect.Slice, reflect.Array:
		if !seg.IsIndex || seg.Index >= rv.Len() {
			return nil, false
		}
		return rv.Index(seg.Index).Interface(), true
	}
	return nil, false
}

// Write stores v at p inside root, creating missing intermediate containers:
// a map for a key segment, a slice for an index segment. Slices grow with nil
// padding. Writing through a scalar replaces it with a container. Siblings of
// the written location are left untouched.
func Write(root map[string]any, p Path, v any) error {
	if p.wildcard {
		return fmt.Errorf("%w: %s", ErrWildcardWrite, p)
	}
	if len(p.segs) == 0 {
		return fmt.Errorf("%w: cannot replace the root", ErrEmptyPath)
	}
	if root == nil {
		return fmt.Errorf("%w: nil root", ErrInvalidPath)
	}
	first := p.segs[0]
	root[first.mapKey()] = setIn(root[first.mapKey()], p.segs[1:], v)
	return nil
}

// Set parses expr and writes v at it.
func Set(root map[string]any, expr string, v any) error {
	p, err := Parse(expr)
	if err != nil {
		return err
	}
	return Write(root, p, v)
}

// setIn writes v below cur. Typed containers are converted to
// map[string]any or []any first so their other elements survive.
func setIn(cur any, segs []Segment, v any) any {
	if len(segs) == 0 {
		return v
	}
	seg := segs[0]
	if m, ok := AsMap(cur); ok {
		m[seg.mapKey()] = setIn(m[seg.mapKey()], segs[1:], v)
		return m
	}
	if !seg.IsIndex {
		return map[string]any{seg.Key: setIn(nil, segs[1:], v)}
	}
	s, _ := AsList(cur)
	for len(s) <= seg.Index {
		s = append(s, nil)
	}
	s[seg.Index] = setIn(s[seg.Index], segs[1:], v)
	return s
}
