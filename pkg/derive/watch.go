package derive

import (
	"github.com/vango-dev/derive/pkg/datapath"
)

// watchEntry binds one or more paths to a callback. last holds deep copies
// of the values seen at the end of the previous pass that considered it.
type watchEntry struct {
	key   string
	paths []datapath.Path
	fn    WatchFunc
	last  []any
}

// watchRegistry holds watch entries in declaration order.
type watchRegistry struct {
	entries []*watchEntry
}

func newWatchRegistry(decls []Watcher, data map[string]any) (*watchRegistry, error) {
	r := &watchRegistry{entries: make([]*watchEntry, 0, len(decls))}
	for _, w := range decls {
		paths, err := datapath.SplitKeys(w.Keys)
		if err != nil {
			return nil, entryError(w.Keys, ErrInvalidDefinition, err)
		}
		if w.Fn == nil {
			return nil, &EntryError{Name: w.Keys, Err: ErrInvalidDefinition}
		}
		e := &watchEntry{key: w.Keys, paths: paths, fn: w.Fn}
		e.last = snapshot(e.current(data))
		r.entries = append(r.entries, e)
	}
	return r, nil
}

// affected reports whether any touched path concerns any key.
func (e *watchEntry) affected(touched []datapath.Path) bool {
	for _, t := range touched {
		if datapath.MatchesAny(t, e.paths) {
			return true
		}
	}
	return false
}

// current resolves every key against data. Wildcard keys resolve to their
// prefix; missing paths yield nil.
func (e *watchEntry) current(data map[string]any) []any {
	values := make([]any, len(e.paths))
	for i, p := range e.paths {
		values[i], _ = datapath.Resolve(data, p)
	}
	return values
}

// changed compares values against last with deep equality.
func (e *watchEntry) changed(values []any) bool {
	for i, v := range values {
		if !datapath.Equal(e.last[i], v) {
			return true
		}
	}
	return false
}

// evaluate checks every affected entry against the settled data and invokes
// the callbacks whose values changed, once each, in declaration order.
// Bookkeeping is refreshed even when nothing changed. Callback errors do not
// stop the remaining entries; they are returned in order.
func (r *watchRegistry) evaluate(c *Component, data map[string]any, touched []datapath.Path) (fired []string, errs []error) {
	for _, e := range r.entries {
		if !e.affected(touched) {
			continue
		}
		values := e.current(data)
		changed := e.changed(values)
		e.last = snapshot(values)
		if !changed {
			continue
		}
		fired = append(fired, e.key)
		if err := e.fn(c, values); err != nil {
			errs = append(errs, &EntryError{Name: e.key, Err: err})
		}
	}
	return fired, errs
}

func snapshot(values []any) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = datapath.Clone(v)
	}
	return out
}
