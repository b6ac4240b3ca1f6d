package derive

import (
	"github.com/vango-dev/derive/pkg/datapath"
	"github.com/vango-dev/derive/pkg/track"
)

// computedEntry is one node of the computed graph.
//
// deps always holds exactly the paths read by the most recent successful
// evaluation. An entry that has never succeeded keeps the reads of its last
// failed attempt so it is retried when those inputs change.
type computedEntry struct {
	name  datapath.Path
	key   string
	order int
	fn    ComputeFunc

	deps      []datapath.Path
	value     any
	hasValue  bool
	succeeded bool
	dirty     bool
}

// dependsOn reports whether a write to other's path concerns e.
func (e *computedEntry) dependsOn(other *computedEntry) bool {
	for _, d := range e.deps {
		if datapath.Matches(other.name, d) {
			return true
		}
	}
	return false
}

// touchedBy reports whether any touched path concerns e.
func (e *computedEntry) touchedBy(touched []datapath.Path) bool {
	for _, t := range touched {
		if datapath.MatchesAny(t, e.deps) {
			return true
		}
	}
	return false
}

// computedGraph holds computed entries in declaration order. Edges are not
// stored: they are derived from the current dependency sets whenever the
// graph is ordered, because every evaluation may change them.
type computedGraph struct {
	entries []*computedEntry
}

func newComputedGraph(decls []Computed) (*computedGraph, error) {
	g := &computedGraph{entries: make([]*computedEntry, 0, len(decls))}
	for i, c := range decls {
		p, err := datapath.Parse(c.Name)
		if err != nil {
			return nil, entryError(c.Name, ErrInvalidDefinition, err)
		}
		if p.Wildcard() {
			return nil, entryError(c.Name, ErrInvalidDefinition, datapath.ErrWildcardWrite)
		}
		if c.Fn == nil {
			return nil, &EntryError{Name: c.Name, Err: ErrInvalidDefinition}
		}
		g.entries = append(g.entries, &computedEntry{name: p, key: p.String(), order: i, fn: c.Fn})
	}
	return g, nil
}

// markAll marks every entry dirty.
func (g *computedGraph) markAll() {
	for _, e := range g.entries {
		e.dirty = true
	}
}

// markTouched marks entries whose dependencies match a touched path,
// skipping excluded entries.
func (g *computedGraph) markTouched(touched []datapath.Path, excluded map[*computedEntry]bool) {
	if len(touched) == 0 {
		return
	}
	for _, e := range g.entries {
		if !excluded[e] && e.touchedBy(touched) {
			e.dirty = true
		}
	}
}

// successors returns, per entry, the entries it directly depends on.
func (g *computedGraph) successors() map[*computedEntry][]*computedEntry {
	succ := make(map[*computedEntry][]*computedEntry, len(g.entries))
	for _, a := range g.entries {
		for _, b := range g.entries {
			if a.dependsOn(b) {
				succ[a] = append(succ[a], b)
			}
		}
	}
	return succ
}

// cyclic returns the entries that lie on a dependency cycle or depend,
// transitively, on one. It runs Tarjan's algorithm over the current edges;
// components come out successors first, so badness propagates in one sweep.
func (g *computedGraph) cyclic(succ map[*computedEntry][]*computedEntry) map[*computedEntry]bool {
	var (
		index   = make(map[*computedEntry]int, len(g.entries))
		low     = make(map[*computedEntry]int, len(g.entries))
		onStack = make(map[*computedEntry]bool, len(g.entries))
		stack   []*computedEntry
		next    int
		bad     = make(map[*computedEntry]bool)
	)

	var connect func(v *computedEntry)
	connect = func(v *computedEntry) {
		index[v] = next
		low[v] = next
		next++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range succ[v] {
			if _, seen := index[w]; !seen {
				connect(w)
				low[v] = min(low[v], low[w])
			} else if onStack[w] {
				low[v] = min(low[v], index[w])
			}
		}

		if low[v] != index[v] {
			return
		}
		var comp []*computedEntry
		for {
			w := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			onStack[w] = false
			comp = append(comp, w)
			if w == v {
				break
			}
		}

		isBad := len(comp) > 1
		for _, w := range comp {
			for _, s := range succ[w] {
				if s == w || bad[s] {
					isBad = true
				}
			}
		}
		if isBad {
			for _, w := range comp {
				bad[w] = true
			}
		}
	}

	for _, e := range g.entries {
		if _, seen := index[e]; !seen {
			connect(e)
		}
	}
	return bad
}

// next picks the dirty entry to evaluate now: the first in declaration order
// from which no other dirty entry is reachable. Dirty entries on or behind a
// cycle are returned separately and must be excluded by the caller.
func (g *computedGraph) next() (pick *computedEntry, cycles []*computedEntry) {
	succ := g.successors()
	bad := g.cyclic(succ)

	for _, e := range g.entries {
		if e.dirty && bad[e] {
			cycles = append(cycles, e)
		}
	}

	for _, e := range g.entries {
		if !e.dirty || bad[e] {
			continue
		}
		if !reachesDirty(e, succ) {
			return e, cycles
		}
	}
	return nil, cycles
}

// reachesDirty reports whether a dirty entry other than from is reachable
// from from. The caller guarantees the reachable subgraph is acyclic.
func reachesDirty(from *computedEntry, succ map[*computedEntry][]*computedEntry) bool {
	seen := map[*computedEntry]bool{from: true}
	queue := append([]*computedEntry(nil), succ[from]...)
	for len(queue) > 0 {
		e := queue[0]
		queue = queue[1:]
		if seen[e] {
			continue
		}
		seen[e] = true
		if e.dirty {
			return true
		}
		queue = append(queue, succ[e]...)
	}
	return false
}

// evaluate runs e through the tracker and refreshes its dependency set.
// It returns whether a new value was written into data, or the failure.
func (e *computedEntry) evaluate(data map[string]any) (bool, error) {
	res := track.Track(data, e.fn)
	if res.Err != nil {
		if !e.succeeded {
			e.deps = res.Paths
		}
		return false, res.Err
	}

	e.deps = res.Paths
	e.succeeded = true

	if e.hasValue && datapath.Equal(e.value, res.Value) {
		return false, nil
	}

	snapshot := datapath.Clone(res.Value)
	if err := datapath.Write(data, e.name, datapath.Clone(snapshot)); err != nil {
		return false, err
	}
	e.value = snapshot
	e.hasValue = true
	return true, nil
}

// depKeys returns the canonical form of the current dependency set.
func (e *computedEntry) depKeys() []string {
	out := make([]string, len(e.deps))
	for i, d := range e.deps {
		out[i] = d.String()
	}
	return out
}
