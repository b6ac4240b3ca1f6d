package derive

import (
	"errors"
	"fmt"
	"sort"

	"github.com/vango-dev/derive/pkg/datapath"
)

// Component owns a data object and keeps its computed properties and
// watchers consistent with it.
//
// A Component is not safe for concurrent use. Calls made from inside a
// watch callback or lifetime hook while a pass is running are queued and
// settled, in order, before the outermost call returns.
type Component struct {
	name   string
	cfg    Config
	data   map[string]any
	engine *engine

	attachedHooks []LifetimeFunc
	detachedHooks []LifetimeFunc

	attached bool
	detached bool
	settling bool
	queue    []batch
	last     *Report
}

// patchEntry is one path assignment of a batch.
type patchEntry struct {
	path  datapath.Path
	value any
}

// batch is one unit of queued work.
type batch struct {
	entries []patchEntry
	initial bool
}

// New builds a component from def and its behaviors. Watchers are live
// immediately; computed properties are first evaluated by Attached.
func New(def *Definition, opts ...Option) (*Component, error) {
	if def == nil {
		return nil, fmt.Errorf("%w: nil definition", ErrInvalidDefinition)
	}
	m, err := flatten(def)
	if err != nil {
		return nil, err
	}
	cfg := newConfig(opts)

	graph, err := newComputedGraph(m.computed)
	if err != nil {
		return nil, err
	}
	watches, err := newWatchRegistry(m.watch, m.data)
	if err != nil {
		return nil, err
	}

	return &Component{
		name: m.name,
		cfg:  cfg,
		data: m.data,
		engine: &engine{
			name:     m.name,
			cfg:      cfg,
			log:      cfg.Logger.With("component", m.name),
			computed: graph,
			watches:  watches,
		},
		attachedHooks: m.attached,
		detachedHooks: m.detached,
	}, nil
}

// Name returns the definition name.
func (c *Component) Name() string {
	return c.name
}

// Data returns the live data object. Callers must treat it as read-only and
// mutate through SetData.
func (c *Component) Data() map[string]any {
	return c.data
}

// Get resolves a path expression against the data.
func (c *Component) Get(path string) (any, bool) {
	return datapath.Get(c.data, path)
}

// IsAttached reports whether Attached has run.
func (c *Component) IsAttached() bool {
	return c.attached
}

// LastReport returns the report of the most recent settle pass, or nil.
func (c *Component) LastReport() *Report {
	return c.last
}

// Dependencies returns the current dependency set of a computed property,
// as canonical path strings, and whether the property exists.
func (c *Component) Dependencies(name string) ([]string, bool) {
	p, err := datapath.Parse(name)
	if err != nil {
		return nil, false
	}
	for _, e := range c.engine.computed.entries {
		if e.name.Equal(p) {
			return e.depKeys(), true
		}
	}
	return nil, false
}

// SetData assigns every path of patch and settles the change. Keys are path
// expressions ("a", "a.d", "b[0]") applied in sorted order, so an ancestor
// is assigned before its descendants. The assigned keys are the batch's
// touched paths.
//
// The returned error joins watch callback errors and batch-limit failures.
// Computed failures are isolated: they are logged and recorded in the
// report, not returned.
func (c *Component) SetData(patch map[string]any) error {
	if c.detached {
		return ErrDetached
	}
	keys := make([]string, 0, len(patch))
	for k := range patch {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	entries := make([]patchEntry, 0, len(keys))
	for _, k := range keys {
		p, err := datapath.Parse(k)
		if err != nil {
			return fmt.Errorf("setData %q: %w", k, err)
		}
		if p.Wildcard() {
			return fmt.Errorf("setData %q: %w", k, datapath.ErrWildcardWrite)
		}
		entries = append(entries, patchEntry{path: p, value: patch[k]})
	}
	return c.enqueue(batch{entries: entries})
}

// Attached activates the component: attached hooks run first, in behavior
// order, then every computed property is evaluated once. Calling it again
// is a no-op.
func (c *Component) Attached() error {
	if c.detached {
		return ErrDetached
	}
	if c.attached {
		return nil
	}
	c.attached = true

	var errs []error
	for _, hook := range c.attachedHooks {
		if err := hook(c); err != nil {
			errs = append(errs, err)
		}
	}
	if err := c.enqueue(batch{initial: true}); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Recompute evaluates every computed property once, as Attached does for the
// first pass. With unchanged inputs it writes nothing and fires nothing.
func (c *Component) Recompute() error {
	if c.detached {
		return ErrDetached
	}
	if !c.attached {
		return nil
	}
	return c.enqueue(batch{initial: true})
}

// Detached runs the detached hooks and stops all further settling.
func (c *Component) Detached() error {
	if c.detached {
		return nil
	}
	var errs []error
	for _, hook := range c.detachedHooks {
		if err := hook(c); err != nil {
			errs = append(errs, err)
		}
	}
	c.detached = true
	c.queue = nil
	return errors.Join(errs...)
}

// enqueue adds b and drains the queue unless a pass is already running, in
// which case the running drain picks it up as the next batch.
func (c *Component) enqueue(b batch) error {
	c.queue = append(c.queue, b)
	if c.settling {
		return nil
	}
	return c.drain()
}

func (c *Component) drain() error {
	c.settling = true
	defer func() { c.settling = false }()

	var errs []error
	for n := 0; len(c.queue) > 0; n++ {
		if c.detached {
			c.queue = nil
			break
		}
		if n >= c.cfg.MaxBatches {
			dropped := len(c.queue)
			c.queue = nil
			err := fmt.Errorf("%w: %d batches settled, %d dropped", ErrBatchLimit, n, dropped)
			c.engine.log.Error("derive: batch limit exceeded", "settled", n, "dropped", dropped)
			errs = append(errs, err)
			break
		}

		b := c.queue[0]
		c.queue = c.queue[1:]

		touched := c.apply(b.entries)
		report, err := c.engine.settle(c, c.data, touched, b.initial, c.attached)
		c.last = report
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// apply merges a patch into the data and returns the touched paths.
func (c *Component) apply(entries []patchEntry) []datapath.Path {
	touched := make([]datapath.Path, 0, len(entries))
	for _, e := range entries {
		// Write only fails for wildcard or root paths, rejected in SetData.
		_ = datapath.Write(c.data, e.path, datapath.Clone(e.value))
		touched = append(touched, e.path)
	}
	return touched
}
