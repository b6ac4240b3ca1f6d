package derive

import (
	"fmt"

	"github.com/vango-dev/derive/pkg/datapath"
	"github.com/vango-dev/derive/pkg/track"
)

// ComputeFunc computes a derived value. It must only read, through the view;
// whatever it reads becomes its dependency set for this evaluation.
type ComputeFunc = track.Func

// WatchFunc is invoked with the current values of every key of a watcher,
// in key order. It may call c.SetData; the update settles as the next batch.
type WatchFunc func(c *Component, values []any) error

// LifetimeFunc is a lifetime hook such as Attached or Detached.
type LifetimeFunc func(c *Component) error

// Computed declares one computed property.
type Computed struct {
	// Name is the data path the result is written to. It may be nested,
	// e.g. "c[1]" or "summary.total".
	Name string

	// Fn computes the value.
	Fn ComputeFunc
}

// Watcher declares one watch entry.
type Watcher struct {
	// Keys is one or more comma separated paths, e.g. "a, b" or "obj.**".
	Keys string

	// Fn is called once per batch when any key's value changed.
	Fn WatchFunc
}

// Definition is one fragment of a component definition. Behaviors are
// fragments merged before the definition itself, in order.
type Definition struct {
	// Name identifies the component in logs and metrics.
	Name string

	// Data is the initial data. It is deep-copied per component.
	Data map[string]any

	// Properties are externally supplied values merged over Data.
	Properties map[string]any

	// Watch entries fire in declaration order.
	Watch []Watcher

	// Computed entries. A later entry with the same name replaces an earlier
	// one in place.
	Computed []Computed

	// Behaviors are merged first, depth first, in order.
	Behaviors []*Definition

	// Attached runs when the component becomes active, before the first
	// computed pass.
	Attached LifetimeFunc

	// Detached runs when the component is torn down.
	Detached LifetimeFunc
}

// merged is a flattened definition.
type merged struct {
	name     string
	data     map[string]any
	watch    []Watcher
	computed []Computed
	attached []LifetimeFunc
	detached []LifetimeFunc
}

// flatten merges behaviors depth first, then def itself.
func flatten(def *Definition) (*merged, error) {
	m := &merged{name: def.Name, data: make(map[string]any)}
	if err := m.add(def, make(map[*Definition]bool)); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *merged) add(def *Definition, visiting map[*Definition]bool) error {
	if def == nil {
		return nil
	}
	if visiting[def] {
		return fmt.Errorf("%w: behavior %q includes itself", ErrInvalidDefinition, def.Name)
	}
	visiting[def] = true
	defer delete(visiting, def)

	for _, b := range def.Behaviors {
		if err := m.add(b, visiting); err != nil {
			return err
		}
	}

	for k, v := range def.Data {
		m.data[k] = datapath.Clone(v)
	}
	for k, v := range def.Properties {
		m.data[k] = datapath.Clone(v)
	}

	m.watch = append(m.watch, def.Watch...)

	for _, c := range def.Computed {
		replaced := false
		for i := range m.computed {
			if m.computed[i].Name == c.Name {
				m.computed[i] = c
				replaced = true
				break
			}
		}
		if !replaced {
			m.computed = append(m.computed, c)
		}
	}

	if def.Attached != nil {
		m.attached = append(m.attached, def.Attached)
	}
	if def.Detached != nil {
		m.detached = append(m.detached, def.Detached)
	}
	return nil
}
