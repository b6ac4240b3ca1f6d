package derive

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"testing"

	"github.com/vango-dev/derive/pkg/datapath"
	"github.com/vango-dev/derive/pkg/track"
)

func mustNew(t *testing.T, def *Definition, opts ...Option) *Component {
	t.Helper()
	c, err := New(def, opts...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return c
}

func mustAttach(t *testing.T, c *Component) {
	t.Helper()
	if err := c.Attached(); err != nil {
		t.Fatalf("Attached() error = %v", err)
	}
}

func mustSet(t *testing.T, c *Component, patch map[string]any) {
	t.Helper()
	if err := c.SetData(patch); err != nil {
		t.Fatalf("SetData(%v) error = %v", patch, err)
	}
}

func assertValue(t *testing.T, c *Component, path string, want any) {
	t.Helper()
	got, _ := c.Get(path)
	if !datapath.Equal(got, want) {
		t.Errorf("%s = %#v, want %#v", path, got, want)
	}
}

func assertStrings(t *testing.T, label string, got []string, want ...string) {
	t.Helper()
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("%s = %v, want %v", label, got, want)
	}
}

// recorder collects watch callback invocations.
type recorder struct {
	calls [][]any
}

func (r *recorder) fn(_ *Component, values []any) error {
	r.calls = append(r.calls, values)
	return nil
}

func (r *recorder) count() int {
	return len(r.calls)
}

func (r *recorder) last() []any {
	if len(r.calls) == 0 {
		return nil
	}
	return r.calls[len(r.calls)-1]
}

func num(path string) ComputeFunc {
	return func(d *track.View) (any, error) {
		return d.Path(path).Float(), nil
	}
}

func TestWatchMultipleKeys(t *testing.T) {
	rec := &recorder{}
	c := mustNew(t, &Definition{
		Data:  map[string]any{"a": 1, "b": 2},
		Watch: []Watcher{{Keys: "a, b", Fn: rec.fn}},
	})

	if rec.count() != 0 {
		t.Fatalf("watcher fired on construction")
	}

	mustSet(t, c, map[string]any{"a": 10})
	if rec.count() != 1 {
		t.Fatalf("expected 1 call after a=10, got %d", rec.count())
	}
	if !datapath.Equal(rec.last(), []any{10, 2}) {
		t.Errorf("values = %v, want [10 2]", rec.last())
	}

	mustSet(t, c, map[string]any{"b": 20})
	if rec.count() != 2 {
		t.Fatalf("expected 2 calls after b=20, got %d", rec.count())
	}
	if !datapath.Equal(rec.last(), []any{10, 20}) {
		t.Errorf("values = %v, want [10 20]", rec.last())
	}

	// Both keys changed in one batch: still one call.
	mustSet(t, c, map[string]any{"a": 11, "b": 21})
	if rec.count() != 3 {
		t.Errorf("expected 3 calls, got %d", rec.count())
	}
}

func TestWatchDataPaths(t *testing.T) {
	rec := &recorder{}
	c := mustNew(t, &Definition{
		Data: map[string]any{
			"a": map[string]any{"d": 1, "e": 1},
			"b": []any{1, 2},
		},
		Watch: []Watcher{{Keys: "a.d, b[1]", Fn: rec.fn}},
	})

	tests := []struct {
		name  string
		patch map[string]any
		calls int
		want  []any
	}{
		{"sibling key", map[string]any{"a.e": 5}, 0, nil},
		{"watched key", map[string]any{"a.d": 2}, 1, []any{2, 2}},
		{"ancestor same value", map[string]any{"a": map[string]any{"d": 2}}, 1, nil},
		{"ancestor new value", map[string]any{"a": map[string]any{"d": 3}}, 2, []any{3, 2}},
		{"other element", map[string]any{"b[0]": 9}, 2, nil},
		{"watched element", map[string]any{"b[1]": 7}, 3, []any{3, 7}},
		{"whole slice", map[string]any{"b": []any{0, 8}}, 4, []any{3, 8}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mustSet(t, c, tt.patch)
			if rec.count() != tt.calls {
				t.Fatalf("calls = %d, want %d", rec.count(), tt.calls)
			}
			if tt.want != nil && !datapath.Equal(rec.last(), tt.want) {
				t.Errorf("values = %v, want %v", rec.last(), tt.want)
			}
		})
	}
}

func TestWatchDeepEquality(t *testing.T) {
	rec := &recorder{}
	c := mustNew(t, &Definition{
		Data:  map[string]any{"obj": map[string]any{"x": 1, "list": []any{1, 2}}},
		Watch: []Watcher{{Keys: "obj", Fn: rec.fn}},
	})

	mustSet(t, c, map[string]any{"obj": map[string]any{"x": 1, "list": []any{1, 2}}})
	if rec.count() != 0 {
		t.Fatalf("structurally equal value fired watcher")
	}

	mustSet(t, c, map[string]any{"obj": map[string]any{"x": 1, "list": []any{1, 3}}})
	if rec.count() != 1 {
		t.Fatalf("expected 1 call, got %d", rec.count())
	}

	// The stored value is a copy: mutating the callback's argument must not
	// hide the next change.
	rec.last()[0].(map[string]any)["x"] = 100
	mustSet(t, c, map[string]any{"obj": map[string]any{"x": 100, "list": []any{1, 3}}})
	if rec.count() != 2 {
		t.Errorf("expected 2 calls, got %d", rec.count())
	}
}

func TestWatchTypedContainers(t *testing.T) {
	rec := &recorder{}
	c := mustNew(t, &Definition{
		Data: map[string]any{"b": []any{1, 2}, "ratio": math.NaN()},
		Watch: []Watcher{
			{Keys: "b", Fn: rec.fn},
			{Keys: "ratio", Fn: rec.fn},
		},
	})

	mustSet(t, c, map[string]any{"b": []int{1, 2}})
	mustSet(t, c, map[string]any{"ratio": math.NaN()})
	if rec.count() != 0 {
		t.Fatalf("structurally equal values fired %d times", rec.count())
	}

	mustSet(t, c, map[string]any{"b": []int{1, 3}})
	if rec.count() != 1 {
		t.Errorf("expected 1 call, got %d", rec.count())
	}
}

func TestSetDataTypedContainers(t *testing.T) {
	rec := &recorder{}
	c := mustNew(t, &Definition{
		Data: map[string]any{
			"b": []int{1, 2, 3},
			"m": map[string]string{"x": "1", "y": "2"},
		},
		Computed: []Computed{{
			Name: "total",
			Fn: func(d *track.View) (any, error) {
				return d.Get("b").Reduce(func(acc any, _ int, item *track.View) any {
					return acc.(float64) + item.Float()
				}, 0.0), nil
			},
		}},
		Watch: []Watcher{{Keys: "m.y", Fn: rec.fn}},
	})
	mustAttach(t, c)
	assertValue(t, c, "total", 6)

	mustSet(t, c, map[string]any{"b[0]": 5, "m.x": "9"})
	assertValue(t, c, "b", []any{5, 2, 3})
	assertValue(t, c, "m", map[string]any{"x": "9", "y": "2"})
	assertValue(t, c, "total", 10)
	if rec.count() != 0 {
		t.Errorf("m.y watcher fired for a sibling write")
	}
}

func TestWatchWildcard(t *testing.T) {
	deep := &recorder{}
	sub := &recorder{}
	c := mustNew(t, &Definition{
		Data: map[string]any{"obj": map[string]any{"x": 1, "y": 1}},
		Watch: []Watcher{
			{Keys: "obj.**", Fn: deep.fn},
			{Keys: "obj.y", Fn: sub.fn},
		},
	})

	mustSet(t, c, map[string]any{"obj.x": 5})
	if deep.count() != 1 || sub.count() != 0 {
		t.Fatalf("after obj.x: deep=%d sub=%d, want 1 0", deep.count(), sub.count())
	}
	if !datapath.Equal(deep.last(), []any{map[string]any{"x": 5, "y": 1}}) {
		t.Errorf("wildcard value = %v", deep.last())
	}

	mustSet(t, c, map[string]any{"obj": map[string]any{"x": 5, "y": 2}})
	if deep.count() != 2 || sub.count() != 1 {
		t.Fatalf("after obj: deep=%d sub=%d, want 2 1", deep.count(), sub.count())
	}

	mustSet(t, c, map[string]any{"obj": map[string]any{"x": 5, "y": 2}})
	if deep.count() != 2 || sub.count() != 1 {
		t.Errorf("equal overwrite fired: deep=%d sub=%d", deep.count(), sub.count())
	}

	mustSet(t, c, map[string]any{"obj.x": 6, "obj.y": 3})
	if deep.count() != 3 {
		t.Errorf("wildcard fired %d times for one batch", deep.count()-2)
	}
}

func TestComputedNestedName(t *testing.T) {
	c := mustNew(t, &Definition{
		Data: map[string]any{
			"a": map[string]any{"d": 1},
			"b": []any{2},
		},
		Computed: []Computed{{
			Name: "c[1]",
			Fn: func(d *track.View) (any, error) {
				return map[string]any{"f": d.Path("a.d").Float() + d.Path("b[0]").Float()}, nil
			},
		}},
	})

	if _, ok := c.Get("c"); ok {
		t.Fatalf("computed evaluated before Attached")
	}
	mustAttach(t, c)
	assertValue(t, c, "c[1].f", 3)
	assertValue(t, c, "c[0]", nil)

	mustSet(t, c, map[string]any{"a.d": 10})
	assertValue(t, c, "c[1].f", 12)

	mustSet(t, c, map[string]any{"a.e": -1})
	if n := len(c.LastReport().Evaluated); n != 0 {
		t.Errorf("unrelated path caused %d evaluations", n)
	}
	assertValue(t, c, "c[1].f", 12)
}

func TestComputedConditionalDependencies(t *testing.T) {
	c := mustNew(t, &Definition{
		Data: map[string]any{"a": 0, "b": 1, "c": 2},
		Computed: []Computed{{
			Name: "d",
			Fn: func(d *track.View) (any, error) {
				if d.Get("a").Truthy() {
					return d.Get("b").Value(), nil
				}
				return d.Get("c").Value(), nil
			},
		}},
	})
	mustAttach(t, c)
	assertValue(t, c, "d", 2)

	deps, _ := c.Dependencies("d")
	assertStrings(t, "deps", deps, "a", "c")

	mustSet(t, c, map[string]any{"b": 10})
	assertStrings(t, "evaluated after b", c.LastReport().Evaluated)

	mustSet(t, c, map[string]any{"c": 20})
	assertStrings(t, "evaluated after c", c.LastReport().Evaluated, "d")
	assertValue(t, c, "d", 20)

	mustSet(t, c, map[string]any{"a": -1})
	assertStrings(t, "evaluated after a", c.LastReport().Evaluated, "d")
	assertValue(t, c, "d", 10)
	deps, _ = c.Dependencies("d")
	assertStrings(t, "deps", deps, "a", "b")

	mustSet(t, c, map[string]any{"c": 30})
	assertStrings(t, "evaluated after second c", c.LastReport().Evaluated)
	assertValue(t, c, "d", 10)
}

func TestComputedChainOrdering(t *testing.T) {
	var seen []float64
	c := mustNew(t, &Definition{
		Data: map[string]any{"a": 1, "b": 2},
		Computed: []Computed{
			{Name: "c", Fn: func(d *track.View) (any, error) {
				return d.Get("a").Float() + d.Get("b").Float(), nil
			}},
			{Name: "d", Fn: func(d *track.View) (any, error) {
				v := d.Get("c").Float()
				seen = append(seen, v)
				return v * 2, nil
			}},
		},
	})
	mustAttach(t, c)
	assertValue(t, c, "d", 6)

	seen = nil
	mustSet(t, c, map[string]any{"a": 10})
	assertStrings(t, "evaluated", c.LastReport().Evaluated, "c", "d")
	assertStrings(t, "written", c.LastReport().Written, "c", "d")
	if len(seen) != 1 || seen[0] != 12 {
		t.Errorf("d observed c = %v, want [12]", seen)
	}
	assertValue(t, c, "d", 24)
}

func TestComputedChainDeclaredOutOfOrder(t *testing.T) {
	c := mustNew(t, &Definition{
		Data: map[string]any{"a": 1},
		Computed: []Computed{
			{Name: "d", Fn: num("c")},
			{Name: "c", Fn: num("a")},
		},
	})
	mustAttach(t, c)
	assertValue(t, c, "d", 1)

	// Dependencies are known now, so the order follows them.
	mustSet(t, c, map[string]any{"a": 5})
	assertStrings(t, "evaluated", c.LastReport().Evaluated, "c", "d")
	assertValue(t, c, "d", 5)
}

func TestComputedWritesFireWatchers(t *testing.T) {
	rec := &recorder{}
	c := mustNew(t, &Definition{
		Data: map[string]any{"a": 1, "b": 1},
		Computed: []Computed{{Name: "sum", Fn: func(d *track.View) (any, error) {
			return d.Get("a").Float() + d.Get("b").Float(), nil
		}}},
		Watch: []Watcher{{Keys: "sum", Fn: rec.fn}},
	})
	mustAttach(t, c)
	if rec.count() != 1 {
		t.Fatalf("first computed write should fire: calls = %d", rec.count())
	}

	// a and b swap: sum is unchanged.
	mustSet(t, c, map[string]any{"a": 1, "b": 1})
	mustSet(t, c, map[string]any{"a": 0, "b": 2})
	if rec.count() != 1 {
		t.Errorf("unchanged sum fired watcher: calls = %d", rec.count())
	}

	mustSet(t, c, map[string]any{"a": 5})
	if rec.count() != 2 || !datapath.Equal(rec.last(), []any{7.0}) {
		t.Errorf("calls = %d last = %v, want 2 [7]", rec.count(), rec.last())
	}
}

func TestComputedSliceOperations(t *testing.T) {
	c := mustNew(t, &Definition{
		Data: map[string]any{"list": []any{1, 2, 3}, "other": 0},
		Computed: []Computed{
			{Name: "total", Fn: func(d *track.View) (any, error) {
				return d.Get("list").Reduce(func(acc any, _ int, item *track.View) any {
					return acc.(float64) + item.Float()
				}, 0.0), nil
			}},
			{Name: "evens", Fn: func(d *track.View) (any, error) {
				return len(d.Get("list").Filter(func(_ int, item *track.View) bool {
					return item.Int()%2 == 0
				})), nil
			}},
			{Name: "hasTwo", Fn: func(d *track.View) (any, error) {
				return d.Get("list").Includes(2), nil
			}},
		},
	})
	mustAttach(t, c)
	assertValue(t, c, "total", 6)
	assertValue(t, c, "evens", 1)
	assertValue(t, c, "hasTwo", true)

	mustSet(t, c, map[string]any{"list[1]": 4})
	assertValue(t, c, "total", 8)
	assertValue(t, c, "evens", 1)
	assertValue(t, c, "hasTwo", false)

	mustSet(t, c, map[string]any{"list": []any{2, 2, 2, 2}})
	assertValue(t, c, "total", 8)
	assertValue(t, c, "evens", 4)
	assertValue(t, c, "hasTwo", true)
	assertStrings(t, "written", c.LastReport().Written, "evens", "hasTwo")

	mustSet(t, c, map[string]any{"other": 1})
	assertStrings(t, "evaluated", c.LastReport().Evaluated)
}

func TestComputedPassThroughKeepsDependency(t *testing.T) {
	c := mustNew(t, &Definition{
		Data: map[string]any{"obj": map[string]any{"x": 1}},
		Computed: []Computed{{Name: "mirror", Fn: func(d *track.View) (any, error) {
			return d.Get("obj"), nil
		}}},
	})
	mustAttach(t, c)
	assertValue(t, c, "mirror.x", 1)

	deps, _ := c.Dependencies("mirror")
	assertStrings(t, "deps", deps, "obj", "obj.**")

	mustSet(t, c, map[string]any{"obj.x": 2})
	assertValue(t, c, "mirror.x", 2)

	// The computed result is a copy, not an alias of the source.
	c.Data()["obj"].(map[string]any)["x"] = 99
	assertValue(t, c, "mirror.x", 2)
}

func TestComputedFailureIsolation(t *testing.T) {
	c := mustNew(t, &Definition{
		Data: map[string]any{"a": 1, "ok": false},
		Computed: []Computed{
			{Name: "bad", Fn: func(d *track.View) (any, error) {
				if !d.Get("ok").Bool() {
					return nil, errors.New("not ready")
				}
				return "ready", nil
			}},
			{Name: "boom", Fn: func(d *track.View) (any, error) {
				panic("kaboom")
			}},
			{Name: "good", Fn: num("a")},
		},
	})
	mustAttach(t, c)

	assertValue(t, c, "good", 1)
	if _, ok := c.Get("bad"); ok {
		t.Errorf("failed computed wrote a value")
	}

	r := c.LastReport()
	if len(r.Errors) != 2 {
		t.Fatalf("errors = %v, want 2", r.Errors)
	}
	var ee *EntryError
	if !errors.As(r.Errors[0], &ee) || ee.Name != "bad" || !errors.Is(ee, ErrComputeFailed) {
		t.Errorf("errors[0] = %v, want compute failure of bad", r.Errors[0])
	}
	if !errors.Is(r.Errors[1], ErrComputeFailed) || !errors.Is(r.Errors[1], track.ErrPanic) {
		t.Errorf("errors[1] = %v, want recovered panic", r.Errors[1])
	}

	// A never-successful entry is retried when the inputs it read change.
	mustSet(t, c, map[string]any{"ok": true})
	assertValue(t, c, "bad", "ready")
}

func TestComputedFailureKeepsPreviousValue(t *testing.T) {
	c := mustNew(t, &Definition{
		Data: map[string]any{"n": 1},
		Computed: []Computed{{Name: "inv", Fn: func(d *track.View) (any, error) {
			n := d.Get("n").Float()
			if n == 0 {
				return nil, errors.New("division by zero")
			}
			return 1 / n, nil
		}}},
	})
	mustAttach(t, c)
	mustSet(t, c, map[string]any{"n": 0})
	assertValue(t, c, "inv", 1)
	if !errors.Is(c.LastReport().Errors[0], ErrComputeFailed) {
		t.Errorf("errors = %v", c.LastReport().Errors)
	}

	mustSet(t, c, map[string]any{"n": 4})
	assertValue(t, c, "inv", 0.25)
}

func TestComputedCycle(t *testing.T) {
	c := mustNew(t, &Definition{
		Data: map[string]any{"a": 1},
		Computed: []Computed{
			{Name: "x", Fn: func(d *track.View) (any, error) { return d.Get("y").Float() + 1, nil }},
			{Name: "y", Fn: func(d *track.View) (any, error) { return d.Get("x").Float() + 1, nil }},
			{Name: "z", Fn: num("x")},
			{Name: "w", Fn: num("a")},
		},
	})
	mustAttach(t, c)
	if !hasError(c.LastReport().Errors, ErrCycle) {
		t.Fatalf("initial pass errors = %v, want a cycle", c.LastReport().Errors)
	}
	x, _ := c.Get("x")
	y, _ := c.Get("y")
	z, _ := c.Get("z")

	if err := c.Recompute(); err != nil {
		t.Fatalf("Recompute() error = %v", err)
	}
	r := c.LastReport()
	assertStrings(t, "evaluated", r.Evaluated, "w")

	var names []string
	for _, err := range r.Errors {
		var ee *EntryError
		if errors.As(err, &ee) && errors.Is(err, ErrCycle) {
			names = append(names, ee.Name)
		}
	}
	assertStrings(t, "cyclic", names, "x", "y", "z")

	assertValue(t, c, "x", x)
	assertValue(t, c, "y", y)
	assertValue(t, c, "z", z)
	assertValue(t, c, "w", 1)
}

func TestComputedSelfRead(t *testing.T) {
	c := mustNew(t, &Definition{
		Computed: []Computed{{Name: "s", Fn: func(d *track.View) (any, error) {
			return d.Get("s").Float() + 1, nil
		}}},
	})
	mustAttach(t, c)
	assertValue(t, c, "s", 1)
	if !hasError(c.LastReport().Errors, ErrCycle) {
		t.Errorf("errors = %v, want a cycle", c.LastReport().Errors)
	}
}

func TestComputedRecomputeLimit(t *testing.T) {
	c := mustNew(t, &Definition{
		Data: map[string]any{"a": 1},
		Computed: []Computed{
			{Name: "d", Fn: num("c")},
			{Name: "c", Fn: num("a")},
		},
	}, WithMaxRecompute(1))
	mustAttach(t, c)

	// d runs once before c is known, then needs a second run.
	errs := c.LastReport().Errors
	if len(errs) != 1 || !errors.Is(errs[0], ErrRecomputeLimit) {
		t.Fatalf("errors = %v, want recompute limit", errs)
	}
	assertValue(t, c, "d", 0)
	assertValue(t, c, "c", 1)

	// With dependencies known the chain settles within the bound.
	mustSet(t, c, map[string]any{"a": 2})
	if len(c.LastReport().Errors) != 0 {
		t.Errorf("errors = %v", c.LastReport().Errors)
	}
	assertValue(t, c, "d", 2)
}

func TestIdempotentRecompute(t *testing.T) {
	rec := &recorder{}
	c := mustNew(t, &Definition{
		Data: map[string]any{"items": []any{map[string]any{"n": 1}, map[string]any{"n": 2}}},
		Computed: []Computed{{Name: "names", Fn: func(d *track.View) (any, error) {
			return d.Get("items").Map(func(i int, item *track.View) any {
				return fmt.Sprintf("item-%d", item.Get("n").Int())
			}), nil
		}}},
		Watch: []Watcher{{Keys: "names", Fn: rec.fn}},
	})
	mustAttach(t, c)
	before := datapath.Clone(c.Data())
	calls := rec.count()

	for i := 0; i < 2; i++ {
		if err := c.Recompute(); err != nil {
			t.Fatal(err)
		}
		r := c.LastReport()
		if len(r.Written) != 0 || len(r.Fired) != 0 {
			t.Errorf("pass %d wrote %v fired %v", i, r.Written, r.Fired)
		}
	}
	if rec.count() != calls {
		t.Errorf("watcher fired on unchanged recompute")
	}
	if !datapath.Equal(before, c.Data()) {
		t.Errorf("data changed: %v -> %v", before, c.Data())
	}
}

func TestWatcherSetDataRunsNextBatch(t *testing.T) {
	rec := &recorder{}
	var order []string
	c := mustNew(t, &Definition{
		Data: map[string]any{"a": 1, "b": 0},
		Watch: []Watcher{
			{Keys: "a", Fn: func(c *Component, v []any) error {
				order = append(order, "a")
				if err := c.SetData(map[string]any{"b": v[0].(int) * 10}); err != nil {
					return err
				}
				// Queued, not yet applied.
				if b, _ := c.Get("b"); b != 0 {
					t.Errorf("nested SetData applied inside the pass: b = %v", b)
				}
				return nil
			}},
			{Keys: "b", Fn: func(c *Component, v []any) error {
				order = append(order, "b")
				return rec.fn(c, v)
			}},
		},
	})

	mustSet(t, c, map[string]any{"a": 2})
	assertValue(t, c, "b", 20)
	assertStrings(t, "order", order, "a", "b")
	if !datapath.Equal(rec.last(), []any{20}) {
		t.Errorf("b watcher values = %v", rec.last())
	}
	assertStrings(t, "last touched", c.LastReport().Touched, "b")
}

func TestBatchLimit(t *testing.T) {
	c := mustNew(t, &Definition{
		Data: map[string]any{"n": 0},
		Watch: []Watcher{{Keys: "n", Fn: func(c *Component, v []any) error {
			return c.SetData(map[string]any{"n": v[0].(int) + 1})
		}}},
	}, WithMaxBatches(5))

	err := c.SetData(map[string]any{"n": 1})
	if !errors.Is(err, ErrBatchLimit) {
		t.Fatalf("SetData() error = %v, want ErrBatchLimit", err)
	}
	assertValue(t, c, "n", 5)

	// The component is usable again after the overflow.
	calls := 0
	c.engine.watches.entries[0].fn = func(*Component, []any) error {
		calls++
		return nil
	}
	mustSet(t, c, map[string]any{"n": 100})
	if calls != 1 {
		t.Errorf("calls after overflow = %d, want 1", calls)
	}
}

func TestWatchCallbackErrors(t *testing.T) {
	rec := &recorder{}
	c := mustNew(t, &Definition{
		Data: map[string]any{"a": 1},
		Watch: []Watcher{
			{Keys: "a", Fn: func(*Component, []any) error { return errors.New("rejected") }},
			{Keys: "a", Fn: rec.fn},
		},
	})

	err := c.SetData(map[string]any{"a": 2})
	var ee *EntryError
	if !errors.As(err, &ee) || ee.Name != "a" || ee.Err.Error() != "rejected" {
		t.Fatalf("SetData() error = %v", err)
	}
	if rec.count() != 1 {
		t.Errorf("later watcher did not run")
	}
	assertStrings(t, "fired", c.LastReport().Fired, "a", "a")
}

func TestBehaviors(t *testing.T) {
	var hooks []string
	base := &Definition{
		Name: "base",
		Data: map[string]any{"prefix": "base", "shared": 1},
		Computed: []Computed{{Name: "label", Fn: func(d *track.View) (any, error) {
			return "base-label", nil
		}}},
		Attached: func(c *Component) error {
			hooks = append(hooks, "base")
			return c.SetData(map[string]any{"ready": true})
		},
		Detached: func(*Component) error {
			hooks = append(hooks, "base-detached")
			return nil
		},
	}
	rec := &recorder{}
	c := mustNew(t, &Definition{
		Name:       "card",
		Behaviors:  []*Definition{base},
		Data:       map[string]any{"shared": 2, "p": 1},
		Properties: map[string]any{"p": 3},
		Computed: []Computed{{Name: "label", Fn: func(d *track.View) (any, error) {
			if !d.Get("ready").Bool() {
				return nil, errors.New("read before attached hooks")
			}
			return d.Get("prefix").String() + "-card", nil
		}}},
		Watch: []Watcher{{Keys: "p", Fn: rec.fn}},
		Attached: func(*Component) error {
			hooks = append(hooks, "card")
			return nil
		},
	})

	if c.Name() != "card" {
		t.Errorf("Name() = %q", c.Name())
	}
	assertValue(t, c, "shared", 2)
	assertValue(t, c, "p", 3)

	mustAttach(t, c)
	assertStrings(t, "hooks", hooks, "base", "card")
	assertValue(t, c, "label", "base-card")
	if len(c.LastReport().Errors) != 0 {
		t.Errorf("errors = %v", c.LastReport().Errors)
	}

	// A property update from the parent is an ordinary SetData.
	mustSet(t, c, map[string]any{"p": 4})
	if rec.count() != 1 {
		t.Errorf("property watcher calls = %d, want 1", rec.count())
	}

	if err := c.Detached(); err != nil {
		t.Fatal(err)
	}
	assertStrings(t, "hooks", hooks, "base", "card", "base-detached")
	if err := c.SetData(map[string]any{"p": 5}); !errors.Is(err, ErrDetached) {
		t.Errorf("SetData after Detached error = %v", err)
	}
}

func TestBehaviorDataIsCopied(t *testing.T) {
	shared := &Definition{Data: map[string]any{"list": []any{1}}}
	a := mustNew(t, &Definition{Behaviors: []*Definition{shared}})
	b := mustNew(t, &Definition{Behaviors: []*Definition{shared}})

	mustSet(t, a, map[string]any{"list[0]": 9})
	assertValue(t, b, "list[0]", 1)
	if !datapath.Equal(shared.Data["list"], []any{1}) {
		t.Errorf("definition data mutated: %v", shared.Data)
	}
}

func TestObservers(t *testing.T) {
	var infos []PassInfo
	var reports []*Report
	obs := ObserverFunc(func(ctx context.Context, info PassInfo) func(*Report) {
		if ctx == nil {
			t.Errorf("nil context")
		}
		infos = append(infos, info)
		return func(r *Report) { reports = append(reports, r) }
	})

	c := mustNew(t, &Definition{
		Name:     "obs",
		Data:     map[string]any{"a": 1},
		Computed: []Computed{{Name: "b", Fn: num("a")}},
	}, WithObserver(obs), WithObserver(nil))
	mustAttach(t, c)
	mustSet(t, c, map[string]any{"a": 2})

	if len(infos) != 2 || len(reports) != 2 {
		t.Fatalf("observed %d begins, %d ends, want 2 each", len(infos), len(reports))
	}
	if !infos[0].Initial || infos[1].Initial {
		t.Errorf("initial flags = %v, %v", infos[0].Initial, infos[1].Initial)
	}
	if infos[1].Batch != infos[0].Batch+1 || infos[1].Component != "obs" {
		t.Errorf("info = %+v", infos[1])
	}
	assertStrings(t, "touched", infos[1].Touched, "a")
	assertStrings(t, "written", reports[1].Written, "b")
	if reports[1] != c.LastReport() {
		t.Errorf("observer report differs from LastReport")
	}
}

func TestSetDataOrderAndErrors(t *testing.T) {
	c := mustNew(t, &Definition{})

	mustSet(t, c, map[string]any{"a.b": 2, "a": map[string]any{"b": 1, "c": 1}})
	assertValue(t, c, "a", map[string]any{"b": 2, "c": 1})

	if err := c.SetData(map[string]any{"a..b": 1}); !errors.Is(err, datapath.ErrInvalidPath) {
		t.Errorf("invalid key error = %v", err)
	}
	if err := c.SetData(map[string]any{"a.**": 1}); !errors.Is(err, datapath.ErrWildcardWrite) {
		t.Errorf("wildcard key error = %v", err)
	}
}

func TestSetDataBeforeAttachedSkipsComputed(t *testing.T) {
	c := mustNew(t, &Definition{
		Data:     map[string]any{"a": 1},
		Computed: []Computed{{Name: "b", Fn: num("a")}},
	})
	mustSet(t, c, map[string]any{"a": 2})
	if _, ok := c.Get("b"); ok {
		t.Errorf("computed evaluated before Attached")
	}
	mustAttach(t, c)
	assertValue(t, c, "b", 2)
	if err := c.Attached(); err != nil {
		t.Errorf("second Attached() error = %v", err)
	}
}

func TestInvalidDefinitions(t *testing.T) {
	loop := &Definition{Name: "loop"}
	loop.Behaviors = []*Definition{loop}

	fn := num("a")
	tests := []struct {
		name string
		def  *Definition
	}{
		{"nil", nil},
		{"wildcard computed", &Definition{Computed: []Computed{{Name: "a.**", Fn: fn}}}},
		{"bad computed path", &Definition{Computed: []Computed{{Name: "a[", Fn: fn}}}},
		{"nil computed fn", &Definition{Computed: []Computed{{Name: "a"}}}},
		{"bad watch key", &Definition{Watch: []Watcher{{Keys: "a,,b", Fn: (&recorder{}).fn}}}},
		{"nil watch fn", &Definition{Watch: []Watcher{{Keys: "a"}}}},
		{"behavior cycle", &Definition{Behaviors: []*Definition{loop}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.def)
			if !errors.Is(err, ErrInvalidDefinition) {
				t.Errorf("New() error = %v, want ErrInvalidDefinition", err)
			}
		})
	}
}

func hasError(errs []error, target error) bool {
	for _, err := range errs {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
