// Package derive keeps computed properties and watchers consistent with a
// component's data object.
//
// A Component owns a map[string]any built from a Definition and its
// behaviors. Computed properties are pure functions whose dependencies are
// discovered by observing their reads (see package track); watchers are
// callbacks bound to one or more paths.
//
//	c, err := derive.New(&derive.Definition{
//	    Data: map[string]any{"a": 1, "b": 2},
//	    Computed: []derive.Computed{{
//	        Name: "sum",
//	        Fn: func(d *track.View) (any, error) {
//	            return d.Get("a").Float() + d.Get("b").Float(), nil
//	        },
//	    }},
//	    Watch: []derive.Watcher{{
//	        Keys: "sum",
//	        Fn: func(c *derive.Component, v []any) error {
//	            log.Println("sum is", v[0])
//	            return nil
//	        },
//	    }},
//	})
//	c.Attached()                          // first computed pass
//	c.SetData(map[string]any{"a": 10})    // sum recomputed, watcher fires
//
// # Settle passes
//
// Every SetData call is one batch. The batch's assigned keys are its touched
// paths. A settle pass then:
//
//  1. marks computed properties whose last dependency set matches a touched
//     path;
//  2. evaluates dirty properties in dependency order, writing changed
//     results back into the data, which may dirty further properties;
//  3. re-checks every watcher concerned by the touched or written paths and
//     runs those whose values changed under deep equality, once each, in
//     declaration order.
//
// SetData calls made by a watcher run as the next batch, after the current
// pass has finished and before the outermost SetData returns.
//
// # Failures
//
// A failing computed function, a dependency cycle and an exhausted
// recompute bound affect only the entries involved: they keep their previous
// values, and the failure is logged, reported to observers and recorded in
// the pass Report. Watch callback errors are returned to the caller.
//
// A Component is not safe for concurrent use.
package derive
