// Package manifest loads component definitions and scenarios from YAML.
//
// A manifest declares data, computed properties, watchers and behaviors.
// Computed properties and watch actions are expr-lang expressions; every
// data reference in an expression (a, a.d, b[0]) is read through the
// dependency tracker, so a computed property depends on exactly the paths
// its last evaluation read.
//
//	name: card
//	data:
//	  a: {d: 1, e: 2}
//	  b: [2]
//	computed:
//	  - name: total
//	    expr: a.d + b[0]
//	watch:
//	  - keys: total
//	    set:
//	      changed: true
//	behaviors:
//	  - behaviors/audit.yaml
//
// A scenario drives one component through attach, set, recompute and
// detach steps and checks data values, fired watchers, evaluated computed
// properties and error codes after each step. Scenarios are what
// 'derive run' executes.
package manifest
