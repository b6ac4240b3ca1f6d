// Package errors provides structured, actionable error messages for the
// derive tooling.
//
// Every error carries a registered code, a category and, when it comes from
// a manifest, scenario or config file, the exact file position with an
// excerpt of the surrounding lines.
//
// # Error Codes
//
//   - D0xx: runtime failures reported by the engine (cycles, failed
//     computed expressions, exhausted bounds, watch actions)
//   - D1xx: manifest, expression and scenario errors
//   - D2xx: derive.json configuration errors
//   - D3xx: command line errors
//
// # Usage
//
//	err := errors.New(errors.CodeExpressionSyntax).
//	    WithLocation("card.yaml", 12, 11).
//	    WithSubject("total").
//	    Wrap(cause)
//
//	fmt.Println(err.Format())
//	// Output:
//	// ERROR D110: Invalid expression total
//	//
//	//   card.yaml:12:11
//	//
//	//       10 │ computed:
//	//       11 │   - name: total
//	//   →   12 │     expr: a +* b
//	//          │           ^
//	//
//	//   Hint: Expressions use expr syntax: a.d + b[0], a ? b : c, filter(list, # > 1)
package errors
