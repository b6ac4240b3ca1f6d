// Package datapath resolves and writes path expressions against nested
// component data.
//
// Component data is a tree of map[string]any and []any with scalar leaves.
// A path addresses one location in that tree:
//
//	a          top-level key
//	a.b        nested key
//	b[0]       slice index
//	c[1].f     mixed
//	obj.**     obj and every descendant (wildcard)
//
// Reads are permissive: a path that does not exist resolves to (nil, false).
// Writes create missing containers on the way down.
//
// # Matching
//
// Matches decides whether a mutation at one path concerns a dependency or a
// watch declared on another:
//
//	Matches(a,   a.d)   // true: replacing a replaces a.d
//	Matches(a.d, a)     // false: a is a plain path, only a.** sees a.d
//	Matches(a.d, a.**)  // true
//	Matches(b[2], b[0]) // false
//
// # Values
//
// Equal and Clone give the deep comparison and deep copy used for change
// detection. Numbers compare by value regardless of their Go type.
package datapath
