// Package track discovers data dependencies by observing reads.
//
// A computed function never declares what it depends on. It receives a
// *View over the component data and reads through it; the View records the
// concrete path of every access:
//
//	res := track.Track(data, func(d *track.View) (any, error) {
//	    if d.Get("a").Truthy() {
//	        return d.Get("b").Float(), nil
//	    }
//	    return d.Get("c").Float(), nil
//	})
//	// with a == 0: res.Paths == [a c]
//
// The recorded set belongs to this evaluation only. A branch not taken is
// not a dependency, which is what keeps re-evaluation minimal for
// conditional computations.
//
// Slice helpers (ForEach, Filter, Map, Reduce, Includes, IndexOf, Find)
// read their elements through the same recorder.
//
// Returning a View, or taking Value() of a container, hands out live data.
// The container path is then recorded as a wildcard so that changes beneath
// it are still observed as changes of the result.
package track
