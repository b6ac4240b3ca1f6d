package datapath

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Path parsing errors.
var (
	ErrInvalidPath   = errors.New("invalid data path")
	ErrEmptyPath     = errors.New("empty data path")
	ErrWildcardWrite = errors.New("cannot write through a wildcard path")
)

// wildcardSuffix marks a path that covers itself and every descendant.
const wildcardSuffix = "**"

// Segment is one step of a Path: either a map key or a slice index.
type Segment struct {
	// Key is the map key. Empty for index segments.
	Key string

	// Index is the slice index. Only meaningful when IsIndex is true.
	Index int

	// IsIndex reports whether the segment was written as [n].
	IsIndex bool
}

// KeySegment returns a map key segment.
func KeySegment(key string) Segment {
	return Segment{Key: key}
}

// IndexSegment returns a slice index segment.
func IndexSegment(i int) Segment {
	return Segment{Index: i, IsIndex: true}
}

// String returns the segment as it appears inside a path.
func (s Segment) String() string {
	if s.IsIndex {
		return "[" + strconv.Itoa(s.Index) + "]"
	}
	return s.Key
}

// mapKey returns the key used when the segment addresses a map.
// Index segments address maps by their decimal form, so b[0] on a map reads "0".
func (s Segment) mapKey() string {
	if s.IsIndex {
		return strconv.Itoa(s.Index)
	}
	return s.Key
}

// Path locates a value inside nested data.
//
// The zero Path is the root. Paths are immutable; the derivation helpers
// (Child, At, Parent, Prefix) always return fresh values.
type Path struct {
	segs     []Segment
	wildcard bool
}

// Root returns the empty path.
func Root() Path {
	return Path{}
}

// New builds a path from segments.
func New(segs ...Segment) Path {
	return Path{segs: append([]Segment(nil), segs...)}
}

// Parse parses a dotted/bracketed path expression such as "a", "a.b",
// "a[0].c" or the wildcard form "a.**". Surrounding whitespace is ignored.
func Parse(input string) (Path, error) {
	s := strings.TrimSpace(input)
	if s == "" {
		return Path{}, ErrEmptyPath
	}
	if s == wildcardSuffix {
		return Path{wildcard: true}, nil
	}

	var p Path
	if strings.HasSuffix(s, "."+wildcardSuffix) {
		p.wildcard = true
		s = strings.TrimSuffix(s, "."+wildcardSuffix)
	}

	i := 0
	expectKey := true
	for i < len(s) {
		switch s[i] {
		case '[':
			end := strings.IndexByte(s[i:], ']')
			if end < 0 {
				return Path{}, fmt.Errorf("%w: unclosed bracket in %q", ErrInvalidPath, input)
			}
			raw := strings.TrimSpace(s[i+1 : i+end])
			n, err := strconv.Atoi(raw)
			if err != nil || n < 0 {
				return Path{}, fmt.Errorf("%w: bad index %q in %q", ErrInvalidPath, raw, input)
			}
			p.segs = append(p.segs, IndexSegment(n))
			i += end + 1
			expectKey = false
		case '.':
			if expectKey {
				return Path{}, fmt.Errorf("%w: empty key in %q", ErrInvalidPath, input)
			}
			i++
			expectKey = true
			if i == len(s) {
				return Path{}, fmt.Errorf("%w: trailing dot in %q", ErrInvalidPath, input)
			}
		case ']':
			return Path{}, fmt.Errorf("%w: unexpected ']' in %q", ErrInvalidPath, input)
		default:
			if !expectKey {
				return Path{}, fmt.Errorf("%w: missing '.' before key in %q", ErrInvalidPath, input)
			}
			end := strings.IndexAny(s[i:], ".[]")
			if end < 0 {
				end = len(s) - i
			}
			key := strings.TrimSpace(s[i : i+end])
			if key == "" || key == wildcardSuffix {
				return Path{}, fmt.Errorf("%w: bad key in %q", ErrInvalidPath, input)
			}
			p.segs = append(p.segs, KeySegment(key))
			i += end
			expectKey = false
		}
	}
	return p, nil
}

// MustParse is like Parse but panics on error. Intended for literals.
func MustParse(input string) Path {
	p, err := Parse(input)
	if err != nil {
		panic(err)
	}
	return p
}

// SplitKeys splits a comma separated watch key such as " a.d  ,b[0] " into
// its paths, in declaration order.
func SplitKeys(key string) ([]Path, error) {
	parts := strings.Split(key, ",")
	paths := make([]Path, 0, len(parts))
	for _, part := range parts {
		p, err := Parse(part)
		if err != nil {
			return nil, fmt.Errorf("watch key %q: %w", key, err)
		}
		paths = append(paths, p)
	}
	return paths, nil
}

// Segments returns a copy of the path segments.
func (p Path) Segments() []Segment {
	return append([]Segment(nil), p.segs...)
}

// Len returns the number of segments.
func (p Path) Len() int {
	return len(p.segs)
}

// IsRoot reports whether p has no segments and is not a wildcard.
func (p Path) IsRoot() bool {
	return len(p.segs) == 0 && !p.wildcard
}

// Wildcard reports whether p covers every descendant of its prefix.
func (p Path) Wildcard() bool {
	return p.wildcard
}

// Prefix returns p without its wildcard marker.
func (p Path) Prefix() Path {
	return Path{segs: p.segs}
}

// AsWildcard returns p with the wildcard marker set.
func (p Path) AsWildcard() Path {
	return Path{segs: p.segs, wildcard: true}
}

// Child returns p extended by a key segment.
func (p Path) Child(key string) Path {
	return p.extend(KeySegment(key))
}

// At returns p extended by an index segment.
func (p Path) At(i int) Path {
	return p.extend(IndexSegment(i))
}

// Join returns p extended by all segments of q. The wildcard marker of q is kept.
func (p Path) Join(q Path) Path {
	segs := make([]Segment, 0, len(p.segs)+len(q.segs))
	segs = append(segs, p.segs...)
	segs = append(segs, q.segs...)
	return Path{segs: segs, wildcard: q.wildcard}
}

func (p Path) extend(s Segment) Path {
	segs := make([]Segment, len(p.segs), len(p.segs)+1)
	copy(segs, p.segs)
	return Path{segs: append(segs, s)}
}

// Parent returns p without its last segment. The parent of the root is the root.
func (p Path) Parent() Path {
	if len(p.segs) == 0 {
		return Path{}
	}
	return Path{segs: p.segs[:len(p.segs)-1 : len(p.segs)-1]}
}

// Last returns the final segment and false for the root.
func (p Path) Last() (Segment, bool) {
	if len(p.segs) == 0 {
		return Segment{}, false
	}
	return p.segs[len(p.segs)-1], true
}

// String returns the canonical form, e.g. "a.b[0].c" or "a.**".
func (p Path) String() string {
	var b strings.Builder
	for i, s := range p.segs {
		if !s.IsIndex && i > 0 {
			b.WriteByte('.')
		}
		b.WriteString(s.String())
	}
	if p.wildcard {
		if len(p.segs) > 0 {
			b.WriteByte('.')
		}
		b.WriteString(wildcardSuffix)
	}
	return b.String()
}

// Equal reports whether p and q have the same segments and wildcard marker.
func (p Path) Equal(q Path) bool {
	return p.wildcard == q.wildcard && sameSegments(p.segs, q.segs)
}

// HasPrefix reports whether q's segments are a prefix of (or equal to) p's.
// Wildcard markers are ignored.
func (p Path) HasPrefix(q Path) bool {
	if len(q.segs) > len(p.segs) {
		return false
	}
	return sameSegments(p.segs[:len(q.segs)], q.segs)
}

// IsAncestorOf reports whether p is a strict prefix of q.
func (p Path) IsAncestorOf(q Path) bool {
	return len(p.segs) < len(q.segs) && q.HasPrefix(p)
}

// Matches reports whether a mutation at candidate must be considered by
// something declared on declared. It holds when the two paths are equal,
// when declared is a wildcard whose prefix contains candidate, or when
// candidate is an ancestor of declared (replacing a container touches all
// paths nested under it).
func Matches(candidate, declared Path) bool {
	c := candidate.Prefix()
	if declared.wildcard {
		prefix := declared.Prefix()
		return c.HasPrefix(prefix) || c.IsAncestorOf(prefix)
	}
	return sameSegments(c.segs, declared.segs) || c.IsAncestorOf(declared)
}

// MatchesAny reports whether candidate matches at least one declared path.
func MatchesAny(candidate Path, declared []Path) bool {
	for _, d := range declared {
		if Matches(candidate, d) {
			return true
		}
	}
	return false
}

func sameSegments(a, b []Segment) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
