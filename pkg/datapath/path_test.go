package datapath

import (
	"errors"
	"testing"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		want     string
		segs     int
		wildcard bool
	}{
		{"single key", "a", "a", 1, false},
		{"nested key", "a.b", "a.b", 2, false},
		{"index", "b[0]", "b[0]", 2, false},
		{"mixed", "c[1].f", "c[1].f", 3, false},
		{"deep", "a.b.c", "a.b.c", 3, false},
		{"wildcard", "obj.**", "obj.**", 1, true},
		{"root wildcard", "**", "**", 0, true},
		{"whitespace", "  a.d  ", "a.d", 2, false},
		{"nested index", "m[1][2]", "m[1][2]", 3, false},
		{"index wildcard", "list[3].**", "list[3].**", 2, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := Parse(tt.input)
			if err != nil {
				t.Fatalf("Parse(%q) error: %v", tt.input, err)
			}
			if p.String() != tt.want {
				t.Errorf("String() = %q, want %q", p.String(), tt.want)
			}
			if p.Len() != tt.segs {
				t.Errorf("Len() = %d, want %d", p.Len(), tt.segs)
			}
			if p.Wildcard() != tt.wildcard {
				t.Errorf("Wildcard() = %v, want %v", p.Wildcard(), tt.wildcard)
			}
		})
	}
}

func TestParseErrors(t *testing.T) {
	inputs := []string{"", "   ", "a..b", ".a", "a.", "a[", "a[x]", "a[-1]", "a]", "a[0]b", "**.a"}
	for _, in := range inputs {
		t.Run(in, func(t *testing.T) {
			_, err := Parse(in)
			if err == nil {
				t.Fatalf("Parse(%q) expected error", in)
			}
			if !errors.Is(err, ErrInvalidPath) && !errors.Is(err, ErrEmptyPath) {
				t.Errorf("Parse(%q) error = %v, want ErrInvalidPath or ErrEmptyPath", in, err)
			}
		})
	}
}

func TestSplitKeys(t *testing.T) {
	paths, err := SplitKeys(" a.d  ,b[0] ")
	if err != nil {
		t.Fatalf("SplitKeys error: %v", err)
	}
	if len(paths) != 2 {
		t.Fatalf("expected 2 paths, got %d", len(paths))
	}
	if paths[0].String() != "a.d" || paths[1].String() != "b[0]" {
		t.Errorf("got %s, %s", paths[0], paths[1])
	}

	if _, err := SplitKeys("a,,b"); err == nil {
		t.Error("expected error for empty key element")
	}
}

func TestMatches(t *testing.T) {
	tests := []struct {
		candidate string
		declared  string
		want      bool
	}{
		{"a", "a", true},
		{"a", "a.d", true},
		{"a.d", "a", false},
		{"a.e", "a.d", false},
		{"a.d", "a.**", true},
		{"a", "a.**", true},
		{"a.d.e", "a.**", true},
		{"b", "a.**", false},
		{"b[2]", "b[0]", false},
		{"b", "b[0]", true},
		{"b[0]", "b[0]", true},
		{"c[1]", "c[1].f", true},
		{"c", "c[1].f", true},
		{"c[0]", "c[1].f", false},
		{"obj", "obj.b.**", true},
		{"x.y", "**", true},
	}

	for _, tt := range tests {
		t.Run(tt.candidate+"~"+tt.declared, func(t *testing.T) {
			got := Matches(MustParse(tt.candidate), MustParse(tt.declared))
			if got != tt.want {
				t.Errorf("Matches(%s, %s) = %v, want %v", tt.candidate, tt.declared, got, tt.want)
			}
		})
	}
}

func TestPathRelations(t *testing.T) {
	a := MustParse("a")
	ad := MustParse("a.d")

	if !a.IsAncestorOf(ad) {
		t.Error("a should be an ancestor of a.d")
	}
	if ad.IsAncestorOf(a) {
		t.Error("a.d should not be an ancestor of a")
	}
	if a.IsAncestorOf(a) {
		t.Error("a path is not its own strict ancestor")
	}
	if !ad.Parent().Equal(a) {
		t.Errorf("Parent() = %s, want a", ad.Parent())
	}
	if got := a.Child("d").At(2).String(); got != "a.d[2]" {
		t.Errorf("Child/At = %q", got)
	}
	if got := a.AsWildcard().String(); got != "a.**" {
		t.Errorf("AsWildcard() = %q", got)
	}
	if a.AsWildcard().Equal(a) {
		t.Error("wildcard and plain paths must differ")
	}
	if !a.AsWildcard().Prefix().Equal(a) {
		t.Error("Prefix() should drop the wildcard marker")
	}
	if !Root().IsRoot() {
		t.Error("Root() should be the root")
	}
}

func TestPathDerivationDoesNotAlias(t *testing.T) {
	base := MustParse("a.b")
	x := base.Child("x")
	y := base.Child("y")
	if x.String() != "a.b.x" || y.String() != "a.b.y" {
		t.Errorf("derived paths aliased: %s, %s", x, y)
	}
	p := MustParse("a.b.c").Parent()
	q := p.Child("z")
	if p.String() != "a.b" || q.String() != "a.b.z" {
		t.Errorf("parent aliased: %s, %s", p, q)
	}
}
