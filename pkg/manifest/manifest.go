package manifest

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/vango-dev/derive/internal/errors"
	"github.com/vango-dev/derive/pkg/datapath"
	"github.com/vango-dev/derive/pkg/derive"
)

// Document is the YAML form of a component definition.
type Document struct {
	Name       string         `yaml:"name"`
	Data       map[string]any `yaml:"data"`
	Properties map[string]any `yaml:"properties"`
	Computed   []ComputedSpec `yaml:"computed"`
	Watch      []WatchSpec    `yaml:"watch"`
	Behaviors  []BehaviorRef  `yaml:"behaviors"`
	Attached   *Action        `yaml:"attached"`
	Detached   *Action        `yaml:"detached"`
}

// Pos is a position in a YAML file.
type Pos struct {
	Line   int
	Column int
}

// ComputedSpec declares a computed property as an expression.
//
//	computed:
//	  - name: c[1].f
//	    expr: a.d + b[0]
type ComputedSpec struct {
	Name string `yaml:"name"`
	Expr string `yaml:"expr"`

	Pos     Pos `yaml:"-"`
	ExprPos Pos `yaml:"-"`
}

// UnmarshalYAML records the entry and expression positions.
func (s *ComputedSpec) UnmarshalYAML(node *yaml.Node) error {
	type plain ComputedSpec
	if err := node.Decode((*plain)(s)); err != nil {
		return err
	}
	s.Pos = Pos{node.Line, node.Column}
	s.ExprPos = valuePos(node, "expr")
	return nil
}

// WatchSpec declares a watcher whose callback applies assignments.
//
//	watch:
//	  - keys: a, b
//	    set:
//	      sum: a + b
type WatchSpec struct {
	Keys string       `yaml:"keys"`
	Set  []Assignment `yaml:"-"`

	Pos Pos `yaml:"-"`
}

// UnmarshalYAML decodes keys and the ordered set mapping.
func (s *WatchSpec) UnmarshalYAML(node *yaml.Node) error {
	var raw struct {
		Keys string    `yaml:"keys"`
		Set  yaml.Node `yaml:"set"`
	}
	if err := node.Decode(&raw); err != nil {
		return err
	}
	set, err := decodeAssignments(&raw.Set)
	if err != nil {
		return err
	}
	*s = WatchSpec{Keys: raw.Keys, Set: set, Pos: Pos{node.Line, node.Column}}
	return nil
}

// Action is a lifetime hook that applies assignments.
//
//	attached:
//	  set:
//	    ready: true
type Action struct {
	Set []Assignment `yaml:"-"`
	Pos Pos          `yaml:"-"`
}

// UnmarshalYAML decodes the ordered set mapping.
func (a *Action) UnmarshalYAML(node *yaml.Node) error {
	var raw struct {
		Set yaml.Node `yaml:"set"`
	}
	if err := node.Decode(&raw); err != nil {
		return err
	}
	set, err := decodeAssignments(&raw.Set)
	if err != nil {
		return err
	}
	*a = Action{Set: set, Pos: Pos{node.Line, node.Column}}
	return nil
}

// Assignment sets Path to the value of Expr.
type Assignment struct {
	Path string
	Expr string
	Pos  Pos
}

func decodeAssignments(node *yaml.Node) ([]Assignment, error) {
	if node.Kind == 0 {
		return nil, nil
	}
	if node.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("line %d: set must be a mapping of path to expression", node.Line)
	}
	out := make([]Assignment, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		k, v := node.Content[i], node.Content[i+1]
		if v.Kind != yaml.ScalarNode {
			return nil, fmt.Errorf("line %d: set %q must be an expression", v.Line, k.Value)
		}
		out = append(out, Assignment{Path: k.Value, Expr: v.Value, Pos: Pos{v.Line, v.Column}})
	}
	return out, nil
}

// BehaviorRef is a behavior given by relative file path or inline.
type BehaviorRef struct {
	Path   string
	Inline *Document
	Pos    Pos
}

// UnmarshalYAML accepts a scalar path or an inline document.
func (b *BehaviorRef) UnmarshalYAML(node *yaml.Node) error {
	b.Pos = Pos{node.Line, node.Column}
	if node.Kind == yaml.ScalarNode {
		b.Path = node.Value
		return nil
	}
	b.Inline = &Document{}
	return node.Decode(b.Inline)
}

// valuePos returns the position of the value under key in a mapping node.
func valuePos(node *yaml.Node, key string) Pos {
	for i := 0; i+1 < len(node.Content); i += 2 {
		if node.Content[i].Value == key {
			v := node.Content[i+1]
			return Pos{v.Line, v.Column}
		}
	}
	return Pos{node.Line, node.Column}
}

var yamlLine = regexp.MustCompile(`line (\d+)`)

// decodeDocument strictly decodes YAML into out, mapping failures to
// CodeManifestSyntax with the reported line.
func decodeDocument(data []byte, file string, out any) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(out); err != nil {
		de := errors.New(errors.CodeManifestSyntax).Wrap(err)
		if m := yamlLine.FindStringSubmatch(err.Error()); m != nil {
			line, _ := strconv.Atoi(m[1])
			de.WithLocation(file, line, 0)
		} else {
			de.Location = &errors.Location{File: file}
		}
		return de
	}
	return nil
}

// Load reads a manifest file and builds its definition. Behaviors given by
// path are resolved relative to the including file.
func Load(path string) (*derive.Definition, error) {
	l := newLoader()
	return l.load(path)
}

// Parse builds a definition from manifest bytes. file is used for error
// locations and to resolve behavior paths; it may be empty.
func Parse(data []byte, file string) (*derive.Definition, error) {
	l := newLoader()
	var doc Document
	if err := decodeDocument(data, file, &doc); err != nil {
		return nil, err
	}
	if file != "" {
		if abs, err := filepath.Abs(file); err == nil {
			l.visiting[abs] = true
			file = abs
		}
	}
	return l.build(&doc, file)
}

// loader builds definitions, sharing behavior files loaded more than once
// and rejecting behavior files that include themselves.
type loader struct {
	cache    map[string]*derive.Definition
	visiting map[string]bool
}

func newLoader() *loader {
	return &loader{
		cache:    make(map[string]*derive.Definition),
		visiting: make(map[string]bool),
	}
}

func (l *loader) load(path string) (*derive.Definition, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, errors.New(errors.CodeManifestRead).WithSubject(path).Wrap(err)
	}
	if def, ok := l.cache[abs]; ok {
		return def, nil
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, errors.New(errors.CodeManifestRead).WithSubject(path).Wrap(err)
	}

	var doc Document
	if err := decodeDocument(data, abs, &doc); err != nil {
		return nil, err
	}

	l.visiting[abs] = true
	defer delete(l.visiting, abs)

	def, err := l.build(&doc, abs)
	if err != nil {
		return nil, err
	}
	l.cache[abs] = def
	return def, nil
}

// build converts a decoded document. file is the absolute path of the
// document's file, or empty.
func (l *loader) build(doc *Document, file string) (*derive.Definition, error) {
	def := &derive.Definition{
		Name:       doc.Name,
		Data:       doc.Data,
		Properties: doc.Properties,
	}
	if def.Name == "" && file != "" {
		def.Name = strings.TrimSuffix(filepath.Base(file), filepath.Ext(file))
	}

	for _, ref := range doc.Behaviors {
		b, err := l.behavior(ref, file)
		if err != nil {
			return nil, err
		}
		def.Behaviors = append(def.Behaviors, b)
	}

	for _, spec := range doc.Computed {
		c, err := buildComputed(spec, file)
		if err != nil {
			return nil, err
		}
		def.Computed = append(def.Computed, c)
	}

	for _, spec := range doc.Watch {
		w, err := buildWatcher(spec, file)
		if err != nil {
			return nil, err
		}
		def.Watch = append(def.Watch, w)
	}

	if doc.Attached != nil {
		fn, err := buildAction(doc.Attached, file)
		if err != nil {
			return nil, err
		}
		def.Attached = fn
	}
	if doc.Detached != nil {
		fn, err := buildAction(doc.Detached, file)
		if err != nil {
			return nil, err
		}
		def.Detached = fn
	}
	return def, nil
}

func (l *loader) behavior(ref BehaviorRef, file string) (*derive.Definition, error) {
	if ref.Inline != nil {
		return l.build(ref.Inline, file)
	}
	if ref.Path == "" {
		return nil, invalid(file, ref.Pos, "behavior", "behavior needs a file path or an inline definition")
	}

	path := ref.Path
	if !filepath.IsAbs(path) {
		base := "."
		if file != "" {
			base = filepath.Dir(file)
		}
		path = filepath.Join(base, path)
	}
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	if l.visiting[path] {
		return nil, errors.New(errors.CodeBehaviorCycle).
			WithSubject(ref.Path).
			WithLocation(file, ref.Pos.Line, ref.Pos.Column)
	}
	return l.load(path)
}

func buildComputed(spec ComputedSpec, file string) (derive.Computed, error) {
	if spec.Name == "" {
		return derive.Computed{}, invalid(file, spec.Pos, "computed", "computed entry needs a name")
	}
	p, err := datapath.Parse(spec.Name)
	if err != nil || p.Wildcard() {
		return derive.Computed{}, invalid(file, spec.Pos, spec.Name, fmt.Sprintf("computed name %q is not a writable data path", spec.Name))
	}
	if spec.Expr == "" {
		return derive.Computed{}, invalid(file, spec.Pos, spec.Name, "computed entry needs an expr")
	}
	e, err := compileAt(spec.Expr, file, spec.ExprPos, spec.Name)
	if err != nil {
		return derive.Computed{}, err
	}
	return derive.Computed{Name: spec.Name, Fn: e.Compute()}, nil
}

func buildWatcher(spec WatchSpec, file string) (derive.Watcher, error) {
	if _, err := datapath.SplitKeys(spec.Keys); err != nil {
		return derive.Watcher{}, invalid(file, spec.Pos, spec.Keys, err.Error())
	}
	apply, err := compileAssignments(spec.Set, file)
	if err != nil {
		return derive.Watcher{}, err
	}
	return derive.Watcher{
		Keys: spec.Keys,
		Fn: func(c *derive.Component, _ []any) error {
			return apply(c)
		},
	}, nil
}

func buildAction(a *Action, file string) (derive.LifetimeFunc, error) {
	apply, err := compileAssignments(a.Set, file)
	if err != nil {
		return nil, err
	}
	return apply, nil
}

// compileAssignments returns a function that evaluates every assignment
// against the current data and applies the results as one SetData call.
func compileAssignments(set []Assignment, file string) (func(*derive.Component) error, error) {
	type compiled struct {
		path string
		expr *Expression
	}
	steps := make([]compiled, 0, len(set))
	for _, a := range set {
		if p, err := datapath.Parse(a.Path); err != nil || p.Wildcard() {
			return nil, invalid(file, a.Pos, a.Path, fmt.Sprintf("set target %q is not a writable data path", a.Path))
		}
		e, err := compileAt(a.Expr, file, a.Pos, a.Path)
		if err != nil {
			return nil, err
		}
		steps = append(steps, compiled{a.Path, e})
	}

	return func(c *derive.Component) error {
		if len(steps) == 0 {
			return nil
		}
		patch := make(map[string]any, len(steps))
		for _, s := range steps {
			v, err := s.expr.EvalData(c.Data())
			if err != nil {
				return errors.New(errors.CodeExpressionEval).
					WithSubject(s.path).
					WithDetail("Expression: " + s.expr.Source()).
					Wrap(err)
			}
			patch[s.path] = v
		}
		return c.SetData(patch)
	}, nil
}

// compileAt compiles src and positions syntax errors inside the YAML file.
func compileAt(src, file string, pos Pos, subject string) (*Expression, error) {
	e, err := CompileExpression(src)
	if err == nil {
		return e, nil
	}
	de := errors.New(errors.CodeExpressionSyntax).
		WithSubject(subject).
		Wrap(fmt.Errorf("%s", exprMessage(err)))
	line, col := pos.Line, pos.Column
	if l, c, ok := exprPosition(err); ok && l == 1 {
		col += c
	}
	if file != "" && line > 0 {
		de.WithLocation(file, line, col)
	}
	return nil, de
}

func invalid(file string, pos Pos, subject, detail string) error {
	de := errors.New(errors.CodeManifestInvalid).WithSubject(subject).WithDetail(detail)
	if file != "" && pos.Line > 0 {
		de.WithLocation(file, pos.Line, pos.Column)
	}
	return de
}
