package manifest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/vango-dev/derive/internal/errors"
	"github.com/vango-dev/derive/pkg/datapath"
	"github.com/vango-dev/derive/pkg/derive"
)

// Scenario is a scripted run of one component: a sequence of steps, each
// applying an action and checking the outcome.
//
//	name: nested computed name
//	component: card.yaml
//	steps:
//	  - attach: true
//	    expect:
//	      c[1].f: 3
//	  - set:
//	      a.d: 10
//	    expect:
//	      c[1].f: 12
//	    expectEvaluated: ["c[1].f"]
type Scenario struct {
	Name string `yaml:"name"`

	// Component is a manifest path relative to the scenario file.
	Component string `yaml:"component"`

	// Definition is an inline manifest, used when Component is empty.
	Definition *Document `yaml:"definition"`

	Options ScenarioOptions `yaml:"options"`
	Steps   []Step          `yaml:"steps"`

	file string
}

// ScenarioOptions override engine bounds for one scenario.
type ScenarioOptions struct {
	MaxRecompute int `yaml:"maxRecompute"`
	MaxBatches   int `yaml:"maxBatches"`
}

// Step is one scenario action and its expectations. Exactly one of Attach,
// Set, Recompute and Detach is set.
type Step struct {
	Name      string         `yaml:"name"`
	Attach    bool           `yaml:"attach"`
	Set       map[string]any `yaml:"set"`
	Recompute bool           `yaml:"recompute"`
	Detach    bool           `yaml:"detach"`

	// Expect maps data paths to their expected values after the step.
	Expect map[string]any `yaml:"expect"`

	// ExpectFired is the exact list of watch keys fired, when given.
	ExpectFired []string `yaml:"expectFired"`

	// ExpectEvaluated is the exact list of computed properties evaluated,
	// when given.
	ExpectEvaluated []string `yaml:"expectEvaluated"`

	// ExpectErrors lists the error codes the step must produce. A step
	// without it must produce none.
	ExpectErrors []string `yaml:"expectErrors"`

	Pos Pos `yaml:"-"`
}

// UnmarshalYAML records the step position.
func (s *Step) UnmarshalYAML(node *yaml.Node) error {
	type plain Step
	if err := node.Decode((*plain)(s)); err != nil {
		return err
	}
	s.Pos = Pos{node.Line, node.Column}
	return nil
}

// Label returns the step name, or a description of its action.
func (s *Step) Label(i int) string {
	if s.Name != "" {
		return s.Name
	}
	switch {
	case s.Attach:
		return fmt.Sprintf("step %d: attach", i+1)
	case s.Recompute:
		return fmt.Sprintf("step %d: recompute", i+1)
	case s.Detach:
		return fmt.Sprintf("step %d: detach", i+1)
	}
	return fmt.Sprintf("step %d: set %s", i+1, strings.Join(sortedKeys(s.Set), ", "))
}

func (s *Step) actions() int {
	n := 0
	for _, on := range []bool{s.Attach, s.Set != nil, s.Recompute, s.Detach} {
		if on {
			n++
		}
	}
	return n
}

// LoadScenario reads a scenario file.
func LoadScenario(path string) (*Scenario, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, errors.New(errors.CodeManifestRead).WithSubject(path).Wrap(err)
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, errors.New(errors.CodeManifestRead).WithSubject(path).Wrap(err)
	}
	return ParseScenario(data, abs)
}

// ParseScenario decodes and validates scenario bytes. file locates errors
// and the component manifest; it may be empty for inline definitions.
func ParseScenario(data []byte, file string) (*Scenario, error) {
	s := &Scenario{file: file}
	if err := decodeDocument(data, file, s); err != nil {
		return nil, err
	}
	if s.Component == "" && s.Definition == nil {
		return nil, scenarioInvalid(file, Pos{1, 1}, s.Name, "scenario needs a component path or an inline definition")
	}
	if len(s.Steps) == 0 {
		return nil, scenarioInvalid(file, Pos{1, 1}, s.Name, "scenario has no steps")
	}
	for i := range s.Steps {
		st := &s.Steps[i]
		if st.actions() != 1 {
			return nil, scenarioInvalid(file, st.Pos, st.Label(i), "a step needs exactly one of attach, set, recompute, detach")
		}
		for _, code := range st.ExpectErrors {
			if _, ok := errors.GetTemplate(code); !ok {
				return nil, scenarioInvalid(file, st.Pos, st.Label(i), fmt.Sprintf("unknown error code %q", code))
			}
		}
	}
	if s.Name == "" && file != "" {
		s.Name = strings.TrimSuffix(filepath.Base(file), filepath.Ext(file))
	}
	return s, nil
}

// File returns the scenario file path, if any.
func (s *Scenario) File() string {
	return s.file
}

// definition builds the scenario's component definition.
func (s *Scenario) definition() (*derive.Definition, error) {
	if s.Component != "" {
		path := s.Component
		if !filepath.IsAbs(path) && s.file != "" {
			path = filepath.Join(filepath.Dir(s.file), path)
		}
		return Load(path)
	}
	l := newLoader()
	return l.build(s.Definition, s.file)
}

// StepResult is the outcome of one step.
type StepResult struct {
	Name      string
	Pos       Pos
	Reports   []*derive.Report
	Fired     []string
	Evaluated []string
	Errors    []error

	// Failures describes each unmet expectation.
	Failures []string
}

// Passed reports whether every expectation held.
func (r *StepResult) Passed() bool {
	return len(r.Failures) == 0
}

// Result is the outcome of a scenario run.
type Result struct {
	Scenario string
	File     string
	Steps    []StepResult
}

// Passed reports whether every step passed.
func (r *Result) Passed() bool {
	for i := range r.Steps {
		if !r.Steps[i].Passed() {
			return false
		}
	}
	return true
}

// Err returns an expectation error for the first failing step, or nil.
func (r *Result) Err() error {
	for i := range r.Steps {
		st := &r.Steps[i]
		if st.Passed() {
			continue
		}
		de := errors.New(errors.CodeExpectation).
			WithSubject(st.Name).
			WithDetail(strings.Join(st.Failures, "; "))
		if r.File != "" && st.Pos.Line > 0 {
			de.WithLocation(r.File, st.Pos.Line, st.Pos.Column)
		}
		return de
	}
	return nil
}

// collector gathers the reports of the passes run during one step.
type collector struct {
	reports []*derive.Report
}

func (c *collector) BeginSettle(context.Context, derive.PassInfo) func(*derive.Report) {
	return func(r *derive.Report) {
		c.reports = append(c.reports, r)
	}
}

// Run executes every step of s against a fresh component. opts add
// observers, a logger or default bounds; bounds set in the scenario's
// options take precedence. The returned error reports setup failures; unmet expectations are
// recorded in the result.
func Run(ctx context.Context, s *Scenario, opts ...derive.Option) (*Result, error) {
	def, err := s.definition()
	if err != nil {
		return nil, err
	}

	col := &collector{}
	all := append([]derive.Option{derive.WithContext(ctx), derive.WithObserver(col)}, opts...)
	if s.Options.MaxRecompute > 0 {
		all = append(all, derive.WithMaxRecompute(s.Options.MaxRecompute))
	}
	if s.Options.MaxBatches > 0 {
		all = append(all, derive.WithMaxBatches(s.Options.MaxBatches))
	}

	c, err := derive.New(def, all...)
	if err != nil {
		return nil, errors.New(errors.CodeManifestInvalid).WithSubject(s.Component).Wrap(err)
	}

	res := &Result{Scenario: s.Name, File: s.file}
	for i := range s.Steps {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		st := &s.Steps[i]
		col.reports = nil

		var runErr error
		switch {
		case st.Attach:
			runErr = c.Attached()
		case st.Recompute:
			runErr = c.Recompute()
		case st.Detach:
			runErr = c.Detached()
		default:
			runErr = c.SetData(st.Set)
		}

		sr := StepResult{Name: st.Label(i), Pos: st.Pos, Reports: col.reports}
		for _, r := range col.reports {
			sr.Fired = append(sr.Fired, r.Fired...)
			sr.Evaluated = append(sr.Evaluated, r.Evaluated...)
			sr.Errors = append(sr.Errors, r.Errors...)
		}
		for _, e := range flattenErrors(runErr) {
			if !slices.Contains(sr.Errors, e) {
				sr.Errors = append(sr.Errors, e)
			}
		}
		sr.Failures = check(c, st, &sr)
		res.Steps = append(res.Steps, sr)
	}
	return res, nil
}

// check compares the step outcome with its expectations.
func check(c *derive.Component, st *Step, sr *StepResult) []string {
	var failures []string

	for _, path := range sortedKeys(st.Expect) {
		want := st.Expect[path]
		got, _ := c.Get(path)
		if !datapath.Equal(got, want) {
			failures = append(failures, fmt.Sprintf("%s = %v, want %v", path, got, want))
		}
	}

	if st.ExpectFired != nil && !slices.Equal(sr.Fired, st.ExpectFired) {
		failures = append(failures, fmt.Sprintf("fired %q, want %q", sr.Fired, st.ExpectFired))
	}
	if st.ExpectEvaluated != nil && !slices.Equal(sr.Evaluated, st.ExpectEvaluated) {
		failures = append(failures, fmt.Sprintf("evaluated %q, want %q", sr.Evaluated, st.ExpectEvaluated))
	}

	codes := ErrorCodes(sr.Errors)
	want := append([]string(nil), st.ExpectErrors...)
	sort.Strings(want)
	if !slices.Equal(codes, want) {
		for _, e := range sr.Errors {
			failures = append(failures, "error: "+e.Error())
		}
		if len(sr.Errors) == 0 {
			failures = append(failures, fmt.Sprintf("errors %q, want %q", codes, want))
		}
	}
	return failures
}

// ErrorCodes maps runtime errors to their codes, sorted.
func ErrorCodes(errs []error) []string {
	codes := make([]string, 0, len(errs))
	for _, e := range errs {
		codes = append(codes, errors.FromRuntime(e).Code)
	}
	sort.Strings(codes)
	return codes
}

// flattenErrors unpacks errors.Join trees.
func flattenErrors(err error) []error {
	if err == nil {
		return nil
	}
	if j, ok := err.(interface{ Unwrap() []error }); ok {
		var out []error
		for _, e := range j.Unwrap() {
			out = append(out, flattenErrors(e)...)
		}
		return out
	}
	return []error{err}
}

func scenarioInvalid(file string, pos Pos, subject, detail string) error {
	de := errors.New(errors.CodeScenarioInvalid).WithSubject(subject).WithDetail(detail)
	if file != "" {
		de.WithLocation(file, pos.Line, pos.Column)
	}
	return de
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
