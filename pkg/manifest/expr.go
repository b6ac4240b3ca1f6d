package manifest

import (
	stderrors "errors"
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/ast"
	"github.com/expr-lang/expr/file"
	"github.com/expr-lang/expr/parser"
	"github.com/expr-lang/expr/vm"

	"github.com/vango-dev/derive/pkg/datapath"
	"github.com/vango-dev/derive/pkg/track"
)

// Reserved names injected into every expression environment.
const (
	readFunc   = "__read"
	truthyFunc = "__truthy"
)

// maxExpressionNodes bounds the size of a single expression.
const maxExpressionNodes = 10000

// Expression is a compiled expr-lang expression whose data reads go through
// a tracking view. Identifiers and constant member chains such as a.d or
// b[0] become path reads, so a computed expression depends on exactly the
// paths it touches.
type Expression struct {
	source  string
	program *vm.Program
}

// compileEnv declares the shape of the runtime environment for the checker.
var compileEnv = map[string]any{
	readFunc:   func(string) any { return nil },
	truthyFunc: func(any) bool { return false },
}

// CompileExpression compiles src. The returned error is a *file.Error when
// expr reports a position.
func CompileExpression(src string) (*Expression, error) {
	tree, err := parser.Parse(src)
	if err != nil {
		return nil, err
	}
	rw := &pathRewriter{
		locals:    declaredNames(tree.Node),
		generated: make(map[ast.Node]ast.Node),
	}
	program, err := expr.Compile(src,
		expr.Env(compileEnv),
		expr.Patch(rw),
		expr.MaxNodes(maxExpressionNodes),
	)
	if err != nil {
		return nil, err
	}
	return &Expression{source: src, program: program}, nil
}

// Source returns the expression text.
func (e *Expression) Source() string {
	return e.source
}

// Eval runs the expression against a view. Reads are recorded on the view's
// recorder.
func (e *Expression) Eval(v *track.View) (any, error) {
	env := map[string]any{
		readFunc: func(p string) any {
			return v.Path(p).Value()
		},
		truthyFunc: truthy,
	}
	return expr.Run(e.program, env)
}

// Compute adapts the expression to a computed function.
func (e *Expression) Compute() track.Func {
	return func(v *track.View) (any, error) {
		return e.Eval(v)
	}
}

// EvalData evaluates the expression against data without tracking.
func (e *Expression) EvalData(data map[string]any) (any, error) {
	return e.Eval(track.Wrap(data, nil))
}

// truthy applies loose truthiness so conditions accept any data value.
func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	}
	if f, ok := datapath.ToFloat(v); ok {
		return f != 0 && f == f
	}
	return true
}

// declaredNames collects the names bound by let declarations.
func declaredNames(root ast.Node) map[string]bool {
	c := &letCollector{names: make(map[string]bool)}
	ast.Walk(&root, c)
	return c.names
}

type letCollector struct {
	names map[string]bool
}

func (c *letCollector) Visit(node *ast.Node) {
	if n, ok := (*node).(*ast.VariableDeclaratorNode); ok {
		c.names[n.Name] = true
	}
}

// pathRewriter turns data references into __read calls. The walk is post
// order, so a member node sees its operand already rewritten and can fold
// a constant property into the path.
type pathRewriter struct {
	locals map[string]bool

	// generated maps rewritten nodes to their originals, so a callee that
	// was rewritten can be restored.
	generated map[ast.Node]ast.Node
}

func (r *pathRewriter) Visit(node *ast.Node) {
	switch n := (*node).(type) {
	case *ast.IdentifierNode:
		if r.locals[n.Value] || n.Value == readFunc || n.Value == truthyFunc || n.Value == "" || n.Value[0] == '$' {
			return
		}
		p, err := datapath.Parse(n.Value)
		if err != nil || p.Len() != 1 {
			return
		}
		r.replace(node, p)

	case *ast.MemberNode:
		if n.Method {
			return
		}
		base, ok := r.readPath(n.Node)
		if !ok {
			return
		}
		var p datapath.Path
		switch prop := n.Property.(type) {
		case *ast.StringNode:
			p = base.Child(prop.Value)
			if q, err := datapath.Parse(p.String()); err != nil || !q.Equal(p) {
				return
			}
		case *ast.IntegerNode:
			if prop.Value < 0 {
				return
			}
			p = base.At(prop.Value)
		default:
			return
		}
		r.replace(node, p)

	case *ast.CallNode:
		if orig, ok := r.generated[n.Callee]; ok {
			n.Callee = orig
		}

	case *ast.ConditionalNode:
		n.Cond = truthyCall(n.Cond)

	case *ast.BinaryNode:
		switch n.Operator {
		case "&&", "||", "and", "or":
			n.Left = truthyCall(n.Left)
			n.Right = truthyCall(n.Right)
		}

	case *ast.UnaryNode:
		switch n.Operator {
		case "!", "not":
			n.Node = truthyCall(n.Node)
		}
	}
}

// readPath returns the path of a node produced by replace.
func (r *pathRewriter) readPath(node ast.Node) (datapath.Path, bool) {
	if _, ok := r.generated[node]; !ok {
		return datapath.Path{}, false
	}
	call := node.(*ast.CallNode)
	arg, ok := call.Arguments[0].(*ast.StringNode)
	if !ok {
		return datapath.Path{}, false
	}
	p, err := datapath.Parse(arg.Value)
	return p, err == nil
}

func (r *pathRewriter) replace(node *ast.Node, p datapath.Path) {
	orig := *node
	call := &ast.CallNode{
		Callee:    &ast.IdentifierNode{Value: readFunc},
		Arguments: []ast.Node{&ast.StringNode{Value: p.String()}},
	}
	ast.Patch(node, call)
	r.generated[call] = orig
}

func truthyCall(n ast.Node) ast.Node {
	call := &ast.CallNode{
		Callee:    &ast.IdentifierNode{Value: truthyFunc},
		Arguments: []ast.Node{n},
	}
	call.SetLocation(n.Location())
	return call
}

// exprPosition extracts the 1-based line and 0-based column of an expr
// error, if it carries one.
func exprPosition(err error) (line, column int, ok bool) {
	var fe *file.Error
	if !stderrors.As(err, &fe) || fe.Line == 0 {
		return 0, 0, false
	}
	return fe.Line, fe.Column, true
}

// exprMessage returns the bare message of an expr error.
func exprMessage(err error) string {
	var fe *file.Error
	if stderrors.As(err, &fe) && fe.Message != "" {
		return fe.Message
	}
	return fmt.Sprint(err)
}
