// Package expr compiles and evaluates small arithmetic expressions such as
// "y = x * 0.5 + 0.25" or "p[3] > 0.5 ? 1 : 0". Used by mode transformations,
// dynamic target descriptors and activation conditions.
package expr

import (
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/ast"
	"github.com/expr-lang/expr/parser"
	"github.com/expr-lang/expr/vm"
	"github.com/pkg/errors"
)

var (
	ErrEmpty           = errors.New("empty expression")
	ErrSyntax          = errors.New("syntax error")
	ErrUnknownFunction = errors.New("unknown function")
	ErrWrongArgCount   = errors.New("wrong number of arguments")
)

// IndexLimit is the number of elements an indexed variable (p[0]..) exposes
const IndexLimit = 100

// Vars resolves identifiers during evaluation
type Vars interface {
	Lookup(name string) (float64, bool)
	// Index resolves name[i], e.g. p[0]
	Index(name string, i int) (float64, bool)
}

// Map is a simple Vars implementation. Indexed values use keys like "p[2]".
type Map map[string]float64

func (m Map) Lookup(name string) (float64, bool) {
	v, ok := m[name]
	return v, ok
}

func (m Map) Index(name string, i int) (float64, bool) {
	v, ok := m[name+"["+strconv.Itoa(i)+"]"]
	return v, ok
}

// Expr is a compiled expression
type Expr struct {
	src     string
	target  string // left side of an assignment ("y" in "y = x"), may be empty
	program *vm.Program
	names   []string // plain variables
	indexed []string // variables used as name[i]
}

var assignment = regexp.MustCompile(`^([A-Za-z_][A-Za-z0-9_]*)\s*=([^=].*)$`)

type function struct {
	arity int
	fn    func(a []float64) float64
}

var functions = map[string]function{
	"abs":   {1, func(a []float64) float64 { return math.Abs(a[0]) }},
	"floor": {1, func(a []float64) float64 { return math.Floor(a[0]) }},
	"ceil":  {1, func(a []float64) float64 { return math.Ceil(a[0]) }},
	"round": {1, func(a []float64) float64 { return math.Round(a[0]) }},
	"sqrt":  {1, func(a []float64) float64 { return math.Sqrt(math.Max(0, a[0])) }},
	"min":   {2, func(a []float64) float64 { return math.Min(a[0], a[1]) }},
	"max":   {2, func(a []float64) float64 { return math.Max(a[0], a[1]) }},
	"pow":   {2, func(a []float64) float64 { return math.Pow(a[0], a[1]) }},
	"clamp": {3, func(a []float64) float64 { return math.Max(a[1], math.Min(a[2], a[0])) }},
}

// options registers the function table in place of the language builtins
var options = func() []expr.Option {
	opts := []expr.Option{expr.DisableAllBuiltins()}
	for name, f := range functions {
		opts = append(opts, expr.Function(name, func(params ...any) (any, error) {
			args := make([]float64, len(params))
			for i, p := range params {
				args[i] = toFloat(p)
			}
			return f.fn(args), nil
		}))
	}
	return opts
}()

// Compile parses src. An optional leading "name =" assignment is accepted and recorded.
func Compile(src string) (*Expr, error) {
	trimmed := strings.TrimSpace(src)
	if trimmed == "" {
		return nil, ErrEmpty
	}
	e := &Expr{src: trimmed}
	body := trimmed
	if m := assignment.FindStringSubmatch(trimmed); m != nil {
		e.target = m[1]
		body = strings.TrimSpace(m[2])
	}

	tree, err := parser.Parse(body)
	if err != nil {
		return nil, errors.Wrapf(ErrSyntax, "compile %q: %v", trimmed, err)
	}
	c := &collector{idents: map[string]bool{}, indexed: map[string]bool{}, callees: map[string]bool{}}
	ast.Walk(&tree.Node, c)
	if c.err != nil {
		return nil, errors.Wrapf(c.err, "compile %q", trimmed)
	}

	program, err := expr.Compile(body, options...)
	if err != nil {
		return nil, errors.Wrapf(ErrSyntax, "compile %q: %v", trimmed, err)
	}
	e.program = program
	for name := range c.indexed {
		e.indexed = append(e.indexed, name)
	}
	for name := range c.idents {
		if !c.indexed[name] && !c.callees[name] {
			e.names = append(e.names, name)
		}
	}
	sort.Strings(e.names)
	sort.Strings(e.indexed)
	return e, nil
}

// MustCompile is like Compile but panics on error
func MustCompile(src string) *Expr {
	e, err := Compile(src)
	if err != nil {
		panic(err)
	}
	return e
}

// Target returns the assigned variable name, if the expression is an assignment
func (e *Expr) Target() string {
	return e.target
}

func (e *Expr) String() string {
	return e.src
}

// Eval evaluates the expression. Unknown variables evaluate to 0 and runtime
// failures (e.g. an index past IndexLimit) yield 0, which keeps evaluation
// total. Booleans evaluate to 1 or 0.
func (e *Expr) Eval(vars Vars) float64 {
	if e == nil || e.program == nil {
		return 0
	}
	env := make(map[string]any, len(e.names)+len(e.indexed))
	for _, name := range e.names {
		var v float64
		if vars != nil {
			v, _ = vars.Lookup(name)
		}
		env[name] = v
	}
	for _, name := range e.indexed {
		values := make([]float64, IndexLimit)
		if vars != nil {
			for i := range values {
				values[i], _ = vars.Index(name, i)
			}
		}
		env[name] = values
	}
	out, err := expr.Run(e.program, env)
	if err != nil {
		return 0
	}
	return toFloat(out)
}

// collector records the variables of an expression and validates calls
type collector struct {
	idents  map[string]bool
	indexed map[string]bool
	callees map[string]bool
	err     error
}

func (c *collector) Visit(node *ast.Node) {
	switch n := (*node).(type) {
	case *ast.IdentifierNode:
		c.idents[n.Value] = true
	case *ast.MemberNode:
		if id, ok := n.Node.(*ast.IdentifierNode); ok {
			c.indexed[id.Value] = true
		}
	case *ast.CallNode:
		id, ok := n.Callee.(*ast.IdentifierNode)
		if !ok {
			c.fail(ErrUnknownFunction)
			return
		}
		c.callees[id.Value] = true
		f, ok := functions[id.Value]
		switch {
		case !ok:
			c.fail(errors.Wrap(ErrUnknownFunction, id.Value))
		case len(n.Arguments) != f.arity:
			c.fail(errors.Wrapf(ErrWrongArgCount, "%s takes %d", id.Value, f.arity))
		}
	}
}

func (c *collector) fail(err error) {
	if c.err == nil {
		c.err = err
	}
}

func toFloat(v any) float64 {
	switch x := v.(type) {
	case float64:
		return x
	case float32:
		return float64(x)
	case int:
		return float64(x)
	case int64:
		return float64(x)
	case bool:
		if x {
			return 1
		}
		return 0
	}
	return 0
}
