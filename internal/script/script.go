// Package script compiles risor expressions for configurable routing and
// approval rules. An Engine carries the set of global names an expression
// may reference: a deterministic, side-effect-free subset of risor's
// builtins plus whatever domain variables the caller registers. An approval
// rule must not be able to shell out or touch the network.
package script

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/risor-io/risor"
	"github.com/risor-io/risor/compiler"
	"github.com/risor-io/risor/modules/all"
	"github.com/risor-io/risor/object"
	"github.com/risor-io/risor/parser"
)

// allowedBuiltins is the subset of risor builtins an expression may call.
// Everything here is a pure function of its arguments.
var allowedBuiltins = map[string]bool{
	"all":      true,
	"any":      true,
	"bool":     true,
	"coalesce": true,
	"float":    true,
	"fmt":      true,
	"int":      true,
	"json":     true,
	"keys":     true,
	"len":      true,
	"list":     true,
	"map":      true,
	"math":     true,
	"regexp":   true,
	"reversed": true,
	"sorted":   true,
	"sprintf":  true,
	"string":   true,
	"strings":  true,
	"type":     true,
}

// Engine compiles expressions against a fixed set of global names.
type Engine struct {
	globals map[string]any
	names   []string
}

// NewEngine returns an Engine whose expressions may use the allowed
// builtins plus the given domain variables. The variable values passed here
// only register the names; the real values arrive at Eval time.
func NewEngine(vars map[string]any) *Engine {
	globals := make(map[string]any, len(allowedBuiltins)+len(vars))
	for name, value := range all.Builtins() {
		if allowedBuiltins[name] {
			globals[name] = value
		}
	}
	for name, value := range vars {
		globals[name] = value
	}
	names := make([]string, 0, len(globals))
	for name := range globals {
		names = append(names, name)
	}
	sort.Strings(names)
	return &Engine{globals: globals, names: names}
}

// Expr is a compiled expression, reusable across evaluations.
type Expr struct {
	engine *Engine
	code   *compiler.Code
}

// Compile parses and compiles src once. Unknown identifiers fail here, not
// at evaluation time.
func (e *Engine) Compile(ctx context.Context, src string) (*Expr, error) {
	ast, err := parser.Parse(ctx, src)
	if err != nil {
		return nil, fmt.Errorf("parse expression: %w", err)
	}
	code, err := compiler.Compile(ast, compiler.WithGlobalNames(e.names))
	if err != nil {
		return nil, fmt.Errorf("compile expression: %w", err)
	}
	return &Expr{engine: e, code: code}, nil
}

// Eval runs the expression with vars overlaid on the engine's globals.
func (x *Expr) Eval(ctx context.Context, vars map[string]any) (Result, error) {
	globals := make(map[string]any, len(x.engine.globals)+len(vars))
	for name, value := range x.engine.globals {
		globals[name] = value
	}
	for name, value := range vars {
		globals[name] = value
	}
	obj, err := risor.EvalCode(ctx, x.code, risor.WithGlobals(globals))
	if err != nil {
		return Result{}, fmt.Errorf("evaluate expression: %w", err)
	}
	return Result{obj: obj}, nil
}

// Result is an evaluated expression value.
type Result struct {
	obj object.Object
}

// Truthy interprets the result as a boolean: false, zero, empty string,
// empty collection, and nil are all false.
func (r Result) Truthy() bool {
	switch o := r.obj.(type) {
	case nil, *object.NilType:
		return false
	case *object.Bool:
		return o.Value()
	case *object.Int:
		return o.Value() != 0
	case *object.Float:
		return o.Value() != 0
	case *object.String:
		return o.Value() != ""
	case *object.List:
		return len(o.Value()) > 0
	case *object.Map:
		return len(o.Value()) > 0
	default:
		return r.obj.IsTruthy()
	}
}

// Text interprets the result as a string, the shape a routing selector
// returns.
func (r Result) Text() string {
	switch o := r.obj.(type) {
	case nil, *object.NilType:
		return ""
	case *object.String:
		return o.Value()
	case *object.Int:
		return fmt.Sprintf("%d", o.Value())
	case *object.Float:
		return fmt.Sprintf("%g", o.Value())
	case *object.Bool:
		return fmt.Sprintf("%t", o.Value())
	case *object.Time:
		return o.Value().Format(time.RFC3339)
	case *object.List:
		items := make([]string, 0, len(o.Value()))
		for _, item := range o.Value() {
			items = append(items, item.Inspect())
		}
		return strings.Join(items, ", ")
	default:
		return r.obj.Inspect()
	}
}
