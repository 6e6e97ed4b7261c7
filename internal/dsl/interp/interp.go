// Package interp is the tree-walking evaluator for helper-catalogue
// scripts: the "sandboxed evaluator" spec.md requires the host to supply.
// It holds no runtime semantics of its own beyond evaluating expressions
// and dispatching calls to the builtins bound into it — every helper call
// is a side effect against the caller-supplied RuntimeContext.
package interp

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/dolthub/swiss"
	"github.com/holiman/uint256"

	"github.com/tcoulter/evmscript/internal/action"
	"github.com/tcoulter/evmscript/internal/dsl/ast"
	"github.com/tcoulter/evmscript/internal/dsl/parser"
	"github.com/tcoulter/evmscript/internal/dsl/token"
)

// Pair is one key/value entry of an ObjectLit, in source order.
type Pair struct {
	Key   string
	Value any
}

// Object is the runtime value of a `{ "key": value, ... }` literal.
type Object struct {
	Pairs []Pair
}

// Builtin is a Go-native function bound into a script's namespace. args are
// already-evaluated values; callPos is the source position of the call,
// for error attribution.
type Builtin func(callPos token.Pos, args []any) (any, error)

// Thread evaluates one script against a fixed set of builtins and a flat
// global environment (the DSL has no nested scopes: no user-defined
// functions, no blocks).
type Thread struct {
	builtins *swiss.Map[string, Builtin]
	globals  *swiss.Map[string, any]
}

// NewThread creates a Thread with predeclared bound under their public
// names, plus any caller-supplied extra bindings (spec.md's
// "extra_bindings" parameter to preprocess).
func NewThread(predeclared map[string]Builtin, extra map[string]any) *Thread {
	th := &Thread{
		builtins: swiss.NewMap[string, Builtin](uint32(len(predeclared))),
		globals:  swiss.NewMap[string, any](uint32(len(extra) + 8)),
	}
	for name, fn := range predeclared {
		th.builtins.Put(name, fn)
	}
	for name, v := range extra {
		th.globals.Put(name, v)
	}
	return th
}

// Run scans, parses, and evaluates src in order. It returns a combined
// HostEvaluator-flavoured error on the first statement that fails, since
// spec.md §7 requires an exception raised by a helper to be delivered back
// out of script evaluation (not merely collected and deferred).
func (th *Thread) Run(filename string, src []byte) error {
	stmts, err := parser.Parse(filename, src)
	if err != nil {
		return err
	}
	for _, stmt := range stmts {
		if err := th.execStmt(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Globals returns every binding currently in the global environment, for
// the host adapter's post-evaluation label-promotion walk.
func (th *Thread) Globals() map[string]any {
	out := make(map[string]any, th.globals.Count())
	th.globals.Iter(func(k string, v any) (stop bool) {
		out[k] = v
		return false
	})
	return out
}

func (th *Thread) execStmt(stmt ast.Stmt) error {
	switch s := stmt.(type) {
	case *ast.ExprStmt:
		_, err := th.eval(s.X)
		return err
	case *ast.AssignStmt:
		v, err := th.eval(s.X)
		if err != nil {
			return err
		}
		th.globals.Put(s.Name, v)
		return nil
	case *ast.DestructureStmt:
		v, err := th.eval(s.X)
		if err != nil {
			return err
		}
		ptr, ok := v.(*action.Pointer)
		if !ok {
			return fmt.Errorf("%s: cannot destructure a non-pointer value into [%s]", s.NamePos, strings.Join(s.Names, ", "))
		}
		for i, name := range s.Names {
			ref, ok := ptr.StackRef(i)
			if !ok {
				return fmt.Errorf("%s: destructuring index %d out of range", s.NamePos, i)
			}
			th.globals.Put(name, ref)
		}
		return nil
	default:
		return fmt.Errorf("%s: unsupported statement %T", stmt.Pos(), stmt)
	}
}

func (th *Thread) eval(expr ast.Expr) (any, error) {
	switch e := expr.(type) {
	case *ast.IntLit:
		return parseIntLit(e.Lit)
	case *ast.StringLit:
		return e.Value, nil
	case *ast.BoolLit:
		return e.Value, nil
	case *ast.Ident:
		if v, ok := th.globals.Get(e.Name); ok {
			return v, nil
		}
		return nil, fmt.Errorf("%s: undefined name %q", e.NamePos, e.Name)
	case *ast.ObjectLit:
		obj := &Object{}
		for i, k := range e.Keys {
			v, err := th.eval(e.Values[i])
			if err != nil {
				return nil, err
			}
			obj.Pairs = append(obj.Pairs, Pair{Key: k.Value, Value: v})
		}
		return obj, nil
	case *ast.CallExpr:
		fn, ok := th.builtins.Get(e.Callee)
		if !ok {
			return nil, fmt.Errorf("%s: undefined helper %q", e.CalleePos, e.Callee)
		}
		args := make([]any, len(e.Args))
		for i, a := range e.Args {
			v, err := th.eval(a)
			if err != nil {
				return nil, err
			}
			args[i] = v
		}
		return fn(e.CalleePos, args)
	default:
		return nil, fmt.Errorf("%s: unsupported expression %T", expr.Pos(), expr)
	}
}

func parseIntLit(lit string) (*uint256.Int, error) {
	clean := strings.ReplaceAll(lit, "_", "")
	base := 10
	if strings.HasPrefix(clean, "0x") || strings.HasPrefix(clean, "0X") {
		base = 16
		clean = clean[2:]
	}
	b, ok := new(big.Int).SetString(clean, base)
	if !ok {
		return nil, fmt.Errorf("invalid integer literal %q", lit)
	}
	v, overflow := uint256.FromBig(b)
	if overflow {
		return nil, fmt.Errorf("integer literal %q does not fit in 256 bits", lit)
	}
	return v, nil
}
