// Package ast defines the small expression/statement tree produced by the
// parser from a helper-catalogue script.
package ast

import "github.com/tcoulter/evmscript/internal/dsl/token"

// Stmt is a top-level statement: an expression evaluated for effect, a
// binding of a name (or names, via destructuring) to the result of an
// expression.
type Stmt interface {
	Pos() token.Pos
}

// ExprStmt evaluates Expr and discards its result (used for calls that
// build an Action purely for its side effect, e.g. a bare `jump(...)`).
type ExprStmt struct {
	X Expr
}

func (s *ExprStmt) Pos() token.Pos { return s.X.Pos() }

// AssignStmt binds Name to the result of X, e.g. `mainloop = push(1)` or
// `const TIMES = 5`. IsConst is recorded for fidelity but has no semantic
// effect: a later assignment to the same name, const or not, replaces the
// binding.
type AssignStmt struct {
	Name    string
	IsConst bool
	X       Expr
	NamePos token.Pos
}

func (s *AssignStmt) Pos() token.Pos { return s.NamePos }

// DestructureStmt binds Names in order to the first len(Names) stack
// references an ActionPointer-valued X yields, e.g. `[a, b, c] = foo(...)`.
type DestructureStmt struct {
	Names   []string
	X       Expr
	NamePos token.Pos
}

func (s *DestructureStmt) Pos() token.Pos { return s.NamePos }

// Expr is any DSL expression.
type Expr interface {
	Pos() token.Pos
}

// IntLit is an integer literal, decimal or 0x-prefixed hexadecimal.
type IntLit struct {
	Lit    string
	LitPos token.Pos
}

func (e *IntLit) Pos() token.Pos { return e.LitPos }

// StringLit is a double-quoted string literal.
type StringLit struct {
	Value  string
	LitPos token.Pos
}

func (e *StringLit) Pos() token.Pos { return e.LitPos }

// BoolLit is `true` or `false`.
type BoolLit struct {
	Value  bool
	LitPos token.Pos
}

func (e *BoolLit) Pos() token.Pos { return e.LitPos }

// Ident is a reference to a previously bound name.
type Ident struct {
	Name   string
	NamePos token.Pos
}

func (e *Ident) Pos() token.Pos { return e.NamePos }

// CallExpr is a call to a helper or expression helper, e.g. `push(0x01)` or
// `$ptr("main")`.
type CallExpr struct {
	Callee    string
	CalleePos token.Pos
	Args      []Expr
}

func (e *CallExpr) Pos() token.Pos { return e.CalleePos }

// ObjectLit is a `{ "key": value, ... }` literal, used only as the argument
// to `dispatch`. Pairs preserve source order.
type ObjectLit struct {
	LbracePos token.Pos
	Keys      []*StringLit
	Values    []Expr
}

func (e *ObjectLit) Pos() token.Pos { return e.LbracePos }
