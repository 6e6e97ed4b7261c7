package parser_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tcoulter/evmscript/internal/dsl/ast"
	"github.com/tcoulter/evmscript/internal/dsl/parser"
)

func TestParseAssignmentAndCalls(t *testing.T) {
	stmts, err := parser.Parse("test", []byte(`jump($ptr("main")); push(0x01); push(0x01); main = push(0x02)`))
	require.NoError(t, err)
	require.Len(t, stmts, 4)

	es, ok := stmts[0].(*ast.ExprStmt)
	require.True(t, ok)
	call, ok := es.X.(*ast.CallExpr)
	require.True(t, ok)
	require.Equal(t, "jump", call.Callee)
	require.Len(t, call.Args, 1)
	inner, ok := call.Args[0].(*ast.CallExpr)
	require.True(t, ok)
	require.Equal(t, "$ptr", inner.Callee)

	as, ok := stmts[3].(*ast.AssignStmt)
	require.True(t, ok)
	require.Equal(t, "main", as.Name)
}

func TestParseDestructure(t *testing.T) {
	stmts, err := parser.Parse("test", []byte(`[a, b, c] = allocStack(3)`))
	require.NoError(t, err)
	require.Len(t, stmts, 1)
	ds, ok := stmts[0].(*ast.DestructureStmt)
	require.True(t, ok)
	require.Equal(t, []string{"a", "b", "c"}, ds.Names)
}

func TestParseConstAndObjectLit(t *testing.T) {
	stmts, err := parser.Parse("test", []byte(`const TIMES=5
dispatch({"function foo(address)": $ptr("tag")})`))
	require.NoError(t, err)
	require.Len(t, stmts, 2)

	as, ok := stmts[0].(*ast.AssignStmt)
	require.True(t, ok)
	require.True(t, as.IsConst)

	es, ok := stmts[1].(*ast.ExprStmt)
	require.True(t, ok)
	call := es.X.(*ast.CallExpr)
	obj, ok := call.Args[0].(*ast.ObjectLit)
	require.True(t, ok)
	require.Len(t, obj.Keys, 1)
	require.Equal(t, "function foo(address)", obj.Keys[0].Value)
}

func TestParseErrorIsReported(t *testing.T) {
	_, err := parser.Parse("test", []byte(`push(`))
	require.Error(t, err)
}
