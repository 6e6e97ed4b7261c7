// Package parser builds the ast tree from the scanner's token stream.
package parser

import (
	"fmt"

	goscanner "go/scanner"
	gotoken "go/token"

	"github.com/tcoulter/evmscript/internal/dsl/ast"
	"github.com/tcoulter/evmscript/internal/dsl/scanner"
	"github.com/tcoulter/evmscript/internal/dsl/token"
)

func goPosition(filename string, line, col int) gotoken.Position {
	return gotoken.Position{Filename: filename, Line: line, Column: col}
}

// Parse scans and parses src (labelled filename for error messages),
// returning the program's statements. If scanning failed, the scan errors
// are returned; otherwise any syntax errors are returned, sorted by
// position, as a single goscanner.ErrorList-backed error.
func Parse(filename string, src []byte) ([]ast.Stmt, error) {
	p := &parser{sc: scanner.New(filename, src), filename: filename}
	p.next()

	var stmts []ast.Stmt
	func() {
		defer func() {
			if r := recover(); r != nil {
				if _, ok := r.(parseAbort); !ok {
					panic(r)
				}
			}
		}()
		for p.tok.Token != token.EOF {
			stmts = append(stmts, p.parseStmt())
			p.expectSemi()
		}
	}()

	if err := p.sc.Err(); err != nil {
		return nil, err
	}
	if len(p.errs) > 0 {
		p.errs.Sort()
		return nil, p.errs.Err()
	}
	return stmts, nil
}

// parseAbort unwinds parsing after the error count makes further recovery
// pointless (mirrors go/parser's "too many errors" bail-out).
type parseAbort struct{}

const maxErrors = 10

type parser struct {
	sc       *scanner.Scanner
	filename string
	tok      scanner.TokenAndValue
	errs     goscanner.ErrorList
}

func (p *parser) next() { p.tok = p.sc.Scan() }

func (p *parser) errorf(pos token.Pos, format string, args ...any) {
	l, c := pos.LineCol()
	p.errs.Add(goPosition(p.filename, l, c), fmt.Sprintf(format, args...))
	if len(p.errs) >= maxErrors {
		panic(parseAbort{})
	}
}

func (p *parser) expect(tok token.Token) scanner.TokenAndValue {
	cur := p.tok
	if cur.Token != tok {
		p.errorf(cur.Pos, "expected %s, found %s %q", tok, cur.Token, cur.Lit)
	}
	p.next()
	return cur
}

func (p *parser) expectSemi() {
	if p.tok.Token == token.SEMI {
		p.next()
		return
	}
	if p.tok.Token == token.EOF {
		return
	}
	p.errorf(p.tok.Pos, "expected statement terminator, found %s %q", p.tok.Token, p.tok.Lit)
}

func (p *parser) parseStmt() ast.Stmt {
	if p.tok.Token == token.LBRACK {
		return p.parseDestructure()
	}

	isConst := false
	if p.tok.Token == token.CONST {
		isConst = true
		p.next()
	}

	if p.tok.Token == token.IDENT {
		// Disambiguate `name = expr` (assignment) from a bare call/ident
		// expression statement by a one-token lookahead for '=': call
		// expressions always continue with '(' and a bare ident is only
		// ever valid as an expression argument, never a statement on its
		// own, so seeing EQ unambiguously means assignment.
		save := p.tok
		p.next()
		if p.tok.Token == token.EQ {
			p.next()
			x := p.parseExpr()
			return &ast.AssignStmt{Name: save.Lit, IsConst: isConst, X: x, NamePos: save.Pos}
		}
		x := p.parseExprFromIdent(save)
		return &ast.ExprStmt{X: x}
	}

	if isConst {
		p.errorf(p.tok.Pos, "expected identifier after const")
	}
	x := p.parseExpr()
	return &ast.ExprStmt{X: x}
}

func (p *parser) parseDestructure() ast.Stmt {
	lbrack := p.tok.Pos
	p.expect(token.LBRACK)
	var names []string
	for p.tok.Token != token.RBRACK {
		tv := p.expect(token.IDENT)
		names = append(names, tv.Lit)
		if p.tok.Token == token.COMMA {
			p.next()
		} else {
			break
		}
	}
	p.expect(token.RBRACK)
	p.expect(token.EQ)
	x := p.parseExpr()
	return &ast.DestructureStmt{Names: names, X: x, NamePos: lbrack}
}

func (p *parser) parseExpr() ast.Expr {
	switch p.tok.Token {
	case token.IDENT:
		tv := p.tok
		p.next()
		return p.parseExprFromIdent(tv)
	case token.INT:
		tv := p.tok
		p.next()
		return &ast.IntLit{Lit: tv.Lit, LitPos: tv.Pos}
	case token.STRING:
		tv := p.tok
		p.next()
		return &ast.StringLit{Value: tv.Lit, LitPos: tv.Pos}
	case token.TRUE, token.FALSE:
		tv := p.tok
		p.next()
		return &ast.BoolLit{Value: tv.Token == token.TRUE, LitPos: tv.Pos}
	case token.LBRACE:
		return p.parseObjectLit()
	default:
		p.errorf(p.tok.Pos, "unexpected %s %q in expression", p.tok.Token, p.tok.Lit)
		pos := p.tok.Pos
		p.next()
		return &ast.BoolLit{Value: false, LitPos: pos}
	}
}

// parseExprFromIdent continues parsing an expression that began with an
// already-consumed identifier token: either a bare Ident or a CallExpr.
func (p *parser) parseExprFromIdent(ident scanner.TokenAndValue) ast.Expr {
	if p.tok.Token != token.LPAREN {
		return &ast.Ident{Name: ident.Lit, NamePos: ident.Pos}
	}
	p.next() // consume '('
	var args []ast.Expr
	for p.tok.Token != token.RPAREN {
		args = append(args, p.parseExpr())
		if p.tok.Token == token.COMMA {
			p.next()
		} else {
			break
		}
	}
	p.expect(token.RPAREN)
	return &ast.CallExpr{Callee: ident.Lit, CalleePos: ident.Pos, Args: args}
}

func (p *parser) parseObjectLit() ast.Expr {
	lbrace := p.tok.Pos
	p.expect(token.LBRACE)
	obj := &ast.ObjectLit{LbracePos: lbrace}
	for p.tok.Token != token.RBRACE {
		keyTok := p.expect(token.STRING)
		p.expect(token.COLON)
		val := p.parseExpr()
		obj.Keys = append(obj.Keys, &ast.StringLit{Value: keyTok.Lit, LitPos: keyTok.Pos})
		obj.Values = append(obj.Values, val)
		if p.tok.Token == token.COMMA {
			p.next()
		} else {
			break
		}
	}
	p.expect(token.RBRACE)
	return obj
}
