// Copyright 2022 gorse Project Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
// Package parser builds a Program AST from a token stream using recursive
// descent with precedence climbing, following the same
// peek/advance/consume shape the teacher's disassembly parsers use when
// walking a materialized line list (see arm64_parser.go's instruction
// dispatch).
package parser

import (
	"github.com/vyl-lang/vylc/internal/ast"
	"github.com/vyl-lang/vylc/internal/diag"
	"github.com/vyl-lang/vylc/internal/lexer"
	"github.com/vyl-lang/vylc/internal/token"
)

type Parser struct {
	tokens []token.Token
	pos    int
}

// New creates a Parser over an already-materialized token slice.
func New(tokens []token.Token) *Parser {
	return &Parser{tokens: tokens}
}

// Parse parses the entire token stream into a Program.
func Parse(tokens []token.Token) (*ast.Program, error) {
	return New(tokens).Parse()
}

func (p *Parser) cur() token.Token {
	if p.pos < len(p.tokens) {
		return p.tokens[p.pos]
	}
	return token.Token{Kind: token.EOF}
}

func (p *Parser) peekAt(offset int) token.Token {
	idx := p.pos + offset
	if idx < len(p.tokens) {
		return p.tokens[idx]
	}
	return token.Token{Kind: token.EOF}
}

func (p *Parser) advance() token.Token {
	t := p.cur()
	if p.pos < len(p.tokens) {
		p.pos++
	}
	return t
}

func (p *Parser) at(kind token.Kind) bool {
	return p.cur().Kind == kind
}

func (p *Parser) consume(kind token.Kind) (token.Token, error) {
	if p.cur().Kind != kind {
		return token.Token{}, diag.New(diag.Parse, p.cur().Line, p.cur().Column,
			"expected %s, got %s", kind, p.cur().Kind)
	}
	return p.advance(), nil
}

func (p *Parser) skipNewlines() {
	for p.at(token.NEWLINE) {
		p.advance()
	}
}

func isTypeToken(k token.Kind) bool {
	switch k {
	case token.INT_TYPE, token.DEC_TYPE, token.STRING_TYPE, token.BOOL_TYPE, token.IDENTIFIER, token.STAR, token.LPAREN:
		return true
	default:
		return false
	}
}

// Parse parses the full program.
func (p *Parser) Parse() (*ast.Program, error) {
	prog := &ast.Program{}
	p.skipNewlines()
	for !p.at(token.EOF) {
		stmt, err := p.parseStatement()
		if err != nil {
			return nil, err
		}
		if stmt != nil {
			prog.Statements = append(prog.Statements, stmt)
		}
		p.skipNewlines()
	}
	return prog, nil
}

// blockTerminated reports whether a statement kind is terminated by its own
// block/brace and therefore requires no trailing semicolon.
func blockTerminated(n ast.Node) bool {
	switch n.(type) {
	case *ast.IfStmt, *ast.WhileStmt, *ast.ForStmt, *ast.FunctionDef, *ast.MethodDef,
		*ast.StructDef, *ast.EnumDef, *ast.InterfaceDef, *ast.Block:
		return true
	case *ast.DeferStmt:
		return true
	default:
		return false
	}
}

func (p *Parser) parseStatement() (ast.Node, error) {
	tok := p.cur()

	if tok.Kind == token.SEMICOLON {
		p.advance()
		return nil, nil
	}

	var stmt ast.Node
	var err error

	switch {
	case tok.Kind == token.VAR:
		stmt, err = p.parseVarDecl()
	case tok.Kind == token.LET:
		stmt, err = p.parseLetDecl()
	case tok.Kind == token.FUNCTION:
		stmt, err = p.parseFunctionDecl()
	case tok.Kind == token.STRUCT:
		stmt, err = p.parseStructDecl()
	case tok.Kind == token.ENUM:
		stmt, err = p.parseEnumDecl()
	case tok.Kind == token.INTERFACE:
		stmt, err = p.parseInterfaceDecl()
	case tok.Kind == token.RETURN:
		stmt, err = p.parseReturn()
	case tok.Kind == token.DEFER:
		stmt, err = p.parseDefer()
	case tok.Kind == token.IF:
		stmt, err = p.parseIf()
	case tok.Kind == token.WHILE:
		stmt, err = p.parseWhile()
	case tok.Kind == token.FOR:
		stmt, err = p.parseFor()
	case tok.Kind == token.IDENTIFIER && p.looksLikeFunctionShorthand():
		stmt, err = p.parseFunctionShorthand()
	case tok.Kind == token.IDENTIFIER:
		stmt, err = p.parseAssignmentOrCallOrMethod()
	default:
		return nil, diag.New(diag.Parse, tok.Line, tok.Column, "unexpected token %s", tok.Kind)
	}
	if err != nil {
		return nil, err
	}
	if stmt == nil {
		return nil, nil
	}

	if !blockTerminated(stmt) {
		if _, err := p.consume(token.SEMICOLON); err != nil {
			return nil, diag.New(diag.Parse, stmt.Position().Line, stmt.Position().Column, "expected ';' after statement")
		}
	}
	return stmt, nil
}

// looksLikeFunctionShorthand scans past a balanced (...) parameter list to
// see whether it is followed by '->' or '{', which marks an identifier as
// a function definition rather than a call or assignment.
func (p *Parser) looksLikeFunctionShorthand() bool {
	if p.peekAt(1).Kind != token.LPAREN {
		return false
	}
	depth := 0
	i := 1
	for {
		t := p.peekAt(i)
		if t.Kind == token.EOF {
			return false
		}
		if t.Kind == token.LPAREN {
			depth++
		} else if t.Kind == token.RPAREN {
			depth--
			if depth == 0 {
				i++
				break
			}
		}
		i++
	}
	next := p.peekAt(i)
	return next.Kind == token.ARROW || next.Kind == token.LBRACE
}

func (p *Parser) parseFunctionShorthand() (ast.Node, error) {
	nameTok, err := p.consume(token.IDENTIFIER)
	if err != nil {
		return nil, err
	}
	params, err := p.parseParamList()
	if err != nil {
		return nil, err
	}
	returnType := ""
	if p.at(token.ARROW) {
		p.advance()
		returnType, err = p.parseTypeAnnotation()
		if err != nil {
			return nil, err
		}
	}
	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	return &ast.FunctionDef{
		Pos: ast.PosAt(nameTok),
		Name:       nameTok.Text,
		Params:     params,
		ReturnType: returnType,
		Body:       body,
	}, nil
}

func (p *Parser) parseFunctionDecl() (ast.Node, error) {
	fnTok, err := p.consume(token.FUNCTION)
	if err != nil {
		return nil, err
	}
	nameTok, err := p.consume(token.IDENTIFIER)
	if err != nil {
		return nil, err
	}
	params, err := p.parseParamList()
	if err != nil {
		return nil, err
	}
	returnType := ""
	if p.at(token.ARROW) {
		p.advance()
		returnType, err = p.parseTypeAnnotation()
		if err != nil {
			return nil, err
		}
	}
	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	return &ast.FunctionDef{
		Pos: ast.PosAt(fnTok),
		Name:       nameTok.Text,
		Params:     params,
		ReturnType: returnType,
		Body:       body,
	}, nil
}

func (p *Parser) parseParamList() ([]ast.Param, error) {
	if _, err := p.consume(token.LPAREN); err != nil {
		return nil, err
	}
	var params []ast.Param
	if !p.at(token.RPAREN) {
		param, err := p.parseParam()
		if err != nil {
			return nil, err
		}
		params = append(params, param)
		for p.at(token.COMMA) {
			p.advance()
			param, err := p.parseParam()
			if err != nil {
				return nil, err
			}
			params = append(params, param)
		}
	}
	if _, err := p.consume(token.RPAREN); err != nil {
		return nil, err
	}
	return params, nil
}

func (p *Parser) parseParam() (ast.Param, error) {
	nameTok, err := p.consume(token.IDENTIFIER)
	if err != nil {
		return ast.Param{}, err
	}
	param := ast.Param{Name: nameTok.Text}
	if p.at(token.COLON) {
		p.advance()
		param.Type, err = p.parseTypeAnnotation()
		if err != nil {
			return ast.Param{}, err
		}
	}
	if p.at(token.ASSIGN) {
		p.advance()
		param.Default, err = p.parseExpression()
		if err != nil {
			return ast.Param{}, err
		}
	}
	return param, nil
}

// parseTypeAnnotation parses primitive names, identifiers (struct/enum
// names, optionally with <T,...> generic arguments), pointer types (*T),
// and typed arrays (T[]).
func (p *Parser) parseTypeAnnotation() (string, error) {
	if !isTypeToken(p.cur().Kind) {
		return "", diag.New(diag.Parse, p.cur().Line, p.cur().Column, "expected type, got %s", p.cur().Kind)
	}
	var base string
	if p.at(token.STAR) {
		p.advance()
		inner, err := p.parseTypeAnnotation()
		if err != nil {
			return "", err
		}
		return "*" + inner, nil
	}
	if p.at(token.LPAREN) {
		p.advance()
		var elems []string
		if !p.at(token.RPAREN) {
			t, err := p.parseTypeAnnotation()
			if err != nil {
				return "", err
			}
			elems = append(elems, t)
			for p.at(token.COMMA) {
				p.advance()
				t, err := p.parseTypeAnnotation()
				if err != nil {
					return "", err
				}
				elems = append(elems, t)
			}
		}
		if _, err := p.consume(token.RPAREN); err != nil {
			return "", err
		}
		base = "(" + joinTypes(elems) + ")"
	} else {
		tok := p.advance()
		base = tok.Text
		if p.at(token.LT) {
			p.advance()
			var args []string
			arg, err := p.parseTypeAnnotation()
			if err != nil {
				return "", err
			}
			args = append(args, arg)
			for p.at(token.COMMA) {
				p.advance()
				a, err := p.parseTypeAnnotation()
				if err != nil {
					return "", err
				}
				args = append(args, a)
			}
			if _, err := p.consume(token.GT); err != nil {
				return "", err
			}
			base = base + "<" + joinTypes(args) + ">"
		}
	}
	for p.at(token.LBRACKET) && p.peekAt(1).Kind == token.RBRACKET {
		p.advance()
		p.advance()
		base = base + "[]"
	}
	return base, nil
}

func joinTypes(ts []string) string {
	out := ""
	for i, t := range ts {
		if i > 0 {
			out += ", "
		}
		out += t
	}
	return out
}

func (p *Parser) parseStructDecl() (ast.Node, error) {
	structTok, err := p.consume(token.STRUCT)
	if err != nil {
		return nil, err
	}
	nameTok, err := p.consume(token.IDENTIFIER)
	if err != nil {
		return nil, err
	}
	var typeParams []string
	if p.at(token.LT) {
		p.advance()
		t, err := p.consume(token.IDENTIFIER)
		if err != nil {
			return nil, err
		}
		typeParams = append(typeParams, t.Text)
		for p.at(token.COMMA) {
			p.advance()
			t, err := p.consume(token.IDENTIFIER)
			if err != nil {
				return nil, err
			}
			typeParams = append(typeParams, t.Text)
		}
		if _, err := p.consume(token.GT); err != nil {
			return nil, err
		}
	}
	if _, err := p.consume(token.LBRACE); err != nil {
		return nil, err
	}
	p.skipNewlines()

	def := &ast.StructDef{Pos: ast.PosAt(structTok), Name: nameTok.Text, TypeParams: typeParams}
	for !p.at(token.RBRACE) {
		switch {
		case p.at(token.VAR):
			field, err := p.parseStructField()
			if err != nil {
				return nil, err
			}
			def.Fields = append(def.Fields, field)
		case p.at(token.FUNCTION):
			method, err := p.parseMethodDecl(nameTok.Text)
			if err != nil {
				return nil, err
			}
			def.Methods = append(def.Methods, method)
		case p.at(token.IDENTIFIER) && p.looksLikeFunctionShorthand():
			fn, err := p.parseFunctionShorthand()
			if err != nil {
				return nil, err
			}
			fd := fn.(*ast.FunctionDef)
			def.Methods = append(def.Methods, &ast.MethodDef{
				Pos: fd.Pos, StructName: nameTok.Text, Name: fd.Name,
				Params: fd.Params, ReturnType: fd.ReturnType, Body: fd.Body,
			})
		default:
			return nil, diag.New(diag.Parse, p.cur().Line, p.cur().Column, "expected field or method declaration in struct")
		}
		p.skipNewlines()
	}
	if _, err := p.consume(token.RBRACE); err != nil {
		return nil, err
	}
	return def, nil
}

func (p *Parser) parseStructField() (ast.FieldDecl, error) {
	if _, err := p.consume(token.VAR); err != nil {
		return ast.FieldDecl{}, err
	}
	fieldType := ""
	if isTypeToken(p.cur().Kind) && p.cur().Kind != token.LPAREN {
		t, err := p.parseTypeAnnotation()
		if err != nil {
			return ast.FieldDecl{}, err
		}
		fieldType = t
	}
	nameTok, err := p.consume(token.IDENTIFIER)
	if err != nil {
		return ast.FieldDecl{}, err
	}
	if _, err := p.consume(token.SEMICOLON); err != nil {
		return ast.FieldDecl{}, err
	}
	return ast.FieldDecl{Name: nameTok.Text, Type: fieldType}, nil
}

func (p *Parser) parseMethodDecl(structName string) (*ast.MethodDef, error) {
	fnTok, err := p.consume(token.FUNCTION)
	if err != nil {
		return nil, err
	}
	nameTok, err := p.consume(token.IDENTIFIER)
	if err != nil {
		return nil, err
	}
	params, err := p.parseParamList()
	if err != nil {
		return nil, err
	}
	returnType := ""
	if p.at(token.ARROW) {
		p.advance()
		returnType, err = p.parseTypeAnnotation()
		if err != nil {
			return nil, err
		}
	}
	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	return &ast.MethodDef{
		Pos: ast.PosAt(fnTok), StructName: structName, Name: nameTok.Text,
		Params: params, ReturnType: returnType, Body: body,
	}, nil
}

func (p *Parser) parseEnumDecl() (ast.Node, error) {
	enumTok, err := p.consume(token.ENUM)
	if err != nil {
		return nil, err
	}
	nameTok, err := p.consume(token.IDENTIFIER)
	if err != nil {
		return nil, err
	}
	if _, err := p.consume(token.LBRACE); err != nil {
		return nil, err
	}
	p.skipNewlines()
	def := &ast.EnumDef{Pos: ast.PosAt(enumTok), Name: nameTok.Text}
	for !p.at(token.RBRACE) {
		variantTok, err := p.consume(token.IDENTIFIER)
		if err != nil {
			return nil, err
		}
		variant := ast.EnumVariant{Name: variantTok.Text}
		if p.at(token.ASSIGN) {
			p.advance()
			valTok, err := p.consume(token.INTEGER)
			if err != nil {
				return nil, err
			}
			variant.Value = valTok.IntValue
		}
		def.Variants = append(def.Variants, variant)
		if p.at(token.COMMA) {
			p.advance()
		}
		p.skipNewlines()
	}
	if _, err := p.consume(token.RBRACE); err != nil {
		return nil, err
	}
	return def, nil
}

func (p *Parser) parseInterfaceDecl() (ast.Node, error) {
	ifaceTok, err := p.consume(token.INTERFACE)
	if err != nil {
		return nil, err
	}
	nameTok, err := p.consume(token.IDENTIFIER)
	if err != nil {
		return nil, err
	}
	if _, err := p.consume(token.LBRACE); err != nil {
		return nil, err
	}
	p.skipNewlines()
	def := &ast.InterfaceDef{Pos: ast.PosAt(ifaceTok), Name: nameTok.Text}
	for !p.at(token.RBRACE) {
		if _, err := p.consume(token.FUNCTION); err != nil {
			return nil, err
		}
		methodNameTok, err := p.consume(token.IDENTIFIER)
		if err != nil {
			return nil, err
		}
		params, err := p.parseParamList()
		if err != nil {
			return nil, err
		}
		returnType := ""
		if p.at(token.ARROW) {
			p.advance()
			returnType, err = p.parseTypeAnnotation()
			if err != nil {
				return nil, err
			}
		}
		if _, err := p.consume(token.SEMICOLON); err != nil {
			return nil, err
		}
		var paramTypes []string
		for _, pr := range params {
			paramTypes = append(paramTypes, pr.Type)
		}
		def.Methods = append(def.Methods, ast.InterfaceMethod{Name: methodNameTok.Text, ParamTypes: paramTypes, ReturnType: returnType})
		p.skipNewlines()
	}
	if _, err := p.consume(token.RBRACE); err != nil {
		return nil, err
	}
	return def, nil
}

func (p *Parser) parseVarDecl() (ast.Node, error) {
	varTok, err := p.consume(token.VAR)
	if err != nil {
		return nil, err
	}
	first, firstType, err := p.parseDeclTarget()
	if err != nil {
		return nil, err
	}
	names := []string{first}
	types := []string{firstType}
	for p.at(token.COMMA) {
		p.advance()
		n, t, err := p.parseDeclTarget()
		if err != nil {
			return nil, err
		}
		names = append(names, n)
		types = append(types, t)
	}
	var value ast.Node
	if p.at(token.ASSIGN) {
		p.advance()
		value, err = p.parseExpression()
		if err != nil {
			return nil, err
		}
	}
	if len(names) > 1 {
		return &ast.TupleUnpack{Pos: ast.PosAt(varTok), Names: names, Types: types, Value: value}, nil
	}
	return &ast.VarDecl{Pos: ast.PosAt(varTok), Name: names[0], Type: types[0], Value: value, IsMutable: true}, nil
}

// parseDeclTarget parses `[type] name` for a single binding in a var/let
// declaration (including tuple-unpack lists).
func (p *Parser) parseDeclTarget() (name string, typ string, err error) {
	if isTypeToken(p.cur().Kind) && p.cur().Kind != token.IDENTIFIER {
		typ, err = p.parseTypeAnnotation()
		if err != nil {
			return "", "", err
		}
		nameTok, err := p.consume(token.IDENTIFIER)
		if err != nil {
			return "", "", err
		}
		return nameTok.Text, typ, nil
	}
	// Disambiguate `T x` (struct-typed decl) from a bare `x`: a type name
	// followed by another identifier means the first was a type.
	if p.cur().Kind == token.IDENTIFIER && p.peekAt(1).Kind == token.IDENTIFIER {
		typ, err = p.parseTypeAnnotation()
		if err != nil {
			return "", "", err
		}
		nameTok, err := p.consume(token.IDENTIFIER)
		if err != nil {
			return "", "", err
		}
		return nameTok.Text, typ, nil
	}
	nameTok, err := p.consume(token.IDENTIFIER)
	if err != nil {
		return "", "", err
	}
	return nameTok.Text, "", nil
}

func (p *Parser) parseLetDecl() (ast.Node, error) {
	letTok, err := p.consume(token.LET)
	if err != nil {
		return nil, err
	}
	isMutable := false
	if p.at(token.MUT) {
		p.advance()
		isMutable = true
	}
	nameTok, err := p.consume(token.IDENTIFIER)
	if err != nil {
		return nil, err
	}
	varType := ""
	if p.at(token.COLON) {
		p.advance()
		varType, err = p.parseTypeAnnotation()
		if err != nil {
			return nil, err
		}
	}
	var value ast.Node
	if p.at(token.ASSIGN) {
		p.advance()
		value, err = p.parseExpression()
		if err != nil {
			return nil, err
		}
	}
	return &ast.VarDecl{
		Pos: ast.PosAt(letTok), Name: nameTok.Text, Type: varType,
		Value: value, IsMutable: isMutable,
	}, nil
}

func (p *Parser) parseReturn() (ast.Node, error) {
	tok, err := p.consume(token.RETURN)
	if err != nil {
		return nil, err
	}
	var value ast.Node
	if !p.at(token.SEMICOLON) && !p.at(token.NEWLINE) && !p.at(token.RBRACE) {
		value, err = p.parseExpression()
		if err != nil {
			return nil, err
		}
	}
	return &ast.ReturnStmt{Pos: ast.PosAt(tok), Value: value}, nil
}

func (p *Parser) parseDefer() (ast.Node, error) {
	tok, err := p.consume(token.DEFER)
	if err != nil {
		return nil, err
	}
	if p.at(token.LBRACE) {
		body, err := p.parseBlock()
		if err != nil {
			return nil, err
		}
		return &ast.DeferStmt{Pos: ast.PosAt(tok), Body: body}, nil
	}
	stmt, err := p.parseStatement()
	if err != nil {
		return nil, err
	}
	body := &ast.Block{Pos: ast.PosAt(tok)}
	if stmt != nil {
		body.Statements = append(body.Statements, stmt)
	}
	return &ast.DeferStmt{Pos: ast.PosAt(tok), Body: body}, nil
}

func (p *Parser) parseAssignmentOrCallOrMethod() (ast.Node, error) {
	lhs, err := p.parsePostfixIdentifier()
	if err != nil {
		return nil, err
	}
	switch v := lhs.(type) {
	case *ast.FunctionCall:
		return v, nil
	case *ast.MethodCall:
		return v, nil
	}
	if !p.at(token.ASSIGN) {
		return nil, diag.New(diag.Parse, lhs.Position().Line, lhs.Position().Column, "expected '=' or a call expression")
	}
	p.advance()
	value, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	switch v := lhs.(type) {
	case *ast.Identifier:
		return &ast.Assignment{Pos: v.Pos, Name: v.Name, Value: value}, nil
	case *ast.FieldAccess, *ast.IndexExpr:
		return &ast.Assignment{Pos: lhs.Position(), Target: lhs, Value: value}, nil
	default:
		return nil, diag.New(diag.Parse, lhs.Position().Line, lhs.Position().Column, "invalid assignment target")
	}
}

// parsePostfixIdentifier parses an identifier optionally followed by a
// call, then a left-to-right chain of `.field`, `[index]`, `.method(...)`
// and trailing `?`.
func (p *Parser) parsePostfixIdentifier() (ast.Node, error) {
	nameTok, err := p.consume(token.IDENTIFIER)
	if err != nil {
		return nil, err
	}
	var node ast.Node = &ast.Identifier{Pos: ast.PosAt(nameTok), Name: nameTok.Text}

	if p.at(token.LPAREN) {
		args, err := p.parseArgList()
		if err != nil {
			return nil, err
		}
		node = &ast.FunctionCall{Pos: ast.PosAt(nameTok), Name: nameTok.Text, Arguments: args}
	}

	return p.parsePostfixChain(node)
}

func (p *Parser) parsePostfixChain(node ast.Node) (ast.Node, error) {
	for {
		switch p.cur().Kind {
		case token.DOT:
			dotTok := p.advance()
			fieldTok, err := p.consume(token.IDENTIFIER)
			if err != nil {
				return nil, err
			}
			if p.at(token.LPAREN) {
				args, err := p.parseArgList()
				if err != nil {
					return nil, err
				}
				node = &ast.MethodCall{Pos: ast.PosAt(dotTok), Receiver: node, Method: fieldTok.Text, Arguments: args}
			} else {
				node = &ast.FieldAccess{Pos: ast.PosAt(fieldTok), Receiver: node, Field: fieldTok.Text}
			}
		case token.LBRACKET:
			lbr := p.advance()
			idx, err := p.parseExpression()
			if err != nil {
				return nil, err
			}
			if _, err := p.consume(token.RBRACKET); err != nil {
				return nil, err
			}
			node = &ast.IndexExpr{Pos: ast.PosAt(lbr), Receiver: node, Index: idx}
		case token.QUESTION:
			qTok := p.advance()
			node = &ast.TryExpr{Pos: ast.PosAt(qTok), Inner: node}
		default:
			return node, nil
		}
	}
}

func (p *Parser) parseArgList() ([]ast.Node, error) {
	if _, err := p.consume(token.LPAREN); err != nil {
		return nil, err
	}
	var args []ast.Node
	if !p.at(token.RPAREN) {
		a, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		args = append(args, a)
		for p.at(token.COMMA) {
			p.advance()
			a, err := p.parseExpression()
			if err != nil {
				return nil, err
			}
			args = append(args, a)
		}
	}
	if _, err := p.consume(token.RPAREN); err != nil {
		return nil, err
	}
	return args, nil
}

func (p *Parser) parseBlock() (*ast.Block, error) {
	lbrace, err := p.consume(token.LBRACE)
	if err != nil {
		return nil, err
	}
	p.skipNewlines()
	block := &ast.Block{Pos: ast.PosAt(lbrace)}
	for !p.at(token.RBRACE) {
		stmt, err := p.parseStatement()
		if err != nil {
			return nil, err
		}
		if stmt != nil {
			block.Statements = append(block.Statements, stmt)
		}
		p.skipNewlines()
	}
	if _, err := p.consume(token.RBRACE); err != nil {
		return nil, err
	}
	return block, nil
}

func (p *Parser) parseIf() (ast.Node, error) {
	ifTok, err := p.consume(token.IF)
	if err != nil {
		return nil, err
	}
	if _, err := p.consume(token.LPAREN); err != nil {
		return nil, err
	}
	cond, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if _, err := p.consume(token.RPAREN); err != nil {
		return nil, err
	}
	thenBlock, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	root := &ast.IfStmt{Pos: ast.PosAt(ifTok), Condition: cond, Then: thenBlock}
	current := root

	save := p.pos
	p.skipNewlines()
	for p.at(token.ELIF) {
		elifTok := p.advance()
		if _, err := p.consume(token.LPAREN); err != nil {
			return nil, err
		}
		elifCond, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		if _, err := p.consume(token.RPAREN); err != nil {
			return nil, err
		}
		elifBlock, err := p.parseBlock()
		if err != nil {
			return nil, err
		}
		next := &ast.IfStmt{Pos: ast.PosAt(elifTok), Condition: elifCond, Then: elifBlock}
		current.Else = next
		current = next
		save = p.pos
		p.skipNewlines()
	}
	if p.at(token.ELSE) {
		p.advance()
		elseBlock, err := p.parseBlock()
		if err != nil {
			return nil, err
		}
		current.Else = elseBlock
	} else {
		p.pos = save
	}
	return root, nil
}

func (p *Parser) parseWhile() (ast.Node, error) {
	whileTok, err := p.consume(token.WHILE)
	if err != nil {
		return nil, err
	}
	if _, err := p.consume(token.LPAREN); err != nil {
		return nil, err
	}
	cond, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if _, err := p.consume(token.RPAREN); err != nil {
		return nil, err
	}
	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	return &ast.WhileStmt{Pos: ast.PosAt(whileTok), Condition: cond, Body: body}, nil
}

func (p *Parser) parseFor() (ast.Node, error) {
	forTok, err := p.consume(token.FOR)
	if err != nil {
		return nil, err
	}
	varTok, err := p.consume(token.IDENTIFIER)
	if err != nil {
		return nil, err
	}
	if _, err := p.consume(token.IN); err != nil {
		return nil, err
	}
	start, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if _, err := p.consume(token.RANGE); err != nil {
		return nil, diag.New(diag.Parse, p.cur().Line, p.cur().Column, "expected '..' in for loop range")
	}
	end, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	return &ast.ForStmt{Pos: ast.PosAt(forTok), VarName: varTok.Text, Start: start, End: end, Body: body}, nil
}

// ---- expressions, lowest to highest precedence ----

func (p *Parser) parseExpression() (ast.Node, error) { return p.parseOr() }

func (p *Parser) parseOr() (ast.Node, error) {
	node, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.at(token.OR) {
		op := p.advance()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		node = &ast.BinaryExpr{Pos: node.Position(), Left: node, Operator: op.Text, Right: right}
	}
	return node, nil
}

func (p *Parser) parseAnd() (ast.Node, error) {
	node, err := p.parseEquality()
	if err != nil {
		return nil, err
	}
	for p.at(token.AND) {
		op := p.advance()
		right, err := p.parseEquality()
		if err != nil {
			return nil, err
		}
		node = &ast.BinaryExpr{Pos: node.Position(), Left: node, Operator: op.Text, Right: right}
	}
	return node, nil
}

func (p *Parser) parseEquality() (ast.Node, error) {
	node, err := p.parseOrdering()
	if err != nil {
		return nil, err
	}
	for p.at(token.EQ) || p.at(token.NE) {
		op := p.advance()
		right, err := p.parseOrdering()
		if err != nil {
			return nil, err
		}
		node = &ast.BinaryExpr{Pos: node.Position(), Left: node, Operator: op.Text, Right: right}
	}
	return node, nil
}

func (p *Parser) parseOrdering() (ast.Node, error) {
	node, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	for p.at(token.LT) || p.at(token.GT) || p.at(token.LE) || p.at(token.GE) {
		op := p.advance()
		right, err := p.parseAdditive()
		if err != nil {
			return nil, err
		}
		node = &ast.BinaryExpr{Pos: node.Position(), Left: node, Operator: op.Text, Right: right}
	}
	return node, nil
}

func (p *Parser) parseAdditive() (ast.Node, error) {
	node, err := p.parseMultiplicative()
	if err != nil {
		return nil, err
	}
	for p.at(token.PLUS) || p.at(token.MINUS) {
		op := p.advance()
		right, err := p.parseMultiplicative()
		if err != nil {
			return nil, err
		}
		node = &ast.BinaryExpr{Pos: node.Position(), Left: node, Operator: op.Text, Right: right}
	}
	return node, nil
}

func (p *Parser) parseMultiplicative() (ast.Node, error) {
	node, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.at(token.STAR) || p.at(token.SLASH) || p.at(token.PERCENT) {
		op := p.advance()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		node = &ast.BinaryExpr{Pos: node.Position(), Left: node, Operator: op.Text, Right: right}
	}
	return node, nil
}

func (p *Parser) parseUnary() (ast.Node, error) {
	switch p.cur().Kind {
	case token.PLUS, token.MINUS, token.NOT:
		op := p.advance()
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &ast.UnaryExpr{Pos: ast.PosAt(op), Operator: op.Text, Operand: operand}, nil
	case token.AMP:
		op := p.advance()
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &ast.AddressOf{Pos: ast.PosAt(op), Operand: operand}, nil
	case token.STAR:
		op := p.advance()
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &ast.Dereference{Pos: ast.PosAt(op), Operand: operand}, nil
	}
	return p.parsePostfix()
}

// parsePostfix parses a primary expression followed by any postfix chain
// (field access, indexing, method calls, '?').
func (p *Parser) parsePostfix() (ast.Node, error) {
	node, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	return p.parsePostfixChain(node)
}

func (p *Parser) parsePrimary() (ast.Node, error) {
	tok := p.cur()

	switch tok.Kind {
	case token.LPAREN:
		p.advance()
		first, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		if p.at(token.COMMA) {
			elems := []ast.Node{first}
			for p.at(token.COMMA) {
				p.advance()
				e, err := p.parseExpression()
				if err != nil {
					return nil, err
				}
				elems = append(elems, e)
			}
			if _, err := p.consume(token.RPAREN); err != nil {
				return nil, err
			}
			return &ast.TupleLiteral{Pos: ast.PosAt(tok), Elements: elems}, nil
		}
		if _, err := p.consume(token.RPAREN); err != nil {
			return nil, err
		}
		return first, nil

	case token.INTEGER:
		p.advance()
		return &ast.Literal{Pos: ast.PosAt(tok), Kind: ast.LitInt, IntVal: *tok.IntValue}, nil

	case token.DECIMAL:
		p.advance()
		return &ast.Literal{Pos: ast.PosAt(tok), Kind: ast.LitDec, DecVal: *tok.DecValue}, nil

	case token.STRING:
		p.advance()
		return &ast.Literal{Pos: ast.PosAt(tok), Kind: ast.LitString, StrVal: tok.Text}, nil

	case token.INTERP_STRING:
		p.advance()
		parts := make([]ast.InterpPart, len(tok.InterpParts))
		for i, part := range tok.InterpParts {
			parts[i] = ast.InterpPart{IsExpr: part.IsExpr, Text: part.Text}
		}
		return &ast.InterpString{Pos: ast.PosAt(tok), Parts: parts}, nil

	case token.TRUE:
		p.advance()
		return &ast.Literal{Pos: ast.PosAt(tok), Kind: ast.LitBool, BoolVal: true}, nil

	case token.FALSE:
		p.advance()
		return &ast.Literal{Pos: ast.PosAt(tok), Kind: ast.LitBool, BoolVal: false}, nil

	case token.NULL:
		p.advance()
		return &ast.NullLiteral{Pos: ast.PosAt(tok)}, nil

	case token.SELF:
		p.advance()
		return &ast.SelfExpr{Pos: ast.PosAt(tok)}, nil

	case token.NEW:
		return p.parseNewExpr()

	case token.LBRACKET:
		return p.parseArrayLiteral()

	case token.IDENTIFIER:
		return p.parsePostfixIdentifier()
	}

	return nil, diag.New(diag.Parse, tok.Line, tok.Column, "unexpected token %s in expression", tok.Kind)
}

func (p *Parser) parseNewExpr() (ast.Node, error) {
	newTok, err := p.consume(token.NEW)
	if err != nil {
		return nil, err
	}
	nameTok, err := p.consume(token.IDENTIFIER)
	if err != nil {
		return nil, err
	}
	var typeArgs []string
	if p.at(token.LT) {
		p.advance()
		t, err := p.parseTypeAnnotation()
		if err != nil {
			return nil, err
		}
		typeArgs = append(typeArgs, t)
		for p.at(token.COMMA) {
			p.advance()
			t, err := p.parseTypeAnnotation()
			if err != nil {
				return nil, err
			}
			typeArgs = append(typeArgs, t)
		}
		if _, err := p.consume(token.GT); err != nil {
			return nil, err
		}
	}
	fields := map[string]ast.Node{}
	var order []string
	if p.at(token.LBRACE) {
		p.advance()
		p.skipNewlines()
		for !p.at(token.RBRACE) {
			fieldTok, err := p.consume(token.IDENTIFIER)
			if err != nil {
				return nil, err
			}
			if _, err := p.consume(token.COLON); err != nil {
				return nil, err
			}
			value, err := p.parseExpression()
			if err != nil {
				return nil, err
			}
			fields[fieldTok.Text] = value
			order = append(order, fieldTok.Text)
			if p.at(token.COMMA) {
				p.advance()
			}
			p.skipNewlines()
		}
		if _, err := p.consume(token.RBRACE); err != nil {
			return nil, err
		}
	}
	return &ast.NewExpr{Pos: ast.PosAt(newTok), StructName: nameTok.Text, TypeArgs: typeArgs, Fields: fields, FieldOrder: order}, nil
}

func (p *Parser) parseArrayLiteral() (ast.Node, error) {
	lbr, err := p.consume(token.LBRACKET)
	if err != nil {
		return nil, err
	}
	var elems []ast.Node
	if !p.at(token.RBRACKET) {
		e, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		elems = append(elems, e)
		for p.at(token.COMMA) {
			p.advance()
			e, err := p.parseExpression()
			if err != nil {
				return nil, err
			}
			elems = append(elems, e)
		}
	}
	if _, err := p.consume(token.RBRACKET); err != nil {
		return nil, err
	}
	return &ast.ArrayLiteral{Pos: ast.PosAt(lbr), Elements: elems}, nil
}

// ParseExprString lexes and parses a single standalone expression, used by
// the code generator to re-parse the expression parts of an interpolated
// string literal at codegen time.
func ParseExprString(src string) (ast.Node, error) {
	toks, err := lexer.New(src).Tokenize()
	if err != nil {
		return nil, err
	}
	p := New(toks)
	p.skipNewlines()
	n, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	return n, nil
}
