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
package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyl-lang/vylc/internal/ast"
	"github.com/vyl-lang/vylc/internal/diag"
	"github.com/vyl-lang/vylc/internal/lexer"
)

func parseSrc(t *testing.T, src string) *ast.Program {
	t.Helper()
	toks, err := lexer.New(src).Tokenize()
	require.NoError(t, err)
	prog, err := New(toks).Parse()
	require.NoError(t, err)
	return prog
}

func TestOperatorPrecedence(t *testing.T) {
	prog := parseSrc(t, "var x = 1 + 2 * 3;")
	decl := prog.Statements[0].(*ast.VarDecl)
	bin := decl.Value.(*ast.BinaryExpr)
	assert.Equal(t, "+", bin.Operator)
	right := bin.Right.(*ast.BinaryExpr)
	assert.Equal(t, "*", right.Operator)
}

func TestComparisonAndLogicalPrecedence(t *testing.T) {
	prog := parseSrc(t, "var x = a < b && c > d;")
	decl := prog.Statements[0].(*ast.VarDecl)
	and := decl.Value.(*ast.BinaryExpr)
	assert.Equal(t, "&&", and.Operator)
	assert.Equal(t, "<", and.Left.(*ast.BinaryExpr).Operator)
	assert.Equal(t, ">", and.Right.(*ast.BinaryExpr).Operator)
}

func TestPostfixChainCallFieldIndexMethodTry(t *testing.T) {
	prog := parseSrc(t, "x = a.b[0].c(1)?;")
	asg := prog.Statements[0].(*ast.Assignment)
	try := asg.Value.(*ast.TryExpr)
	call := try.Inner.(*ast.MethodCall)
	assert.Equal(t, "c", call.Method)
	idx := call.Receiver.(*ast.IndexExpr)
	field := idx.Receiver.(*ast.FieldAccess)
	assert.Equal(t, "b", field.Field)
}

func TestParseStructDeclWithFieldsAndMethod(t *testing.T) {
	prog := parseSrc(t, `struct Point {
		var int x;
		var int y;
		Function Sum() -> int {
			return self.x + self.y;
		}
	}`)
	sd := prog.Statements[0].(*ast.StructDef)
	assert.Equal(t, "Point", sd.Name)
	require.Len(t, sd.Fields, 2)
	assert.Equal(t, "x", sd.Fields[0].Name)
	assert.Equal(t, "int", sd.Fields[0].Type)
	require.Len(t, sd.Methods, 1)
	assert.Equal(t, "Sum", sd.Methods[0].Name)
	assert.Equal(t, "int", sd.Methods[0].ReturnType)
}

func TestParseGenericStructDecl(t *testing.T) {
	prog := parseSrc(t, `struct Box<T> {
		var T value;
	}`)
	sd := prog.Statements[0].(*ast.StructDef)
	assert.Equal(t, []string{"T"}, sd.TypeParams)
	assert.Equal(t, "T", sd.Fields[0].Type)
}

func TestParseEnumDecl(t *testing.T) {
	prog := parseSrc(t, `enum Color {
		Red,
		Green = 5,
		Blue
	}`)
	ed := prog.Statements[0].(*ast.EnumDef)
	require.Len(t, ed.Variants, 3)
	assert.Equal(t, "Red", ed.Variants[0].Name)
	assert.Nil(t, ed.Variants[0].Value)
	require.NotNil(t, ed.Variants[1].Value)
	assert.Equal(t, int64(5), *ed.Variants[1].Value)
}

func TestParseInterfaceDecl(t *testing.T) {
	prog := parseSrc(t, `interface Shape {
		Function Area() -> int;
	}`)
	id := prog.Statements[0].(*ast.InterfaceDef)
	require.Len(t, id.Methods, 1)
	assert.Equal(t, "Area", id.Methods[0].Name)
	assert.Equal(t, "int", id.Methods[0].ReturnType)
}

func TestParseNewExprWithGenericTypeArgs(t *testing.T) {
	prog := parseSrc(t, `var b = new Box<int>{value: 1};`)
	decl := prog.Statements[0].(*ast.VarDecl)
	n := decl.Value.(*ast.NewExpr)
	assert.Equal(t, "Box", n.StructName)
	assert.Equal(t, []string{"int"}, n.TypeArgs)
	assert.Equal(t, []string{"value"}, n.FieldOrder)
}

func TestParseArrayAndTupleLiterals(t *testing.T) {
	prog := parseSrc(t, "var a = [1, 2, 3];")
	arr := prog.Statements[0].(*ast.VarDecl).Value.(*ast.ArrayLiteral)
	assert.Len(t, arr.Elements, 3)

	prog = parseSrc(t, "var t = (1, 2);")
	tup := prog.Statements[0].(*ast.VarDecl).Value.(*ast.TupleLiteral)
	assert.Len(t, tup.Elements, 2)
}

func TestParseIfElifElse(t *testing.T) {
	prog := parseSrc(t, `if (a) {
		x = 1;
	} elif (b) {
		x = 2;
	} else {
		x = 3;
	}`)
	root := prog.Statements[0].(*ast.IfStmt)
	elif := root.Else.(*ast.IfStmt)
	require.NotNil(t, elif)
	_, isBlock := elif.Else.(*ast.Block)
	assert.True(t, isBlock)
}

func TestParseForRangeLoop(t *testing.T) {
	prog := parseSrc(t, `for i in 0..10 {
		Print(i);
	}`)
	f := prog.Statements[0].(*ast.ForStmt)
	assert.Equal(t, "i", f.VarName)
}

func TestParseMissingSemicolonFails(t *testing.T) {
	toks, err := lexer.New("var x = 1\nvar y = 2;").Tokenize()
	require.NoError(t, err)
	_, err = New(toks).Parse()
	require.Error(t, err)
	var derr *diag.Error
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, diag.Parse, derr.Kind)
}

func TestParseUnexpectedTokenFails(t *testing.T) {
	toks, err := lexer.New("} x").Tokenize()
	require.NoError(t, err)
	_, err = New(toks).Parse()
	require.Error(t, err)
	var derr *diag.Error
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, diag.Parse, derr.Kind)
}
