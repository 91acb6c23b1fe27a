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
package generics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyl-lang/vylc/internal/ast"
	"github.com/vyl-lang/vylc/internal/lexer"
	"github.com/vyl-lang/vylc/internal/parser"
)

func parseProgram(t *testing.T, src string) *ast.Program {
	t.Helper()
	toks, err := lexer.New(src).Tokenize()
	require.NoError(t, err)
	prog, err := parser.New(toks).Parse()
	require.NoError(t, err)
	return prog
}

func TestMangleJoinsTypeArgsWithDollar(t *testing.T) {
	assert.Equal(t, "Box", Mangle("Box", nil))
	assert.Equal(t, "Box$int", Mangle("Box", []string{"int"}))
	assert.Equal(t, "Pair$int$string", Mangle("Pair", []string{"int", "string"}))
}

func TestExpandReplacesGenericStructWithMonomorphizedInstantiation(t *testing.T) {
	prog := parseProgram(t, `
struct Box<T> {
	var T value;
	Function Get() -> T {
		return self.value;
	}
}
Function Main() -> int {
	var b = new Box<int>{value: 1};
	return b.value;
}
`)
	require.NoError(t, Expand(prog))

	var names []string
	for _, stmt := range prog.Statements {
		if sd, ok := stmt.(*ast.StructDef); ok {
			names = append(names, sd.Name)
		}
	}
	assert.NotContains(t, names, "Box")
	assert.Contains(t, names, "Box$int")

	for _, stmt := range prog.Statements {
		if sd, ok := stmt.(*ast.StructDef); ok && sd.Name == "Box$int" {
			require.Len(t, sd.Fields, 1)
			assert.Equal(t, "int", sd.Fields[0].Type)
			require.Len(t, sd.Methods, 1)
			assert.Equal(t, "int", sd.Methods[0].ReturnType)
		}
	}
}

func TestExpandRewritesNewExprToMangledName(t *testing.T) {
	prog := parseProgram(t, `
struct Box<T> {
	var T value;
}
Function Main() -> int {
	var b = new Box<int>{value: 1};
	return 0;
}
`)
	require.NoError(t, Expand(prog))

	var mainFn *ast.FunctionDef
	for _, stmt := range prog.Statements {
		if fn, ok := stmt.(*ast.FunctionDef); ok && fn.Name == "Main" {
			mainFn = fn
		}
	}
	require.NotNil(t, mainFn)
	decl := mainFn.Body.Statements[0].(*ast.VarDecl)
	newExpr := decl.Value.(*ast.NewExpr)
	assert.Equal(t, "Box$int", newExpr.StructName)
	assert.Empty(t, newExpr.TypeArgs)
}

func TestExpandProducesDistinctInstantiationsPerTypeArgSet(t *testing.T) {
	prog := parseProgram(t, `
struct Box<T> {
	var T value;
}
Function Main() -> int {
	var a = new Box<int>{value: 1};
	var b = new Box<string>{value: "x"};
	return 0;
}
`)
	require.NoError(t, Expand(prog))

	var names []string
	for _, stmt := range prog.Statements {
		if sd, ok := stmt.(*ast.StructDef); ok {
			names = append(names, sd.Name)
		}
	}
	assert.Contains(t, names, "Box$int")
	assert.Contains(t, names, "Box$string")
}

func TestExpandIsNoopWithoutGenericStructs(t *testing.T) {
	prog := parseProgram(t, `
struct Point {
	var int x;
}
Function Main() -> int {
	return 0;
}
`)
	before := len(prog.Statements)
	require.NoError(t, Expand(prog))
	assert.Len(t, prog.Statements, before)
}
