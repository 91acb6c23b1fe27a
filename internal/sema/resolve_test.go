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
package sema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyl-lang/vylc/internal/diag"
	"github.com/vyl-lang/vylc/internal/lexer"
	"github.com/vyl-lang/vylc/internal/parser"
)

func resolveSrc(t *testing.T, src string) (*Program, error) {
	t.Helper()
	toks, err := lexer.New(src).Tokenize()
	require.NoError(t, err)
	file, err := parser.New(toks).Parse()
	require.NoError(t, err)
	return Resolve(file)
}

func TestResolveCollectsFunctionsStructsEnums(t *testing.T) {
	prog, err := resolveSrc(t, `
struct Point {
	var int x;
	var int y;
}
enum Color {
	Red,
	Green,
	Blue
}
Function Main() -> int {
	return 0;
}
`)
	require.NoError(t, err)
	assert.Contains(t, prog.Functions, "Main")
	assert.Contains(t, prog.Structs, "Point")
	assert.Contains(t, prog.Enums, "Color")
	assert.Equal(t, int64(0), prog.EnumValues["Color"]["Red"])
	assert.Equal(t, int64(1), prog.EnumValues["Color"]["Green"])
	assert.Equal(t, int64(2), prog.EnumValues["Color"]["Blue"])
}

func TestResolveMethodsAttachToStruct(t *testing.T) {
	prog, err := resolveSrc(t, `
struct Counter {
	var int n;
	Function Inc() -> int {
		return self.n + 1;
	}
}
Function Main() -> int {
	return 0;
}
`)
	require.NoError(t, err)
	require.Contains(t, prog.Methods, "Counter")
	require.Contains(t, prog.Methods["Counter"], "Inc")
}

func TestResolveUndeclaredIdentifierFails(t *testing.T) {
	_, err := resolveSrc(t, `
Function Main() -> int {
	return undeclaredName;
}
`)
	require.Error(t, err)
	var derr *diag.Error
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, diag.Resolve, derr.Kind)
}

func TestResolveImmutableAssignmentFails(t *testing.T) {
	_, err := resolveSrc(t, `
Function Main() -> int {
	let x = 1;
	x = 2;
	return x;
}
`)
	require.Error(t, err)
	var derr *diag.Error
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, diag.Resolve, derr.Kind)
}

func TestResolveMutableAssignmentSucceeds(t *testing.T) {
	_, err := resolveSrc(t, `
Function Main() -> int {
	var x = 1;
	x = 2;
	return x;
}
`)
	require.NoError(t, err)
}
