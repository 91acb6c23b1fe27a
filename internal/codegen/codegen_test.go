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
package codegen

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyl-lang/vylc/internal/generics"
	"github.com/vyl-lang/vylc/internal/lexer"
	"github.com/vyl-lang/vylc/internal/parser"
	"github.com/vyl-lang/vylc/internal/sema"
)

func generateSrc(t *testing.T, src string) string {
	t.Helper()
	toks, err := lexer.New(src).Tokenize()
	require.NoError(t, err)
	file, err := parser.New(toks).Parse()
	require.NoError(t, err)
	require.NoError(t, generics.Expand(file))
	prog, err := sema.Resolve(file)
	require.NoError(t, err)
	require.NoError(t, sema.Check(prog))
	asm, err := Generate(prog)
	require.NoError(t, err)
	return asm
}

func TestGenerateEmitsEntryPointAndGlobls(t *testing.T) {
	asm := generateSrc(t, `
Function Main() -> int {
	return 0;
}
`)
	assert.Contains(t, asm, ".globl main")
	assert.Contains(t, asm, "main:")
	assert.Contains(t, asm, "call Main")
	assert.Contains(t, asm, "syscall")
}

func TestGenerateArithmeticUsesIntegerInstructions(t *testing.T) {
	asm := generateSrc(t, `
Function Main() -> int {
	var x = 1 + 2 * 3;
	return x;
}
`)
	assert.Contains(t, asm, "imul")
	assert.Contains(t, asm, "add")
}

func TestGenerateStringConcatenationCallsRuntimeHelper(t *testing.T) {
	asm := generateSrc(t, `
Function Main() -> int {
	var s = "a" + "b";
	return 0;
}
`)
	assert.Contains(t, asm, "call vyl_concat_two")
}

func TestGenerateCounterLoopTakesRegisterResidentFastPath(t *testing.T) {
	asm := generateSrc(t, `
Function Main() -> int {
	var i = 0;
	while (i < 10) {
		i = i + 1;
	}
	return i;
}
`)
	assert.Contains(t, asm, ".Lcloop_")
	assert.Contains(t, asm, "jge")
}

func TestGenerateStructFieldAccessUsesComputedOffset(t *testing.T) {
	asm := generateSrc(t, `
struct Point {
	var int x;
	var int y;
}
Function Main() -> int {
	var p = new Point{x: 1, y: 2};
	return p.y;
}
`)
	assert.Contains(t, asm, "call vyl_alloc")
	assert.Contains(t, asm, "8(%rax)")
}

func TestGenerateDeferRunsAtSharedReturnLabel(t *testing.T) {
	asm := generateSrc(t, `
Function Main() -> int {
	defer {
		Print("done");
	}
	return 1;
}
`)
	assert.Contains(t, asm, "jmp .Lret_")
	assert.Contains(t, asm, "call print_string")
}

func TestGenerateTryExprJumpsToReturnOnNegative(t *testing.T) {
	asm := generateSrc(t, `
Function MayFail() -> int {
	return -1;
}
Function Main() -> int {
	var x = MayFail()?;
	return x;
}
`)
	assert.Contains(t, asm, "jge .Ltry_ok_")
}

func TestGenerateArrayIndexEmitsBoundsCheck(t *testing.T) {
	asm := generateSrc(t, `
Function Main() -> int {
	var a = [1, 2, 3];
	return a[0];
}
`)
	assert.Contains(t, asm, "vyl_bounds_fail")
}

func TestGenerateMethodCallPassesSelfFirst(t *testing.T) {
	asm := generateSrc(t, `
struct Counter {
	var int n;
	Function Get() -> int {
		return self.n;
	}
}
Function Main() -> int {
	var c = new Counter{n: 1};
	return c.Get();
}
`)
	assert.Contains(t, asm, "Counter_Get:")
	assert.Contains(t, asm, "call Counter_Get")
}

func TestGenerateIsDeterministic(t *testing.T) {
	src := `
Function Main() -> int {
	var x = 1 + 2;
	return x;
}
`
	first := generateSrc(t, src)
	second := generateSrc(t, src)
	assert.Equal(t, first, second)
}

func TestGenerateGenericStructUsesMonomorphizedLabel(t *testing.T) {
	asm := generateSrc(t, `
struct Box<T> {
	var T value;
	Function Get() -> T {
		return self.value;
	}
}
Function Main() -> int {
	var b = new Box<int>{value: 1};
	return b.Get();
}
`)
	assert.True(t, strings.Contains(asm, "Box$int_Get:"))
}
