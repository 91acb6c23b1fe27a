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
)

func checkSrc(t *testing.T, src string) error {
	t.Helper()
	prog, err := resolveSrc(t, src)
	require.NoError(t, err)
	return Check(prog)
}

func TestCheckWideningIntToDecSucceeds(t *testing.T) {
	err := checkSrc(t, `
Function Main() -> int {
	dec x = 1;
	return 0;
}
`)
	require.NoError(t, err)
}

func TestCheckReturnTypeMismatchFails(t *testing.T) {
	err := checkSrc(t, `
Function Main() -> int {
	return "not an int";
}
`)
	require.Error(t, err)
	var derr *diag.Error
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, diag.Type, derr.Kind)
}

func TestCheckIfConditionMustBeBool(t *testing.T) {
	err := checkSrc(t, `
Function Main() -> int {
	if (1) {
		return 1;
	}
	return 0;
}
`)
	require.Error(t, err)
	var derr *diag.Error
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, diag.Type, derr.Kind)
}

func TestCheckStringConcatenationWidensToString(t *testing.T) {
	err := checkSrc(t, `
Function Main() -> int {
	string s = "count: " + 5;
	return 0;
}
`)
	require.NoError(t, err)
}

func TestCheckTupleUnpackArityMismatchFails(t *testing.T) {
	err := checkSrc(t, `
Function Pair() -> (int,int) {
	return (1, 2);
}
Function Main() -> int {
	int a, int b, int c = Pair();
	return a;
}
`)
	require.Error(t, err)
	var derr *diag.Error
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, diag.Type, derr.Kind)
}

func TestCheckFunctionCallArityWindowWithDefaults(t *testing.T) {
	err := checkSrc(t, `
Function Greet(name: string, times: int = 1) -> int {
	return times;
}
Function Main() -> int {
	Greet("a");
	Greet("a", 2);
	return 0;
}
`)
	require.NoError(t, err)
}

func TestCheckCallTooFewArgumentsFails(t *testing.T) {
	err := checkSrc(t, `
Function Greet(name: string, times: int) -> int {
	return times;
}
Function Main() -> int {
	Greet("a");
	return 0;
}
`)
	require.Error(t, err)
	var derr *diag.Error
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, diag.Type, derr.Kind)
}

func TestCheckUnknownFieldFails(t *testing.T) {
	err := checkSrc(t, `
struct Point {
	var int x;
}
Function Main() -> int {
	var p = new Point{x: 1};
	return p.y;
}
`)
	require.Error(t, err)
	var derr *diag.Error
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, diag.Type, derr.Kind)
}

func TestCheckEnumVariantAccessSucceeds(t *testing.T) {
	err := checkSrc(t, `
enum Color {
	Red,
	Green
}
Function Main() -> int {
	var c = Color.Red;
	return 0;
}
`)
	require.NoError(t, err)
}

func TestCheckArrayIndexRequiresNumeric(t *testing.T) {
	err := checkSrc(t, `
Function Main() -> int {
	var a = [1, 2, 3];
	return a["x"];
}
`)
	require.Error(t, err)
	var derr *diag.Error
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, diag.Type, derr.Kind)
}
