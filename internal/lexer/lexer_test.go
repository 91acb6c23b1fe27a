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
package lexer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyl-lang/vylc/internal/diag"
	"github.com/vyl-lang/vylc/internal/token"
)

func kinds(toks []token.Token) []token.Kind {
	out := make([]token.Kind, len(toks))
	for i, t := range toks {
		out[i] = t.Kind
	}
	return out
}

func TestTokenizeBasicStatement(t *testing.T) {
	toks, err := New("var x = 1 + 2\n").Tokenize()
	require.NoError(t, err)
	assert.Equal(t, []token.Kind{
		token.VAR, token.IDENTIFIER, token.ASSIGN, token.INTEGER,
		token.PLUS, token.INTEGER, token.NEWLINE, token.EOF,
	}, kinds(toks))
}

func TestTokenizeSkipsCommentsAndWhitespace(t *testing.T) {
	toks, err := New("  // a comment\n\tvar y\n").Tokenize()
	require.NoError(t, err)
	assert.Equal(t, []token.Kind{token.NEWLINE, token.VAR, token.IDENTIFIER, token.NEWLINE, token.EOF}, kinds(toks))
}

func TestTokenizeMultiCharOperators(t *testing.T) {
	toks, err := New("a == b != c <= d >= e && f || g -> h").Tokenize()
	require.NoError(t, err)
	assert.Equal(t, []token.Kind{
		token.IDENTIFIER, token.EQ, token.IDENTIFIER, token.NE, token.IDENTIFIER,
		token.LE, token.IDENTIFIER, token.GE, token.IDENTIFIER, token.AND,
		token.IDENTIFIER, token.OR, token.IDENTIFIER, token.ARROW, token.IDENTIFIER, token.EOF,
	}, kinds(toks))
}

func TestTokenizeRangeVsDecimalDisambiguation(t *testing.T) {
	toks, err := New("1..5").Tokenize()
	require.NoError(t, err)
	require.Len(t, toks, 4) // INTEGER RANGE INTEGER EOF
	assert.Equal(t, token.INTEGER, toks[0].Kind)
	assert.Equal(t, token.RANGE, toks[1].Kind)
	assert.Equal(t, token.INTEGER, toks[2].Kind)

	toks, err = New("3.14").Tokenize()
	require.NoError(t, err)
	require.Len(t, toks, 2) // DECIMAL EOF
	assert.Equal(t, token.DECIMAL, toks[0].Kind)
	require.NotNil(t, toks[0].DecValue)
	assert.InDelta(t, 3.14, *toks[0].DecValue, 0.0001)
}

func TestTokenizeInterpolatedString(t *testing.T) {
	toks, err := New(`"hello {name}!"`).Tokenize()
	require.NoError(t, err)
	require.Len(t, toks, 2)
	require.Equal(t, token.INTERP_STRING, toks[0].Kind)
	require.Len(t, toks[0].InterpParts, 3)
	assert.False(t, toks[0].InterpParts[0].IsExpr)
	assert.Equal(t, "hello ", toks[0].InterpParts[0].Text)
	assert.True(t, toks[0].InterpParts[1].IsExpr)
	assert.Equal(t, "name", toks[0].InterpParts[1].Text)
	assert.False(t, toks[0].InterpParts[2].IsExpr)
	assert.Equal(t, "!", toks[0].InterpParts[2].Text)
}

func TestTokenizePlainStringHasNoInterpParts(t *testing.T) {
	toks, err := New(`"no braces here"`).Tokenize()
	require.NoError(t, err)
	require.Equal(t, token.STRING, toks[0].Kind)
	assert.Nil(t, toks[0].InterpParts)
}

func TestTokenizeKeywords(t *testing.T) {
	toks, err := New("struct enum interface self null true false").Tokenize()
	require.NoError(t, err)
	assert.Equal(t, []token.Kind{
		token.STRUCT, token.ENUM, token.INTERFACE, token.SELF, token.NULL, token.TRUE, token.FALSE, token.EOF,
	}, kinds(toks))
}

func TestTokenizeUnexpectedCharacterFails(t *testing.T) {
	_, err := New("x = @").Tokenize()
	require.Error(t, err)
	var derr *diag.Error
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, diag.Lex, derr.Kind)
}

func TestTokenizeUnterminatedStringFails(t *testing.T) {
	_, err := New(`"unterminated`).Tokenize()
	require.Error(t, err)
	var derr *diag.Error
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, diag.Lex, derr.Kind)
}

func TestTokenizeMalformedDecimalFails(t *testing.T) {
	_, err := New("1.2.3..4").Tokenize()
	require.Error(t, err)
	var derr *diag.Error
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, diag.Lex, derr.Kind)
}
