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
// Package lexer tokenizes VYL source text into a flat token stream.
//
// Scanning follows the same peek/advance/emit shape the teacher's
// architecture parsers use when walking objdump lines character by
// character (see amd64_parser.go's instruction scanning), adapted here to
// walk source runes instead of disassembly text.
package lexer

import (
	"strconv"
	"strings"
	"unicode"

	"github.com/vyl-lang/vylc/internal/diag"
	"github.com/vyl-lang/vylc/internal/token"
)

// Lexer scans a single source string into tokens.
type Lexer struct {
	src    []rune
	pos    int
	line   int
	column int
}

// New creates a Lexer over source text.
func New(source string) *Lexer {
	return &Lexer{src: []rune(source), pos: 0, line: 1, column: 1}
}

func (l *Lexer) peek(offset int) rune {
	p := l.pos + offset
	if p >= len(l.src) {
		return 0
	}
	return l.src[p]
}

func (l *Lexer) advance(count int) {
	for i := 0; i < count; i++ {
		if l.pos >= len(l.src) {
			return
		}
		if l.src[l.pos] == '\n' {
			l.line++
			l.column = 1
		} else {
			l.column++
		}
		l.pos++
	}
}

func (l *Lexer) skipWhitespace() {
	for l.pos < len(l.src) {
		c := l.peek(0)
		if c == ' ' || c == '\t' || c == '\r' {
			l.advance(1)
			continue
		}
		break
	}
}

func (l *Lexer) skipComment() {
	if l.peek(0) == '/' && l.peek(1) == '/' {
		l.advance(2)
		for l.pos < len(l.src) && l.peek(0) != '\n' {
			l.advance(1)
		}
	}
}

// Tokenize materializes the full token list, terminated by EOF, as the
// parser requires lookahead across the whole stream.
func (l *Lexer) Tokenize() ([]token.Token, error) {
	var tokens []token.Token
	for {
		tok, err := l.next()
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, tok)
		if tok.Kind == token.EOF {
			break
		}
	}
	return tokens, nil
}

func (l *Lexer) next() (token.Token, error) {
	l.skipWhitespace()
	l.skipComment()
	l.skipWhitespace()

	if l.pos >= len(l.src) {
		return token.Token{Kind: token.EOF, Line: l.line, Column: l.column}, nil
	}

	c := l.peek(0)
	line, column := l.line, l.column

	if c == '\n' {
		l.advance(1)
		return token.Token{Kind: token.NEWLINE, Line: line, Column: column}, nil
	}

	if c == '"' {
		return l.scanString(line, column)
	}

	if unicode.IsDigit(c) {
		return l.scanNumber(line, column)
	}

	if unicode.IsLetter(c) || c == '_' {
		ident := l.scanIdentifier()
		kind, isKeyword := token.Keywords[ident]
		if !isKeyword {
			kind = token.IDENTIFIER
		}
		return token.Token{Kind: kind, Text: ident, Line: line, Column: column}, nil
	}

	two := string(c) + string(l.peek(1))
	switch two {
	case "==":
		l.advance(2)
		return token.Token{Kind: token.EQ, Text: two, Line: line, Column: column}, nil
	case "!=":
		l.advance(2)
		return token.Token{Kind: token.NE, Text: two, Line: line, Column: column}, nil
	case "<=":
		l.advance(2)
		return token.Token{Kind: token.LE, Text: two, Line: line, Column: column}, nil
	case ">=":
		l.advance(2)
		return token.Token{Kind: token.GE, Text: two, Line: line, Column: column}, nil
	case "..":
		l.advance(2)
		return token.Token{Kind: token.RANGE, Text: two, Line: line, Column: column}, nil
	case "->":
		l.advance(2)
		return token.Token{Kind: token.ARROW, Text: two, Line: line, Column: column}, nil
	case "&&":
		l.advance(2)
		return token.Token{Kind: token.AND, Text: two, Line: line, Column: column}, nil
	case "||":
		l.advance(2)
		return token.Token{Kind: token.OR, Text: two, Line: line, Column: column}, nil
	}

	l.advance(1)
	switch c {
	case '+':
		return token.Token{Kind: token.PLUS, Text: "+", Line: line, Column: column}, nil
	case '-':
		return token.Token{Kind: token.MINUS, Text: "-", Line: line, Column: column}, nil
	case '*':
		return token.Token{Kind: token.STAR, Text: "*", Line: line, Column: column}, nil
	case '/':
		return token.Token{Kind: token.SLASH, Text: "/", Line: line, Column: column}, nil
	case '%':
		return token.Token{Kind: token.PERCENT, Text: "%", Line: line, Column: column}, nil
	case '=':
		return token.Token{Kind: token.ASSIGN, Text: "=", Line: line, Column: column}, nil
	case '<':
		return token.Token{Kind: token.LT, Text: "<", Line: line, Column: column}, nil
	case '>':
		return token.Token{Kind: token.GT, Text: ">", Line: line, Column: column}, nil
	case '!':
		return token.Token{Kind: token.NOT, Text: "!", Line: line, Column: column}, nil
	case '&':
		return token.Token{Kind: token.AMP, Text: "&", Line: line, Column: column}, nil
	case '?':
		return token.Token{Kind: token.QUESTION, Text: "?", Line: line, Column: column}, nil
	case '(':
		return token.Token{Kind: token.LPAREN, Text: "(", Line: line, Column: column}, nil
	case ')':
		return token.Token{Kind: token.RPAREN, Text: ")", Line: line, Column: column}, nil
	case '{':
		return token.Token{Kind: token.LBRACE, Text: "{", Line: line, Column: column}, nil
	case '}':
		return token.Token{Kind: token.RBRACE, Text: "}", Line: line, Column: column}, nil
	case '[':
		return token.Token{Kind: token.LBRACKET, Text: "[", Line: line, Column: column}, nil
	case ']':
		return token.Token{Kind: token.RBRACKET, Text: "]", Line: line, Column: column}, nil
	case ';':
		return token.Token{Kind: token.SEMICOLON, Text: ";", Line: line, Column: column}, nil
	case ',':
		return token.Token{Kind: token.COMMA, Text: ",", Line: line, Column: column}, nil
	case '.':
		return token.Token{Kind: token.DOT, Text: ".", Line: line, Column: column}, nil
	case ':':
		return token.Token{Kind: token.COLON, Text: ":", Line: line, Column: column}, nil
	}

	return token.Token{}, diag.New(diag.Lex, line, column, "unexpected character %q", c)
}

// scanString scans a "..." literal, splitting it into interpolation parts
// whenever an unescaped '{' opens an embedded expression. Plain strings
// (no '{') come back as a STRING token; interpolated ones come back as
// INTERP_STRING with InterpParts populated for the code generator to
// re-parse each expression part.
func (l *Lexer) scanString(line, column int) (token.Token, error) {
	l.advance(1) // opening quote
	var plain strings.Builder
	var parts []token.InterpPart
	var textRun strings.Builder
	interpolated := false

	flushText := func() {
		if textRun.Len() > 0 {
			parts = append(parts, token.InterpPart{IsExpr: false, Text: textRun.String()})
			textRun.Reset()
		}
	}

	for {
		if l.pos >= len(l.src) {
			return token.Token{}, diag.New(diag.Lex, line, column, "unterminated string literal")
		}
		c := l.peek(0)
		if c == '"' {
			l.advance(1)
			break
		}
		if c == '\\' {
			l.advance(1)
			esc := l.peek(0)
			var decoded rune
			switch esc {
			case 'n':
				decoded = '\n'
			case 't':
				decoded = '\t'
			case 'r':
				decoded = '\r'
			case '"':
				decoded = '"'
			case '\\':
				decoded = '\\'
			default:
				decoded = esc
			}
			plain.WriteRune(decoded)
			textRun.WriteRune(decoded)
			l.advance(1)
			continue
		}
		if c == '{' {
			interpolated = true
			flushText()
			l.advance(1)
			depth := 1
			var exprText strings.Builder
			for depth > 0 {
				if l.pos >= len(l.src) {
					return token.Token{}, diag.New(diag.Lex, line, column, "unterminated interpolation expression")
				}
				ec := l.peek(0)
				if ec == '{' {
					depth++
				} else if ec == '}' {
					depth--
					if depth == 0 {
						l.advance(1)
						break
					}
				}
				exprText.WriteRune(ec)
				l.advance(1)
			}
			parts = append(parts, token.InterpPart{IsExpr: true, Text: exprText.String()})
			continue
		}
		plain.WriteRune(c)
		textRun.WriteRune(c)
		l.advance(1)
	}
	flushText()

	if interpolated {
		return token.Token{Kind: token.INTERP_STRING, Text: plain.String(), InterpParts: parts, Line: line, Column: column}, nil
	}
	return token.Token{Kind: token.STRING, Text: plain.String(), Line: line, Column: column}, nil
}

// scanNumber scans an integer or decimal literal, disambiguating a
// trailing ".." range operator from a decimal point: a single '.' not
// followed by a second '.' starts a fraction; two dots ends the number and
// leaves the range operator for the next token.
func (l *Lexer) scanNumber(line, column int) (token.Token, error) {
	start := l.pos
	hasDot := false
	for l.pos < len(l.src) {
		c := l.peek(0)
		if c == '.' {
			if l.peek(1) == '.' {
				break
			}
			if hasDot {
				return token.Token{}, diag.New(diag.Lex, line, column, "malformed number literal: multiple decimal points")
			}
			hasDot = true
			l.advance(1)
			continue
		}
		if !unicode.IsDigit(c) {
			break
		}
		l.advance(1)
	}
	text := string(l.src[start:l.pos])
	if hasDot {
		v, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return token.Token{}, diag.New(diag.Lex, line, column, "malformed decimal literal %q", text)
		}
		return token.Token{Kind: token.DECIMAL, Text: text, DecValue: &v, Line: line, Column: column}, nil
	}
	v, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		return token.Token{}, diag.New(diag.Lex, line, column, "malformed integer literal %q", text)
	}
	return token.Token{Kind: token.INTEGER, Text: text, IntValue: &v, Line: line, Column: column}, nil
}

func (l *Lexer) scanIdentifier() string {
	start := l.pos
	for l.pos < len(l.src) {
		c := l.peek(0)
		if !(unicode.IsLetter(c) || unicode.IsDigit(c) || c == '_') {
			break
		}
		l.advance(1)
	}
	return string(l.src[start:l.pos])
}
