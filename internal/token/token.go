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
// Package token defines the flat token representation produced by the
// lexer and consumed by the parser.
package token

import "fmt"

// Kind is a closed enumeration over every token kind the lexer produces.
type Kind int

const (
	EOF Kind = iota
	NEWLINE

	IDENTIFIER
	INTEGER
	DECIMAL
	STRING
	INTERP_STRING

	// Keywords
	VAR
	LET
	MUT
	IF
	ELIF
	ELSE
	WHILE
	FOR
	IN
	STRUCT
	ENUM
	INTERFACE
	NEW
	RETURN
	DEFER
	SELF
	NULL
	FUNCTION
	IMPORT

	// Type names
	INT_TYPE
	DEC_TYPE
	STRING_TYPE
	BOOL_TYPE

	// Boolean literals
	TRUE
	FALSE

	// Operators
	PLUS
	MINUS
	STAR
	SLASH
	PERCENT
	ASSIGN
	EQ
	NE
	LT
	GT
	LE
	GE
	AND
	OR
	NOT
	AMP
	RANGE
	ARROW
	QUESTION

	// Punctuation
	LPAREN
	RPAREN
	LBRACE
	RBRACE
	LBRACKET
	RBRACKET
	SEMICOLON
	COMMA
	DOT
	COLON
)

var names = map[Kind]string{
	EOF: "EOF", NEWLINE: "NEWLINE",
	IDENTIFIER: "IDENTIFIER", INTEGER: "INTEGER", DECIMAL: "DECIMAL",
	STRING: "STRING", INTERP_STRING: "INTERP_STRING",
	VAR: "var", LET: "let", MUT: "mut", IF: "if", ELIF: "elif", ELSE: "else",
	WHILE: "while", FOR: "for", IN: "in", STRUCT: "struct", ENUM: "enum",
	INTERFACE: "interface", NEW: "new", RETURN: "return", DEFER: "defer",
	SELF: "self", NULL: "null", FUNCTION: "Function", IMPORT: "import",
	INT_TYPE: "int", DEC_TYPE: "dec", STRING_TYPE: "string", BOOL_TYPE: "bool",
	TRUE: "true", FALSE: "false",
	PLUS: "+", MINUS: "-", STAR: "*", SLASH: "/", PERCENT: "%", ASSIGN: "=",
	EQ: "==", NE: "!=", LT: "<", GT: ">", LE: "<=", GE: ">=",
	AND: "&&", OR: "||", NOT: "!", AMP: "&", RANGE: "..", ARROW: "->", QUESTION: "?",
	LPAREN: "(", RPAREN: ")", LBRACE: "{", RBRACE: "}", LBRACKET: "[", RBRACKET: "]",
	SEMICOLON: ";", COMMA: ",", DOT: ".", COLON: ":",
}

func (k Kind) String() string {
	if s, ok := names[k]; ok {
		return s
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Keywords maps identifier text to its keyword Kind. Anything absent from
// this table lexes as IDENTIFIER.
var Keywords = map[string]Kind{
	"var": VAR, "let": LET, "mut": MUT, "if": IF, "elif": ELIF, "else": ELSE,
	"while": WHILE, "for": FOR, "in": IN, "struct": STRUCT, "enum": ENUM,
	"interface": INTERFACE, "new": NEW, "return": RETURN, "defer": DEFER,
	"self": SELF, "null": NULL, "Function": FUNCTION, "import": IMPORT, "include": IMPORT,
	"int": INT_TYPE, "dec": DEC_TYPE, "string": STRING_TYPE, "bool": BOOL_TYPE,
	"true": TRUE, "false": FALSE,
}

// InterpPart is one piece of an interpolated string literal: either a
// literal text run or an embedded expression's raw source text.
type InterpPart struct {
	IsExpr bool
	Text   string
}

// Token is an immutable record describing one lexical unit.
type Token struct {
	Kind        Kind
	Text        string
	IntValue    *int64
	DecValue    *float64
	InterpParts []InterpPart
	Line        int
	Column      int
}

func (t Token) String() string {
	if t.Text != "" {
		return fmt.Sprintf("Token(%s, %q, line=%d)", t.Kind, t.Text, t.Line)
	}
	return fmt.Sprintf("Token(%s, line=%d)", t.Kind, t.Line)
}
