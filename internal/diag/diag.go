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
// Package diag defines the classified error type shared by every compiler
// phase: lexer, parser, resolver, type checker, code generator, and the
// include preprocessor.
package diag

import "fmt"

// Kind classifies which phase raised an Error.
type Kind int

const (
	Lex Kind = iota
	Parse
	Resolve
	Type
	Codegen
	Include
)

func (k Kind) String() string {
	switch k {
	case Lex:
		return "Lex"
	case Parse:
		return "Parse"
	case Resolve:
		return "Resolve"
	case Type:
		return "Type"
	case Codegen:
		return "Codegen"
	case Include:
		return "Include"
	default:
		return "Unknown"
	}
}

// Error is the single error type returned by every compiler phase. Line and
// Column are 0 when not meaningful (e.g. a missing-Main error has no single
// source location).
type Error struct {
	Kind    Kind
	Line    int
	Column  int
	Message string
}

func (e *Error) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s error at line %d, column %d: %s", e.Kind, e.Line, e.Column, e.Message)
	}
	return fmt.Sprintf("%s error: %s", e.Kind, e.Message)
}

// Is reports whether target is an *Error of the same Kind, so
// errors.Is(err, &diag.Error{Kind: diag.Lex}) matches any Lex error. A bare
// Kind value is not an error and cannot serve as the target.
func (e *Error) Is(target error) bool {
	other, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == other.Kind
}

// New constructs a located Error.
func New(kind Kind, line, column int, format string, args ...any) *Error {
	return &Error{Kind: kind, Line: line, Column: column, Message: fmt.Sprintf(format, args...)}
}

// Unlocated constructs an Error with no meaningful source position, e.g. a
// missing Main function.
func Unlocated(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}
