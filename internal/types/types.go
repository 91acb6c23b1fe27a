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
// Package types models the small VYL type grammar the resolver and type
// checker compute over: primitives, struct/enum names, pointers, typed
// arrays, tuples, and the two void forms the code generator relies on.
package types

import "strings"

// Kind discriminates the shape of a Type.
type Kind int

const (
	Invalid Kind = iota
	Int
	Dec
	Bool
	String
	Named   // struct, enum, or interface name
	Pointer // *T
	Array   // T[]
	Tuple   // (T1, T2, ...)
	Void
	VoidPtr // *void, the untyped null/pointer sentinel
)

// Type is an immutable value type; Elem/Name/Elems are populated according
// to Kind.
type Type struct {
	Kind  Kind
	Name  string // Named
	Elem  *Type  // Pointer, Array
	Elems []Type // Tuple
}

func Primitive(k Kind) Type { return Type{Kind: k} }

var (
	TInt    = Type{Kind: Int}
	TDec    = Type{Kind: Dec}
	TBool   = Type{Kind: Bool}
	TString = Type{Kind: String}
	TVoid   = Type{Kind: Void}
	TVoidP  = Type{Kind: VoidPtr}
)

func NamedType(name string) Type { return Type{Kind: Named, Name: name} }

func PointerTo(elem Type) Type { return Type{Kind: Pointer, Elem: &elem} }

func ArrayOf(elem Type) Type { return Type{Kind: Array, Elem: &elem} }

func TupleOf(elems ...Type) Type { return Type{Kind: Tuple, Elems: elems} }

// Numeric reports whether t is int or dec.
func (t Type) Numeric() bool { return t.Kind == Int || t.Kind == Dec }

func (t Type) Equal(other Type) bool {
	if t.Kind != other.Kind {
		return false
	}
	switch t.Kind {
	case Named:
		return t.Name == other.Name
	case Pointer, Array:
		if t.Elem == nil || other.Elem == nil {
			return t.Elem == other.Elem
		}
		return t.Elem.Equal(*other.Elem)
	case Tuple:
		if len(t.Elems) != len(other.Elems) {
			return false
		}
		for i := range t.Elems {
			if !t.Elems[i].Equal(other.Elems[i]) {
				return false
			}
		}
		return true
	default:
		return true
	}
}

// Widenable reports whether a value of type t may be used where `other` is
// expected: identical types, int → dec numeric widening, or *void → *T
// pointer widening (in either direction, since *void is also a valid
// target for any pointer-typed slot such as Len's sentinel comparisons).
func (t Type) Widenable(other Type) bool {
	if t.Equal(other) {
		return true
	}
	if t.Kind == Int && other.Kind == Dec {
		return true
	}
	if t.Kind == VoidPtr && other.Kind == Pointer {
		return true
	}
	if t.Kind == Pointer && other.Kind == VoidPtr {
		return true
	}
	return false
}

// Comparable reports whether == and != are legal between t and other:
// identical types, or *void against any pointer.
func (t Type) Comparable(other Type) bool {
	if t.Equal(other) {
		return true
	}
	if t.Kind == VoidPtr && other.Kind == Pointer {
		return true
	}
	if t.Kind == Pointer && other.Kind == VoidPtr {
		return true
	}
	return false
}

func (t Type) String() string {
	switch t.Kind {
	case Int:
		return "int"
	case Dec:
		return "dec"
	case Bool:
		return "bool"
	case String:
		return "string"
	case Void:
		return "void"
	case VoidPtr:
		return "*void"
	case Named:
		return t.Name
	case Pointer:
		if t.Elem == nil {
			return "*?"
		}
		return "*" + t.Elem.String()
	case Array:
		if t.Elem == nil {
			return "?[]"
		}
		return t.Elem.String() + "[]"
	case Tuple:
		parts := make([]string, len(t.Elems))
		for i, e := range t.Elems {
			parts[i] = e.String()
		}
		return "(" + strings.Join(parts, ", ") + ")"
	default:
		return "<invalid>"
	}
}

// Parse converts a type annotation string produced by the parser (e.g.
// "int", "*Node", "dec[]", "(int, string)", "Box<int>") into a Type. Named
// types carry any generic argument list verbatim in Name ("Box<int>" stays
// "Box<int>"); nothing maps such a name to its mangled Box$int form.
func Parse(s string) Type {
	s = strings.TrimSpace(s)
	switch s {
	case "", "int":
		return TInt
	case "dec":
		return TDec
	case "bool":
		return TBool
	case "string":
		return TString
	case "void":
		return TVoid
	case "*void":
		return TVoidP
	}
	if strings.HasSuffix(s, "[]") {
		return ArrayOf(Parse(strings.TrimSuffix(s, "[]")))
	}
	if strings.HasPrefix(s, "*") {
		return PointerTo(Parse(s[1:]))
	}
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		inner := s[1 : len(s)-1]
		if strings.TrimSpace(inner) == "" {
			return TupleOf()
		}
		parts := splitTopLevel(inner)
		elems := make([]Type, len(parts))
		for i, p := range parts {
			elems[i] = Parse(p)
		}
		return TupleOf(elems...)
	}
	return NamedType(s)
}

// splitTopLevel splits a comma list respecting nested <>, (), [] so
// "Box<int>, string" splits into two parts, not three.
func splitTopLevel(s string) []string {
	var parts []string
	depth := 0
	start := 0
	for i, c := range s {
		switch c {
		case '<', '(', '[':
			depth++
		case '>', ')', ']':
			depth--
		case ',':
			if depth == 0 {
				parts = append(parts, strings.TrimSpace(s[start:i]))
				start = i + 1
			}
		}
	}
	parts = append(parts, strings.TrimSpace(s[start:]))
	return parts
}
