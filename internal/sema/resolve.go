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
// Package sema implements the two-pass semantic analysis shared by every
// VYL compilation: a resolver that builds the top-level symbol tables and
// enforces scoping/mutability, followed by a type checker that annotates
// and validates expressions against those tables.
package sema

import (
	"github.com/samber/lo"

	"github.com/vyl-lang/vylc/internal/ast"
	"github.com/vyl-lang/vylc/internal/builtins"
	"github.com/vyl-lang/vylc/internal/diag"
)

// FunctionSig records a user function or method's declared shape.
type FunctionSig struct {
	Def        *ast.FunctionDef // nil for methods
	Method     *ast.MethodDef   // nil for plain functions
	ReturnType string
}

func (f FunctionSig) Params() []ast.Param {
	if f.Method != nil {
		return f.Method.Params
	}
	return f.Def.Params
}

// MethodTable maps struct name -> method name -> signature.
type MethodTable map[string]map[string]FunctionSig

// EnumTable maps enum name -> variant name -> resolved integer value.
type EnumTable map[string]map[string]int64

// Program is the resolver's output: the global tables the type checker
// and code generator consume.
type Program struct {
	Functions  map[string]FunctionSig
	Structs    map[string]*ast.StructDef
	Enums      map[string]*ast.EnumDef
	EnumValues EnumTable
	Interfaces map[string]*ast.InterfaceDef
	Methods    MethodTable
	Main       *ast.FunctionDef
}

type varInfo struct {
	Type      string
	IsMutable bool
}

type scope struct {
	vars map[string]varInfo
}

func newScope() *scope { return &scope{vars: map[string]varInfo{}} }

func (s *scope) copy() *scope {
	c := newScope()
	for k, v := range s.vars {
		c.vars[k] = v
	}
	return c
}

// resolver walks function/method bodies with a scoped environment after
// the global table pass has completed.
type resolver struct {
	prog       *Program
	inMethod   bool
	selfStruct string
	inFunction bool
}

// Resolve performs both passes and returns the global Program tables, or
// the first diag.Error encountered.
func Resolve(file *ast.Program) (*Program, error) {
	prog := &Program{
		Functions:  map[string]FunctionSig{},
		Structs:    map[string]*ast.StructDef{},
		Enums:      map[string]*ast.EnumDef{},
		EnumValues: EnumTable{},
		Interfaces: map[string]*ast.InterfaceDef{},
		Methods:    MethodTable{},
	}

	seen := map[string]ast.Pos{}
	declare := func(name string, pos ast.Pos) error {
		if prior, ok := seen[name]; ok {
			return diag.New(diag.Resolve, pos.Line, pos.Column,
				"duplicate top-level declaration %q (first declared at line %d)", name, prior.Line)
		}
		seen[name] = pos
		return nil
	}

	for _, stmt := range file.Statements {
		switch n := stmt.(type) {
		case *ast.FunctionDef:
			if err := declare(n.Name, n.Position()); err != nil {
				return nil, err
			}
			prog.Functions[n.Name] = FunctionSig{Def: n, ReturnType: n.ReturnType}
			if n.Name == "Main" {
				prog.Main = n
			}
		case *ast.StructDef:
			if err := declare(n.Name, n.Position()); err != nil {
				return nil, err
			}
			prog.Structs[n.Name] = n
			methodSet := map[string]FunctionSig{}
			for _, m := range n.Methods {
				if _, dup := methodSet[m.Name]; dup {
					return nil, diag.New(diag.Resolve, m.Position().Line, m.Position().Column,
						"duplicate method %q on struct %q", m.Name, n.Name)
				}
				methodSet[m.Name] = FunctionSig{Method: m, ReturnType: m.ReturnType}
			}
			prog.Methods[n.Name] = methodSet
		case *ast.EnumDef:
			if err := declare(n.Name, n.Position()); err != nil {
				return nil, err
			}
			prog.Enums[n.Name] = n
			values := map[string]int64{}
			var next int64
			for _, v := range n.Variants {
				if v.Value != nil {
					next = *v.Value
				}
				values[v.Name] = next
				next++
			}
			prog.EnumValues[n.Name] = values
		case *ast.InterfaceDef:
			if err := declare(n.Name, n.Position()); err != nil {
				return nil, err
			}
			prog.Interfaces[n.Name] = n
		default:
			return nil, diag.New(diag.Resolve, stmt.Position().Line, stmt.Position().Column,
				"only function, struct, enum, and interface declarations are allowed at top level")
		}
	}

	if prog.Main == nil {
		return nil, diag.Unlocated(diag.Resolve, "program has no Main function")
	}

	r := &resolver{prog: prog}
	for _, fn := range lo.Values(prog.Functions) {
		if fn.Def == nil {
			continue
		}
		if err := r.resolveFunctionBody(fn.Def.Params, fn.Def.Body, false, ""); err != nil {
			return nil, err
		}
	}
	for structName, methods := range prog.Methods {
		for _, m := range lo.Values(methods) {
			if err := r.resolveFunctionBody(m.Method.Params, m.Method.Body, true, structName); err != nil {
				return nil, err
			}
		}
	}

	return prog, nil
}

func (r *resolver) resolveFunctionBody(params []ast.Param, body *ast.Block, isMethod bool, structName string) error {
	sc := newScope()
	for _, p := range params {
		sc.vars[p.Name] = varInfo{Type: p.Type, IsMutable: true}
	}
	saveMethod, saveStruct, saveFn := r.inMethod, r.selfStruct, r.inFunction
	r.inMethod, r.selfStruct, r.inFunction = isMethod, structName, true
	defer func() { r.inMethod, r.selfStruct, r.inFunction = saveMethod, saveStruct, saveFn }()
	return r.resolveBlock(body, sc)
}

func (r *resolver) resolveBlock(block *ast.Block, sc *scope) error {
	for _, stmt := range block.Statements {
		if err := r.resolveStmt(stmt, sc); err != nil {
			return err
		}
	}
	return nil
}

func (r *resolver) resolveStmt(stmt ast.Node, sc *scope) error {
	switch n := stmt.(type) {
	case *ast.VarDecl:
		if n.Value != nil {
			if err := r.resolveExpr(n.Value, sc); err != nil {
				return err
			}
		}
		sc.vars[n.Name] = varInfo{Type: n.Type, IsMutable: n.IsMutable}
		return nil

	case *ast.TupleUnpack:
		if n.Value != nil {
			if err := r.resolveExpr(n.Value, sc); err != nil {
				return err
			}
		}
		for i, name := range n.Names {
			typ := ""
			if i < len(n.Types) {
				typ = n.Types[i]
			}
			sc.vars[name] = varInfo{Type: typ, IsMutable: true}
		}
		return nil

	case *ast.Assignment:
		if n.Target != nil {
			if err := r.resolveExpr(n.Target, sc); err != nil {
				return err
			}
		} else {
			info, ok := sc.vars[n.Name]
			if !ok {
				return diag.New(diag.Resolve, n.Position().Line, n.Position().Column,
					"assignment to undeclared name %q", n.Name)
			}
			if !info.IsMutable {
				return diag.New(diag.Resolve, n.Position().Line, n.Position().Column,
					"cannot assign to immutable binding %q", n.Name)
			}
		}
		return r.resolveExpr(n.Value, sc)

	case *ast.ReturnStmt:
		if !r.inFunction {
			return diag.New(diag.Resolve, n.Position().Line, n.Position().Column, "return outside a function or method")
		}
		if n.Value != nil {
			return r.resolveExpr(n.Value, sc)
		}
		return nil

	case *ast.DeferStmt:
		return r.resolveBlock(n.Body, sc.copy())

	case *ast.IfStmt:
		if err := r.resolveExpr(n.Condition, sc); err != nil {
			return err
		}
		if err := r.resolveBlock(n.Then, sc.copy()); err != nil {
			return err
		}
		switch e := n.Else.(type) {
		case nil:
		case *ast.Block:
			return r.resolveBlock(e, sc.copy())
		case *ast.IfStmt:
			return r.resolveStmt(e, sc)
		}
		return nil

	case *ast.WhileStmt:
		if err := r.resolveExpr(n.Condition, sc); err != nil {
			return err
		}
		return r.resolveBlock(n.Body, sc.copy())

	case *ast.ForStmt:
		if err := r.resolveExpr(n.Start, sc); err != nil {
			return err
		}
		if err := r.resolveExpr(n.End, sc); err != nil {
			return err
		}
		inner := sc.copy()
		inner.vars[n.VarName] = varInfo{Type: "int", IsMutable: true}
		return r.resolveBlock(n.Body, inner)

	case *ast.Block:
		return r.resolveBlock(n, sc.copy())

	case *ast.FunctionCall, *ast.MethodCall, *ast.TryExpr:
		return r.resolveExpr(n, sc)

	default:
		return diag.New(diag.Resolve, stmt.Position().Line, stmt.Position().Column, "statement not permitted here")
	}
}

func (r *resolver) resolveExpr(node ast.Node, sc *scope) error {
	switch n := node.(type) {
	case *ast.Literal, *ast.NullLiteral:
		return nil

	case *ast.Identifier:
		// Bare identifiers are always variable references: functions,
		// enums, and builtins are only ever named through a call or a
		// dotted enum access, never used as first-class values.
		if _, ok := sc.vars[n.Name]; ok {
			return nil
		}
		return diag.New(diag.Resolve, n.Position().Line, n.Position().Column, "undeclared name %q", n.Name)

	case *ast.SelfExpr:
		if !r.inMethod {
			return diag.New(diag.Resolve, n.Position().Line, n.Position().Column, "self used outside a method")
		}
		return nil

	case *ast.BinaryExpr:
		if err := r.resolveExpr(n.Left, sc); err != nil {
			return err
		}
		return r.resolveExpr(n.Right, sc)

	case *ast.UnaryExpr:
		return r.resolveExpr(n.Operand, sc)

	case *ast.AddressOf:
		return r.resolveExpr(n.Operand, sc)

	case *ast.Dereference:
		return r.resolveExpr(n.Operand, sc)

	case *ast.TryExpr:
		return r.resolveExpr(n.Inner, sc)

	case *ast.InterpString:
		return nil // expression parts are re-parsed and resolved at codegen time

	case *ast.FieldAccess:
		if id, ok := n.Receiver.(*ast.Identifier); ok {
			if _, isVar := sc.vars[id.Name]; !isVar {
				if _, isEnum := r.prog.EnumValues[id.Name]; isEnum {
					return nil // Enum.Variant; the variant itself is checked in checkFieldAccess
				}
			}
		}
		return r.resolveExpr(n.Receiver, sc)

	case *ast.EnumAccess:
		return nil

	case *ast.IndexExpr:
		if err := r.resolveExpr(n.Receiver, sc); err != nil {
			return err
		}
		return r.resolveExpr(n.Index, sc)

	case *ast.FunctionCall:
		if _, ok := r.prog.Functions[n.Name]; !ok {
			if _, ok := builtins.Lookup(n.Name); !ok {
				return diag.New(diag.Resolve, n.Position().Line, n.Position().Column, "call to undeclared function %q", n.Name)
			}
		}
		for _, a := range n.Arguments {
			if err := r.resolveExpr(a, sc); err != nil {
				return err
			}
		}
		return nil

	case *ast.MethodCall:
		if err := r.resolveExpr(n.Receiver, sc); err != nil {
			return err
		}
		for _, a := range n.Arguments {
			if err := r.resolveExpr(a, sc); err != nil {
				return err
			}
		}
		return nil

	case *ast.NewExpr:
		if _, ok := r.prog.Structs[n.StructName]; !ok {
			return diag.New(diag.Resolve, n.Position().Line, n.Position().Column, "new of undeclared struct %q", n.StructName)
		}
		for _, v := range n.Fields {
			if err := r.resolveExpr(v, sc); err != nil {
				return err
			}
		}
		return nil

	case *ast.ArrayLiteral:
		for _, e := range n.Elements {
			if err := r.resolveExpr(e, sc); err != nil {
				return err
			}
		}
		return nil

	case *ast.TupleLiteral:
		for _, e := range n.Elements {
			if err := r.resolveExpr(e, sc); err != nil {
				return err
			}
		}
		return nil

	default:
		return diag.New(diag.Resolve, node.Position().Line, node.Position().Column, "expression not permitted here")
	}
}
