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
// Package generics monomorphizes generic struct declarations: it finds
// every concrete instantiation site, generates one mangled StructDef and
// MethodDef set per distinct instantiation, substitutes the struct's
// TypeParams with the concrete arguments throughout field and method
// signatures, and rewrites call/new sites to reference the mangled name.
// After this pass runs, nothing downstream ever sees a generic
// declaration.
package generics

import (
	"sort"
	"strings"

	"github.com/samber/lo"

	"github.com/vyl-lang/vylc/internal/ast"
	"github.com/vyl-lang/vylc/internal/diag"
)

// Mangle produces the "Name$Arg1$Arg2" label for a generic instantiation.
func Mangle(name string, typeArgs []string) string {
	if len(typeArgs) == 0 {
		return name
	}
	return name + "$" + strings.Join(typeArgs, "$")
}

// Expand rewrites prog in place: generic StructDefs are replaced by their
// monomorphized instantiations (one per distinct type-argument list found
// at any `new Name<...>{...}` site), and every such `new` site is rewritten
// to the mangled name. `Name<...>` type annotations are neither collected
// nor rewritten; they keep the unmangled text.
func Expand(prog *ast.Program) error {
	generic := map[string]*ast.StructDef{}
	for _, stmt := range prog.Statements {
		if sd, ok := stmt.(*ast.StructDef); ok && len(sd.TypeParams) > 0 {
			generic[sd.Name] = sd
		}
	}
	if len(generic) == 0 {
		return nil
	}

	instantiations := map[string]map[string][]string{} // struct name -> mangled -> type args
	collect := func(name string, args []string) {
		if _, ok := generic[name]; !ok || len(args) == 0 {
			return
		}
		if instantiations[name] == nil {
			instantiations[name] = map[string][]string{}
		}
		instantiations[name][Mangle(name, args)] = args
	}

	walkCollect(prog, collect)

	var newDefs []*ast.StructDef
	for structName, byMangled := range instantiations {
		base := generic[structName]
		mangledNames := lo.Keys(byMangled)
		sort.Strings(mangledNames)
		for _, mangled := range mangledNames {
			args := byMangled[mangled]
			if len(args) != len(base.TypeParams) {
				return diag.New(diag.Resolve, base.Position().Line, base.Position().Column,
					"struct %q expects %d type argument(s), got %d", structName, len(base.TypeParams), len(args))
			}
			subst := map[string]string{}
			for i, tp := range base.TypeParams {
				subst[tp] = args[i]
			}
			newDefs = append(newDefs, instantiate(base, mangled, subst))
		}
	}

	// Remove the generic templates and append mangled instantiations.
	var kept []ast.Node
	for _, stmt := range prog.Statements {
		if sd, ok := stmt.(*ast.StructDef); ok {
			if _, isGeneric := generic[sd.Name]; isGeneric {
				continue
			}
		}
		kept = append(kept, stmt)
	}
	for _, def := range newDefs {
		kept = append(kept, def)
	}
	prog.Statements = kept

	rewriteReferences(prog, generic)
	return nil
}

func instantiate(base *ast.StructDef, mangledName string, subst map[string]string) *ast.StructDef {
	out := &ast.StructDef{Pos: base.Pos, Name: mangledName}
	for _, f := range base.Fields {
		out.Fields = append(out.Fields, ast.FieldDecl{Name: f.Name, Type: substituteType(f.Type, subst)})
	}
	for _, m := range base.Methods {
		out.Methods = append(out.Methods, instantiateMethod(m, mangledName, subst))
	}
	return out
}

func instantiateMethod(m *ast.MethodDef, mangledStruct string, subst map[string]string) *ast.MethodDef {
	out := &ast.MethodDef{
		Pos:        m.Pos,
		StructName: mangledStruct,
		Name:       m.Name,
		ReturnType: substituteType(m.ReturnType, subst),
		Body:       substituteBlock(m.Body, subst),
	}
	for _, p := range m.Params {
		np := ast.Param{Name: p.Name, Type: substituteType(p.Type, subst)}
		if p.Default != nil {
			np.Default = substituteExpr(p.Default, subst)
		}
		out.Params = append(out.Params, np)
	}
	return out
}

// substituteType replaces a bare type-parameter name with its concrete
// argument; compound annotations (*T, T[]) are substituted structurally.
func substituteType(t string, subst map[string]string) string {
	if repl, ok := subst[t]; ok {
		return repl
	}
	if strings.HasPrefix(t, "*") {
		return "*" + substituteType(t[1:], subst)
	}
	if strings.HasSuffix(t, "[]") {
		return substituteType(strings.TrimSuffix(t, "[]"), subst) + "[]"
	}
	return t
}

func substituteBlock(b *ast.Block, subst map[string]string) *ast.Block {
	if b == nil {
		return nil
	}
	out := &ast.Block{Pos: b.Pos}
	for _, s := range b.Statements {
		out.Statements = append(out.Statements, substituteStmt(s, subst))
	}
	return out
}

func substituteStmt(n ast.Node, subst map[string]string) ast.Node {
	switch s := n.(type) {
	case *ast.VarDecl:
		return &ast.VarDecl{Pos: s.Pos, Name: s.Name, Type: substituteType(s.Type, subst), Value: substituteExpr(s.Value, subst), IsMutable: s.IsMutable}
	case *ast.TupleUnpack:
		types := make([]string, len(s.Types))
		for i, t := range s.Types {
			types[i] = substituteType(t, subst)
		}
		return &ast.TupleUnpack{Pos: s.Pos, Names: s.Names, Types: types, Value: substituteExpr(s.Value, subst)}
	case *ast.Assignment:
		out := &ast.Assignment{Pos: s.Pos, Name: s.Name, Value: substituteExpr(s.Value, subst)}
		if s.Target != nil {
			out.Target = substituteExpr(s.Target, subst)
		}
		return out
	case *ast.ReturnStmt:
		return &ast.ReturnStmt{Pos: s.Pos, Value: substituteExpr(s.Value, subst)}
	case *ast.DeferStmt:
		return &ast.DeferStmt{Pos: s.Pos, Body: substituteBlock(s.Body, subst)}
	case *ast.IfStmt:
		out := &ast.IfStmt{Pos: s.Pos, Condition: substituteExpr(s.Condition, subst), Then: substituteBlock(s.Then, subst)}
		if s.Else != nil {
			out.Else = substituteStmt(s.Else, subst)
		}
		return out
	case *ast.WhileStmt:
		return &ast.WhileStmt{Pos: s.Pos, Condition: substituteExpr(s.Condition, subst), Body: substituteBlock(s.Body, subst)}
	case *ast.ForStmt:
		return &ast.ForStmt{Pos: s.Pos, VarName: s.VarName, Start: substituteExpr(s.Start, subst), End: substituteExpr(s.End, subst), Body: substituteBlock(s.Body, subst)}
	case *ast.Block:
		return substituteBlock(s, subst)
	default:
		return substituteExpr(n, subst)
	}
}

func substituteExpr(n ast.Node, subst map[string]string) ast.Node {
	if n == nil {
		return nil
	}
	switch e := n.(type) {
	case *ast.BinaryExpr:
		return &ast.BinaryExpr{Pos: e.Pos, Left: substituteExpr(e.Left, subst), Operator: e.Operator, Right: substituteExpr(e.Right, subst)}
	case *ast.UnaryExpr:
		return &ast.UnaryExpr{Pos: e.Pos, Operator: e.Operator, Operand: substituteExpr(e.Operand, subst)}
	case *ast.AddressOf:
		return &ast.AddressOf{Pos: e.Pos, Operand: substituteExpr(e.Operand, subst)}
	case *ast.Dereference:
		return &ast.Dereference{Pos: e.Pos, Operand: substituteExpr(e.Operand, subst)}
	case *ast.TryExpr:
		return &ast.TryExpr{Pos: e.Pos, Inner: substituteExpr(e.Inner, subst)}
	case *ast.FieldAccess:
		return &ast.FieldAccess{Pos: e.Pos, Receiver: substituteExpr(e.Receiver, subst), Field: e.Field}
	case *ast.IndexExpr:
		return &ast.IndexExpr{Pos: e.Pos, Receiver: substituteExpr(e.Receiver, subst), Index: substituteExpr(e.Index, subst)}
	case *ast.FunctionCall:
		args := make([]ast.Node, len(e.Arguments))
		for i, a := range e.Arguments {
			args[i] = substituteExpr(a, subst)
		}
		return &ast.FunctionCall{Pos: e.Pos, Name: e.Name, Arguments: args}
	case *ast.MethodCall:
		args := make([]ast.Node, len(e.Arguments))
		for i, a := range e.Arguments {
			args[i] = substituteExpr(a, subst)
		}
		return &ast.MethodCall{Pos: e.Pos, Receiver: substituteExpr(e.Receiver, subst), Method: e.Method, Arguments: args}
	case *ast.NewExpr:
		name := e.StructName
		typeArgs := make([]string, len(e.TypeArgs))
		for i, t := range e.TypeArgs {
			typeArgs[i] = substituteType(t, subst)
		}
		fields := map[string]ast.Node{}
		for k, v := range e.Fields {
			fields[k] = substituteExpr(v, subst)
		}
		if repl, ok := subst[name]; ok {
			name = repl
		}
		return &ast.NewExpr{Pos: e.Pos, StructName: name, TypeArgs: typeArgs, Fields: fields, FieldOrder: e.FieldOrder}
	case *ast.ArrayLiteral:
		elems := make([]ast.Node, len(e.Elements))
		for i, el := range e.Elements {
			elems[i] = substituteExpr(el, subst)
		}
		return &ast.ArrayLiteral{Pos: e.Pos, ElementType: substituteType(e.ElementType, subst), Elements: elems}
	case *ast.TupleLiteral:
		elems := make([]ast.Node, len(e.Elements))
		for i, el := range e.Elements {
			elems[i] = substituteExpr(el, subst)
		}
		return &ast.TupleLiteral{Pos: e.Pos, Elements: elems}
	default:
		return n
	}
}

// walkCollect finds every `new Name<args>{...}` site anywhere in the
// program and reports (name, args) to collect.
func walkCollect(n ast.Node, collect func(name string, args []string)) {
	if n == nil {
		return
	}
	switch e := n.(type) {
	case *ast.Program:
		for _, s := range e.Statements {
			walkCollect(s, collect)
		}
	case *ast.StructDef:
		for _, m := range e.Methods {
			walkCollect(m, collect)
		}
	case *ast.FunctionDef:
		walkCollect(e.Body, collect)
	case *ast.MethodDef:
		walkCollect(e.Body, collect)
	case *ast.Block:
		for _, s := range e.Statements {
			walkCollect(s, collect)
		}
	case *ast.VarDecl:
		walkCollect(e.Value, collect)
	case *ast.TupleUnpack:
		walkCollect(e.Value, collect)
	case *ast.Assignment:
		walkCollect(e.Target, collect)
		walkCollect(e.Value, collect)
	case *ast.ReturnStmt:
		walkCollect(e.Value, collect)
	case *ast.DeferStmt:
		walkCollect(e.Body, collect)
	case *ast.IfStmt:
		walkCollect(e.Condition, collect)
		walkCollect(e.Then, collect)
		walkCollect(e.Else, collect)
	case *ast.WhileStmt:
		walkCollect(e.Condition, collect)
		walkCollect(e.Body, collect)
	case *ast.ForStmt:
		walkCollect(e.Start, collect)
		walkCollect(e.End, collect)
		walkCollect(e.Body, collect)
	case *ast.BinaryExpr:
		walkCollect(e.Left, collect)
		walkCollect(e.Right, collect)
	case *ast.UnaryExpr:
		walkCollect(e.Operand, collect)
	case *ast.AddressOf:
		walkCollect(e.Operand, collect)
	case *ast.Dereference:
		walkCollect(e.Operand, collect)
	case *ast.TryExpr:
		walkCollect(e.Inner, collect)
	case *ast.FieldAccess:
		walkCollect(e.Receiver, collect)
	case *ast.IndexExpr:
		walkCollect(e.Receiver, collect)
		walkCollect(e.Index, collect)
	case *ast.FunctionCall:
		for _, a := range e.Arguments {
			walkCollect(a, collect)
		}
	case *ast.MethodCall:
		walkCollect(e.Receiver, collect)
		for _, a := range e.Arguments {
			walkCollect(a, collect)
		}
	case *ast.NewExpr:
		if len(e.TypeArgs) > 0 {
			collect(e.StructName, e.TypeArgs)
		}
		for _, v := range e.Fields {
			walkCollect(v, collect)
		}
	case *ast.ArrayLiteral:
		for _, el := range e.Elements {
			walkCollect(el, collect)
		}
	case *ast.TupleLiteral:
		for _, el := range e.Elements {
			walkCollect(el, collect)
		}
	}
}

// rewriteReferences rewrites every `new Name<args>{...}` in the program to
// use the mangled struct name and clears TypeArgs, now that the
// monomorphized StructDef exists under that name.
func rewriteReferences(n ast.Node, generic map[string]*ast.StructDef) {
	switch e := n.(type) {
	case *ast.Program:
		for _, s := range e.Statements {
			rewriteReferences(s, generic)
		}
	case *ast.StructDef:
		for _, m := range e.Methods {
			rewriteReferences(m, generic)
		}
	case *ast.FunctionDef:
		rewriteReferences(e.Body, generic)
	case *ast.MethodDef:
		rewriteReferences(e.Body, generic)
	case *ast.Block:
		for _, s := range e.Statements {
			rewriteReferences(s, generic)
		}
	case *ast.VarDecl:
		rewriteReferences(e.Value, generic)
	case *ast.TupleUnpack:
		rewriteReferences(e.Value, generic)
	case *ast.Assignment:
		rewriteReferences(e.Target, generic)
		rewriteReferences(e.Value, generic)
	case *ast.ReturnStmt:
		rewriteReferences(e.Value, generic)
	case *ast.DeferStmt:
		rewriteReferences(e.Body, generic)
	case *ast.IfStmt:
		rewriteReferences(e.Condition, generic)
		rewriteReferences(e.Then, generic)
		rewriteReferences(e.Else, generic)
	case *ast.WhileStmt:
		rewriteReferences(e.Condition, generic)
		rewriteReferences(e.Body, generic)
	case *ast.ForStmt:
		rewriteReferences(e.Start, generic)
		rewriteReferences(e.End, generic)
		rewriteReferences(e.Body, generic)
	case *ast.BinaryExpr:
		rewriteReferences(e.Left, generic)
		rewriteReferences(e.Right, generic)
	case *ast.UnaryExpr:
		rewriteReferences(e.Operand, generic)
	case *ast.AddressOf:
		rewriteReferences(e.Operand, generic)
	case *ast.Dereference:
		rewriteReferences(e.Operand, generic)
	case *ast.TryExpr:
		rewriteReferences(e.Inner, generic)
	case *ast.FieldAccess:
		rewriteReferences(e.Receiver, generic)
	case *ast.IndexExpr:
		rewriteReferences(e.Receiver, generic)
		rewriteReferences(e.Index, generic)
	case *ast.FunctionCall:
		for _, a := range e.Arguments {
			rewriteReferences(a, generic)
		}
	case *ast.MethodCall:
		rewriteReferences(e.Receiver, generic)
		for _, a := range e.Arguments {
			rewriteReferences(a, generic)
		}
	case *ast.NewExpr:
		if _, ok := generic[e.StructName]; ok && len(e.TypeArgs) > 0 {
			e.StructName = Mangle(e.StructName, e.TypeArgs)
			e.TypeArgs = nil
		}
		for _, v := range e.Fields {
			rewriteReferences(v, generic)
		}
	case *ast.ArrayLiteral:
		for _, el := range e.Elements {
			rewriteReferences(el, generic)
		}
	case *ast.TupleLiteral:
		for _, el := range e.Elements {
			rewriteReferences(el, generic)
		}
	}
}
