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
	"github.com/vyl-lang/vylc/internal/ast"
	"github.com/vyl-lang/vylc/internal/builtins"
	"github.com/vyl-lang/vylc/internal/diag"
	"github.com/vyl-lang/vylc/internal/types"
)

type tscope struct {
	vars map[string]types.Type
}

func newTscope() *tscope { return &tscope{vars: map[string]types.Type{}} }

func (s *tscope) copy() *tscope {
	c := newTscope()
	for k, v := range s.vars {
		c.vars[k] = v
	}
	return c
}

type checker struct {
	prog       *Program
	selfStruct string
	funcReturn types.Type
}

// Check runs the type checker over every function and method body in
// prog, the output of Resolve.
func Check(prog *Program) error {
	c := &checker{prog: prog}
	for name, fn := range prog.Functions {
		sc := newTscope()
		for _, p := range fn.Def.Params {
			sc.vars[p.Name] = types.Parse(p.Type)
		}
		c.selfStruct = ""
		c.funcReturn = returnTypeOf(fn.ReturnType)
		if err := c.checkBlock(fn.Def.Body, sc); err != nil {
			return err
		}
		_ = name
	}
	for structName, methods := range prog.Methods {
		for _, m := range methods {
			sc := newTscope()
			sc.vars["self"] = types.NamedType(structName)
			for _, p := range m.Method.Params {
				sc.vars[p.Name] = types.Parse(p.Type)
			}
			c.selfStruct = structName
			c.funcReturn = returnTypeOf(m.ReturnType)
			if err := c.checkBlock(m.Method.Body, sc); err != nil {
				return err
			}
		}
	}
	return nil
}

func returnTypeOf(s string) types.Type {
	if s == "" {
		return types.TInt
	}
	return types.Parse(s)
}

func (c *checker) checkBlock(b *ast.Block, sc *tscope) error {
	for _, stmt := range b.Statements {
		if err := c.checkStmt(stmt, sc); err != nil {
			return err
		}
	}
	return nil
}

func (c *checker) checkStmt(stmt ast.Node, sc *tscope) error {
	switch n := stmt.(type) {
	case *ast.VarDecl:
		declared := types.Type{}
		hasDeclared := n.Type != ""
		if hasDeclared {
			declared = types.Parse(n.Type)
		}
		if n.Value != nil {
			vt, err := c.checkExpr(n.Value, sc)
			if err != nil {
				return err
			}
			if hasDeclared {
				if !vt.Widenable(declared) {
					return diag.New(diag.Type, n.Position().Line, n.Position().Column,
						"cannot assign %s to declared type %s", vt, declared)
				}
			} else {
				declared = vt
			}
		} else if !hasDeclared {
			declared = types.TInt
		}
		sc.vars[n.Name] = declared
		return nil

	case *ast.TupleUnpack:
		if n.Value == nil {
			return diag.New(diag.Type, n.Position().Line, n.Position().Column, "tuple unpack requires a value")
		}
		vt, err := c.checkExpr(n.Value, sc)
		if err != nil {
			return err
		}
		if vt.Kind != types.Tuple || len(vt.Elems) != len(n.Names) {
			return diag.New(diag.Type, n.Position().Line, n.Position().Column,
				"tuple unpack expects a tuple of arity %d, got %s", len(n.Names), vt)
		}
		for i, name := range n.Names {
			elemType := vt.Elems[i]
			if i < len(n.Types) && n.Types[i] != "" {
				declared := types.Parse(n.Types[i])
				if !elemType.Widenable(declared) {
					return diag.New(diag.Type, n.Position().Line, n.Position().Column,
						"tuple element %d: cannot assign %s to declared type %s", i, elemType, declared)
				}
				elemType = declared
			}
			sc.vars[name] = elemType
		}
		return nil

	case *ast.Assignment:
		vt, err := c.checkExpr(n.Value, sc)
		if err != nil {
			return err
		}
		var targetType types.Type
		if n.Target != nil {
			targetType, err = c.checkExpr(n.Target, sc)
			if err != nil {
				return err
			}
		} else {
			t, ok := sc.vars[n.Name]
			if !ok {
				return diag.New(diag.Type, n.Position().Line, n.Position().Column, "assignment to unknown target %q", n.Name)
			}
			targetType = t
		}
		if !vt.Widenable(targetType) {
			return diag.New(diag.Type, n.Position().Line, n.Position().Column,
				"cannot assign %s to %s", vt, targetType)
		}
		return nil

	case *ast.ReturnStmt:
		if n.Value == nil {
			return nil
		}
		vt, err := c.checkExpr(n.Value, sc)
		if err != nil {
			return err
		}
		if !vt.Widenable(c.funcReturn) {
			return diag.New(diag.Type, n.Position().Line, n.Position().Column,
				"return type %s does not match declared return type %s", vt, c.funcReturn)
		}
		return nil

	case *ast.DeferStmt:
		return c.checkBlock(n.Body, sc.copy())

	case *ast.IfStmt:
		ct, err := c.checkExpr(n.Condition, sc)
		if err != nil {
			return err
		}
		if ct.Kind != types.Bool {
			return diag.New(diag.Type, n.Condition.Position().Line, n.Condition.Position().Column, "if condition must be bool, got %s", ct)
		}
		if err := c.checkBlock(n.Then, sc.copy()); err != nil {
			return err
		}
		switch e := n.Else.(type) {
		case nil:
		case *ast.Block:
			return c.checkBlock(e, sc.copy())
		case *ast.IfStmt:
			return c.checkStmt(e, sc)
		}
		return nil

	case *ast.WhileStmt:
		ct, err := c.checkExpr(n.Condition, sc)
		if err != nil {
			return err
		}
		if ct.Kind != types.Bool {
			return diag.New(diag.Type, n.Condition.Position().Line, n.Condition.Position().Column, "while condition must be bool, got %s", ct)
		}
		return c.checkBlock(n.Body, sc.copy())

	case *ast.ForStmt:
		st, err := c.checkExpr(n.Start, sc)
		if err != nil {
			return err
		}
		et, err := c.checkExpr(n.End, sc)
		if err != nil {
			return err
		}
		if !st.Numeric() || !et.Numeric() {
			return diag.New(diag.Type, n.Position().Line, n.Position().Column, "for range bounds must be numeric")
		}
		inner := sc.copy()
		inner.vars[n.VarName] = types.TInt
		return c.checkBlock(n.Body, inner)

	case *ast.Block:
		return c.checkBlock(n, sc.copy())

	case *ast.FunctionCall, *ast.MethodCall, *ast.TryExpr:
		_, err := c.checkExpr(n, sc)
		return err

	default:
		return diag.New(diag.Type, stmt.Position().Line, stmt.Position().Column, "statement not permitted here")
	}
}

func (c *checker) checkExpr(node ast.Node, sc *tscope) (types.Type, error) {
	switch n := node.(type) {
	case *ast.Literal:
		switch n.Kind {
		case ast.LitInt:
			return types.TInt, nil
		case ast.LitDec:
			return types.TDec, nil
		case ast.LitString:
			return types.TString, nil
		case ast.LitBool:
			return types.TBool, nil
		}
		return types.Type{}, diag.New(diag.Type, n.Position().Line, n.Position().Column, "unreachable literal kind")

	case *ast.NullLiteral:
		return types.TVoidP, nil

	case *ast.InterpString:
		return types.TString, nil

	case *ast.Identifier:
		t, ok := sc.vars[n.Name]
		if !ok {
			return types.Type{}, diag.New(diag.Type, n.Position().Line, n.Position().Column, "undeclared name %q", n.Name)
		}
		return t, nil

	case *ast.SelfExpr:
		return types.NamedType(c.selfStruct), nil

	case *ast.BinaryExpr:
		return c.checkBinary(n, sc)

	case *ast.UnaryExpr:
		ot, err := c.checkExpr(n.Operand, sc)
		if err != nil {
			return types.Type{}, err
		}
		switch n.Operator {
		case "-", "+":
			if !ot.Numeric() {
				return types.Type{}, diag.New(diag.Type, n.Position().Line, n.Position().Column, "unary %s requires a numeric operand, got %s", n.Operator, ot)
			}
			return ot, nil
		case "!":
			if ot.Kind != types.Bool {
				return types.Type{}, diag.New(diag.Type, n.Position().Line, n.Position().Column, "! requires a bool operand, got %s", ot)
			}
			return types.TBool, nil
		}
		return types.Type{}, diag.New(diag.Type, n.Position().Line, n.Position().Column, "unreachable unary operator %q", n.Operator)

	case *ast.AddressOf:
		ot, err := c.checkExpr(n.Operand, sc)
		if err != nil {
			return types.Type{}, err
		}
		return types.PointerTo(ot), nil

	case *ast.Dereference:
		ot, err := c.checkExpr(n.Operand, sc)
		if err != nil {
			return types.Type{}, err
		}
		if ot.Kind != types.Pointer || ot.Elem == nil {
			return types.Type{}, diag.New(diag.Type, n.Position().Line, n.Position().Column, "* requires a pointer operand, got %s", ot)
		}
		return *ot.Elem, nil

	case *ast.TryExpr:
		return c.checkExpr(n.Inner, sc)

	case *ast.FieldAccess:
		return c.checkFieldAccess(n, sc)

	case *ast.EnumAccess:
		values, ok := c.prog.EnumValues[n.EnumName]
		if !ok {
			return types.Type{}, diag.New(diag.Type, n.Position().Line, n.Position().Column, "unknown enum %q", n.EnumName)
		}
		if _, ok := values[n.Variant]; !ok {
			return types.Type{}, diag.New(diag.Type, n.Position().Line, n.Position().Column, "enum %q has no variant %q", n.EnumName, n.Variant)
		}
		return types.NamedType(n.EnumName), nil

	case *ast.IndexExpr:
		rt, err := c.checkExpr(n.Receiver, sc)
		if err != nil {
			return types.Type{}, err
		}
		it, err := c.checkExpr(n.Index, sc)
		if err != nil {
			return types.Type{}, err
		}
		if !it.Numeric() {
			return types.Type{}, diag.New(diag.Type, n.Position().Line, n.Position().Column, "array index must be numeric, got %s", it)
		}
		if rt.Kind != types.Array {
			return types.Type{}, diag.New(diag.Type, n.Position().Line, n.Position().Column, "cannot index non-array type %s", rt)
		}
		if rt.Elem == nil {
			return types.TInt, nil
		}
		return *rt.Elem, nil

	case *ast.FunctionCall:
		return c.checkFunctionCall(n, sc)

	case *ast.MethodCall:
		return c.checkMethodCall(n, sc)

	case *ast.NewExpr:
		return c.checkNewExpr(n, sc)

	case *ast.ArrayLiteral:
		var elem types.Type
		for i, e := range n.Elements {
			et, err := c.checkExpr(e, sc)
			if err != nil {
				return types.Type{}, err
			}
			if i == 0 {
				elem = et
			} else if !et.Widenable(elem) && !elem.Widenable(et) {
				return types.Type{}, diag.New(diag.Type, e.Position().Line, e.Position().Column,
					"array element type %s does not match %s", et, elem)
			}
		}
		if len(n.Elements) == 0 {
			if n.ElementType != "" {
				elem = types.Parse(n.ElementType)
			} else {
				elem = types.TInt
			}
		}
		return types.ArrayOf(elem), nil

	case *ast.TupleLiteral:
		elems := make([]types.Type, len(n.Elements))
		for i, e := range n.Elements {
			et, err := c.checkExpr(e, sc)
			if err != nil {
				return types.Type{}, err
			}
			elems[i] = et
		}
		return types.TupleOf(elems...), nil

	default:
		return types.Type{}, diag.New(diag.Type, node.Position().Line, node.Position().Column, "expression not permitted here")
	}
}

func (c *checker) checkBinary(n *ast.BinaryExpr, sc *tscope) (types.Type, error) {
	lt, err := c.checkExpr(n.Left, sc)
	if err != nil {
		return types.Type{}, err
	}
	rt, err := c.checkExpr(n.Right, sc)
	if err != nil {
		return types.Type{}, err
	}
	switch n.Operator {
	case "+":
		if lt.Kind == types.String || rt.Kind == types.String {
			return types.TString, nil
		}
		if !lt.Numeric() || !rt.Numeric() {
			return types.Type{}, diag.New(diag.Type, n.Position().Line, n.Position().Column, "+ requires numeric or string operands, got %s and %s", lt, rt)
		}
		if lt.Kind == types.Dec || rt.Kind == types.Dec {
			return types.TDec, nil
		}
		return types.TInt, nil

	case "-", "*", "/", "%":
		if !lt.Numeric() || !rt.Numeric() {
			return types.Type{}, diag.New(diag.Type, n.Position().Line, n.Position().Column, "%s requires numeric operands, got %s and %s", n.Operator, lt, rt)
		}
		if lt.Kind == types.Dec || rt.Kind == types.Dec {
			return types.TDec, nil
		}
		return types.TInt, nil

	case "==", "!=":
		if !lt.Comparable(rt) {
			return types.Type{}, diag.New(diag.Type, n.Position().Line, n.Position().Column, "cannot compare %s and %s", lt, rt)
		}
		return types.TBool, nil

	case "<", ">", "<=", ">=":
		if !lt.Numeric() || !rt.Numeric() {
			return types.Type{}, diag.New(diag.Type, n.Position().Line, n.Position().Column, "%s requires numeric operands, got %s and %s", n.Operator, lt, rt)
		}
		return types.TBool, nil

	case "&&", "||":
		if lt.Kind != types.Bool || rt.Kind != types.Bool {
			return types.Type{}, diag.New(diag.Type, n.Position().Line, n.Position().Column, "%s requires bool operands, got %s and %s", n.Operator, lt, rt)
		}
		return types.TBool, nil
	}
	return types.Type{}, diag.New(diag.Type, n.Position().Line, n.Position().Column, "unreachable binary operator %q", n.Operator)
}

// checkFieldAccess resolves a `.field` access. When the receiver is a bare
// identifier naming a known enum, this is an enum variant reference (the
// EnumAccess node is never constructed by the parser itself — the
// distinction only becomes knowable once types are known, so detection
// happens here rather than via a separate rewrite pass over the tree).
func (c *checker) checkFieldAccess(n *ast.FieldAccess, sc *tscope) (types.Type, error) {
	if id, ok := n.Receiver.(*ast.Identifier); ok {
		if _, isVar := sc.vars[id.Name]; !isVar {
			if values, isEnum := c.prog.EnumValues[id.Name]; isEnum {
				if _, ok := values[n.Field]; !ok {
					return types.Type{}, diag.New(diag.Type, n.Position().Line, n.Position().Column,
						"enum %q has no variant %q", id.Name, n.Field)
				}
				return types.NamedType(id.Name), nil
			}
		}
	}
	rt, err := c.checkExpr(n.Receiver, sc)
	if err != nil {
		return types.Type{}, err
	}
	if rt.Kind != types.Named {
		return types.Type{}, diag.New(diag.Type, n.Position().Line, n.Position().Column, "cannot access field %q on non-struct type %s", n.Field, rt)
	}
	sd, ok := c.prog.Structs[rt.Name]
	if !ok {
		return types.Type{}, diag.New(diag.Type, n.Position().Line, n.Position().Column, "unknown struct %q", rt.Name)
	}
	for _, f := range sd.Fields {
		if f.Name == n.Field {
			return types.Parse(f.Type), nil
		}
	}
	return types.Type{}, diag.New(diag.Type, n.Position().Line, n.Position().Column, "struct %q has no field %q", rt.Name, n.Field)
}

func (c *checker) checkFunctionCall(n *ast.FunctionCall, sc *tscope) (types.Type, error) {
	if fn, ok := c.prog.Functions[n.Name]; ok {
		return c.checkCallArgs(n.Position(), fn.Def.Params, n.Arguments, sc, returnTypeOf(fn.ReturnType))
	}
	sig, ok := builtins.Lookup(n.Name)
	if !ok {
		return types.Type{}, diag.New(diag.Type, n.Position().Line, n.Position().Column, "call to unknown function %q", n.Name)
	}
	if !sig.AcceptsArity(len(n.Arguments)) {
		return types.Type{}, diag.New(diag.Type, n.Position().Line, n.Position().Column,
			"%q expects %d argument(s), got %d", n.Name, len(sig.ParamTypes), len(n.Arguments))
	}
	for i, arg := range n.Arguments {
		at, err := c.checkExpr(arg, sc)
		if err != nil {
			return types.Type{}, err
		}
		expected := sig.ParamTypeAt(i)
		if expected.Kind != types.Invalid && !at.Widenable(expected) {
			return types.Type{}, diag.New(diag.Type, arg.Position().Line, arg.Position().Column,
				"%q argument %d: cannot use %s as %s", n.Name, i+1, at, expected)
		}
	}
	return sig.ReturnType, nil
}

func (c *checker) checkMethodCall(n *ast.MethodCall, sc *tscope) (types.Type, error) {
	rt, err := c.checkExpr(n.Receiver, sc)
	if err != nil {
		return types.Type{}, err
	}
	if rt.Kind != types.Named {
		return types.Type{}, diag.New(diag.Type, n.Position().Line, n.Position().Column, "cannot call method %q on non-struct type %s", n.Method, rt)
	}
	methods, ok := c.prog.Methods[rt.Name]
	if !ok {
		return types.Type{}, diag.New(diag.Type, n.Position().Line, n.Position().Column, "unknown struct %q", rt.Name)
	}
	sig, ok := methods[n.Method]
	if !ok {
		return types.Type{}, diag.New(diag.Type, n.Position().Line, n.Position().Column, "struct %q has no method %q", rt.Name, n.Method)
	}
	return c.checkCallArgs(n.Position(), sig.Method.Params, n.Arguments, sc, returnTypeOf(sig.ReturnType))
}

func (c *checker) checkCallArgs(pos ast.Pos, params []ast.Param, args []ast.Node, sc *tscope, ret types.Type) (types.Type, error) {
	required := 0
	for _, p := range params {
		if p.Default == nil {
			required++
		}
	}
	if len(args) < required || len(args) > len(params) {
		return types.Type{}, diag.New(diag.Type, pos.Line, pos.Column,
			"expected between %d and %d arguments, got %d", required, len(params), len(args))
	}
	for i, arg := range args {
		at, err := c.checkExpr(arg, sc)
		if err != nil {
			return types.Type{}, err
		}
		expected := types.Parse(params[i].Type)
		if !at.Widenable(expected) {
			return types.Type{}, diag.New(diag.Type, arg.Position().Line, arg.Position().Column,
				"argument %d: cannot use %s as %s", i+1, at, expected)
		}
	}
	return ret, nil
}

func (c *checker) checkNewExpr(n *ast.NewExpr, sc *tscope) (types.Type, error) {
	sd, ok := c.prog.Structs[n.StructName]
	if !ok {
		return types.Type{}, diag.New(diag.Type, n.Position().Line, n.Position().Column, "new of undeclared struct %q", n.StructName)
	}
	fieldTypes := map[string]string{}
	for _, f := range sd.Fields {
		fieldTypes[f.Name] = f.Type
	}
	for fieldName, valueExpr := range n.Fields {
		declaredType, ok := fieldTypes[fieldName]
		if !ok {
			return types.Type{}, diag.New(diag.Type, n.Position().Line, n.Position().Column,
				"struct %q has no field %q", n.StructName, fieldName)
		}
		vt, err := c.checkExpr(valueExpr, sc)
		if err != nil {
			return types.Type{}, err
		}
		if !vt.Widenable(types.Parse(declaredType)) {
			return types.Type{}, diag.New(diag.Type, valueExpr.Position().Line, valueExpr.Position().Column,
				"field %q: cannot assign %s to declared type %s", fieldName, vt, declaredType)
		}
	}
	resultName := n.StructName
	if len(n.TypeArgs) > 0 {
		resultName = mangleGenericName(n.StructName, n.TypeArgs)
	}
	return types.NamedType(resultName), nil
}

// mangleGenericName mirrors internal/generics' Name$ConcreteType mangling
// so the type checker's static result type for a generic `new` matches
// the name the monomorphization pass will have produced by the time
// code generation runs.
func mangleGenericName(name string, typeArgs []string) string {
	out := name
	for _, t := range typeArgs {
		out += "$" + t
	}
	return out
}
