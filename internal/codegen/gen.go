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
// Package codegen lowers a resolved, type-checked program to AT&T syntax
// x86-64 assembly text for a System V AMD64 target. A Generator is a
// per-invocation context: no package-level mutable state survives
// between calls to Generate, matching the pure-function contract every
// other compiler phase follows.
package codegen

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/vyl-lang/vylc/internal/ast"
	"github.com/vyl-lang/vylc/internal/builtins"
	"github.com/vyl-lang/vylc/internal/diag"
	"github.com/vyl-lang/vylc/internal/parser"
	"github.com/vyl-lang/vylc/internal/sema"
	"github.com/vyl-lang/vylc/internal/types"
)

// argRegs are the System V AMD64 integer/pointer argument registers, in
// left-to-right order.
var argRegs = [6]string{"rdi", "rsi", "rdx", "rcx", "r8", "r9"}

type localVar struct {
	typ    types.Type
	offset int    // relative to %rbp, used when home == ""
	home   string // "r13"/"r14"/"r15" when register-resident
}

// Generator accumulates the .text/.data/.rodata sections for one
// compilation unit.
type Generator struct {
	prog    *sema.Program
	layouts map[string]*StructLayout

	text   strings.Builder
	data   strings.Builder
	rodata strings.Builder

	strPool    map[string]string
	strCounter int
	labelNum   int

	vars       map[string]*localVar
	deferStack []*ast.Block
	returnLbl  string
	selfStruct string
	isMethod   bool
}

// Generate lowers prog, the output of sema.Resolve and sema.Check, into a
// single assembly-text string. It fails with a Codegen error only on an
// invariant violation that an earlier, correctly implemented pass should
// already have rejected.
func Generate(prog *sema.Program) (string, error) {
	g := &Generator{
		prog:    prog,
		layouts: ComputeLayouts(prog),
		strPool: map[string]string{},
	}

	g.text.WriteString(".text\n")
	g.text.WriteString(".globl main\n")
	funcNames := slices.Sorted(maps.Keys(prog.Functions))
	structNames := slices.Sorted(maps.Keys(prog.Methods))
	for _, name := range funcNames {
		g.text.WriteString(fmt.Sprintf(".globl %s\n", name))
	}
	for _, structName := range structNames {
		for _, methodName := range slices.Sorted(maps.Keys(prog.Methods[structName])) {
			g.text.WriteString(fmt.Sprintf(".globl %s\n", MangleMethod(structName, methodName)))
		}
	}
	g.text.WriteString("\n")

	if err := g.emitMain(); err != nil {
		return "", err
	}
	for _, name := range funcNames {
		fn := prog.Functions[name]
		if err := g.emitFunction(name, fn.Def.Params, fn.ReturnType, fn.Def.Body, "", false); err != nil {
			return "", err
		}
	}
	for _, structName := range structNames {
		methods := prog.Methods[structName]
		for _, methodName := range slices.Sorted(maps.Keys(methods)) {
			m := methods[methodName]
			if err := g.emitFunction(MangleMethod(structName, methodName), m.Method.Params, m.ReturnType, m.Method.Body, structName, true); err != nil {
				return "", err
			}
		}
	}

	g.text.WriteString(runtimeText)
	g.data.WriteString(runtimeData)
	g.rodata.WriteString(runtimeRodata)

	var out strings.Builder
	out.WriteString(g.text.String())
	out.WriteString("\n.data\n")
	out.WriteString(g.data.String())
	out.WriteString("\n.rodata\n")
	out.WriteString(g.rodata.String())
	out.WriteString("\n")
	out.WriteString(externsText)
	return out.String(), nil
}

func returnTypeOf(s string) types.Type {
	if s == "" {
		return types.TInt
	}
	return types.Parse(s)
}

func (g *Generator) emit(format string, args ...any) {
	g.text.WriteString("\t")
	fmt.Fprintf(&g.text, format, args...)
	g.text.WriteString("\n")
}

func (g *Generator) newLabel(prefix string) string {
	g.labelNum++
	return fmt.Sprintf(".L%s_%d", prefix, g.labelNum)
}

func (g *Generator) intern(s string) string {
	if lbl, ok := g.strPool[s]; ok {
		return lbl
	}
	lbl := fmt.Sprintf("str_%d", g.strCounter)
	g.strCounter++
	g.strPool[s] = lbl
	fmt.Fprintf(&g.rodata, "%s: .asciz %q\n", lbl, s)
	return lbl
}

func (g *Generator) loadVar(v *localVar, reg string) {
	if v.home != "" {
		g.emit("mov %%%s, %%%s", v.home, reg)
		return
	}
	g.emit("mov %d(%%rbp), %%%s", v.offset, reg)
}

func (g *Generator) storeVar(v *localVar) {
	if v.home != "" {
		g.emit("mov %%rax, %%%s", v.home)
		return
	}
	g.emit("mov %%rax, %d(%%rbp)", v.offset)
}

// emitMain synthesizes the process entry point: stash argc/argv, record
// the conservative GC's stack root, seed the PRNG, run user Main, exit
// with its return value.
func (g *Generator) emitMain() error {
	if _, ok := g.prog.Functions["Main"]; !ok {
		return diag.Unlocated(diag.Codegen, "resolved program has no Main function")
	}
	g.text.WriteString("main:\n")
	g.emit("push %%rbp")
	g.emit("mov %%rsp, %%rbp")
	g.emit("and $-16, %%rsp")
	g.emit("mov %%rdi, argc_store(%%rip)")
	g.emit("mov %%rsi, argv_store(%%rip)")
	g.emit("mov %%rbp, stack_base(%%rip)")
	g.emit("xor %%edi, %%edi")
	g.emit("call time")
	g.emit("mov %%eax, %%edi")
	g.emit("call srand")
	g.emit("call Main")
	g.emit("mov %%rax, %%rdi")
	g.emit("mov $60, %%rax")
	g.emit("syscall")
	g.text.WriteString("\n")
	return nil
}

type localDecl struct {
	name string
	typ  string
}

// collectLocals walks a function body for every VarDecl, TupleUnpack, and
// for-loop induction variable, in source order. It does not descend into
// nested function definitions; VYL has none.
func collectLocals(n ast.Node) []localDecl {
	var decls []localDecl
	var walk func(ast.Node)
	walk = func(n ast.Node) {
		if n == nil {
			return
		}
		switch s := n.(type) {
		case *ast.Block:
			for _, st := range s.Statements {
				walk(st)
			}
		case *ast.VarDecl:
			decls = append(decls, localDecl{s.Name, s.Type})
		case *ast.TupleUnpack:
			for i, name := range s.Names {
				t := ""
				if i < len(s.Types) {
					t = s.Types[i]
				}
				decls = append(decls, localDecl{name, t})
			}
		case *ast.IfStmt:
			walk(s.Then)
			walk(s.Else)
		case *ast.WhileStmt:
			walk(s.Body)
		case *ast.ForStmt:
			decls = append(decls, localDecl{s.VarName, "int"})
			walk(s.Body)
		case *ast.DeferStmt:
			walk(s.Body)
		}
	}
	walk(n)
	return decls
}

// emitFunction lowers one function or method body: prologue, parameter
// homing, statement stream, epilogue. Functions reserve r14/r15 as
// callee-saved homes for their first two parameters; methods additionally
// reserve r13 for self.
func (g *Generator) emitFunction(label string, params []ast.Param, returnType string, body *ast.Block, structName string, isMethod bool) error {
	maxParams := 6
	if isMethod {
		maxParams = 5
	}
	if len(params) > maxParams {
		return diag.Unlocated(diag.Codegen, "%s has more parameters than the six-register calling convention supports", label)
	}

	g.vars = map[string]*localVar{}
	g.deferStack = nil
	g.selfStruct = structName
	g.isMethod = isMethod
	g.returnLbl = g.newLabel("ret")

	homes := []string{}
	if isMethod {
		homes = append(homes, "r13")
	}
	homes = append(homes, "r14", "r15")

	type slotInfo struct {
		name string
		typ  types.Type
		home string
	}
	var slots []slotInfo
	homeIdx := 0
	if isMethod {
		slots = append(slots, slotInfo{"self", types.NamedType(structName), homes[homeIdx]})
		homeIdx++
	}
	for _, p := range params {
		home := ""
		if homeIdx < len(homes) {
			home = homes[homeIdx]
			homeIdx++
		}
		slots = append(slots, slotInfo{p.Name, types.Parse(p.Type), home})
	}

	offset := 0
	for _, s := range slots {
		if s.home != "" {
			g.vars[s.name] = &localVar{typ: s.typ, home: s.home}
			continue
		}
		offset -= wordSize
		g.vars[s.name] = &localVar{typ: s.typ, offset: offset}
	}
	for _, d := range collectLocals(body) {
		if _, exists := g.vars[d.name]; exists {
			continue
		}
		offset -= wordSize
		g.vars[d.name] = &localVar{typ: types.Parse(d.typ), offset: offset}
	}
	frameSize := -offset
	if frameSize%16 != 0 {
		frameSize += 16 - frameSize%16
	}

	g.text.WriteString(label + ":\n")
	g.emit("push %%rbp")
	g.emit("mov %%rsp, %%rbp")
	if isMethod {
		g.emit("push %%r13")
	}
	g.emit("push %%r14")
	g.emit("push %%r15")
	if isMethod {
		// Methods push 3 callee-saved registers against functions' 2;
		// pad by one word so rsp stays 16-byte aligned before any call
		// in the body, matching the sub $frameSize below which only
		// accounts for local-variable space.
		g.emit("sub $8, %%rsp")
	}
	if frameSize > 0 {
		g.emit("sub $%d, %%rsp", frameSize)
	}

	argIdx := 0
	for _, s := range slots {
		if argIdx >= len(argRegs) {
			break
		}
		if s.home != "" {
			g.emit("mov %%%s, %%%s", argRegs[argIdx], s.home)
		} else {
			g.emit("mov %%%s, %d(%%rbp)", argRegs[argIdx], g.vars[s.name].offset)
		}
		argIdx++
	}

	if err := g.emitBlock(body); err != nil {
		return err
	}
	g.emit("xor %%rax, %%rax")
	g.text.WriteString(g.returnLbl + ":\n")
	if err := g.emitDeferSequence(); err != nil {
		return err
	}
	if frameSize > 0 {
		g.emit("add $%d, %%rsp", frameSize)
	}
	if isMethod {
		g.emit("add $8, %%rsp")
	}
	g.emit("pop %%r15")
	g.emit("pop %%r14")
	if isMethod {
		g.emit("pop %%r13")
	}
	g.emit("leave")
	g.emit("ret")
	g.text.WriteString("\n")
	return nil
}

func (g *Generator) emitDeferSequence() error {
	for i := len(g.deferStack) - 1; i >= 0; i-- {
		g.emit("push %%rax")
		if err := g.emitBlock(g.deferStack[i]); err != nil {
			return err
		}
		g.emit("pop %%rax")
	}
	return nil
}

func (g *Generator) emitBlock(b *ast.Block) error {
	for _, stmt := range b.Statements {
		if err := g.emitStmt(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (g *Generator) emitStmt(n ast.Node) error {
	switch s := n.(type) {
	case *ast.VarDecl:
		v, ok := g.vars[s.Name]
		if !ok {
			return diag.Unlocated(diag.Codegen, "local %q has no allocated slot", s.Name)
		}
		switch {
		case s.Value != nil:
			vt, err := g.emitExpr(s.Value)
			if err != nil {
				return err
			}
			if s.Type == "" {
				v.typ = vt
			}
		case v.typ.Kind == types.Named:
			layout := g.layouts[v.typ.Name]
			size := wordSize
			if layout != nil {
				size = layout.Size
			}
			g.emit("mov $%d, %%rdi", size)
			g.emit("call vyl_alloc")
		default:
			g.emit("xor %%rax, %%rax")
		}
		g.storeVar(v)
		return nil

	case *ast.TupleUnpack:
		if _, err := g.emitExpr(s.Value); err != nil {
			return err
		}
		g.emit("mov %%rax, %%rbx")
		for i, name := range s.Names {
			v, ok := g.vars[name]
			if !ok {
				return diag.Unlocated(diag.Codegen, "local %q has no allocated slot", name)
			}
			g.emit("mov %d(%%rbx), %%rax", i*wordSize)
			g.storeVar(v)
		}
		return nil

	case *ast.Assignment:
		if _, err := g.emitExpr(s.Value); err != nil {
			return err
		}
		if s.Target == nil {
			v, ok := g.vars[s.Name]
			if !ok {
				return diag.Unlocated(diag.Codegen, "local %q has no allocated slot", s.Name)
			}
			g.storeVar(v)
			return nil
		}
		return g.emitStoreTarget(s.Target)

	case *ast.ReturnStmt:
		if s.Value != nil {
			if _, err := g.emitExpr(s.Value); err != nil {
				return err
			}
		} else {
			g.emit("xor %%rax, %%rax")
		}
		g.emit("jmp %s", g.returnLbl)
		return nil

	case *ast.DeferStmt:
		g.deferStack = append(g.deferStack, s.Body)
		return nil

	case *ast.Block:
		return g.emitBlock(s)

	case *ast.IfStmt:
		return g.emitIf(s)

	case *ast.WhileStmt:
		return g.emitWhile(s)

	case *ast.ForStmt:
		return g.emitFor(s)

	case *ast.FunctionCall, *ast.MethodCall, *ast.TryExpr:
		_, err := g.emitExpr(n)
		return err

	default:
		return diag.Unlocated(diag.Codegen, "statement kind not lowered: %T", n)
	}
}

// emitStoreTarget stores the value already computed into %rax through a
// FieldAccess or IndexExpr assignment target.
func (g *Generator) emitStoreTarget(target ast.Node) error {
	g.emit("push %%rax")
	switch t := target.(type) {
	case *ast.FieldAccess:
		rt, err := g.emitExpr(t.Receiver)
		if err != nil {
			return err
		}
		layout := g.layouts[rt.Name]
		off := 0
		if layout != nil {
			off, _ = layout.OffsetOf(t.Field)
		}
		g.emit("mov %%rax, %%rbx")
		g.emit("pop %%rax")
		g.emit("mov %%rax, %d(%%rbx)", off)
		return nil

	case *ast.IndexExpr:
		if _, err := g.emitExpr(t.Receiver); err != nil {
			return err
		}
		g.emit("push %%rax")
		if _, err := g.emitExpr(t.Index); err != nil {
			return err
		}
		g.emit("mov %%rax, %%rcx")
		g.emit("pop %%rax")
		g.emitBoundsCheck()
		g.emit("pop %%rbx")
		g.emit("mov %%rbx, (%%rax,%%rcx,8)")
		return nil

	default:
		return diag.Unlocated(diag.Codegen, "unsupported assignment target %T", target)
	}
}

func (g *Generator) emitIf(s *ast.IfStmt) error {
	elseLbl := g.newLabel("else")
	endLbl := g.newLabel("endif")
	if _, err := g.emitExpr(s.Condition); err != nil {
		return err
	}
	g.emit("cmp $0, %%rax")
	g.emit("je %s", elseLbl)
	if err := g.emitBlock(s.Then); err != nil {
		return err
	}
	g.emit("jmp %s", endLbl)
	g.text.WriteString(elseLbl + ":\n")
	switch e := s.Else.(type) {
	case nil:
	case *ast.Block:
		if err := g.emitBlock(e); err != nil {
			return err
		}
	case *ast.IfStmt:
		if err := g.emitIf(e); err != nil {
			return err
		}
	}
	g.text.WriteString(endLbl + ":\n")
	return nil
}

// matchCounterLoop recognizes `while (id <op> int) { id = id (+|-) int; }`
// so emitWhile can take the register-resident fast path from the Code
// Generator contract instead of the generic branch-per-iteration form.
func matchCounterLoop(s *ast.WhileStmt) (name, op string, limit, delta int64, ok bool) {
	be, isBin := s.Condition.(*ast.BinaryExpr)
	if !isBin {
		return
	}
	id, isID := be.Left.(*ast.Identifier)
	if !isID {
		return
	}
	lit, isLit := be.Right.(*ast.Literal)
	if !isLit || lit.Kind != ast.LitInt {
		return
	}
	switch be.Operator {
	case "<", "<=", ">", ">=":
	default:
		return
	}
	if len(s.Body.Statements) != 1 {
		return
	}
	asg, isAsg := s.Body.Statements[0].(*ast.Assignment)
	if !isAsg || asg.Target != nil || asg.Name != id.Name {
		return
	}
	abe, isABE := asg.Value.(*ast.BinaryExpr)
	if !isABE || (abe.Operator != "+" && abe.Operator != "-") {
		return
	}
	aid, isAID := abe.Left.(*ast.Identifier)
	if !isAID || aid.Name != id.Name {
		return
	}
	alit, isALit := abe.Right.(*ast.Literal)
	if !isALit || alit.Kind != ast.LitInt {
		return
	}
	return id.Name, be.Operator, lit.IntVal, alit.IntVal, true
}

var loopExitJump = map[string]string{"<": "jge", "<=": "jg", ">": "jle", ">=": "jl"}

func (g *Generator) emitCounterLoop(s *ast.WhileStmt, name, op string, limit, delta int64) error {
	v, ok := g.vars[name]
	if !ok {
		return diag.Unlocated(diag.Codegen, "local %q has no allocated slot", name)
	}
	startLbl := g.newLabel("cloop")
	endLbl := g.newLabel("cloop_end")
	g.loadVar(v, "rax")
	g.emit("mov $%d, %%rbx", limit)
	g.text.WriteString(startLbl + ":\n")
	g.emit("cmp %%rbx, %%rax")
	g.emit("%s %s", loopExitJump[op], endLbl)
	delta_op := "add"
	step := s.Body.Statements[0].(*ast.Assignment).Value.(*ast.BinaryExpr)
	if step.Operator == "-" {
		delta_op = "sub"
	}
	g.emit("%s $%d, %%rax", delta_op, delta)
	g.emit("jmp %s", startLbl)
	g.text.WriteString(endLbl + ":\n")
	g.storeVar(v)
	return nil
}

func (g *Generator) emitWhile(s *ast.WhileStmt) error {
	if name, op, limit, delta, ok := matchCounterLoop(s); ok {
		return g.emitCounterLoop(s, name, op, limit, delta)
	}
	startLbl := g.newLabel("while")
	endLbl := g.newLabel("endwhile")
	g.text.WriteString(startLbl + ":\n")
	if _, err := g.emitExpr(s.Condition); err != nil {
		return err
	}
	g.emit("cmp $0, %%rax")
	g.emit("je %s", endLbl)
	if err := g.emitBlock(s.Body); err != nil {
		return err
	}
	g.emit("jmp %s", startLbl)
	g.text.WriteString(endLbl + ":\n")
	return nil
}

func (g *Generator) emitFor(s *ast.ForStmt) error {
	v, ok := g.vars[s.VarName]
	if !ok {
		return diag.Unlocated(diag.Codegen, "local %q has no allocated slot", s.VarName)
	}
	if _, err := g.emitExpr(s.Start); err != nil {
		return err
	}
	g.storeVar(v)
	startLbl := g.newLabel("for")
	endLbl := g.newLabel("endfor")
	g.text.WriteString(startLbl + ":\n")
	if _, err := g.emitExpr(s.End); err != nil {
		return err
	}
	g.emit("mov %%rax, %%rbx")
	g.loadVar(v, "rax")
	g.emit("cmp %%rbx, %%rax")
	g.emit("jg %s", endLbl)
	if err := g.emitBlock(s.Body); err != nil {
		return err
	}
	g.loadVar(v, "rax")
	g.emit("add $1, %%rax")
	g.storeVar(v)
	g.emit("jmp %s", startLbl)
	g.text.WriteString(endLbl + ":\n")
	return nil
}

func (g *Generator) emitBoundsCheck() {
	g.emit("cmp $0, %%rax")
	g.emit("je vyl_bounds_fail")
	g.emit("cmp $0, %%rcx")
	g.emit("jl vyl_bounds_fail")
	g.emit("mov -8(%%rax), %%rdx")
	g.emit("cmp %%rdx, %%rcx")
	g.emit("jge vyl_bounds_fail")
}

func widenArith(l, r types.Type) types.Type {
	if l.Kind == types.Dec || r.Kind == types.Dec {
		return types.TDec
	}
	return types.TInt
}

// emitExpr evaluates n and leaves its value in %rax, returning the
// expression's static type for use by callers that need it (string
// dispatch, field offsets, array element width).
func (g *Generator) emitExpr(n ast.Node) (types.Type, error) {
	switch e := n.(type) {
	case *ast.Literal:
		switch e.Kind {
		case ast.LitInt:
			g.emit("mov $%d, %%rax", e.IntVal)
			return types.TInt, nil
		case ast.LitDec:
			g.emit("mov $%d, %%rax", int64(e.DecVal))
			return types.TDec, nil
		case ast.LitString:
			lbl := g.intern(e.StrVal)
			g.emit("lea %s(%%rip), %%rax", lbl)
			return types.TString, nil
		case ast.LitBool:
			v := 0
			if e.BoolVal {
				v = 1
			}
			g.emit("mov $%d, %%rax", v)
			return types.TBool, nil
		}
		return types.Type{}, diag.Unlocated(diag.Codegen, "unreachable literal kind")

	case *ast.NullLiteral:
		g.emit("xor %%rax, %%rax")
		return types.TVoidP, nil

	case *ast.InterpString:
		return g.emitInterp(e)

	case *ast.Identifier:
		v, ok := g.vars[e.Name]
		if !ok {
			return types.Type{}, diag.Unlocated(diag.Codegen, "local %q has no allocated slot", e.Name)
		}
		g.loadVar(v, "rax")
		return v.typ, nil

	case *ast.SelfExpr:
		v, ok := g.vars["self"]
		if !ok {
			return types.Type{}, diag.Unlocated(diag.Codegen, "self referenced outside a method")
		}
		g.loadVar(v, "rax")
		return v.typ, nil

	case *ast.BinaryExpr:
		return g.emitBinary(e)

	case *ast.UnaryExpr:
		t, err := g.emitExpr(e.Operand)
		if err != nil {
			return types.Type{}, err
		}
		switch e.Operator {
		case "-":
			g.emit("neg %%rax")
		case "+":
		case "!":
			g.emit("xor $1, %%rax")
		default:
			return types.Type{}, diag.Unlocated(diag.Codegen, "unsupported unary operator %q", e.Operator)
		}
		return t, nil

	case *ast.AddressOf:
		return g.emitAddress(e.Operand)

	case *ast.Dereference:
		t, err := g.emitExpr(e.Operand)
		if err != nil {
			return types.Type{}, err
		}
		g.emit("mov (%%rax), %%rax")
		if t.Kind == types.Pointer && t.Elem != nil {
			return *t.Elem, nil
		}
		return types.TInt, nil

	case *ast.TryExpr:
		t, err := g.emitExpr(e.Inner)
		if err != nil {
			return types.Type{}, err
		}
		cont := g.newLabel("try_ok")
		g.emit("cmp $0, %%rax")
		g.emit("jge %s", cont)
		g.emit("jmp %s", g.returnLbl)
		g.text.WriteString(cont + ":\n")
		return t, nil

	case *ast.FieldAccess:
		return g.emitFieldAccess(e)

	case *ast.EnumAccess:
		val := g.prog.EnumValues[e.EnumName][e.Variant]
		g.emit("mov $%d, %%rax", val)
		return types.NamedType(e.EnumName), nil

	case *ast.IndexExpr:
		return g.emitIndex(e)

	case *ast.FunctionCall:
		return g.emitCall(e)

	case *ast.MethodCall:
		return g.emitMethodCall(e)

	case *ast.NewExpr:
		return g.emitNew(e)

	case *ast.ArrayLiteral:
		return g.emitArrayLiteral(e)

	case *ast.TupleLiteral:
		return g.emitTupleLiteral(e)

	default:
		return types.Type{}, diag.Unlocated(diag.Codegen, "expression kind not lowered: %T", n)
	}
}

func (g *Generator) emitBinary(e *ast.BinaryExpr) (types.Type, error) {
	if e.Operator == "&&" || e.Operator == "||" {
		return g.emitLogical(e)
	}

	lt, err := g.emitExpr(e.Left)
	if err != nil {
		return types.Type{}, err
	}
	g.emit("push %%rax")
	rt, err := g.emitExpr(e.Right)
	if err != nil {
		return types.Type{}, err
	}
	g.emit("mov %%rax, %%rbx")
	g.emit("pop %%rax")

	switch e.Operator {
	case "+":
		if lt.Kind == types.String || rt.Kind == types.String {
			g.emitStringConcat(lt, rt)
			return types.TString, nil
		}
		g.emit("add %%rbx, %%rax")
		return widenArith(lt, rt), nil
	case "-":
		g.emit("sub %%rbx, %%rax")
		return widenArith(lt, rt), nil
	case "*":
		g.emit("imul %%rbx, %%rax")
		return widenArith(lt, rt), nil
	case "/":
		g.emit("cqto")
		g.emit("idiv %%rbx")
		return widenArith(lt, rt), nil
	case "%":
		g.emit("cqto")
		g.emit("idiv %%rbx")
		g.emit("mov %%rdx, %%rax")
		return types.TInt, nil
	case "==", "!=":
		if lt.Kind == types.String || rt.Kind == types.String {
			g.emit("mov %%rax, %%rdi")
			g.emit("mov %%rbx, %%rsi")
			g.emit("call strcmp")
			g.emit("cmp $0, %%rax")
		} else {
			g.emit("cmp %%rbx, %%rax")
		}
		setc := "sete"
		if e.Operator == "!=" {
			setc = "setne"
		}
		g.emit("%s %%al", setc)
		g.emit("movzbq %%al, %%rax")
		return types.TBool, nil
	case "<", "<=", ">", ">=":
		g.emit("cmp %%rbx, %%rax")
		setc := map[string]string{"<": "setl", "<=": "setle", ">": "setg", ">=": "setge"}[e.Operator]
		g.emit("%s %%al", setc)
		g.emit("movzbq %%al, %%rax")
		return types.TBool, nil
	}
	return types.Type{}, diag.Unlocated(diag.Codegen, "unsupported binary operator %q", e.Operator)
}

func (g *Generator) emitLogical(e *ast.BinaryExpr) (types.Type, error) {
	endLbl := g.newLabel("logic_end")
	if _, err := g.emitExpr(e.Left); err != nil {
		return types.Type{}, err
	}
	g.emit("cmp $0, %%rax")
	if e.Operator == "&&" {
		g.emit("je %s", endLbl)
	} else {
		g.emit("jne %s", endLbl)
	}
	if _, err := g.emitExpr(e.Right); err != nil {
		return types.Type{}, err
	}
	g.text.WriteString(endLbl + ":\n")
	return types.TBool, nil
}

// pushStringOperand pushes a string pointer for the value currently held
// in reg, converting it through a 24-byte sprintf buffer first when t is
// not already a string, per the integer-to-string coercion rule.
func (g *Generator) pushStringOperand(reg string, t types.Type) {
	if t.Kind == types.String {
		g.emit("push %%%s", reg)
		return
	}
	g.emit("push %%%s", reg)
	g.emit("mov $24, %%rdi")
	g.emit("call vyl_alloc")
	g.emit("mov %%rax, %%rdi")
	g.emit("pop %%rdx")
	g.emit("push %%rdi")
	g.emit("lea fmt_ld(%%rip), %%rsi")
	g.emit("xor %%eax, %%eax")
	g.emit("call sprintf")
}

// emitStringConcat expects the left operand in %rax and the right operand
// in %rbx, and leaves the concatenated string pointer in %rax.
func (g *Generator) emitStringConcat(lt, rt types.Type) {
	g.emit("mov %%rbx, %%r10")
	g.pushStringOperand("rax", lt)
	g.pushStringOperand("r10", rt)
	g.emit("pop %%rbx")
	g.emit("pop %%rax")
	g.emit("call vyl_concat_two")
}

func (g *Generator) emitInterp(e *ast.InterpString) (types.Type, error) {
	lbl := g.intern("")
	g.emit("lea %s(%%rip), %%rax", lbl)
	for _, part := range e.Parts {
		g.emit("push %%rax")
		var partType types.Type
		if part.IsExpr {
			node, err := parser.ParseExprString(part.Text)
			if err != nil {
				return types.Type{}, diag.Unlocated(diag.Codegen, "interpolated expression %q failed to re-parse: %v", part.Text, err)
			}
			t, err := g.emitExpr(node)
			if err != nil {
				return types.Type{}, err
			}
			partType = t
		} else {
			lit := g.intern(part.Text)
			g.emit("lea %s(%%rip), %%rax", lit)
			partType = types.TString
		}
		g.emit("mov %%rax, %%rbx")
		g.emit("pop %%rax")
		g.emitStringConcat(types.TString, partType)
	}
	return types.TString, nil
}

func (g *Generator) fieldType(structName, field string) types.Type {
	sd, ok := g.prog.Structs[structName]
	if !ok {
		return types.TInt
	}
	for _, f := range sd.Fields {
		if f.Name == field {
			return types.Parse(f.Type)
		}
	}
	return types.TInt
}

func (g *Generator) emitFieldAccess(e *ast.FieldAccess) (types.Type, error) {
	if id, isID := e.Receiver.(*ast.Identifier); isID {
		if _, isLocal := g.vars[id.Name]; !isLocal {
			if variants, isEnum := g.prog.EnumValues[id.Name]; isEnum {
				g.emit("mov $%d, %%rax", variants[e.Field])
				return types.NamedType(id.Name), nil
			}
		}
	}
	rt, err := g.emitExpr(e.Receiver)
	if err != nil {
		return types.Type{}, err
	}
	layout, ok := g.layouts[rt.Name]
	if !ok {
		return types.Type{}, diag.Unlocated(diag.Codegen, "field access on unresolved struct %q", rt.Name)
	}
	off, ok := layout.OffsetOf(e.Field)
	if !ok {
		return types.Type{}, diag.Unlocated(diag.Codegen, "struct %q has no field %q", rt.Name, e.Field)
	}
	g.emit("mov %d(%%rax), %%rax", off)
	return g.fieldType(rt.Name, e.Field), nil
}

func (g *Generator) emitIndex(e *ast.IndexExpr) (types.Type, error) {
	rt, err := g.emitExpr(e.Receiver)
	if err != nil {
		return types.Type{}, err
	}
	g.emit("push %%rax")
	if _, err := g.emitExpr(e.Index); err != nil {
		return types.Type{}, err
	}
	g.emit("mov %%rax, %%rcx")
	g.emit("pop %%rax")
	g.emitBoundsCheck()
	g.emit("mov (%%rax,%%rcx,8), %%rax")
	if rt.Kind == types.Array && rt.Elem != nil {
		return *rt.Elem, nil
	}
	return types.TInt, nil
}

func (g *Generator) emitAddress(n ast.Node) (types.Type, error) {
	switch e := n.(type) {
	case *ast.Identifier:
		v, ok := g.vars[e.Name]
		if !ok {
			return types.Type{}, diag.Unlocated(diag.Codegen, "local %q has no allocated slot", e.Name)
		}
		if v.home != "" {
			return types.Type{}, diag.Unlocated(diag.Codegen, "cannot take the address of register-resident parameter %q", e.Name)
		}
		g.emit("lea %d(%%rbp), %%rax", v.offset)
		return types.PointerTo(v.typ), nil
	case *ast.FieldAccess:
		rt, err := g.emitExpr(e.Receiver)
		if err != nil {
			return types.Type{}, err
		}
		off := 0
		if layout := g.layouts[rt.Name]; layout != nil {
			off, _ = layout.OffsetOf(e.Field)
		}
		g.emit("lea %d(%%rax), %%rax", off)
		return types.PointerTo(g.fieldType(rt.Name, e.Field)), nil
	default:
		return types.Type{}, diag.Unlocated(diag.Codegen, "cannot take the address of %T", n)
	}
}

func (g *Generator) fillDefaults(params []ast.Param, args []ast.Node) ([]ast.Node, error) {
	if len(args) > len(params) {
		return nil, diag.Unlocated(diag.Codegen, "call supplies more arguments than declared parameters")
	}
	full := make([]ast.Node, len(params))
	copy(full, args)
	for i := len(args); i < len(params); i++ {
		if params[i].Default == nil {
			return nil, diag.Unlocated(diag.Codegen, "missing argument %d with no default", i)
		}
		full[i] = params[i].Default
	}
	return full, nil
}

// emitArgs evaluates args right-to-left onto the stack, then pops them
// into the ABI registers in left-to-right order.
func (g *Generator) emitArgs(args []ast.Node) error {
	if len(args) > len(argRegs) {
		return diag.Unlocated(diag.Codegen, "calls with more than six arguments are not supported")
	}
	for i := len(args) - 1; i >= 0; i-- {
		if _, err := g.emitExpr(args[i]); err != nil {
			return err
		}
		g.emit("push %%rax")
	}
	for i := 0; i < len(args); i++ {
		g.emit("pop %%%s", argRegs[i])
	}
	return nil
}

func (g *Generator) emitCall(e *ast.FunctionCall) (types.Type, error) {
	if sig, ok := builtins.Lookup(e.Name); ok {
		return g.emitBuiltin(e.Name, sig, e.Arguments)
	}
	fn, ok := g.prog.Functions[e.Name]
	if !ok {
		return types.Type{}, diag.Unlocated(diag.Codegen, "call to unresolved function %q", e.Name)
	}
	args, err := g.fillDefaults(fn.Def.Params, e.Arguments)
	if err != nil {
		return types.Type{}, err
	}
	if err := g.emitArgs(args); err != nil {
		return types.Type{}, err
	}
	g.emit("call %s", e.Name)
	return returnTypeOf(fn.ReturnType), nil
}

func (g *Generator) emitMethodCall(e *ast.MethodCall) (types.Type, error) {
	rt, err := g.emitExpr(e.Receiver)
	if err != nil {
		return types.Type{}, err
	}
	g.emit("mov %%rax, %%r12")
	structName := rt.Name
	m, ok := g.prog.Methods[structName][e.Method]
	if !ok {
		return types.Type{}, diag.Unlocated(diag.Codegen, "call to unresolved method %s.%s", structName, e.Method)
	}
	args, err := g.fillDefaults(m.Method.Params, e.Arguments)
	if err != nil {
		return types.Type{}, err
	}
	if len(args)+1 > len(argRegs) {
		return types.Type{}, diag.Unlocated(diag.Codegen, "method calls with more than five explicit arguments are not supported")
	}
	for i := len(args) - 1; i >= 0; i-- {
		if _, err := g.emitExpr(args[i]); err != nil {
			return types.Type{}, err
		}
		g.emit("push %%rax")
	}
	g.emit("push %%r12")
	for i := 0; i <= len(args); i++ {
		g.emit("pop %%%s", argRegs[i])
	}
	g.emit("call %s", MangleMethod(structName, e.Method))
	return returnTypeOf(m.ReturnType), nil
}

func (g *Generator) emitNew(e *ast.NewExpr) (types.Type, error) {
	layout, ok := g.layouts[e.StructName]
	if !ok {
		return types.Type{}, diag.Unlocated(diag.Codegen, "new of unresolved struct %q", e.StructName)
	}
	g.emit("mov $%d, %%rdi", layout.Size)
	g.emit("call vyl_alloc")
	g.emit("push %%rax")
	for _, fieldName := range e.FieldOrder {
		val := e.Fields[fieldName]
		if _, err := g.emitExpr(val); err != nil {
			return types.Type{}, err
		}
		off, _ := layout.OffsetOf(fieldName)
		g.emit("mov 0(%%rsp), %%r10")
		g.emit("mov %%rax, %d(%%r10)", off)
	}
	g.emit("pop %%rax")
	return types.NamedType(e.StructName), nil
}

func (g *Generator) emitArrayLiteral(e *ast.ArrayLiteral) (types.Type, error) {
	n := len(e.Elements)
	g.emit("mov $%d, %%rdi", n*wordSize+wordSize)
	g.emit("call vyl_alloc")
	g.emit("push %%rax")
	g.emit("mov $%d, %%rbx", n)
	g.emit("mov 0(%%rsp), %%r10")
	g.emit("mov %%rbx, (%%r10)")
	elemType := types.TInt
	for i, el := range e.Elements {
		t, err := g.emitExpr(el)
		if err != nil {
			return types.Type{}, err
		}
		if i == 0 {
			elemType = t
		}
		g.emit("mov 0(%%rsp), %%r10")
		g.emit("mov %%rax, %d(%%r10)", wordSize+i*wordSize)
	}
	g.emit("pop %%rax")
	g.emit("add $8, %%rax")
	return types.ArrayOf(elemType), nil
}

func (g *Generator) emitTupleLiteral(e *ast.TupleLiteral) (types.Type, error) {
	n := len(e.Elements)
	g.emit("mov $%d, %%rdi", n*wordSize)
	g.emit("call vyl_alloc")
	g.emit("push %%rax")
	elemTypes := make([]types.Type, n)
	for i, el := range e.Elements {
		t, err := g.emitExpr(el)
		if err != nil {
			return types.Type{}, err
		}
		elemTypes[i] = t
		g.emit("mov 0(%%rsp), %%r10")
		g.emit("mov %%rax, %d(%%r10)", i*wordSize)
	}
	g.emit("pop %%rax")
	return types.TupleOf(elemTypes...), nil
}
