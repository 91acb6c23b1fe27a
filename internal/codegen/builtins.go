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
package codegen

import (
	"github.com/vyl-lang/vylc/internal/ast"
	"github.com/vyl-lang/vylc/internal/builtins"
	"github.com/vyl-lang/vylc/internal/diag"
	"github.com/vyl-lang/vylc/internal/types"
)

// runtimeHelperFor maps a builtin name to the runtime.go label that
// implements it for builtins whose lowering is "evaluate arguments into
// the ABI registers, call the helper, done" — no bespoke shape of their
// own.
var runtimeHelperFor = map[string]string{
	"Input":        "vyl_input",
	"Exists":       "vyl_exists",
	"CreateFolder": "vyl_create_folder",
	"MkdirP":       "vyl_mkdirp",
	"Open":         "vyl_open",
	"Close":        "vyl_close",
	"Read":         "vyl_read",
	"Write":        "vyl_write",
	"ReadFilesize": "vyl_read_filesize",
	"Remove":       "vyl_remove",
	"RemoveAll":    "vyl_remove_all",
	"CopyFile":     "vyl_copy_file",
	"Unzip":        "vyl_unzip",
	"OpenDir":      "vyl_open_dir",
	"ReadDir":      "vyl_read_dir",
	"CloseDir":     "vyl_close_dir",

	"SHA256": "vyl_sha256",

	"TcpResolve": "vyl_tcp_resolve",
	"TcpConnect": "vyl_tcp_connect",
	"TcpSend":    "vyl_tcp_send",
	"TcpRecv":    "vyl_tcp_recv",
	"TcpClose":   "vyl_tcp_close",
	"TlsConnect": "vyl_tls_connect",
	"TlsSend":    "vyl_tls_send",
	"TlsRecv":    "vyl_tls_recv",
	"TlsClose":   "vyl_tls_close",

	"HttpGet":      "vyl_http_get",
	"HttpDownload": "vyl_http_download",

	"Alloc":  "vyl_alloc",
	"Malloc": "vyl_alloc",
	"Memcpy": "vyl_memcpy",
	"Memset": "vyl_memset",

	"StrConcat": "vyl_concat_two",
	"StrLen":    "vyl_strlen",
	"StrFind":   "vyl_str_find",
	"Substring": "vyl_substring",
	"GetEnv":    "vyl_getenv",
	"Sys":       "vyl_sys",

	"Sqrt": "vyl_sqrt",

	"Exit":    "vyl_exit",
	"Sleep":   "vyl_sleep",
	"Now":     "vyl_now",
	"Clock":   "vyl_clock",
	"RandInt": "vyl_randint",
	"Argc":    "vyl_argc",
	"GetArg":  "vyl_getarg",
}

// emitBuiltin lowers a call to one of the runtime builtin menu's entries.
// Print, Array, Length/Len, Free, and GC have bespoke lowerings; every
// other name goes through the generic runtimeHelperFor dispatch.
func (g *Generator) emitBuiltin(name string, sig builtins.Signature, args []ast.Node) (types.Type, error) {
	switch name {
	case "Print":
		return sig.ReturnType, g.emitPrint(args)
	case "Array":
		return g.emitArrayBuiltin(args)
	case "Length", "Len":
		return g.emitLengthBuiltin(args)
	case "Free":
		return sig.ReturnType, g.emitFreeBuiltin(args)
	case "GC":
		g.emit("call vyl_collect")
		return sig.ReturnType, nil
	}

	helper, ok := runtimeHelperFor[name]
	if !ok {
		return types.Type{}, diag.Unlocated(diag.Codegen, "builtin %q has no code generator lowering", name)
	}
	if err := g.emitArgs(args); err != nil {
		return types.Type{}, err
	}
	g.emit("call %s", helper)
	return sig.ReturnType, nil
}

// emitPrint prints each variadic argument in turn, dispatching on its
// inferred type: strings go through print_string, everything else is
// printed as a decimal integer.
func (g *Generator) emitPrint(args []ast.Node) error {
	for _, a := range args {
		t, err := g.emitExpr(a)
		if err != nil {
			return err
		}
		g.emit("mov %%rax, %%rdi")
		if t.Kind == types.String {
			g.emit("call print_string")
		} else {
			g.emit("call print_int")
		}
	}
	return nil
}

// emitArrayBuiltin allocates an n-element array cell: one length-prefix
// word followed by n data words (left uninitialized, as vyl_alloc does not
// clear memory), returning a pointer to the first
// data word so IndexExpr's (%rax,%rcx,8) addressing needs no adjustment.
func (g *Generator) emitArrayBuiltin(args []ast.Node) (types.Type, error) {
	if len(args) != 1 {
		return types.Type{}, diag.Unlocated(diag.Codegen, "Array expects exactly one length argument")
	}
	if _, err := g.emitExpr(args[0]); err != nil {
		return types.Type{}, err
	}
	g.emit("mov %%rax, %%rbx")
	g.emit("imul $%d, %%rax", wordSize)
	g.emit("add $%d, %%rax", wordSize)
	g.emit("mov %%rax, %%rdi")
	g.emit("call vyl_alloc")
	g.emit("mov %%rbx, (%%rax)")
	g.emit("add $%d, %%rax", wordSize)
	return types.ArrayOf(types.TInt), nil
}

// emitLengthBuiltin reads the length-prefix word vyl_alloc's caller
// stored one word before the data pointer Array/array-literal returns.
func (g *Generator) emitLengthBuiltin(args []ast.Node) (types.Type, error) {
	if len(args) != 1 {
		return types.Type{}, diag.Unlocated(diag.Codegen, "Length/Len expects exactly one argument")
	}
	if _, err := g.emitExpr(args[0]); err != nil {
		return types.Type{}, err
	}
	g.emit("mov -%d(%%rax), %%rax", wordSize)
	return types.TInt, nil
}

// emitFreeBuiltin hands a cell allocated by vyl_alloc to vyl_free_cell,
// which releases it with free(); the cell stays linked in heap_head.
// Array pointers point eight bytes past the cell header emitted by
// vyl_alloc, so they are rewound before the call.
func (g *Generator) emitFreeBuiltin(args []ast.Node) error {
	if len(args) != 1 {
		return diag.Unlocated(diag.Codegen, "Free expects exactly one argument")
	}
	t, err := g.emitExpr(args[0])
	if err != nil {
		return err
	}
	g.emit("mov %%rax, %%rdi")
	if t.Kind == types.Array {
		g.emit("sub $%d, %%rdi", wordSize)
	}
	g.emit("sub $24, %%rdi")
	g.emit("call vyl_free_cell")
	return nil
}
