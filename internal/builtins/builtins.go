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
// Package builtins holds the single authoritative table of runtime
// builtin signatures. Both the resolver (is this name callable at all)
// and the type checker (is this call shape valid) consult it; the code
// generator's emission table in codegen/builtins.go is keyed by the same
// names so the two tables can never silently drift apart on which names
// exist, only on how they lower.
package builtins

import "github.com/vyl-lang/vylc/internal/types"

// Any is the "accepts anything" parameter-slot sentinel (spec's "None
// meaning any in a slot").
var Any = types.Type{Kind: types.Invalid}

// Signature describes a callable builtin's parameter and return types.
// ParamTypes entries equal to Any accept any argument type. Variadic
// builtins (currently only Print) repeat the last ParamTypes entry for
// any additional arguments.
type Signature struct {
	ParamTypes []types.Type
	ReturnType types.Type
	Variadic   bool
}

func untypedArray() types.Type { return types.Type{Kind: types.Array} }

// Table is the full builtin surface from the runtime builtin menu.
var Table = map[string]Signature{
	"Print": {ParamTypes: []types.Type{Any}, ReturnType: types.TVoid, Variadic: true},
	"Input": {ReturnType: types.TString},

	"Exists":       {ParamTypes: []types.Type{types.TString}, ReturnType: types.TBool},
	"CreateFolder": {ParamTypes: []types.Type{types.TString}, ReturnType: types.TInt},
	"Open":         {ParamTypes: []types.Type{types.TString, types.TString}, ReturnType: types.TInt},
	"Close":        {ParamTypes: []types.Type{types.TInt}, ReturnType: types.TInt},
	"Read":         {ParamTypes: []types.Type{types.TInt, types.TInt}, ReturnType: types.TString},
	"Write":        {ParamTypes: []types.Type{types.TInt, types.TString}, ReturnType: types.TInt},
	"ReadFilesize": {ParamTypes: []types.Type{types.TString}, ReturnType: types.TInt},
	"Remove":       {ParamTypes: []types.Type{types.TString}, ReturnType: types.TInt},
	"MkdirP":       {ParamTypes: []types.Type{types.TString}, ReturnType: types.TInt},
	"RemoveAll":    {ParamTypes: []types.Type{types.TString}, ReturnType: types.TInt},
	"CopyFile":     {ParamTypes: []types.Type{types.TString, types.TString}, ReturnType: types.TInt},
	"Unzip":        {ParamTypes: []types.Type{types.TString, types.TString}, ReturnType: types.TInt},
	"OpenDir":      {ParamTypes: []types.Type{types.TString}, ReturnType: types.TInt},
	"ReadDir":      {ParamTypes: []types.Type{types.TInt}, ReturnType: types.TString},
	"CloseDir":     {ParamTypes: []types.Type{types.TInt}, ReturnType: types.TInt},

	"SHA256": {ParamTypes: []types.Type{types.TString}, ReturnType: types.TString},

	"TcpConnect": {ParamTypes: []types.Type{types.TString, types.TInt}, ReturnType: types.TInt},
	"TcpSend":    {ParamTypes: []types.Type{types.TInt, types.TString}, ReturnType: types.TInt},
	"TcpRecv":    {ParamTypes: []types.Type{types.TInt, types.TInt}, ReturnType: types.TString},
	"TcpClose":   {ParamTypes: []types.Type{types.TInt}, ReturnType: types.TInt},
	"TcpResolve": {ParamTypes: []types.Type{types.TString}, ReturnType: types.TString},
	"TlsConnect": {ParamTypes: []types.Type{types.TString, types.TInt}, ReturnType: types.TInt},
	"TlsSend":    {ParamTypes: []types.Type{types.TInt, types.TString}, ReturnType: types.TInt},
	"TlsRecv":    {ParamTypes: []types.Type{types.TInt, types.TInt}, ReturnType: types.TString},
	"TlsClose":   {ParamTypes: []types.Type{types.TInt}, ReturnType: types.TInt},
	"HttpGet":      {ParamTypes: []types.Type{types.TString}, ReturnType: types.TString},
	"HttpDownload": {ParamTypes: []types.Type{types.TString, types.TString}, ReturnType: types.TInt},

	"Alloc":  {ParamTypes: []types.Type{types.TInt}, ReturnType: types.TVoidP},
	"Free":   {ParamTypes: []types.Type{types.TVoidP}, ReturnType: types.TInt},
	"Malloc": {ParamTypes: []types.Type{types.TInt}, ReturnType: types.TVoidP},
	"Memcpy": {ParamTypes: []types.Type{types.TVoidP, types.TVoidP, types.TInt}, ReturnType: types.TInt},
	"Memset": {ParamTypes: []types.Type{types.TVoidP, types.TInt, types.TInt}, ReturnType: types.TInt},
	"Array":  {ParamTypes: []types.Type{types.TInt}, ReturnType: untypedArray()},
	"Length": {ParamTypes: []types.Type{untypedArray()}, ReturnType: types.TInt},
	"Len":    {ParamTypes: []types.Type{untypedArray()}, ReturnType: types.TInt},
	"GC":     {ReturnType: types.TVoid},

	"StrConcat": {ParamTypes: []types.Type{types.TString, types.TString}, ReturnType: types.TString},
	"StrLen":    {ParamTypes: []types.Type{types.TString}, ReturnType: types.TInt},
	"StrFind":   {ParamTypes: []types.Type{types.TString, types.TString}, ReturnType: types.TInt},
	"Substring": {ParamTypes: []types.Type{types.TString, types.TInt, types.TInt}, ReturnType: types.TString},
	"GetEnv":    {ParamTypes: []types.Type{types.TString}, ReturnType: types.TString},
	"Sys":       {ParamTypes: []types.Type{types.TString}, ReturnType: types.TInt},

	"Sqrt": {ParamTypes: []types.Type{types.TInt}, ReturnType: types.TInt},

	"Exit":    {ParamTypes: []types.Type{types.TInt}, ReturnType: types.TVoid},
	"Sleep":   {ParamTypes: []types.Type{types.TInt}, ReturnType: types.TVoid},
	"Now":     {ReturnType: types.TInt},
	"RandInt": {ParamTypes: []types.Type{types.TInt, types.TInt}, ReturnType: types.TInt},
	"Clock":   {ReturnType: types.TInt},
	"Argc":    {ReturnType: types.TInt},
	"GetArg":  {ParamTypes: []types.Type{types.TInt}, ReturnType: types.TString},
}

// Lookup returns a builtin's signature and whether the name is one.
func Lookup(name string) (Signature, bool) {
	sig, ok := Table[name]
	return sig, ok
}

// AcceptsArity reports whether a call with argCount arguments is valid
// for this signature (accounting for Variadic).
func (s Signature) AcceptsArity(argCount int) bool {
	if s.Variadic {
		return argCount >= len(s.ParamTypes)
	}
	return argCount == len(s.ParamTypes)
}

// ParamTypeAt returns the expected type for argument index i, repeating
// the final declared parameter type for variadic overflow.
func (s Signature) ParamTypeAt(i int) types.Type {
	if i < len(s.ParamTypes) {
		return s.ParamTypes[i]
	}
	if s.Variadic && len(s.ParamTypes) > 0 {
		return s.ParamTypes[len(s.ParamTypes)-1]
	}
	return Any
}
