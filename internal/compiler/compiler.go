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
// Package compiler wires the pipeline stages — include, lex, parse,
// generics expansion, resolve, type-check, codegen, format — into the
// single entry point cmd/vylc drives. Compile is a pure, synchronous
// function of its input: no goroutines, no package-level mutable state.
package compiler

import (
	"github.com/vyl-lang/vylc/internal/codegen"
	"github.com/vyl-lang/vylc/internal/fmtasm"
	"github.com/vyl-lang/vylc/internal/generics"
	"github.com/vyl-lang/vylc/internal/include"
	"github.com/vyl-lang/vylc/internal/lexer"
	"github.com/vyl-lang/vylc/internal/parser"
	"github.com/vyl-lang/vylc/internal/sema"
)

// Compile lowers source (already read from disk by the caller, rooted at
// baseDir for include resolution) all the way to formatted AT&T
// assembly text, or the first diag.Error any stage raises.
func Compile(source, baseDir string, reader include.FileReader) (string, error) {
	expanded, err := include.Preprocess(source, baseDir, reader)
	if err != nil {
		return "", err
	}

	toks, err := lexer.New(expanded).Tokenize()
	if err != nil {
		return "", err
	}

	file, err := parser.New(toks).Parse()
	if err != nil {
		return "", err
	}

	if err := generics.Expand(file); err != nil {
		return "", err
	}

	prog, err := sema.Resolve(file)
	if err != nil {
		return "", err
	}

	if err := sema.Check(prog); err != nil {
		return "", err
	}

	asm, err := codegen.Generate(prog)
	if err != nil {
		return "", err
	}

	return fmtasm.Format(asm)
}
