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
// Package include recursively inlines `include "path"` / `import "path"`
// directives before lexing. It is a pure string-to-string transform over
// an injected FileReader, so it needs no filesystem access of its own and
// cmd/vylc remains the only place that decides which file to read first.
package include

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/vyl-lang/vylc/internal/diag"
)

var directivePattern = regexp.MustCompile(`^\s*(?:include|import)\s+"([^"]+)"\s*;?\s*$`)

// FileReader abstracts the filesystem so Preprocess stays a pure
// function; cmd/vylc supplies the real implementation.
type FileReader interface {
	ReadFile(path string) (string, error)
}

// Preprocess inlines every include/import directive reachable from
// source, which is understood to live in baseDir. Each referenced path
// is resolved relative to the directory of the file that names it, so a
// nested include's own includes resolve relative to its own location.
// A directive naming a path already on the current inclusion chain fails
// with a diag.Include cycle error; a directive naming a path the reader
// cannot produce fails with a diag.Include not-found error.
func Preprocess(source, baseDir string, reader FileReader) (string, error) {
	return preprocess(source, baseDir, reader, map[string]bool{})
}

func preprocess(source, baseDir string, reader FileReader, seen map[string]bool) (string, error) {
	lines := strings.Split(source, "\n")
	var out strings.Builder
	for i, line := range lines {
		if i > 0 {
			out.WriteString("\n")
		}
		m := directivePattern.FindStringSubmatch(line)
		if m == nil {
			out.WriteString(line)
			continue
		}
		relPath := m[1]
		includePath := filepath.Clean(filepath.Join(baseDir, relPath))

		if seen[includePath] {
			return "", diag.Unlocated(diag.Include, "cyclic include detected at %q", includePath)
		}
		contents, err := reader.ReadFile(includePath)
		if err != nil {
			return "", diag.Unlocated(diag.Include, "include not found: %q: %v", includePath, err)
		}

		nested := map[string]bool{includePath: true}
		for k := range seen {
			nested[k] = true
		}

		out.WriteString(fmt.Sprintf("// begin include %s\n", relPath))
		expanded, err := preprocess(contents, filepath.Dir(includePath), reader, nested)
		if err != nil {
			return "", err
		}
		out.WriteString(expanded)
		out.WriteString(fmt.Sprintf("\n// end include %s", relPath))
	}
	return out.String(), nil
}
