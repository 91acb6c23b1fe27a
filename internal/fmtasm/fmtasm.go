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
// Package fmtasm canonicalizes and validates the AT&T assembly text
// codegen.Generate produces. AT&T syntax isn't valid Go assembly, so the
// teacher's asmfmt-backed formatting step cannot run on it directly;
// this package is a hand-written formatter grounded on the same idea —
// deterministic, parse-validated textual output — applied as a pass
// after code generation rather than folded into it.
package fmtasm

import (
	"regexp"
	"sort"
	"strings"

	"github.com/vyl-lang/vylc/internal/diag"
)

var (
	labelDefPattern  = regexp.MustCompile(`^([A-Za-z_.][A-Za-z0-9_.$]*):\s*(.*)$`)
	globlPattern     = regexp.MustCompile(`^\s*\.globl\s+([A-Za-z_.][A-Za-z0-9_.$]*)\s*$`)
	labelRefPattern  = regexp.MustCompile(`\b([A-Za-z_.][A-Za-z0-9_.$]*)\s*\(%rip\)`)
	jumpCallPattern  = regexp.MustCompile(`^\s*(?:j[a-z]*|call)\s+([A-Za-z_.][A-Za-z0-9_.$]*)\s*$`)
	sectionPattern   = regexp.MustCompile(`^\s*\.(text|data|rodata)\s*$`)
	directivePrefix  = regexp.MustCompile(`^\s*\.`)
)

// Format canonicalizes whitespace (tabs before instruction mnemonics, a
// single trailing newline, no trailing horizontal whitespace) and runs
// the structural sanity check: every `name(%rip)` reference must resolve
// to a label defined somewhere in the text (alone on its line or followed
// by a data directive), and every `.globl` name must be defined exactly
// once. Jump and call targets are not checked.
func Format(asm string) (string, error) {
	lines := strings.Split(asm, "\n")

	definedLabels := map[string]int{}
	globls := map[string]bool{}
	var cleaned []string

	for _, raw := range lines {
		line := strings.TrimRight(raw, " \t")
		switch {
		case line == "":
			cleaned = append(cleaned, "")
			continue
		case sectionPattern.MatchString(line):
			cleaned = append(cleaned, strings.TrimSpace(line))
			continue
		case strings.HasPrefix(strings.TrimSpace(line), "//"):
			cleaned = append(cleaned, strings.TrimSpace(line))
			continue
		}

		if m := labelDefPattern.FindStringSubmatch(strings.TrimSpace(line)); m != nil {
			definedLabels[m[1]]++
			if m[2] != "" {
				cleaned = append(cleaned, m[1]+": "+m[2])
			} else {
				cleaned = append(cleaned, m[1]+":")
			}
			continue
		}
		if m := globlPattern.FindStringSubmatch(line); m != nil {
			globls[m[1]] = true
			cleaned = append(cleaned, ".globl "+m[1])
			continue
		}
		if directivePrefix.MatchString(line) {
			cleaned = append(cleaned, strings.TrimSpace(line))
			continue
		}

		cleaned = append(cleaned, "\t"+strings.TrimSpace(line))
	}

	for name := range globls {
		if definedLabels[name] == 0 {
			return "", diag.Unlocated(diag.Codegen, ".globl %q has no matching label definition", name)
		}
		if definedLabels[name] > 1 {
			return "", diag.Unlocated(diag.Codegen, "label %q is defined %d times", name, definedLabels[name])
		}
	}

	for _, line := range cleaned {
		m := labelRefPattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		if definedLabels[m[1]] == 0 {
			return "", diag.Unlocated(diag.Codegen, "%%rip-relative reference to undefined label %q", m[1])
		}
	}

	out := strings.Join(cleaned, "\n")
	if !strings.HasSuffix(out, "\n") {
		out += "\n"
	}
	return out, nil
}

// referencedLabels collects every rip-relative and branch/call target
// named in asm, sorted for deterministic iteration in tests.
func referencedLabels(asm string) []string {
	seen := map[string]bool{}
	for _, line := range strings.Split(asm, "\n") {
		if m := labelRefPattern.FindStringSubmatch(line); m != nil {
			seen[m[1]] = true
		}
		if m := jumpCallPattern.FindStringSubmatch(strings.TrimSpace(line)); m != nil {
			seen[m[1]] = true
		}
	}
	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
