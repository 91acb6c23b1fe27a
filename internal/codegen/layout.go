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
	"fmt"

	"github.com/vyl-lang/vylc/internal/sema"
)

const wordSize = 8

// StructLayout records where each field lives relative to the struct's
// allocated cell: one 8-byte word per field, in declaration order.
type StructLayout struct {
	Name        string
	FieldOrder  []string
	FieldOffset map[string]int
	Size        int
}

func (l *StructLayout) OffsetOf(field string) (int, bool) {
	off, ok := l.FieldOffset[field]
	return off, ok
}

// ComputeLayouts lays out every struct in prog in declaration order.
func ComputeLayouts(prog *sema.Program) map[string]*StructLayout {
	layouts := make(map[string]*StructLayout, len(prog.Structs))
	for name, sd := range prog.Structs {
		l := &StructLayout{Name: name, FieldOffset: map[string]int{}}
		for i, f := range sd.Fields {
			l.FieldOrder = append(l.FieldOrder, f.Name)
			l.FieldOffset[f.Name] = i * wordSize
		}
		l.Size = len(sd.Fields) * wordSize
		if l.Size == 0 {
			l.Size = wordSize
		}
		layouts[name] = l
	}
	return layouts
}

// MangleMethod produces the public label for a struct method.
func MangleMethod(structName, method string) string {
	return fmt.Sprintf("%s_%s", structName, method)
}
