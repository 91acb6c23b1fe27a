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
package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/vyl-lang/vylc/internal/compiler"
	"github.com/vyl-lang/vylc/internal/config"
	"github.com/vyl-lang/vylc/internal/vylog"
)

// ErrUnsupported is returned by the -k/--keystone flat-binary assembly
// path, the documented external-collaborator seam: assembling AT&T text
// into a flat machine-code binary requires an external assembler
// library (Keystone in the source implementation this compiler is
// grounded on) that this module does not vendor.
var ErrUnsupported = errors.New("vylc: flat-binary assembly via an external assembler is not implemented; pipe the -S output to your own assembler")

// osFileReader reads include targets straight off disk.
type osFileReader struct{}

func (osFileReader) ReadFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

var (
	flagOutput       string
	flagAssemblyOnly bool
	flagCompileOnly  bool
	flagMach         bool
	flagPE           bool
	flagKeystone     bool
	flagVerbose      bool
	flagConfig       string
	flagIncludePaths []string
)

var rootCmd = &cobra.Command{
	Use:   "vylc source.vyl",
	Short: "vylc compiles a VYL program to AT&T x86-64 assembly",
	Args:  cobra.ExactArgs(1),
	RunE:  runCompile,
}

func init() {
	rootCmd.Flags().StringVarP(&flagOutput, "output", "o", "", "output path (default: input stem + .vylo)")
	rootCmd.Flags().BoolVarP(&flagCompileOnly, "compile", "c", false, "stop after emitting assembly, do not invoke an external assembler")
	rootCmd.Flags().BoolVarP(&flagAssemblyOnly, "assembly", "S", false, "write assembly text instead of invoking the external toolchain")
	rootCmd.Flags().BoolVar(&flagMach, "mach", false, "record target \"mach\" in the options; the emitted assembly is the same for every target")
	rootCmd.Flags().BoolVar(&flagPE, "pe", false, "record target \"pe\" in the options; the emitted assembly is the same for every target")
	rootCmd.Flags().BoolVarP(&flagKeystone, "keystone", "k", false, "assemble a flat binary via an external assembler library (unsupported, see ErrUnsupported)")
	rootCmd.Flags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug-level logging")
	rootCmd.Flags().StringVar(&flagConfig, "config", "", "path to a vylc.yaml/vylc.toml configuration file")
	rootCmd.Flags().StringSliceVarP(&flagIncludePaths, "include-path", "I", nil, "include directories to record in the options; include/import paths resolve only relative to the including file")
}

func targetFromFlags() string {
	switch {
	case flagMach:
		return "mach"
	case flagPE:
		return "pe"
	default:
		return "elf"
	}
}

func runCompile(cmd *cobra.Command, args []string) error {
	if flagKeystone {
		return ErrUnsupported
	}

	opts, err := config.Load(flagConfig, config.Options{
		Output:       flagOutput,
		AssemblyOnly: flagAssemblyOnly,
		Target:       targetFromFlags(),
		IncludePaths: flagIncludePaths,
		Verbose:      flagVerbose,
	})
	if err != nil {
		return err
	}
	opts.Input = args[0]

	log := vylog.New(opts.Verbose)
	vylog.Phase(log, "include")

	source, err := os.ReadFile(opts.Input)
	if err != nil {
		vylog.Error(log, err)
		return err
	}

	asm, err := compiler.Compile(string(source), filepath.Dir(opts.Input), osFileReader{})
	if err != nil {
		vylog.Error(log, err)
		return err
	}

	dest := opts.AssemblyPath()
	if !flagAssemblyOnly && !flagCompileOnly {
		dest = opts.OutputPath()
	}
	if err := os.WriteFile(dest, []byte(asm), 0o644); err != nil {
		vylog.Error(log, err)
		return err
	}

	log.Infof("wrote %s", dest)
	if !flagAssemblyOnly && !flagCompileOnly {
		log.Warn("invoking an external assembler/linker toolchain is out of scope; only the assembly text was written")
	}
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
