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
// Package config holds the resolved compiler invocation options: cobra
// flags layered over an optional vylc.yaml/vylc.toml file read through
// viper, flags taking precedence over file values, file over defaults.
package config

import (
	"strings"

	"github.com/spf13/viper"
)

// Options is the fully resolved set of knobs one compiler invocation
// runs with.
type Options struct {
	Input        string
	Output       string
	AssemblyOnly bool
	Target       string // "elf", "mach", "pe"
	IncludePaths []string
	Verbose      bool
}

// Load reads configFile (if non-empty) through viper, then overlays any
// explicitly-set cobra flag values passed in opts, returning the merged
// Options. opts is treated as the flag layer: a zero value in a field
// means "not set on the command line", so the config file's value (or
// the built-in default) is used instead.
func Load(configFile string, opts Options) (Options, error) {
	v := viper.New()
	v.SetEnvPrefix("VYLC")
	v.AutomaticEnv()
	v.SetDefault("target", "elf")
	v.SetDefault("assembly_only", false)
	v.SetDefault("verbose", false)

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return Options{}, err
		}
	}

	resolved := Options{
		Input:        opts.Input,
		Output:       firstNonEmpty(opts.Output, v.GetString("output")),
		AssemblyOnly: opts.AssemblyOnly || v.GetBool("assembly_only"),
		Target:       firstNonEmpty(opts.Target, v.GetString("target")),
		IncludePaths: mergeUnique(opts.IncludePaths, v.GetStringSlice("include_paths")),
		Verbose:      opts.Verbose || v.GetBool("verbose"),
	}
	if resolved.Target == "" {
		resolved.Target = "elf"
	}
	return resolved, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func mergeUnique(lists ...[]string) []string {
	seen := map[string]bool{}
	var out []string
	for _, list := range lists {
		for _, v := range list {
			if v == "" || seen[v] {
				continue
			}
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}

// OutputPath returns the executable path Output defaults to when unset:
// the input's stem with a .vylo extension.
func (o Options) OutputPath() string {
	if o.Output != "" {
		return o.Output
	}
	stem := o.Input
	if idx := strings.LastIndexByte(stem, '.'); idx >= 0 {
		stem = stem[:idx]
	}
	return stem + ".vylo"
}

// AssemblyPath returns the path the -S flag writes assembly text to: the
// output path with its extension replaced by .s.
func (o Options) AssemblyPath() string {
	out := o.OutputPath()
	if idx := strings.LastIndexByte(out, '.'); idx >= 0 {
		out = out[:idx]
	}
	return out + ".s"
}
