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
// Package vylog wraps logrus with the one constructor the CLI driver
// needs. Library packages (lexer, parser, sema, codegen, ...) never log;
// they return diag.Error values and let cmd/vylc decide how to surface
// them.
package vylog

import (
	"os"

	"github.com/sirupsen/logrus"

	"github.com/vyl-lang/vylc/internal/diag"
)

// New builds a logger that writes to stderr, at debug level when verbose
// is set and info level otherwise.
func New(verbose bool) *logrus.Logger {
	log := logrus.New()
	log.Out = os.Stderr
	log.Formatter = &logrus.TextFormatter{FullTimestamp: true}
	if verbose {
		log.SetLevel(logrus.DebugLevel)
	} else {
		log.SetLevel(logrus.InfoLevel)
	}
	return log
}

// Phase logs entry into a compilation phase at debug level.
func Phase(log *logrus.Logger, phase string) {
	log.WithFields(logrus.Fields{"phase": phase}).Debug("entering phase")
}

// Error logs a classified compiler error at error level, with its Kind
// and source position (when meaningful) attached as fields.
func Error(log *logrus.Logger, err error) {
	var derr *diag.Error
	if e, ok := err.(*diag.Error); ok {
		derr = e
	}
	if derr == nil {
		log.WithError(err).Error("compilation failed")
		return
	}
	fields := logrus.Fields{"phase": derr.Kind.String()}
	if derr.Line > 0 {
		fields["line"] = derr.Line
		fields["column"] = derr.Column
	}
	log.WithFields(fields).Error(derr.Message)
}
