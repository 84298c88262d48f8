// Copyright 2018 The gVisor Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package klog is the host-side logging surface every component outside
// pkg/kernel's hot path uses: cmd/kbuild, cmd/ksim, and pkg/supervisor
// all log the same leveled, printf-style way, backed by logrus.
package klog

import "github.com/sirupsen/logrus"

// Logger is a leveled, printf-style logger. It is satisfied by
// *logrus.Logger and also implements pkg/kernel.Logger (a strict subset
// of this interface), so the same value can be handed to both the
// kernel core and the host tooling around it.
type Logger interface {
	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Warningf(format string, args ...any)
	Errorf(format string, args ...any)
}

// logrusLogger adapts *logrus.Logger to Logger; logrus's own *Entry
// already has Debugf/Infof/Warningf but spells the error level
// "Errorf" the same way, so the only reason for this wrapper is to give
// the package its own named type for callers to depend on instead of
// logrus directly.
type logrusLogger struct {
	*logrus.Logger
}

// New returns a Logger backed by a fresh *logrus.Logger configured with
// a text formatter and the given level, for plain one-line-per-event CLI
// output.
func New(level logrus.Level) Logger {
	l := logrus.New()
	l.SetLevel(level)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return logrusLogger{l}
}

// Discard returns a Logger that drops everything, for tests that don't
// want log noise but still need to satisfy the interface.
func Discard() Logger {
	l := logrus.New()
	l.SetOutput(discardWriter{})
	return logrusLogger{l}
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }
