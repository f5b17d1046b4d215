/*
Copyright 2023 Gravitational, Inc.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package logging is the ambient logging setup every cmd/ entrypoint
// shares: a single purpose-switched call that configures the standard
// logrus logger once at process start. Entrypoints derive their
// FieldLogger from that logger and pass it down to the packages.
package logging

import (
	"io"
	"os"

	"github.com/gravitational/trace"
	"github.com/sirupsen/logrus"
)

// Purpose distinguishes a one-shot CLI run (logs to stderr only at debug
// level, discarded otherwise) from a long-lived daemon-style process
// (always logs to stderr).
type Purpose int

const (
	ForCLI Purpose = iota
	ForDaemon
)

// Init configures the global logrus logger. Checkmk agent plugins emit
// their section output on stdout; logging must never share that
// stream, so every purpose here writes to stderr (or is discarded).
func Init(purpose Purpose, level logrus.Level) {
	logrus.StandardLogger().ReplaceHooks(make(logrus.LevelHooks))
	logrus.SetLevel(level)
	formatter := &logrus.TextFormatter{
		FullTimestamp:   true,
		DisableColors:   !trace.IsTerminal(os.Stderr),
		TimestampFormat: "2006-01-02 15:04:05",
	}
	logrus.SetFormatter(formatter)

	switch purpose {
	case ForCLI:
		if level == logrus.DebugLevel {
			logrus.SetOutput(os.Stderr)
		} else {
			logrus.SetOutput(io.Discard)
		}
	case ForDaemon:
		logrus.SetOutput(os.Stderr)
	}
}

// LevelFromEnv maps the cumulative -v flag count to a level: 0 (or
// less) is Warn, 1 is Info, 2 is Debug, 3 or more is Trace. It reads
// no environment variable.
func LevelFromEnv(verbosity int) logrus.Level {
	switch {
	case verbosity <= 0:
		return logrus.WarnLevel
	case verbosity == 1:
		return logrus.InfoLevel
	case verbosity == 2:
		return logrus.DebugLevel
	default:
		return logrus.TraceLevel
	}
}
