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

// Command mk-oracle is the Checkmk Oracle agent plugin: it connects to
// every configured Oracle instance, runs the configured section
// queries, and writes the combined Checkmk section output to stdout.
// Structurally identical to cmd/mk-sql, scaled down to the Oracle
// engine's simpler target list: one target per configured instance,
// addressed by hostname/port/service. TNS_ADMIN and ORACLE_HOME are not
// read.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/gravitational/kingpin"
	"github.com/gravitational/trace"
	"github.com/sirupsen/logrus"

	"github.com/checkmk/agent-collectors/internal/config"
	"github.com/checkmk/agent-collectors/internal/logging"
	"github.com/checkmk/agent-collectors/lib/cache"
	"github.com/checkmk/agent-collectors/lib/runner"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "mk-oracle: "+err.Error())
		os.Exit(1)
	}
}

func run(args []string) error {
	var (
		configPath string
		cacheDir   string
		debug      bool
		timeout    time.Duration
	)

	app := kingpin.New("mk-oracle", "Checkmk agent plugin for Oracle")
	app.Flag("config", "Path to the mk-oracle YAML configuration").Short('c').Required().StringVar(&configPath)
	app.Flag("cache-dir", "Root directory for the async section cache").Default("/tmp/mk-oracle-cache").StringVar(&cacheDir)
	app.Flag("debug", "Enable verbose logging to stderr").Short('d').BoolVar(&debug)
	app.Flag("timeout", "Overall run timeout").Default("55s").DurationVar(&timeout)

	if _, err := app.Parse(args); err != nil {
		return trace.Wrap(err)
	}

	verbosity := 0
	if debug {
		verbosity = 2
	}
	logging.Init(logging.ForCLI, logging.LevelFromEnv(verbosity))
	log := logrus.WithField("component", "mk-oracle")

	raw, err := os.ReadFile(configPath)
	if err != nil {
		return trace.Wrap(err, "reading configuration")
	}
	cfg, err := config.ParseOracleConfig(raw)
	if err != nil {
		return trace.Wrap(err, "loading configuration")
	}
	configHash := cache.ConfigHash(raw)

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	output := runner.RunOracle(ctx, runner.Options{MaxConnections: cfg.MaxConnections}, cfg.UserSQLDir, cacheDir, configHash, log, cfg.Targets)
	fmt.Print(output)
	return nil
}
