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

// Command mk-sql is the Checkmk MSSQL agent plugin: it discovers local
// and configured SQL Server instances, runs the configured section
// queries against each, and writes the combined Checkmk section output
// to stdout. Its CLI surface is a kingpin.App with a handful of global
// flags, scaled down to this single-purpose binary.
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
	"github.com/checkmk/agent-collectors/lib/catalog"
	"github.com/checkmk/agent-collectors/lib/runner"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "mk-sql: "+err.Error())
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

	app := kingpin.New("mk-sql", "Checkmk agent plugin for Microsoft SQL Server")
	app.Flag("config", "Path to the mk-sql YAML configuration").Short('c').Required().StringVar(&configPath)
	app.Flag("cache-dir", "Root directory for the async section cache").Default("/tmp/mk-sql-cache").StringVar(&cacheDir)
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
	log := logrus.WithField("component", "mk-sql")

	cfg, err := config.LoadSQLConfig(configPath)
	if err != nil {
		return trace.Wrap(err, "loading configuration")
	}
	normalized, err := cfg.Normalized()
	if err != nil {
		return trace.Wrap(err)
	}
	configHash := cache.ConfigHash(normalized)

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	targets := cfg.BuildTargets(ctx, log)
	if len(targets) == 0 {
		log.Warn("no SQL Server instances discovered")
	}

	output := runner.Run(ctx, runner.Options{MaxConnections: cfg.MaxConnections}, catalog.MSSQL, cfg.UserSQLDir, cacheDir, configHash, log, targets)
	fmt.Print(output)
	return nil
}
