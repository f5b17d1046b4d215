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

package config

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/checkmk/agent-collectors/lib/discovery"
	"github.com/checkmk/agent-collectors/lib/runner"
)

// BuildTargets runs the full discovery pipeline (seed, customize,
// decide-reconnects, reconnect) and pairs every resulting instance
// with this configuration's section list, producing the Target slice
// runner.Run consumes. This is the one place the config and discovery
// packages meet; neither depends on the other directly — they're
// wired together only at the command layer.
func (c *SQLConfig) BuildTargets(ctx context.Context, log logrus.FieldLogger) []runner.Target {
	seeds := discovery.Seed(ctx, c.MainEndpoint, c.Discovery, log)
	seeds = discovery.Customize(seeds, c.Instances)
	seeds = discovery.DecideReconnects(seeds, c.Instances)

	reconciler := &discovery.Reconciler{Log: log}
	instances := reconciler.ReconnectPass(ctx, seeds)

	targets := make([]runner.Target, 0, len(instances))
	for _, inst := range instances {
		targets = append(targets, runner.Target{
			Instance:       inst,
			Sections:       c.Sections,
			CachingEnabled: c.CachingEnabled,
		})
	}
	return targets
}
