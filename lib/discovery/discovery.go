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

// Package discovery seeds the set of SQL Server instances to probe,
// folds in user customizations, and decides which seeds need a
// reconnect pass before they are handed to the section runner. The
// reconciliation loop matches by name with the latest write winning;
// endpoint resolution follows a fallback chain — try the cheap thing,
// fall back to the next cheapest, log and drop on total failure.
package discovery

import (
	"context"
	"strings"

	"github.com/gravitational/trace"
	"github.com/sirupsen/logrus"

	"github.com/checkmk/agent-collectors/api/types"
	"github.com/checkmk/agent-collectors/lib/catalog"
	"github.com/checkmk/agent-collectors/lib/dbrow"
)

// Policy is the discovery.{detect,include,exclude} configuration block.
type Policy struct {
	Detect  bool
	Include []string
	Exclude []string
}

// CustomInstance is one user-configured instance override.
type CustomInstance struct {
	Name          string
	Alias         string
	PiggybackHost string
	Endpoint      *types.Endpoint
}

// Builder accumulates what's known about one instance across the
// seed/customize/reconnect pipeline, before it becomes a SqlInstance
// the runner can open a client against.
type Builder struct {
	Name          types.InstanceName
	Alias         string
	PiggybackHost string
	Endpoint      types.Endpoint
	NeedsReconnect bool
	// ReconnectAt, if set, is the endpoint a customization asked us to
	// reconnect at instead of the seed's own endpoint.
	ReconnectAt *types.Endpoint
}

// localScanner abstracts platform-local registry scanning so that the
// windows-only implementation can be swapped in by build tag
// (discovery_windows.go) while every other platform gets
// discovery_other.go's "unsupported" stub.
var localScanner = scanLocalRegistry

// Seed implements step 1: build the initial instance list.
func Seed(ctx context.Context, mainEndpoint types.Endpoint, policy Policy, log logrus.FieldLogger) []Builder {
	if log == nil {
		log = logrus.StandardLogger()
	}

	if !policy.Detect {
		return includeOnly(policy.Include, mainEndpoint)
	}

	if seeds, err := probeRegistry(ctx, mainEndpoint); err == nil && len(seeds) > 0 {
		return filterIncludeExclude(seeds, policy)
	} else if err != nil {
		log.WithError(err).Debug("discovery: registry-probe query failed, falling back")
	}

	if seeds, err := localScanner(log); err == nil && len(seeds) > 0 {
		return filterIncludeExclude(seeds, policy)
	} else if err != nil {
		log.WithError(err).Debug("discovery: local registry scan failed, falling back")
	}

	single := singleInstanceFallback(mainEndpoint)
	return filterIncludeExclude([]Builder{single}, policy)
}

func includeOnly(include []string, mainEndpoint types.Endpoint) []Builder {
	seeds := make([]Builder, 0, len(include))
	for _, name := range include {
		seeds = append(seeds, Builder{
			Name:     types.NewInstanceName(name),
			Endpoint: mainEndpoint,
		})
	}
	return seeds
}

// singleInstanceFallback treats the main connection itself as the only
// instance, always named "MSSQLSERVER", the default instance name. If
// the server reports a different instance name, the runner's identity
// check emits an error line for it; the name is not corrected.
func singleInstanceFallback(mainEndpoint types.Endpoint) Builder {
	return Builder{
		Name:     types.NewInstanceName("MSSQLSERVER"),
		Endpoint: mainEndpoint,
	}
}

// probeRegistry opens mainEndpoint and runs the two registry-probe
// queries (64-bit and 32-bit registry views), combining their rows into
// seed builders.
func probeRegistry(ctx context.Context, mainEndpoint types.Endpoint) ([]Builder, error) {
	client, err := dbrow.Open(mainEndpoint)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	defer client.Close()

	var seeds []Builder
	for _, queryID := range []catalog.QueryID{"WinRegistryInstances", "Wow64_32RegistryInstances"} {
		text, err := catalog.MSSQL.FindQuery(queryID, nil, "", types.EditionNormal)
		if err != nil {
			continue
		}
		answers, err := client.Query(ctx, text)
		if err != nil {
			return nil, trace.Wrap(err)
		}
		for _, answer := range answers {
			for _, row := range answer.Rows {
				name := row.GetValueByName("instance_name")
				if name == "" {
					continue
				}
				seeds = append(seeds, Builder{
					Name:     types.NewInstanceName(name),
					Endpoint: mainEndpoint,
				})
			}
		}
	}
	if len(seeds) == 0 {
		return nil, trace.NotFound("no instances found via registry-probe query")
	}
	return seeds, nil
}

func filterIncludeExclude(seeds []Builder, policy Policy) []Builder {
	if len(policy.Include) == 0 && len(policy.Exclude) == 0 {
		return seeds
	}
	include := upperSet(policy.Include)
	exclude := upperSet(policy.Exclude)

	out := make([]Builder, 0, len(seeds))
	for _, s := range seeds {
		upper := strings.ToUpper(s.Name.String())
		if len(include) > 0 {
			if include[upper] {
				out = append(out, s)
			}
			continue
		}
		if !exclude[upper] {
			out = append(out, s)
		}
	}
	return out
}

func upperSet(names []string) map[string]bool {
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[strings.ToUpper(n)] = true
	}
	return set
}

// Customize implements step 2: overlay matching custom-instance
// fields onto each seed. Name matching is case-insensitive.
func Customize(seeds []Builder, customs []CustomInstance) []Builder {
	byName := make(map[string]CustomInstance, len(customs))
	for _, c := range customs {
		byName[strings.ToUpper(c.Name)] = c
	}

	out := make([]Builder, len(seeds))
	for i, s := range seeds {
		out[i] = s
		c, ok := byName[strings.ToUpper(s.Name.String())]
		if !ok {
			continue
		}
		if c.Alias != "" {
			out[i].Alias = c.Alias
		}
		if c.PiggybackHost != "" {
			out[i].PiggybackHost = c.PiggybackHost
		}
		if c.Endpoint != nil {
			out[i].ReconnectAt = c.Endpoint
		}
	}
	return out
}

// DecideReconnects implements step 3: mark builders whose
// customization endpoint differs from the seed's own, and emit a fresh
// builder (also marked) for any customization that matched no seed.
// Names are compared case-insensitively; when a custom instance appears
// more than once, the latest entry in customs wins.
func DecideReconnects(seeds []Builder, customs []CustomInstance) []Builder {
	latest := make(map[string]CustomInstance, len(customs))
	order := make([]string, 0, len(customs))
	for _, c := range customs {
		key := strings.ToUpper(c.Name)
		if _, seen := latest[key]; !seen {
			order = append(order, key)
		}
		latest[key] = c
	}

	matched := make(map[string]bool, len(seeds))
	out := make([]Builder, len(seeds))
	for i, s := range seeds {
		out[i] = s
		key := strings.ToUpper(s.Name.String())
		c, ok := latest[key]
		if !ok {
			continue
		}
		matched[key] = true
		if c.Endpoint != nil && !endpointsEqual(*c.Endpoint, s.Endpoint) {
			out[i].NeedsReconnect = true
			out[i].ReconnectAt = c.Endpoint
		}
	}

	for _, key := range order {
		if matched[key] {
			continue
		}
		c := latest[key]
		b := Builder{
			Name:           types.NewInstanceName(c.Name),
			Alias:          c.Alias,
			PiggybackHost:  c.PiggybackHost,
			NeedsReconnect: true,
		}
		if c.Endpoint != nil {
			b.Endpoint = *c.Endpoint
			b.ReconnectAt = c.Endpoint
		}
		out = append(out, b)
	}
	return out
}

func endpointsEqual(a, b types.Endpoint) bool {
	return strings.EqualFold(a.Connection.Hostname, b.Connection.Hostname) &&
		a.Connection.EffectivePort() == b.Connection.EffectivePort()
}

// Reconciler runs the reconnect pass: for each marked
// builder, try the three strategies in order and verify the reported
// instance name before accepting the result.
type Reconciler struct {
	Log logrus.FieldLogger
}

// ReconnectPass attempts to resolve every builder that needs a
// reconnect, dropping (and logging) any whose identity cannot be
// verified.
func (r *Reconciler) ReconnectPass(ctx context.Context, builders []Builder) []types.SqlInstance {
	log := r.Log
	if log == nil {
		log = logrus.StandardLogger()
	}

	out := make([]types.SqlInstance, 0, len(builders))
	for _, b := range builders {
		inst, ok := r.resolve(ctx, b, log)
		if !ok {
			continue
		}
		out = append(out, inst)
	}
	return out
}

func (r *Reconciler) resolve(ctx context.Context, b Builder, log logrus.FieldLogger) (types.SqlInstance, bool) {
	if !b.NeedsReconnect {
		return r.toInstance(b), true
	}

	endpoint := b.Endpoint
	if b.ReconnectAt != nil {
		endpoint = *b.ReconnectAt
	}

	// Strategy (a): open the custom endpoint directly.
	if verified, ok := r.verify(ctx, endpoint, b.Name); ok {
		b.Endpoint = endpoint
		return r.toInstance(b), true
	} else if verified != "" {
		log.Warnf("discovery: instance %s reconnected to a different identity %q, dropping", b.Name, verified)
		return types.SqlInstance{}, false
	}

	// Strategy (b): local, ODBC-only fallback.
	if endpoint.Connection.IsLocal(endpoint.Authentication) && endpoint.Connection.Backend != types.BackendOdbc {
		local := endpoint
		local.Connection.Backend = types.BackendOdbc
		if _, ok := r.verify(ctx, local, b.Name); ok {
			b.Endpoint = local
			return r.toInstance(b), true
		}
	}

	// Strategy (c): named-instance connect failed; re-run the registry
	// probe and retry with a seed of the same name. The probe reports
	// instance names only, so the retry uses the same endpoint; the
	// currently bound port is not detected.
	if rescanned, err := probeRegistry(ctx, endpoint); err == nil {
		for _, seed := range rescanned {
			if !seed.Name.Equal(b.Name) {
				continue
			}
			if _, ok := r.verify(ctx, seed.Endpoint, b.Name); ok {
				b.Endpoint = seed.Endpoint
				return r.toInstance(b), true
			}
		}
	}

	log.Warnf("discovery: could not reach or verify instance %s, skipping", b.Name)
	return types.SqlInstance{}, false
}

// verify opens endpoint and checks the reported instance name against
// expected. It returns the reported name (possibly empty) and whether
// the identity matches.
func (r *Reconciler) verify(ctx context.Context, endpoint types.Endpoint, expected types.InstanceName) (string, bool) {
	client, err := dbrow.Open(endpoint)
	if err != nil {
		return "", false
	}
	defer client.Close()

	text, err := catalog.MSSQL.FindQuery("InstanceProperties", nil, "", types.EditionNormal)
	if err != nil {
		return "", false
	}
	answers, err := client.Query(ctx, text)
	if err != nil || len(answers) == 0 || len(answers[0].Rows) == 0 {
		return "", false
	}
	reported := answers[0].Rows[0].GetValueByName("instance_name")
	if reported == "" {
		reported = "MSSQLSERVER"
	}
	return reported, types.NewInstanceName(reported).Equal(expected)
}

func (r *Reconciler) toInstance(b Builder) types.SqlInstance {
	return types.SqlInstance{
		Name:          b.Name,
		Endpoint:      b.Endpoint,
		PiggybackHost: b.PiggybackHost,
		Alias:         b.Alias,
	}
}
