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

// Package runner implements the per-instance, per-section state
// machine. Section handlers register themselves by name: each
// section's init() in this package calls RegisterHandler instead of
// switching on section name by hand.
package runner

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/checkmk/agent-collectors/api/types"
	"github.com/checkmk/agent-collectors/lib/cache"
	"github.com/checkmk/agent-collectors/lib/catalog"
	"github.com/checkmk/agent-collectors/lib/dbrow"
	"github.com/checkmk/agent-collectors/lib/section"
)

// RunContext carries everything a section handler needs: the open
// client, the target instance, the section being rendered, and the
// shared per-instance database list.
type RunContext struct {
	Ctx       context.Context
	Client    *dbrow.Client
	Instance  types.SqlInstance
	Section   types.Section
	Catalog   catalog.Catalog
	UserDir   string
	Databases []string
	Log       logrus.FieldLogger
}

// Handler produces a section's body (without the header line).
type Handler func(rc *RunContext) (string, error)

var (
	handlersMu sync.Mutex
	handlers   = map[types.Name]Handler{}
	// perDatabase marks section names whose handler needs the shared
	// database list fetched ahead of time.
	perDatabase = map[types.Name]bool{}
)

// RegisterHandler binds name to h. Like common.RegisterEngine, calling
// it twice for the same name is a programming error and panics.
func RegisterHandler(name types.Name, needsDatabases bool, h Handler) {
	handlersMu.Lock()
	defer handlersMu.Unlock()
	if _, exists := handlers[name]; exists {
		panic(fmt.Sprintf("runner: handler %q already registered", name))
	}
	handlers[name] = h
	perDatabase[name] = needsDatabases
}

func lookupHandler(name types.Name, userDir string) (Handler, bool) {
	handlersMu.Lock()
	h, ok := handlers[name]
	handlersMu.Unlock()
	if ok {
		return h, true
	}
	return customHandler, true
}

func needsDatabaseList(name types.Name) bool {
	handlersMu.Lock()
	defer handlersMu.Unlock()
	return perDatabase[name]
}

// Options configures the top-level fan-out.
type Options struct {
	MaxConnections int
}

// Target is one instance to probe together with its section list and
// cache policy, already resolved by discovery and configuration
// loading.
type Target struct {
	Instance       types.SqlInstance
	Sections       []types.Section
	CachingEnabled bool
}

// Run executes every target's section sequence as a bounded-concurrency
// task and returns the concatenated output in task-completion order:
// across instances, output order follows completion, not configuration
// order.
func Run(ctx context.Context, opts Options, cat catalog.Catalog, userDir string, cacheRoot, configHash string, log logrus.FieldLogger, targets []Target) string {
	if log == nil {
		log = logrus.StandardLogger()
	}
	maxConns := opts.MaxConnections
	if maxConns <= 0 {
		maxConns = 5
	}

	var mu sync.Mutex
	var out bytes.Buffer

	g := &errgroup.Group{}
	g.SetLimit(maxConns)
	for _, target := range targets {
		target := target
		g.Go(func() error {
			body := runOne(ctx, cat, userDir, cacheRoot, configHash, log, target)
			mu.Lock()
			out.WriteString(body)
			mu.Unlock()
			return nil
		})
	}
	// Handler and client errors are captured per-instance; g.Wait only ever reports a bug in that isolation.
	_ = g.Wait()

	return out.String()
}

func runOne(ctx context.Context, cat catalog.Catalog, userDir string, cacheRoot, configHash string, log logrus.FieldLogger, target Target) string {
	inst := target.Instance
	var out bytes.Buffer

	out.WriteString(inst.GenerateHeader())

	client, err := dbrow.Open(inst.Endpoint)
	if err != nil {
		emitInstanceError(&out, inst, err.Error())
		emitPiggybackEnd(&out, inst)
		return out.String()
	}
	defer client.Close()

	if mismatch := verifyInstanceName(ctx, client, inst); mismatch != "" {
		emitInstanceError(&out, inst, mismatch)
		emitPiggybackEnd(&out, inst)
		return out.String()
	}

	out.WriteString(section.InstanceHeader(types.Name(inst.MssqlName())))
	out.WriteString(inst.GenerateLeadingEntry('|'))

	rc := &RunContext{Ctx: ctx, Client: client, Instance: inst, Catalog: cat, UserDir: userDir, Log: log}

	needDatabases := false
	for _, s := range target.Sections {
		if s.Kind != types.SectionDisabled && needsDatabaseList(s.Name) {
			needDatabases = true
			break
		}
	}
	if needDatabases {
		if dbs, err := fetchDatabaseNames(ctx, cat, client); err == nil {
			rc.Databases = dbs
		} else {
			log.WithError(err).Warnf("runner: failed to fetch database list for %s", inst.Name)
		}
	}

	c := cache.New(cacheRoot, configHash, log)
	for _, s := range target.Sections {
		if s.Kind == types.SectionDisabled {
			continue
		}
		s = section.ResolveForCache(s, target.CachingEnabled)
		rc.Section = s
		out.WriteString(generateSection(rc, c))
	}

	emitPiggybackEnd(&out, inst)
	return out.String()
}

func emitInstanceError(out *bytes.Buffer, inst types.SqlInstance, message string) {
	out.WriteString(section.InstanceHeader(types.Name(inst.MssqlName())))
	out.WriteString(inst.GenerateBadStateEntry('|', message))
}

func emitPiggybackEnd(out *bytes.Buffer, inst types.SqlInstance) {
	out.WriteString(inst.GenerateFooter())
}

func verifyInstanceName(ctx context.Context, client *dbrow.Client, inst types.SqlInstance) string {
	text, err := catalog.MSSQL.FindQuery("InstanceProperties", nil, "", inst.Edition)
	if err != nil {
		return err.Error()
	}
	answers, err := client.Query(ctx, text)
	if err != nil || len(answers) == 0 || len(answers[0].Rows) == 0 {
		return "could not verify instance identity"
	}
	reported := answers[0].Rows[0].GetValueByName("instance_name")
	if reported == "" {
		reported = "MSSQLSERVER"
	}
	if !types.NewInstanceName(reported).Equal(inst.Name) {
		return fmt.Sprintf("expected instance %q but connected to %q", inst.Name, reported)
	}
	return ""
}

func fetchDatabaseNames(ctx context.Context, cat catalog.Catalog, client *dbrow.Client) ([]string, error) {
	text, err := cat.FindQuery("DatabaseNames", nil, "", types.EditionNormal)
	if err != nil {
		return nil, err
	}
	answers, err := client.Query(ctx, text)
	if err != nil || len(answers) == 0 {
		return nil, err
	}
	names := make([]string, 0, len(answers[0].Rows))
	for _, row := range answers[0].Rows {
		names = append(names, row.GetValueByIndex(0))
	}
	return names, nil
}

// generateSection implements step 5: serve from cache when fresh,
// else run the handler and populate the cache for Async sections.
func generateSection(rc *RunContext, c *cache.Cache) string {
	name := cache.EntryName(rc.Instance.PiggybackHost, rc.Instance.Name.String(), string(rc.Section.Name))
	if rc.Section.CacheAge > 0 {
		if body := c.Read(name, rc.Section.CacheAge); body != nil {
			return section.ToWorkHeader(rc.Section) + *body
		}
	}

	handler, _ := lookupHandler(rc.Section.Name, rc.UserDir)
	body, err := handler(rc)
	if err != nil {
		body = fmt.Sprintf("%s|0|%s\n", rc.Instance.Name, err.Error())
	}

	if rc.Section.Kind == types.SectionAsync {
		c.Write(name, body)
	}

	return section.ToWorkHeader(rc.Section) + body
}

// sanitizeIdentifier applies the formatting invariant for
// identifier-like fields (database names, counter object/instance
// names): internal whitespace becomes '_'. Free-text fields such as
// error messages are left untouched.
func sanitizeIdentifier(s string) string {
	return strings.Join(strings.Fields(s), "_")
}
