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

package runner

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/checkmk/agent-collectors/api/types"
	"github.com/checkmk/agent-collectors/lib/cache"
	"github.com/checkmk/agent-collectors/lib/catalog"
	"github.com/checkmk/agent-collectors/lib/dbrow"
	"github.com/checkmk/agent-collectors/lib/section"
)

// oracleHandlers is the Oracle-engine counterpart to the package-level
// MSSQL handlers map: structurally identical dispatch, kept
// separate because Oracle's query catalog and per-database fan-out
// concept (PDBs rather than T-SQL databases) don't share the MSSQL
// single-instance model.
var (
	oracleHandlersMu sync.Mutex
	oracleHandlers   = map[string]Handler{}
)

func registerOracleHandler(name string, h Handler) {
	oracleHandlersMu.Lock()
	defer oracleHandlersMu.Unlock()
	oracleHandlers[name] = h
}

// LookupOracleHandler returns the handler registered for an Oracle
// section name, or the generic custom-query fallback.
func LookupOracleHandler(name string) Handler {
	oracleHandlersMu.Lock()
	h, ok := oracleHandlers[name]
	oracleHandlersMu.Unlock()
	if ok {
		return h
	}
	return customHandler
}

func init() {
	for _, id := range []catalog.QueryID{
		"Instance", "AsmInstance", "Sessions", "Performance", "IoStats",
		"Processes", "TsQuotas", "LogSwitches", "UndoStat", "RecoveryStatus",
		"Rman", "TableSpaces", "Resumable", "SystemParameter", "Locks",
		"LongActiveSessions", "DataGuardStats",
	} {
		registerOracleHandler(strings.ToLower(string(id)), oracleSimpleQueryHandler(id))
	}
}

// oracleSimpleQueryHandler runs a catalog.Oracle query and formats each
// result row by joining its columns with '|', the same row-wise
// convention as the MSSQL simpleQueryHandler.
func oracleSimpleQueryHandler(queryID catalog.QueryID) Handler {
	return func(rc *RunContext) (string, error) {
		text, err := catalog.Oracle.FindQuery(queryID, versionOf(rc), "", rc.Instance.Edition)
		if err != nil {
			return "", err
		}
		answers, err := rc.Client.Query(rc.Ctx, text)
		if err != nil {
			return "", err
		}
		var sb strings.Builder
		if len(answers) > 0 {
			for _, row := range answers[0].Rows {
				sb.WriteString(row.GetAllColumns("|"))
				sb.WriteString("\n")
			}
		}
		return sb.String(), nil
	}
}

// OracleTarget is one Oracle instance to probe, the mk-oracle
// counterpart to Target: instead of the MSSQL discovery/
// reconnect pipeline, each target's DSN is built directly from the
// configured host/port/service. TNS aliases, TNS_ADMIN and ORACLE_HOME
// are not used.
type OracleTarget struct {
	Instance       types.SqlInstance
	DSN            string
	Timeout        time.Duration
	Sections       []types.Section
	CachingEnabled bool
}

// oracleName renders the "ORACLE_<NAME>" prefix used by Oracle section
// output, the Oracle analogue of SqlInstance.MssqlName.
func oracleName(name types.InstanceName) string {
	return "ORACLE_" + string(name)
}

// RunOracle is the Oracle engine's counterpart to Run: the same
// bounded-concurrency top-level fan-out, but dispatching through
// the Oracle handler table and query catalog instead of the MSSQL ones.
func RunOracle(ctx context.Context, opts Options, userDir, cacheRoot, configHash string, log logrus.FieldLogger, targets []OracleTarget) string {
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
			body := runOneOracle(ctx, userDir, cacheRoot, configHash, log, target)
			mu.Lock()
			out.WriteString(body)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return out.String()
}

func runOneOracle(ctx context.Context, userDir, cacheRoot, configHash string, log logrus.FieldLogger, target OracleTarget) string {
	inst := target.Instance
	var out bytes.Buffer

	out.WriteString(inst.GenerateHeader())

	client, err := dbrow.OpenOracle(target.DSN, target.Timeout)
	if err != nil {
		out.WriteString(section.InstanceHeader(types.Name(oracleName(inst.Name))))
		out.WriteString(strings.Join([]string{oracleName(inst.Name), "state", "0", err.Error()}, "|") + "\n")
		out.WriteString(inst.GenerateFooter())
		return out.String()
	}
	defer client.Close()

	rc := &RunContext{Ctx: ctx, Client: client, Instance: inst, Catalog: catalog.Oracle, UserDir: userDir, Log: log}

	c := cache.New(cacheRoot, configHash, log)
	for _, s := range target.Sections {
		if s.Kind == types.SectionDisabled {
			continue
		}
		s = section.ResolveForCache(s, target.CachingEnabled)
		rc.Section = s
		out.WriteString(generateOracleSection(rc, c))
	}

	out.WriteString(inst.GenerateFooter())
	return out.String()
}

// generateOracleSection mirrors generateSection but looks
// handlers up in the Oracle dispatch table.
func generateOracleSection(rc *RunContext, c *cache.Cache) string {
	name := cache.EntryName(rc.Instance.PiggybackHost, rc.Instance.Name.String(), string(rc.Section.Name))
	if rc.Section.CacheAge > 0 {
		if body := c.Read(name, rc.Section.CacheAge); body != nil {
			return section.ToWorkHeader(rc.Section) + *body
		}
	}

	handler := LookupOracleHandler(strings.ToLower(string(rc.Section.Name)))
	body, err := handler(rc)
	if err != nil {
		body = fmt.Sprintf("%s|0|%s\n", rc.Instance.Name, err.Error())
	}

	if rc.Section.Kind == types.SectionAsync {
		c.Write(name, body)
	}

	return section.ToWorkHeader(rc.Section) + body
}
