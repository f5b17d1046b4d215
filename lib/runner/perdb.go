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
	"strings"
	"sync"

	"github.com/checkmk/agent-collectors/api/types"
	"github.com/checkmk/agent-collectors/lib/catalog"
)

func init() {
	RegisterHandler("table_spaces", true, perDatabaseHandler("TableSpaces"))
	RegisterHandler("transaction_logs", true, perDatabaseHandler("TransactionLogs"))
	RegisterHandler("datafiles", true, perDatabaseHandler("Datafiles"))
	RegisterHandler("clusters", true, perDatabaseHandler("ClusterNodes"))
	RegisterHandler("backup", true, backupHandler)
}

// threadCount implements the local-instance chunking rule: on a
// local connection with many databases, the fan-out is split across a
// handful of worker goroutines each owning a contiguous chunk rather
// than literally spinning OS threads — Go's goroutines already
// multiplex onto the runtime's OS threads, so "threads" here means
// "independent concurrent workers".
func threadCount(numDatabases int, isLocal bool) int {
	if !isLocal {
		return 1
	}
	switch {
	case numDatabases >= 64:
		return 4
	case numDatabases >= 8:
		return 2
	default:
		return 1
	}
}

// chunk splits dbs into n contiguous, near-equal pieces, honoring the
// minimum chunk sizes (16 for 4 threads, 4 for 2 threads) by falling
// back to fewer, larger chunks when the list is too short.
func chunk(dbs []string, n int) [][]string {
	if n <= 1 || len(dbs) == 0 {
		return [][]string{dbs}
	}
	minChunk := 1
	switch n {
	case 4:
		minChunk = 16
	case 2:
		minChunk = 4
	}
	if len(dbs)/n < minChunk {
		n = len(dbs) / minChunk
		if n < 1 {
			n = 1
		}
	}
	out := make([][]string, 0, n)
	size := (len(dbs) + n - 1) / n
	for i := 0; i < len(dbs); i += size {
		end := i + size
		if end > len(dbs) {
			end = len(dbs)
		}
		out = append(out, dbs[i:end])
	}
	return out
}

// perDatabaseHandler runs queryID once per database in rc.Databases,
// fanned out across threadCount(len(rc.Databases), isLocal) concurrent
// workers, and concatenates the per-database row output in chunk order.
func perDatabaseHandler(queryID catalog.QueryID) Handler {
	return func(rc *RunContext) (string, error) {
		text, err := rc.Catalog.FindQuery(queryID, versionOf(rc), "", rc.Instance.Edition)
		if err != nil {
			return "", err
		}

		isLocal := rc.Instance.Endpoint.Connection.IsLocal(rc.Instance.Endpoint.Authentication)
		chunks := chunk(rc.Databases, threadCount(len(rc.Databases), isLocal))

		results := make([]string, len(chunks))
		var wg sync.WaitGroup
		for i, dbs := range chunks {
			i, dbs := i, dbs
			wg.Add(1)
			go func() {
				defer wg.Done()
				results[i] = runPerDatabaseChunk(rc, text, dbs)
			}()
		}
		wg.Wait()

		return strings.Join(results, ""), nil
	}
}

func runPerDatabaseChunk(rc *RunContext, text string, dbs []string) string {
	var sb strings.Builder
	for _, db := range dbs {
		answers, err := rc.Client.Query(rc.Ctx, "USE ["+db+"]; "+text)
		if err != nil {
			continue
		}
		if len(answers) == 0 {
			continue
		}
		for _, row := range answers[0].Rows {
			sb.WriteString(row.GetAllColumns("|"))
			sb.WriteString("\n")
		}
	}
	return sb.String()
}

// backupHandler implements backup section: one query, then a
// synthetic "no backup found" row for every configured database that
// the query didn't cover. Database matching is case-insensitive.
func backupHandler(rc *RunContext) (string, error) {
	if rc.Instance.Edition == types.EditionAzure {
		return "", nil
	}

	text, err := rc.Catalog.FindQuery("Backup", versionOf(rc), "", rc.Instance.Edition)
	if err != nil {
		return "", err
	}
	answers, err := rc.Client.Query(rc.Ctx, text)
	if err != nil {
		return "", err
	}

	seen := make(map[string]bool, len(rc.Databases))
	var sb strings.Builder
	if len(answers) > 0 {
		for _, row := range answers[0].Rows {
			name := row.GetValueByName("database_name")
			seen[strings.ToUpper(name)] = true
			sb.WriteString(row.GetAllColumns("|"))
			sb.WriteString("\n")
		}
	}
	for _, db := range rc.Databases {
		if seen[strings.ToUpper(db)] {
			continue
		}
		sb.WriteString(db)
		sb.WriteString("|-|-|-|no backup found\n")
	}
	return sb.String(), nil
}
