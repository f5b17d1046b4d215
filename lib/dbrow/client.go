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

package dbrow

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/gravitational/trace"

	"github.com/checkmk/agent-collectors/api/types"
)

// Client is a thin wrapper around *sql.DB that runs a query and returns
// its rows through the Row/Answer abstraction in row.go, regardless of which
// driver backs it.
type Client struct {
	db      *sql.DB
	backend types.Backend
}

// Open opens a database connection for ep, selecting the native TCP
// driver or the local ODBC driver per ep.Connection.Backend.
func Open(ep types.Endpoint) (*Client, error) {
	backend := ep.Connection.Backend
	if backend == types.BackendAuto {
		backend = types.BackendTcp
	}

	var driverName, dsn string
	switch backend {
	case types.BackendTcp:
		driverName, dsn = "sqlserver", tcpDSN(ep)
	case types.BackendOdbc:
		driverName, dsn = "odbc", odbcDSN(ep)
	default:
		return nil, trace.BadParameter("unsupported backend %v", backend)
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, trace.Wrap(err, "opening %v connection", backend)
	}
	if ep.Connection.Timeout > 0 {
		ctx, cancel := context.WithTimeout(context.Background(), ep.Connection.Timeout)
		defer cancel()
		if err := db.PingContext(ctx); err != nil {
			db.Close()
			return nil, trace.ConnectionProblem(err, "connecting to %v", ep.Connection.Hostname)
		}
	}
	return &Client{db: db, backend: backend}, nil
}

// OpenOracle opens a connection to an Oracle instance using the pure-Go
// driver (go-ora), addressed by TNS-style host/port/service rather than
// the MSSQL Endpoint's named-instance model.
func OpenOracle(dsn string, timeout time.Duration) (*Client, error) {
	db, err := sql.Open("oracle", dsn)
	if err != nil {
		return nil, trace.Wrap(err, "opening oracle connection")
	}
	if timeout > 0 {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := db.PingContext(ctx); err != nil {
			db.Close()
			return nil, trace.ConnectionProblem(err, "connecting to oracle")
		}
	}
	return &Client{db: db, backend: types.BackendTcp}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	return c.db.Close()
}

// Query runs sql and returns its result as a list of Answers, one per
// statement in a multi-statement batch. Most drivers used here
// only ever return a single statement's rows through database/sql, so
// in practice len(result) == 1 unless NextResultSet finds more.
func (c *Client) Query(ctx context.Context, sqlText string) ([]Answer, error) {
	rows, err := c.db.QueryContext(ctx, sqlText)
	if err != nil {
		return nil, trace.Wrap(err, "query failed")
	}
	defer rows.Close()

	var answers []Answer
	for {
		answer, err := scanAnswer(rows)
		if err != nil {
			return nil, trace.Wrap(err)
		}
		answers = append(answers, answer)
		if !rows.NextResultSet() {
			break
		}
	}
	if err := rows.Err(); err != nil {
		return nil, trace.Wrap(err)
	}
	return answers, nil
}

func scanAnswer(rows *sql.Rows) (Answer, error) {
	columns, err := rows.Columns()
	if err != nil {
		return Answer{}, trace.Wrap(err)
	}

	var answer Answer
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return Answer{}, trace.Wrap(err)
		}
		answer.Rows = append(answer.Rows, NewRow(columns, values))
	}
	return answer, nil
}

func tcpDSN(ep types.Endpoint) string {
	c := ep.Connection
	a := ep.Authentication
	dsn := fmt.Sprintf("server=%s;port=%d", c.Hostname, c.EffectivePort())
	if c.FailOverPartner != "" {
		dsn += fmt.Sprintf(";failover partner=%s", c.FailOverPartner)
	}
	switch a.Kind {
	case types.AuthSqlServer:
		dsn += fmt.Sprintf(";user id=%s;password=%s", a.User, a.Password)
	case types.AuthWindows, types.AuthIntegrated:
		dsn += ";integrated security=sspi"
	}
	if c.TrustServerCertificate {
		dsn += ";TrustServerCertificate=true"
	}
	if c.Timeout > 0 {
		dsn += fmt.Sprintf(";dial timeout=%d", int(c.Timeout.Seconds()))
	}
	return dsn
}

func odbcDSN(ep types.Endpoint) string {
	c := ep.Connection
	if c.SocketPath != "" {
		return fmt.Sprintf("driver=sql server;server=%s", c.SocketPath)
	}
	return fmt.Sprintf("driver=sql server;server=%s,%d", c.Hostname, c.EffectivePort())
}
