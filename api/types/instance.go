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

package types

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// InstanceName is a non-empty, upper-cased identifier such as
// MSSQLSERVER or SQLEXPRESS_NAME.
type InstanceName string

// NewInstanceName case-folds the given name to its canonical upper form.
func NewInstanceName(s string) InstanceName {
	return InstanceName(strings.ToUpper(strings.TrimSpace(s)))
}

func (n InstanceName) String() string { return string(n) }

// Equal compares two instance names case-insensitively, as required by
// discovery's reconciliation tie-breaks.
func (n InstanceName) Equal(other InstanceName) bool {
	return strings.EqualFold(string(n), string(other))
}

// InstanceId is the longer edition-version-qualified form, e.g.
// "MSSQL10_50.SQLEXPRESS_NAME".
type InstanceId string

// Version is a parsed (major, minor, build) engine version tuple.
type Version struct {
	Major int
	Minor int
	Build int
}

// Less reports whether v is strictly below other, used by the query
// catalog's version-floor resolution rule.
func (v Version) Less(other Version) bool {
	if v.Major != other.Major {
		return v.Major < other.Major
	}
	if v.Minor != other.Minor {
		return v.Minor < other.Minor
	}
	return v.Build < other.Build
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Build)
}

// Edition is a coarse server-class tag used to specialize queries.
type Edition string

const (
	EditionNormal Edition = "Normal"
	EditionAzure  Edition = "Azure"
)

// Backend selects which underlying driver an Endpoint is opened with.
type Backend int

const (
	BackendAuto Backend = iota
	BackendTcp
	BackendOdbc
)

// AuthKind enumerates the supported Authentication variants.
type AuthKind int

const (
	AuthUndefined AuthKind = iota
	AuthSqlServer
	AuthWindows
	AuthIntegrated
	AuthToken
)

// Authentication carries the credential material for an Endpoint.
type Authentication struct {
	Kind     AuthKind
	User     string
	Password string
	// AccessToken is only meaningful for AuthSqlServer.
	AccessToken string
}

// Connection carries the network/TLS parameters for an Endpoint.
type Connection struct {
	// Hostname is always lower-cased.
	Hostname string
	// FailOverPartner is an optional AlwaysOn/mirroring partner host.
	FailOverPartner string
	// Port defaults to 1433 when zero.
	Port uint16
	// SocketPath is set for local, non-TCP connections.
	SocketPath string
	// TLSCaCert is optional caller-supplied trust material.
	TLSCaCert []byte
	TrustServerCertificate bool
	Timeout                time.Duration
	Backend                Backend
	ExcludedDatabases      []string
}

// EffectivePort returns Port, defaulting to 1433.
func (c Connection) EffectivePort() uint16 {
	if c.Port == 0 {
		return 1433
	}
	return c.Port
}

// IsLocal reports whether this connection should be treated as local for
// TLS-defaulting purposes: only literal localhost /
// 127.0.0.1 hostnames, or Integrated authentication, count.
func (c Connection) IsLocal(auth Authentication) bool {
	if auth.Kind == AuthIntegrated {
		return true
	}
	h := strings.ToLower(c.Hostname)
	return h == "localhost" || h == "127.0.0.1"
}

// Endpoint is the combined authentication + connection parameters for a
// single database target.
type Endpoint struct {
	Authentication Authentication
	Connection     Connection
}

// SqlInstance is the runtime object for a single discovered instance; it
// lives for exactly one run and is consumed once by the section runner.
type SqlInstance struct {
	Name         InstanceName
	ID           InstanceId
	Edition      Edition
	Version      Version
	ClusterName  string
	StaticPort   uint16
	DynamicPort  uint16
	Endpoint     Endpoint
	ComputerName string
	// Alias is the alias a custom-instance configuration supplies. It is
	// carried along only; section output and cache-entry names use Name.
	Alias         string
	PiggybackHost string
	// Tcp is false only when the instance is local and the registry
	// reports it as pipe-only or odbc-only.
	Tcp bool
}

// EffectivePort returns the dynamic port if set, else the static one,
// else the endpoint's default.
func (s SqlInstance) EffectivePort() uint16 {
	if s.DynamicPort != 0 {
		return s.DynamicPort
	}
	if s.StaticPort != 0 {
		return s.StaticPort
	}
	return s.Endpoint.Connection.EffectivePort()
}

// MssqlName renders the "MSSQL_<NAME>" prefix used by section output
//.
func (s SqlInstance) MssqlName() string {
	return "MSSQL_" + string(s.Name)
}

// GenerateGoodStateEntry renders the instance's control-state line for
// the success path: "MSSQL_<NAME><sep>state<sep>1<sep>\n". The trailing code is 1, not a Nagios-style severity — this line
// flags "instance reachable", independent of any section's own state.
func (s SqlInstance) GenerateGoodStateEntry(sep byte) string {
	return s.generateStateEntry(sep, 1, "")
}

// GenerateBadStateEntry renders the instance's control-state line for
// the failure path: "MSSQL_<NAME><sep>state<sep>0<sep><message>\n".
func (s SqlInstance) GenerateBadStateEntry(sep byte, message string) string {
	return s.generateStateEntry(sep, 0, message)
}

func (s SqlInstance) generateStateEntry(sep byte, code int, message string) string {
	return strings.Join([]string{s.MssqlName(), "state", strconv.Itoa(code), message}, string(sep)) + "\n"
}

// GenerateLeadingEntry renders the instance's "config" line:
// "MSSQL_<NAME><sep>config<sep><version><sep><edition><sep><cluster>\n"
//; cluster is the empty string when the instance isn't
// clustered.
func (s SqlInstance) GenerateLeadingEntry(sep byte) string {
	return strings.Join([]string{s.MssqlName(), "config", s.Version.String(), string(s.Edition), s.ClusterName}, string(sep)) + "\n"
}

// GenerateHeader renders the piggyback-begin marker for this instance,
// or the empty string when it has no piggyback host. The host name is
// always lower-cased.
func (s SqlInstance) GenerateHeader() string {
	if s.PiggybackHost == "" {
		return ""
	}
	return "<<<<" + strings.ToLower(s.PiggybackHost) + ">>>>\n"
}

// GenerateFooter renders the piggyback-end marker, or the empty string
// when this instance has no piggyback host.
func (s SqlInstance) GenerateFooter() string {
	if s.PiggybackHost == "" {
		return ""
	}
	return "<<<<>>>>\n"
}
