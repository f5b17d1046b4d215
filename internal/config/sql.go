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

// Package config decodes the YAML configuration documents consumed by
// the mk-sql, mk-oracle, and cmk-agent-ctl entrypoints into the typed
// records the rest of the tree consumes, and assembles the per-run
// target list that lib/runner executes. YAML parsing itself is an
// external collaborator; this package is the glue between the decoded
// document and those typed records: one YAML struct tree per daemon,
// a Load that opens+decodes+validates.
package config

import (
	"os"
	"strings"
	"time"

	"github.com/gravitational/trace"
	"gopkg.in/yaml.v3"

	"github.com/checkmk/agent-collectors/api/types"
	"github.com/checkmk/agent-collectors/lib/discovery"
)

// rawAuth mirrors the YAML shape of an Authentication block.
type rawAuth struct {
	Kind        string `yaml:"type"`
	User        string `yaml:"user"`
	Password    string `yaml:"password"`
	AccessToken string `yaml:"access_token"`
}

func (a rawAuth) toTypes() types.Authentication {
	kind := types.AuthUndefined
	switch a.Kind {
	case "sql_server":
		kind = types.AuthSqlServer
	case "windows":
		kind = types.AuthWindows
	case "integrated":
		kind = types.AuthIntegrated
	case "token":
		kind = types.AuthToken
	}
	return types.Authentication{Kind: kind, User: a.User, Password: a.Password, AccessToken: a.AccessToken}
}

// rawConnection mirrors the YAML shape of a Connection block.
type rawConnection struct {
	Hostname               string   `yaml:"hostname"`
	FailOverPartner        string   `yaml:"failover_partner"`
	Port                   uint16   `yaml:"port"`
	SocketPath             string   `yaml:"socket"`
	TrustServerCertificate bool     `yaml:"trust_server_certificate"`
	TimeoutSeconds         int      `yaml:"timeout"`
	Backend                string   `yaml:"engine"`
	ExcludedDatabases      []string `yaml:"excluded_databases"`
}

func (c rawConnection) toTypes() types.Connection {
	backend := types.BackendAuto
	switch c.Backend {
	case "tcp":
		backend = types.BackendTcp
	case "odbc":
		backend = types.BackendOdbc
	}
	timeout := time.Duration(c.TimeoutSeconds) * time.Second
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return types.Connection{
		Hostname:               strings.ToLower(c.Hostname),
		FailOverPartner:        c.FailOverPartner,
		Port:                   c.Port,
		SocketPath:             c.SocketPath,
		TrustServerCertificate: c.TrustServerCertificate,
		Timeout:                timeout,
		Backend:                backend,
		ExcludedDatabases:      c.ExcludedDatabases,
	}
}

// rawEndpoint mirrors the YAML shape of an Endpoint block.
type rawEndpoint struct {
	Auth       rawAuth       `yaml:"auth"`
	Connection rawConnection `yaml:"connection"`
}

func (e rawEndpoint) toTypes() types.Endpoint {
	return types.Endpoint{Authentication: e.Auth.toTypes(), Connection: e.Connection.toTypes()}
}

// rawCustomInstance mirrors one entry of the YAML instances list.
type rawCustomInstance struct {
	Name          string       `yaml:"sid"`
	Alias         string       `yaml:"alias"`
	PiggybackHost string       `yaml:"piggyback_host"`
	Endpoint      *rawEndpoint `yaml:"connection"`
}

// rawSection mirrors one entry of the YAML sections list.
type rawSection struct {
	Name            string `yaml:"name"`
	Disabled        bool   `yaml:"disabled"`
	CacheAgeSeconds int    `yaml:"cache_age"`
	MainDatabase    string `yaml:"main_db"`
	SQLOverride     string `yaml:"sql"`
}

// rawDiscovery mirrors the YAML discovery policy block.
type rawDiscovery struct {
	Detect  bool     `yaml:"detect"`
	Include []string `yaml:"include"`
	Exclude []string `yaml:"exclude"`
}

// rawDocument is the top-level YAML shape of a mk-sql configuration;
// mk-oracle decodes its own rawOracleDocument.
type rawDocument struct {
	Main           rawEndpoint         `yaml:"main"`
	Discovery      rawDiscovery        `yaml:"discovery"`
	Instances      []rawCustomInstance `yaml:"instances"`
	Sections       []rawSection        `yaml:"sections"`
	MaxConnections int                 `yaml:"max_connections"`
	CachingEnabled bool                `yaml:"caching,omitempty"`
	CachingDisabled bool               `yaml:"disable_caching"`
	UserSQLDir     string              `yaml:"custom_sql_dir"`
	Tenant         string              `yaml:"tenant"`
}

// SQLConfig is the decoded, typed form of a mk-sql YAML configuration.
type SQLConfig struct {
	MainEndpoint   types.Endpoint
	Discovery      discovery.Policy
	Instances      []discovery.CustomInstance
	Sections       []types.Section
	MaxConnections int
	CachingEnabled bool
	UserSQLDir     string
	Tenant         string

	raw rawDocument
}

// LoadSQLConfig reads and decodes path into a SQLConfig. Malformed YAML
// or a missing required key is a ConfigError: fatal at
// startup, surfaced to the caller for a non-zero exit.
func LoadSQLConfig(path string) (*SQLConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, trace.Wrap(err, "reading configuration")
	}
	return ParseSQLConfig(data)
}

// ParseSQLConfig decodes raw YAML bytes, the primitive LoadSQLConfig
// builds on; split out so config_hash's round-trip property can
// be exercised without touching the filesystem.
func ParseSQLConfig(data []byte) (*SQLConfig, error) {
	var raw rawDocument
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, trace.Wrap(err, "decoding configuration")
	}
	if raw.Main.Connection.Hostname == "" {
		return nil, trace.BadParameter("configuration is missing main.connection.hostname")
	}

	cfg := &SQLConfig{
		MainEndpoint: raw.Main.toTypes(),
		Discovery: discovery.Policy{
			Detect:  raw.Discovery.Detect,
			Include: raw.Discovery.Include,
			Exclude: raw.Discovery.Exclude,
		},
		MaxConnections: raw.MaxConnections,
		CachingEnabled: !raw.CachingDisabled,
		UserSQLDir:     raw.UserSQLDir,
		Tenant:         raw.Tenant,
		raw:            raw,
	}

	for _, ci := range raw.Instances {
		custom := discovery.CustomInstance{
			Name:          ci.Name,
			Alias:         ci.Alias,
			PiggybackHost: ci.PiggybackHost,
		}
		if ci.Endpoint != nil {
			ep := ci.Endpoint.toTypes()
			custom.Endpoint = &ep
		}
		cfg.Instances = append(cfg.Instances, custom)
	}

	for _, s := range raw.Sections {
		if s.Disabled {
			continue
		}
		section := types.Make(types.Name(s.Name), time.Duration(s.CacheAgeSeconds)*time.Second)
		section.MainDatabase = s.MainDatabase
		section.SQLOverride = s.SQLOverride
		cfg.Sections = append(cfg.Sections, section)
	}
	if len(cfg.Sections) == 0 {
		cfg.Sections = DefaultMSSQLSections()
	}

	return cfg, nil
}

// DefaultMSSQLSections is the section list used when a configuration
// supplies none: every section the catalog and runner know about,
// synchronous except the per-database ones, which default to a 5
// minute cache.
func DefaultMSSQLSections() []types.Section {
	sync := []types.Name{"instance", "counters", "blocked_sessions", "databases", "connections", "jobs", "mirroring", "availability_groups"}
	async := []types.Name{"table_spaces", "transaction_logs", "datafiles", "clusters", "backup"}

	out := make([]types.Section, 0, len(sync)+len(async))
	for _, n := range sync {
		out = append(out, types.Make(n, 0))
	}
	for _, n := range async {
		out = append(out, types.Make(n, 5*time.Minute))
	}
	return out
}

// Normalized re-renders the decoded document back to YAML so that two
// configurations differing only in whitespace or comments hash to the
// same value: the parsed struct tree has
// already dropped both.
func (c *SQLConfig) Normalized() ([]byte, error) {
	out, err := yaml.Marshal(c.raw)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	return out, nil
}
