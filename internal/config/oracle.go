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
	"fmt"
	"os"
	"time"

	"github.com/gravitational/trace"
	"gopkg.in/yaml.v3"

	"github.com/checkmk/agent-collectors/api/types"
	"github.com/checkmk/agent-collectors/lib/runner"
)

// rawOracleInstance mirrors one entry of the mk-oracle YAML instances
// list: an explicit host/port/service, with sid naming the instance,
// addressed directly rather than discovered.
type rawOracleInstance struct {
	Sid           string `yaml:"sid"`
	Hostname      string `yaml:"hostname"`
	Port          int    `yaml:"port"`
	Service       string `yaml:"service"`
	User          string `yaml:"user"`
	Password      string `yaml:"password"`
	PiggybackHost string `yaml:"piggyback_host"`
}

func (i rawOracleInstance) dsn() string {
	port := i.Port
	if port == 0 {
		port = 1521
	}
	return fmt.Sprintf("oracle://%s:%s@%s:%d/%s", i.User, i.Password, i.Hostname, port, i.Service)
}

type rawOracleDocument struct {
	Instances       []rawOracleInstance `yaml:"instances"`
	Sections        []rawSection        `yaml:"sections"`
	MaxConnections  int                 `yaml:"max_connections"`
	CachingDisabled bool                `yaml:"disable_caching"`
	UserSQLDir      string              `yaml:"custom_sql_dir"`
	TimeoutSeconds  int                 `yaml:"timeout"`

	raw []byte
}

// OracleConfig is the decoded, typed form of a mk-oracle YAML
// configuration.
type OracleConfig struct {
	Targets        []runner.OracleTarget
	MaxConnections int
	CachingEnabled bool
	UserSQLDir     string

	raw rawOracleDocument
}

// LoadOracleConfig reads and decodes path into an OracleConfig. A
// missing required field is a ConfigError: fatal at startup.
func LoadOracleConfig(path string) (*OracleConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, trace.Wrap(err, "reading configuration")
	}
	return ParseOracleConfig(data)
}

// ParseOracleConfig decodes raw YAML bytes into an OracleConfig.
func ParseOracleConfig(data []byte) (*OracleConfig, error) {
	var raw rawOracleDocument
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, trace.Wrap(err, "decoding configuration")
	}
	if len(raw.Instances) == 0 {
		return nil, trace.BadParameter("configuration lists no Oracle instances")
	}
	raw.raw = data

	timeout := time.Duration(raw.TimeoutSeconds) * time.Second
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	var sections []types.Section
	for _, s := range raw.Sections {
		if s.Disabled {
			continue
		}
		section := types.Make(types.Name(s.Name), time.Duration(s.CacheAgeSeconds)*time.Second)
		section.SQLOverride = s.SQLOverride
		sections = append(sections, section)
	}
	if len(sections) == 0 {
		sections = DefaultOracleSections()
	}

	cachingEnabled := !raw.CachingDisabled
	cfg := &OracleConfig{
		MaxConnections: raw.MaxConnections,
		CachingEnabled: cachingEnabled,
		UserSQLDir:     raw.UserSQLDir,
		raw:            raw,
	}

	for _, inst := range raw.Instances {
		cfg.Targets = append(cfg.Targets, runner.OracleTarget{
			Instance: types.SqlInstance{
				Name:          types.NewInstanceName(inst.Sid),
				Edition:       types.EditionNormal,
				PiggybackHost: inst.PiggybackHost,
			},
			DSN:            inst.dsn(),
			Timeout:        timeout,
			Sections:       sections,
			CachingEnabled: cachingEnabled,
		})
	}

	return cfg, nil
}

// DefaultOracleSections is the section list used when a configuration
// supplies none: every Oracle query catalog id, run
// synchronously except the per-tablespace-style ones, which default to
// a 5 minute cache mirroring mk-sql's own defaults.
func DefaultOracleSections() []types.Section {
	sync := []types.Name{
		"instance", "asminstance", "sessions", "processes", "locks",
		"longactivesessions", "systemparameter", "logswitches",
		"undostat", "recoverystatus", "rman", "dataguardstats",
	}
	async := []types.Name{"performance", "iostats", "tsquotas", "tablespaces", "resumable"}

	out := make([]types.Section, 0, len(sync)+len(async))
	for _, n := range sync {
		out = append(out, types.Make(n, 0))
	}
	for _, n := range async {
		out = append(out, types.Make(n, 5*time.Minute))
	}
	return out
}
