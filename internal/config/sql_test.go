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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/checkmk/agent-collectors/lib/cache"
)

const baseYAML = `
main:
  connection:
    hostname: sqlhost
  auth:
    type: sql_server
    user: monitoring
    password: secret
sections:
  - name: instance
  - name: backup
    cache_age: 300
`

func TestParseSQLConfigRequiresHostname(t *testing.T) {
	_, err := ParseSQLConfig([]byte("main:\n  connection: {}\n"))
	assert.Error(t, err)
}

func TestParseSQLConfigDefaultsSections(t *testing.T) {
	cfg, err := ParseSQLConfig([]byte("main:\n  connection:\n    hostname: sqlhost\n"))
	require.NoError(t, err)
	assert.NotEmpty(t, cfg.Sections)
	assert.True(t, cfg.CachingEnabled)
}

func TestParseSQLConfigDecodesSections(t *testing.T) {
	cfg, err := ParseSQLConfig([]byte(baseYAML))
	require.NoError(t, err)
	require.Len(t, cfg.Sections, 2)
	assert.Equal(t, "sqlhost", cfg.MainEndpoint.Connection.Hostname)
	assert.Equal(t, "monitoring", cfg.MainEndpoint.Authentication.User)
}

// TestConfigHashStableAcrossWhitespace exercises an explicit testable
// property: two configurations differing only in whitespace/comments
// must hash identically, because the hash is computed over the decoded
// tree's normalized rendering rather than the raw bytes.
func TestConfigHashStableAcrossWhitespace(t *testing.T) {
	commented := "# a comment\n\n" + baseYAML + "\n\n"

	a, err := ParseSQLConfig([]byte(baseYAML))
	require.NoError(t, err)
	b, err := ParseSQLConfig([]byte(commented))
	require.NoError(t, err)

	na, err := a.Normalized()
	require.NoError(t, err)
	nb, err := b.Normalized()
	require.NoError(t, err)

	assert.Equal(t, cache.ConfigHash(na), cache.ConfigHash(nb))
}

func TestConfigHashDiffersOnRealChange(t *testing.T) {
	a, err := ParseSQLConfig([]byte(baseYAML))
	require.NoError(t, err)
	b, err := ParseSQLConfig([]byte("main:\n  connection:\n    hostname: otherhost\n"))
	require.NoError(t, err)

	na, _ := a.Normalized()
	nb, _ := b.Normalized()
	assert.NotEqual(t, cache.ConfigHash(na), cache.ConfigHash(nb))
}
