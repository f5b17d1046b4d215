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

package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteThenReadWithinAge(t *testing.T) {
	c := New(t.TempDir(), "abc123", nil)
	c.Write("host;INST;databases.mssql", "body\n")

	got := c.Read("host;INST;databases.mssql", time.Minute)
	require.NotNil(t, got)
	assert.Equal(t, "body\n", *got)
}

func TestReadMissOnZeroMaxAge(t *testing.T) {
	c := New(t.TempDir(), "abc123", nil)
	c.Write("host;INST;databases.mssql", "body\n")

	assert.Nil(t, c.Read("host;INST;databases.mssql", 0), "cache_age=0 must always miss, matching Sync behavior")
}

func TestReadMissWhenStale(t *testing.T) {
	dir := t.TempDir()
	c := New(dir, "abc123", nil)
	c.Write("host;INST;databases.mssql", "body\n")

	assert.Nil(t, c.Read("host;INST;databases.mssql", -time.Second))
}

func TestReadMissWhenAbsent(t *testing.T) {
	c := New(t.TempDir(), "abc123", nil)
	assert.Nil(t, c.Read("nope", time.Hour))
}

func TestConfigHashStableAndDistinguishing(t *testing.T) {
	a := ConfigHash([]byte("config-a"))
	b := ConfigHash([]byte("config-b"))
	aAgain := ConfigHash([]byte("config-a"))

	assert.Equal(t, a, aAgain)
	assert.NotEqual(t, a, b)
	assert.Len(t, a, 16)
}

func TestEntryName(t *testing.T) {
	assert.Equal(t, "host;INST;databases.mssql", EntryName("host", "INST", "databases"))
}
