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

package registry

import (
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/checkmk/agent-collectors/api/types"
)

func newConn(t *testing.T) types.TrustedConnectionWithRemote {
	t.Helper()
	return types.TrustedConnectionWithRemote{
		TrustedConnection: types.TrustedConnection{UUID: uuid.New()},
	}
}

// TestModeTransition covers the mode-switch scenario: starting with
// push[S]=conn1, registering the same site for pull must both install
// the pull entry and remove the stale push one, preserving the
// mutual-exclusion invariant.
func TestModeTransition(t *testing.T) {
	site := types.SiteId{Server: "srv", Site: "prod"}
	r := New(filepath.Join(t.TempDir(), "registered_connections.json"))

	conn1 := newConn(t)
	r.RegisterConnection(types.Push, site, conn1)

	snap := r.Snapshot()
	_, inPush := snap.Push[site]
	assert.True(t, inPush)

	conn2 := newConn(t)
	r.RegisterConnection(types.Pull, site, conn2)

	snap = r.Snapshot()
	_, inPush = snap.Push[site]
	assert.False(t, inPush, "site must be removed from push once re-registered for pull")
	got, inPull := snap.Pull[site]
	require.True(t, inPull)
	assert.Equal(t, conn2.UUID, got.UUID)
}

func TestSaveAndFromFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registered_connections.json")
	r := New(path)

	site := types.SiteId{Server: "srv", Site: "prod"}
	conn := newConn(t)
	r.RegisterConnection(types.Push, site, conn)
	require.NoError(t, r.Save())

	reloaded, err := FromFile(path)
	require.NoError(t, err)
	snap := reloaded.Snapshot()
	got, ok := snap.Push[site]
	require.True(t, ok)
	assert.Equal(t, conn.UUID, got.UUID)
}

func TestRefreshNoChangeWithoutFileWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registered_connections.json")
	r := New(path)
	r.RegisterConnection(types.Push, types.SiteId{Server: "a", Site: "b"}, newConn(t))
	require.NoError(t, r.Save())

	changed, err := r.Refresh()
	require.NoError(t, err)
	assert.False(t, changed, "refresh must be a no-op when the file's mtime hasn't moved")
}

func TestDeleteStandardConnection(t *testing.T) {
	r := New(filepath.Join(t.TempDir(), "registered_connections.json"))
	site := types.SiteId{Server: "srv", Site: "prod"}
	r.RegisterConnection(types.Pull, site, newConn(t))

	assert.True(t, r.DeleteStandardConnection(site))
	assert.False(t, r.DeleteStandardConnection(site), "second delete of the same site must report false")
}

func TestRegisterImportedConnectionIsIdempotentByUUID(t *testing.T) {
	r := New(filepath.Join(t.TempDir(), "registered_connections.json"))
	id := uuid.New()
	r.RegisterImportedConnection(types.TrustedConnection{UUID: id, Certificate: []byte("first")})
	r.RegisterImportedConnection(types.TrustedConnection{UUID: id, Certificate: []byte("second")})

	snap := r.Snapshot()
	require.Len(t, snap.PullImported, 1)
	assert.Equal(t, []byte("second"), snap.PullImported[0].Certificate)
}

func TestIsEmptyAndLegacyPull(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registered_connections.json")
	r := New(path)
	assert.True(t, r.IsEmpty())

	require.NoError(t, r.ActivateLegacyPull())
	assert.True(t, r.IsLegacyPullActive())

	r.RegisterConnection(types.Push, types.SiteId{Server: "a", Site: "b"}, newConn(t))
	assert.False(t, r.IsEmpty())
	assert.False(t, r.IsLegacyPullActive(), "legacy pull must deactivate once a real connection exists")
}

func TestActivateLegacyPullRejectsNonEmptyRegistry(t *testing.T) {
	r := New(filepath.Join(t.TempDir(), "registered_connections.json"))
	r.RegisterConnection(types.Push, types.SiteId{Server: "a", Site: "b"}, newConn(t))
	assert.Error(t, r.ActivateLegacyPull())
}
