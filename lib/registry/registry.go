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

// Package registry implements the persistent store of trusted site
// connections: a keyed map of identity records, serialized to JSON and
// saved via temp+rename, kept as a single flat file rather than a
// pluggable KV backend since concurrent writers of the registry are
// not supported.
package registry

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gravitational/trace"

	"github.com/checkmk/agent-collectors/api/types"
)

// legacyPullMarker is the file whose presence (and an otherwise empty
// registry) activates unauthenticated pull mode.
const legacyPullMarker = "allow-legacy-pull"

// Registry is the connection registry: an in-memory mirror of the
// on-disk JSON document, reloaded when the file's mtime disagrees with
// what was last loaded.
type Registry struct {
	mu sync.Mutex

	path         string
	connections  types.RegisteredConnections
	lastReload   time.Time
	hasLastReload bool
}

// New returns an empty registry bound to path; nothing is read from disk
// until Refresh or FromFile is called.
func New(path string) *Registry {
	return &Registry{path: path, connections: types.NewRegisteredConnections()}
}

// FromFile loads path immediately. A missing file yields an empty
// registry with no recorded last-reload timestamp.
func FromFile(path string) (*Registry, error) {
	r := New(path)
	if _, err := r.Refresh(); err != nil {
		return nil, trace.Wrap(err)
	}
	return r, nil
}

// Refresh compares the file's current mtime against the recorded
// last-reload time; on any disagreement (including clock skew in either
// direction) it reloads and returns true.
func (r *Registry) Refresh() (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	info, err := os.Stat(r.path)
	if os.IsNotExist(err) {
		if !r.hasLastReload {
			return false, nil
		}
		r.connections = types.NewRegisteredConnections()
		r.hasLastReload = false
		return true, nil
	}
	if err != nil {
		return false, trace.Wrap(err)
	}

	if r.hasLastReload && info.ModTime().Equal(r.lastReload) {
		return false, nil
	}

	data, err := os.ReadFile(r.path)
	if err != nil {
		return false, trace.Wrap(err)
	}
	var onDisk types.RegisteredConnections
	if err := json.Unmarshal(data, &onDisk); err != nil {
		return false, trace.Wrap(err, "parsing registry file %s", r.path)
	}
	if onDisk.Push == nil {
		onDisk.Push = make(map[types.SiteId]types.TrustedConnectionWithRemote)
	}
	if onDisk.Pull == nil {
		onDisk.Pull = make(map[types.SiteId]types.TrustedConnectionWithRemote)
	}
	r.connections = onDisk
	r.lastReload = info.ModTime()
	r.hasLastReload = true
	return true, nil
}

// Save serializes the registry to JSON (pretty), writes it to
// "<path>.tmp", renames it onto path, sets mode 0600 on POSIX, and
// removes the legacy-pull marker.
func (r *Registry) Save() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.saveLocked()
}

func (r *Registry) saveLocked() error {
	if err := r.connections.CheckInvariants(); err != nil {
		return trace.Wrap(err)
	}
	data, err := json.MarshalIndent(r.connections, "", "  ")
	if err != nil {
		return trace.Wrap(err)
	}

	tmpPath := r.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o600); err != nil {
		return trace.Wrap(err, "writing temp registry file")
	}
	if err := os.Chmod(tmpPath, 0o600); err != nil {
		return trace.Wrap(err)
	}
	if err := os.Rename(tmpPath, r.path); err != nil {
		return trace.Wrap(err, "renaming temp registry file into place")
	}

	if info, err := os.Stat(r.path); err == nil {
		r.lastReload = info.ModTime()
		r.hasLastReload = true
	}

	markerPath := filepath.Join(filepath.Dir(r.path), legacyPullMarker)
	_ = os.Remove(markerPath)

	return nil
}

// RegisterConnection inserts conn into mode's map, removing site from
// the other mode's map if present — this is the single mutator that
// preserves the push/pull mutual-exclusion invariant.
func (r *Registry) RegisterConnection(mode types.ConnectionMode, site types.SiteId, conn types.TrustedConnectionWithRemote) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch mode {
	case types.Push:
		delete(r.connections.Pull, site)
		r.connections.Push[site] = conn
	case types.Pull:
		delete(r.connections.Push, site)
		r.connections.Pull[site] = conn
	}
}

// RegisterImportedConnection inserts conn into the imported set by
// UUID; re-registering the same UUID is idempotent.
func (r *Registry) RegisterImportedConnection(conn types.TrustedConnection) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, existing := range r.connections.PullImported {
		if existing.UUID == conn.UUID {
			r.connections.PullImported[i] = conn
			return
		}
	}
	r.connections.PullImported = append(r.connections.PullImported, conn)
}

// DeleteStandardConnection removes site from whichever of push/pull
// contains it, returning false if neither did.
func (r *Registry) DeleteStandardConnection(site types.SiteId) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.connections.Push[site]; ok {
		delete(r.connections.Push, site)
		return true
	}
	if _, ok := r.connections.Pull[site]; ok {
		delete(r.connections.Pull, site)
		return true
	}
	return false
}

// DeleteImportedConnection removes the imported connection with the
// given UUID, returning false if it wasn't present.
func (r *Registry) DeleteImportedConnection(id uuid.UUID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, existing := range r.connections.PullImported {
		if existing.UUID == id {
			r.connections.PullImported = append(r.connections.PullImported[:i], r.connections.PullImported[i+1:]...)
			return true
		}
	}
	return false
}

// RetrieveStandardConnectionByUUID does a linear scan of push and pull
// for a connection with the given UUID, returning its SiteId.
func (r *Registry) RetrieveStandardConnectionByUUID(id uuid.UUID) (types.SiteId, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for site, conn := range r.connections.Push {
		if conn.UUID == id {
			return site, true
		}
	}
	for site, conn := range r.connections.Pull {
		if conn.UUID == id {
			return site, true
		}
	}
	return types.SiteId{}, false
}

// Snapshot returns a defensive copy of the registry's current state, for
// read-only consumers like the `status` CLI mode.
func (r *Registry) Snapshot() types.RegisteredConnections {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := types.NewRegisteredConnections()
	for k, v := range r.connections.Push {
		out.Push[k] = v
	}
	for k, v := range r.connections.Pull {
		out.Pull[k] = v
	}
	out.PullImported = append(out.PullImported, r.connections.PullImported...)
	return out
}

// Clear removes every push/pull connection.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.connections.Push = make(map[types.SiteId]types.TrustedConnectionWithRemote)
	r.connections.Pull = make(map[types.SiteId]types.TrustedConnectionWithRemote)
}

// ClearImported removes every imported connection.
func (r *Registry) ClearImported() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.connections.PullImported = nil
}

// IsEmpty reports whether the registry has no connections of any kind,
// the precondition for activating legacy pull.
func (r *Registry) IsEmpty() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.connections.Push) == 0 && len(r.connections.Pull) == 0 && len(r.connections.PullImported) == 0
}

// ActivateLegacyPull creates the marker file granting unauthenticated
// pull, but only if the registry is otherwise empty.
func (r *Registry) ActivateLegacyPull() error {
	if !r.IsEmpty() {
		return trace.BadParameter("cannot activate legacy pull: registry is not empty")
	}
	markerPath := filepath.Join(filepath.Dir(r.path), legacyPullMarker)
	return trace.Wrap(os.WriteFile(markerPath, []byte{}, 0o644))
}

// IsLegacyPullActive reports whether the marker file exists and the
// registry is currently empty.
func (r *Registry) IsLegacyPullActive() bool {
	markerPath := filepath.Join(filepath.Dir(r.path), legacyPullMarker)
	if _, err := os.Stat(markerPath); err != nil {
		return false
	}
	return r.IsEmpty()
}
