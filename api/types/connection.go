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
	"github.com/google/uuid"
	"github.com/gravitational/trace"
)

// TrustedConnection is the identity a monitored host presents to a site:
// a UUID plus the TLS credentials that back it. Equality is by UUID only;
// UUIDs must be unique within a registry.
type TrustedConnection struct {
	UUID uuid.UUID `json:"uuid"`
	// PrivateKey is PEM-encoded and must never be logged or printed.
	PrivateKey []byte `json:"private_key"`
	// Certificate is the PEM-encoded certificate chain issued by the site.
	Certificate []byte `json:"certificate"`
	// RootCert is the PEM-encoded root certificate of the site's CA.
	RootCert []byte `json:"root_cert"`
}

// Redacted returns a copy with key and certificate material stripped,
// safe to log or print.
func (c TrustedConnection) Redacted() TrustedConnection {
	return TrustedConnection{UUID: c.UUID}
}

// TrustedConnectionWithRemote adds the receiver port for sites reachable
// at a known address (push/pull entries, as opposed to imported ones).
type TrustedConnectionWithRemote struct {
	TrustedConnection
	ReceiverPort uint16 `json:"receiver_port"`
}

// RegisteredConnections is the full on-disk shape of the connection
// registry: disjoint push/pull maps plus an imported set.
type RegisteredConnections struct {
	Push         map[SiteId]TrustedConnectionWithRemote `json:"push"`
	Pull         map[SiteId]TrustedConnectionWithRemote `json:"pull"`
	PullImported []TrustedConnection                    `json:"pull_imported"`
}

// NewRegisteredConnections returns an empty, ready-to-use value.
func NewRegisteredConnections() RegisteredConnections {
	return RegisteredConnections{
		Push: make(map[SiteId]TrustedConnectionWithRemote),
		Pull: make(map[SiteId]TrustedConnectionWithRemote),
	}
}

// CheckInvariants verifies that no SiteId appears in both push and pull,
// and that no UUID is registered twice.
func (r RegisteredConnections) CheckInvariants() error {
	seen := make(map[uuid.UUID]SiteId, len(r.Push)+len(r.Pull))
	for site, conn := range r.Push {
		if _, ok := r.Pull[site]; ok {
			return trace.BadParameter("site %v registered in both push and pull", site)
		}
		if other, ok := seen[conn.UUID]; ok {
			return trace.BadParameter("uuid %v registered under both %v and %v", conn.UUID, other, site)
		}
		seen[conn.UUID] = site
	}
	for site, conn := range r.Pull {
		if other, ok := seen[conn.UUID]; ok {
			return trace.BadParameter("uuid %v registered under both %v and %v", conn.UUID, other, site)
		}
		seen[conn.UUID] = site
	}
	return nil
}
