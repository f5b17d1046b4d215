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
	"strings"

	"github.com/gravitational/trace"
)

// SiteId identifies a Checkmk site a connection is registered against.
// Its canonical string form is "server/site" and it is used as the
// primary key of the connection registry.
type SiteId struct {
	Server string `json:"server"`
	Site   string `json:"site"`
}

// ParseSiteId parses the canonical "server/site" form back into a SiteId.
func ParseSiteId(s string) (SiteId, error) {
	server, site, ok := strings.Cut(s, "/")
	if !ok || server == "" || site == "" {
		return SiteId{}, trace.BadParameter("invalid site id %q, want \"server/site\"", s)
	}
	return SiteId{Server: server, Site: site}, nil
}

// String renders the canonical "server/site" form.
func (s SiteId) String() string {
	return fmt.Sprintf("%s/%s", s.Server, s.Site)
}

// MarshalText implements encoding.TextMarshaler so SiteId can be used
// as a JSON object key.
func (s SiteId) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler, the map-key
// counterpart to MarshalText.
func (s *SiteId) UnmarshalText(data []byte) error {
	parsed, err := ParseSiteId(string(data))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// ConnectionMode is the direction in which a registered site exchanges
// data with the monitored host.
type ConnectionMode int

const (
	// Push means the monitored host uploads data to the site on its own
	// schedule.
	Push ConnectionMode = iota
	// Pull means the site fetches data from the monitored host.
	Pull
)

// String renders the wire form used by the registry file: "push-agent"
// or "pull-agent".
func (m ConnectionMode) String() string {
	switch m {
	case Push:
		return "push-agent"
	case Pull:
		return "pull-agent"
	default:
		return "unknown"
	}
}

// MarshalJSON implements json.Marshaler, serializing as the wire strings
// required by the registry file format.
func (m ConnectionMode) MarshalJSON() ([]byte, error) {
	return []byte(`"` + m.String() + `"`), nil
}

// UnmarshalJSON implements json.Unmarshaler for the wire strings above.
func (m *ConnectionMode) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	switch s {
	case "push-agent":
		*m = Push
	case "pull-agent":
		*m = Pull
	default:
		return trace.BadParameter("unknown connection mode %q", s)
	}
	return nil
}
