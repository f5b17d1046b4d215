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

// Package section implements the Checkmk section header format and the
// query-selection rule that prefers a user override over the built-in
// catalog.
package section

import (
	"fmt"

	"github.com/checkmk/agent-collectors/api/types"
	"github.com/checkmk/agent-collectors/lib/catalog"
)

// ToPlainHeader renders the verbatim Checkmk section header:
// "<<<name:sep(NNN)>>>\n", where NNN is the decimal byte value of the
// section's separator.
func ToPlainHeader(s types.Section) string {
	return fmt.Sprintf("<<<%s:sep(%d)>>>\n", s.Name, s.EffectiveSeparator())
}

// ToWorkHeader is identical to ToPlainHeader; this is the header emitted
// at run time.
func ToWorkHeader(s types.Section) string {
	return ToPlainHeader(s)
}

// InstanceHeader renders the instance-level leading section header,
// which always uses '|' as its separator regardless of the individual
// section's own separator.
func InstanceHeader(name types.Name) string {
	return fmt.Sprintf("<<<%s:sep(%d)>>>\n", name, byte('|'))
}

// SelectQuery resolves the SQL text to run for s: a user override in
// userDir wins over the built-in catalog entry.
func SelectQuery(c catalog.Catalog, s types.Section, userDir string, version *types.Version, tenant string, edition types.Edition) (string, error) {
	if s.SQLOverride != "" {
		return s.SQLOverride, nil
	}
	if text, err := catalog.FindProvidedQuery(userDir, string(s.Name), version); err != nil {
		return "", err
	} else if text != nil {
		return *text, nil
	}
	return c.FindQuery(catalog.QueryID(s.Name), version, tenant, edition)
}

// ResolveForCache applies the global-cache-disable rule: when caching
// is disabled, Async sections behave as Sync (cache age forced to zero).
func ResolveForCache(s types.Section, cachingEnabled bool) types.Section {
	if !cachingEnabled && s.Kind == types.SectionAsync {
		s.Kind = types.SectionSync
		s.CacheAge = 0
	}
	return s
}
