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

// Package catalog implements the mapping from a query id, engine
// version, edition and tenant to the SQL text that should run, plus
// resolution of user-provided overrides on disk.
package catalog

import (
	"sort"

	"github.com/gravitational/trace"

	"github.com/checkmk/agent-collectors/api/types"
)

// QueryID names a catalog entry, e.g. "InstanceProperties", "Backup".
type QueryID string

// Entry is one (floor, tenant, edition) -> text mapping. A nil Floor
// matches any version; an empty Tenant matches any tenant; Edition
// defaults to Normal.
type Entry struct {
	Floor   *types.Version
	Tenant  string
	Edition types.Edition
	Text    string
}

// Catalog is an engine's full set of query ids, each with one or more
// candidate entries.
type Catalog map[QueryID][]Entry

// Register adds (or appends to) the entries for id. Each engine's
// init() calls this to build up its own query table.
func (c Catalog) Register(id QueryID, e Entry) {
	c[id] = append(c[id], e)
}

// FindQuery selects the most specific SQL text for id.
//
// Resolution rule: only entries whose Tenant matches (exact, or entries
// with no tenant restriction) and whose Floor is <= version (or has no
// floor) are considered. Those are narrowed to the requested edition,
// or to the Normal edition entries when the requested edition has none.
// Among what is left the highest floor wins, a floor-less entry ranking
// lowest; on an equal floor a tenant-specific entry wins over an
// unrestricted one.
func (c Catalog) FindQuery(id QueryID, version *types.Version, tenant string, edition types.Edition) (string, error) {
	entries, ok := c[id]
	if !ok || len(entries) == 0 {
		return "", trace.NotFound("no query registered for id %q", id)
	}

	candidates := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if e.Tenant != "" && e.Tenant != tenant {
			continue
		}
		if e.Floor != nil && version != nil && version.Less(*e.Floor) {
			continue
		}
		candidates = append(candidates, e)
	}
	if len(candidates) == 0 {
		return "", trace.NotFound("no query for id %q matches version %v tenant %q", id, version, tenant)
	}

	best := pickBestByEdition(candidates, edition)
	if best == nil {
		return "", trace.NotFound("no query for id %q matches edition %v", id, edition)
	}
	return best.Text, nil
}

// pickBestByEdition first narrows to the requested edition (falling
// back to Normal when nothing matches), then picks the highest floor
// among those, falling back to the floor-less entry. On an equal floor
// a tenant-specific entry is preferred.
func pickBestByEdition(candidates []Entry, edition types.Edition) *Entry {
	wantEdition := edition
	if wantEdition == "" {
		wantEdition = types.EditionNormal
	}

	filterByEdition := func(ed types.Edition) []Entry {
		out := make([]Entry, 0, len(candidates))
		for _, e := range candidates {
			effective := e.Edition
			if effective == "" {
				effective = types.EditionNormal
			}
			if effective == ed {
				out = append(out, e)
			}
		}
		return out
	}

	pool := filterByEdition(wantEdition)
	if len(pool) == 0 {
		pool = filterByEdition(types.EditionNormal)
	}
	if len(pool) == 0 {
		// No entry at all for Normal either: fall back to whatever is
		// left, preferring the one with no edition tag.
		pool = candidates
	}
	if len(pool) == 0 {
		return nil
	}

	sort.SliceStable(pool, func(i, j int) bool {
		ri, rj := floorRank(pool[i].Floor), floorRank(pool[j].Floor)
		if ri != rj {
			return ri > rj
		}
		return pool[i].Tenant != "" && pool[j].Tenant == ""
	})
	e := pool[0]
	return &e
}

// floorRank gives floor-less entries the lowest rank so any floored
// entry that matched beats them, and among floored entries the highest
// floor ranks first.
func floorRank(v *types.Version) int64 {
	if v == nil {
		return -1
	}
	return int64(v.Major)*1_000_000 + int64(v.Minor)*1_000 + int64(v.Build)
}
