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

package catalog

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/checkmk/agent-collectors/api/types"
)

// FindProvidedQuery consults a user-provided SQL override directory.
// Files are named "<section>.sql" or "<section>@<min-version>.sql".
// It picks the file whose version floor is <= version and largest among
// such; when no floored file qualifies it falls back to the plain
// "<section>.sql" file. A nil return means no override exists.
func FindProvidedQuery(dir string, section string, version *types.Version) (*string, error) {
	if dir == "" {
		return nil, nil
	}
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var bestFloor *types.Version
	var bestPath string
	var plainPath string

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasSuffix(name, ".sql") {
			continue
		}
		base := strings.TrimSuffix(name, ".sql")

		sec, floorStr, hasFloor := strings.Cut(base, "@")
		if sec != section {
			continue
		}
		if !hasFloor {
			plainPath = filepath.Join(dir, name)
			continue
		}
		floor, ok := parseFloor(floorStr)
		if !ok {
			continue
		}
		if version != nil && version.Less(floor) {
			continue
		}
		if bestFloor == nil || bestFloor.Less(floor) {
			f := floor
			bestFloor = &f
			bestPath = filepath.Join(dir, name)
		}
	}

	path := bestPath
	if path == "" {
		path = plainPath
	}
	if path == "" {
		return nil, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	text := string(data)
	return &text, nil
}

// parseFloor parses "10.50.2500" style floors, allowing a short form
// like "10" or "10.50".
func parseFloor(s string) (types.Version, bool) {
	parts := strings.SplitN(s, ".", 3)
	nums := make([]int, 3)
	for i, p := range parts {
		if p == "" {
			return types.Version{}, false
		}
		n, err := strconv.Atoi(p)
		if err != nil {
			return types.Version{}, false
		}
		nums[i] = n
	}
	return types.Version{Major: nums[0], Minor: nums[1], Build: nums[2]}, true
}
