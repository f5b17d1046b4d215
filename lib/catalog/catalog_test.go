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
	"testing"

	"github.com/gravitational/trace"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/checkmk/agent-collectors/api/types"
)

func TestFindQueryPicksHighestMatchingFloor(t *testing.T) {
	cat := Catalog{}
	cat.Register("Backup", Entry{Text: "select 1 -- legacy"})
	cat.Register("Backup", Entry{Floor: &types.Version{Major: 11}, Text: "select 1 -- 2012"})
	cat.Register("Backup", Entry{Floor: &types.Version{Major: 13}, Text: "select 1 -- 2016"})

	text, err := cat.FindQuery("Backup", &types.Version{Major: 15}, "", types.EditionNormal)
	require.NoError(t, err)
	assert.Equal(t, "select 1 -- 2016", text)

	text, err = cat.FindQuery("Backup", &types.Version{Major: 12}, "", types.EditionNormal)
	require.NoError(t, err)
	assert.Equal(t, "select 1 -- 2012", text)

	text, err = cat.FindQuery("Backup", &types.Version{Major: 10}, "", types.EditionNormal)
	require.NoError(t, err)
	assert.Equal(t, "select 1 -- legacy", text, "below every floor falls back to the floor-less entry")
}

func TestFindQueryPrefersEditionSpecificOverNormal(t *testing.T) {
	cat := Catalog{}
	cat.Register("Instance", Entry{Edition: types.EditionNormal, Text: "normal"})
	cat.Register("Instance", Entry{Edition: types.EditionAzure, Text: "azure"})

	text, err := cat.FindQuery("Instance", nil, "", types.EditionAzure)
	require.NoError(t, err)
	assert.Equal(t, "azure", text)

	text, err = cat.FindQuery("Instance", nil, "", types.EditionNormal)
	require.NoError(t, err)
	assert.Equal(t, "normal", text)
}

func TestFindQueryTenantScoping(t *testing.T) {
	cat := Catalog{}
	cat.Register("Jobs", Entry{Text: "generic"})
	cat.Register("Jobs", Entry{Tenant: "tenant-a", Text: "tenant-a-only"})

	text, err := cat.FindQuery("Jobs", nil, "tenant-a", types.EditionNormal)
	require.NoError(t, err)
	assert.Equal(t, "tenant-a-only", text)

	text, err = cat.FindQuery("Jobs", nil, "tenant-b", types.EditionNormal)
	require.NoError(t, err)
	assert.Equal(t, "generic", text)
}

func TestFindQueryUnknownIDIsNotFound(t *testing.T) {
	cat := Catalog{}
	_, err := cat.FindQuery("Nope", nil, "", types.EditionNormal)
	assert.True(t, trace.IsNotFound(err))
}
