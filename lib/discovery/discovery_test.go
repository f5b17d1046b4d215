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

package discovery

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/checkmk/agent-collectors/api/types"
)

func TestSeedWithoutDetectUsesIncludeListVerbatim(t *testing.T) {
	seeds := Seed(context.Background(), types.Endpoint{}, Policy{Detect: false, Include: []string{"a", "b"}}, nil)
	require.Len(t, seeds, 2)
	assert.Equal(t, types.NewInstanceName("a"), seeds[0].Name)
	assert.Equal(t, types.NewInstanceName("b"), seeds[1].Name)
}

func TestFilterIncludeExcludeIncludeTakesPrecedence(t *testing.T) {
	seeds := []Builder{
		{Name: types.NewInstanceName("one")},
		{Name: types.NewInstanceName("two")},
	}
	out := filterIncludeExclude(seeds, Policy{Include: []string{"one"}, Exclude: []string{"one"}})
	require.Len(t, out, 1)
	assert.Equal(t, types.NewInstanceName("one"), out[0].Name)
}

func TestFilterIncludeExcludeCaseInsensitive(t *testing.T) {
	seeds := []Builder{{Name: types.NewInstanceName("sqlexpress")}}
	out := filterIncludeExclude(seeds, Policy{Exclude: []string{"SqlExpress"}})
	assert.Empty(t, out)
}

func TestCustomizeOverlaysMatchingFieldsOnly(t *testing.T) {
	seeds := []Builder{{Name: types.NewInstanceName("inst")}}
	customs := []CustomInstance{{Name: "inst", Alias: "alias1", PiggybackHost: "host1"}}

	out := Customize(seeds, customs)
	require.Len(t, out, 1)
	assert.Equal(t, "alias1", out[0].Alias)
	assert.Equal(t, "host1", out[0].PiggybackHost)
}

func TestDecideReconnectsFlagsDifferingEndpoint(t *testing.T) {
	seeds := []Builder{{
		Name:     types.NewInstanceName("inst"),
		Endpoint: types.Endpoint{Connection: types.Connection{Hostname: "a", Port: 1433}},
	}}
	newEndpoint := types.Endpoint{Connection: types.Connection{Hostname: "b", Port: 1433}}
	customs := []CustomInstance{{Name: "inst", Endpoint: &newEndpoint}}

	out := DecideReconnects(seeds, customs)
	require.Len(t, out, 1)
	assert.True(t, out[0].NeedsReconnect)
}

func TestDecideReconnectsLeavesMatchingEndpointAlone(t *testing.T) {
	ep := types.Endpoint{Connection: types.Connection{Hostname: "a", Port: 1433}}
	seeds := []Builder{{Name: types.NewInstanceName("inst"), Endpoint: ep}}
	sameEndpoint := ep
	customs := []CustomInstance{{Name: "inst", Endpoint: &sameEndpoint}}

	out := DecideReconnects(seeds, customs)
	require.Len(t, out, 1)
	assert.False(t, out[0].NeedsReconnect)
}

func TestDecideReconnectsAddsUnmatchedCustomInstance(t *testing.T) {
	ep := types.Endpoint{Connection: types.Connection{Hostname: "a", Port: 1433}}
	customs := []CustomInstance{{Name: "new-inst", Endpoint: &ep}}

	out := DecideReconnects(nil, customs)
	require.Len(t, out, 1)
	assert.True(t, out[0].NeedsReconnect)
	assert.Equal(t, types.NewInstanceName("new-inst"), out[0].Name)
}

// TestDecideReconnectsLatestCustomWins ensures a duplicated custom
// instance name is resolved using the last entry.
func TestDecideReconnectsLatestCustomWins(t *testing.T) {
	epFirst := types.Endpoint{Connection: types.Connection{Hostname: "first", Port: 1433}}
	epSecond := types.Endpoint{Connection: types.Connection{Hostname: "second", Port: 1433}}
	customs := []CustomInstance{
		{Name: "inst", Endpoint: &epFirst},
		{Name: "inst", Endpoint: &epSecond},
	}

	out := DecideReconnects(nil, customs)
	require.Len(t, out, 1)
	assert.Equal(t, "second", out[0].Endpoint.Connection.Hostname)
}

func TestReconnectPassSkipsResolveForNonReconnectBuilders(t *testing.T) {
	r := &Reconciler{}
	builders := []Builder{
		{Name: types.NewInstanceName("inst"), Alias: "alias"},
	}
	instances := r.ReconnectPass(context.Background(), builders)
	require.Len(t, instances, 1)
	assert.Equal(t, types.NewInstanceName("inst"), instances[0].Name)
	assert.Equal(t, "alias", instances[0].Alias)
}
