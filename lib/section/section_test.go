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

package section

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/checkmk/agent-collectors/api/types"
)

func TestToPlainHeaderDefaultSeparator(t *testing.T) {
	s := types.Section{Name: "databases"}
	assert.Equal(t, "<<<databases:sep(124)>>>\n", ToPlainHeader(s))
}

func TestToPlainHeaderCustomSeparator(t *testing.T) {
	s := types.Section{Name: "counters", Separator: ';'}
	assert.Equal(t, "<<<counters:sep(59)>>>\n", ToPlainHeader(s))
}

func TestInstanceHeaderAlwaysUsesPipe(t *testing.T) {
	assert.Equal(t, "<<<MSSQL_TEST:sep(124)>>>\n", InstanceHeader("MSSQL_TEST"))
}

func TestResolveForCacheDisablesAsyncWhenCachingOff(t *testing.T) {
	s := types.Make("table_spaces", time.Hour)
	resolved := ResolveForCache(s, false)
	assert.Equal(t, types.SectionSync, resolved.Kind)
	assert.Zero(t, resolved.CacheAge)
}

func TestResolveForCacheLeavesAsyncAloneWhenEnabled(t *testing.T) {
	s := types.Make("table_spaces", time.Hour)
	resolved := ResolveForCache(s, true)
	assert.Equal(t, types.SectionAsync, resolved.Kind)
	assert.Equal(t, time.Hour, resolved.CacheAge)
}

func TestSelectQueryPrefersSQLOverride(t *testing.T) {
	s := types.Section{Name: "custom", SQLOverride: "select 42"}
	text, err := SelectQuery(nil, s, t.TempDir(), nil, "", types.EditionNormal)
	assert.NoError(t, err)
	assert.Equal(t, "select 42", text)
}
