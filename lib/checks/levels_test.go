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

package checks

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/checkmk/agent-collectors/api/types"
)

func render(v int64) string { return fmt.Sprintf("%d seconds", v) }

func TestEvaluateWithinBounds(t *testing.T) {
	b := types.LowerUpperBound(10, 20)
	assert.Nil(t, Evaluate(b, 15, types.Warn))
}

func TestEvaluateOutOfBounds(t *testing.T) {
	b := types.LowerUpperBound(10, 20)
	state := Evaluate(b, 25, types.Crit)
	if assert.NotNil(t, state) {
		assert.Equal(t, types.Crit, *state)
	}
	state = Evaluate(b, 5, types.Crit)
	if assert.NotNil(t, state) {
		assert.Equal(t, types.Crit, *state)
	}
}

func TestCheckUpperLevelsOkIsDetailsOnly(t *testing.T) {
	levels := types.WarnLevel(int64(43200))
	got := CheckUpperLevels("Page age", int64(1000), render, &levels)
	assert.Equal(t, []types.CheckResult{types.Details(types.Ok, "Page age: 1000 seconds")}, got)
}

// TestCheckUpperLevelsWarn covers the page-age case: value 86400
// against warn=43200 produces a summary+details pair at Warn carrying
// the literal "(warn at 43200 seconds)" suffix.
func TestCheckUpperLevelsWarn(t *testing.T) {
	levels := types.WarnLevel(int64(43200))
	got := CheckUpperLevels("Page age", int64(86400), render, &levels)
	want := "Page age: 86400 seconds (warn at 43200 seconds)"
	assert.Equal(t, []types.CheckResult{
		types.Summary(types.Warn, want),
		types.Details(types.Warn, want),
	}, got)
}

func TestCheckUpperLevelsCrit(t *testing.T) {
	levels := types.WarnCritLevel(int64(43200), int64(90000))
	got := CheckUpperLevels("Page age", int64(100000), render, &levels)
	want := "Page age: 100000 seconds (crit at 90000 seconds)"
	assert.Equal(t, []types.CheckResult{
		types.Summary(types.Crit, want),
		types.Details(types.Crit, want),
	}, got)
}

func TestCheckUpperLevelsNilIsAlwaysOk(t *testing.T) {
	got := CheckUpperLevels("Page age", int64(999999), render, nil)
	assert.Equal(t, []types.CheckResult{types.Details(types.Ok, "Page age: 999999 seconds")}, got)
}

func TestCheckLowerLevelsWarn(t *testing.T) {
	levels := types.WarnLowerLevel(int64(30))
	got := CheckLowerLevels("Cert expiry", int64(10), render, &levels)
	want := "Cert expiry: 10 seconds (warn below 30 seconds)"
	assert.Equal(t, []types.CheckResult{
		types.Summary(types.Warn, want),
		types.Details(types.Warn, want),
	}, got)
}

func TestNotice(t *testing.T) {
	assert.Equal(t, []types.CheckResult{types.Details(types.Ok, "fine")}, Notice(types.Ok, "fine"))
	assert.Equal(t, []types.CheckResult{
		types.Summary(types.Crit, "bad"),
		types.Details(types.Crit, "bad"),
	}, Notice(types.Crit, "bad"))
}

func TestMaxStateUnknownAlwaysWins(t *testing.T) {
	assert.Equal(t, types.Unknown, types.MaxState(types.Crit, types.Unknown))
	assert.Equal(t, types.Unknown, types.MaxState(types.Unknown, types.Ok))
	assert.Equal(t, types.Crit, types.MaxState(types.Warn, types.Crit))
}
