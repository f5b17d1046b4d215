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

// Package checks implements the shared check-result and threshold-level
// helpers: folding values against upper/lower levels into the
// CheckResult lines the runner and the HTTP probe both emit.
package checks

import (
	"fmt"

	"github.com/checkmk/agent-collectors/api/types"
)

// Evaluate returns the state that `x` falls into given `b`, or nil if `x`
// is within bounds.
func Evaluate[T int | int64 | float64](b types.Bounds[T], x T, outOfBounds types.State) *types.State {
	if b.HasLower && x < *b.Lower {
		return &outOfBounds
	}
	if b.HasUpper && x > *b.Upper {
		return &outOfBounds
	}
	return nil
}

// CheckUpperLevels compares value against levels (a quantity that should
// stay low) and renders `render(value)` into the result text. When the
// value is within levels it emits only a Details line at Ok; when a
// threshold is crossed it emits a Summary+Details pair at the crossed
// state, with the threshold spelled out in the text.
func CheckUpperLevels[T int | int64 | float64](label string, value T, render func(T) string, levels *types.UpperLevels[T]) []types.CheckResult {
	rendered := render(value)
	if levels == nil {
		return []types.CheckResult{types.Details(types.Ok, fmt.Sprintf("%s: %s", label, rendered))}
	}
	state := types.Ok
	var threshold T
	word := ""
	if levels.HasCrit && value > *levels.Crit {
		state, threshold, word = types.Crit, *levels.Crit, "crit"
	} else if value > levels.Warn {
		state, threshold, word = types.Warn, levels.Warn, "warn"
	}
	if state == types.Ok {
		return []types.CheckResult{types.Details(types.Ok, fmt.Sprintf("%s: %s", label, rendered))}
	}
	text := fmt.Sprintf("%s: %s (%s at %s)", label, rendered, word, render(threshold))
	return []types.CheckResult{
		types.Summary(state, text),
		types.Details(state, text),
	}
}

// CheckLowerLevels is symmetric to CheckUpperLevels for a quantity that
// should stay high.
func CheckLowerLevels[T int | int64 | float64](label string, value T, render func(T) string, levels *types.LowerLevels[T]) []types.CheckResult {
	rendered := render(value)
	if levels == nil {
		return []types.CheckResult{types.Details(types.Ok, fmt.Sprintf("%s: %s", label, rendered))}
	}
	state := types.Ok
	var threshold T
	word := ""
	if levels.HasCrit && value < *levels.Crit {
		state, threshold, word = types.Crit, *levels.Crit, "crit"
	} else if value < levels.Warn {
		state, threshold, word = types.Warn, levels.Warn, "warn"
	}
	if state == types.Ok {
		return []types.CheckResult{types.Details(types.Ok, fmt.Sprintf("%s: %s", label, rendered))}
	}
	text := fmt.Sprintf("%s: %s (%s below %s)", label, rendered, word, render(threshold))
	return []types.CheckResult{
		types.Summary(state, text),
		types.Details(state, text),
	}
}

// Notice returns a Details-only result when state is Ok, else a
// Summary+Details pair — the shared shape the probe uses for most of
// its non-threshold findings.
func Notice(state types.State, text string) []types.CheckResult {
	if state == types.Ok {
		return []types.CheckResult{types.Details(types.Ok, text)}
	}
	return []types.CheckResult{
		types.Summary(state, text),
		types.Details(state, text),
	}
}
