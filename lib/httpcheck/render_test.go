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

package httpcheck

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/checkmk/agent-collectors/api/types"
)

func TestAggregateStateTakesWorstNonMetricState(t *testing.T) {
	results := []types.CheckResult{
		types.Details(types.Ok, "fine"),
		types.Summary(types.Warn, "slow"),
		types.MetricResult(types.Metric{Name: "time", Value: 0.5}),
	}
	assert.Equal(t, types.Warn, AggregateState(results))
}

func TestAggregateStateEmptyIsOk(t *testing.T) {
	assert.Equal(t, types.Ok, AggregateState(nil))
}

func TestRenderJoinsSummariesAndAppendsPerfdata(t *testing.T) {
	results := []types.CheckResult{
		types.Summary(types.Ok, "Status: 200 OK"),
		types.Details(types.Ok, "Status: 200 OK"),
		types.MetricResult(types.Metric{Name: "time", Value: 0.123, Unit: "s"}),
	}
	got := Render(results)
	assert.Equal(t, "Status: 200 OK | time=0.123s;;;;\nStatus: 200 OK\n", got)
}

func TestRenderMetricWithLevels(t *testing.T) {
	warn, crit := 1.0, 2.0
	m := types.Metric{Name: "time", Value: 0.5, Unit: "s", Warn: &warn, Crit: &crit}
	assert.Equal(t, "time=0.5s;1;2;;", renderMetric(m))
}
