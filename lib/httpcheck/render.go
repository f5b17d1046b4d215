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
	"fmt"
	"strconv"
	"strings"

	"github.com/checkmk/agent-collectors/api/types"
)

// AggregateState folds a result list's states, taking the worst one
//.
func AggregateState(results []types.CheckResult) types.State {
	state := types.Ok
	for _, r := range results {
		if r.Kind == types.ResultMetric {
			continue
		}
		state = types.MaxState(state, r.State)
	}
	return state
}

// Render prints a result list the way a Nagios-plugin-shaped check
// emits it: the summary lines on the first output line (joined with
// ", "), with all metrics rendered as performance data after a " | " on
// that line, then one line per details entry.
func Render(results []types.CheckResult) string {
	var summaries []string
	var details []string
	var perfdata []string

	for _, r := range results {
		switch r.Kind {
		case types.ResultSummary:
			summaries = append(summaries, r.Text)
		case types.ResultDetails:
			details = append(details, r.Text)
		case types.ResultMetric:
			perfdata = append(perfdata, renderMetric(r.Metric))
		}
	}

	firstLine := strings.Join(summaries, ", ")
	if len(perfdata) > 0 {
		firstLine += " | " + strings.Join(perfdata, " ")
	}

	var sb strings.Builder
	sb.WriteString(firstLine)
	sb.WriteString("\n")
	for _, d := range details {
		sb.WriteString(d)
		sb.WriteString("\n")
	}
	return sb.String()
}

func renderMetric(m types.Metric) string {
	value := strconv.FormatFloat(m.Value, 'f', -1, 64)
	warn, crit, lower, upper := "", "", "", ""
	if m.Warn != nil {
		warn = strconv.FormatFloat(*m.Warn, 'f', -1, 64)
	}
	if m.Crit != nil {
		crit = strconv.FormatFloat(*m.Crit, 'f', -1, 64)
	}
	if m.Lower != nil {
		lower = strconv.FormatFloat(*m.Lower, 'f', -1, 64)
	}
	if m.Upper != nil {
		upper = strconv.FormatFloat(*m.Upper, 'f', -1, 64)
	}
	return fmt.Sprintf("%s=%s%s;%s;%s;%s;%s", m.Name, value, m.Unit, warn, crit, lower, upper)
}
