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

package runner

import (
	"fmt"
	"strings"

	"github.com/checkmk/agent-collectors/api/types"
	"github.com/checkmk/agent-collectors/lib/catalog"
	"github.com/checkmk/agent-collectors/lib/section"
)

func init() {
	RegisterHandler("instance", false, instanceHandler)
	RegisterHandler("counters", false, countersHandler)
	RegisterHandler("blocked_sessions", false, blockedSessionsHandler)
	RegisterHandler("databases", false, simpleQueryHandler("Databases"))
	RegisterHandler("connections", false, simpleQueryHandler("Connections"))
	RegisterHandler("jobs", false, azureAwareHandler("Jobs"))
	RegisterHandler("mirroring", false, simpleQueryHandler("Mirroring"))
	RegisterHandler("availability_groups", false, simpleQueryHandler("AvailabilityGroups"))
}

func versionOf(rc *RunContext) *types.Version {
	v := rc.Instance.Version
	return &v
}

func instanceHandler(rc *RunContext) (string, error) {
	text, err := rc.Catalog.FindQuery("InstanceProperties", versionOf(rc), "", rc.Instance.Edition)
	if err != nil {
		return "", err
	}
	answers, err := rc.Client.Query(rc.Ctx, text)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	sb.WriteString(rc.Instance.GenerateGoodStateEntry('|'))
	if len(answers) > 0 && len(answers[0].Rows) > 0 {
		row := answers[0].Rows[0]
		fmt.Fprintf(&sb, "%s|%s|%s|%s|%s\n",
			rc.Instance.Name,
			row.GetValueByName("product_version"),
			row.GetValueByName("product_level"),
			row.GetValueByName("edition"),
			row.GetValueByName("instance_name"),
		)
	}
	return sb.String(), nil
}

func countersHandler(rc *RunContext) (string, error) {
	text, err := rc.Catalog.FindQuery("Counters", versionOf(rc), "", rc.Instance.Edition)
	if err != nil {
		return "", err
	}
	answers, err := rc.Client.Query(rc.Ctx, text)
	if err != nil {
		return "", err
	}
	if len(answers) < 2 {
		return "", fmt.Errorf("counters query did not return the expected two answer blocks")
	}

	var sb strings.Builder
	for _, row := range answers[1].Rows {
		object := sanitizeIdentifier(strings.ReplaceAll(row.GetValueByName("object_name"), "$", "_"))
		counter := sanitizeIdentifier(row.GetValueByName("counter_name"))
		instance := row.GetValueByName("instance_name")
		if instance == "" {
			instance = "None"
		} else {
			instance = sanitizeIdentifier(instance)
		}
		value := row.GetValueByName("cntr_value")
		fmt.Fprintf(&sb, "%s|%s|%s|%s\n", object, counter, instance, value)
	}
	return sb.String(), nil
}

func blockedSessionsHandler(rc *RunContext) (string, error) {
	text, err := rc.Catalog.FindQuery("BlockedSessions", versionOf(rc), "", rc.Instance.Edition)
	if err != nil {
		return "", err
	}
	answers, err := rc.Client.Query(rc.Ctx, text)
	if err != nil {
		return "", err
	}
	if len(answers) == 0 || len(answers[0].Rows) == 0 {
		return rc.Instance.Name.String() + "|No blocking sessions\n", nil
	}
	var sb strings.Builder
	for _, row := range answers[0].Rows {
		fmt.Fprintf(&sb, "%s|%s|%s|%s\n",
			row.GetValueByName("session_id"),
			row.GetValueByName("wait_duration_ms"),
			row.GetValueByName("wait_type"),
			row.GetValueByName("blocking_session_id"),
		)
	}
	return sb.String(), nil
}

// simpleQueryHandler covers the single-query, row-wise formatting
// sections (databases, connections, mirroring, availability_groups):
// each row's columns are joined with '|' in column order.
func simpleQueryHandler(queryID catalog.QueryID) Handler {
	return func(rc *RunContext) (string, error) {
		text, err := rc.Catalog.FindQuery(queryID, versionOf(rc), "", rc.Instance.Edition)
		if err != nil {
			return "", err
		}
		answers, err := rc.Client.Query(rc.Ctx, text)
		if err != nil {
			return "", err
		}
		var sb strings.Builder
		if len(answers) > 0 {
			for _, row := range answers[0].Rows {
				sb.WriteString(row.GetAllColumns("|"))
				sb.WriteString("\n")
			}
		}
		return sb.String(), nil
	}
}

// azureAwareHandler implements Azure-Edition suppression rule
// for `jobs`: on Azure Edition the section emits an empty body instead
// of running the query.
func azureAwareHandler(queryID catalog.QueryID) Handler {
	inner := simpleQueryHandler(queryID)
	return func(rc *RunContext) (string, error) {
		if rc.Instance.Edition == types.EditionAzure {
			return "", nil
		}
		return inner(rc)
	}
}

// customHandler backs any section name with no built-in handler: it
// runs whatever query the user query directory provides for that name
//.
func customHandler(rc *RunContext) (string, error) {
	text, err := section.SelectQuery(catalog.Catalog{}, rc.Section, rc.UserDir, versionOf(rc), "", rc.Instance.Edition)
	if err != nil {
		return "", fmt.Errorf("no built-in or custom query for section %q", rc.Section.Name)
	}
	answers, err := rc.Client.Query(rc.Ctx, text)
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	if len(answers) > 0 {
		for _, row := range answers[0].Rows {
			sb.WriteString(row.GetAllColumns("|"))
			sb.WriteString("\n")
		}
	}
	return sb.String(), nil
}
