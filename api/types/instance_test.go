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

package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGenerateStateEntries(t *testing.T) {
	inst := SqlInstance{Name: NewInstanceName("test_name")}

	assert.Equal(t, "MSSQL_TEST_NAME.state.0.bad\n", inst.GenerateBadStateEntry('.', "bad"))
	assert.Equal(t, "MSSQL_TEST_NAME.state.1.\n", inst.GenerateGoodStateEntry('.'))
}

func TestGenerateHeaderAndFooter(t *testing.T) {
	inst := SqlInstance{Name: NewInstanceName("b"), PiggybackHost: "Y"}

	assert.Equal(t, "<<<<y>>>>\n", inst.GenerateHeader())
	assert.Equal(t, "<<<<>>>>\n", inst.GenerateFooter())
}

func TestGenerateHeaderAndFooterWithoutPiggyback(t *testing.T) {
	inst := SqlInstance{Name: NewInstanceName("b")}

	assert.Equal(t, "", inst.GenerateHeader())
	assert.Equal(t, "", inst.GenerateFooter())
}

func TestGenerateLeadingEntry(t *testing.T) {
	inst := SqlInstance{
		Name:    NewInstanceName("name"),
		Version: Version{Major: 15, Minor: 0, Build: 4},
		Edition: Edition("edition"),
	}
	assert.Equal(t, "MSSQL_NAME.config.15.0.4.edition.\n", inst.GenerateLeadingEntry('.'))

	inst.ClusterName = "cluster"
	assert.Equal(t, "MSSQL_NAME.config.15.0.4.edition.cluster\n", inst.GenerateLeadingEntry('.'))
}
