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
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/checkmk/agent-collectors/api/types"
)

func TestEmitInstanceErrorShape(t *testing.T) {
	var out bytes.Buffer
	inst := types.SqlInstance{Name: types.NewInstanceName("test_name")}
	emitInstanceError(&out, inst, "bad")

	assert.Equal(t, "<<<MSSQL_TEST_NAME:sep(124)>>>\nMSSQL_TEST_NAME|state|0|bad\n", out.String())
}

func TestEmitPiggybackEndOnlyWhenPiggybackHostSet(t *testing.T) {
	var out bytes.Buffer
	emitPiggybackEnd(&out, types.SqlInstance{Name: types.NewInstanceName("a")})
	assert.Equal(t, "", out.String())

	out.Reset()
	emitPiggybackEnd(&out, types.SqlInstance{Name: types.NewInstanceName("a"), PiggybackHost: "Host"})
	assert.Equal(t, "<<<<>>>>\n", out.String())
}

func TestSanitizeIdentifier(t *testing.T) {
	assert.Equal(t, "Batch_Requests/sec", sanitizeIdentifier("Batch  Requests/sec"))
	assert.Equal(t, "None", sanitizeIdentifier("None"))
}
