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

// Package dbrow implements a uniform result-set view over whichever
// database/sql driver a backend (native TCP, ODBC, or the pure Go
// Oracle driver) happens to be. Every backend here already speaks
// database/sql, so the "uniform view" collapses to a single type that
// formats *sql.Rows values consistently; the only per-driver branch is
// the backend switch in Open that picks the driver and DSN.
package dbrow

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// Row is one row of an Answer: the raw driver values plus their column
// names, in column order.
type Row struct {
	columns []string
	values  []any
}

// NewRow builds a Row from parallel columns/values slices, as produced by
// scanning a *sql.Rows into []any with database/sql.
func NewRow(columns []string, values []any) Row {
	return Row{columns: columns, values: values}
}

// Answer is the rows produced by one statement; a query that issues
// multiple statements yields a sequence of Answers.
type Answer struct {
	Rows []Row
}

// GetValueByIndex renders column i as text; missing or null is "".
func (r Row) GetValueByIndex(i int) string {
	if i < 0 || i >= len(r.values) {
		return ""
	}
	return renderValue(r.values[i])
}

// GetValueByName renders the named column as text; missing or null is "".
func (r Row) GetValueByName(name string) string {
	i := r.indexOf(name)
	if i < 0 {
		return ""
	}
	return r.GetValueByIndex(i)
}

// GetBigIntByIndex parses column i as a 64-bit integer; unparsable or
// missing values yield 0.
func (r Row) GetBigIntByIndex(i int) int64 {
	n, _ := strconv.ParseInt(strings.TrimSpace(r.GetValueByIndex(i)), 10, 64)
	return n
}

// GetBigIntByName is the by-name counterpart of GetBigIntByIndex.
func (r Row) GetBigIntByName(name string) int64 {
	i := r.indexOf(name)
	if i < 0 {
		return 0
	}
	return r.GetBigIntByIndex(i)
}

// GetOptionalByIndex returns nil for a SQL NULL, else the rendered text.
func (r Row) GetOptionalByIndex(i int) *string {
	if i < 0 || i >= len(r.values) || r.values[i] == nil {
		return nil
	}
	s := renderValue(r.values[i])
	return &s
}

// GetOptionalByName is the by-name counterpart of GetOptionalByIndex.
func (r Row) GetOptionalByName(name string) *string {
	i := r.indexOf(name)
	if i < 0 {
		return nil
	}
	return r.GetOptionalByIndex(i)
}

// GetAllColumns renders every column's textual form, joined by sep.
func (r Row) GetAllColumns(sep string) string {
	parts := make([]string, len(r.values))
	for i, v := range r.values {
		parts[i] = renderValue(v)
	}
	return strings.Join(parts, sep)
}

func (r Row) indexOf(name string) int {
	for i, c := range r.columns {
		if strings.EqualFold(c, name) {
			return i
		}
	}
	return -1
}

// renderValue renders a scanned driver value as text: GUIDs render
// upper-case in braces, floats use shortest round-trip decimal, nulls
// render empty, unsupported types render as "Unsupported '<debug>'".
func renderValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		if id, err := uuid.FromBytes(t); err == nil && len(t) == 16 {
			return "{" + strings.ToUpper(id.String()) + "}"
		}
		return string(t)
	case uuid.UUID:
		return "{" + strings.ToUpper(t.String()) + "}"
	case bool:
		if t {
			return "1"
		}
		return "0"
	case int:
		return strconv.Itoa(t)
	case int32:
		return strconv.FormatInt(int64(t), 10)
	case int64:
		return strconv.FormatInt(t, 10)
	case float32:
		return strconv.FormatFloat(float64(t), 'g', -1, 32)
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64)
	case *big.Rat:
		f, _ := t.Float64()
		return strconv.FormatFloat(f, 'g', -1, 64)
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprintf("Unsupported '%#v'", v)
	}
}
