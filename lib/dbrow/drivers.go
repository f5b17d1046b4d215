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

package dbrow

import (
	// Registers the "sqlserver" database/sql driver, the native TCP
	// backend for MSSQL; replaced with the gravitational fork in go.mod.
	_ "github.com/denisenkom/go-mssqldb"
	// Registers the "oracle" database/sql driver: a pure-Go client, no
	// Oracle Instant Client required.
	_ "github.com/sijms/go-ora/v2"
)
