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

package catalog

// Oracle is the in-repo catalog for the Oracle engine: the query ids
// and the DBA_*/V$ views each one reads.
var Oracle = buildOracle()

func buildOracle() Catalog {
	c := make(Catalog)

	c.Register("Instance", Entry{Text: `
SELECT
    instance_name, host_name, version, status, database_status, logins
FROM v$instance
`})

	c.Register("AsmInstance", Entry{Text: `
SELECT
    instance_name, version, status
FROM v$instance
WHERE instance_name LIKE '+ASM%'
`})

	c.Register("Sessions", Entry{Text: `
SELECT
    COUNT(*) AS session_count,
    SUM(CASE WHEN status = 'ACTIVE' THEN 1 ELSE 0 END) AS active_count
FROM v$session
`})

	c.Register("Performance", Entry{Text: `
SELECT name, value FROM v$sysstat
`})

	c.Register("IoStats", Entry{Text: `
SELECT
    file_name, phyrds, phywrts, readtim, writetim
FROM v$filestat f
JOIN dba_data_files d ON d.file_id = f.file#
`})

	c.Register("Processes", Entry{Text: `
SELECT COUNT(*) AS process_count FROM v$process
`})

	c.Register("TsQuotas", Entry{Text: `
SELECT
    username, tablespace_name, bytes, max_bytes
FROM dba_ts_quotas
`})

	c.Register("LogSwitches", Entry{Text: `
SELECT COUNT(*) AS switches FROM v$log_history
WHERE first_time > SYSDATE - 1/24
`})

	c.Register("UndoStat", Entry{Text: `
SELECT
    undoblks, maxquerylen, ssolderrcnt, nospaceerrcnt
FROM v$undostat
WHERE ROWNUM = 1
`})

	c.Register("RecoveryStatus", Entry{Text: `
SELECT
    database_name, open_mode, log_mode, flashback_on
FROM v$database
`})

	c.Register("Rman", Entry{Text: `
SELECT
    input_type, status, start_time, end_time
FROM v$rman_backup_job_details
ORDER BY start_time DESC
`})

	c.Register("TableSpaces", Entry{Text: `
SELECT
    tablespace_name,
    SUM(bytes) AS bytes,
    SUM(maxbytes) AS max_bytes
FROM dba_data_files
GROUP BY tablespace_name
`})

	c.Register("Resumable", Entry{Text: `
SELECT
    session_id, status, error_msg
FROM dba_resumable
`})

	c.Register("SystemParameter", Entry{Text: `
SELECT name, value FROM v$parameter
`})

	c.Register("Locks", Entry{Text: `
SELECT
    session_id, lock_type, mode_held, mode_requested
FROM dba_locks
`})

	c.Register("LongActiveSessions", Entry{Text: `
SELECT
    sid, serial#, sql_id, last_call_et
FROM v$session
WHERE status = 'ACTIVE' AND last_call_et > 60
`})

	c.Register("DataGuardStats", Entry{Text: `
SELECT name, value, unit FROM v$dataguard_stats
`})

	return c
}
