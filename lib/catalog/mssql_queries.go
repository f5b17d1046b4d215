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

import "github.com/checkmk/agent-collectors/api/types"

// MSSQL is the in-repo catalog for the SQL Server engine. The version
// floors and the "legacy" counter-query split below are preserved
// as-is, with no reinterpretation of why a given floor was chosen.
var MSSQL = buildMSSQL()

func v(major, minor, build int) *types.Version {
	ver := types.Version{Major: major, Minor: minor, Build: build}
	return &ver
}

func buildMSSQL() Catalog {
	c := make(Catalog)

	c.Register("InstanceProperties", Entry{Text: `
SELECT
    SERVERPROPERTY('ProductVersion') AS product_version,
    SERVERPROPERTY('ProductLevel')   AS product_level,
    SERVERPROPERTY('Edition')        AS edition,
    SERVERPROPERTY('InstanceName')   AS instance_name
`})

	c.Register("DatabaseNames", Entry{Text: `
SELECT name FROM sys.databases WHERE state = 0 ORDER BY name
`})

	// Legacy counter query for pre-2012 engines uses sysperfinfo; modern
	// engines use sys.dm_os_performance_counters.
	c.Register("Counters", Entry{Floor: v(11, 0, 0), Text: `
SELECT GETUTCDATE() AS utc_date;
SELECT object_name, counter_name, instance_name, cntr_value
FROM sys.dm_os_performance_counters
`})
	c.Register("Counters", Entry{Text: `
SELECT GETUTCDATE() AS utc_date;
SELECT object_name, counter_name, instance_name, cntr_value
FROM sysperfinfo
`})

	c.Register("CounterEntries", Entry{Text: `
SELECT object_name, counter_name, instance_name, cntr_value
FROM sys.dm_os_performance_counters
WHERE object_name = @object_name
`})

	c.Register("Backup", Entry{Text: `
SELECT
    d.name                                   AS database_name,
    MAX(b.backup_finish_date)                AS last_backup_date,
    DATEDIFF(SECOND, MAX(b.backup_finish_date), GETDATE()) AS backup_age,
    b.type                                   AS backup_type
FROM sys.databases d
LEFT JOIN msdb.dbo.backupset b ON b.database_name = d.name
GROUP BY d.name, b.type
`})
	c.Register("Backup", Entry{Edition: types.EditionAzure, Text: ``})

	c.Register("BlockedSessions", Entry{Text: `
SELECT
    session_id, wait_duration_ms, wait_type, blocking_session_id
FROM sys.dm_os_waiting_tasks
WHERE blocking_session_id IS NOT NULL AND blocking_session_id <> 0
`})

	c.Register("TableSpaces", Entry{Text: `
SELECT
    DB_NAME() AS database_name,
    SUM(size) * 8 * 1024 AS size_bytes,
    SUM(FILEPROPERTY(name, 'SpaceUsed')) * 8 * 1024 AS used_bytes
FROM sys.database_files
`})

	c.Register("SpaceUsedSimple", Entry{Text: `
EXEC sp_spaceused
`})

	c.Register("TransactionLogs", Entry{Text: `
SELECT
    DB_NAME() AS database_name,
    name AS log_name,
    size * 8 * 1024 AS size_bytes,
    CAST(FILEPROPERTY(name, 'SpaceUsed') AS BIGINT) * 8 * 1024 AS used_bytes
FROM sys.database_files
WHERE type_desc = 'LOG'
`})

	c.Register("Datafiles", Entry{Text: `
SELECT
    DB_NAME() AS database_name,
    name AS file_name,
    physical_name,
    size * 8 * 1024 AS size_bytes,
    max_size
FROM sys.database_files
WHERE type_desc = 'ROWS'
`})

	c.Register("Databases", Entry{Text: `
SELECT
    name,
    state_desc,
    recovery_model_desc,
    DATABASEPROPERTYEX(name, 'Status') AS status,
    is_auto_close_on,
    is_auto_shrink_on
FROM sys.databases
`})

	c.Register("IsClustered", Entry{Text: `
SELECT SERVERPROPERTY('IsClustered') AS is_clustered
`})

	c.Register("ClusterNodes", Entry{Text: `
SELECT NodeName FROM sys.dm_os_cluster_nodes
`})

	c.Register("ClusterActiveNodes", Entry{Text: `
SELECT SERVERPROPERTY('ComputerNamePhysicalNetBIOS') AS active_node
`})

	c.Register("Connections", Entry{Text: `
SELECT
    DB_NAME(dbid) AS database_name,
    COUNT(dbid) AS number_of_connections
FROM sys.sysprocesses
WHERE dbid > 0
GROUP BY dbid
`})

	c.Register("ComputerName", Entry{Text: `
SELECT SERVERPROPERTY('ComputerNamePhysicalNetBIOS') AS computer_name
`})

	c.Register("UTC", Entry{Text: `
SELECT GETUTCDATE() AS utc_date
`})

	c.Register("WinRegistryInstances", Entry{Text: `
SELECT value_name AS instance_name, value_data AS instance_id
FROM sys.dm_server_registry
WHERE registry_key = 'HKEY_LOCAL_MACHINE\SOFTWARE\Microsoft\Microsoft SQL Server\Instance Names\SQL'
`})
	c.Register("Wow64_32RegistryInstances", Entry{Text: `
SELECT value_name AS instance_name, value_data AS instance_id
FROM sys.dm_server_registry
WHERE registry_key = 'HKEY_LOCAL_MACHINE\SOFTWARE\Wow6432Node\Microsoft\Microsoft SQL Server\Instance Names\SQL'
`})

	c.Register("Jobs", Entry{Text: `
SELECT
    j.name AS job_name,
    h.run_status,
    h.run_date,
    h.run_time,
    h.run_duration
FROM msdb.dbo.sysjobs j
LEFT JOIN msdb.dbo.sysjobhistory h ON h.job_id = j.job_id AND h.step_id = 0
`})
	c.Register("Jobs", Entry{Edition: types.EditionAzure, Text: ``})

	c.Register("Mirroring", Entry{Text: `
SELECT
    DB_NAME(database_id) AS database_name,
    mirroring_state_desc,
    mirroring_role_desc,
    mirroring_safety_level_desc,
    mirroring_partner_instance
FROM sys.database_mirroring
WHERE mirroring_guid IS NOT NULL
`})

	c.Register("AvailabilityGroups", Entry{Floor: v(11, 0, 0), Text: `
SELECT
    ag.name AS ag_name,
    ars.role_desc,
    adc.database_name,
    drs.synchronization_state_desc,
    drs.synchronization_health_desc
FROM sys.availability_groups ag
JOIN sys.dm_hadr_availability_replica_states ars ON ars.group_id = ag.group_id
JOIN sys.availability_databases_cluster adc ON adc.group_id = ag.group_id
JOIN sys.dm_hadr_database_replica_states drs ON drs.group_id = ag.group_id
`})

	return c
}
