package storage

import (
	_ "embed"
)

const (
	insertSessionSQL = `
INSERT INTO sessions (start_time,
                      protocol,
                      source,
                      config)
VALUES (?, ?, ?, ?)`

	selectSessionSQL = `
SELECT 
    id, 
    start_time, 
    protocol, 
    source, 
    config 
FROM sessions 
WHERE 
    id = ?`

	selectSessionsSQL = `
SELECT 
    id, 
    start_time, 
    protocol, 
    source, 
    config 
FROM sessions
ORDER BY start_time, id`

	insertRecordSQL = `
INSERT INTO records (session_id,
                     received_at,
                     protocol,
                     timestamp_ms,
                     accel_x,
                     accel_y,
                     accel_z,
                     gyro_x,
                     gyro_y,
                     gyro_z,
                     roll,
                     pitch,
                     heading,
                     altitude,
                     temperature)
VALUES `

	recordPlaceholder = "(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)"

	insertCorruptFrameSQL = `
INSERT INTO corrupt_frames (session_id,
                            received_at,
                            line,
                            reason)
VALUES (?, ?, ?, ?)`

	selectRecordsSQL = `
SELECT 
    protocol,
    timestamp_ms,
    accel_x,
    accel_y,
    accel_z,
    gyro_x,
    gyro_y,
    gyro_z,
    roll,
    pitch,
    heading,
    altitude,
    temperature
FROM records
WHERE 
    session_id = ?
    AND timestamp_ms BETWEEN ? AND ?
ORDER BY timestamp_ms, id`

	countsSQL = `
SELECT 
    (SELECT COUNT(*) FROM records WHERE session_id = ?),
    (SELECT COUNT(*) FROM corrupt_frames WHERE session_id = ?)`

	initIndexesSQL = `
CREATE INDEX IF NOT EXISTS idx_records_session_timestamp ON records (session_id, timestamp_ms);
CREATE INDEX IF NOT EXISTS idx_corrupt_frames_session ON corrupt_frames (session_id);`
)

//go:embed schema.sql
var initSchemaSQL string
