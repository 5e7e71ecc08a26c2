package store

// schema is applied in order on startup. Every statement is idempotent.
//
// Readings and alerts reference devices by device_id without a REFERENCES clause:
// the ingest transaction always writes the device row before any row that points at
// it, and DuckDB restricts updates to rows referenced by a foreign key.
var schema = []string{
	`CREATE SEQUENCE IF NOT EXISTS events_id_seq`,
	`CREATE TABLE IF NOT EXISTS events (
		id BIGINT PRIMARY KEY DEFAULT nextval('events_id_seq'),
		event_type VARCHAR NOT NULL,
		received_at TIMESTAMP NOT NULL,
		raw_json VARCHAR NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS devices (
		device_id VARCHAR PRIMARY KEY,
		thing_name VARCHAR,
		sensor_use VARCHAR,
		device_type_id VARCHAR,
		device_type_name VARCHAR,
		manufacturer VARCHAR,
		model VARCHAR,
		codec VARCHAR,
		company_id BIGINT,
		company_name VARCHAR,
		location_id BIGINT,
		location_name VARCHAR,
		location_city VARCHAR,
		location_state VARCHAR,
		first_seen TIMESTAMP NOT NULL,
		last_seen TIMESTAMP NOT NULL
	)`,
	`CREATE SEQUENCE IF NOT EXISTS sensor_readings_id_seq`,
	`CREATE TABLE IF NOT EXISTS sensor_readings (
		id BIGINT PRIMARY KEY DEFAULT nextval('sensor_readings_id_seq'),
		device_id VARCHAR NOT NULL,
		sensor_id VARCHAR,
		name VARCHAR,
		type VARCHAR,
		value DOUBLE,
		unit VARCHAR,
		channel VARCHAR,
		ts BIGINT,
		received_at TIMESTAMP NOT NULL
	)`,
	`CREATE SEQUENCE IF NOT EXISTS alerts_id_seq`,
	`CREATE TABLE IF NOT EXISTS alerts (
		id BIGINT PRIMARY KEY DEFAULT nextval('alerts_id_seq'),
		device_id VARCHAR NOT NULL,
		sensor_id VARCHAR,
		rule_id VARCHAR,
		title VARCHAR,
		triggered INTEGER NOT NULL,
		value VARCHAR,
		ts BIGINT,
		received_at TIMESTAMP NOT NULL
	)`,
	`CREATE SEQUENCE IF NOT EXISTS gateway_pings_id_seq`,
	`CREATE TABLE IF NOT EXISTS gateway_pings (
		id BIGINT PRIMARY KEY DEFAULT nextval('gateway_pings_id_seq'),
		device_id VARCHAR NOT NULL,
		thing_name VARCHAR,
		ts BIGINT,
		received_at TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_readings_device ON sensor_readings(device_id)`,
	`CREATE INDEX IF NOT EXISTS idx_readings_ts ON sensor_readings(ts)`,
	`CREATE INDEX IF NOT EXISTS idx_readings_device_channel ON sensor_readings(device_id, channel)`,
	`CREATE INDEX IF NOT EXISTS idx_alerts_device ON alerts(device_id)`,
	`CREATE INDEX IF NOT EXISTS idx_alerts_ts ON alerts(ts)`,
	`CREATE INDEX IF NOT EXISTS idx_events_type ON events(event_type)`,
}
