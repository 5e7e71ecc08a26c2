package querier

type TableSchema struct {
	Name        string       `json:"name"`
	Description string       `json:"description,omitempty"`
	Columns     []ColumnInfo `json:"columns"`
}

type ColumnInfo struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
}

// Tables describes the store for callers composing filters or reading tool output.
func Tables() []TableSchema {
	return tableSchemas
}

var tableSchemas = []TableSchema{
	{
		Name:        "devices",
		Description: "One row per device ever seen on an uplink or alert. Metadata is captured on first sight; last_seen advances on every later event.",
		Columns: []ColumnInfo{
			{Name: "device_id", Type: "VARCHAR", Description: "Device identity (primary key)"},
			{Name: "thing_name", Type: "VARCHAR", Description: "Human-readable device name"},
			{Name: "sensor_use", Type: "VARCHAR", Description: "What the device monitors, e.g. HVAC Supply Air"},
			{Name: "device_type_id", Type: "VARCHAR"},
			{Name: "device_type_name", Type: "VARCHAR"},
			{Name: "manufacturer", Type: "VARCHAR"},
			{Name: "model", Type: "VARCHAR"},
			{Name: "codec", Type: "VARCHAR", Description: "Payload decoder used by the network"},
			{Name: "company_id", Type: "BIGINT"},
			{Name: "company_name", Type: "VARCHAR"},
			{Name: "location_id", Type: "BIGINT"},
			{Name: "location_name", Type: "VARCHAR"},
			{Name: "location_city", Type: "VARCHAR"},
			{Name: "location_state", Type: "VARCHAR"},
			{Name: "first_seen", Type: "TIMESTAMP", Description: "UTC time the device was registered"},
			{Name: "last_seen", Type: "TIMESTAMP", Description: "UTC time of the most recent uplink or alert"},
		},
	},
	{
		Name:        "sensor_readings",
		Description: "One row per measurement in an uplink payload. The query_sensor_data filter runs against these columns.",
		Columns: []ColumnInfo{
			{Name: "device_id", Type: "VARCHAR"},
			{Name: "sensor_id", Type: "VARCHAR"},
			{Name: "name", Type: "VARCHAR", Description: "Measurement name, e.g. Temperature"},
			{Name: "type", Type: "VARCHAR", Description: "Measurement type, e.g. temp, rel_hum, co2, batt, rssi, snr"},
			{Name: "value", Type: "DOUBLE"},
			{Name: "unit", Type: "VARCHAR", Description: "Unit code, e.g. c, p, dbm"},
			{Name: "channel", Type: "VARCHAR", Description: "Channel identifier, numeric or symbolic"},
			{Name: "ts", Type: "BIGINT", Description: "Measurement time in epoch milliseconds"},
			{Name: "received_at", Type: "TIMESTAMP"},
		},
	},
	{
		Name:        "alerts",
		Description: "One row per alert state change. triggered is 1 when the rule fired and 0 when it cleared.",
		Columns: []ColumnInfo{
			{Name: "device_id", Type: "VARCHAR"},
			{Name: "sensor_id", Type: "VARCHAR"},
			{Name: "rule_id", Type: "VARCHAR"},
			{Name: "title", Type: "VARCHAR"},
			{Name: "triggered", Type: "INTEGER"},
			{Name: "value", Type: "VARCHAR", Description: "Reading that caused the change, as text"},
			{Name: "ts", Type: "BIGINT", Description: "Epoch milliseconds"},
			{Name: "received_at", Type: "TIMESTAMP"},
		},
	},
	{
		Name:        "gateway_pings",
		Description: "Gateway keepalives. Gateways are not registered as devices.",
		Columns: []ColumnInfo{
			{Name: "device_id", Type: "VARCHAR"},
			{Name: "thing_name", Type: "VARCHAR"},
			{Name: "ts", Type: "BIGINT", Description: "Epoch milliseconds"},
			{Name: "received_at", Type: "TIMESTAMP"},
		},
	},
	{
		Name:        "events",
		Description: "Every accepted webhook delivery, verbatim, including types that are not normalized.",
		Columns: []ColumnInfo{
			{Name: "id", Type: "BIGINT"},
			{Name: "event_type", Type: "VARCHAR"},
			{Name: "received_at", Type: "TIMESTAMP"},
			{Name: "raw_json", Type: "VARCHAR"},
		},
	},
}
