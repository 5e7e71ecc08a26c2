package querier

import (
	"context"
	"database/sql"
)

type Reading struct {
	DeviceID  string
	ThingName string
	SensorID  string
	Name      string
	Type      string
	Value     *float64
	Unit      string
	Channel   string
	Timestamp *int64
}

const readingColumns = `sr.device_id, d.thing_name, sr.sensor_id, sr.name, sr.type, sr.value, sr.unit, sr.channel, sr.ts`

func scanReading(s scanner) (Reading, error) {
	var r Reading
	var thingName, sensorID, name, typ, unit, channel sql.NullString
	var value sql.NullFloat64
	var ts sql.NullInt64
	if err := s.Scan(&r.DeviceID, &thingName, &sensorID, &name, &typ, &value, &unit, &channel, &ts); err != nil {
		return Reading{}, err
	}
	r.ThingName = str(thingName)
	r.SensorID = str(sensorID)
	r.Name = str(name)
	r.Type = str(typ)
	r.Value = floatPtr(value)
	r.Unit = str(unit)
	r.Channel = str(channel)
	r.Timestamp = intPtr(ts)
	return r, nil
}

// LatestReadings returns the newest reading of every channel of a device, ordered by
// channel. The newest reading is chosen per channel, never by one timestamp across the
// device, so channels that report on different schedules all appear. Exact duplicates
// from re-delivery collapse to the most recently stored row.
func (q *Querier) LatestReadings(ctx context.Context, deviceID string) ([]Reading, error) {
	return queryRows(ctx, q, scanReading, `
		SELECT `+readingColumns+`
		FROM sensor_readings sr
		INNER JOIN (
			SELECT channel, MAX(ts) AS max_ts
			FROM sensor_readings
			WHERE device_id = ?
			GROUP BY channel
		) latest ON sr.channel IS NOT DISTINCT FROM latest.channel
		        AND sr.ts IS NOT DISTINCT FROM latest.max_ts
		LEFT JOIN devices d ON sr.device_id = d.device_id
		WHERE sr.device_id = ?
		QUALIFY row_number() OVER (PARTITION BY sr.channel ORDER BY sr.id DESC) = 1
		ORDER BY TRY_CAST(sr.channel AS BIGINT) NULLS LAST, sr.channel
	`, deviceID, deviceID)
}

// ReadingHistory returns up to limit readings of a device, newest first, optionally
// restricted to one sensor type.
func (q *Querier) ReadingHistory(ctx context.Context, deviceID, sensorType string, limit int) ([]Reading, error) {
	query := `SELECT ` + readingColumns + `
		FROM sensor_readings sr
		LEFT JOIN devices d ON sr.device_id = d.device_id
		WHERE sr.device_id = ?`
	args := []any{deviceID}
	if sensorType != "" {
		query += " AND sr.type = ?"
		args = append(args, sensorType)
	}
	query += " ORDER BY sr.ts DESC NULLS LAST, sr.id DESC LIMIT ?"
	args = append(args, clampLimit(limit, DefaultHistoryLimit))

	return queryRows(ctx, q, scanReading, query, args...)
}

// QuerySensorData returns readings matching a filter expression (see ParseFilter),
// newest first. Malformed filters fail with an error wrapping ErrInvalidFilter.
func (q *Querier) QuerySensorData(ctx context.Context, expr string, limit int) ([]Reading, error) {
	f, err := ParseFilter(expr)
	if err != nil {
		return nil, err
	}

	q.log.Debug("querier: sensor data filter", "expr", expr, "sql", f.SQL, "conditions", len(f.Conditions))

	query := `SELECT ` + readingColumns + `
		FROM sensor_readings sr
		LEFT JOIN devices d ON sr.device_id = d.device_id
		WHERE ` + f.SQL + `
		ORDER BY sr.ts DESC NULLS LAST, sr.id DESC
		LIMIT ?`
	args := append(f.Args, clampLimit(limit, DefaultSensorQueryLimit))

	return queryRows(ctx, q, scanReading, query, args...)
}
