package querier

import (
	"context"
	"database/sql"
	"strings"
	"time"
)

type Alert struct {
	DeviceID   string
	ThingName  string
	SensorID   string
	RuleID     string
	Title      string
	Triggered  bool
	Value      string
	Timestamp  *int64
	ReceivedAt time.Time
}

type AlertFilter struct {
	DeviceID      string
	TriggeredOnly bool
	Limit         int
}

func scanAlert(s scanner) (Alert, error) {
	var a Alert
	var thingName, sensorID, ruleID, title, value sql.NullString
	var triggered int64
	var ts sql.NullInt64
	var receivedAt sql.NullTime
	if err := s.Scan(&a.DeviceID, &thingName, &sensorID, &ruleID, &title, &triggered, &value, &ts, &receivedAt); err != nil {
		return Alert{}, err
	}
	a.ThingName = str(thingName)
	a.SensorID = str(sensorID)
	a.RuleID = str(ruleID)
	a.Title = str(title)
	a.Triggered = triggered != 0
	a.Value = str(value)
	a.Timestamp = intPtr(ts)
	a.ReceivedAt = timeOrZero(receivedAt)
	return a, nil
}

// Alerts returns alert state changes, newest first. Every change is its own row, so a
// rule that fired and then cleared shows up once as triggered and once as resolved.
func (q *Querier) Alerts(ctx context.Context, f AlertFilter) ([]Alert, error) {
	var (
		where []string
		args  []any
	)
	if f.DeviceID != "" {
		where = append(where, "a.device_id = ?")
		args = append(args, f.DeviceID)
	}
	if f.TriggeredOnly {
		where = append(where, "a.triggered = 1")
	}

	query := `SELECT a.device_id, d.thing_name, a.sensor_id, a.rule_id, a.title, a.triggered, a.value, a.ts, a.received_at
		FROM alerts a
		LEFT JOIN devices d ON a.device_id = d.device_id`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY a.ts DESC NULLS LAST, a.id DESC LIMIT ?"
	args = append(args, clampLimit(f.Limit, DefaultAlertsLimit))

	return queryRows(ctx, q, scanAlert, query, args...)
}
