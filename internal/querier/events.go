package querier

import (
	"context"
	"database/sql"
	"time"
)

type EventSummary struct {
	ID         int64
	EventType  string
	ReceivedAt time.Time
}

type GatewayPing struct {
	DeviceID   string
	ThingName  string
	Timestamp  *int64
	ReceivedAt time.Time
}

func scanEvent(s scanner) (EventSummary, error) {
	var e EventSummary
	var receivedAt sql.NullTime
	if err := s.Scan(&e.ID, &e.EventType, &receivedAt); err != nil {
		return EventSummary{}, err
	}
	e.ReceivedAt = timeOrZero(receivedAt)
	return e, nil
}

func scanPing(s scanner) (GatewayPing, error) {
	var p GatewayPing
	var thingName sql.NullString
	var ts sql.NullInt64
	var receivedAt sql.NullTime
	if err := s.Scan(&p.DeviceID, &thingName, &ts, &receivedAt); err != nil {
		return GatewayPing{}, err
	}
	p.ThingName = str(thingName)
	p.Timestamp = intPtr(ts)
	p.ReceivedAt = timeOrZero(receivedAt)
	return p, nil
}

// EventLog lists raw deliveries, most recently stored first.
func (q *Querier) EventLog(ctx context.Context, eventType string, limit int) ([]EventSummary, error) {
	query := "SELECT id, event_type, received_at FROM events"
	var args []any
	if eventType != "" {
		query += " WHERE event_type = ?"
		args = append(args, eventType)
	}
	query += " ORDER BY id DESC LIMIT ?"
	args = append(args, clampLimit(limit, DefaultEventLogLimit))

	return queryRows(ctx, q, scanEvent, query, args...)
}

// GatewayStatus lists recent gateway keepalives by producer timestamp.
func (q *Querier) GatewayStatus(ctx context.Context, limit int) ([]GatewayPing, error) {
	return queryRows(ctx, q, scanPing, `SELECT device_id, thing_name, ts, received_at
		FROM gateway_pings
		ORDER BY ts DESC NULLS LAST, id DESC
		LIMIT ?`, clampLimit(limit, DefaultGatewayLimit))
}
