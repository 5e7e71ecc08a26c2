package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/malbeclabs/sensorlake/internal/duck"
	"github.com/malbeclabs/sensorlake/internal/event"
)

// IngestResult describes what a single delivery wrote.
type IngestResult struct {
	EventID       int64
	Kind          event.Kind
	DeviceID      string
	DeviceCreated bool
	Readings      int
	Alerts        int
	Pings         int
}

// Ingest persists ev: the raw event row plus the normalized rows for its kind, all in
// one transaction. On error nothing is written, the raw row included.
func (s *Store) Ingest(ctx context.Context, ev *event.Event) (IngestResult, error) {
	var res IngestResult
	err := duck.RetryOnConflict(ctx, s.log, "ingest "+ev.Type, func() error {
		var err error
		res, err = s.ingest(ctx, ev)
		return err
	})
	if err != nil {
		return IngestResult{}, err
	}

	s.log.Debug("store: ingested event",
		"event_id", res.EventID,
		"event_type", ev.Type,
		"device_id", res.DeviceID,
		"device_created", res.DeviceCreated,
		"readings", res.Readings,
		"alerts", res.Alerts,
		"pings", res.Pings,
	)
	return res, nil
}

func (s *Store) ingest(ctx context.Context, ev *event.Event) (IngestResult, error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return IngestResult{}, fmt.Errorf("failed to get connection: %w", err)
	}
	defer conn.Close()

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return IngestResult{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := s.clock.Now().UTC()

	res := IngestResult{Kind: ev.Kind()}
	res.EventID, err = appendRawEvent(ctx, tx, ev.Type, ev.Raw, now)
	if err != nil {
		return IngestResult{}, err
	}

	switch res.Kind {
	case event.KindUplink:
		err = s.ingestUplink(ctx, tx, ev, now, &res)
	case event.KindAlert:
		err = s.ingestAlert(ctx, tx, ev, now, &res)
	case event.KindPing:
		err = s.ingestPing(ctx, tx, ev, now, &res)
	}
	if err != nil {
		return IngestResult{}, err
	}

	if err := tx.Commit(); err != nil {
		return IngestResult{}, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return res, nil
}

func appendRawEvent(ctx context.Context, tx *sql.Tx, eventType, raw string, now time.Time) (int64, error) {
	var id int64
	err := tx.QueryRowContext(ctx,
		`INSERT INTO events (event_type, received_at, raw_json) VALUES (?, ?, ?) RETURNING id`,
		eventType, now, raw,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert raw event: %w", err)
	}
	return id, nil
}

// resolveDevice registers or touches the device an uplink or alert belongs to. It
// returns false when the event carries no device identity.
func (s *Store) resolveDevice(ctx context.Context, tx *sql.Tx, ev *event.Event, now time.Time, res *IngestResult) (bool, error) {
	d := ev.Device()
	if d.ID == "" {
		s.log.Warn("store: event has no device identity, keeping raw event only", "event_type", ev.Type, "event_id", res.EventID)
		return false, nil
	}
	created, err := upsertDevice(ctx, tx, d, now)
	if err != nil {
		return false, err
	}
	res.DeviceID = d.ID
	res.DeviceCreated = created
	return true, nil
}

func (s *Store) ingestUplink(ctx context.Context, tx *sql.Tx, ev *event.Event, now time.Time, res *IngestResult) error {
	ok, err := s.resolveDevice(ctx, tx, ev, now, res)
	if err != nil || !ok {
		return err
	}

	readings := ev.Readings()
	if len(readings) == 0 {
		return nil
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO sensor_readings
		(device_id, sensor_id, name, type, value, unit, channel, ts, received_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare reading insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range readings {
		_, err := stmt.ExecContext(ctx,
			res.DeviceID, nullable(r.SensorID), nullable(r.Name), nullable(r.Type),
			nullable(r.Value), nullable(r.Unit), nullable(r.Channel), nullable(r.Timestamp), now,
		)
		if err != nil {
			return fmt.Errorf("failed to insert reading: %w", err)
		}
		res.Readings++
	}
	return nil
}

func (s *Store) ingestAlert(ctx context.Context, tx *sql.Tx, ev *event.Event, now time.Time, res *IngestResult) error {
	ok, err := s.resolveDevice(ctx, tx, ev, now, res)
	if err != nil || !ok {
		return err
	}

	a := ev.Alert()
	triggered := 0
	if a.Triggered {
		triggered = 1
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO alerts
		(device_id, sensor_id, rule_id, title, triggered, value, ts, received_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		res.DeviceID, nullable(a.SensorID), nullable(a.RuleID), nullable(a.Title),
		triggered, a.Value, nullable(a.Timestamp), now,
	)
	if err != nil {
		return fmt.Errorf("failed to insert alert: %w", err)
	}
	res.Alerts = 1
	return nil
}

// ingestPing records a gateway keepalive. Pings never create or touch device rows.
func (s *Store) ingestPing(ctx context.Context, tx *sql.Tx, ev *event.Event, now time.Time, res *IngestResult) error {
	p := ev.Ping()
	if p.DeviceID == "" {
		s.log.Warn("store: ping has no gateway identity, keeping raw event only", "event_id", res.EventID)
		return nil
	}
	_, err := tx.ExecContext(ctx,
		`INSERT INTO gateway_pings (device_id, thing_name, ts, received_at) VALUES (?, ?, ?, ?)`,
		p.DeviceID, nullable(p.ThingName), nullable(p.Timestamp), now,
	)
	if err != nil {
		return fmt.Errorf("failed to insert gateway ping: %w", err)
	}
	res.DeviceID = p.DeviceID
	res.Pings = 1
	return nil
}
