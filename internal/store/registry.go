package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/malbeclabs/sensorlake/internal/event"
)

// upsertDevice registers d or refreshes its last_seen. Metadata is recorded only the
// first time a device is seen; later events never overwrite it.
func upsertDevice(ctx context.Context, tx *sql.Tx, d event.Device, now time.Time) (bool, error) {
	var exists int
	err := tx.QueryRowContext(ctx, `SELECT 1 FROM devices WHERE device_id = ?`, d.ID).Scan(&exists)
	switch {
	case err == nil:
		if _, err := tx.ExecContext(ctx, `UPDATE devices SET last_seen = ? WHERE device_id = ?`, now, d.ID); err != nil {
			return false, fmt.Errorf("failed to touch device %s: %w", d.ID, err)
		}
		return false, nil
	case errors.Is(err, sql.ErrNoRows):
	default:
		return false, fmt.Errorf("failed to look up device %s: %w", d.ID, err)
	}

	_, err = tx.ExecContext(ctx, `INSERT INTO devices (
			device_id, thing_name, sensor_use,
			device_type_id, device_type_name, manufacturer, model, codec,
			company_id, company_name,
			location_id, location_name, location_city, location_state,
			first_seen, last_seen
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, nullable(d.ThingName), d.SensorUse,
		nullable(d.DeviceTypeID), nullable(d.DeviceTypeName), nullable(d.Manufacturer), nullable(d.Model), nullable(d.Codec),
		nullable(d.CompanyID), nullable(d.CompanyName),
		nullable(d.LocationID), nullable(d.LocationName), nullable(d.LocationCity), nullable(d.LocationState),
		now, now,
	)
	if err != nil {
		return false, fmt.Errorf("failed to register device %s: %w", d.ID, err)
	}
	return true, nil
}
