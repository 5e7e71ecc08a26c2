package querier

import (
	"context"
	"database/sql"
	"strings"
	"time"
)

type Device struct {
	DeviceID       string
	ThingName      string
	SensorUse      string
	DeviceTypeID   string
	DeviceTypeName string
	Manufacturer   string
	Model          string
	Codec          string
	CompanyID      *int64
	CompanyName    string
	LocationID     *int64
	LocationName   string
	LocationCity   string
	LocationState  string
	FirstSeen      time.Time
	LastSeen       time.Time
}

type DeviceDetail struct {
	Device
	TotalReadings int64
	TotalAlerts   int64
}

// DeviceFilter narrows ListDevices. Both fields are case-insensitive substring matches
// and empty fields match everything.
type DeviceFilter struct {
	Company  string
	Location string
}

const deviceColumns = `device_id, thing_name, sensor_use, device_type_id, device_type_name,
	manufacturer, model, codec, company_id, company_name,
	location_id, location_name, location_city, location_state, first_seen, last_seen`

func scanDevice(s scanner) (Device, error) {
	var d Device
	var thingName, sensorUse, typeID, typeName, manufacturer, model sql.NullString
	var codec, companyName, locName, locCity, locState sql.NullString
	var companyID, locationID sql.NullInt64
	var firstSeen, lastSeen sql.NullTime
	err := s.Scan(&d.DeviceID, &thingName, &sensorUse, &typeID, &typeName,
		&manufacturer, &model, &codec, &companyID, &companyName,
		&locationID, &locName, &locCity, &locState, &firstSeen, &lastSeen)
	if err != nil {
		return Device{}, err
	}
	d.ThingName = str(thingName)
	d.SensorUse = str(sensorUse)
	d.DeviceTypeID = str(typeID)
	d.DeviceTypeName = str(typeName)
	d.Manufacturer = str(manufacturer)
	d.Model = str(model)
	d.Codec = str(codec)
	d.CompanyID = intPtr(companyID)
	d.CompanyName = str(companyName)
	d.LocationID = intPtr(locationID)
	d.LocationName = str(locName)
	d.LocationCity = str(locCity)
	d.LocationState = str(locState)
	d.FirstSeen = timeOrZero(firstSeen)
	d.LastSeen = timeOrZero(lastSeen)
	return d, nil
}

// containsFold is the case-insensitive substring predicate used by name filters.
func containsFold(column string) string {
	return "contains(lower(coalesce(" + column + ", '')), lower(?))"
}

// ListDevices returns registered devices, most recently active first.
func (q *Querier) ListDevices(ctx context.Context, f DeviceFilter) ([]Device, error) {
	var (
		where []string
		args  []any
	)
	if f.Company != "" {
		where = append(where, containsFold("company_name"))
		args = append(args, f.Company)
	}
	if f.Location != "" {
		where = append(where, containsFold("location_name"))
		args = append(args, f.Location)
	}

	query := "SELECT " + deviceColumns + " FROM devices"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY last_seen DESC, device_id"

	return queryRows(ctx, q, scanDevice, query, args...)
}

// GetDevice returns the device with its reading and alert totals, or nil when no such
// device is registered.
func (q *Querier) GetDevice(ctx context.Context, deviceID string) (*DeviceDetail, error) {
	devices, err := queryRows(ctx, q, scanDevice, "SELECT "+deviceColumns+" FROM devices WHERE device_id = ?", deviceID)
	if err != nil {
		return nil, err
	}
	if len(devices) == 0 {
		return nil, nil
	}

	detail := &DeviceDetail{Device: devices[0]}
	detail.TotalReadings, err = q.count(ctx, "SELECT count(*) FROM sensor_readings WHERE device_id = ?", deviceID)
	if err != nil {
		return nil, err
	}
	detail.TotalAlerts, err = q.count(ctx, "SELECT count(*) FROM alerts WHERE device_id = ?", deviceID)
	if err != nil {
		return nil, err
	}
	return detail, nil
}
