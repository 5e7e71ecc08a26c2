package querier

import (
	"context"
	"database/sql"
	"time"
)

type LocationSummary struct {
	Company        string
	Location       string
	City           string
	State          string
	DeviceCount    int64
	LatestActivity time.Time
}

// FacilitySummary pairs per-location device counts with store-wide totals. The totals
// ignore the company filter.
type FacilitySummary struct {
	TotalDevices  int64
	TotalReadings int64
	ActiveAlerts  int64
	Locations     []LocationSummary
}

func scanLocation(s scanner) (LocationSummary, error) {
	var l LocationSummary
	var company, location, city, state sql.NullString
	var latest sql.NullTime
	if err := s.Scan(&company, &location, &city, &state, &l.DeviceCount, &latest); err != nil {
		return LocationSummary{}, err
	}
	l.Company = str(company)
	l.Location = str(location)
	l.City = str(city)
	l.State = str(state)
	l.LatestActivity = timeOrZero(latest)
	return l, nil
}

// FacilitySummary groups devices by company and location. ActiveAlerts counts every
// alert row recorded in the triggered state.
func (q *Querier) FacilitySummary(ctx context.Context, company string) (*FacilitySummary, error) {
	query := `SELECT company_name, location_name, any_value(location_city), any_value(location_state),
			count(*) AS device_count, max(last_seen) AS latest_activity
		FROM devices`
	var args []any
	if company != "" {
		query += " WHERE " + containsFold("company_name")
		args = append(args, company)
	}
	query += " GROUP BY company_name, location_name ORDER BY company_name NULLS LAST, location_name NULLS LAST"

	locations, err := queryRows(ctx, q, scanLocation, query, args...)
	if err != nil {
		return nil, err
	}

	summary := &FacilitySummary{Locations: locations}
	if summary.TotalDevices, err = q.count(ctx, "SELECT count(*) FROM devices"); err != nil {
		return nil, err
	}
	if summary.TotalReadings, err = q.count(ctx, "SELECT count(*) FROM sensor_readings"); err != nil {
		return nil, err
	}
	if summary.ActiveAlerts, err = q.count(ctx, "SELECT count(*) FROM alerts WHERE triggered = 1"); err != nil {
		return nil, err
	}
	return summary, nil
}
