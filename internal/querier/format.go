package querier

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const notAvailable = "N/A"

func orNA(s string) string {
	if s == "" {
		return notAvailable
	}
	return s
}

// FormatEpochMillis renders a producer timestamp as UTC RFC3339 with milliseconds.
func FormatEpochMillis(ts *int64) string {
	if ts == nil || *ts == 0 {
		return notAvailable
	}
	return time.UnixMilli(*ts).UTC().Format("2006-01-02T15:04:05.000Z07:00")
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return notAvailable
	}
	return t.UTC().Format(time.RFC3339)
}

func formatValue(v *float64) string {
	if v == nil {
		return notAvailable
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

func formatMeasurement(v *float64, unit string) string {
	if unit == "" {
		return formatValue(v)
	}
	return formatValue(v) + " " + unit
}

func FormatDevices(devices []Device) string {
	if len(devices) == 0 {
		return "No devices found matching the criteria."
	}
	entries := make([]string, 0, len(devices))
	for _, d := range devices {
		entries = append(entries, fmt.Sprintf(
			"- **%s** (ID: %s)\n  Type: %s | %s %s\n  Use: %s\n  Location: %s, %s, %s\n  Company: %s | Last seen: %s",
			orNA(d.ThingName), d.DeviceID,
			orNA(d.DeviceTypeName), orNA(d.Manufacturer), orNA(d.Model),
			orNA(d.SensorUse),
			orNA(d.LocationName), orNA(d.LocationCity), orNA(d.LocationState),
			orNA(d.CompanyName), formatTime(d.LastSeen),
		))
	}
	return fmt.Sprintf("Found %d device(s):\n\n%s", len(devices), strings.Join(entries, "\n\n"))
}

func formatOptInt(n *int64) string {
	if n == nil {
		return notAvailable
	}
	return strconv.FormatInt(*n, 10)
}

func FormatDeviceDetail(deviceID string, d *DeviceDetail) string {
	if d == nil {
		return fmt.Sprintf("Device %s not found.", deviceID)
	}
	fields := []struct{ key, value string }{
		{"device_id", d.DeviceID},
		{"thing_name", orNA(d.ThingName)},
		{"sensor_use", orNA(d.SensorUse)},
		{"device_type_id", orNA(d.DeviceTypeID)},
		{"device_type_name", orNA(d.DeviceTypeName)},
		{"manufacturer", orNA(d.Manufacturer)},
		{"model", orNA(d.Model)},
		{"codec", orNA(d.Codec)},
		{"company_id", formatOptInt(d.CompanyID)},
		{"company_name", orNA(d.CompanyName)},
		{"location_id", formatOptInt(d.LocationID)},
		{"location_name", orNA(d.LocationName)},
		{"location_city", orNA(d.LocationCity)},
		{"location_state", orNA(d.LocationState)},
		{"first_seen", formatTime(d.FirstSeen)},
		{"last_seen", formatTime(d.LastSeen)},
		{"total_readings", strconv.FormatInt(d.TotalReadings, 10)},
		{"total_alerts", strconv.FormatInt(d.TotalAlerts, 10)},
	}
	lines := []string{fmt.Sprintf("**Device: %s**", orNA(d.ThingName)), ""}
	for _, f := range fields {
		lines = append(lines, fmt.Sprintf("- %s: %s", f.key, f.value))
	}
	return strings.Join(lines, "\n")
}

func FormatLatestReadings(deviceID string, readings []Reading) string {
	if len(readings) == 0 {
		return fmt.Sprintf("No readings found for device %s.", deviceID)
	}
	lines := []string{fmt.Sprintf("Latest readings for device %s:", deviceID), ""}
	for _, r := range readings {
		lines = append(lines, fmt.Sprintf("- **%s**: %s (channel %s, at %s)",
			orNA(r.Name), formatMeasurement(r.Value, r.Unit), orNA(r.Channel), FormatEpochMillis(r.Timestamp)))
	}
	return strings.Join(lines, "\n")
}

func FormatReadingHistory(deviceID, sensorType string, readings []Reading) string {
	if len(readings) == 0 {
		if sensorType != "" {
			return fmt.Sprintf("No readings found for device %s with type '%s'.", deviceID, sensorType)
		}
		return fmt.Sprintf("No readings found for device %s.", deviceID)
	}
	header := "Reading history for device " + deviceID
	if sensorType != "" {
		header += fmt.Sprintf(" (type: %s)", sensorType)
	}
	lines := []string{fmt.Sprintf("%s, %d records:", header, len(readings)), ""}
	for _, r := range readings {
		lines = append(lines, fmt.Sprintf("- %s: %s @ %s", orNA(r.Name), formatMeasurement(r.Value, r.Unit), FormatEpochMillis(r.Timestamp)))
	}
	return strings.Join(lines, "\n")
}

func FormatAlerts(alerts []Alert) string {
	if len(alerts) == 0 {
		return "No alerts found matching the criteria."
	}
	lines := []string{fmt.Sprintf("Found %d alert(s):", len(alerts)), ""}
	for _, a := range alerts {
		status := "RESOLVED"
		if a.Triggered {
			status = "TRIGGERED"
		}
		lines = append(lines, fmt.Sprintf("- [%s] **%s**\n  Device: %s (%s)\n  Value: %s | Time: %s",
			status, orNA(a.Title), orNA(a.ThingName), a.DeviceID, orNA(a.Value), FormatEpochMillis(a.Timestamp)))
	}
	return strings.Join(lines, "\n")
}

func FormatFacilitySummary(s *FacilitySummary) string {
	lines := []string{
		"**Facility Summary**",
		"",
		fmt.Sprintf("- Total devices: %d", s.TotalDevices),
		fmt.Sprintf("- Total sensor readings: %d", s.TotalReadings),
		fmt.Sprintf("- Active alerts: %d", s.ActiveAlerts),
		"",
	}
	if len(s.Locations) == 0 {
		lines = append(lines, "No locations registered yet.")
		return strings.Join(lines, "\n")
	}
	lines = append(lines, "**Locations:**")
	for _, l := range s.Locations {
		lines = append(lines, fmt.Sprintf("- %s / %s (%s, %s): %d devices, last activity: %s",
			orNA(l.Company), orNA(l.Location), orNA(l.City), orNA(l.State), l.DeviceCount, formatTime(l.LatestActivity)))
	}
	return strings.Join(lines, "\n")
}

func FormatSensorData(readings []Reading) string {
	if len(readings) == 0 {
		return "No results found for the given query."
	}
	lines := []string{fmt.Sprintf("Query results (%d rows):", len(readings)), ""}
	for _, r := range readings {
		lines = append(lines, fmt.Sprintf("- %s: %s = %s @ %s",
			orNA(r.ThingName), orNA(r.Name), formatMeasurement(r.Value, r.Unit), FormatEpochMillis(r.Timestamp)))
	}
	return strings.Join(lines, "\n")
}

// FormatQueryError is the reply for a filter that could not be parsed or executed.
func FormatQueryError(err error) string {
	return fmt.Sprintf("Query error: %v. Please check your filter syntax; available columns: %s.", err, strings.Join(FilterColumns(), ", "))
}

func FormatEventLog(events []EventSummary) string {
	if len(events) == 0 {
		return "No events found."
	}
	lines := []string{fmt.Sprintf("Event log (%d entries):", len(events)), ""}
	for _, e := range events {
		lines = append(lines, fmt.Sprintf("- [%s] ID: %d at %s", e.EventType, e.ID, formatTime(e.ReceivedAt)))
	}
	return strings.Join(lines, "\n")
}

func FormatGatewayStatus(pings []GatewayPing) string {
	if len(pings) == 0 {
		return "No gateway pings recorded yet."
	}
	lines := []string{"**Gateway Status (recent pings):**", ""}
	for _, p := range pings {
		lines = append(lines, fmt.Sprintf("- **%s** (ID: %s), pinged at %s", orNA(p.ThingName), p.DeviceID, FormatEpochMillis(p.Timestamp)))
	}
	return strings.Join(lines, "\n")
}
