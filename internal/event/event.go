package event

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

var (
	ErrInvalidJSON      = errors.New("invalid JSON")
	ErrMissingEventType = errors.New("missing event_type")
)

// Kind is the normalization branch an event is routed to.
type Kind string

const (
	KindUplink  Kind = "uplink"
	KindAlert   Kind = "alert"
	KindPing    Kind = "ping"
	KindUnknown Kind = "unknown"
)

// Event is a single parsed webhook delivery. Type is the declared event_type as sent by
// the producer; Raw is the delivery body exactly as received.
type Event struct {
	Type string
	Raw  string

	doc object
}

// Parse decodes a webhook body. The body must be a single JSON object carrying a
// non-empty event_type. Numbers are kept as json.Number so large identifiers and
// epoch-millisecond timestamps survive without float rounding.
func Parse(body []byte) (*Event, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: unexpected data after top-level value", ErrInvalidJSON)
	}

	doc, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: body must be a JSON object", ErrInvalidJSON)
	}

	typ := strings.TrimSpace(object(doc).text("event_type"))
	if typ == "" {
		return nil, ErrMissingEventType
	}

	return &Event{
		Type: typ,
		Raw:  string(body),
		doc:  doc,
	}, nil
}

// Kind maps the declared type onto a normalization branch. Types the service does not
// recognize route to KindUnknown and are only kept in the raw event log.
func (e *Event) Kind() Kind {
	switch Kind(e.Type) {
	case KindUplink, KindAlert, KindPing:
		return Kind(e.Type)
	default:
		return KindUnknown
	}
}

func (e *Event) data() object {
	return e.doc.obj("event_data")
}

// DeviceID resolves the device identity of an uplink or alert: the event data's
// device_id, then its thingId, then the numeric id of the device object. It returns ""
// when none is present.
func (e *Event) DeviceID() string {
	ed := e.data()
	if id := ed.text("device_id"); id != "" {
		return id
	}
	if id := ed.text("thingId"); id != "" {
		return id
	}
	return e.doc.obj("device").text("id")
}

// Device is the metadata snapshot recorded the first time a device is seen.
type Device struct {
	ID             string
	ThingName      *string
	SensorUse      string
	DeviceTypeID   *string
	DeviceTypeName *string
	Manufacturer   *string
	Model          *string
	Codec          *string
	CompanyID      *int64
	CompanyName    *string
	LocationID     *int64
	LocationName   *string
	LocationCity   *string
	LocationState  *string
}

// Device extracts the device, device type, company and location metadata carried by the
// event. Missing objects and fields are left nil.
func (e *Event) Device() Device {
	device := e.doc.obj("device")
	deviceType := e.doc.obj("device_type")
	company := e.doc.obj("company")
	location := e.doc.obj("location")

	return Device{
		ID:             e.DeviceID(),
		ThingName:      device.optText("thing_name"),
		SensorUse:      device.text("sensor_use"),
		DeviceTypeID:   deviceType.optText("id"),
		DeviceTypeName: deviceType.optText("name"),
		Manufacturer:   deviceType.optText("manufacturer"),
		Model:          deviceType.optText("model"),
		Codec:          deviceType.optText("codec"),
		CompanyID:      company.optInt("id"),
		CompanyName:    company.optText("name"),
		LocationID:     location.optInt("id"),
		LocationName:   location.optText("name"),
		LocationCity:   location.optText("city"),
		LocationState:  location.optText("state"),
	}
}

// Reading is one entry of an uplink's payload list.
type Reading struct {
	SensorID  *string
	Name      *string
	Type      *string
	Value     *float64
	Unit      *string
	Channel   *string
	Timestamp *int64
}

// Readings returns one Reading per payload entry of an uplink. Entries that are not JSON
// objects are skipped; an absent payload yields no readings.
func (e *Event) Readings() []Reading {
	entries := e.data().list("payload")
	readings := make([]Reading, 0, len(entries))
	for _, entry := range entries {
		m, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		r := object(m)
		readings = append(readings, Reading{
			SensorID:  r.optText("sensor_id"),
			Name:      r.optText("name"),
			Type:      r.optText("type"),
			Value:     toFloat(r["value"]),
			Unit:      r.optText("unit"),
			Channel:   r.optText("channel"),
			Timestamp: toEpochMillis(r["timestamp"]),
		})
	}
	return readings
}

// Alert is the normalized form of an alert state change.
type Alert struct {
	SensorID  *string
	RuleID    *string
	Title     *string
	Triggered bool
	Value     string
	Timestamp *int64
}

func (e *Event) Alert() Alert {
	ed := e.data()
	return Alert{
		SensorID:  ed.optText("sensorId"),
		RuleID:    ed.optText("ruleId"),
		Title:     ed.optText("title"),
		Triggered: toBool(ed["triggered"]),
		Value:     toText(ed["value"]),
		Timestamp: toEpochMillis(ed["timestamp"]),
	}
}

// Ping is a gateway keepalive.
type Ping struct {
	DeviceID  string
	ThingName *string
	Timestamp *int64
}

// Ping extracts the keepalive fields. Unlike DeviceID it does not consult thingId: the
// gateway is identified by the event data's device_id, falling back to the device
// object's id.
func (e *Event) Ping() Ping {
	ed := e.data()
	device := e.doc.obj("device")

	id := ed.text("device_id")
	if id == "" {
		id = device.text("id")
	}
	return Ping{
		DeviceID:  id,
		ThingName: device.optText("thing_name"),
		Timestamp: toEpochMillis(ed["timestamp"]),
	}
}
