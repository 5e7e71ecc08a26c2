package server

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/malbeclabs/sensorlake/internal/querier"
	"github.com/malbeclabs/sensorlake/internal/server/metrics"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const serverInstructions = `
	You are connected to a facility monitoring store fed by IoT sensor webhooks
	(temperature, humidity, CO2, battery, signal strength). Use get_facility_summary
	for an overview, list_devices to find device ids, then the per-device tools for
	readings and alerts. query_sensor_data accepts a filter expression over
	sensor_readings columns; call describe_schema first if unsure of column names.
`

// ToolOutput is the structured result of every tool. Count is the number of records
// behind the text; zero means nothing matched.
type ToolOutput struct {
	Text  string `json:"text"`
	Count int    `json:"count"`
}

type toolResult struct {
	text    string
	count   int
	isError bool
}

type ListDevicesInput struct {
	CompanyName  string `json:"company_name,omitempty" jsonschema:"Case-insensitive substring of the company name"`
	LocationName string `json:"location_name,omitempty" jsonschema:"Case-insensitive substring of the location name"`
}

type DeviceInput struct {
	DeviceID string `json:"device_id" jsonschema:"Device identifier as shown by list_devices"`
}

type ReadingHistoryInput struct {
	DeviceID   string `json:"device_id" jsonschema:"Device identifier"`
	SensorType string `json:"sensor_type,omitempty" jsonschema:"Only readings of this type, e.g. temp, rel_hum, co2, batt"`
	Limit      int    `json:"limit,omitempty" jsonschema:"Maximum rows to return (default 50)"`
}

type AlertsInput struct {
	DeviceID      string `json:"device_id,omitempty" jsonschema:"Only alerts for this device"`
	TriggeredOnly *bool  `json:"triggered_only,omitempty" jsonschema:"Only alerts that fired; defaults to true"`
	Limit         int    `json:"limit,omitempty" jsonschema:"Maximum rows to return (default 25)"`
}

type FacilitySummaryInput struct {
	CompanyName string `json:"company_name,omitempty" jsonschema:"Case-insensitive substring of the company name"`
}

type QuerySensorDataInput struct {
	Filter string `json:"filter" jsonschema:"Filter over sensor_readings, e.g. type = 'temp' AND value > 30"`
	Limit  int    `json:"limit,omitempty" jsonschema:"Maximum rows to return (default 100)"`
}

type EventLogInput struct {
	EventType string `json:"event_type,omitempty" jsonschema:"Only events with this declared type"`
	Limit     int    `json:"limit,omitempty" jsonschema:"Maximum rows to return (default 20)"`
}

type GatewayStatusInput struct {
	Limit int `json:"limit,omitempty" jsonschema:"Maximum rows to return (default 20)"`
}

type DescribeSchemaInput struct{}

func (s *Server) registerTools() error {
	q := s.cfg.Querier

	if err := addTool(s, "list_devices", `
		List registered sensor devices with type, use, location and last activity.
		Optionally filter by company or location name.`,
		func(ctx context.Context, in ListDevicesInput) (toolResult, error) {
			devices, err := q.ListDevices(ctx, querier.DeviceFilter{Company: in.CompanyName, Location: in.LocationName})
			if err != nil {
				return toolResult{}, err
			}
			return toolResult{text: querier.FormatDevices(devices), count: len(devices)}, nil
		}); err != nil {
		return err
	}

	if err := addTool(s, "get_device_details", `
		Full metadata for one device, including reading and alert totals.`,
		func(ctx context.Context, in DeviceInput) (toolResult, error) {
			id, err := requireDeviceID(in.DeviceID)
			if err != nil {
				return toolResult{}, err
			}
			d, err := q.GetDevice(ctx, id)
			if err != nil {
				return toolResult{}, err
			}
			n := 0
			if d != nil {
				n = 1
			}
			return toolResult{text: querier.FormatDeviceDetail(id, d), count: n}, nil
		}); err != nil {
		return err
	}

	if err := addTool(s, "get_latest_readings", `
		The most recent reading on each channel of a device.`,
		func(ctx context.Context, in DeviceInput) (toolResult, error) {
			id, err := requireDeviceID(in.DeviceID)
			if err != nil {
				return toolResult{}, err
			}
			readings, err := q.LatestReadings(ctx, id)
			if err != nil {
				return toolResult{}, err
			}
			return toolResult{text: querier.FormatLatestReadings(id, readings), count: len(readings)}, nil
		}); err != nil {
		return err
	}

	if err := addTool(s, "get_reading_history", `
		Recent readings for a device, newest first, optionally limited to one sensor type.`,
		func(ctx context.Context, in ReadingHistoryInput) (toolResult, error) {
			id, err := requireDeviceID(in.DeviceID)
			if err != nil {
				return toolResult{}, err
			}
			readings, err := q.ReadingHistory(ctx, id, in.SensorType, in.Limit)
			if err != nil {
				return toolResult{}, err
			}
			return toolResult{text: querier.FormatReadingHistory(id, in.SensorType, readings), count: len(readings)}, nil
		}); err != nil {
		return err
	}

	if err := addTool(s, "get_alerts", `
		Alert state changes, newest first. By default only alerts that fired are shown;
		set triggered_only to false to include resolutions.`,
		func(ctx context.Context, in AlertsInput) (toolResult, error) {
			triggeredOnly := true
			if in.TriggeredOnly != nil {
				triggeredOnly = *in.TriggeredOnly
			}
			alerts, err := q.Alerts(ctx, querier.AlertFilter{
				DeviceID:      strings.TrimSpace(in.DeviceID),
				TriggeredOnly: triggeredOnly,
				Limit:         in.Limit,
			})
			if err != nil {
				return toolResult{}, err
			}
			return toolResult{text: querier.FormatAlerts(alerts), count: len(alerts)}, nil
		}); err != nil {
		return err
	}

	if err := addTool(s, "get_facility_summary", `
		Device, reading and active alert totals with a per-location breakdown.`,
		func(ctx context.Context, in FacilitySummaryInput) (toolResult, error) {
			summary, err := q.FacilitySummary(ctx, in.CompanyName)
			if err != nil {
				return toolResult{}, err
			}
			return toolResult{text: querier.FormatFacilitySummary(summary), count: int(summary.TotalDevices)}, nil
		}); err != nil {
		return err
	}

	if err := addTool(s, "query_sensor_data", fmt.Sprintf(`
		Search sensor readings with a filter expression.

		Columns: %s.
		Operators: = != <> < <= > >= LIKE ILIKE, IN (...), IS [NOT] NULL, combined with
		AND, OR, NOT and parentheses. Strings are single-quoted. channel compares
		numerically against numbers (channel > 5) and as text against strings.
		Example: type = 'temp' AND value > 30`, strings.Join(querier.FilterColumns(), ", ")),
		func(ctx context.Context, in QuerySensorDataInput) (toolResult, error) {
			readings, err := q.QuerySensorData(ctx, in.Filter, in.Limit)
			if err != nil {
				// Filter and execution errors go back to the caller as text so it can
				// correct the expression.
				if ctx.Err() != nil {
					return toolResult{}, err
				}
				return toolResult{text: querier.FormatQueryError(err), isError: true}, nil
			}
			return toolResult{text: querier.FormatSensorData(readings), count: len(readings)}, nil
		}); err != nil {
		return err
	}

	if err := addTool(s, "get_event_log", `
		Recently received webhook events, newest first, optionally of one type.`,
		func(ctx context.Context, in EventLogInput) (toolResult, error) {
			events, err := q.EventLog(ctx, in.EventType, in.Limit)
			if err != nil {
				return toolResult{}, err
			}
			return toolResult{text: querier.FormatEventLog(events), count: len(events)}, nil
		}); err != nil {
		return err
	}

	if err := addTool(s, "get_gateway_status", `
		Recent gateway keepalive pings, newest first.`,
		func(ctx context.Context, in GatewayStatusInput) (toolResult, error) {
			pings, err := q.GatewayStatus(ctx, in.Limit)
			if err != nil {
				return toolResult{}, err
			}
			return toolResult{text: querier.FormatGatewayStatus(pings), count: len(pings)}, nil
		}); err != nil {
		return err
	}

	return addTool(s, "describe_schema", `
		Tables and columns of the sensor store.`,
		func(ctx context.Context, _ DescribeSchemaInput) (toolResult, error) {
			tables := querier.Tables()
			return toolResult{text: formatTables(tables), count: len(tables)}, nil
		})
}

func addTool[In any](s *Server, name, description string, run func(context.Context, In) (toolResult, error)) error {
	inSchema, err := jsonschema.For[In](nil)
	if err != nil {
		return fmt.Errorf("failed to create %s input schema: %w", name, err)
	}
	outSchema, err := jsonschema.For[ToolOutput](nil)
	if err != nil {
		return fmt.Errorf("failed to create %s output schema: %w", name, err)
	}

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:         name,
		Description:  description,
		InputSchema:  inSchema,
		OutputSchema: outSchema,
	}, func(ctx context.Context, _ *mcp.CallToolRequest, in In) (*mcp.CallToolResult, ToolOutput, error) {
		start := time.Now()
		res, err := run(ctx, in)
		duration := time.Since(start).Seconds()
		metrics.ToolCallDuration.WithLabelValues(name).Observe(duration)

		if err != nil {
			s.log.Error("mcp/tool: call failed", "tool", name, "error", err)
			metrics.ToolCallsTotal.WithLabelValues(name, "error").Inc()
			return nil, ToolOutput{}, err
		}

		status := "success"
		if res.isError {
			status = "invalid_input"
		}
		metrics.ToolCallsTotal.WithLabelValues(name, status).Inc()
		s.log.Debug("mcp/tool: handled call", "tool", name, "count", res.count, "duration", duration)

		out := ToolOutput{Text: res.text, Count: res.count}
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: res.text}},
			IsError: res.isError,
		}, out, nil
	})
	return nil
}

func requireDeviceID(id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", errors.New("device_id is required")
	}
	return id, nil
}

func formatTables(tables []querier.TableSchema) string {
	var b strings.Builder
	for i, t := range tables {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "**%s**", t.Name)
		if t.Description != "" {
			fmt.Fprintf(&b, ": %s", t.Description)
		}
		b.WriteString("\n")
		for _, c := range t.Columns {
			fmt.Fprintf(&b, "- %s (%s)", c.Name, c.Type)
			if c.Description != "" {
				fmt.Fprintf(&b, ": %s", c.Description)
			}
			b.WriteString("\n")
		}
	}
	return b.String()
}
