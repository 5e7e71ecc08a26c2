package server

import (
	"encoding/json"
	"net/http"
	"sort"
	"testing"

	"github.com/malbeclabs/sensorlake/internal/ingest"
	"github.com/malbeclabs/sensorlake/internal/samples"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/require"
)

func connectClient(t *testing.T, srv *Server) *mcp.ClientSession {
	t.Helper()

	serverTransport, clientTransport := mcp.NewInMemoryTransports()
	ss, err := srv.MCP().Connect(t.Context(), serverTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { ss.Close() })

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "1.0.0"}, nil)
	cs, err := client.Connect(t.Context(), clientTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { cs.Close() })
	return cs
}

func ingestSamples(t *testing.T, srv *Server, names ...string) {
	t.Helper()
	for _, name := range names {
		rr := serve(srv, http.MethodPost, ingest.WebhookPath, samples.MustLoad(name))
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	}
}

type toolCall struct {
	text    string
	isError bool
	out     ToolOutput
}

func callTool(t *testing.T, cs *mcp.ClientSession, name string, args map[string]any) toolCall {
	t.Helper()

	if args == nil {
		args = map[string]any{}
	}
	res, err := cs.CallTool(t.Context(), &mcp.CallToolParams{Name: name, Arguments: args})
	require.NoError(t, err)
	require.NotEmpty(t, res.Content)

	text, ok := res.Content[0].(*mcp.TextContent)
	require.True(t, ok, "expected text content, got %T", res.Content[0])

	call := toolCall{text: text.Text, isError: res.IsError}
	if res.StructuredContent != nil {
		b, err := json.Marshal(res.StructuredContent)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(b, &call.out))
	}
	return call
}

func TestSensorLake_Server_Tools_List(t *testing.T) {
	t.Parallel()

	cs := connectClient(t, newTestServer(t, ""))

	res, err := cs.ListTools(t.Context(), nil)
	require.NoError(t, err)

	names := make([]string, 0, len(res.Tools))
	for _, tool := range res.Tools {
		names = append(names, tool.Name)
		require.NotEmpty(t, tool.Description, tool.Name)
	}
	sort.Strings(names)
	require.Equal(t, []string{
		"describe_schema",
		"get_alerts",
		"get_device_details",
		"get_event_log",
		"get_facility_summary",
		"get_gateway_status",
		"get_latest_readings",
		"get_reading_history",
		"list_devices",
		"query_sensor_data",
	}, names)
}

func TestSensorLake_Server_Tools_EmptyStore(t *testing.T) {
	t.Parallel()

	cs := connectClient(t, newTestServer(t, ""))

	tests := []struct {
		tool string
		args map[string]any
		want string
	}{
		{"list_devices", nil, "No devices found matching the criteria."},
		{"get_device_details", map[string]any{"device_id": "missing"}, "Device missing not found."},
		{"get_latest_readings", map[string]any{"device_id": "missing"}, "No readings found for device missing."},
		{"get_reading_history", map[string]any{"device_id": "missing", "sensor_type": "temp"}, "No readings found for device missing with type 'temp'."},
		{"get_alerts", nil, "No alerts found matching the criteria."},
		{"query_sensor_data", map[string]any{"filter": "type = 'temp'"}, "No results found for the given query."},
		{"get_event_log", nil, "No events found."},
		{"get_gateway_status", nil, "No gateway pings recorded yet."},
	}
	for _, tt := range tests {
		call := callTool(t, cs, tt.tool, tt.args)
		require.False(t, call.isError, tt.tool)
		require.Equal(t, tt.want, call.text, tt.tool)
		require.Equal(t, 0, call.out.Count, tt.tool)
	}
}

func TestSensorLake_Server_Tools_AfterIngest(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, "")
	ingestSamples(t, srv, samples.Names...)
	cs := connectClient(t, srv)

	call := callTool(t, cs, "list_devices", map[string]any{"company_name": "riverside"})
	require.Equal(t, 2, call.out.Count)
	require.Contains(t, call.text, "Found 2 device(s):")
	require.Contains(t, call.text, samples.UplinkDeviceID)
	require.Contains(t, call.text, samples.AlertDeviceID)
	require.NotContains(t, call.text, samples.PingDeviceID)

	call = callTool(t, cs, "list_devices", map[string]any{"company_name": "nobody"})
	require.Equal(t, 0, call.out.Count)

	call = callTool(t, cs, "get_device_details", map[string]any{"device_id": samples.UplinkDeviceID})
	require.Equal(t, 1, call.out.Count)
	require.Contains(t, call.text, "- device_id: "+samples.UplinkDeviceID)
	require.Contains(t, call.text, "- total_readings: 5")
	require.Contains(t, call.text, "- total_alerts: 0")

	call = callTool(t, cs, "get_latest_readings", map[string]any{"device_id": samples.UplinkDeviceID})
	require.Equal(t, 5, call.out.Count)
	require.Contains(t, call.text, "**Temperature**: 22.11 c (channel 3, at 2021-02-24T19:49:29.569Z)")

	call = callTool(t, cs, "get_reading_history", map[string]any{"device_id": samples.UplinkDeviceID, "sensor_type": "temp"})
	require.Equal(t, 1, call.out.Count)
	require.Contains(t, call.text, "(type: temp), 1 records:")

	call = callTool(t, cs, "get_alerts", nil)
	require.Equal(t, 1, call.out.Count)
	require.Contains(t, call.text, "[TRIGGERED] **Water Leak Detected - Mechanical Room B**")

	call = callTool(t, cs, "get_alerts", map[string]any{"device_id": samples.UplinkDeviceID, "triggered_only": false})
	require.Equal(t, 0, call.out.Count)

	call = callTool(t, cs, "get_facility_summary", nil)
	require.Equal(t, 2, call.out.Count)
	require.Contains(t, call.text, "- Total devices: 2")
	require.Contains(t, call.text, "- Total sensor readings: 5")
	require.Contains(t, call.text, "- Active alerts: 1")

	call = callTool(t, cs, "query_sensor_data", map[string]any{"filter": "type = 'temp' AND value > 20"})
	require.False(t, call.isError)
	require.Equal(t, 1, call.out.Count)
	require.Contains(t, call.text, "Temperature = 22.11 c")

	call = callTool(t, cs, "get_event_log", map[string]any{"limit": 2})
	require.Equal(t, 2, call.out.Count)
	require.Contains(t, call.text, "[ping]")
	require.Contains(t, call.text, "[alert]")
	require.NotContains(t, call.text, "[uplink]")

	call = callTool(t, cs, "get_gateway_status", nil)
	require.Equal(t, 1, call.out.Count)
	require.Contains(t, call.text, samples.PingDeviceID)
}

func TestSensorLake_Server_Tools_QuerySensorData_InvalidFilter(t *testing.T) {
	t.Parallel()

	cs := connectClient(t, newTestServer(t, ""))

	call := callTool(t, cs, "query_sensor_data", map[string]any{"filter": "1=1; DROP TABLE devices"})
	require.True(t, call.isError)
	require.Contains(t, call.text, "Query error:")
	require.Contains(t, call.text, "Please check your filter syntax")
	require.Contains(t, call.text, "device_id, sensor_id, name, type, value, unit, channel, ts")
}

func TestSensorLake_Server_Tools_MissingDeviceID(t *testing.T) {
	t.Parallel()

	cs := connectClient(t, newTestServer(t, ""))

	res, err := cs.CallTool(t.Context(), &mcp.CallToolParams{
		Name:      "get_latest_readings",
		Arguments: map[string]any{"device_id": "  "},
	})
	require.NoError(t, err)
	require.True(t, res.IsError)
	text, ok := res.Content[0].(*mcp.TextContent)
	require.True(t, ok)
	require.Contains(t, text.Text, "device_id is required")
}

func TestSensorLake_Server_Tools_DescribeSchema(t *testing.T) {
	t.Parallel()

	cs := connectClient(t, newTestServer(t, ""))

	call := callTool(t, cs, "describe_schema", nil)
	require.Equal(t, 5, call.out.Count)
	require.Contains(t, call.text, "**sensor_readings**")
	require.Contains(t, call.text, "- channel (VARCHAR): Channel identifier, numeric or symbolic")
}
