package cli

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/malbeclabs/sensorlake/config"
	"github.com/malbeclabs/sensorlake/internal/duck"
	"github.com/malbeclabs/sensorlake/internal/event"
	"github.com/malbeclabs/sensorlake/internal/ingest"
	"github.com/malbeclabs/sensorlake/internal/samples"
	"github.com/malbeclabs/sensorlake/internal/store"
	"github.com/stretchr/testify/require"
)

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// newSampleDB writes every bundled sample into a fresh database file and closes it.
func newSampleDB(t *testing.T) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "lake.duckdb")
	db, err := duck.NewDB(t.Context(), path, testLogger)
	require.NoError(t, err)

	st, err := store.NewStore(store.StoreConfig{Logger: testLogger, DB: db})
	require.NoError(t, err)
	require.NoError(t, st.CreateTablesIfNotExists(t.Context()))
	for _, name := range samples.Names {
		ev, err := event.Parse(samples.MustLoad(name))
		require.NoError(t, err)
		_, err = st.Ingest(t.Context(), ev)
		require.NoError(t, err)
	}
	require.NoError(t, db.Close())
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var stdout, stderr bytes.Buffer
	cmd := NewRootCmd(BuildInfo{Version: "test", Commit: "abc", Date: "today"}, &stdout, &stderr)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(t.Context())
	return stdout.String(), err
}

func TestSensorLake_CLI_Inspect(t *testing.T) {
	t.Parallel()

	path := newSampleDB(t)

	tests := []struct {
		name string
		args []string
		want []string
	}{
		{
			name: "devices table",
			args: []string{"inspect", "devices"},
			want: []string{"Device ID", samples.UplinkDeviceID, samples.AlertDeviceID, "Temp/Humidity Sensor - AHU-01", "Riverside Foods"},
		},
		{
			name: "devices with no match",
			args: []string{"inspect", "devices", "--company", "nobody"},
			want: []string{"No devices found matching the criteria."},
		},
		{
			name: "latest readings",
			args: []string{"inspect", "readings", "--device", samples.UplinkDeviceID, "--latest"},
			want: []string{"**Temperature**: 22.11 c (channel 3, at 2021-02-24T19:49:29.569Z)"},
		},
		{
			name: "readings by filter",
			args: []string{"inspect", "readings", "--filter", "name = 'Temperature' AND value > 20"},
			want: []string{"Query results (1 rows):"},
		},
		{
			name: "triggered alerts",
			args: []string{"inspect", "alerts"},
			want: []string{"Found 1 alert(s):", "[TRIGGERED]", "Water Leak Detected - Mechanical Room B"},
		},
		{
			name: "event log",
			args: []string{"inspect", "events", "--limit", "2"},
			want: []string{"Event log (2 entries):", "[ping]", "[alert]"},
		},
		{
			name: "gateway pings",
			args: []string{"inspect", "events", "--gateways"},
			want: []string{"**Gateway Status (recent pings):**", samples.PingDeviceID},
		},
		{
			name: "summary",
			args: []string{"inspect", "summary"},
			want: []string{"- Total devices: 2", "- Total sensor readings: 5", "- Active alerts: 1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := execute(t, append([]string{"--db-file", path}, tt.args...)...)
			require.NoError(t, err)
			for _, want := range tt.want {
				require.Contains(t, out, want)
			}
		})
	}
}

func TestSensorLake_CLI_Inspect_Errors(t *testing.T) {
	t.Parallel()

	t.Run("missing database file", func(t *testing.T) {
		t.Parallel()
		missing := filepath.Join(t.TempDir(), "nope.duckdb")
		_, err := execute(t, "--db-file", missing, "inspect", "devices")
		require.Error(t, err)
		require.Contains(t, err.Error(), "nope.duckdb")
		_, statErr := os.Stat(missing)
		require.True(t, os.IsNotExist(statErr))
	})

	t.Run("in-memory database", func(t *testing.T) {
		t.Parallel()
		_, err := execute(t, "--db-file", ":memory:", "inspect", "devices")
		require.ErrorContains(t, err, "in-memory")
	})

	t.Run("readings without device or filter", func(t *testing.T) {
		t.Parallel()
		_, err := execute(t, "--db-file", newSampleDB(t), "inspect", "readings")
		require.ErrorContains(t, err, "one of --device or --filter is required")
	})

	t.Run("invalid filter", func(t *testing.T) {
		t.Parallel()
		_, err := execute(t, "--db-file", newSampleDB(t), "inspect", "readings", "--filter", "colour = 'red'")
		require.ErrorContains(t, err, "Query error:")
		require.ErrorContains(t, err, "available columns: device_id")
	})
}

func TestSensorLake_CLI_SendSamples(t *testing.T) {
	t.Parallel()

	t.Run("posts every sample with the secret", func(t *testing.T) {
		t.Parallel()

		var mu sync.Mutex
		var types []string
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, http.MethodPost, r.Method)
			require.Equal(t, "s3cret", r.Header.Get(ingest.HeaderAPIKey))
			var body struct {
				EventType string `json:"event_type"`
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			mu.Lock()
			types = append(types, body.EventType)
			mu.Unlock()
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"status":"ok"}`))
		}))
		defer ts.Close()

		out, err := execute(t, "--db-file", ":memory:", "send-samples", "--url", ts.URL, "--secret", "s3cret")
		require.NoError(t, err)
		require.Equal(t, []string{"uplink", "alert", "ping"}, types)
		require.Contains(t, out, `uplink: 200 {"status":"ok"}`)
		require.Contains(t, out, `ping: 200 {"status":"ok"}`)
	})

	t.Run("reports rejected samples", func(t *testing.T) {
		t.Parallel()

		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, `{"error":"unauthorized","code":401}`, http.StatusUnauthorized)
		}))
		defer ts.Close()

		out, err := execute(t, "--db-file", ":memory:", "send-samples", "--url", ts.URL, "--secret", "wrong")
		require.ErrorContains(t, err, "webhook rejected samples: uplink, alert, ping")
		require.Contains(t, out, "alert: 401")
	})
}

func TestSensorLake_CLI_Backup_Local(t *testing.T) {
	t.Parallel()

	path := newSampleDB(t)
	dir := filepath.Join(t.TempDir(), "snapshots")

	out, err := execute(t, "--db-file", path, "backup", "--dir", dir)
	require.NoError(t, err)
	require.Contains(t, out, "snapshot: "+dir)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	snapshot := filepath.Join(dir, entries[0].Name())
	out, err = execute(t, "--db-file", snapshot, "inspect", "summary")
	require.NoError(t, err)
	require.Contains(t, out, "- Total devices: 2")
}

func TestSensorLake_CLI_Version(t *testing.T) {
	t.Parallel()

	out, err := execute(t, "--version")
	require.NoError(t, err)
	require.Contains(t, out, "test (commit abc, built today)")
}

func TestSensorLake_CLI_ServeFlags(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{ListenAddr: config.DefaultListenAddr, MetricsAddr: "127.0.0.1:9090"}
	cmd := newServeCmd(&app{})
	require.NoError(t, cmd.Flags().Parse([]string{"--listen-addr", "127.0.0.1:8081"}))

	applyServeFlags(cmd.Flags(), cfg)
	require.Equal(t, "127.0.0.1:8081", cfg.ListenAddr)
	require.Equal(t, "127.0.0.1:9090", cfg.MetricsAddr)
}
