package backup

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/jonboulle/clockwork"
	"github.com/malbeclabs/sensorlake/internal/duck"
	"github.com/stretchr/testify/require"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))

type mockS3Client struct {
	mu       sync.Mutex
	failures int
	calls    int
	keys     []string
	bodies   [][]byte
	md5s     []string
}

func (m *mockS3Client) PutObject(ctx context.Context, params *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls++
	if m.calls <= m.failures {
		return nil, errors.New("service unavailable")
	}
	body, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}
	m.keys = append(m.keys, aws.ToString(params.Key))
	m.bodies = append(m.bodies, body)
	m.md5s = append(m.md5s, aws.ToString(params.ContentMD5))
	return &s3.PutObjectOutput{}, nil
}

var testTime = time.Date(2024, 3, 1, 12, 30, 45, 0, time.UTC)

func newTestDB(t *testing.T) duck.DB {
	t.Helper()

	db, err := duck.NewDB(t.Context(), filepath.Join(t.TempDir(), "live.duckdb"), testLogger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	conn, err := db.Conn(t.Context())
	require.NoError(t, err)
	defer conn.Close()
	_, err = conn.ExecContext(t.Context(), "CREATE TABLE devices (device_id VARCHAR PRIMARY KEY, thing_name VARCHAR)")
	require.NoError(t, err)
	_, err = conn.ExecContext(t.Context(), "INSERT INTO devices VALUES ('d1', 'Freezer 1')")
	require.NoError(t, err)
	return db
}

func TestSensorLake_Backup_Config_Validate(t *testing.T) {
	t.Parallel()

	_, err := New(Config{})
	require.ErrorContains(t, err, "logger is required")

	_, err = New(Config{Logger: testLogger})
	require.ErrorContains(t, err, "db is required")

	db := newTestDB(t)
	_, err = New(Config{Logger: testLogger, DB: db})
	require.ErrorContains(t, err, "dir is required")

	_, err = New(Config{Logger: testLogger, DB: db, Dir: t.TempDir(), S3: &mockS3Client{}})
	require.ErrorContains(t, err, "bucket is required")
}

func TestSensorLake_Backup_FileName(t *testing.T) {
	t.Parallel()

	loc := time.FixedZone("UTC-7", -7*3600)
	require.Equal(t, "sensorlake-20240301T123045Z.duckdb", FileName(testTime.In(loc)))
}

func TestSensorLake_Backup_Run_LocalOnly(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "backups")
	b, err := New(Config{Logger: testLogger, DB: newTestDB(t), Clock: clockwork.NewFakeClockAt(testTime), Dir: dir})
	require.NoError(t, err)

	res, err := b.Run(t.Context())
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "sensorlake-20240301T123045Z.duckdb"), res.Path)
	require.Empty(t, res.Key)
	require.Positive(t, res.Bytes)
	require.NotEmpty(t, res.MD5)

	snap, err := duck.NewDB(t.Context(), res.Path, testLogger, duck.WithReadOnly())
	require.NoError(t, err)
	defer snap.Close()

	conn, err := snap.Conn(t.Context())
	require.NoError(t, err)
	defer conn.Close()

	var name string
	require.NoError(t, conn.QueryRowContext(t.Context(), "SELECT thing_name FROM devices WHERE device_id = 'd1'").Scan(&name))
	require.Equal(t, "Freezer 1", name)

	_, err = b.Run(t.Context())
	require.ErrorContains(t, err, "already exists")
}

func TestSensorLake_Backup_Run_UploadsWithRetry(t *testing.T) {
	t.Parallel()

	client := &mockS3Client{failures: 1}
	b, err := New(Config{
		Logger:    testLogger,
		DB:        newTestDB(t),
		Clock:     clockwork.NewFakeClockAt(testTime),
		Dir:       t.TempDir(),
		S3:        client,
		Bucket:    "sensorlake-backups",
		KeyPrefix: "prod/daily",
	})
	require.NoError(t, err)

	res, err := b.Run(t.Context())
	require.NoError(t, err)
	require.Equal(t, "prod/daily/sensorlake-20240301T123045Z.duckdb", res.Key)

	require.Equal(t, 2, client.calls)
	require.Equal(t, []string{res.Key}, client.keys)
	require.Equal(t, []string{res.MD5}, client.md5s)
	require.Len(t, client.bodies[0], int(res.Bytes))

	local, err := os.ReadFile(res.Path)
	require.NoError(t, err)
	require.Equal(t, local, client.bodies[0])
}

func TestSensorLake_Backup_Run_UploadGivesUp(t *testing.T) {
	t.Parallel()

	client := &mockS3Client{failures: 100}
	b, err := New(Config{
		Logger: testLogger,
		DB:     newTestDB(t),
		Dir:    t.TempDir(),
		S3:     client,
		Bucket: "sensorlake-backups",
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(t.Context(), 2*time.Second)
	defer cancel()

	_, err = b.Run(ctx)
	require.ErrorContains(t, err, "s3 upload failed")
}
