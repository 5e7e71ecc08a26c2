package backup

import (
	"context"
	"crypto/md5"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/cenkalti/backoff/v5"
	"github.com/jonboulle/clockwork"
	"github.com/malbeclabs/sensorlake/internal/duck"
)

const maxUploadTries = 5

// S3Client is the subset of the S3 API used to ship snapshots.
type S3Client interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type Config struct {
	Logger *slog.Logger
	DB     duck.DB
	Clock  clockwork.Clock

	// Dir receives the local snapshot file.
	Dir string

	// S3 is optional; when nil the snapshot stays local.
	S3        S3Client
	Bucket    string
	KeyPrefix string
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.DB == nil {
		return errors.New("db is required")
	}
	if cfg.Dir == "" {
		return errors.New("dir is required")
	}
	if cfg.S3 != nil && cfg.Bucket == "" {
		return errors.New("bucket is required when uploading to s3")
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	return nil
}

type Result struct {
	Path  string
	Bytes int64
	MD5   string

	// Key is the object key in Bucket, empty when nothing was uploaded.
	Key string
}

type Backup struct {
	log *slog.Logger
	cfg Config
}

func New(cfg Config) (*Backup, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Backup{log: cfg.Logger, cfg: cfg}, nil
}

// FileName is the snapshot file name for a backup taken at t.
func FileName(t time.Time) string {
	return "sensorlake-" + t.UTC().Format("20060102T150405Z") + ".duckdb"
}

// Run writes a consistent snapshot of the store to Dir and, when configured, uploads it.
func (b *Backup) Run(ctx context.Context) (*Result, error) {
	if err := os.MkdirAll(b.cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create backup directory: %w", err)
	}

	name := FileName(b.cfg.Clock.Now())
	dest := filepath.Join(b.cfg.Dir, name)
	if err := duck.Snapshot(ctx, b.cfg.DB, dest); err != nil {
		return nil, fmt.Errorf("failed to snapshot database: %w", err)
	}

	size, sum, err := fileDigest(dest)
	if err != nil {
		return nil, err
	}
	res := &Result{Path: dest, Bytes: size, MD5: sum}
	b.log.Info("backup: snapshot written", "path", dest, "bytes", size)

	if b.cfg.S3 == nil {
		return res, nil
	}

	key := name
	if b.cfg.KeyPrefix != "" {
		key = path.Join(b.cfg.KeyPrefix, name)
	}
	if err := b.upload(ctx, dest, key, sum); err != nil {
		return nil, err
	}
	res.Key = key
	b.log.Info("backup: snapshot uploaded", "bucket", b.cfg.Bucket, "key", key)
	return res, nil
}

func (b *Backup) upload(ctx context.Context, src, key, contentMD5 string) error {
	attempt := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempt++
		f, err := os.Open(src)
		if err != nil {
			return struct{}{}, backoff.Permanent(fmt.Errorf("failed to open snapshot: %w", err))
		}
		defer f.Close()

		_, err = b.cfg.S3.PutObject(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(b.cfg.Bucket),
			Key:         aws.String(key),
			Body:        f,
			ContentMD5:  aws.String(contentMD5),
			ContentType: aws.String("application/octet-stream"),
		})
		if err != nil {
			b.log.Warn("backup: upload attempt failed", "attempt", attempt, "error", err)
			return struct{}{}, err
		}
		return struct{}{}, nil
	}, backoff.WithBackOff(backoff.NewExponentialBackOff()), backoff.WithMaxTries(maxUploadTries))
	if err != nil {
		return fmt.Errorf("s3 upload failed after %d attempts: %w", attempt, err)
	}
	return nil
}

// fileDigest returns the size and base64 MD5 of a file, the form S3 expects in
// Content-MD5.
func fileDigest(p string) (int64, string, error) {
	f, err := os.Open(p)
	if err != nil {
		return 0, "", fmt.Errorf("failed to open snapshot: %w", err)
	}
	defer f.Close()

	h := md5.New()
	n, err := io.Copy(h, f)
	if err != nil {
		return 0, "", fmt.Errorf("failed to read snapshot: %w", err)
	}
	return n, base64.StdEncoding.EncodeToString(h.Sum(nil)), nil
}
