package cli

import (
	"fmt"
	"os"

	"github.com/malbeclabs/sensorlake/internal/backup"
	"github.com/spf13/cobra"
)

func newBackupCmd(a *app) *cobra.Command {
	var dir, bucket, prefix, region, endpoint string

	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Snapshot the store to a single file, optionally uploading it to S3",
		Long: `Snapshot the store to a single self-contained DuckDB file.

The database file must not be held open by a running server. Credentials for the
upload come from AWS_ACCESS_KEY_ID/AWS_SECRET_ACCESS_KEY when both are set, otherwise
from the default AWS credential chain.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			db, err := a.openDB(ctx, false)
			if err != nil {
				return fmt.Errorf("failed to open database: %w", err)
			}
			defer a.closeDB(db)

			cfg := backup.Config{
				Logger:    a.log,
				DB:        db,
				Dir:       dir,
				Bucket:    bucket,
				KeyPrefix: prefix,
			}
			if bucket != "" {
				client, err := backup.NewS3Client(ctx, a.log, backup.S3Config{
					Region:          region,
					EndpointURL:     endpoint,
					AccessKeyID:     os.Getenv("AWS_ACCESS_KEY_ID"),
					SecretAccessKey: os.Getenv("AWS_SECRET_ACCESS_KEY"),
				})
				if err != nil {
					return err
				}
				cfg.S3 = client
			}

			b, err := backup.New(cfg)
			if err != nil {
				return err
			}
			res, err := b.Run(ctx)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "snapshot: %s (%d bytes)\n", res.Path, res.Bytes)
			if res.Key != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "uploaded: s3://%s/%s\n", bucket, res.Key)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&dir, "dir", "backups", "local directory for snapshot files")
	cmd.Flags().StringVar(&bucket, "s3-bucket", "", "upload the snapshot to this bucket")
	cmd.Flags().StringVar(&prefix, "s3-prefix", "", "object key prefix")
	cmd.Flags().StringVar(&region, "s3-region", os.Getenv("AWS_REGION"), "AWS region")
	cmd.Flags().StringVar(&endpoint, "s3-endpoint", "", "custom S3-compatible endpoint URL")
	return cmd
}
