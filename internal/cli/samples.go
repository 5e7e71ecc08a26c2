package cli

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/malbeclabs/sensorlake/internal/ingest"
	"github.com/malbeclabs/sensorlake/internal/samples"
	"github.com/spf13/cobra"
)

const defaultWebhookURL = "http://localhost:8000" + ingest.WebhookPath

func newSendSamplesCmd(a *app) *cobra.Command {
	var url, secret string
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "send-samples",
		Short: "Post the bundled uplink, alert and ping samples to a running webhook",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("secret") {
				secret = a.cfg.WebhookSecret
			}
			client := &http.Client{Timeout: timeout}

			var failed []string
			for _, name := range samples.Names {
				status, body, err := sendSample(cmd.Context(), client, url, secret, name)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %d %s\n", name, status, strings.TrimSpace(body))
				if status != http.StatusOK {
					failed = append(failed, name)
				}
			}
			if len(failed) > 0 {
				return fmt.Errorf("webhook rejected samples: %s", strings.Join(failed, ", "))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&url, "url", defaultWebhookURL, "webhook URL")
	cmd.Flags().StringVar(&secret, "secret", "", "shared secret sent as X-API (env SENSORLAKE_WEBHOOK_SECRET)")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "per-request timeout")
	return cmd
}

func sendSample(ctx context.Context, client *http.Client, url, secret, name string) (int, string, error) {
	body, err := samples.Load(name)
	if err != nil {
		return 0, "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, "", fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if secret != "" {
		req.Header.Set(ingest.HeaderAPIKey, secret)
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, "", fmt.Errorf("failed to send %s sample: %w", name, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return 0, "", fmt.Errorf("failed to read %s response: %w", name, err)
	}
	return resp.StatusCode, string(respBody), nil
}
