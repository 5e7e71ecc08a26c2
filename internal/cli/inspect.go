package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/malbeclabs/sensorlake/internal/querier"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

func newInspectCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Query the store offline, read-only",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cmd.Help(); err != nil {
				return fmt.Errorf("failed to show help: %w", err)
			}
			return nil
		},
	}

	cmd.AddCommand(
		newInspectDevicesCmd(a),
		newInspectReadingsCmd(a),
		newInspectAlertsCmd(a),
		newInspectEventsCmd(a),
		newInspectSummaryCmd(a),
	)
	return cmd
}

// withQuerier opens the database read-only for the duration of fn.
func (a *app) withQuerier(ctx context.Context, fn func(q *querier.Querier) error) error {
	db, err := a.openDB(ctx, true)
	if err != nil {
		return err
	}
	defer a.closeDB(db)

	q, err := querier.New(querier.Config{Logger: a.log, DB: db})
	if err != nil {
		return fmt.Errorf("failed to create querier: %w", err)
	}
	return fn(q)
}

func newInspectDevicesCmd(a *app) *cobra.Command {
	var company, location string

	cmd := &cobra.Command{
		Use:   "devices",
		Short: "List registered devices",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withQuerier(cmd.Context(), func(q *querier.Querier) error {
				devices, err := q.ListDevices(cmd.Context(), querier.DeviceFilter{Company: company, Location: location})
				if err != nil {
					return err
				}
				if len(devices) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), querier.FormatDevices(devices))
					return nil
				}
				printDevices(cmd.OutOrStdout(), devices)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&company, "company", "", "filter by company name substring")
	cmd.Flags().StringVar(&location, "location", "", "filter by location name substring")
	return cmd
}

func printDevices(w io.Writer, devices []querier.Device) {
	table := tablewriter.NewWriter(w)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetBorder(true)
	table.SetHeader([]string{"Device ID", "Name", "Type", "Use", "Location", "Company", "Last Seen"})

	for _, d := range devices {
		lastSeen := ""
		if !d.LastSeen.IsZero() {
			lastSeen = d.LastSeen.UTC().Format("2006-01-02 15:04:05")
		}
		table.Append([]string{
			d.DeviceID,
			d.ThingName,
			d.DeviceTypeName,
			d.SensorUse,
			d.LocationName,
			d.CompanyName,
			lastSeen,
		})
	}
	table.Render()
}

func newInspectReadingsCmd(a *app) *cobra.Command {
	var deviceID, sensorType, filter string
	var limit int
	var latest bool

	cmd := &cobra.Command{
		Use:   "readings",
		Short: "Show readings for a device, or readings matching a filter",
		RunE: func(cmd *cobra.Command, args []string) error {
			if deviceID == "" && filter == "" {
				return errors.New("one of --device or --filter is required")
			}
			return a.withQuerier(cmd.Context(), func(q *querier.Querier) error {
				ctx := cmd.Context()
				var text string
				switch {
				case filter != "":
					readings, err := q.QuerySensorData(ctx, filter, limit)
					if errors.Is(err, querier.ErrInvalidFilter) {
						return errors.New(querier.FormatQueryError(err))
					}
					if err != nil {
						return err
					}
					text = querier.FormatSensorData(readings)
				case latest:
					readings, err := q.LatestReadings(ctx, deviceID)
					if err != nil {
						return err
					}
					text = querier.FormatLatestReadings(deviceID, readings)
				default:
					readings, err := q.ReadingHistory(ctx, deviceID, sensorType, limit)
					if err != nil {
						return err
					}
					text = querier.FormatReadingHistory(deviceID, sensorType, readings)
				}
				fmt.Fprintln(cmd.OutOrStdout(), text)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&deviceID, "device", "", "device id")
	cmd.Flags().StringVar(&sensorType, "type", "", "only readings of this type")
	cmd.Flags().StringVar(&filter, "filter", "", "filter expression, e.g. \"type = 'temp' AND value > 30\"")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum rows (0 for the default)")
	cmd.Flags().BoolVar(&latest, "latest", false, "only the latest reading per channel")
	return cmd
}

func newInspectAlertsCmd(a *app) *cobra.Command {
	var deviceID string
	var all bool
	var limit int

	cmd := &cobra.Command{
		Use:   "alerts",
		Short: "Show alert state changes",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withQuerier(cmd.Context(), func(q *querier.Querier) error {
				alerts, err := q.Alerts(cmd.Context(), querier.AlertFilter{DeviceID: deviceID, TriggeredOnly: !all, Limit: limit})
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), querier.FormatAlerts(alerts))
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&deviceID, "device", "", "only alerts for this device")
	cmd.Flags().BoolVar(&all, "all", false, "include resolved alerts")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum rows (0 for the default)")
	return cmd
}

func newInspectEventsCmd(a *app) *cobra.Command {
	var eventType string
	var limit int
	var gateways bool

	cmd := &cobra.Command{
		Use:   "events",
		Short: "Show the raw event log or gateway pings",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withQuerier(cmd.Context(), func(q *querier.Querier) error {
				if gateways {
					pings, err := q.GatewayStatus(cmd.Context(), limit)
					if err != nil {
						return err
					}
					fmt.Fprintln(cmd.OutOrStdout(), querier.FormatGatewayStatus(pings))
					return nil
				}
				events, err := q.EventLog(cmd.Context(), eventType, limit)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), querier.FormatEventLog(events))
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&eventType, "type", "", "only events with this declared type")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum rows (0 for the default)")
	cmd.Flags().BoolVar(&gateways, "gateways", false, "show gateway pings instead of the event log")
	return cmd
}

func newInspectSummaryCmd(a *app) *cobra.Command {
	var company string

	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Show facility totals per location",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withQuerier(cmd.Context(), func(q *querier.Querier) error {
				summary, err := q.FacilitySummary(cmd.Context(), company)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), querier.FormatFacilitySummary(summary))
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&company, "company", "", "filter by company name substring")
	return cmd
}
