package app

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	internalapp "github.com/ddr-tools/gitstatusd/internal/app"
	"github.com/ddr-tools/gitstatusd/internal/status"
)

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status <collection-id>",
		Short: "Print the last status record of a collection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := cmd.Flags().GetString("format")
			if err != nil {
				return err
			}
			return withComponents(cmd, func(ctx context.Context, c *internalapp.AppComponents) error {
				rec, err := c.StatusService.GetRecord(ctx, args[0])
				if err != nil {
					return err
				}
				if format != "json" {
					_, err = fmt.Fprint(cmd.OutOrStdout(), status.Encode(rec))
					return err
				}

				summary := json.RawMessage("null")
				if rec.SyncStatus != nil {
					if summary, err = status.MarshalSyncStatus(rec.SyncStatus); err != nil {
						return err
					}
				}
				out, err := json.MarshalIndent(struct {
					CollectionID   string          `json:"collection_id"`
					Timestamp      string          `json:"timestamp"`
					Elapsed        float64         `json:"elapsed_seconds"`
					RawStatus      string          `json:"raw_status"`
					RawAnnexStatus string          `json:"raw_annex_status,omitempty"`
					SyncStatus     json.RawMessage `json:"sync_status"`
				}{
					CollectionID:   args[0],
					Timestamp:      status.FormatTimestamp(rec.Timestamp),
					Elapsed:        rec.Elapsed.Seconds(),
					RawStatus:      rec.RawStatus,
					RawAnnexStatus: rec.RawAnnexStatus,
					SyncStatus:     summary,
				}, "", "  ")
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), string(out))
				return err
			})
		},
	}
	cmd.Flags().String("format", "", "Output format (json); the default is the status file layout")
	return cmd
}
