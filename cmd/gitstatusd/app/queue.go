package app

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	internalapp "github.com/ddr-tools/gitstatusd/internal/app"
	"github.com/ddr-tools/gitstatusd/internal/queue"
	"github.com/ddr-tools/gitstatusd/internal/status"
)

func newRegenerateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "regenerate",
		Short: "Rebuild the refresh queue from the collections on disk",
		Long: `Rebuild the refresh queue. Collections with a status file are scheduled
from their last check; collections never checked are due immediately.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withComponents(cmd, func(ctx context.Context, c *internalapp.AppComponents) error {
				q, err := c.StatusService.RegenerateQueue(ctx)
				if err != nil {
					return err
				}
				return writeQueue(cmd.OutOrStdout(), q)
			})
		},
	}
}

func newQueueCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "queue",
		Short: "Print the refresh queue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withComponents(cmd, func(ctx context.Context, c *internalapp.AppComponents) error {
				q, err := c.StatusService.GetQueue(ctx)
				if err != nil {
					return err
				}
				return writeQueue(cmd.OutOrStdout(), q)
			})
		},
	}
}

func writeQueue(w io.Writer, q *queue.Queue) error {
	if _, err := fmt.Fprintf(w, "generated %s, %d collections\n", status.FormatTimestamp(q.GeneratedAt), q.Len()); err != nil {
		return err
	}
	for _, e := range q.Entries {
		if _, err := fmt.Fprintf(w, "%s %s\n", status.FormatTimestamp(e.Next), e.CollectionID); err != nil {
			return err
		}
	}
	return nil
}
