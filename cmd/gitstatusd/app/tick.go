package app

import (
	"context"

	"github.com/spf13/cobra"

	internalapp "github.com/ddr-tools/gitstatusd/internal/app"
)

func newTickCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tick",
		Short: "Run one refresh and print what it did",
		Long: `Run a single refresh, checking at most one collection, and print the
run messages. Suitable for a system cron entry when "serve" is not used.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withComponents(cmd, func(ctx context.Context, c *internalapp.AppComponents) error {
				return printLines(cmd.OutOrStdout(), c.Coordinator.UpdateStore(ctx))
			})
		},
	}
}
