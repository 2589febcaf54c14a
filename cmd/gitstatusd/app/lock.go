package app

import (
	"context"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	internalapp "github.com/ddr-tools/gitstatusd/internal/app"
	"github.com/ddr-tools/gitstatusd/internal/lock"
	"github.com/ddr-tools/gitstatusd/internal/status"
)

func newLockCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "lock [holder]",
		Short: "Pause refreshes until the holder unlocks",
		Long: `Add a holder to the global lock. While the lock has holders no refresh
runs. Without a holder argument a random one is generated and printed;
pass it to "unlock" to release.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			holder := uuid.NewString()
			if len(args) == 1 {
				holder = args[0]
			}
			return withComponents(cmd, func(ctx context.Context, c *internalapp.AppComponents) error {
				entries, err := c.StatusService.Lock(ctx, holder)
				if err != nil {
					return err
				}
				if _, err := fmt.Fprintf(cmd.OutOrStdout(), "locked by %s\n", holder); err != nil {
					return err
				}
				return writeLocks(cmd.OutOrStdout(), entries)
			})
		},
	}
}

func newUnlockCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unlock <holder>",
		Short: "Remove a holder from the global lock",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withComponents(cmd, func(ctx context.Context, c *internalapp.AppComponents) error {
				entries, err := c.StatusService.Unlock(ctx, args[0])
				if err != nil {
					return err
				}
				return writeLocks(cmd.OutOrStdout(), entries)
			})
		},
	}
}

func newLocksCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "locks",
		Short: "List the holders of the global lock",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withComponents(cmd, func(ctx context.Context, c *internalapp.AppComponents) error {
				entries, err := c.StatusService.Locks(ctx)
				if err != nil {
					return err
				}
				return writeLocks(cmd.OutOrStdout(), entries)
			})
		},
	}
}

func writeLocks(w io.Writer, entries []lock.Entry) error {
	if len(entries) == 0 {
		_, err := fmt.Fprintln(w, "unlocked")
		return err
	}
	for _, e := range entries {
		if _, err := fmt.Fprintf(w, "%s %s\n", status.FormatTimestamp(e.Since), e.Holder); err != nil {
			return err
		}
	}
	return nil
}
