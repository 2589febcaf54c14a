package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	internalapp "github.com/ddr-tools/gitstatusd/internal/app"
	"github.com/ddr-tools/gitstatusd/internal/telemetry"
)

const defaultGracefulTimeout = 30 * time.Second

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the refresh scheduler and the status API",
		Long: `Run the refresh scheduler on its cron beat and serve the status API.

The configuration file names the base path holding the collections, the
repo-org pairs to refresh, and the refresh interval and margin.`,
		RunE: runServe,
	}
	cmd.Flags().String("address", "", "Address to listen on (overrides api.address)")
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	closer := setupLogging(cmd, cfg)
	defer func() { _ = closer.Close() }()

	tel, err := telemetry.New(ctx, cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	opts := []internalapp.GitStatusAppOptions{
		internalapp.WithConfig(cfg),
		internalapp.WithTelemetry(tel),
	}
	if address, _ := cmd.Flags().GetString("address"); address != "" {
		opts = append(opts, internalapp.WithAddress(address))
	}

	app, err := internalapp.NewGitStatusApp(ctx, opts...)
	if err != nil {
		_ = tel.Shutdown(ctx)
		return fmt.Errorf("failed to build application: %w", err)
	}

	errChan := make(chan error, 1)
	go func() {
		errChan <- app.Start()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case err := <-errChan:
		if stopErr := app.Stop(defaultGracefulTimeout); stopErr != nil {
			slog.Error("Failed to stop application", "error", stopErr)
		}
		return err
	case sig := <-quit:
		slog.Info("Received signal", "signal", sig.String())
	}

	if err := app.Stop(defaultGracefulTimeout); err != nil {
		return err
	}
	if err := <-errChan; err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
