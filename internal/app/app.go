// Package app provides application lifecycle management for the gitstatus daemon.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/ddr-tools/gitstatusd/internal/config"
	"github.com/ddr-tools/gitstatusd/internal/telemetry"
)

// GitStatusApp encapsulates all components needed to run the status API and refresh scheduler
type GitStatusApp struct {
	config     *config.Config
	components *AppComponents
	httpServer *http.Server
	telemetry  *telemetry.Telemetry

	// Lifecycle management
	ctx        context.Context
	cancelFunc context.CancelFunc
	closeOnce  sync.Once
}

// Start starts the refresh coordinator in the background and then serves HTTP.
// It blocks until the HTTP server stops or encounters an error.
func (app *GitStatusApp) Start() error {
	go func() {
		if err := app.components.Coordinator.Start(app.ctx); err != nil {
			slog.Error("Refresh coordinator failed", "error", err)
		}
	}()

	slog.Info("Server listening", "address", app.httpServer.Addr)
	if err := app.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("HTTP server failed: %w", err)
	}

	return nil
}

// Stop stops the coordinator, waiting for a running refresh, and then shuts the HTTP server down
func (app *GitStatusApp) Stop(timeout time.Duration) error {
	slog.Info("Shutting down server...")

	if err := app.components.Coordinator.Stop(); err != nil {
		slog.Error("Failed to stop refresh coordinator", "error", err)
	}

	if app.cancelFunc != nil {
		app.cancelFunc()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := app.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	app.closeOnce.Do(func() {
		if err := app.components.Close(); err != nil {
			slog.Warn("Failed to close key/value store", "error", err)
		}
		if app.telemetry != nil {
			if err := app.telemetry.Shutdown(shutdownCtx); err != nil {
				slog.Warn("Failed to shutdown telemetry", "error", err)
			}
		}
	})

	slog.Info("Server shutdown complete")
	return nil
}

// GetConfig returns the application configuration
func (app *GitStatusApp) GetConfig() *config.Config {
	return app.config
}

// GetHTTPServer returns the HTTP server (useful for testing to get the actual port)
func (app *GitStatusApp) GetHTTPServer() *http.Server {
	return app.httpServer
}
