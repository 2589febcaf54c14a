// Package main is the entry point for the gitstatus daemon.
package main

import (
	"log/slog"
	"os"

	"github.com/ddr-tools/gitstatusd/cmd/gitstatusd/app"
	"github.com/ddr-tools/gitstatusd/internal/logging"
)

func main() {
	// Logs go to stderr so stdout stays clean for command output
	handler, _ := logging.NewHandler(logging.WithLevel(app.LogLevel()))
	slog.SetDefault(slog.New(handler))

	if err := app.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
