// Package app provides the command line interface of the gitstatus daemon.
package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	internalapp "github.com/ddr-tools/gitstatusd/internal/app"
	"github.com/ddr-tools/gitstatusd/internal/config"
	"github.com/ddr-tools/gitstatusd/internal/logging"
	"github.com/ddr-tools/gitstatusd/internal/versions"
)

// EnvPrefix is the prefix of every environment variable read by the CLI
const EnvPrefix = "GITSTATUSD"

// NewRootCmd creates the root command with every subcommand attached
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:               "gitstatusd",
		DisableAutoGenTag: true,
		SilenceUsage:      true,
		Short:             "Background git status checks for DDR collections",
		Long: `gitstatusd keeps a cached sync status for every collection repository on a
shared volume. A scheduler beat checks at most one collection per run, picking
the collection whose next check is due soonest.`,
		Run: func(cmd *cobra.Command, _ []string) {
			if err := cmd.Help(); err != nil {
				slog.Error("Error displaying help", "error", err)
			}
		},
	}

	rootCmd.PersistentFlags().String("config", "", "Path to configuration file (YAML format; or "+EnvPrefix+"_CONFIG)")
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging")

	rootCmd.AddCommand(
		newServeCmd(),
		newTickCmd(),
		newRegenerateCmd(),
		newQueueCmd(),
		newStatusCmd(),
		newLockCmd(),
		newUnlockCmd(),
		newLocksCmd(),
		newVersionCmd(),
	)

	return rootCmd
}

func newVersionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, _ []string) error {
			info := versions.GetVersionInfo()
			format, err := cmd.Flags().GetString("format")
			if err != nil {
				return err
			}

			if format == "json" {
				output, err := json.MarshalIndent(info, "", "  ")
				if err != nil {
					return fmt.Errorf("failed to format version info as JSON: %w", err)
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), string(output))
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), info.String())
			return err
		},
	}
	cmd.Flags().String("format", "", "Output format (json)")
	return cmd
}

// LogLevel reads GITSTATUSD_LOG_LEVEL, falling back to LOG_LEVEL.
// Defaults to slog.LevelInfo if neither is set or if the value is invalid.
func LogLevel() slog.Level {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	levelStr := v.GetString("LOG_LEVEL")
	if levelStr == "" {
		levelStr = os.Getenv("LOG_LEVEL")
	}

	level, ok := logging.ParseLevel(levelStr)
	if !ok {
		slog.Warn("Invalid LOG_LEVEL, using INFO", "value", levelStr)
	}
	return level
}

// loadConfig resolves --config, or GITSTATUSD_CONFIG, and loads the file
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	if err := v.BindPFlag("config", cmd.Flags().Lookup("config")); err != nil {
		return nil, fmt.Errorf("failed to bind config flag: %w", err)
	}

	path := v.GetString("config")
	if path == "" {
		return nil, errors.New("a configuration file is required: set --config or " + EnvPrefix + "_CONFIG")
	}

	cfg, err := config.LoadConfig(config.WithConfigPath(path))
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	slog.Debug("Loaded configuration", "path", path, "base_path", cfg.BasePath, "repo_orgs", cfg.RepoOrgs)
	return cfg, nil
}

// setupLogging replaces the default logger once the config is known, adding
// the log file when one is configured. The returned closer releases it.
func setupLogging(cmd *cobra.Command, cfg *config.Config) io.Closer {
	level := LogLevel()
	if debug, _ := cmd.Flags().GetBool("debug"); debug {
		level = slog.LevelDebug
	}

	opts := []logging.Option{logging.WithLevel(level), logging.WithOutput(cmd.ErrOrStderr())}
	if cfg.Logging.File != "" {
		opts = append(opts, logging.WithFile(cfg.Logging.File, cfg.GetLogMaxSizeMB(), cfg.GetLogMaxBackups()))
	}
	handler, closer := logging.NewHandler(opts...)
	slog.SetDefault(slog.New(handler))
	return closer
}

// withComponents loads the config, builds the components and runs fn with them
func withComponents(cmd *cobra.Command, fn func(ctx context.Context, c *internalapp.AppComponents) error) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	closer := setupLogging(cmd, cfg)
	defer func() { _ = closer.Close() }()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	components, err := internalapp.NewComponents(ctx, internalapp.WithConfig(cfg))
	if err != nil {
		return err
	}
	defer func() {
		if err := components.Close(); err != nil {
			slog.Warn("Failed to close key/value store", "error", err)
		}
	}()

	return fn(ctx, components)
}

func printLines(w io.Writer, lines []string) error {
	if len(lines) == 0 {
		return nil
	}
	_, err := fmt.Fprintln(w, strings.Join(lines, "\n"))
	return err
}
