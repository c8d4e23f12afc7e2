package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tinoosan/bookkeeping/internal/coa"
	"github.com/tinoosan/bookkeeping/internal/config"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var envFile string

	rootCmd := &cobra.Command{
		Use:   "bookkeeping",
		Short: "Double-entry bookkeeping service for a small seller",
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
		// serve is the default when no subcommand is given
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), envFile)
		},
	}
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "path to a .env file (default ./.env when present)")

	rootCmd.AddCommand(newServeCommand(&envFile))
	rootCmd.AddCommand(newMigrateCommand(&envFile))
	rootCmd.AddCommand(newExportCommand(&envFile))
	return rootCmd
}

// setup loads configuration and installs the default logger.
func setup(envFile string) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(envFile)
	if err != nil {
		return nil, nil, err
	}
	logger := buildLogger(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)
	return cfg, logger, nil
}

func loadChart(cfg *config.Config) (*coa.Registry, error) {
	if cfg.COAFile == "" {
		return coa.Default(), nil
	}
	chart, err := coa.LoadFile(cfg.COAFile)
	if err != nil {
		return nil, fmt.Errorf("loading chart of accounts: %w", err)
	}
	return chart, nil
}

// parseLogLevel maps config values to slog.Leveler
func parseLogLevel(s string) slog.Leveler {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error", "err":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// buildLogger logs to stderr so export output on stdout stays clean.
func buildLogger(level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLogLevel(level)}
	if strings.EqualFold(strings.TrimSpace(format), "text") {
		return slog.New(slog.NewTextHandler(os.Stderr, opts))
	}
	// default to JSON
	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}
