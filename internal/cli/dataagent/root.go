// Package dataagent is the local command line front end. It builds the same
// pipeline as the API server and runs it in process.
package dataagent

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dataagent/dataagent/internal/app"
	"github.com/dataagent/dataagent/internal/config"
	"github.com/dataagent/dataagent/internal/observability"
)

type ExitCode int

const (
	exitCodeSuccess = 0
	exitCodeError   = 1
)

func Run() ExitCode {
	rootCmd := NewRootCmd()
	if err := rootCmd.Execute(); err != nil {
		return exitCodeError
	}
	return exitCodeSuccess
}

func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "dataagent",
		Short:         "Ask questions about the analytics warehouse in plain language.",
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cmd.Help(); err != nil {
				return fmt.Errorf("failed to show help: %w", err)
			}
			return nil
		},
	}

	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "set debug logging level")

	rootCmd.AddCommand(
		NewAskCmd().Command(),
		NewSchemaCmd().Command(),
		NewIndexCmd().Command(),
		NewSessionsCmd().Command(),
	)
	return rootCmd
}

// withApp loads configuration from the environment, builds the pipeline and
// hands it to fn with a context cancelled on SIGINT or SIGTERM.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) error {
	verbose, err := cmd.Root().PersistentFlags().GetBool("verbose")
	if err != nil {
		return fmt.Errorf("failed to get verbose flag: %w", err)
	}

	cfg, err := config.LoadFromEnv("dataagent-cli")
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if verbose {
		cfg.Observability.LogLevel = slog.LevelDebug
	}
	logger := observability.NewLogger(cfg, os.Stderr)

	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := app.Build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Warn("failed to close connections", slog.Any("error", err))
		}
	}()
	return fn(ctx, a)
}
