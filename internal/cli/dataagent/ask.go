package dataagent

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dataagent/dataagent/internal/app"
	"github.com/dataagent/dataagent/internal/prompt"
)

type AskCmd struct{}

func NewAskCmd() *AskCmd {
	return &AskCmd{}
}

func (c *AskCmd) Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ask <prompt>",
		Short: "Run a prompt through the agent pipeline",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			runMode, err := cmd.Flags().GetString("run-mode")
			if err != nil {
				return fmt.Errorf("failed to get run-mode flag: %w", err)
			}
			if runMode != "" && !prompt.ValidRunMode(runMode) {
				return fmt.Errorf("invalid run mode %q (must be one of %s)", runMode, strings.Join(runModeNames(), ", "))
			}

			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				result, err := a.Prompts.Handle(ctx, prompt.Request{
					Prompt:  strings.Join(args, " "),
					RunMode: runMode,
				})
				RenderResult(cmd.OutOrStdout(), result)
				return err
			})
		},
	}

	cmd.Flags().StringP("run-mode", "m", "", "executor to use (defaults to DATAAGENT_AGENT_RUN_MODE)")
	return cmd
}

func runModeNames() []string {
	modes := prompt.RunModes()
	names := make([]string, 0, len(modes))
	for _, mode := range modes {
		names = append(names, mode.Name)
	}
	return names
}
