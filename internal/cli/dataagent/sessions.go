package dataagent

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dataagent/dataagent/internal/app"
)

type SessionsCmd struct{}

func NewSessionsCmd() *SessionsCmd {
	return &SessionsCmd{}
}

func (c *SessionsCmd) Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List recent prompt sessions from the session store",
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, err := cmd.Flags().GetInt("limit")
			if err != nil {
				return fmt.Errorf("failed to get limit flag: %w", err)
			}
			if limit <= 0 {
				return fmt.Errorf("limit must be positive")
			}
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				sessions, err := a.Store.ListSessions(ctx, limit)
				if err != nil {
					return fmt.Errorf("failed to list sessions: %w", err)
				}
				RenderSessions(cmd.OutOrStdout(), sessions)
				return nil
			})
		},
	}

	cmd.Flags().Int("limit", 20, "maximum number of sessions")
	return cmd
}
