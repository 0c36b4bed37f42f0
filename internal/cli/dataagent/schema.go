package dataagent

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dataagent/dataagent/internal/app"
)

type SchemaCmd struct{}

func NewSchemaCmd() *SchemaCmd {
	return &SchemaCmd{}
}

func (c *SchemaCmd) Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "List the warehouse tables the agent can query",
		RunE: func(cmd *cobra.Command, args []string) error {
			ddl, err := cmd.Flags().GetBool("ddl")
			if err != nil {
				return fmt.Errorf("failed to get ddl flag: %w", err)
			}
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				defs, err := a.Warehouse.TableDefinitions(ctx)
				if err != nil {
					return fmt.Errorf("failed to list tables: %w", err)
				}
				if ddl {
					for _, def := range defs {
						_, _ = fmt.Fprintln(cmd.OutOrStdout(), def.DDL())
						_, _ = fmt.Fprintln(cmd.OutOrStdout())
					}
					return nil
				}
				RenderTables(cmd.OutOrStdout(), defs)
				return nil
			})
		},
	}

	cmd.Flags().Bool("ddl", false, "print CREATE TABLE statements instead of a summary")
	return cmd
}

type IndexCmd struct{}

func NewIndexCmd() *IndexCmd {
	return &IndexCmd{}
}

func (c *IndexCmd) Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Embed every warehouse table and show the best matches for a prompt",
		RunE: func(cmd *cobra.Command, args []string) error {
			query, err := cmd.Flags().GetString("prompt")
			if err != nil {
				return fmt.Errorf("failed to get prompt flag: %w", err)
			}
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				if err := a.Tables.Index(ctx); err != nil {
					return fmt.Errorf("failed to index tables: %w", err)
				}
				a.Logger.Info("table embeddings are up to date")
				if query == "" {
					return nil
				}
				matches, err := a.Tables.SimilarTables(ctx, query, a.Config.LLM.EmbeddingTopK)
				if err != nil {
					return fmt.Errorf("failed to rank tables: %w", err)
				}
				RenderMatches(cmd.OutOrStdout(), matches)
				return nil
			})
		},
	}

	cmd.Flags().String("prompt", "", "rank the indexed tables against this prompt")
	return cmd
}
