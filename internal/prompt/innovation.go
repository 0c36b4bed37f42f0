package prompt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dataagent/dataagent/internal/agent"
	"github.com/dataagent/dataagent/internal/instruments"
)

// finishDataAnalysis makes sure innovations exist, reads back everything the
// agents delivered and attaches it to the result.
func (h *Handler) finishDataAnalysis(ctx context.Context, s session, result *agent.ConversationResult) {
	in := s.instruments
	if in.InnovationCount() == 0 {
		h.innovate(ctx, s, result)
	}

	rows, sql, innovations, err := in.PopulateConversationResult()
	if err != nil {
		if !errors.Is(err, instruments.ErrInvalidInnovation) {
			result.Success = false
			result.ErrorMessage = fmt.Sprintf("populate conversation result: %v", err)
			return
		}
		h.log.WarnContext(ctx, "skipping undecodable innovations", slog.Any("error", err))
	}
	result.Result = rows
	result.SQL = sql
	result.Innovations = innovations
	result.Suggestions = h.validatedSuggestions(ctx, innovations)
	result.FollowUp = followUp(innovations)
	viz := agent.RecommendVisualization(rows)
	result.Visualization = &viz
}

func (h *Handler) innovate(ctx context.Context, s session, result *agent.ConversationResult) {
	in := s.instruments
	a := agent.NewAssistant("Data Innovator", h.client, h.agentOptions())
	a.SetInstructions(innovatorInstructions)
	a.EquipTools(in.WriteInnovationTool())
	a.AddMessage(innovationPrompt(s.rawPrompt, s.tableDefinitions))
	if _, err := a.RunThread(ctx); err != nil {
		h.log.WarnContext(ctx, "innovation step failed", slog.Any("error", err))
	}
	if err := a.SpyOnAssistant(in); err != nil {
		h.log.WarnContext(ctx, "failed to record innovator chats", slog.Any("error", err))
	}
	report, err := a.CostsAndTokens(in)
	if err != nil {
		h.log.WarnContext(ctx, "failed to record innovator cost", slog.Any("error", err))
	}
	result.Messages = append(result.Messages, a.Chats()...)
	result.Cost += report.Cost
	result.Tokens += report.Tokens
}

// validatedSuggestions returns the innovation queries the warehouse accepts,
// checking them concurrently with EXPLAIN.
func (h *Handler) validatedSuggestions(ctx context.Context, innovations []agent.Innovation) []string {
	suggestions := make([]string, 0, len(innovations))
	if len(innovations) == 0 || h.warehouse == nil {
		return suggestions
	}

	group := h.explainPool.NewGroupContext(ctx)
	for _, innovation := range innovations {
		sql := strings.TrimSpace(innovation.SQL)
		group.SubmitErr(func() (bool, error) {
			if sql == "" {
				return false, nil
			}
			if err := h.warehouse.Explain(ctx, sql); err != nil {
				h.log.DebugContext(ctx, "innovation sql rejected", slog.String("sql", sql), slog.Any("error", err))
				return false, nil
			}
			return true, nil
		})
	}
	valid, err := group.Wait()
	if err != nil {
		h.log.WarnContext(ctx, "failed to validate innovation sql", slog.Any("error", err))
		return suggestions
	}
	for i, ok := range valid {
		if ok {
			suggestions = append(suggestions, strings.TrimSpace(innovations[i].SQL))
		}
	}
	return suggestions
}

func followUp(innovations []agent.Innovation) string {
	lines := make([]string, 0, len(innovations))
	for _, innovation := range innovations {
		if innovation.Insight == "" {
			continue
		}
		line := "- " + innovation.Insight
		if innovation.ActionableBusinessValue != "" {
			line += " (" + innovation.ActionableBusinessValue + ")"
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}
