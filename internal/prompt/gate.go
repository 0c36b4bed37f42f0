package prompt

import (
	"context"
	"log/slog"
	"regexp"
	"strconv"

	"github.com/dataagent/dataagent/internal/agent"
)

const (
	RouteInformational = "informational"
	RouteDataAnalysis  = "data_analysis"
	RouteInvalid       = "invalid"
)

var firstInteger = regexp.MustCompile(`-?\d+`)

// ParseConfidence reads the first integer in a gate reply; replies without one score 0.
func ParseConfidence(reply string) int {
	match := firstInteger.FindString(reply)
	if match == "" {
		return 0
	}
	n, err := strconv.Atoi(match)
	if err != nil {
		return 0
	}
	return n
}

// Route maps a confidence score to an executor family.
func Route(confidence int) string {
	switch confidence {
	case 1, 2:
		return RouteInformational
	case 3, 4, 5:
		return RouteDataAnalysis
	default:
		return RouteInvalid
	}
}

type gateOutcome struct {
	confidence int
	result     agent.ConversationResult
}

// promptConfidence asks the scrum_master team to score the prompt.
func (h *Handler) promptConfidence(ctx context.Context, recorder agent.Recorder, prompt string) (gateOutcome, error) {
	team := agent.NewTeam("scrum_master", h.client, h.agentOptions(),
		agent.Member{Name: "Admin", Relay: true},
		agent.Member{Name: "Scrum Master", Instructions: scrumMasterInstructions},
	)
	team.ValidateResults = func() (bool, string) { return true, "" }

	result, err := team.SequentialConversation(ctx, prompt)
	if recordErr := team.Record(recorder); recordErr != nil {
		h.log.WarnContext(ctx, "failed to record gate conversation", slog.Any("error", recordErr))
	}
	if err != nil {
		return gateOutcome{}, err
	}
	confidence := ParseConfidence(result.LastMessageStr)
	h.log.InfoContext(ctx, "gate scored prompt", slog.Int("confidence", confidence), slog.String("reply", result.LastMessageStr))
	return gateOutcome{confidence: confidence, result: result}, nil
}
