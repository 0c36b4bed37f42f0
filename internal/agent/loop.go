package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dataagent/dataagent/internal/llm"
)

var ErrMaxRounds = errors.New("agent: tool rounds exhausted")

const finalizationPrompt = "You have reached the maximum number of tool rounds. Reply with your final answer now without calling any tools."

type RunRequest struct {
	Model       string
	System      string
	Messages    []llm.Message
	Tools       []Tool
	MaxRounds   int
	Temperature float64
	MaxTokens   int
	Logger      *slog.Logger
}

type ToolInvocation struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
	Output    string `json:"output"`
	Failed    bool   `json:"failed"`
}

type RunResult struct {
	// Messages is the full thread including the input messages.
	Messages    []llm.Message
	Content     string
	Usage       llm.Usage
	Cost        float64
	Calls       int
	Invocations []ToolInvocation
}

// Run drives a tool-calling conversation until the model answers without
// requesting tools or MaxRounds is reached.
func Run(ctx context.Context, client llm.Client, req RunRequest) (RunResult, error) {
	maxRounds := req.MaxRounds
	if maxRounds <= 0 {
		maxRounds = 8
	}
	logger := req.Logger
	if logger == nil {
		logger = slog.Default()
	}

	byName := make(map[string]Tool, len(req.Tools))
	specs := make([]llm.ToolSpec, 0, len(req.Tools))
	for _, tool := range req.Tools {
		byName[tool.Spec.Name] = tool
		specs = append(specs, tool.Spec)
	}

	result := RunResult{Messages: append([]llm.Message(nil), req.Messages...)}
	for round := 1; ; round++ {
		tools := specs
		final := round == maxRounds && round > 1
		if final {
			result.Messages = append(result.Messages, llm.Message{Role: llm.RoleUser, Content: finalizationPrompt})
			tools = nil
		}

		resp, err := client.Chat(ctx, llm.Request{
			Model:       req.Model,
			System:      req.System,
			Messages:    result.Messages,
			Tools:       tools,
			Temperature: req.Temperature,
			MaxTokens:   req.MaxTokens,
		})
		if err != nil {
			return result, fmt.Errorf("chat round %d: %w", round, err)
		}
		result.Calls++
		result.Usage = result.Usage.Add(resp.Usage)
		result.Cost += resp.Cost
		result.Messages = append(result.Messages, resp.Message())
		result.Content = resp.Content

		if len(resp.ToolCalls) == 0 {
			return result, nil
		}
		if final {
			return result, ErrMaxRounds
		}

		for _, call := range resp.ToolCalls {
			output, failed := invoke(ctx, byName, call)
			if failed {
				logger.Warn("tool call failed", slog.String("tool", call.Name), slog.String("output", output))
			} else {
				logger.Debug("tool call finished", slog.String("tool", call.Name))
			}
			result.Invocations = append(result.Invocations, ToolInvocation{
				Name:      call.Name,
				Arguments: call.Arguments,
				Output:    output,
				Failed:    failed,
			})
			result.Messages = append(result.Messages, llm.Message{
				Role:       llm.RoleTool,
				Content:    output,
				Name:       call.Name,
				ToolCallID: call.ID,
			})
		}
		if round >= maxRounds {
			return result, ErrMaxRounds
		}
	}
}

func invoke(ctx context.Context, tools map[string]Tool, call llm.ToolCall) (string, bool) {
	tool, ok := tools[call.Name]
	if !ok {
		return fmt.Sprintf("error: unknown tool %q", call.Name), true
	}
	args := json.RawMessage(call.Arguments)
	if len(args) == 0 {
		args = json.RawMessage("{}")
	}
	output, err := tool.Func(ctx, args)
	if err != nil {
		return "error: " + err.Error(), true
	}
	return output, false
}
