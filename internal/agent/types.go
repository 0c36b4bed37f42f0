// Package agent holds the conversation primitives the executors are built
// from: a tool-calling loop, a single assistant, a round-robin team and a
// sequential crew.
package agent

import (
	"context"
	"encoding/json"
	"time"

	"github.com/dataagent/dataagent/internal/llm"
)

type Chat struct {
	FromName string    `json:"from_name"`
	ToName   string    `json:"to_name"`
	Message  string    `json:"message"`
	Created  time.Time `json:"created"`
}

type Innovation struct {
	Insight                 string `json:"insight"`
	ActionableBusinessValue string `json:"actionable_business_value"`
	SQL                     string `json:"sql"`
}

type ConversationResult struct {
	Success        bool           `json:"success"`
	Messages       []Chat         `json:"messages"`
	Cost           float64        `json:"cost"`
	Tokens         int            `json:"tokens"`
	LastMessageStr string         `json:"last_message_str"`
	ErrorMessage   string         `json:"error_message"`
	SQL            string         `json:"sql"`
	Result         any            `json:"result"`
	FollowUp       string         `json:"follow_up"`
	Suggestions    []string       `json:"suggestions"`
	Innovations    []Innovation   `json:"innovations,omitempty"`
	Visualization  *Visualization `json:"visualization,omitempty"`
	RunMode        string         `json:"run_mode"`
	SessionID      string         `json:"session_id"`
	Confidence     int            `json:"confidence"`
}

// ToolFunc executes a tool call. args holds the raw JSON arguments from the model.
type ToolFunc func(ctx context.Context, args json.RawMessage) (string, error)

type Tool struct {
	Spec llm.ToolSpec
	Func ToolFunc
}

type CostReport struct {
	Team             string  `json:"team"`
	Cost             float64 `json:"cost"`
	Tokens           int     `json:"tokens"`
	PromptTokens     int     `json:"prompt_tokens"`
	CompletionTokens int     `json:"completion_tokens"`
	Calls            int     `json:"calls"`
}

// Recorder persists conversation transcripts and spend per team.
type Recorder interface {
	WriteAgentChats(team string, chats []Chat) error
	WriteAgentCost(team string, report CostReport) error
}

// StringArg decodes a single string argument from a tool call.
func StringArg(args json.RawMessage, name string) (string, error) {
	var decoded map[string]any
	if err := json.Unmarshal(args, &decoded); err != nil {
		return "", err
	}
	switch v := decoded[name].(type) {
	case string:
		return v, nil
	case nil:
		return "", &MissingArgError{Name: name}
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return "", err
		}
		return string(encoded), nil
	}
}

type MissingArgError struct {
	Name string
}

func (e *MissingArgError) Error() string {
	return "missing argument " + e.Name
}
