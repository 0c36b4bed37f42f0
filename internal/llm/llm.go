// Package llm is a provider-neutral chat and tool-calling client.
package llm

import (
	"context"
	"sort"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

type Client interface {
	Chat(ctx context.Context, req Request) (Response, error)
	Name() string
}

type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	Name       string     `json:"name,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
}

type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type Parameter struct {
	Name        string
	Type        string
	Description string
	Required    bool
}

type ToolSpec struct {
	Name        string
	Description string
	Parameters  []Parameter
}

// JSONSchema returns the object schema used by OpenAI and Anthropic tool definitions.
func (s ToolSpec) JSONSchema() map[string]any {
	properties := make(map[string]any, len(s.Parameters))
	required := make([]string, 0, len(s.Parameters))
	for _, p := range s.Parameters {
		prop := map[string]any{"type": p.Type}
		if p.Description != "" {
			prop["description"] = p.Description
		}
		properties[p.Name] = prop
		if p.Required {
			required = append(required, p.Name)
		}
	}
	sort.Strings(required)
	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func (s ToolSpec) requiredNames() []string {
	names := make([]string, 0, len(s.Parameters))
	for _, p := range s.Parameters {
		if p.Required {
			names = append(names, p.Name)
		}
	}
	sort.Strings(names)
	return names
}

type Request struct {
	Model       string
	System      string
	Messages    []Message
	Tools       []ToolSpec
	Temperature float64
	MaxTokens   int
}

type Response struct {
	Provider  string
	Model     string
	Content   string
	ToolCalls []ToolCall
	Usage     Usage
	// Cost is the estimated spend in USD, filled in by Metered.
	Cost float64
}

// Message converts the response into the assistant turn to append to a thread.
func (r Response) Message() Message {
	return Message{Role: RoleAssistant, Content: r.Content, ToolCalls: r.ToolCalls}
}

type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

func (u Usage) Add(other Usage) Usage {
	return Usage{
		PromptTokens:     u.PromptTokens + other.PromptTokens,
		CompletionTokens: u.CompletionTokens + other.CompletionTokens,
		TotalTokens:      u.TotalTokens + other.TotalTokens,
	}
}

func normalizeUsage(u Usage) Usage {
	if u.TotalTokens == 0 && (u.PromptTokens > 0 || u.CompletionTokens > 0) {
		u.TotalTokens = u.PromptTokens + u.CompletionTokens
	}
	return u
}

// AddCapRef appends a capitalized reference block to a prompt:
//
//	{prompt} {capRefPrompt}
//
//	{capRef}
//
//	{content}
func AddCapRef(prompt, capRefPrompt, capRef, content string) string {
	return prompt + " " + capRefPrompt + "\n\n" + capRef + "\n\n" + content
}
