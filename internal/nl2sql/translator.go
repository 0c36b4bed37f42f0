// Package nl2sql translates a natural-language question into a single SQL
// statement with one model completion.
package nl2sql

import (
	"context"
	"fmt"
	"strings"

	"github.com/dataagent/dataagent/internal/llm"
)

type Request struct {
	Question         string `json:"question"`
	TableDefinitions string `json:"table_definitions"`
	Schema           string `json:"schema,omitempty"`
}

type Result struct {
	SQL      string    `json:"sql"`
	Provider string    `json:"provider"`
	Model    string    `json:"model"`
	Usage    llm.Usage `json:"usage"`
	Cost     float64   `json:"cost"`
}

type Translator interface {
	Translate(ctx context.Context, req Request) (Result, error)
}

type Config struct {
	Model       string
	Temperature float64
	MaxTokens   int
}

type LLMTranslator struct {
	client llm.Client
	cfg    Config
}

func NewLLMTranslator(client llm.Client, cfg Config) (*LLMTranslator, error) {
	if client == nil {
		return nil, fmt.Errorf("llm client is required")
	}
	return &LLMTranslator{client: client, cfg: cfg}, nil
}

func (t *LLMTranslator) Translate(ctx context.Context, req Request) (Result, error) {
	question := strings.TrimSpace(req.Question)
	if question == "" {
		return Result{}, fmt.Errorf("question is required")
	}

	resp, err := t.client.Chat(ctx, llm.Request{
		Model:       t.cfg.Model,
		System:      systemPrompt,
		Messages:    []llm.Message{{Role: llm.RoleUser, Content: buildUserPrompt(req)}},
		Temperature: t.cfg.Temperature,
		MaxTokens:   t.cfg.MaxTokens,
	})
	if err != nil {
		return Result{}, fmt.Errorf("translate question: %w", err)
	}

	sql := StripMarkdownSQL(resp.Content)
	if sql == "" {
		return Result{}, fmt.Errorf("model returned empty SQL")
	}
	return Result{
		SQL:      sql,
		Provider: resp.Provider,
		Model:    resp.Model,
		Usage:    resp.Usage,
		Cost:     resp.Cost,
	}, nil
}

const systemPrompt = "You're an elite SQL developer. You generate the most concise and performant SQL queries. " +
	"You convert natural language analytics requests into a single PostgreSQL query. " +
	"Return ONLY SQL. No markdown, no explanation."

func buildUserPrompt(req Request) string {
	var b strings.Builder
	if req.Schema != "" {
		fmt.Fprintf(&b, "Schema: %s\n", req.Schema)
	}
	fmt.Fprintf(&b, "User request:\n%s\n", strings.TrimSpace(req.Question))
	if strings.TrimSpace(req.TableDefinitions) != "" {
		b.WriteString("\nTABLE_DEFINITIONS\n\n")
		b.WriteString(strings.TrimSpace(req.TableDefinitions))
		b.WriteString("\n")
	}
	b.WriteString("\nRules:\n- Use only listed tables.\n- Prefer explicit columns.\n- Add LIMIT 200 unless user asks otherwise.\n- Output a single SQL query only.")
	return b.String()
}

// StripMarkdownSQL removes a surrounding ```sql fence from model output.
func StripMarkdownSQL(value string) string {
	trimmed := strings.TrimSpace(value)
	if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimPrefix(trimmed, "```sql")
		trimmed = strings.TrimPrefix(trimmed, "```SQL")
		trimmed = strings.TrimPrefix(trimmed, "```")
		trimmed = strings.TrimSuffix(trimmed, "```")
		return strings.TrimSpace(trimmed)
	}
	return trimmed
}
