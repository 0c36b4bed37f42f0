package agent

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jonboulle/clockwork"

	"github.com/dataagent/dataagent/internal/llm"
)

type Options struct {
	Model       string
	Temperature float64
	MaxTokens   int
	MaxRounds   int
	Clock       clockwork.Clock
	Logger      *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.MaxRounds <= 0 {
		o.MaxRounds = 8
	}
	if o.Clock == nil {
		o.Clock = clockwork.NewRealClock()
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// Assistant is a named model persona with a persistent thread and a set of
// tools, run one step at a time.
type Assistant struct {
	name         string
	client       llm.Client
	opts         Options
	instructions string
	tools        []Tool
	thread       []llm.Message
	chats        []Chat
	usage        llm.Usage
	cost         float64
	calls        int
}

func NewAssistant(name string, client llm.Client, opts Options) *Assistant {
	return &Assistant{name: name, client: client, opts: opts.withDefaults()}
}

func (a *Assistant) Name() string {
	return a.name
}

func (a *Assistant) SetInstructions(instructions string) {
	a.instructions = instructions
}

// EquipTools replaces the assistant's tool set.
func (a *Assistant) EquipTools(tools ...Tool) {
	a.tools = append([]Tool(nil), tools...)
}

// MakeThread starts a fresh conversation thread.
func (a *Assistant) MakeThread() {
	a.thread = nil
}

func (a *Assistant) AddMessage(content string) {
	a.thread = append(a.thread, llm.Message{Role: llm.RoleUser, Content: content})
	a.chats = append(a.chats, Chat{FromName: "user", ToName: a.name, Message: content, Created: a.opts.Clock.Now()})
}

// RunThread runs the thread until the assistant replies. When toolbox names
// are given only those tools are offered.
func (a *Assistant) RunThread(ctx context.Context, toolbox ...string) (string, error) {
	tools := a.tools
	if len(toolbox) > 0 {
		tools = filterTools(a.tools, toolbox)
		if len(tools) == 0 {
			return "", fmt.Errorf("assistant %s has none of the tools %v", a.name, toolbox)
		}
	}

	result, err := Run(ctx, a.client, RunRequest{
		Model:       a.opts.Model,
		System:      a.instructions,
		Messages:    a.thread,
		Tools:       tools,
		MaxRounds:   a.opts.MaxRounds,
		Temperature: a.opts.Temperature,
		MaxTokens:   a.opts.MaxTokens,
		Logger:      a.opts.Logger,
	})
	a.usage = a.usage.Add(result.Usage)
	a.cost += result.Cost
	a.calls += result.Calls
	if len(result.Messages) > 0 {
		a.thread = result.Messages
	}
	now := a.opts.Clock.Now()
	for _, inv := range result.Invocations {
		a.chats = append(a.chats, Chat{FromName: a.name, ToName: inv.Name, Message: inv.Arguments, Created: now})
		a.chats = append(a.chats, Chat{FromName: inv.Name, ToName: a.name, Message: inv.Output, Created: now})
	}
	if err != nil {
		return "", fmt.Errorf("run thread for %s: %w", a.name, err)
	}
	a.chats = append(a.chats, Chat{FromName: a.name, ToName: "user", Message: result.Content, Created: now})
	return result.Content, nil
}

// RunValidation fails when the validation hook reports a problem.
func (a *Assistant) RunValidation(validate func() (bool, string)) error {
	if validate == nil {
		return nil
	}
	if ok, message := validate(); !ok {
		return fmt.Errorf("validation failed for %s: %s", a.name, message)
	}
	return nil
}

// SpyOnAssistant writes the assistant transcript through the recorder.
func (a *Assistant) SpyOnAssistant(recorder Recorder) error {
	if recorder == nil {
		return nil
	}
	return recorder.WriteAgentChats(a.name, a.chats)
}

// CostsAndTokens writes and returns the accumulated spend.
func (a *Assistant) CostsAndTokens(recorder Recorder) (CostReport, error) {
	report := CostReport{
		Team:             a.name,
		Cost:             a.cost,
		Tokens:           a.usage.TotalTokens,
		PromptTokens:     a.usage.PromptTokens,
		CompletionTokens: a.usage.CompletionTokens,
		Calls:            a.calls,
	}
	if recorder == nil {
		return report, nil
	}
	return report, recorder.WriteAgentCost(a.name, report)
}

func (a *Assistant) Chats() []Chat {
	return append([]Chat(nil), a.chats...)
}

func filterTools(tools []Tool, names []string) []Tool {
	allowed := make(map[string]struct{}, len(names))
	for _, name := range names {
		allowed[name] = struct{}{}
	}
	out := make([]Tool, 0, len(names))
	for _, tool := range tools {
		if _, ok := allowed[tool.Spec.Name]; ok {
			out = append(out, tool)
		}
	}
	return out
}
