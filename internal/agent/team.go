package agent

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dataagent/dataagent/internal/llm"
)

type Member struct {
	Name         string
	Instructions string
	Tools        []Tool
	// Relay members forward the message they receive without calling the model.
	Relay bool
}

// Team runs a fixed roster of members in order.
type Team struct {
	Name            string
	Members         []Member
	ValidateResults func() (bool, string)

	client llm.Client
	opts   Options
	chats  []Chat
	usage  llm.Usage
	cost   float64
	calls  int
}

func NewTeam(name string, client llm.Client, opts Options, members ...Member) *Team {
	return &Team{Name: name, Members: members, client: client, opts: opts.withDefaults()}
}

// SequentialConversation hands the prompt to the first member and each reply
// to the next member in turn.
func (t *Team) SequentialConversation(ctx context.Context, prompt string) (ConversationResult, error) {
	if len(t.Members) == 0 {
		return ConversationResult{}, fmt.Errorf("team %s has no members", t.Name)
	}
	message := prompt
	from := "user"
	for _, member := range t.Members {
		reply, err := t.turn(ctx, from, member, message)
		if err != nil {
			return t.result(false, err.Error()), err
		}
		message = reply
		from = member.Name
	}
	return t.finish(message), nil
}

// BroadcastConversation sends the prompt to the first member and its reply to
// every other member independently.
func (t *Team) BroadcastConversation(ctx context.Context, prompt string) (ConversationResult, error) {
	if len(t.Members) == 0 {
		return ConversationResult{}, fmt.Errorf("team %s has no members", t.Name)
	}
	first := t.Members[0]
	broadcast, err := t.turn(ctx, "user", first, prompt)
	if err != nil {
		return t.result(false, err.Error()), err
	}
	last := broadcast
	for _, member := range t.Members[1:] {
		reply, err := t.turn(ctx, first.Name, member, broadcast)
		if err != nil {
			return t.result(false, err.Error()), err
		}
		last = reply
	}
	return t.finish(last), nil
}

func (t *Team) turn(ctx context.Context, from string, member Member, message string) (string, error) {
	t.chats = append(t.chats, Chat{FromName: from, ToName: member.Name, Message: message, Created: t.opts.Clock.Now()})
	if member.Relay {
		return message, nil
	}

	result, err := Run(ctx, t.client, RunRequest{
		Model:       t.opts.Model,
		System:      member.Instructions,
		Messages:    []llm.Message{{Role: llm.RoleUser, Content: message}},
		Tools:       member.Tools,
		MaxRounds:   t.opts.MaxRounds,
		Temperature: t.opts.Temperature,
		MaxTokens:   t.opts.MaxTokens,
		Logger:      t.opts.Logger,
	})
	t.usage = t.usage.Add(result.Usage)
	t.cost += result.Cost
	t.calls += result.Calls
	now := t.opts.Clock.Now()
	for _, inv := range result.Invocations {
		t.chats = append(t.chats, Chat{FromName: member.Name, ToName: inv.Name, Message: inv.Arguments, Created: now})
		t.chats = append(t.chats, Chat{FromName: inv.Name, ToName: member.Name, Message: inv.Output, Created: now})
	}
	if err != nil {
		return "", fmt.Errorf("%s turn for %s: %w", t.Name, member.Name, err)
	}
	t.opts.Logger.Debug("agent replied", slog.String("team", t.Name), slog.String("agent", member.Name), slog.Int("chars", len(result.Content)))
	return result.Content, nil
}

func (t *Team) finish(last string) ConversationResult {
	ok, message := true, ""
	if t.ValidateResults != nil {
		ok, message = t.ValidateResults()
	}
	result := t.result(ok, message)
	result.LastMessageStr = last
	return result
}

func (t *Team) result(success bool, errorMessage string) ConversationResult {
	return ConversationResult{
		Success:      success,
		Messages:     append([]Chat(nil), t.chats...),
		Cost:         t.cost,
		Tokens:       t.usage.TotalTokens,
		ErrorMessage: errorMessage,
	}
}

func (t *Team) Report() CostReport {
	return CostReport{
		Team:             t.Name,
		Cost:             t.cost,
		Tokens:           t.usage.TotalTokens,
		PromptTokens:     t.usage.PromptTokens,
		CompletionTokens: t.usage.CompletionTokens,
		Calls:            t.calls,
	}
}

// Record writes the team transcript and spend through the recorder.
func (t *Team) Record(recorder Recorder) error {
	if recorder == nil {
		return nil
	}
	if err := recorder.WriteAgentChats(t.Name, t.chats); err != nil {
		return err
	}
	return recorder.WriteAgentCost(t.Name, t.Report())
}
