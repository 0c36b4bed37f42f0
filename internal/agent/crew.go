package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dataagent/dataagent/internal/llm"
)

type CrewAgent struct {
	Role      string
	Goal      string
	Backstory string
	Tools     []Tool
}

func (a *CrewAgent) systemPrompt() string {
	return fmt.Sprintf("You are %s. %s\nYour personal goal is: %s", a.Role, a.Backstory, a.Goal)
}

type Task struct {
	Name        string
	Description string
	Agent       *CrewAgent
}

type TaskOutput struct {
	Task   string `json:"task"`
	Agent  string `json:"agent"`
	Output string `json:"output"`
}

type CrewResult struct {
	Outputs []TaskOutput
	Final   string
	Chats   []Chat
	Usage   llm.Usage
	Cost    float64
	Calls   int
}

// Output returns the output of the named task.
func (r CrewResult) Output(task string) (string, bool) {
	for _, out := range r.Outputs {
		if out.Task == task {
			return out.Output, true
		}
	}
	return "", false
}

// Crew executes its tasks in order; every task sees the outputs of the tasks
// before it as context.
type Crew struct {
	Name  string
	Tasks []*Task

	client llm.Client
	opts   Options
}

func NewCrew(name string, client llm.Client, opts Options) *Crew {
	return &Crew{Name: name, client: client, opts: opts.withDefaults()}
}

func (c *Crew) AddTask(task *Task) *Crew {
	c.Tasks = append(c.Tasks, task)
	return c
}

func (c *Crew) Kickoff(ctx context.Context) (CrewResult, error) {
	var result CrewResult
	for _, task := range c.Tasks {
		if task.Agent == nil {
			return result, fmt.Errorf("task %s has no agent", task.Name)
		}
		prompt := buildTaskPrompt(task, result.Outputs)
		result.Chats = append(result.Chats, Chat{FromName: c.Name, ToName: task.Agent.Role, Message: prompt, Created: c.opts.Clock.Now()})

		run, err := Run(ctx, c.client, RunRequest{
			Model:       c.opts.Model,
			System:      task.Agent.systemPrompt(),
			Messages:    []llm.Message{{Role: llm.RoleUser, Content: prompt}},
			Tools:       task.Agent.Tools,
			MaxRounds:   c.opts.MaxRounds,
			Temperature: c.opts.Temperature,
			MaxTokens:   c.opts.MaxTokens,
			Logger:      c.opts.Logger,
		})
		result.Usage = result.Usage.Add(run.Usage)
		result.Cost += run.Cost
		result.Calls += run.Calls
		if err != nil {
			return result, fmt.Errorf("crew task %s: %w", task.Name, err)
		}

		output := strings.TrimSpace(run.Content)
		result.Outputs = append(result.Outputs, TaskOutput{Task: task.Name, Agent: task.Agent.Role, Output: output})
		result.Chats = append(result.Chats, Chat{FromName: task.Agent.Role, ToName: c.Name, Message: output, Created: c.opts.Clock.Now()})
		result.Final = output
		c.opts.Logger.Info("crew task finished", slog.String("crew", c.Name), slog.String("task", task.Name), slog.String("agent", task.Agent.Role))
	}
	return result, nil
}

func buildTaskPrompt(task *Task, previous []TaskOutput) string {
	var b strings.Builder
	b.WriteString("Current Task: ")
	b.WriteString(strings.TrimSpace(task.Description))
	if len(previous) > 0 {
		b.WriteString("\n\nThis is the context you're working with:\n")
		for _, out := range previous {
			fmt.Fprintf(&b, "\n[%s] %s\n", out.Agent, out.Output)
		}
	}
	return b.String()
}
