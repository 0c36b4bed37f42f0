package prompt

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dataagent/dataagent/internal/agent"
	"github.com/dataagent/dataagent/internal/instruments"
	"github.com/dataagent/dataagent/internal/llm"
	"github.com/dataagent/dataagent/internal/nl2sql"
)

type Executor interface {
	Execute(ctx context.Context) (agent.ConversationResult, error)
}

// session is the state every executor of one prompt shares.
type session struct {
	rawPrompt        string
	prompt           string
	tableDefinitions string
	confidence       int
	instruments      *instruments.Instruments
}

type informationalExecutor struct {
	h *Handler
	s session
}

func (e informationalExecutor) Execute(ctx context.Context) (agent.ConversationResult, error) {
	message := fmt.Sprintf(confidenceTooLow, e.s.confidence)
	result := agent.ConversationResult{Success: false, ErrorMessage: message, LastMessageStr: message}

	a := agent.NewAssistant("Informational", e.h.client, e.h.agentOptions())
	a.SetInstructions(informationalInstructions)
	a.AddMessage(withTableDefinitions(e.s.rawPrompt, e.s.tableDefinitions))
	guidance, err := a.RunThread(ctx)
	if err != nil {
		e.h.log.WarnContext(ctx, "informational reply failed", slog.Any("error", err))
	}
	result.FollowUp = guidance
	result.Messages = a.Chats()
	report, err := a.CostsAndTokens(e.s.instruments)
	if err != nil {
		e.h.log.WarnContext(ctx, "failed to record informational cost", slog.Any("error", err))
	}
	result.Cost, result.Tokens = report.Cost, report.Tokens
	return result, nil
}

type invalidExecutor struct{}

func (invalidExecutor) Execute(context.Context) (agent.ConversationResult, error) {
	return agent.ConversationResult{Success: false, ErrorMessage: invalidGateMessage, LastMessageStr: invalidGateMessage}, nil
}

// assistantExecutor drives a single tool-equipped assistant: generate SQL,
// then run it.
type assistantExecutor struct {
	h *Handler
	s session
}

func (e assistantExecutor) Execute(ctx context.Context) (agent.ConversationResult, error) {
	in := e.s.instruments
	a := agent.NewAssistant(e.h.cfg.AssistantName, e.h.client, e.h.agentOptions())
	a.SetInstructions(sqlInstructions)
	a.EquipTools(in.RunSQLTool())
	a.MakeThread()
	a.AddMessage(withTableDefinitions(e.s.prompt, e.s.tableDefinitions))

	record := func() agent.CostReport {
		if err := a.SpyOnAssistant(in); err != nil {
			e.h.log.WarnContext(ctx, "failed to record assistant chats", slog.Any("error", err))
		}
		report, err := a.CostsAndTokens(in)
		if err != nil {
			e.h.log.WarnContext(ctx, "failed to record assistant cost", slog.Any("error", err))
		}
		return report
	}

	if _, err := a.RunThread(ctx); err != nil {
		record()
		return agent.ConversationResult{}, err
	}
	a.AddMessage(runSQLInstruction)
	last, err := a.RunThread(ctx, instruments.ToolRunSQL)
	if err != nil {
		record()
		return agent.ConversationResult{}, err
	}

	result := agent.ConversationResult{Success: true, LastMessageStr: last}
	if err := a.RunValidation(in.ValidateRunSQL); err != nil {
		result.Success = false
		result.ErrorMessage = err.Error()
	}
	report := record()
	result.Messages = a.Chats()
	result.Cost, result.Tokens = report.Cost, report.Tokens
	return result, nil
}

// teamExecutor runs the round-robin data engineering team followed by the
// insights team.
type teamExecutor struct {
	h *Handler
	s session
}

func (e teamExecutor) Execute(ctx context.Context) (agent.ConversationResult, error) {
	in := e.s.instruments
	opts := e.h.agentOptions()

	dataEng := agent.NewTeam("data_eng", e.h.client, opts,
		agent.Member{Name: "Admin", Relay: true},
		agent.Member{Name: "Engineer", Instructions: engineerInstructions},
		agent.Member{Name: "Data Analyst", Instructions: analystInstructions, Tools: []agent.Tool{in.RunSQLTool()}},
	)
	dataEng.ValidateResults = in.ValidateRunSQL

	result, err := dataEng.SequentialConversation(ctx, withTableDefinitions(e.s.prompt, e.s.tableDefinitions))
	if recordErr := dataEng.Record(in); recordErr != nil {
		e.h.log.WarnContext(ctx, "failed to record data_eng team", slog.Any("error", recordErr))
	}
	in.SyncMessages(result.Messages)
	if err != nil || !result.Success {
		return result, err
	}

	insights := agent.NewTeam("data_insights", e.h.client, opts,
		agent.Member{Name: "Admin", Relay: true},
		agent.Member{Name: "Insights Reporter", Instructions: innovatorInstructions, Tools: []agent.Tool{in.WriteInnovationTool()}},
	)
	insights.ValidateResults = in.ValidateInnovationFiles
	insightResult, err := insights.BroadcastConversation(ctx, innovationPrompt(e.s.rawPrompt, e.s.tableDefinitions))
	if recordErr := insights.Record(in); recordErr != nil {
		e.h.log.WarnContext(ctx, "failed to record data_insights team", slog.Any("error", recordErr))
	}
	if err != nil {
		e.h.log.WarnContext(ctx, "insights team failed", slog.Any("error", err))
	}

	result.Messages = append(result.Messages, insightResult.Messages...)
	result.Cost += insightResult.Cost
	result.Tokens += insightResult.Tokens
	in.SyncMessages(result.Messages)
	return result, nil
}

// crewExecutor runs the six sequential crew tasks.
type crewExecutor struct {
	h *Handler
	s session
}

func (e crewExecutor) Execute(ctx context.Context) (agent.ConversationResult, error) {
	in := e.s.instruments

	dataEngineer := &agent.CrewAgent{
		Role:      "Data Engineer",
		Goal:      "Prepare and transform data for analytical or operational uses",
		Backstory: "You are a meticulous Data Engineer responsible for building and maintaining the data architecture of the company. Your expertise in data modeling, ETL processes, and data warehousing is unparalleled.",
	}
	dataAnalyst := &agent.CrewAgent{
		Role:      "Data Analyst",
		Goal:      "Analyze data to help inform business decisions",
		Backstory: "As a Data Analyst, you have a sharp eye for detail and a passion for deciphering data puzzles. You excel at turning data into meaningful insights and actionable recommendations.",
		Tools:     []agent.Tool{in.RunSQLTool(), e.tableDefinitionsTool()},
	}
	scrumMaster := &agent.CrewAgent{
		Role:      "Scrum Master",
		Goal:      "Facilitate the team's Agile practices and processes",
		Backstory: "You are the Scrum Master, the team's coach, and facilitator. Your primary goal is to ensure that the team adheres to Agile practices and works efficiently towards their goals.",
	}
	vizExpert := &agent.CrewAgent{
		Role:      "Data Visualization Expert",
		Goal:      "Recommend the best way to visualize the data and prepare it for the chosen visualization method.",
		Backstory: "As a Data Visualization Expert, you have an eye for design and a knack for presenting data in the most insightful and accessible ways. You're familiar with a variety of visualization tools and techniques.",
		Tools:     []agent.Tool{recommendVisualizationTool()},
	}

	prompt := e.s.prompt
	crew := agent.NewCrew("crew", e.h.client, e.h.agentOptions()).
		AddTask(&agent.Task{
			Name:        "assess_nlq",
			Description: "Is the following block of text a SQL Natural Language Query (NLQ)? Please rank from 1 to 5.\n\n" + prompt,
			Agent:       scrumMaster,
		}).
		AddTask(&agent.Task{
			Name: "get_table_definitions",
			Description: fmt.Sprintf("Retrieve the table definitions relevant to the current prompt using the get_table_definitions function, given the following prompt: %s. "+
				"Return in exactly the following format: '%s Use these %s to satisfy the database query.\n\ntable_definitions'", prompt, prompt, TableDefinitionsCapRef),
			Agent: dataAnalyst,
		}).
		AddTask(&agent.Task{
			Name: "generate_sql",
			Description: fmt.Sprintf("Generate a SQL query to answer the following question: %s.\n"+
				"This query will run on a database whose schema is represented by the %s.\n"+
				"When generating the SQL beware that the tables are in the '%s' schema.\n"+
				"Make sure that the SQL you generate is correct for the %s provided.\n"+
				"Only return the SQL and nothing else.", prompt, TableDefinitionsCapRef, e.h.cfg.Schema, TableDefinitionsCapRef),
			Agent: dataEngineer,
		}).
		AddTask(&agent.Task{
			Name:        "execute_sql",
			Description: "Sr Data Analyst. You run the SQL query using the run_sql function, return only the raw response.",
			Agent:       dataAnalyst,
		}).
		AddTask(&agent.Task{
			Name: "recommend_visualization",
			Description: "Recommend the best way to visualize the data and prepare it for the chosen visualization method. " +
				"Return only a json structure of the form: {\"format\": visualization_method, \"result\": prepared_data, \"sql\": generated_sql, \"tokens\": total_no_tokens, \"follow_up\": insights_generated}",
			Agent: vizExpert,
		}).
		AddTask(&agent.Task{
			Name:        "innovation",
			Description: innovationPrompt(e.s.rawPrompt, "") + " Reply with the json list itself.",
			Agent:       dataEngineer,
		})

	crewResult, err := crew.Kickoff(ctx)
	result := agent.ConversationResult{
		Messages: crewResult.Chats,
		Cost:     crewResult.Cost,
		Tokens:   crewResult.Usage.TotalTokens,
	}
	if recordErr := in.WriteAgentChats("crew", crewResult.Chats); recordErr != nil {
		e.h.log.WarnContext(ctx, "failed to record crew chats", slog.Any("error", recordErr))
	}
	if recordErr := in.WriteAgentCost("crew", agent.CostReport{
		Team:             "crew",
		Cost:             crewResult.Cost,
		Tokens:           crewResult.Usage.TotalTokens,
		PromptTokens:     crewResult.Usage.PromptTokens,
		CompletionTokens: crewResult.Usage.CompletionTokens,
		Calls:            crewResult.Calls,
	}); recordErr != nil {
		e.h.log.WarnContext(ctx, "failed to record crew cost", slog.Any("error", recordErr))
	}
	in.SyncMessages(result.Messages)
	if err != nil {
		return result, err
	}

	if viz, ok := crewResult.Output("recommend_visualization"); ok {
		result.LastMessageStr = viz
	}
	if innovations, ok := crewResult.Output("innovation"); ok && strings.TrimSpace(innovations) != "" {
		if _, err := in.WriteInnovationFile(innovations); err != nil {
			e.h.log.WarnContext(ctx, "failed to write crew innovations", slog.Any("error", err))
		}
	}

	result.Success, result.ErrorMessage = in.ValidateRunSQL()
	return result, nil
}

func (e crewExecutor) tableDefinitionsTool() agent.Tool {
	return agent.Tool{
		Spec: llm.ToolSpec{
			Name:        "get_table_definitions",
			Description: "Retrieves similar table definitions for a given prompt.",
			Parameters: []llm.Parameter{
				{Name: "prompt", Type: "string", Description: "The prompt to find relevant tables for", Required: true},
			},
		},
		Func: func(ctx context.Context, args json.RawMessage) (string, error) {
			prompt, err := agent.StringArg(args, "prompt")
			if err != nil {
				return "", err
			}
			if e.h.tables == nil {
				return e.s.tableDefinitions, nil
			}
			return e.h.tables.SimilarTableDefsForPrompt(ctx, prompt)
		},
	}
}

func recommendVisualizationTool() agent.Tool {
	return agent.Tool{
		Spec: llm.ToolSpec{
			Name:        "recommend_visualization",
			Description: "Recommends the best way to visualize the data and prepares it for the chosen visualization method.",
			Parameters: []llm.Parameter{
				{Name: "execution_results", Type: "string", Description: "The JSON results of the SQL query execution", Required: true},
			},
		},
		Func: func(_ context.Context, args json.RawMessage) (string, error) {
			results, err := agent.StringArg(args, "execution_results")
			if err != nil {
				return "", err
			}
			encoded, err := json.Marshal(agent.RecommendVisualizationJSON(results))
			if err != nil {
				return "", err
			}
			return string(encoded), nil
		},
	}
}

// directExecutor translates the question with a single completion and runs
// the SQL without further model calls.
type directExecutor struct {
	h *Handler
	s session
}

func (e directExecutor) Execute(ctx context.Context) (agent.ConversationResult, error) {
	in := e.s.instruments
	now := e.h.clock.Now

	translated, err := e.h.translator.Translate(ctx, nl2sql.Request{
		Question:         e.s.rawPrompt,
		TableDefinitions: e.s.tableDefinitions,
		Schema:           e.h.cfg.Schema,
	})
	if err != nil {
		return agent.ConversationResult{}, err
	}

	chats := []agent.Chat{
		{FromName: "user", ToName: "Translator", Message: e.s.prompt, Created: now()},
		{FromName: "Translator", ToName: instruments.ToolRunSQL, Message: translated.SQL, Created: now()},
	}
	result := agent.ConversationResult{
		Cost:   translated.Cost,
		Tokens: translated.Usage.TotalTokens,
	}

	reply, err := in.RunSQL(ctx, translated.SQL)
	if err != nil {
		reply = "error: " + err.Error()
	}
	chats = append(chats, agent.Chat{FromName: instruments.ToolRunSQL, ToName: "Translator", Message: reply, Created: now()})
	result.Messages = chats
	result.LastMessageStr = reply
	result.Success, result.ErrorMessage = in.ValidateRunSQL()
	if err != nil {
		result.Success = false
		result.ErrorMessage = err.Error()
	}

	if recordErr := in.WriteAgentChats("Translator", chats); recordErr != nil {
		e.h.log.WarnContext(ctx, "failed to record translator chats", slog.Any("error", recordErr))
	}
	if recordErr := in.WriteAgentCost("Translator", agent.CostReport{
		Team:             "Translator",
		Cost:             translated.Cost,
		Tokens:           translated.Usage.TotalTokens,
		PromptTokens:     translated.Usage.PromptTokens,
		CompletionTokens: translated.Usage.CompletionTokens,
		Calls:            1,
	}); recordErr != nil {
		e.h.log.WarnContext(ctx, "failed to record translator cost", slog.Any("error", recordErr))
	}
	in.SyncMessages(chats)
	return result, nil
}
