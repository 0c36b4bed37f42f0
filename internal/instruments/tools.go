package instruments

import (
	"context"
	"encoding/json"

	"github.com/dataagent/dataagent/internal/agent"
	"github.com/dataagent/dataagent/internal/llm"
)

const (
	ToolRunSQL              = "run_sql"
	ToolWriteInnovationFile = "write_innovation_file"
	ToolWriteFile           = "write_file"
	ToolWriteJSONFile       = "write_json_file"
	ToolWriteYAMLFile       = "write_yml_file"
)

func (in *Instruments) RunSQLTool() agent.Tool {
	return agent.Tool{
		Spec: llm.ToolSpec{
			Name:        ToolRunSQL,
			Description: "Run a SQL query against the postgres database",
			Parameters: []llm.Parameter{
				{Name: "sql", Type: "string", Description: "The SQL query to run", Required: true},
			},
		},
		Func: func(ctx context.Context, args json.RawMessage) (string, error) {
			sql, err := agent.StringArg(args, "sql")
			if err != nil {
				return "", err
			}
			return in.RunSQL(ctx, sql)
		},
	}
}

func (in *Instruments) WriteInnovationTool() agent.Tool {
	return contentTool(ToolWriteInnovationFile, "Write a JSON list of innovations to a numbered innovation file", in.WriteInnovationFile)
}

// Tools returns every agent function bound to this session.
func (in *Instruments) Tools() []agent.Tool {
	return []agent.Tool{
		in.RunSQLTool(),
		in.WriteInnovationTool(),
		contentTool(ToolWriteFile, "Write text content to a file", in.WriteFile),
		contentTool(ToolWriteJSONFile, "Write a JSON document to a file", in.WriteJSONFile),
		contentTool(ToolWriteYAMLFile, "Convert a JSON document to YAML and write it to a file", in.WriteYAMLFile),
	}
}

func contentTool(name, description string, fn func(string) (string, error)) agent.Tool {
	return agent.Tool{
		Spec: llm.ToolSpec{
			Name:        name,
			Description: description,
			Parameters: []llm.Parameter{
				{Name: "content", Type: "string", Description: "The content to write", Required: true},
			},
		},
		Func: func(_ context.Context, args json.RawMessage) (string, error) {
			content, err := agent.StringArg(args, "content")
			if err != nil {
				return "", err
			}
			return fn(content)
		},
	}
}
