package instruments

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/dataagent/dataagent/internal/agent"
)

// RunSQL executes sql against the warehouse and stores both the JSON results
// and the statement in the session directory.
func (in *Instruments) RunSQL(ctx context.Context, sql string) (string, error) {
	if in.warehouse == nil {
		return "", fmt.Errorf("no warehouse configured")
	}
	results, err := in.warehouse.RunSQL(ctx, sql)
	if err != nil {
		return "", fmt.Errorf("run sql: %w", err)
	}
	if err := writeFile(in.RunSQLResultsFile(), results); err != nil {
		return "", err
	}
	if err := writeFile(in.SQLQueryFile(), sql); err != nil {
		return "", err
	}
	in.log.Info("delivered sql results", slog.Int("bytes", len(results)))
	return RunSQLSuccessMessage, nil
}

// ValidateRunSQL checks that RunSQL produced a non-empty results file.
func (in *Instruments) ValidateRunSQL() (bool, string) {
	return validateNonEmpty(in.RunSQLResultsFile())
}

func (in *Instruments) WriteFile(content string) (string, error) {
	if err := writeFile(in.FilePath(WriteFileName), content); err != nil {
		return "", err
	}
	return "Successfully wrote file", nil
}

// WriteJSONFile validates content as JSON and stores it indented.
func (in *Instruments) WriteJSONFile(content string) (string, error) {
	var out bytes.Buffer
	if err := json.Indent(&out, []byte(stripFence(content)), "", "    "); err != nil {
		return "", fmt.Errorf("invalid json: %w", err)
	}
	if err := writeFile(in.FilePath(WriteJSONFileName), out.String()); err != nil {
		return "", err
	}
	return "Successfully wrote json file", nil
}

// WriteYAMLFile converts JSON content to YAML.
func (in *Instruments) WriteYAMLFile(content string) (string, error) {
	var decoded any
	if err := json.Unmarshal([]byte(stripFence(content)), &decoded); err != nil {
		return "", fmt.Errorf("invalid json: %w", err)
	}
	encoded, err := yaml.Marshal(decoded)
	if err != nil {
		return "", fmt.Errorf("encode yaml: %w", err)
	}
	if err := writeFile(in.FilePath(WriteYAMLFileName), string(encoded)); err != nil {
		return "", err
	}
	return "Successfully wrote yml file", nil
}

// WriteInnovationFile stores the next numbered innovation file. Content that
// does not decode as innovations is rejected so the model can retry.
func (in *Instruments) WriteInnovationFile(content string) (string, error) {
	if _, err := ParseInnovations(content); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidInnovation, err)
	}
	in.mu.Lock()
	defer in.mu.Unlock()
	if err := writeFile(in.InnovationFile(in.innovationIndex), content); err != nil {
		return "", err
	}
	in.innovationIndex++
	return InnovationSuccessMessage, nil
}

func (in *Instruments) InnovationCount() int {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.innovationIndex
}

// ValidateInnovationFiles checks every written innovation file has content.
func (in *Instruments) ValidateInnovationFiles() (bool, string) {
	for i := 0; i < in.InnovationCount(); i++ {
		if ok, message := validateNonEmpty(in.InnovationFile(i)); !ok {
			return false, message
		}
	}
	return true, ""
}

// PopulateConversationResult reads back what the agents delivered: the
// decoded query results, the SQL that produced them and all innovations.
func (in *Instruments) PopulateConversationResult() (any, string, []agent.Innovation, error) {
	rawResults, err := os.ReadFile(in.RunSQLResultsFile())
	if err != nil {
		return nil, "", nil, fmt.Errorf("read sql results: %w", err)
	}
	var result any
	if err := json.Unmarshal(rawResults, &result); err != nil {
		return nil, "", nil, fmt.Errorf("decode sql results: %w", err)
	}

	sql, err := os.ReadFile(in.SQLQueryFile())
	if err != nil {
		return nil, "", nil, fmt.Errorf("read sql query: %w", err)
	}

	// Unreadable innovation files are skipped; the result and sql stay usable.
	innovations := make([]agent.Innovation, 0)
	var innovationErrs []error
	for i := 0; i < in.InnovationCount(); i++ {
		content, err := os.ReadFile(in.InnovationFile(i))
		if err != nil {
			innovationErrs = append(innovationErrs, fmt.Errorf("read innovation file %d: %w", i, err))
			continue
		}
		items, err := ParseInnovations(string(content))
		if err != nil {
			innovationErrs = append(innovationErrs, fmt.Errorf("decode innovation file %d: %w", i, err))
			continue
		}
		innovations = append(innovations, items...)
	}
	if len(innovationErrs) > 0 {
		return result, string(sql), innovations, fmt.Errorf("%w: %w", ErrInvalidInnovation, errors.Join(innovationErrs...))
	}
	return result, string(sql), innovations, nil
}

// ParseInnovations decodes a JSON list of innovations, accepting a single
// object and a surrounding markdown fence.
func ParseInnovations(content string) ([]agent.Innovation, error) {
	trimmed := stripFence(content)
	if strings.HasPrefix(trimmed, "{") {
		var item agent.Innovation
		if err := json.Unmarshal([]byte(trimmed), &item); err != nil {
			return nil, err
		}
		return []agent.Innovation{item}, nil
	}
	var items []agent.Innovation
	if err := json.Unmarshal([]byte(trimmed), &items); err != nil {
		return nil, err
	}
	return items, nil
}

func (in *Instruments) WriteAgentChats(team string, chats []agent.Chat) error {
	return writeJSON(in.AgentChatFile(team), chats)
}

func (in *Instruments) WriteAgentCost(team string, report agent.CostReport) error {
	return writeJSON(in.AgentCostFile(team), report)
}

func writeJSON(path string, value any) error {
	encoded, err := json.MarshalIndent(value, "", "    ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	return writeFile(path, string(encoded))
}

func writeFile(path, content string) error {
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

func validateNonEmpty(path string) (bool, string) {
	content, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return false, fmt.Sprintf("File %s could not be read: %v", path, err)
	}
	if len(bytes.TrimSpace(content)) == 0 {
		return false, fmt.Sprintf("File %s is empty", path)
	}
	return true, ""
}

func stripFence(content string) string {
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```")
	if nl := strings.IndexByte(trimmed, '\n'); nl >= 0 && !strings.ContainsAny(trimmed[:nl], "[{") {
		trimmed = trimmed[nl+1:]
	}
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(trimmed), "```"))
}
