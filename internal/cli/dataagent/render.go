package dataagent

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"

	"github.com/dataagent/dataagent/internal/agent"
	"github.com/dataagent/dataagent/internal/embeddings"
	"github.com/dataagent/dataagent/internal/store"
	"github.com/dataagent/dataagent/internal/warehouse"
)

var (
	headingColor = color.New(color.FgCyan, color.Bold)
	successColor = color.New(color.FgGreen)
	failureColor = color.New(color.FgRed)
	noteColor    = color.New(color.FgYellow)
)

// RenderResult prints a prompt outcome: status, SQL, result rows, follow-up
// insights and suggestions.
func RenderResult(w io.Writer, result agent.ConversationResult) {
	_, _ = headingColor.Fprintf(w, "Session %s (%s)\n", result.SessionID, result.RunMode)
	if result.Success {
		_, _ = successColor.Fprintf(w, "Success, confidence %d\n", result.Confidence)
	} else {
		_, _ = failureColor.Fprintln(w, result.ErrorMessage)
	}

	if result.SQL != "" {
		_, _ = headingColor.Fprintln(w, "\nSQL")
		_, _ = fmt.Fprintln(w, result.SQL)
	}

	if rows, ok := result.Result.([]any); ok && len(rows) > 0 {
		_, _ = headingColor.Fprintln(w, "\nResult")
		renderRows(w, rows)
	} else if result.Result != nil {
		_, _ = headingColor.Fprintln(w, "\nResult")
		_, _ = fmt.Fprintln(w, formatCell(result.Result))
	}

	if result.Visualization != nil {
		_, _ = noteColor.Fprintf(w, "\nSuggested chart: %s\n", result.Visualization.Format)
	}

	if len(result.Innovations) > 0 {
		_, _ = headingColor.Fprintln(w, "\nInsights")
		for i, innovation := range result.Innovations {
			_, _ = fmt.Fprintf(w, "%d. %s\n   %s\n", i+1, innovation.Insight, innovation.ActionableBusinessValue)
		}
	}

	if len(result.Suggestions) > 0 {
		_, _ = headingColor.Fprintln(w, "\nTry next")
		for _, suggestion := range result.Suggestions {
			_, _ = fmt.Fprintf(w, "- %s\n", suggestion)
		}
	}

	if result.FollowUp != "" && !result.Success {
		_, _ = noteColor.Fprintf(w, "\n%s\n", result.FollowUp)
	}

	_, _ = fmt.Fprintf(w, "\ntokens=%d cost=$%.4f\n", result.Tokens, result.Cost)
}

// renderRows prints row objects as a table with columns in sorted order.
func renderRows(w io.Writer, rows []any) {
	columnSet := map[string]struct{}{}
	for _, row := range rows {
		if record, ok := row.(map[string]any); ok {
			for key := range record {
				columnSet[key] = struct{}{}
			}
		}
	}
	if len(columnSet) == 0 {
		for _, row := range rows {
			_, _ = fmt.Fprintln(w, formatCell(row))
		}
		return
	}
	columns := make([]string, 0, len(columnSet))
	for key := range columnSet {
		columns = append(columns, key)
	}
	sort.Strings(columns)

	table := newTable(w, columns)
	for _, row := range rows {
		record, _ := row.(map[string]any)
		cells := make([]string, len(columns))
		for i, column := range columns {
			cells[i] = formatCell(record[column])
		}
		table.Append(cells)
	}
	table.Render()
}

func RenderTables(w io.Writer, defs []warehouse.TableDefinition) {
	table := newTable(w, []string{"Table", "Columns", "Column Names"})
	for _, def := range defs {
		names := ""
		for i, col := range def.Columns {
			if i > 0 {
				names += ", "
			}
			names += col.Name
		}
		table.Append([]string{def.QualifiedName(), strconv.Itoa(len(def.Columns)), names})
	}
	table.Render()
}

func RenderMatches(w io.Writer, matches []embeddings.Match) {
	table := newTable(w, []string{"Table", "Score"})
	for _, match := range matches {
		table.Append([]string{match.Table, strconv.FormatFloat(match.Score, 'f', 4, 64)})
	}
	table.Render()
}

func RenderSessions(w io.Writer, sessions []store.SessionSummary) {
	table := newTable(w, []string{"Session", "Run Mode", "Success", "Created", "Prompt"})
	for _, session := range sessions {
		table.Append([]string{
			session.SessionID,
			session.RunMode,
			strconv.FormatBool(session.Success),
			session.CreatedAt.UTC().Format(time.RFC3339),
			session.Prompt,
		})
	}
	table.Render()
}

func newTable(w io.Writer, header []string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_CENTER)
	table.SetAutoFormatHeaders(false)
	table.SetBorder(true)
	table.SetHeader(header)
	return table
}

func formatCell(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(encoded)
	}
}
