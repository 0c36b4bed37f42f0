package dataagent

import (
	"bytes"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dataagent/dataagent/internal/agent"
	"github.com/dataagent/dataagent/internal/embeddings"
	"github.com/dataagent/dataagent/internal/store"
	"github.com/dataagent/dataagent/internal/warehouse"
)

func TestMain(m *testing.M) {
	color.NoColor = true
	m.Run()
}

func TestRenderResultPrintsRowsAndInsights(t *testing.T) {
	var buf bytes.Buffer
	RenderResult(&buf, agent.ConversationResult{
		SessionID:  "turbo4events_per_day__12_22_22",
		RunMode:    "Direct",
		Success:    true,
		Confidence: 4,
		SQL:        "SELECT date, events FROM atomic.daily",
		Result: []any{
			map[string]any{"date": "2024-01-01", "events": float64(3)},
			map[string]any{"date": "2024-01-02", "events": float64(5)},
		},
		Visualization: &agent.Visualization{Format: agent.FormatLineChart},
		Innovations:   []agent.Innovation{{Insight: "Weekend dip", ActionableBusinessValue: "Shift campaigns"}},
		Suggestions:   []string{"events per week"},
		Tokens:        42,
		Cost:          0.0012,
	})

	out := buf.String()
	assert.Contains(t, out, "Session turbo4events_per_day__12_22_22 (Direct)")
	assert.Contains(t, out, "Success, confidence 4")
	assert.Contains(t, out, "SELECT date, events FROM atomic.daily")
	assert.Contains(t, out, "2024-01-02")
	assert.Regexp(t, `\|\s+5\s+\|`, out)
	assert.Contains(t, out, "1. Weekend dip")
	assert.Contains(t, out, "- events per week")
	assert.Contains(t, out, "tokens=42 cost=$0.0012")
}

func TestRenderResultShowsRejection(t *testing.T) {
	var buf bytes.Buffer
	RenderResult(&buf, agent.ConversationResult{
		SessionID:    "turbo4hello__09_00_00",
		RunMode:      "AssistantAPI",
		ErrorMessage: "Gate Team Rejected - Confidence too low: 1",
		FollowUp:     "Ask about tables, counts or trends.",
	})

	out := buf.String()
	assert.Contains(t, out, "Gate Team Rejected - Confidence too low: 1")
	assert.Contains(t, out, "Ask about tables, counts or trends.")
	assert.NotContains(t, out, "SQL")
}

func TestRenderTablesAndSessions(t *testing.T) {
	var buf bytes.Buffer
	RenderTables(&buf, []warehouse.TableDefinition{{
		Schema:  "atomic",
		Name:    "events",
		Columns: []warehouse.Column{{Name: "event_id"}, {Name: "collector_tstamp"}},
	}})
	assert.Contains(t, buf.String(), "atomic.events")
	assert.Contains(t, buf.String(), "event_id, collector_tstamp")

	buf.Reset()
	RenderSessions(&buf, []store.SessionSummary{{
		SessionID: "turbo4events__12_22_22",
		Prompt:    "events",
		RunMode:   "Autogen",
		Success:   true,
		CreatedAt: time.Date(2024, 1, 2, 12, 22, 22, 0, time.UTC),
	}})
	assert.Contains(t, buf.String(), "turbo4events__12_22_22")
	assert.Contains(t, buf.String(), "2024-01-02T12:22:22Z")

	buf.Reset()
	RenderMatches(&buf, []embeddings.Match{{Table: "atomic.events", Score: 0.5}})
	assert.Contains(t, buf.String(), "0.5000")
}

func TestFormatCell(t *testing.T) {
	assert.Equal(t, "", formatCell(nil))
	assert.Equal(t, "3", formatCell(float64(3)))
	assert.Equal(t, "2.5", formatCell(2.5))
	assert.Equal(t, "true", formatCell(true))
	assert.Equal(t, `{"a":1}`, formatCell(map[string]any{"a": 1}))
}

func TestRootCommandRegistersSubcommands(t *testing.T) {
	root := NewRootCmd()
	names := map[string]bool{}
	for _, cmd := range root.Commands() {
		names[cmd.Name()] = true
	}
	for _, want := range []string{"ask", "schema", "index", "sessions"} {
		require.True(t, names[want], want)
	}
}

func TestAskRejectsUnknownRunMode(t *testing.T) {
	root := NewRootCmd()
	root.SetArgs([]string{"ask", "--run-mode", "bogus", "events per day"})
	var stderr bytes.Buffer
	root.SetErr(&stderr)
	root.SetOut(&stderr)
	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid run mode")
}
