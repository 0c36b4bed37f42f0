package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRecommendVisualization(t *testing.T) {
	line := RecommendVisualization([]any{
		map[string]any{"date": "2024-01-01", "visits": 3.0},
		map[string]any{"date": "2024-01-02", "visits": 5.0},
	})
	assert.Equal(t, FormatLineChart, line.Format)
	assert.Equal(t, "date", line.Index)
	assert.Equal(t, []any{"2024-01-01", "2024-01-02"}, line.Labels)
	assert.Equal(t, []any{3.0, 5.0}, line.Data["visits"])
	assert.NotContains(t, line.Data, "date")

	preferTime := RecommendVisualization([]map[string]any{{"time": 1, "date": 2, "n": 3}})
	assert.Equal(t, "time", preferTime.Index)

	bar := RecommendVisualization([]map[string]any{{"category": "a", "value": 1}, {"category": "b", "value": 2}})
	assert.Equal(t, FormatBarChart, bar.Format)
	assert.Equal(t, []any{"a", "b"}, bar.Labels)
	assert.Equal(t, []any{1, 2}, bar.Data["value"])

	scatter := RecommendVisualization([]map[string]any{{"x": 1, "y": 2}})
	assert.Equal(t, FormatScatterChart, scatter.Format)
	assert.Equal(t, []string{"x", "y"}, scatter.Columns)

	table := RecommendVisualization([]map[string]any{{"count": 7}})
	assert.Equal(t, FormatTable, table.Format)

	text := RecommendVisualization("just words")
	assert.Equal(t, FormatText, text.Format)
	assert.Equal(t, "just words", text.Text)

	mixed := RecommendVisualization([]any{map[string]any{"a": 1}, "oops"})
	assert.Equal(t, FormatText, mixed.Format)
}

func TestRecommendVisualizationJSON(t *testing.T) {
	v := RecommendVisualizationJSON(`[{"category":"x","value":1}]`)
	assert.Equal(t, FormatBarChart, v.Format)

	v = RecommendVisualizationJSON("not json")
	assert.Equal(t, FormatText, v.Format)
	assert.Equal(t, "not json", v.Text)
}
