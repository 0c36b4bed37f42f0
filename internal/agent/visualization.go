package agent

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

const (
	FormatLineChart    = "line_chart"
	FormatBarChart     = "bar_chart"
	FormatScatterChart = "scatter_chart"
	FormatTable        = "table"
	FormatText         = "text"
)

type Visualization struct {
	Format  string           `json:"format"`
	Index   string           `json:"index,omitempty"`
	Columns []string         `json:"columns,omitempty"`
	Labels  []any            `json:"labels,omitempty"`
	Data    map[string][]any `json:"data,omitempty"`
	Text    string           `json:"text,omitempty"`
}

// RecommendVisualization picks a chart type for query results. rows must be a
// list of row objects; anything else is rendered as text.
func RecommendVisualization(rows any) Visualization {
	records, ok := asRecords(rows)
	if !ok {
		return Visualization{Format: FormatText, Text: fmt.Sprint(rows)}
	}
	columns := recordColumns(records)
	has := func(name string) bool {
		for _, c := range columns {
			if c == name {
				return true
			}
		}
		return false
	}

	switch {
	case has("time") || has("date"):
		index := "time"
		if !has("time") {
			index = "date"
		}
		return indexed(FormatLineChart, index, columns, records)
	case has("category") && has("value"):
		return indexed(FormatBarChart, "category", columns, records)
	case len(columns) >= 2:
		return Visualization{Format: FormatScatterChart, Columns: columns, Data: columnLists(columns, records)}
	default:
		return Visualization{Format: FormatTable, Columns: columns, Data: columnLists(columns, records)}
	}
}

// RecommendVisualizationJSON is the tool form: it decodes JSON query results
// before recommending.
func RecommendVisualizationJSON(raw string) Visualization {
	var decoded any
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &decoded); err != nil {
		return Visualization{Format: FormatText, Text: raw}
	}
	return RecommendVisualization(decoded)
}

func indexed(format, index string, columns []string, records []map[string]any) Visualization {
	rest := make([]string, 0, len(columns))
	for _, c := range columns {
		if c != index {
			rest = append(rest, c)
		}
	}
	labels := make([]any, len(records))
	for i, record := range records {
		labels[i] = record[index]
	}
	return Visualization{Format: format, Index: index, Columns: rest, Labels: labels, Data: columnLists(rest, records)}
}

func columnLists(columns []string, records []map[string]any) map[string][]any {
	out := make(map[string][]any, len(columns))
	for _, c := range columns {
		values := make([]any, len(records))
		for i, record := range records {
			values[i] = record[c]
		}
		out[c] = values
	}
	return out
}

func recordColumns(records []map[string]any) []string {
	seen := map[string]struct{}{}
	columns := make([]string, 0)
	for _, record := range records {
		for key := range record {
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			columns = append(columns, key)
		}
	}
	sort.Strings(columns)
	return columns
}

func asRecords(rows any) ([]map[string]any, bool) {
	switch v := rows.(type) {
	case []map[string]any:
		return v, true
	case []any:
		out := make([]map[string]any, 0, len(v))
		for _, item := range v {
			record, ok := item.(map[string]any)
			if !ok {
				return nil, false
			}
			out = append(out, record)
		}
		return out, true
	default:
		return nil, false
	}
}
