package instruments

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dataagent/dataagent/internal/agent"
	"github.com/dataagent/dataagent/internal/warehouse"
)

type fakeWarehouse struct {
	json string
	err  error
	sql  []string
}

func (f *fakeWarehouse) Ping(context.Context) error { return nil }

func (f *fakeWarehouse) Query(context.Context, string) (warehouse.Result, error) {
	return warehouse.Result{}, nil
}

func (f *fakeWarehouse) RunSQL(_ context.Context, sql string) (string, error) {
	f.sql = append(f.sql, sql)
	return f.json, f.err
}

func (f *fakeWarehouse) TableDefinitions(context.Context) ([]warehouse.TableDefinition, error) {
	return nil, nil
}

func (f *fakeWarehouse) Explain(context.Context, string) error { return nil }

func openTest(t *testing.T, wh warehouse.Manager) *Instruments {
	t.Helper()
	in, err := Open(context.Background(), Options{BaseDir: t.TempDir(), SessionID: "turbo4_top_users__10_11_12", Warehouse: wh})
	require.NoError(t, err)
	t.Cleanup(func() { _ = in.Close() })
	return in
}

func TestOpenCreatesAndClearsSessionDir(t *testing.T) {
	base := t.TempDir()
	root := filepath.Join(base, "s1")
	require.NoError(t, os.MkdirAll(root, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "stale.json"), []byte("old"), 0o644))

	in, err := Open(context.Background(), Options{BaseDir: base, SessionID: "s1"})
	require.NoError(t, err)
	assert.Equal(t, root, in.RootDir())

	files, err := in.Files()
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestOpenRejectsBadSessionIDs(t *testing.T) {
	for _, id := range []string{"", "..", "a/b"} {
		_, err := Open(context.Background(), Options{BaseDir: t.TempDir(), SessionID: id})
		assert.ErrorIs(t, err, ErrInvalidFileName, id)
	}
	_, err := Open(context.Background(), Options{SessionID: "ok"})
	assert.Error(t, err)
}

func TestPaths(t *testing.T) {
	in := openTest(t, nil)
	assert.Equal(t, filepath.Join(in.RootDir(), "agent_chats_Turbo4.json"), in.AgentChatFile("Turbo4"))
	assert.Equal(t, filepath.Join(in.RootDir(), "agent_cost_Turbo4.json"), in.AgentCostFile("Turbo4"))
	assert.Equal(t, filepath.Join(in.RootDir(), "run_sql_results.json"), in.RunSQLResultsFile())
	assert.Equal(t, filepath.Join(in.RootDir(), "sql_query.sql"), in.SQLQueryFile())
	assert.Equal(t, filepath.Join(in.RootDir(), "2_innovation_file.json"), in.InnovationFile(2))
}

func TestRunSQLWritesResultsAndQuery(t *testing.T) {
	wh := &fakeWarehouse{json: "[\n    {\n        \"n\": 1\n    }\n]"}
	in := openTest(t, wh)

	ok, message := in.ValidateRunSQL()
	assert.False(t, ok)
	assert.Equal(t, "File "+in.RunSQLResultsFile()+" is empty", message)

	reply, err := in.RunSQL(context.Background(), "SELECT 1 AS n")
	require.NoError(t, err)
	assert.Equal(t, "Successfully delivered results to json file", reply)

	ok, _ = in.ValidateRunSQL()
	assert.True(t, ok)

	sql, err := os.ReadFile(in.SQLQueryFile())
	require.NoError(t, err)
	assert.Equal(t, "SELECT 1 AS n", string(sql))
}

func TestRunSQLPropagatesWarehouseErrors(t *testing.T) {
	in := openTest(t, &fakeWarehouse{err: warehouse.ErrReadOnly})
	_, err := in.RunSQL(context.Background(), "DROP TABLE x")
	assert.ErrorIs(t, err, warehouse.ErrReadOnly)

	_, err = openTest(t, nil).RunSQL(context.Background(), "SELECT 1")
	assert.Error(t, err)
}

func TestWriteFiles(t *testing.T) {
	in := openTest(t, nil)

	_, err := in.WriteFile("hello")
	require.NoError(t, err)

	_, err = in.WriteJSONFile("```json\n{\"a\":[1,2]}\n```")
	require.NoError(t, err)
	body, err := os.ReadFile(in.FilePath(WriteJSONFileName))
	require.NoError(t, err)
	assert.Equal(t, "{\n    \"a\": [\n        1,\n        2\n    ]\n}", string(body))

	_, err = in.WriteJSONFile("not json")
	assert.Error(t, err)

	_, err = in.WriteYAMLFile(`{"name":"report","tags":["a","b"]}`)
	require.NoError(t, err)
	body, err = os.ReadFile(in.FilePath(WriteYAMLFileName))
	require.NoError(t, err)
	assert.Equal(t, "name: report\ntags:\n    - a\n    - b\n", string(body))

	files, err := in.Files()
	require.NoError(t, err)
	names := make([]string, 0, len(files))
	for _, f := range files {
		names = append(names, f.Name)
	}
	assert.Equal(t, []string{"write_file.txt", "write_json_file.json", "write_yml_file.yml"}, names)
}

func TestInnovationFilesAndPopulateConversationResult(t *testing.T) {
	in := openTest(t, &fakeWarehouse{json: `[{"n":1}]`})
	_, err := in.RunSQL(context.Background(), "SELECT 1 AS n")
	require.NoError(t, err)

	reply, err := in.WriteInnovationFile(`[{"insight":"i1","actionable_business_value":"v1","sql":"SELECT 1"}]`)
	require.NoError(t, err)
	assert.Equal(t, "Successfully wrote innovation file. You can check my work.", reply)
	_, err = in.WriteInnovationFile("```json\n{\"insight\":\"i2\",\"actionable_business_value\":\"v2\",\"sql\":\"SELECT 2\"}\n```")
	require.NoError(t, err)
	assert.Equal(t, 2, in.InnovationCount())

	ok, _ := in.ValidateInnovationFiles()
	assert.True(t, ok)

	result, sql, innovations, err := in.PopulateConversationResult()
	require.NoError(t, err)
	assert.Equal(t, []any{map[string]any{"n": 1.0}}, result)
	assert.Equal(t, "SELECT 1 AS n", sql)
	require.Len(t, innovations, 2)
	assert.Equal(t, agent.Innovation{Insight: "i2", ActionableBusinessValue: "v2", SQL: "SELECT 2"}, innovations[1])
}

func TestValidateInnovationFilesDetectsEmptyFile(t *testing.T) {
	in := openTest(t, nil)
	_, err := in.WriteInnovationFile(`[{"insight":"i1","sql":"SELECT 1"}]`)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(in.InnovationFile(0), nil, 0o644))
	ok, message := in.ValidateInnovationFiles()
	assert.False(t, ok)
	assert.True(t, strings.HasSuffix(message, "0_innovation_file.json is empty"))
}

func TestWriteInnovationFileRejectsProse(t *testing.T) {
	in := openTest(t, nil)
	_, err := in.WriteInnovationFile("Here are three insights about revenue.")
	require.ErrorIs(t, err, ErrInvalidInnovation)
	assert.Equal(t, 0, in.InnovationCount())
	_, statErr := os.Stat(in.InnovationFile(0))
	assert.True(t, os.IsNotExist(statErr))
}

func TestPopulateConversationResultKeepsRowsWhenInnovationsAreInvalid(t *testing.T) {
	in := openTest(t, &fakeWarehouse{json: `[{"n":1}]`})
	_, err := in.RunSQL(context.Background(), "SELECT 1 AS n")
	require.NoError(t, err)
	_, err = in.WriteInnovationFile(`[{"insight":"i1","sql":"SELECT 1"}]`)
	require.NoError(t, err)
	_, err = in.WriteInnovationFile(`[{"insight":"i2","sql":"SELECT 2"}]`)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(in.InnovationFile(0), []byte("not json"), 0o644))

	result, sql, innovations, err := in.PopulateConversationResult()
	require.ErrorIs(t, err, ErrInvalidInnovation)
	assert.Equal(t, []any{map[string]any{"n": 1.0}}, result)
	assert.Equal(t, "SELECT 1 AS n", sql)
	require.Len(t, innovations, 1)
	assert.Equal(t, "i2", innovations[0].Insight)
}

func TestPopulateConversationResultRequiresResults(t *testing.T) {
	_, _, _, err := openTest(t, nil).PopulateConversationResult()
	assert.Error(t, err)
}

func TestToolsDispatchToInstrumentFunctions(t *testing.T) {
	wh := &fakeWarehouse{json: `[]`}
	in := openTest(t, wh)

	tools := map[string]agent.Tool{}
	for _, tool := range in.Tools() {
		tools[tool.Spec.Name] = tool
	}
	require.Len(t, tools, 5)

	out, err := tools[ToolRunSQL].Func(context.Background(), json.RawMessage(`{"sql":"SELECT 1"}`))
	require.NoError(t, err)
	assert.Equal(t, RunSQLSuccessMessage, out)
	assert.Equal(t, []string{"SELECT 1"}, wh.sql)

	out, err = tools[ToolWriteInnovationFile].Func(context.Background(), json.RawMessage(`{"content":[{"insight":"x"}]}`))
	require.NoError(t, err)
	assert.Equal(t, InnovationSuccessMessage, out)

	_, err = tools[ToolWriteFile].Func(context.Background(), json.RawMessage(`{}`))
	assert.Error(t, err)

	spec := tools[ToolRunSQL].Spec
	assert.Equal(t, "Run a SQL query against the postgres database", spec.Description)
	assert.Equal(t, []string{"sql"}, spec.JSONSchema()["required"])
}

func TestAgentChatAndCostFiles(t *testing.T) {
	in := openTest(t, nil)
	require.NoError(t, in.WriteAgentChats("Turbo4", []agent.Chat{{FromName: "user", ToName: "Turbo4", Message: "hi"}}))
	require.NoError(t, in.WriteAgentCost("Turbo4", agent.CostReport{Team: "Turbo4", Tokens: 3}))

	body, err := os.ReadFile(in.AgentCostFile("Turbo4"))
	require.NoError(t, err)
	var report agent.CostReport
	require.NoError(t, json.Unmarshal(body, &report))
	assert.Equal(t, 3, report.Tokens)
}

func TestSyncMessagesAndClose(t *testing.T) {
	closed := 0
	in, err := Open(context.Background(), Options{BaseDir: t.TempDir(), SessionID: "s", OnClose: func() error {
		closed++
		return errors.New("closed")
	}})
	require.NoError(t, err)

	in.SyncMessages([]agent.Chat{{Message: "a"}})
	assert.Len(t, in.Messages(), 1)

	assert.EqualError(t, in.Close(), "closed")
	assert.NoError(t, in.Close())
	assert.Equal(t, 1, closed)
}

func TestSessionFilePath(t *testing.T) {
	path, err := SessionFilePath("/data", "s1", "sql_query.sql")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/data", "s1", "sql_query.sql"), path)

	_, err = SessionFilePath("/data", "s1", "../etc/passwd")
	assert.ErrorIs(t, err, ErrInvalidFileName)
}
