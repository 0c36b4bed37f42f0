package embeddings

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dataagent/dataagent/internal/store"
	"github.com/dataagent/dataagent/internal/warehouse"
)

type staticSource struct {
	defs []warehouse.TableDefinition
}

func (s staticSource) TableDefinitions(context.Context) ([]warehouse.TableDefinition, error) {
	return s.defs, nil
}

// keywordEmbedder maps text onto three axes: users, orders, events.
type keywordEmbedder struct {
	mu    sync.Mutex
	calls [][]string
}

func (k *keywordEmbedder) Model() string { return "keyword" }

func (k *keywordEmbedder) Embed(_ context.Context, texts []string) ([][]float64, error) {
	k.mu.Lock()
	k.calls = append(k.calls, texts)
	k.mu.Unlock()
	out := make([][]float64, len(texts))
	for i, text := range texts {
		lower := strings.ToLower(text)
		out[i] = []float64{
			float64(strings.Count(lower, "user")),
			float64(strings.Count(lower, "order")),
			float64(strings.Count(lower, "event")),
		}
	}
	return out, nil
}

func (k *keywordEmbedder) callCount() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.calls)
}

func testDefs() []warehouse.TableDefinition {
	return []warehouse.TableDefinition{
		{Schema: "atomic", Name: "users", Columns: []warehouse.Column{{Name: "user_id", DataType: "bigint"}}},
		{Schema: "atomic", Name: "orders", Columns: []warehouse.Column{{Name: "order_id", DataType: "bigint"}, {Name: "user_id", DataType: "bigint"}}},
		{Schema: "atomic", Name: "events", Columns: []warehouse.Column{{Name: "event_id", DataType: "text"}}},
	}
}

func TestSimilarTablesRanksByCosine(t *testing.T) {
	embedder := &keywordEmbedder{}
	db := NewDatabaseEmbedder(staticSource{defs: testDefs()}, embedder, Options{TopK: 1})

	matches, err := db.SimilarTables(context.Background(), "which events happened most", 2)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "atomic.events", matches[0].Table)
	assert.InDelta(t, 1.0, matches[0].Score, 1e-9)

	defs, err := db.SimilarTableDefsForPrompt(context.Background(), "which events happened most")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(defs, "CREATE TABLE atomic.events"))
	assert.NotContains(t, defs, "atomic.users")
}

func TestSimilarTableDefsJoinsWithBlankLines(t *testing.T) {
	db := NewDatabaseEmbedder(staticSource{defs: testDefs()}, &keywordEmbedder{}, Options{TopK: 10})
	defs, err := db.SimilarTableDefsForPrompt(context.Background(), "orders per user")
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(defs, "\n\nCREATE TABLE"))
}

func TestPromptVectorsAreCached(t *testing.T) {
	embedder := &keywordEmbedder{}
	db := NewDatabaseEmbedder(staticSource{defs: testDefs()}, embedder, Options{})

	_, err := db.SimilarTables(context.Background(), "orders", 3)
	require.NoError(t, err)
	_, err = db.SimilarTables(context.Background(), "orders", 3)
	require.NoError(t, err)

	// one call for the index, one for the prompt
	assert.Equal(t, 2, embedder.callCount())
}

func TestEmptyCatalogReturnsEmptyString(t *testing.T) {
	db := NewDatabaseEmbedder(staticSource{}, &keywordEmbedder{}, Options{})
	defs, err := db.SimilarTableDefsForPrompt(context.Background(), "anything")
	require.NoError(t, err)
	assert.Empty(t, defs)
}

func TestIndexReusesPersistedVectors(t *testing.T) {
	repo := store.NewMemory()
	defs := testDefs()
	embedder := &keywordEmbedder{}

	first := NewDatabaseEmbedder(staticSource{defs: defs}, embedder, Options{Store: repo})
	require.NoError(t, first.Index(context.Background()))
	require.Equal(t, 1, embedder.callCount())

	persisted, err := repo.ListTableEmbeddings(context.Background(), "keyword")
	require.NoError(t, err)
	assert.Len(t, persisted, 3)

	defs[0].Columns = append(defs[0].Columns, warehouse.Column{Name: "email", DataType: "text"})
	second := NewDatabaseEmbedder(staticSource{defs: defs}, embedder, Options{Store: repo})
	require.NoError(t, second.Index(context.Background()))
	require.Equal(t, 2, embedder.callCount())
	assert.Equal(t, []string{defs[0].DDL()}, embedder.calls[1])
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, CosineSimilarity([]float64{1, 2}, []float64{2, 4}), 1e-9)
	assert.InDelta(t, 0.0, CosineSimilarity([]float64{1, 0}, []float64{0, 1}), 1e-9)
	assert.Equal(t, 0.0, CosineSimilarity([]float64{0, 0}, []float64{1, 1}))
	assert.Equal(t, 0.0, CosineSimilarity([]float64{1}, []float64{1, 1}))
}

func TestHashEmbedderIsDeterministic(t *testing.T) {
	h := HashEmbedder{Dims: 32}
	a, err := h.Embed(context.Background(), []string{"Top users by orders", "top users by ORDERS"})
	require.NoError(t, err)
	assert.Equal(t, a[0], a[1])
	assert.InDelta(t, 1.0, CosineSimilarity(a[0], a[1]), 1e-9)
	assert.Equal(t, "hash-32", h.Model())
}

func TestHashEmbedderBucketsHighHashTokens(t *testing.T) {
	// fnv32a("revenue") = 0xcf5c1f9b, above the int32 range.
	h := HashEmbedder{Dims: 7}
	vectors, err := h.Embed(context.Background(), []string{"revenue"})
	require.NoError(t, err)
	require.Len(t, vectors[0], 7)
	for i, v := range vectors[0] {
		if i == 5 {
			assert.InDelta(t, 1.0, v, 1e-9)
			continue
		}
		assert.Zero(t, v)
	}
}
