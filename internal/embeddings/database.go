package embeddings

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"github.com/dataagent/dataagent/internal/store"
	"github.com/dataagent/dataagent/internal/warehouse"
)

type TableSource interface {
	TableDefinitions(ctx context.Context) ([]warehouse.TableDefinition, error)
}

// VectorStore persists table vectors so restarts do not re-embed unchanged tables.
type VectorStore interface {
	UpsertTableEmbedding(ctx context.Context, in store.TableEmbedding) error
	ListTableEmbeddings(ctx context.Context, model string) ([]store.TableEmbedding, error)
}

type Options struct {
	TopK     int
	CacheTTL time.Duration
	Store    VectorStore
	Logger   *slog.Logger
}

type Match struct {
	Table      string  `json:"table"`
	Score      float64 `json:"score"`
	Definition string  `json:"definition"`
}

type indexedTable struct {
	name       string
	definition string
	vector     []float64
}

// DatabaseEmbedder keeps an in-memory vector index of the warehouse tables.
type DatabaseEmbedder struct {
	source   TableSource
	embedder Embedder
	store    VectorStore
	topK     int
	cacheTTL time.Duration
	log      *slog.Logger

	mu      sync.RWMutex
	indexed bool
	tables  []indexedTable
	cache   *ttlcache.Cache[string, []float64]
}

func NewDatabaseEmbedder(source TableSource, embedder Embedder, opts Options) *DatabaseEmbedder {
	if opts.TopK <= 0 {
		opts.TopK = 3
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 30 * time.Minute
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &DatabaseEmbedder{
		source:   source,
		embedder: embedder,
		store:    opts.Store,
		topK:     opts.TopK,
		cacheTTL: opts.CacheTTL,
		log:      opts.Logger,
		cache: ttlcache.New(
			ttlcache.WithTTL[string, []float64](opts.CacheTTL),
		),
	}
}

// Index loads every table definition and embeds the ones without a matching
// persisted vector.
func (d *DatabaseEmbedder) Index(ctx context.Context) error {
	defs, err := d.source.TableDefinitions(ctx)
	if err != nil {
		return fmt.Errorf("load table definitions: %w", err)
	}

	persisted := map[string]store.TableEmbedding{}
	if d.store != nil {
		items, err := d.store.ListTableEmbeddings(ctx, d.embedder.Model())
		if err != nil {
			d.log.Warn("failed to load persisted table embeddings", slog.Any("error", err))
		}
		for _, item := range items {
			persisted[item.TableName] = item
		}
	}

	tables := make([]indexedTable, len(defs))
	var (
		missingIdx   []int
		missingTexts []string
	)
	for i, def := range defs {
		ddl := def.DDL()
		tables[i] = indexedTable{name: def.QualifiedName(), definition: ddl}
		if item, ok := persisted[tables[i].name]; ok && item.DefinitionHash == definitionHash(ddl) {
			tables[i].vector = item.Vector
			continue
		}
		missingIdx = append(missingIdx, i)
		missingTexts = append(missingTexts, ddl)
	}

	if len(missingTexts) > 0 {
		vectors, err := d.embedder.Embed(ctx, missingTexts)
		if err != nil {
			return fmt.Errorf("embed table definitions: %w", err)
		}
		for j, idx := range missingIdx {
			tables[idx].vector = vectors[j]
			if d.store == nil {
				continue
			}
			if err := d.store.UpsertTableEmbedding(ctx, store.TableEmbedding{
				TableName:      tables[idx].name,
				Model:          d.embedder.Model(),
				DefinitionHash: definitionHash(tables[idx].definition),
				Definition:     tables[idx].definition,
				Vector:         vectors[j],
			}); err != nil {
				d.log.Warn("failed to persist table embedding", slog.String("table", tables[idx].name), slog.Any("error", err))
			}
		}
	}

	d.mu.Lock()
	d.tables = tables
	d.indexed = true
	d.mu.Unlock()

	d.log.Info("indexed table definitions", slog.Int("tables", len(tables)), slog.Int("embedded", len(missingTexts)), slog.String("model", d.embedder.Model()))
	return nil
}

// SimilarTables returns up to k tables ranked by cosine similarity to prompt.
func (d *DatabaseEmbedder) SimilarTables(ctx context.Context, prompt string, k int) ([]Match, error) {
	if err := d.ensureIndexed(ctx); err != nil {
		return nil, err
	}

	d.mu.RLock()
	tables := d.tables
	d.mu.RUnlock()
	if len(tables) == 0 {
		return nil, nil
	}

	query, err := d.promptVector(ctx, prompt)
	if err != nil {
		return nil, err
	}

	matches := make([]Match, 0, len(tables))
	for _, table := range tables {
		matches = append(matches, Match{
			Table:      table.name,
			Score:      CosineSimilarity(query, table.vector),
			Definition: table.definition,
		})
	}
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	if k > 0 && k < len(matches) {
		matches = matches[:k]
	}
	return matches, nil
}

// SimilarTableDefsForPrompt returns the top-K CREATE TABLE statements for the
// prompt separated by blank lines.
func (d *DatabaseEmbedder) SimilarTableDefsForPrompt(ctx context.Context, prompt string) (string, error) {
	matches, err := d.SimilarTables(ctx, prompt, d.topK)
	if err != nil {
		return "", err
	}
	defs := make([]string, 0, len(matches))
	for _, match := range matches {
		defs = append(defs, match.Definition)
	}
	return strings.Join(defs, "\n\n"), nil
}

func (d *DatabaseEmbedder) ensureIndexed(ctx context.Context) error {
	d.mu.RLock()
	indexed := d.indexed
	d.mu.RUnlock()
	if indexed {
		return nil
	}
	return d.Index(ctx)
}

func definitionHash(definition string) string {
	sum := sha256.Sum256([]byte(definition))
	return hex.EncodeToString(sum[:])
}
