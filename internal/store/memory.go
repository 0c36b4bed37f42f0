package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Memory is an in-process Repository used when no application database is
// configured and in tests.
type Memory struct {
	mu         sync.RWMutex
	now        func() time.Time
	sessions   map[string]SessionRecord
	embeddings map[string]TableEmbedding
}

func NewMemory() *Memory {
	return &Memory{
		now:        time.Now,
		sessions:   map[string]SessionRecord{},
		embeddings: map[string]TableEmbedding{},
	}
}

func (m *Memory) HealthCheck(context.Context) error {
	return nil
}

func (m *Memory) SaveResult(_ context.Context, in SaveResultInput) (SessionRecord, error) {
	record := RecordFromInput(in)
	record.ResultID = uuid.NewString()
	record.CreatedAt = m.now().UTC()

	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[in.SessionID] = record
	return record, nil
}

func (m *Memory) GetSession(_ context.Context, sessionID string) (SessionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	record, ok := m.sessions[sessionID]
	if !ok {
		return SessionRecord{}, ErrSessionNotFound
	}
	return record, nil
}

func (m *Memory) ListSessions(_ context.Context, limit int) ([]SessionSummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]SessionSummary, 0, len(m.sessions))
	for _, record := range m.sessions {
		out = append(out, SessionSummary{
			SessionID: record.SessionID,
			Prompt:    record.Prompt,
			RunMode:   record.RunMode,
			Success:   record.Success,
			CreatedAt: record.CreatedAt,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].SessionID > out[j].SessionID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) UpsertTableEmbedding(_ context.Context, in TableEmbedding) error {
	in.UpdatedAt = m.now().UTC()
	in.Vector = append([]float64(nil), in.Vector...)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.embeddings[in.Model+"/"+in.TableName] = in
	return nil
}

func (m *Memory) ListTableEmbeddings(_ context.Context, model string) ([]TableEmbedding, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]TableEmbedding, 0, len(m.embeddings))
	for _, item := range m.embeddings {
		if item.Model == model {
			out = append(out, item)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TableName < out[j].TableName })
	return out, nil
}

// RecordFromInput converts a save request into a record, leaving ResultID and
// CreatedAt for the repository to fill.
func RecordFromInput(in SaveResultInput) SessionRecord {
	return SessionRecord{
		SessionID:         in.SessionID,
		Prompt:            in.Prompt,
		RunMode:           in.RunMode,
		Success:           in.Success,
		ErrorMessage:      in.ErrorMessage,
		LastMessage:       in.LastMessage,
		SQL:               in.SQL,
		ResultJSON:        in.ResultJSON,
		FollowUp:          in.FollowUp,
		SuggestionsJSON:   in.SuggestionsJSON,
		VisualizationJSON: in.VisualizationJSON,
		CostUSD:           in.CostUSD,
		Tokens:            in.Tokens,
		ArchivePrefix:     in.ArchivePrefix,
	}
}
