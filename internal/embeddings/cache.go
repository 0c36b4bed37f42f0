package embeddings

import (
	"context"
	"fmt"
	"strings"

	"github.com/dataagent/dataagent/internal/observability"
)

func (d *DatabaseEmbedder) promptVector(ctx context.Context, prompt string) ([]float64, error) {
	key := strings.TrimSpace(prompt)
	if cached := d.cache.Get(key); cached != nil {
		observability.ObserveEmbeddingCache(true)
		return cached.Value(), nil
	}
	observability.ObserveEmbeddingCache(false)

	vectors, err := d.embedder.Embed(ctx, []string{key})
	if err != nil {
		return nil, fmt.Errorf("embed prompt: %w", err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("embed prompt: got %d vectors", len(vectors))
	}
	d.cache.Set(key, vectors[0], d.cacheTTL)
	return vectors[0], nil
}
