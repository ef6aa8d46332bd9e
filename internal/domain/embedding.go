package domain

import (
	"context"
	"strings"
)

// EmbeddingDim is the fixed output dimensionality of the embedding model.
// It is baked into the index schema and must not change for the life of
// the index.
const EmbeddingDim = 384

// Embedder is the shared text vectorization contract between layers.
// The implementation is constructed once at process start and shared
// read-only across all callers.
type Embedder interface {
	Embed(ctx context.Context, text string) (EmbeddingResult, error)
}

// EmbeddingChecker verifies embedding provider availability.
type EmbeddingChecker interface {
	HealthCheck(ctx context.Context) error
}

// EmbeddingResult carries the embedding vector and token usage.
type EmbeddingResult struct {
	Vector       []float32
	PromptTokens int
	TotalTokens  int
}

// EmbedText builds the text embedded for a product. The same join rule is
// used at index time and at query comparison time; changing it invalidates
// every stored vector.
func EmbedText(name, description string) string {
	name = strings.TrimSpace(name)
	description = strings.TrimSpace(description)
	if description == "" {
		return name
	}
	return name + ". " + description
}
