package search

import (
	"context"
	"time"

	"github.com/storelens/storelens/internal/domain"
	"github.com/storelens/storelens/internal/domain/search/candidate"
	"github.com/storelens/storelens/internal/domain/search/filter"
)

// Repository defines the index contract for search operations. Both
// queries apply filters as hard pre-constraints and never mutate.
type Repository interface {
	SearchKNN(
		ctx context.Context, vector []float32, filters filter.Expression, topK int,
	) ([]candidate.Candidate, error)

	SearchLexical(
		ctx context.Context, query string, filters filter.Expression, topK int,
	) ([]candidate.Candidate, error)
}

// Embedder vectorizes query text.
type Embedder interface {
	Embed(ctx context.Context, text string) (domain.EmbeddingResult, error)
}

// Recorder observes completed searches for usage statistics. Implementations
// must be cheap and non-blocking; search latency is on the hot path.
type Recorder interface {
	RecordSearch(query string, took time.Duration)
}
