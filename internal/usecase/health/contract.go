package health

import (
	"context"
	"time"
)

// IndexChecker probes the search index.
type IndexChecker interface {
	Ping(ctx context.Context) error
	Count(ctx context.Context) (int, error)
}

// SourceChecker probes the product source API and reports its latency.
type SourceChecker interface {
	HealthCheck(ctx context.Context) (time.Duration, error)
}

// EmbeddingChecker probes the embedding provider.
type EmbeddingChecker interface {
	HealthCheck(ctx context.Context) error
}
