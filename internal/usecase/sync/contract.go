package sync

import (
	"context"

	"github.com/storelens/storelens/internal/domain"
)

// Source pages through the product source of truth.
type Source interface {
	GetPage(ctx context.Context, skip, limit int) ([]domain.Product, error)
}

// Repository defines the index contract for sync operations.
type Repository interface {
	EnsureSchema(ctx context.Context) error
	DropSchema(ctx context.Context) error
	UpsertBatch(ctx context.Context, products []domain.EmbeddedProduct) error
	FetchBatch(ctx context.Context, ids []string) (map[string]domain.EmbeddedProduct, error)
}

// Embedder vectorizes product text.
type Embedder interface {
	Embed(ctx context.Context, text string) (domain.EmbeddingResult, error)
}
