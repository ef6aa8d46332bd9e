package domain

import (
	"fmt"
	"strings"
	"time"
)

// Product is a catalog item as served by the source API.
type Product struct {
	ID          string
	Name        string
	Description string
	Category    string
	Price       float64
	Stock       int
	ImageURL    string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Validate checks the product invariants: non-empty id and name,
// price >= 0, stock >= 0.
func (p *Product) Validate() error {
	if strings.TrimSpace(p.ID) == "" {
		return fmt.Errorf("product id is required: %w", ErrInvalidRequest)
	}
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("product %s: name is required: %w", p.ID, ErrInvalidRequest)
	}
	if p.Price < 0 {
		return fmt.Errorf("product %s: price must be >= 0: %w", p.ID, ErrInvalidRequest)
	}
	if p.Stock < 0 {
		return fmt.Errorf("product %s: stock must be >= 0: %w", p.ID, ErrInvalidRequest)
	}
	return nil
}

// EmbedText returns the text embedded for this product.
func (p *Product) EmbedText() string {
	return EmbedText(p.Name, p.Description)
}

// EmbeddedProduct is a product together with its fixed-length embedding
// vector, ready for indexing. The vector is recomputed whenever name or
// description changes.
type EmbeddedProduct struct {
	Product
	Embedding []float32
}

// NewEmbeddedProduct pairs a product with its vector, enforcing the fixed
// dimensionality.
func NewEmbeddedProduct(p Product, vector []float32) (EmbeddedProduct, error) {
	if len(vector) != EmbeddingDim {
		return EmbeddedProduct{}, fmt.Errorf(
			"product %s: vector dimension %d, want %d", p.ID, len(vector), EmbeddingDim,
		)
	}
	return EmbeddedProduct{Product: p, Embedding: vector}, nil
}
