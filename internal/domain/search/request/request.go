package request

import (
	"fmt"
	"strings"

	"github.com/storelens/storelens/internal/domain"
)

// Search parameter limits.
const (
	// MaxQueryLength is the maximum allowed search query length.
	MaxQueryLength = 1024
	DefaultTopK    = 5
	MaxTopK        = 50
)

// Request is a validated product search query.
type Request struct {
	query             string
	topK              int
	category          string
	priceMin          *float64
	priceMax          *float64
	includeOutOfStock bool
}

// New validates and normalizes search parameters.
// topK < 0 defaults to DefaultTopK; topK == 0 is allowed and yields an
// empty result set. topK above MaxTopK is clamped.
func New(
	query string,
	topK int,
	category string,
	priceMin, priceMax *float64,
	includeOutOfStock bool,
) (Request, error) {
	if strings.TrimSpace(query) == "" {
		return Request{}, fmt.Errorf("query is required: %w", domain.ErrInvalidRequest)
	}
	if len(query) > MaxQueryLength {
		return Request{}, fmt.Errorf("query too long (max %d chars): %w", MaxQueryLength, domain.ErrInvalidRequest)
	}
	if topK < 0 {
		topK = DefaultTopK
	}
	if topK > MaxTopK {
		topK = MaxTopK
	}
	if priceMin != nil && *priceMin < 0 {
		return Request{}, fmt.Errorf("price_min must be >= 0: %w", domain.ErrInvalidRequest)
	}
	if priceMax != nil && *priceMax < 0 {
		return Request{}, fmt.Errorf("price_max must be >= 0: %w", domain.ErrInvalidRequest)
	}
	if priceMin != nil && priceMax != nil && *priceMin > *priceMax {
		return Request{}, fmt.Errorf(
			"price_min %g exceeds price_max %g: %w", *priceMin, *priceMax, domain.ErrInvalidRequest,
		)
	}

	return Request{
		query:             query,
		topK:              topK,
		category:          strings.TrimSpace(category),
		priceMin:          priceMin,
		priceMax:          priceMax,
		includeOutOfStock: includeOutOfStock,
	}, nil
}

// Query returns the search query text.
func (r *Request) Query() string { return r.query }

// TopK returns the maximum number of hits to return.
func (r *Request) TopK() int { return r.topK }

// Category returns the exact-match category filter ("" = no filter).
func (r *Request) Category() string { return r.category }

// PriceMin returns the inclusive lower price bound (nil = unbounded).
func (r *Request) PriceMin() *float64 { return r.priceMin }

// PriceMax returns the inclusive upper price bound (nil = unbounded).
func (r *Request) PriceMax() *float64 { return r.priceMax }

// IncludeOutOfStock reports whether zero-stock products are returned.
func (r *Request) IncludeOutOfStock() bool { return r.includeOutOfStock }
