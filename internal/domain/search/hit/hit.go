package hit

import (
	"github.com/storelens/storelens/internal/domain"
	"github.com/storelens/storelens/internal/domain/search/tier"
)

// Hit is a single ranked search result.
type Hit struct {
	product domain.Product
	score   float64
	tier    tier.Tier
	rank    int
}

// New creates a search hit.
func New(product domain.Product, score float64, t tier.Tier, rank int) Hit {
	return Hit{product: product, score: score, tier: t, rank: rank}
}

// Product returns the matched product.
func (h *Hit) Product() domain.Product { return h.product }

// Score returns the combined relevance score.
func (h *Hit) Score() float64 { return h.score }

// Tier returns the relevance bucket.
func (h *Hit) Tier() tier.Tier { return h.tier }

// Rank returns the 1-based position in the result list.
func (h *Hit) Rank() int { return h.rank }
