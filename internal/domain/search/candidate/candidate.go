package candidate

import "github.com/storelens/storelens/internal/domain"

// Candidate is a pre-ranking search hit: a product with the raw score of
// the clause (vector or lexical) that retrieved it.
type Candidate struct {
	product domain.Product
	score   float64
}

// New creates a candidate.
func New(product domain.Product, score float64) Candidate {
	return Candidate{product: product, score: score}
}

// Product returns the matched product.
func (c *Candidate) Product() domain.Product { return c.product }

// Score returns the raw clause score.
func (c *Candidate) Score() float64 { return c.score }
