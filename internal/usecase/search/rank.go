package search

import (
	"sort"

	"github.com/storelens/storelens/internal/domain"
	"github.com/storelens/storelens/internal/domain/search/candidate"
	"github.com/storelens/storelens/internal/domain/search/hit"
)

// Weights are the clause weights of the combined score. The combination
// is an explicit, documented contract (not an engine default):
//
//	combined = Vector*cos + Lexical*(bm25/(bm25+1))
//
// where cos is cosine similarity in [0,1] and the BM25 score is squashed
// into [0,1) to make the two clauses comparable. A document present in
// only one candidate list contributes only that clause's weighted term.
type Weights struct {
	Vector  float64
	Lexical float64
}

// DefaultWeights returns the default 0.7 vector / 0.3 lexical split.
func DefaultWeights() Weights {
	return Weights{Vector: 0.7, Lexical: 0.3}
}

type scored struct {
	product  domain.Product
	combined float64
}

// rank merges KNN and lexical candidate sets by document id (union),
// combines clause scores, and imposes a deterministic total order:
// combined score descending, then stock descending, then id ascending.
// The merged set is truncated to topK only after sorting.
func (s *Service) rank(knn, lexical []candidate.Candidate, topK int) ([]hit.Hit, int) {
	byID := make(map[string]*scored, len(knn)+len(lexical))
	for i := range knn {
		p := knn[i].Product()
		byID[p.ID] = &scored{
			product:  p,
			combined: s.weights.Vector * knn[i].Score(),
		}
	}
	for i := range lexical {
		p := lexical[i].Product()
		lexTerm := s.weights.Lexical * squash(lexical[i].Score())
		if existing, ok := byID[p.ID]; ok {
			existing.combined += lexTerm
		} else {
			byID[p.ID] = &scored{product: p, combined: lexTerm}
		}
	}

	ranked := make([]scored, 0, len(byID))
	for _, sc := range byID {
		ranked = append(ranked, *sc)
	}

	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].combined != ranked[j].combined {
			return ranked[i].combined > ranked[j].combined
		}
		if ranked[i].product.Stock != ranked[j].product.Stock {
			return ranked[i].product.Stock > ranked[j].product.Stock
		}
		return ranked[i].product.ID < ranked[j].product.ID
	})

	total := len(ranked)
	if len(ranked) > topK {
		ranked = ranked[:topK]
	}

	hits := make([]hit.Hit, len(ranked))
	for i, sc := range ranked {
		hits[i] = hit.New(sc.product, sc.combined, s.tiers.Classify(sc.combined), i+1)
	}
	return hits, total
}

// squash maps an unbounded BM25 score into [0,1).
func squash(bm25 float64) float64 {
	if bm25 <= 0 {
		return 0
	}
	return bm25 / (bm25 + 1)
}
