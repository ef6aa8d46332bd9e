package search

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/storelens/storelens/internal/domain"
	"github.com/storelens/storelens/internal/domain/search/candidate"
	"github.com/storelens/storelens/internal/domain/search/filter"
	"github.com/storelens/storelens/internal/domain/search/hit"
	"github.com/storelens/storelens/internal/domain/search/request"
	"github.com/storelens/storelens/internal/domain/search/tier"
	"github.com/storelens/storelens/internal/logger"
	"github.com/storelens/storelens/internal/metrics"
)

// Metadata describes how a search was executed.
type Metadata struct {
	Degraded bool // vector path unavailable, lexical-only results
	Total    int  // hits after merge, before top_k truncation
	Took     time.Duration
}

// Service plans and executes hybrid product searches: one k-nearest-neighbor
// clause over embeddings plus one lexical clause over name/description,
// merged and ranked deterministically.
type Service struct {
	repo     Repository
	embed    Embedder
	recorder Recorder
	weights  Weights
	tiers    tier.Thresholds
}

// Option configures a Service.
type Option func(*Service)

// WithWeights overrides the score combination weights.
func WithWeights(w Weights) Option {
	return func(s *Service) {
		if w.Vector > 0 && w.Lexical > 0 {
			s.weights = w
		}
	}
}

// WithTiers overrides the relevance tier thresholds.
func WithTiers(t tier.Thresholds) Option {
	return func(s *Service) { s.tiers = t }
}

// WithRecorder attaches a usage statistics recorder.
func WithRecorder(r Recorder) Option {
	return func(s *Service) { s.recorder = r }
}

// New creates a search service.
func New(repo Repository, embed Embedder, opts ...Option) *Service {
	s := &Service{
		repo:    repo,
		embed:   embed,
		weights: DefaultWeights(),
		tiers:   tier.NewThresholds(tier.DefaultHighThreshold, tier.DefaultMediumThreshold),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Search executes a hybrid search. If the embedder is unavailable the
// request degrades to lexical-only and Metadata.Degraded is set; the
// request never fails solely because the vector path is down.
func (s *Service) Search(ctx context.Context, req *request.Request) ([]hit.Hit, Metadata, error) {
	start := time.Now()

	if req.TopK() == 0 {
		return nil, Metadata{Took: time.Since(start)}, nil
	}

	filters, err := buildFilters(req)
	if err != nil {
		return nil, Metadata{}, err
	}

	var knn []candidate.Candidate
	degraded := false

	embResult, err := s.embed.Embed(ctx, req.Query())
	switch {
	case err == nil:
		knn, err = s.repo.SearchKNN(ctx, embResult.Vector, filters, req.TopK())
		if err != nil {
			return nil, Metadata{}, s.wrapIndexErr("knn", false, err)
		}
	case errors.Is(err, domain.ErrEmbeddingUnavailable):
		degraded = true
		logger.FromContext(ctx).Warn("embedder unavailable, degrading to lexical-only search",
			zap.Error(err))
	default:
		return nil, Metadata{}, fmt.Errorf("embed query: %w", err)
	}

	lexical, err := s.repo.SearchLexical(ctx, req.Query(), filters, req.TopK())
	if err != nil {
		return nil, Metadata{}, s.wrapIndexErr("lexical", degraded, err)
	}

	hits, total := s.rank(knn, lexical, req.TopK())

	took := time.Since(start)
	mode := "hybrid"
	if degraded {
		mode = "lexical_only"
	}
	metrics.SearchRequestsTotal.WithLabelValues(mode, "success").Inc()
	metrics.SearchDuration.Observe(took.Seconds())

	if s.recorder != nil {
		s.recorder.RecordSearch(req.Query(), took)
	}

	return hits, Metadata{Degraded: degraded, Total: total, Took: took}, nil
}

// buildFilters translates request constraints into hard index filters:
// category exact match, inclusive price range, and stock > 0 unless
// out-of-stock items were requested.
func buildFilters(req *request.Request) (filter.Expression, error) {
	var conditions []filter.Condition

	if req.Category() != "" {
		c, err := filter.NewMatch("category", req.Category())
		if err != nil {
			return filter.Expression{}, fmt.Errorf("category filter: %w", err)
		}
		conditions = append(conditions, c)
	}

	if req.PriceMin() != nil || req.PriceMax() != nil {
		r, err := filter.NewRangeFilter(nil, req.PriceMin(), req.PriceMax())
		if err != nil {
			return filter.Expression{}, fmt.Errorf("price filter: %w", err)
		}
		c, err := filter.NewRange("price", r)
		if err != nil {
			return filter.Expression{}, fmt.Errorf("price filter: %w", err)
		}
		conditions = append(conditions, c)
	}

	if !req.IncludeOutOfStock() {
		zero := 0.0
		r, err := filter.NewRangeFilter(&zero, nil, nil)
		if err != nil {
			return filter.Expression{}, fmt.Errorf("stock filter: %w", err)
		}
		c, err := filter.NewRange("stock", r)
		if err != nil {
			return filter.Expression{}, fmt.Errorf("stock filter: %w", err)
		}
		conditions = append(conditions, c)
	}

	return filter.NewExpression(conditions...), nil
}

// wrapIndexErr maps index failures to the search error taxonomy. Timeouts
// pass through; everything else becomes ErrSearchUnavailable so callers
// never mistake an index outage for "no matches".
func (s *Service) wrapIndexErr(clause string, degraded bool, err error) error {
	mode := "hybrid"
	if degraded {
		mode = "lexical_only"
	}
	metrics.SearchRequestsTotal.WithLabelValues(mode, "error").Inc()
	if errors.Is(err, domain.ErrIndexTimeout) {
		return fmt.Errorf("%s query: %w", clause, err)
	}
	return fmt.Errorf("%s query: %v: %w", clause, err, domain.ErrSearchUnavailable)
}
