// Package stats aggregates operational statistics: index footprint,
// recent search latency, and popular query terms.
package stats

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/storelens/storelens/internal/domain"
)

// Defaults for the stats service.
const (
	DefaultLatencyWindow = 100
	DefaultTopTerms      = 10
)

// Index exposes the index measurements stats reports on.
type Index interface {
	Info(ctx context.Context) (docs int, sizeBytes int64, err error)
	AggregateCategories(ctx context.Context) ([]domain.CategoryCount, error)
}

// Snapshot is a point-in-time statistics report.
type Snapshot struct {
	IndexedDocs      int
	IndexSizeBytes   int64
	SearchesObserved int64
	AvgSearchLatency time.Duration
	TopTerms         []TermCount
}

// Service collects search observations and reports statistics. It doubles
// as the search recorder, so observation must stay cheap.
type Service struct {
	index  Index
	terms  *TermTracker
	window *latencyWindow

	searches int64
	mu       sync.Mutex
}

// New creates a stats service.
func New(index Index, termCapacity int) (*Service, error) {
	terms, err := NewTermTracker(termCapacity)
	if err != nil {
		return nil, fmt.Errorf("term tracker: %w", err)
	}
	return &Service{
		index:  index,
		terms:  terms,
		window: newLatencyWindow(DefaultLatencyWindow),
	}, nil
}

// RecordSearch observes one completed search.
func (s *Service) RecordSearch(query string, took time.Duration) {
	s.terms.Observe(query)
	s.window.observe(took)
	s.mu.Lock()
	s.searches++
	s.mu.Unlock()
}

// Stats builds a statistics snapshot. Index measurements are live; latency
// and term data come from the in-memory observation window.
func (s *Service) Stats(ctx context.Context) (Snapshot, error) {
	docs, size, err := s.index.Info(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("index info: %w", err)
	}

	s.mu.Lock()
	searches := s.searches
	s.mu.Unlock()

	return Snapshot{
		IndexedDocs:      docs,
		IndexSizeBytes:   size,
		SearchesObserved: searches,
		AvgSearchLatency: s.window.average(),
		TopTerms:         s.terms.Top(DefaultTopTerms),
	}, nil
}

// Categories returns per-category document counts from the index.
func (s *Service) Categories(ctx context.Context) ([]domain.CategoryCount, error) {
	counts, err := s.index.AggregateCategories(ctx)
	if err != nil {
		return nil, fmt.Errorf("aggregate categories: %w", err)
	}
	return counts, nil
}

// latencyWindow is a fixed-size ring of recent search durations.
type latencyWindow struct {
	mu      sync.Mutex
	samples []time.Duration
	next    int
	filled  int
}

func newLatencyWindow(size int) *latencyWindow {
	if size <= 0 {
		size = DefaultLatencyWindow
	}
	return &latencyWindow{samples: make([]time.Duration, size)}
}

func (w *latencyWindow) observe(d time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.samples[w.next] = d
	w.next = (w.next + 1) % len(w.samples)
	if w.filled < len(w.samples) {
		w.filled++
	}
}

func (w *latencyWindow) average() time.Duration {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.filled == 0 {
		return 0
	}
	var sum time.Duration
	for i := 0; i < w.filled; i++ {
		sum += w.samples[i]
	}
	return sum / time.Duration(w.filled)
}
