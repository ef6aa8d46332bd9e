package health

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"
)

// Status is a dependency or service health level.
type Status string

// Health levels, ordered from best to worst.
const (
	StatusUp       Status = "up"
	StatusDegraded Status = "degraded"
	StatusDown     Status = "down"
)

// DefaultProbeTimeout bounds each dependency probe independently, so one
// hung dependency cannot stall the whole report.
const DefaultProbeTimeout = 2 * time.Second

// Check is the outcome of probing one dependency.
type Check struct {
	Status  Status
	Latency time.Duration
	Error   string
	Docs    int // index only
}

// Report is a point-in-time health snapshot. Nothing is cached; every
// request probes every dependency afresh.
type Report struct {
	Status Status
	Checks map[string]Check
}

// Service aggregates the health of the index, the source API, and the
// embedding provider. The aggregate is the worst individual status,
// except that an embedder outage alone only degrades the service, since
// search still works lexical-only.
type Service struct {
	index        IndexChecker
	source       SourceChecker
	embedding    EmbeddingChecker
	probeTimeout time.Duration
}

// New creates a health service. source and embedding can be nil.
func New(index IndexChecker, source SourceChecker, embedding EmbeddingChecker) *Service {
	return &Service{
		index:        index,
		source:       source,
		embedding:    embedding,
		probeTimeout: DefaultProbeTimeout,
	}
}

// Check probes all dependencies concurrently and aggregates the result.
func (s *Service) Check(ctx context.Context) Report {
	var (
		indexCheck  Check
		sourceCheck Check
		embedCheck  Check
	)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		indexCheck = s.checkIndex(ctx)
		return nil
	})
	if s.source != nil {
		g.Go(func() error {
			sourceCheck = s.checkSource(ctx)
			return nil
		})
	}
	if s.embedding != nil {
		g.Go(func() error {
			embedCheck = s.checkEmbedding(ctx)
			return nil
		})
	}
	_ = g.Wait()

	checks := map[string]Check{"index": indexCheck}
	if s.source != nil {
		checks["source_api"] = sourceCheck
	}
	if s.embedding != nil {
		checks["embeddings"] = embedCheck
	}

	status := indexCheck.Status
	if s.source != nil {
		status = worst(status, sourceCheck.Status)
	}
	if s.embedding != nil && embedCheck.Status != StatusUp {
		// Lexical search survives an embedder outage.
		status = worst(status, StatusDegraded)
	}

	return Report{Status: status, Checks: checks}
}

func (s *Service) checkIndex(ctx context.Context) Check {
	ctx, cancel := context.WithTimeout(ctx, s.probeTimeout)
	defer cancel()

	start := time.Now()
	if err := s.index.Ping(ctx); err != nil {
		return Check{Status: StatusDown, Latency: time.Since(start), Error: err.Error()}
	}
	docs, err := s.index.Count(ctx)
	if err != nil {
		return Check{Status: StatusDegraded, Latency: time.Since(start), Error: err.Error()}
	}
	return Check{Status: StatusUp, Latency: time.Since(start), Docs: docs}
}

func (s *Service) checkSource(ctx context.Context) Check {
	ctx, cancel := context.WithTimeout(ctx, s.probeTimeout)
	defer cancel()

	latency, err := s.source.HealthCheck(ctx)
	if err != nil {
		return Check{Status: StatusDown, Latency: latency, Error: err.Error()}
	}
	return Check{Status: StatusUp, Latency: latency}
}

func (s *Service) checkEmbedding(ctx context.Context) Check {
	ctx, cancel := context.WithTimeout(ctx, s.probeTimeout)
	defer cancel()

	start := time.Now()
	if err := s.embedding.HealthCheck(ctx); err != nil {
		return Check{Status: StatusDown, Latency: time.Since(start), Error: err.Error()}
	}
	return Check{Status: StatusUp, Latency: time.Since(start)}
}

func worst(a, b Status) Status {
	rank := map[Status]int{StatusUp: 0, StatusDegraded: 1, StatusDown: 2}
	if rank[b] > rank[a] {
		return b
	}
	return a
}
