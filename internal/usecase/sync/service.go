package sync

import (
	"context"
	"errors"
	"fmt"
	gosync "sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"github.com/storelens/storelens/internal/domain"
	"github.com/storelens/storelens/internal/domain/syncrun"
	"github.com/storelens/storelens/internal/logger"
	"github.com/storelens/storelens/internal/metrics"
)

// Sync run defaults.
const (
	DefaultPageSize    = 50
	DefaultWorkers     = 4
	DefaultHardTimeout = 10 * time.Minute
)

// Config tunes a sync run.
type Config struct {
	PageSize    int
	Workers     int
	Retry       RetryPolicy
	HardTimeout time.Duration
}

// Service orchestrates full catalog synchronization: it pages through the
// source API, embeds changed products with a bounded worker pool, and
// upserts them into the index page by page. Concurrent runs are not
// serialized here; the transport layer guards against overlap.
type Service struct {
	source Source
	repo   Repository
	embed  Embedder

	pageSize    int
	workers     int
	retry       RetryPolicy
	hardTimeout time.Duration

	sleep sleepFunc
}

// New creates a sync service. Zero config values fall back to defaults.
func New(source Source, repo Repository, embed Embedder, cfg Config) *Service {
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultPageSize
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry = DefaultRetryPolicy()
	}
	if cfg.HardTimeout <= 0 {
		cfg.HardTimeout = DefaultHardTimeout
	}
	return &Service{
		source:      source,
		repo:        repo,
		embed:       embed,
		pageSize:    cfg.PageSize,
		workers:     cfg.Workers,
		retry:       cfg.Retry,
		hardTimeout: cfg.HardTimeout,
		sleep:       sleepContext,
	}
}

// progress is the running tally of one sync run.
type progress struct {
	fetched  int
	indexed  int
	failed   int
	failures []string
}

func (p *progress) fail(n int, reason string) {
	p.failed += n
	if len(p.failures) < syncrun.MaxFailureSample {
		p.failures = append(p.failures, reason)
	}
}

// Sync runs one full synchronization and always returns an outcome, even
// on partial failure. With forceReindex the index is dropped and rebuilt
// from scratch, discarding stored vectors.
func (s *Service) Sync(ctx context.Context, forceReindex bool) (syncrun.Outcome, error) {
	start := time.Now()
	log := logger.FromContext(ctx)

	ctx, cancel := context.WithTimeout(ctx, s.hardTimeout)
	defer cancel()

	var prog progress

	if forceReindex {
		if err := s.repo.DropSchema(ctx); err != nil {
			return s.failed(start, prog, fmt.Errorf("drop index: %w", err))
		}
		log.Info("index dropped for full reindex")
	}
	if err := s.repo.EnsureSchema(ctx); err != nil {
		return s.failed(start, prog, fmt.Errorf("ensure index: %w", err))
	}

	pool, err := ants.NewPool(s.workers)
	if err != nil {
		return s.failed(start, prog, fmt.Errorf("start embed workers: %w", err))
	}
	defer pool.Release()

	skip := 0
	for page := 0; ; page++ {
		var items []domain.Product
		fetchErr := s.retry.run(ctx, s.sleep, func() error {
			var err error
			items, err = s.source.GetPage(ctx, skip, s.pageSize)
			return err
		})
		if fetchErr != nil {
			if page == 0 {
				return s.failed(start, prog,
					fmt.Errorf("fetch first page: %v: %w", fetchErr, domain.ErrSourceUnavailable))
			}
			// Once the run context is done (hard timeout or caller
			// cancellation) every remaining fetch fails instantly;
			// finalize instead of looping over dead pages.
			if ctx.Err() != nil {
				return s.failed(start, prog,
					fmt.Errorf("fetch page at skip=%d: %w", skip, ctx.Err()))
			}
			// Item count of an unfetchable page is unknown; count a
			// full page as failed.
			prog.fail(s.pageSize, fmt.Sprintf("page at skip=%d: fetch: %v", skip, fetchErr))
			log.Warn("skipping unfetchable page", zap.Int("skip", skip), zap.Error(fetchErr))
			skip += s.pageSize
			continue
		}
		if len(items) == 0 {
			break
		}
		prog.fetched += len(items)

		docs, reused, err := s.embedPage(ctx, pool, items)
		if err != nil {
			return s.failed(start, prog, fmt.Errorf("embed page at skip=%d: %w", skip, err))
		}

		upsertErr := s.retry.run(ctx, s.sleep, func() error {
			return s.repo.UpsertBatch(ctx, docs)
		})
		if upsertErr != nil {
			prog.fail(len(items), fmt.Sprintf("page at skip=%d: upsert: %v", skip, upsertErr))
			log.Warn("page upsert failed after retries",
				zap.Int("skip", skip), zap.Error(upsertErr))
		} else {
			prog.indexed += len(items)
			log.Debug("page indexed",
				zap.Int("skip", skip), zap.Int("items", len(items)), zap.Int("reused_vectors", reused))
		}

		if len(items) < s.pageSize {
			break
		}
		skip += len(items)
	}

	elapsed := time.Since(start)
	metrics.SyncRunsTotal.WithLabelValues(string(syncrun.StateCompleted)).Inc()
	metrics.SyncItemsTotal.WithLabelValues("indexed").Add(float64(prog.indexed))
	metrics.SyncItemsTotal.WithLabelValues("failed").Add(float64(prog.failed))
	log.Info("sync completed",
		zap.Int("fetched", prog.fetched),
		zap.Int("indexed", prog.indexed),
		zap.Int("failed", prog.failed),
		zap.Duration("elapsed", elapsed))

	return syncrun.New(
		syncrun.StateCompleted,
		prog.fetched, prog.indexed, prog.failed,
		elapsed, prog.failures,
	), nil
}

// embedPage produces index-ready documents for one page. Products whose
// embed text matches the stored copy reuse the stored vector; the rest are
// embedded concurrently on the worker pool. Any embedding failure aborts
// the run.
func (s *Service) embedPage(
	ctx context.Context, pool *ants.Pool, items []domain.Product,
) ([]domain.EmbeddedProduct, int, error) {
	ids := make([]string, len(items))
	for i := range items {
		ids[i] = items[i].ID
	}

	existing, err := s.repo.FetchBatch(ctx, ids)
	if err != nil {
		logger.FromContext(ctx).Warn("stored vector lookup failed, re-embedding page",
			zap.Error(err))
		existing = nil
	}

	docs := make([]domain.EmbeddedProduct, len(items))
	reused := 0

	var (
		wg       gosync.WaitGroup
		mu       gosync.Mutex
		firstErr error
	)

	for i := range items {
		item := items[i]

		if stored, ok := existing[item.ID]; ok &&
			stored.EmbedText() == item.EmbedText() &&
			len(stored.Embedding) == domain.EmbeddingDim {
			docs[i] = domain.EmbeddedProduct{Product: item, Embedding: stored.Embedding}
			reused++
			continue
		}

		idx := i
		wg.Add(1)
		submitErr := pool.Submit(func() {
			defer wg.Done()
			res, err := s.embed.Embed(ctx, item.EmbedText())
			if err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = fmt.Errorf("product %s: %w", item.ID, err)
				}
				mu.Unlock()
				return
			}
			doc, err := domain.NewEmbeddedProduct(item, res.Vector)
			if err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
				return
			}
			docs[idx] = doc
		})
		if submitErr != nil {
			wg.Done()
			mu.Lock()
			if firstErr == nil {
				firstErr = fmt.Errorf("submit embed task: %w", submitErr)
			}
			mu.Unlock()
		}
	}

	wg.Wait()

	if firstErr != nil {
		return nil, 0, firstErr
	}
	return docs, reused, nil
}

// failed finalizes a run that hit an unrecoverable error.
func (s *Service) failed(start time.Time, prog progress, err error) (syncrun.Outcome, error) {
	elapsed := time.Since(start)
	metrics.SyncRunsTotal.WithLabelValues(string(syncrun.StateFailed)).Inc()
	metrics.SyncItemsTotal.WithLabelValues("indexed").Add(float64(prog.indexed))
	metrics.SyncItemsTotal.WithLabelValues("failed").Add(float64(prog.failed))

	failures := prog.failures
	if len(failures) < syncrun.MaxFailureSample {
		failures = append(failures, err.Error())
	}

	if errors.Is(err, context.DeadlineExceeded) {
		err = fmt.Errorf("sync run exceeded hard timeout %s: %w", s.hardTimeout, err)
	}
	return syncrun.New(
		syncrun.StateFailed,
		prog.fetched, prog.indexed, prog.failed,
		elapsed, failures,
	), err
}
