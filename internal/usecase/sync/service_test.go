package sync

import (
	"context"
	"errors"
	"fmt"
	gosync "sync"
	"testing"
	"time"

	"github.com/storelens/storelens/internal/domain"
	"github.com/storelens/storelens/internal/domain/syncrun"
)

// --- Mocks ---

type mockSource struct {
	mu        gosync.Mutex
	pages     [][]domain.Product
	failPage  int // 1-based page index to fail, 0 = never
	failTimes int // how many times the page fails before succeeding
	failErr   error
	fails     map[int]int
	calls     int
}

func (m *mockSource) GetPage(_ context.Context, skip, limit int) ([]domain.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++

	page := skip/limit + 1
	if m.failPage == page {
		if m.fails == nil {
			m.fails = map[int]int{}
		}
		if m.fails[page] < m.failTimes {
			m.fails[page]++
			return nil, m.failErr
		}
	}

	idx := page - 1
	if idx >= len(m.pages) {
		return nil, nil
	}
	return m.pages[idx], nil
}

type mockIndex struct {
	mu gosync.Mutex

	stored map[string]domain.EmbeddedProduct

	upsertFailTimes int // fail the first N upsert calls
	upsertErr       error
	upsertCalls     int
	upsertFailed    int

	dropCalls   int
	ensureCalls int
}

func (m *mockIndex) EnsureSchema(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ensureCalls++
	return nil
}

func (m *mockIndex) DropSchema(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dropCalls++
	m.stored = nil
	return nil
}

func (m *mockIndex) UpsertBatch(_ context.Context, products []domain.EmbeddedProduct) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.upsertCalls++
	if m.upsertFailed < m.upsertFailTimes {
		m.upsertFailed++
		return m.upsertErr
	}
	if m.stored == nil {
		m.stored = map[string]domain.EmbeddedProduct{}
	}
	for _, p := range products {
		m.stored[p.ID] = p
	}
	return nil
}

func (m *mockIndex) FetchBatch(_ context.Context, ids []string) (map[string]domain.EmbeddedProduct, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := map[string]domain.EmbeddedProduct{}
	for _, id := range ids {
		if p, ok := m.stored[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

type mockEmbedder struct {
	mu    gosync.Mutex
	calls int
	err   error
}

func (m *mockEmbedder) Embed(_ context.Context, _ string) (domain.EmbeddingResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return domain.EmbeddingResult{}, m.err
	}
	return domain.EmbeddingResult{Vector: make([]float32, domain.EmbeddingDim)}, nil
}

func makePages(pages, perPage int) [][]domain.Product {
	out := make([][]domain.Product, pages)
	id := 0
	for p := 0; p < pages; p++ {
		items := make([]domain.Product, perPage)
		for i := range items {
			id++
			items[i] = domain.Product{
				ID:          fmt.Sprintf("p%03d", id),
				Name:        fmt.Sprintf("Producto %d", id),
				Description: "descripcion",
				Stock:       1,
			}
		}
		out[p] = items
	}
	return out
}

func newSyncService(src Source, idx Repository, emb Embedder, pageSize int) *Service {
	s := New(src, idx, emb, Config{
		PageSize: pageSize,
		Workers:  2,
		Retry:    RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond, Multiplier: 2},
	})
	s.sleep = func(context.Context, time.Duration) error { return nil }
	return s
}

// --- Tests ---

func TestSync_FullRun(t *testing.T) {
	src := &mockSource{pages: makePages(3, 50)}
	idx := &mockIndex{}
	emb := &mockEmbedder{}

	out, err := newSyncService(src, idx, emb, 50).Sync(context.Background(), false)
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if out.State() != syncrun.StateCompleted {
		t.Fatalf("state = %q, want completed", out.State())
	}
	if out.ItemsFetched() != 150 || out.ItemsIndexed() != 150 || out.ItemsFailed() != 0 {
		t.Fatalf("fetched=%d indexed=%d failed=%d, want 150/150/0",
			out.ItemsFetched(), out.ItemsIndexed(), out.ItemsFailed())
	}
	if len(idx.stored) != 150 {
		t.Fatalf("expected 150 stored products, got %d", len(idx.stored))
	}
}

func TestSync_TransientUpsertFailureRecovers(t *testing.T) {
	// The failing upsert succeeds on the third retry attempt, so nothing
	// is lost and the run still completes cleanly.
	src := &mockSource{pages: makePages(3, 50)}
	idx := &mockIndex{upsertFailTimes: 2, upsertErr: errors.New("timeout")}
	emb := &mockEmbedder{}

	out, err := newSyncService(src, idx, emb, 50).Sync(context.Background(), false)
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if out.ItemsIndexed() != 150 || out.ItemsFailed() != 0 {
		t.Fatalf("indexed=%d failed=%d, want 150/0", out.ItemsIndexed(), out.ItemsFailed())
	}
}

func TestSync_ExhaustedUpsertMarksPageFailed(t *testing.T) {
	src := &mockSource{pages: makePages(3, 50)}
	idx := &mockIndex{upsertFailTimes: 3, upsertErr: errors.New("write refused")}
	emb := &mockEmbedder{}

	out, err := newSyncService(src, idx, emb, 50).Sync(context.Background(), false)
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if out.State() != syncrun.StateCompleted {
		t.Fatalf("one bad page must not abort the run, state = %q", out.State())
	}
	if out.ItemsFailed() != 50 || out.ItemsIndexed() != 100 {
		t.Fatalf("indexed=%d failed=%d, want 100/50", out.ItemsIndexed(), out.ItemsFailed())
	}
	if len(out.Failures()) == 0 {
		t.Fatal("expected a failure reason in the outcome")
	}
}

func TestSync_FirstPageUnreachableIsFatal(t *testing.T) {
	src := &mockSource{
		pages:     makePages(1, 10),
		failPage:  1,
		failTimes: 99,
		failErr:   errors.New("connection refused"),
	}
	idx := &mockIndex{}
	emb := &mockEmbedder{}

	out, err := newSyncService(src, idx, emb, 50).Sync(context.Background(), false)
	if !errors.Is(err, domain.ErrSourceUnavailable) {
		t.Fatalf("expected ErrSourceUnavailable, got %v", err)
	}
	if out.State() != syncrun.StateFailed {
		t.Fatalf("state = %q, want failed", out.State())
	}
	if out.ItemsIndexed() != 0 || out.ItemsFetched() != 0 {
		t.Fatalf("nothing should be processed, fetched=%d indexed=%d",
			out.ItemsFetched(), out.ItemsIndexed())
	}
	if emb.calls != 0 {
		t.Fatal("embedder must not be called when the source is down")
	}
}

func TestSync_LaterPageUnreachableContinues(t *testing.T) {
	src := &mockSource{
		pages:     makePages(3, 50),
		failPage:  2,
		failTimes: 99,
		failErr:   errors.New("gateway timeout"),
	}
	idx := &mockIndex{}
	emb := &mockEmbedder{}

	out, err := newSyncService(src, idx, emb, 50).Sync(context.Background(), false)
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if out.State() != syncrun.StateCompleted {
		t.Fatalf("state = %q, want completed", out.State())
	}
	if out.ItemsIndexed() != 100 || out.ItemsFailed() != 50 {
		t.Fatalf("indexed=%d failed=%d, want 100/50", out.ItemsIndexed(), out.ItemsFailed())
	}
}

func TestSync_EmbedderDownIsFatal(t *testing.T) {
	src := &mockSource{pages: makePages(1, 10)}
	idx := &mockIndex{}
	emb := &mockEmbedder{err: domain.ErrEmbeddingUnavailable}

	out, err := newSyncService(src, idx, emb, 50).Sync(context.Background(), false)
	if !errors.Is(err, domain.ErrEmbeddingUnavailable) {
		t.Fatalf("expected ErrEmbeddingUnavailable, got %v", err)
	}
	if out.State() != syncrun.StateFailed {
		t.Fatalf("state = %q, want failed", out.State())
	}
}

func TestSync_ReusesUnchangedVectors(t *testing.T) {
	src := &mockSource{pages: makePages(1, 10)}
	idx := &mockIndex{}
	emb := &mockEmbedder{}
	svc := newSyncService(src, idx, emb, 50)

	if _, err := svc.Sync(context.Background(), false); err != nil {
		t.Fatalf("first sync: %v", err)
	}
	firstCalls := emb.calls
	if firstCalls != 10 {
		t.Fatalf("expected 10 embeddings on first run, got %d", firstCalls)
	}

	// Second run over identical data must not re-embed anything.
	if _, err := svc.Sync(context.Background(), false); err != nil {
		t.Fatalf("second sync: %v", err)
	}
	if emb.calls != firstCalls {
		t.Fatalf("unchanged products were re-embedded: %d extra calls", emb.calls-firstCalls)
	}
}

func TestSync_ChangedTextIsReembedded(t *testing.T) {
	pages := makePages(1, 2)
	src := &mockSource{pages: pages}
	idx := &mockIndex{}
	emb := &mockEmbedder{}
	svc := newSyncService(src, idx, emb, 50)

	if _, err := svc.Sync(context.Background(), false); err != nil {
		t.Fatalf("first sync: %v", err)
	}

	pages[0][0].Description = "nueva descripcion"
	if _, err := svc.Sync(context.Background(), false); err != nil {
		t.Fatalf("second sync: %v", err)
	}
	if emb.calls != 3 {
		t.Fatalf("expected exactly one re-embedding, total calls = %d", emb.calls)
	}
}

func TestSync_ForceReindexDropsFirst(t *testing.T) {
	src := &mockSource{pages: makePages(1, 5)}
	idx := &mockIndex{}
	emb := &mockEmbedder{}
	svc := newSyncService(src, idx, emb, 50)

	if _, err := svc.Sync(context.Background(), false); err != nil {
		t.Fatalf("first sync: %v", err)
	}
	if _, err := svc.Sync(context.Background(), true); err != nil {
		t.Fatalf("force sync: %v", err)
	}
	if idx.dropCalls != 1 {
		t.Fatalf("expected 1 drop, got %d", idx.dropCalls)
	}
	// Dropped vectors are gone, so everything is embedded again.
	if emb.calls != 10 {
		t.Fatalf("expected full re-embedding after drop, calls = %d", emb.calls)
	}
}

func TestSync_HardTimeoutStopsUnreachableSource(t *testing.T) {
	// The source serves one full page and then refuses every connection.
	// Once the hard timeout fires the run must finalize as failed instead
	// of cycling over unfetchable pages.
	src := &mockSource{
		pages:     makePages(1, 50),
		failPage:  2,
		failTimes: 9999,
		failErr:   errors.New("connection refused"),
	}
	idx := &mockIndex{}
	emb := &mockEmbedder{}
	svc := New(src, idx, emb, Config{
		PageSize:    50,
		Workers:     2,
		Retry:       RetryPolicy{MaxAttempts: 3, BaseDelay: 25 * time.Millisecond, Multiplier: 2},
		HardTimeout: 60 * time.Millisecond,
	})

	start := time.Now()
	out, err := svc.Sync(context.Background(), false)
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("Sync kept running %s past a 60ms hard timeout", elapsed)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
	if out.State() != syncrun.StateFailed {
		t.Fatalf("state = %q, want failed", out.State())
	}
	if out.ItemsIndexed() != 50 {
		t.Fatalf("first page should be indexed before the timeout, indexed = %d", out.ItemsIndexed())
	}
	if out.ItemsFailed() != 0 {
		t.Fatalf("timed-out run must not inflate the failed count, failed = %d", out.ItemsFailed())
	}
}

// cancellingSource serves its pages, then cancels the run and fails
// every call after that.
type cancellingSource struct {
	pages  [][]domain.Product
	cancel context.CancelFunc
}

func (s *cancellingSource) GetPage(_ context.Context, skip, limit int) ([]domain.Product, error) {
	page := skip / limit
	if page < len(s.pages) {
		return s.pages[page], nil
	}
	s.cancel()
	return nil, errors.New("connection refused")
}

func TestSync_CancellationMidRunFinalizes(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	src := &cancellingSource{pages: makePages(1, 50), cancel: cancel}
	idx := &mockIndex{}
	emb := &mockEmbedder{}

	out, err := newSyncService(src, idx, emb, 50).Sync(ctx, false)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected canceled error, got %v", err)
	}
	if out.State() != syncrun.StateFailed {
		t.Fatalf("state = %q, want failed", out.State())
	}
	if out.ItemsIndexed() != 50 || out.ItemsFailed() != 0 {
		t.Fatalf("indexed=%d failed=%d, want 50/0", out.ItemsIndexed(), out.ItemsFailed())
	}
}

func TestSync_EmptyCatalogCompletes(t *testing.T) {
	src := &mockSource{pages: nil}
	idx := &mockIndex{}
	emb := &mockEmbedder{}

	out, err := newSyncService(src, idx, emb, 50).Sync(context.Background(), false)
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if out.State() != syncrun.StateCompleted || out.ItemsFetched() != 0 {
		t.Fatalf("state=%q fetched=%d, want completed/0", out.State(), out.ItemsFetched())
	}
}
