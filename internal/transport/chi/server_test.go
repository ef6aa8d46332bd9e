package chi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/storelens/storelens/internal/domain"
	"github.com/storelens/storelens/internal/domain/search/candidate"
	"github.com/storelens/storelens/internal/domain/search/filter"
	healthuc "github.com/storelens/storelens/internal/usecase/health"
	searchuc "github.com/storelens/storelens/internal/usecase/search"
	statsuc "github.com/storelens/storelens/internal/usecase/stats"
	syncuc "github.com/storelens/storelens/internal/usecase/sync"
)

type stubSearchRepo struct {
	knn     []candidate.Candidate
	lexical []candidate.Candidate
}

func (r *stubSearchRepo) SearchKNN(
	_ context.Context, _ []float32, _ filter.Expression, _ int,
) ([]candidate.Candidate, error) {
	return r.knn, nil
}

func (r *stubSearchRepo) SearchLexical(
	_ context.Context, _ string, _ filter.Expression, _ int,
) ([]candidate.Candidate, error) {
	return r.lexical, nil
}

type stubEmbedder struct{ err error }

func (e *stubEmbedder) Embed(context.Context, string) (domain.EmbeddingResult, error) {
	if e.err != nil {
		return domain.EmbeddingResult{}, e.err
	}
	return domain.EmbeddingResult{Vector: make([]float32, domain.EmbeddingDim)}, nil
}

func (e *stubEmbedder) HealthCheck(context.Context) error { return e.err }

type stubSyncSource struct {
	pages   [][]domain.Product
	started chan struct{}
	release chan struct{}
}

func (s *stubSyncSource) GetPage(_ context.Context, skip, limit int) ([]domain.Product, error) {
	if s.started != nil && skip == 0 {
		close(s.started)
		s.started = nil
		<-s.release
	}
	page := skip / limit
	if page >= len(s.pages) {
		return nil, nil
	}
	return s.pages[page], nil
}

func (s *stubSyncSource) HealthCheck(context.Context) (time.Duration, error) {
	return time.Millisecond, nil
}

type stubSyncRepo struct{}

func (stubSyncRepo) EnsureSchema(context.Context) error { return nil }
func (stubSyncRepo) DropSchema(context.Context) error   { return nil }
func (stubSyncRepo) UpsertBatch(context.Context, []domain.EmbeddedProduct) error {
	return nil
}

func (stubSyncRepo) FetchBatch(context.Context, []string) (map[string]domain.EmbeddedProduct, error) {
	return map[string]domain.EmbeddedProduct{}, nil
}

type stubStatsIndex struct {
	docs       int
	sizeBytes  int64
	categories []domain.CategoryCount
}

func (s *stubStatsIndex) Info(context.Context) (int, int64, error) {
	return s.docs, s.sizeBytes, nil
}

func (s *stubStatsIndex) AggregateCategories(context.Context) ([]domain.CategoryCount, error) {
	return s.categories, nil
}

type stubIndexChecker struct {
	pingErr error
	docs    int
}

func (s *stubIndexChecker) Ping(context.Context) error { return s.pingErr }
func (s *stubIndexChecker) Count(context.Context) (int, error) {
	return s.docs, nil
}

type stubProducts struct {
	products map[string]domain.Product
}

func (s *stubProducts) GetByID(_ context.Context, id string) (domain.Product, error) {
	p, ok := s.products[id]
	if !ok {
		return domain.Product{}, domain.ErrProductNotFound
	}
	return p, nil
}

type serverFixture struct {
	searchRepo *stubSearchRepo
	embedder   *stubEmbedder
	syncSource *stubSyncSource
	statsIndex *stubStatsIndex
	indexCheck *stubIndexChecker
	products   *stubProducts
}

func newTestServer(t *testing.T, fix serverFixture) http.Handler {
	t.Helper()

	if fix.searchRepo == nil {
		fix.searchRepo = &stubSearchRepo{}
	}
	if fix.embedder == nil {
		fix.embedder = &stubEmbedder{}
	}
	if fix.syncSource == nil {
		fix.syncSource = &stubSyncSource{}
	}
	if fix.statsIndex == nil {
		fix.statsIndex = &stubStatsIndex{}
	}
	if fix.indexCheck == nil {
		fix.indexCheck = &stubIndexChecker{docs: 10}
	}
	if fix.products == nil {
		fix.products = &stubProducts{}
	}

	statsSvc, err := statsuc.New(fix.statsIndex, 100)
	if err != nil {
		t.Fatalf("stats service: %v", err)
	}
	searchSvc := searchuc.New(fix.searchRepo, fix.embedder)
	syncSvc := syncuc.New(fix.syncSource, stubSyncRepo{}, fix.embedder, syncuc.Config{
		PageSize: 2,
	})
	healthSvc := healthuc.New(fix.indexCheck, fix.syncSource, fix.embedder)

	srv := NewServer(searchSvc, syncSvc, statsSvc, healthSvc, fix.products, zap.NewNop())
	return srv.Router(nil)
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestServer_Search(t *testing.T) {
	p := domain.Product{ID: "p1", Name: "Zapatillas Runner", Category: "calzado", Price: 59.9, Stock: 4}
	router := newTestServer(t, serverFixture{
		searchRepo: &stubSearchRepo{
			knn:     []candidate.Candidate{candidate.New(p, 0.95)},
			lexical: []candidate.Candidate{candidate.New(p, 9.0)},
		},
	})

	rr := doJSON(t, router, http.MethodPost, "/api/v1/buscar",
		searchRequest{Query: "zapatillas", Category: "calzado"})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp searchResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Query != "zapatillas" || resp.Total != 1 || len(resp.Results) != 1 {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if resp.Filters.Category != "calzado" {
		t.Errorf("expected applied filters echoed, got %+v", resp.Filters)
	}
	got := resp.Results[0]
	if got.ID != "p1" || got.Rank != 1 {
		t.Errorf("unexpected hit: %+v", got)
	}
	if got.Relevancia != "alta" {
		t.Errorf("expected relevancia alta, got %q", got.Relevancia)
	}
	if resp.Degraded {
		t.Error("hybrid search must not report degraded")
	}
}

func TestServer_Search_DegradedWhenEmbedderDown(t *testing.T) {
	p := domain.Product{ID: "p1", Name: "Zapatillas Runner", Price: 59.9, Stock: 4}
	router := newTestServer(t, serverFixture{
		searchRepo: &stubSearchRepo{lexical: []candidate.Candidate{candidate.New(p, 9.0)}},
		embedder:   &stubEmbedder{err: domain.ErrEmbeddingUnavailable},
	})

	rr := doJSON(t, router, http.MethodPost, "/api/v1/buscar", searchRequest{Query: "zapatillas"})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}

	var resp searchResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if !resp.Degraded {
		t.Error("expected degraded flag when embedder is down")
	}
	if len(resp.Results) != 1 {
		t.Fatalf("expected lexical results, got %d", len(resp.Results))
	}
}

func TestServer_Search_EmptyQueryRejected(t *testing.T) {
	router := newTestServer(t, serverFixture{})

	rr := doJSON(t, router, http.MethodPost, "/api/v1/buscar", searchRequest{Query: "   "})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}

	var resp errorResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Code != codeInvalidRequest {
		t.Errorf("expected code %s, got %s", codeInvalidRequest, resp.Code)
	}
}

func TestServer_Search_MalformedBody(t *testing.T) {
	router := newTestServer(t, serverFixture{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/buscar", bytes.NewBufferString("{not json"))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestServer_Sync(t *testing.T) {
	router := newTestServer(t, serverFixture{
		syncSource: &stubSyncSource{pages: [][]domain.Product{{
			{ID: "p1", Name: "Camiseta", Price: 10, Stock: 1},
		}}},
	})

	rr := doJSON(t, router, http.MethodPost, "/api/v1/sync", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp syncResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Status != "completed" {
		t.Errorf("expected completed, got %q", resp.Status)
	}
	if resp.ItemsFetched != 1 || resp.ItemsIndexed != 1 || resp.ItemsFailed != 0 {
		t.Errorf("unexpected counts: %+v", resp)
	}
}

func TestServer_Sync_ConcurrentRunRejected(t *testing.T) {
	src := &stubSyncSource{
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	router := newTestServer(t, serverFixture{syncSource: src})

	firstDone := make(chan *httptest.ResponseRecorder, 1)
	go func() {
		firstDone <- doJSON(t, router, http.MethodPost, "/api/v1/sync", nil)
	}()

	<-src.started

	rr := doJSON(t, router, http.MethodPost, "/api/v1/sync", nil)
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409 while a run is active, got %d", rr.Code)
	}
	var resp errorResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Code != codeSyncInProgress {
		t.Errorf("expected code %s, got %s", codeSyncInProgress, resp.Code)
	}

	close(src.release)
	if first := <-firstDone; first.Code != http.StatusOK {
		t.Fatalf("first run should complete, got %d", first.Code)
	}
}

func TestServer_Categories(t *testing.T) {
	router := newTestServer(t, serverFixture{
		statsIndex: &stubStatsIndex{categories: []domain.CategoryCount{
			{Label: "ropa", Count: 12},
			{Label: "calzado", Count: 5},
		}},
	})

	rr := doJSON(t, router, http.MethodGet, "/api/v1/categories", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}

	var resp categoriesResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Categories) != 2 || resp.Categories[0].Category != "ropa" || resp.Categories[0].Count != 12 {
		t.Errorf("unexpected categories: %+v", resp.Categories)
	}
}

func TestServer_Stats(t *testing.T) {
	router := newTestServer(t, serverFixture{
		statsIndex: &stubStatsIndex{docs: 150, sizeBytes: 4096},
	})

	rr := doJSON(t, router, http.MethodGet, "/api/v1/stats", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}

	var resp statsResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.IndexedDocs != 150 || resp.IndexSizeBytes != 4096 {
		t.Errorf("unexpected stats: %+v", resp)
	}
}

func TestServer_GetProduct(t *testing.T) {
	router := newTestServer(t, serverFixture{
		products: &stubProducts{products: map[string]domain.Product{
			"p7": {ID: "p7", Name: "Mochila", Price: 25, Stock: 3},
		}},
	})

	rr := doJSON(t, router, http.MethodGet, "/api/v1/products/p7", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var resp productResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.ID != "p7" || resp.Name != "Mochila" {
		t.Errorf("unexpected product: %+v", resp)
	}

	rr = doJSON(t, router, http.MethodGet, "/api/v1/products/nope", nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}

func TestServer_Health(t *testing.T) {
	router := newTestServer(t, serverFixture{indexCheck: &stubIndexChecker{docs: 42}})

	rr := doJSON(t, router, http.MethodGet, "/health", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}

	var resp healthResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Status != "up" {
		t.Errorf("expected up, got %q", resp.Status)
	}
	idx, ok := resp.Checks["index"]
	if !ok || idx.Docs == nil || *idx.Docs != 42 {
		t.Errorf("unexpected index check: %+v", idx)
	}
}

func TestServer_Health_IndexDown(t *testing.T) {
	router := newTestServer(t, serverFixture{
		indexCheck: &stubIndexChecker{pingErr: context.DeadlineExceeded},
	})

	rr := doJSON(t, router, http.MethodGet, "/health", nil)
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 when the index is down, got %d", rr.Code)
	}
}
