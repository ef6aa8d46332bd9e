// Package chi implements the HTTP API: hybrid product search, catalog
// synchronization, and the operational endpoints around them.
package chi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sync"
	"time"

	chiv5 "github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/storelens/storelens/internal/domain"
	"github.com/storelens/storelens/internal/domain/search/request"
	"github.com/storelens/storelens/internal/logger"
	"github.com/storelens/storelens/internal/metrics"
	healthuc "github.com/storelens/storelens/internal/usecase/health"
	searchuc "github.com/storelens/storelens/internal/usecase/search"
	statsuc "github.com/storelens/storelens/internal/usecase/stats"
	syncuc "github.com/storelens/storelens/internal/usecase/sync"
)

// Error response codes.
const (
	codeInvalidRequest       = "invalid_request"
	codeProductNotFound      = "product_not_found"
	codeSyncInProgress       = "sync_in_progress"
	codeEmbeddingUnavailable = "embedding_unavailable"
	codeSourceUnavailable    = "source_unavailable"
	codeSearchUnavailable    = "search_unavailable"
	codeIndexTimeout         = "index_timeout"
	codeInternalError        = "internal_error"
)

// ProductGetter looks up a single product from the source of truth.
type ProductGetter interface {
	GetByID(ctx context.Context, id string) (domain.Product, error)
}

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error) bool

// Server exposes the search and sync services over HTTP.
type Server struct {
	search   *searchuc.Service
	sync     *syncuc.Service
	stats    *statsuc.Service
	health   *healthuc.Service
	products ProductGetter
	logger   *zap.Logger

	syncGuard     sync.Mutex
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server.
func NewServer(
	search *searchuc.Service,
	syncSvc *syncuc.Service,
	stats *statsuc.Service,
	health *healthuc.Service,
	products ProductGetter,
	log *zap.Logger,
) *Server {
	s := &Server{
		search:   search,
		sync:     syncSvc,
		stats:    stats,
		health:   health,
		products: products,
		logger:   log,
	}
	s.errorHandlers = []errorHandler{
		sentinelHandler(domain.ErrInvalidRequest, http.StatusBadRequest, codeInvalidRequest),
		sentinelHandler(domain.ErrProductNotFound, http.StatusNotFound, codeProductNotFound),
		sentinelHandler(domain.ErrSyncInProgress, http.StatusConflict, codeSyncInProgress),
		sentinelHandler(domain.ErrEmbeddingUnavailable, http.StatusBadGateway, codeEmbeddingUnavailable),
		sentinelHandler(domain.ErrSourceUnavailable, http.StatusBadGateway, codeSourceUnavailable),
		sentinelHandler(domain.ErrIndexTimeout, http.StatusGatewayTimeout, codeIndexTimeout),
		sentinelHandler(domain.ErrSearchUnavailable, http.StatusServiceUnavailable, codeSearchUnavailable),
	}
	return s
}

// Router builds the chi router with the full route table and middleware.
func (s *Server) Router(apiKeys []string) http.Handler {
	r := chiv5.NewRouter()
	r.Use(jsonRecoverer(s.logger))
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(wideEventMiddleware(s.logger))
	r.Use(metrics.Middleware())
	r.Use(BearerAuthMiddleware(apiKeys))

	r.Route("/api/v1", func(r chiv5.Router) {
		r.Post("/buscar", s.Search)
		r.Post("/sync", s.Sync)
		r.Get("/categories", s.Categories)
		r.Get("/stats", s.Stats)
		r.Get("/products/{id}", s.GetProduct)
	})
	r.Get("/health", s.Health)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	return r
}

// Search handles POST /api/v1/buscar.
func (s *Server) Search(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, "invalid request body: "+err.Error())
		return
	}

	topK := -1
	if req.TopK != nil {
		topK = *req.TopK
	}
	searchReq, err := request.New(
		req.Query, topK, req.Category, req.PriceMin, req.PriceMax, req.IncludeOutOfStock,
	)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	hits, meta, err := s.search.Search(r.Context(), &searchReq)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	results := make([]searchHit, len(hits))
	for i, h := range hits {
		results[i] = hitToWire(h)
	}

	writeJSON(w, http.StatusOK, searchResponse{
		Query: searchReq.Query(),
		Filters: searchFilters{
			Category:          searchReq.Category(),
			PriceMin:          searchReq.PriceMin(),
			PriceMax:          searchReq.PriceMax(),
			IncludeOutOfStock: searchReq.IncludeOutOfStock(),
		},
		Results:  results,
		Total:    meta.Total,
		TookMs:   meta.Took.Milliseconds(),
		Degraded: meta.Degraded,
	})
}

// Sync handles POST /api/v1/sync. At most one run at a time; a second
// request while a run is active gets 409.
func (s *Server) Sync(w http.ResponseWriter, r *http.Request) {
	var req syncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, "invalid request body: "+err.Error())
		return
	}

	if !s.syncGuard.TryLock() {
		s.handleDomainError(w, r, domain.ErrSyncInProgress)
		return
	}
	defer s.syncGuard.Unlock()

	outcome, err := s.sync.Sync(r.Context(), req.ForceReindex)
	if err != nil {
		// The outcome still describes the partial run; report it with
		// the error status.
		status := errStatus(err)
		logger.FromContext(r.Context()).Warn("sync run failed", zap.Error(err))
		writeJSON(w, status, outcomeToWire(outcome))
		return
	}

	writeJSON(w, http.StatusOK, outcomeToWire(outcome))
}

// Categories handles GET /api/v1/categories.
func (s *Server) Categories(w http.ResponseWriter, r *http.Request) {
	counts, err := s.stats.Categories(r.Context())
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	out := make([]categoryCount, len(counts))
	for i, c := range counts {
		out[i] = categoryCount{Category: c.Label, Count: c.Count}
	}
	writeJSON(w, http.StatusOK, categoriesResponse{Categories: out})
}

// Stats handles GET /api/v1/stats.
func (s *Server) Stats(w http.ResponseWriter, r *http.Request) {
	snap, err := s.stats.Stats(r.Context())
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snapshotToWire(snap))
}

// GetProduct handles GET /api/v1/products/{id}, proxying the source API.
func (s *Server) GetProduct(w http.ResponseWriter, r *http.Request) {
	id := chiv5.URLParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, "product id is required")
		return
	}

	p, err := s.products.GetByID(r.Context(), id)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, productToWire(p))
}

// Health handles GET /health. Degraded still answers 200 so lexical-only
// operation does not get pulled out of rotation.
func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	status := http.StatusOK
	if report.Status == healthuc.StatusDown {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, reportToWire(report))
}

// jsonRecoverer is a recovery middleware that returns JSON instead of a
// plain text stacktrace.
func jsonRecoverer(log *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rvr := recover(); rvr != nil {
					log.Error("panic recovered",
						zap.Any("panic", rvr),
						zap.Stack("stacktrace"),
					)
					writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// wideEventMiddleware emits a canonical log line per request and
// propagates X-Request-ID.
func wideEventMiddleware(log *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			requestID := middleware.GetReqID(r.Context())
			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			reqLogger := log.With(zap.String("request_id", requestID))
			ctx := logger.ContextWithLogger(r.Context(), reqLogger)

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			reqLogger.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.String("ip", r.RemoteAddr),
				zap.Int("response_bytes", ww.BytesWritten()),
			)
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Code: code, Message: message})
}

// safeDomainMessage returns a sentinel error message for the client without
// exposing internals.
func safeDomainMessage(err error) string {
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

var sentinels = []error{
	domain.ErrInvalidRequest,
	domain.ErrProductNotFound,
	domain.ErrSyncInProgress,
	domain.ErrEmbeddingUnavailable,
	domain.ErrSourceUnavailable,
	domain.ErrIndexTimeout,
	domain.ErrSearchUnavailable,
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code string) errorHandler {
	return func(w http.ResponseWriter, err error) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, safeDomainMessage(err))
		return true
	}
}

func (s *Server) handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	log := logger.FromContext(r.Context())
	log.Warn("domain error", zap.Error(err))
	for _, h := range s.errorHandlers {
		if h(w, err) {
			return
		}
	}
	log.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
}

// errStatus maps an error to its HTTP status without writing a body.
func errStatus(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrSourceUnavailable),
		errors.Is(err, domain.ErrEmbeddingUnavailable):
		return http.StatusBadGateway
	case errors.Is(err, domain.ErrIndexTimeout):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
