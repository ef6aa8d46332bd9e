package chi

import (
	"time"

	"github.com/storelens/storelens/internal/domain"
	"github.com/storelens/storelens/internal/domain/search/hit"
	"github.com/storelens/storelens/internal/domain/syncrun"
	healthuc "github.com/storelens/storelens/internal/usecase/health"
	statsuc "github.com/storelens/storelens/internal/usecase/stats"
)

// searchRequest is the POST /buscar body.
type searchRequest struct {
	Query             string   `json:"query"`
	TopK              *int     `json:"top_k,omitempty"`
	Category          string   `json:"category,omitempty"`
	PriceMin          *float64 `json:"price_min,omitempty"`
	PriceMax          *float64 `json:"price_max,omitempty"`
	IncludeOutOfStock bool     `json:"include_out_of_stock,omitempty"`
}

// productResponse is the wire form of a catalog product.
type productResponse struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	Category    string  `json:"category,omitempty"`
	Price       float64 `json:"price"`
	Stock       int     `json:"stock"`
	ImageURL    string  `json:"image_url,omitempty"`
}

// searchHit is one ranked result. Relevancia carries the tier label
// (alta, media, baja).
type searchHit struct {
	productResponse
	Score      float64 `json:"score"`
	Relevancia string  `json:"relevancia"`
	Rank       int     `json:"rank"`
}

// searchFilters echoes the filters a search was executed with.
type searchFilters struct {
	Category          string   `json:"category,omitempty"`
	PriceMin          *float64 `json:"price_min,omitempty"`
	PriceMax          *float64 `json:"price_max,omitempty"`
	IncludeOutOfStock bool     `json:"include_out_of_stock,omitempty"`
}

// searchResponse is the POST /buscar response.
type searchResponse struct {
	Query    string        `json:"query"`
	Filters  searchFilters `json:"filters"`
	Results  []searchHit   `json:"results"`
	Total    int           `json:"total"`
	TookMs   int64         `json:"took_ms"`
	Degraded bool          `json:"degraded,omitempty"`
}

// syncRequest is the POST /sync body. The body is optional.
type syncRequest struct {
	ForceReindex bool `json:"force_reindex"`
}

// syncResponse is the POST /sync response.
type syncResponse struct {
	Status       string   `json:"status"`
	ItemsFetched int      `json:"items_fetched"`
	ItemsIndexed int      `json:"items_indexed"`
	ItemsFailed  int      `json:"items_failed"`
	ElapsedMs    int64    `json:"elapsed_ms"`
	Failures     []string `json:"failures,omitempty"`
}

// categoryCount is one entry of the GET /categories response.
type categoryCount struct {
	Category string `json:"category"`
	Count    int    `json:"count"`
}

type categoriesResponse struct {
	Categories []categoryCount `json:"categories"`
}

// termCount is one entry of the stats top terms list.
type termCount struct {
	Term  string `json:"term"`
	Count int    `json:"count"`
}

// statsResponse is the GET /stats response.
type statsResponse struct {
	IndexedDocs        int         `json:"indexed_docs"`
	IndexSizeBytes     int64       `json:"index_size_bytes"`
	SearchesObserved   int64       `json:"searches_observed"`
	AvgSearchLatencyMs float64     `json:"avg_search_latency_ms"`
	TopTerms           []termCount `json:"top_terms"`
}

// healthCheck is one dependency entry of the GET /health response.
type healthCheck struct {
	Status    string  `json:"status"`
	LatencyMs float64 `json:"latency_ms"`
	Error     string  `json:"error,omitempty"`
	Docs      *int    `json:"docs,omitempty"`
}

type healthResponse struct {
	Status string                 `json:"status"`
	Checks map[string]healthCheck `json:"checks"`
}

// errorResponse is the uniform error body.
type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func productToWire(p domain.Product) productResponse {
	return productResponse{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Category:    p.Category,
		Price:       p.Price,
		Stock:       p.Stock,
		ImageURL:    p.ImageURL,
	}
}

func hitToWire(h hit.Hit) searchHit {
	return searchHit{
		productResponse: productToWire(h.Product()),
		Score:           h.Score(),
		Relevancia:      string(h.Tier()),
		Rank:            h.Rank(),
	}
}

func outcomeToWire(o syncrun.Outcome) syncResponse {
	return syncResponse{
		Status:       string(o.State()),
		ItemsFetched: o.ItemsFetched(),
		ItemsIndexed: o.ItemsIndexed(),
		ItemsFailed:  o.ItemsFailed(),
		ElapsedMs:    o.Elapsed().Milliseconds(),
		Failures:     o.Failures(),
	}
}

func snapshotToWire(s statsuc.Snapshot) statsResponse {
	terms := make([]termCount, len(s.TopTerms))
	for i, t := range s.TopTerms {
		terms[i] = termCount{Term: t.Term, Count: t.Count}
	}
	return statsResponse{
		IndexedDocs:        s.IndexedDocs,
		IndexSizeBytes:     s.IndexSizeBytes,
		SearchesObserved:   s.SearchesObserved,
		AvgSearchLatencyMs: durationMs(s.AvgSearchLatency),
		TopTerms:           terms,
	}
}

func reportToWire(r healthuc.Report) healthResponse {
	checks := make(map[string]healthCheck, len(r.Checks))
	for name, c := range r.Checks {
		wire := healthCheck{
			Status:    string(c.Status),
			LatencyMs: durationMs(c.Latency),
			Error:     c.Error,
		}
		if name == "index" && c.Status == healthuc.StatusUp {
			docs := c.Docs
			wire.Docs = &docs
		}
		checks[name] = wire
	}
	return healthResponse{Status: string(r.Status), Checks: checks}
}

func durationMs(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}
