package index

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/storelens/storelens/internal/db"
	"github.com/storelens/storelens/internal/domain"
	"github.com/storelens/storelens/internal/domain/search/candidate"
	"github.com/storelens/storelens/internal/domain/search/filter"
)

// Schema tuning defaults.
const (
	defaultHNSWM           = 16
	defaultHNSWEFConstruct = 200
	nameLexicalWeight      = 2.0
	indexLanguage          = "spanish"
)

// store is the consumer interface over the index service (ISP).
type store interface {
	Ping(ctx context.Context) error
	HSetMulti(ctx context.Context, items []db.HashSetItem) error
	HGetAllMulti(ctx context.Context, keys []string) ([]map[string]string, error)
	CreateIndex(ctx context.Context, def *db.IndexDefinition) error
	DropIndex(ctx context.Context, name string) error
	IndexInfo(ctx context.Context, name string) (db.IndexInfo, error)
	SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error)
	SearchText(ctx context.Context, q *db.TextQuery) (*db.SearchResult, error)
	AggregateCount(ctx context.Context, index, field string) ([]db.GroupCount, error)
}

// Repo is the typed gateway over the remote product index. It is the only
// component that knows the document key scheme and hash layout.
type Repo struct {
	store     store
	keyPrefix string
}

// New creates an index gateway. keyPrefix namespaces all keys, e.g. "storelens:".
func New(s store, keyPrefix string) *Repo {
	if keyPrefix == "" {
		keyPrefix = "storelens:"
	}
	return &Repo{store: s, keyPrefix: keyPrefix}
}

func (r *Repo) indexName() string { return r.keyPrefix + "products:idx" }
func (r *Repo) docPrefix() string { return r.keyPrefix + "product:" }
func (r *Repo) docKey(id string) string {
	return r.docPrefix() + id
}

// EnsureSchema creates the product index if it does not exist. Creating an
// already-existing index is a no-op, not an error.
func (r *Repo) EnsureSchema(ctx context.Context) error {
	def := &db.IndexDefinition{
		Name:     r.indexName(),
		Prefixes: []string{r.docPrefix()},
		Language: indexLanguage,
		Fields: []db.IndexField{
			{Name: fieldName, Type: db.IndexFieldText, TextWeight: nameLexicalWeight},
			{Name: fieldDescription, Type: db.IndexFieldText},
			{Name: fieldCategory, Type: db.IndexFieldTag},
			{Name: fieldPrice, Type: db.IndexFieldNumeric},
			{Name: fieldStock, Type: db.IndexFieldNumeric},
			{
				Name:              fieldEmbedding,
				Type:              db.IndexFieldVector,
				VectorAlgo:        db.VectorHNSW,
				VectorDim:         domain.EmbeddingDim,
				VectorDistance:    db.DistanceCosine,
				VectorM:           defaultHNSWM,
				VectorEFConstruct: defaultHNSWEFConstruct,
			},
		},
	}
	if err := def.Validate(); err != nil {
		return fmt.Errorf("index definition: %w", err)
	}

	err := r.store.CreateIndex(ctx, def)
	if errors.Is(err, db.ErrIndexExists) {
		return nil
	}
	if err != nil {
		return r.mapErr("ensure schema", err)
	}
	return nil
}

// DropSchema removes the index and its documents. Dropping a missing
// index is a no-op.
func (r *Repo) DropSchema(ctx context.Context) error {
	err := r.store.DropIndex(ctx, r.indexName())
	if errors.Is(err, db.ErrIndexNotFound) {
		return nil
	}
	if err != nil {
		return r.mapErr("drop schema", err)
	}
	return nil
}

// UpsertBatch writes embedded products in one pipelined round-trip,
// keyed by product id (idempotent per id).
func (r *Repo) UpsertBatch(ctx context.Context, docs []domain.EmbeddedProduct) error {
	if len(docs) == 0 {
		return nil
	}

	items := make([]db.HashSetItem, len(docs))
	for i := range docs {
		items[i] = db.HashSetItem{
			Key:    r.docKey(docs[i].ID),
			Fields: buildHashFields(&docs[i]),
		}
	}

	if err := r.store.HSetMulti(ctx, items); err != nil {
		return r.mapErr("upsert batch", err)
	}
	return nil
}

// FetchBatch reads stored products (with vectors) by id. Missing ids are
// absent from the result, not an error.
func (r *Repo) FetchBatch(ctx context.Context, ids []string) (map[string]domain.EmbeddedProduct, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = r.docKey(id)
	}

	maps, err := r.store.HGetAllMulti(ctx, keys)
	if err != nil {
		return nil, r.mapErr("fetch batch", err)
	}

	out := make(map[string]domain.EmbeddedProduct, len(ids))
	for i, m := range maps {
		if len(m) == 0 {
			continue
		}
		out[ids[i]] = domain.EmbeddedProduct{
			Product:   parseProduct(ids[i], m),
			Embedding: bytesToVector(m[fieldEmbedding]),
		}
	}
	return out, nil
}

// SearchKNN runs a k-nearest-neighbor query over the embedding field with
// hard pre-filters. Scores are cosine similarity in [0,1].
func (r *Repo) SearchKNN(
	ctx context.Context, vector []float32, filters filter.Expression, topK int,
) ([]candidate.Candidate, error) {
	sr, err := r.store.SearchKNN(ctx, &db.KNNQuery{
		IndexName:    r.indexName(),
		Filters:      filters,
		Vector:       vector,
		K:            topK,
		ReturnFields: returnFields(),
	})
	if err != nil {
		return nil, r.mapErr("search knn", err)
	}
	return r.parseCandidates(sr), nil
}

// SearchLexical runs a BM25 text query over name and description with
// hard pre-filters. Scores are raw BM25 values (unbounded).
func (r *Repo) SearchLexical(
	ctx context.Context, query string, filters filter.Expression, topK int,
) ([]candidate.Candidate, error) {
	sr, err := r.store.SearchText(ctx, &db.TextQuery{
		IndexName:    r.indexName(),
		Query:        query,
		Filters:      filters,
		TopK:         topK,
		ReturnFields: returnFields(),
	})
	if err != nil {
		return nil, r.mapErr("search lexical", err)
	}
	return r.parseCandidates(sr), nil
}

// AggregateCategories returns each category label with its product count,
// sorted by descending count then label.
func (r *Repo) AggregateCategories(ctx context.Context) ([]domain.CategoryCount, error) {
	groups, err := r.store.AggregateCount(ctx, r.indexName(), fieldCategory)
	if err != nil {
		return nil, r.mapErr("aggregate categories", err)
	}

	out := make([]domain.CategoryCount, len(groups))
	for i, g := range groups {
		out[i] = domain.CategoryCount{Label: g.Value, Count: g.Count}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Label < out[j].Label
	})
	return out, nil
}

// Count returns the number of indexed products.
func (r *Repo) Count(ctx context.Context) (int, error) {
	info, err := r.store.IndexInfo(ctx, r.indexName())
	if errors.Is(err, db.ErrIndexNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, r.mapErr("count", err)
	}
	return info.NumDocs, nil
}

// Info returns document count and approximate index size in bytes.
func (r *Repo) Info(ctx context.Context) (int, int64, error) {
	info, err := r.store.IndexInfo(ctx, r.indexName())
	if errors.Is(err, db.ErrIndexNotFound) {
		return 0, 0, nil
	}
	if err != nil {
		return 0, 0, r.mapErr("info", err)
	}
	return info.NumDocs, info.SizeBytes, nil
}

// Ping checks index service connectivity.
func (r *Repo) Ping(ctx context.Context) error {
	if err := r.store.Ping(ctx); err != nil {
		return r.mapErr("ping", err)
	}
	return nil
}

func (r *Repo) parseCandidates(sr *db.SearchResult) []candidate.Candidate {
	if sr == nil || len(sr.Entries) == 0 {
		return nil
	}

	prefix := r.docPrefix()
	out := make([]candidate.Candidate, 0, len(sr.Entries))
	for _, entry := range sr.Entries {
		id := strings.TrimPrefix(entry.Key, prefix)
		out = append(out, candidate.New(parseProduct(id, entry.Fields), entry.Score))
	}
	return out
}

func returnFields() []string {
	return []string{
		fieldName, fieldDescription, fieldCategory,
		fieldPrice, fieldStock, fieldImageURL,
		fieldCreatedAt, fieldUpdatedAt,
	}
}

// mapErr converts deadline errors to ErrIndexTimeout; everything else is
// wrapped with the operation for diagnostics.
func (r *Repo) mapErr(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, domain.ErrIndexTimeout)
	}
	return fmt.Errorf("%s: %w", op, err)
}
