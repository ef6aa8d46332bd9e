package domain

import "errors"

var (
	// ErrInvalidRequest signals a client-correctable request error. Never retried.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrEmbeddingUnavailable signals that the embedding provider failed to
	// load or compute. Fatal for sync, degrades search to lexical-only.
	ErrEmbeddingUnavailable = errors.New("embedding unavailable")
	// ErrIndexTimeout signals that an index operation exceeded its deadline.
	ErrIndexTimeout = errors.New("index timeout")
	// ErrSearchUnavailable signals an index failure during search.
	ErrSearchUnavailable = errors.New("search unavailable")
	// ErrSourceUnavailable signals that the product source API is unreachable.
	ErrSourceUnavailable = errors.New("source unavailable")
	// ErrSyncInProgress signals that a sync run is already in flight.
	ErrSyncInProgress = errors.New("sync already in progress")
	// ErrProductNotFound signals a missing product.
	ErrProductNotFound = errors.New("product not found")
)
