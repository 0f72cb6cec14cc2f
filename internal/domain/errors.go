package domain

import "errors"

// Error kinds surfaced by the storage and retrieval core. Handlers map these
// to HTTP status codes; everything else is treated as an internal error.
var (
	// ErrInvalidRequest marks malformed or semantically invalid input
	// (empty content, wrong embedding dimension, out-of-range score).
	ErrInvalidRequest = errors.New("invalid request")

	// ErrNotFound marks a missing memory, entity, or import job.
	ErrNotFound = errors.New("not found")

	// ErrDuplicate marks a write rejected by active deduplication.
	ErrDuplicate = errors.New("duplicate content")

	// ErrProviderUnavailable marks a transient backend failure.
	ErrProviderUnavailable = errors.New("provider unavailable")

	// ErrStorageUnavailable marks a failed primary write. Never downgraded
	// to a secondary-only write.
	ErrStorageUnavailable = errors.New("primary storage unavailable")

	// ErrEmbeddingUnavailable marks an embedding service that exhausted
	// its retries.
	ErrEmbeddingUnavailable = errors.New("embedding service unavailable")

	// ErrInvalidEmbedding marks a vector whose dimension does not match
	// the collection.
	ErrInvalidEmbedding = errors.New("invalid embedding dimension")

	// ErrConstraintViolation marks a uniqueness conflict at the storage layer.
	ErrConstraintViolation = errors.New("constraint violation")
)
