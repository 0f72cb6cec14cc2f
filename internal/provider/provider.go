package provider

import (
	"context"

	"github.com/Von-Base-Enterprises/core-nexus/internal/domain"
	"github.com/google/uuid"
)

// Stats reports per-provider storage statistics.
type Stats struct {
	TotalVectors int64          `json:"total_vectors"`
	Extra        map[string]any `json:"extra,omitempty"`
}

// VectorProvider is the closed polymorphic backend contract. Variants:
// Postgres (primary, relational with one HNSW index), Badger (secondary,
// embedded), Graph (relational graph tables keyed by memory id). Side
// effects are confined to the provider's own storage; within one provider a
// successful Store is visible to all subsequent operations.
type VectorProvider interface {
	Name() string

	// Store durably persists the record. On success, subsequent Query and
	// Get observe it (read-after-write within the provider).
	Store(ctx context.Context, m *domain.Memory) error

	// Query returns up to limit results ordered by descending cosine
	// similarity; results below minSimilarity are excluded.
	Query(ctx context.Context, embedding []float32, limit int, filters domain.QueryFilters, minSimilarity float32) ([]domain.QueryResult, error)

	// Recent returns results ordered by descending created_at with
	// SimilarityScore unset. This is the empty-query path; a zero-vector
	// similarity probe is never a substitute.
	Recent(ctx context.Context, limit, offset int, filters domain.QueryFilters) ([]domain.QueryResult, error)

	Get(ctx context.Context, id uuid.UUID) (*domain.QueryResult, error)
	Delete(ctx context.Context, id uuid.UUID) (bool, error)

	HealthCheck(ctx context.Context) domain.Health
	Stats(ctx context.Context) (Stats, error)

	Close()
}
