package provider

import (
	"context"

	"github.com/Von-Base-Enterprises/core-nexus/internal/domain"
	"github.com/Von-Base-Enterprises/core-nexus/internal/graph"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Graph adapts the knowledge-graph pipeline to the provider contract so the
// fanout path treats it like any other backend. It stores no vectors: Store
// feeds the sync pipeline, vector reads return nothing, and Delete drops
// the memory's entity links.
type Graph struct {
	syncer *graph.Syncer
	store  *graph.Store
	logger *zap.Logger
}

var _ VectorProvider = (*Graph)(nil)

func NewGraph(syncer *graph.Syncer, store *graph.Store, logger *zap.Logger) *Graph {
	return &Graph{syncer: syncer, store: store, logger: logger}
}

func (g *Graph) Name() string { return "graph" }

func (g *Graph) Store(ctx context.Context, m *domain.Memory) error {
	g.syncer.Submit(ctx, m)
	return nil
}

func (g *Graph) Query(ctx context.Context, embedding []float32, limit int, filters domain.QueryFilters, minSimilarity float32) ([]domain.QueryResult, error) {
	return nil, nil
}

func (g *Graph) Recent(ctx context.Context, limit, offset int, filters domain.QueryFilters) ([]domain.QueryResult, error) {
	return nil, nil
}

func (g *Graph) Get(ctx context.Context, id uuid.UUID) (*domain.QueryResult, error) {
	return nil, domain.ErrNotFound
}

// Delete removes the memory's links. Nodes and edges stay; they may be
// shared with other memories.
func (g *Graph) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	if err := g.syncer.Remove(ctx, id); err != nil {
		return false, err
	}
	return false, nil
}

func (g *Graph) HealthCheck(ctx context.Context) domain.Health {
	stats, err := g.store.Stats(ctx)
	if err != nil {
		return domain.Health{Status: domain.Unavailable, Details: map[string]any{"error": err.Error()}}
	}
	sync := g.syncer.Stats()
	return domain.Health{
		Status: domain.Healthy,
		Details: map[string]any{
			"node_count":   stats.NodeCount,
			"sync_queued":  sync.Queued,
			"sync_dropped": sync.Dropped,
		},
	}
}

func (g *Graph) Stats(ctx context.Context) (Stats, error) {
	gs, err := g.store.Stats(ctx)
	if err != nil {
		return Stats{}, err
	}
	sync := g.syncer.Stats()
	return Stats{
		TotalVectors: 0,
		Extra: map[string]any{
			"node_count":         gs.NodeCount,
			"relationship_count": gs.RelationshipCount,
			"sync_processed":     sync.Processed,
			"sync_failed":        sync.Failed,
			"sync_dropped":       sync.Dropped,
		},
	}, nil
}

func (g *Graph) Close() {}
