package unified

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Von-Base-Enterprises/core-nexus/internal/domain"
	"github.com/Von-Base-Enterprises/core-nexus/internal/provider"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// mockProvider implements provider.VectorProvider with an in-memory map.
type mockProvider struct {
	name       string
	memories   map[uuid.UUID]*domain.Memory
	storeErr   error
	queryErr   error
	queryScore float32
}

func newMockProvider(name string) *mockProvider {
	return &mockProvider{
		name:       name,
		memories:   make(map[uuid.UUID]*domain.Memory),
		queryScore: 0.9,
	}
}

func (m *mockProvider) Name() string { return m.name }

func (m *mockProvider) Store(ctx context.Context, mem *domain.Memory) error {
	if m.storeErr != nil {
		return m.storeErr
	}
	stored := *mem
	stored.CreatedAt = time.Now()
	m.memories[mem.ID] = &stored
	mem.CreatedAt = stored.CreatedAt
	return nil
}

func (m *mockProvider) Query(ctx context.Context, embedding []float32, limit int, filters domain.QueryFilters, minSimilarity float32) ([]domain.QueryResult, error) {
	if m.queryErr != nil {
		return nil, m.queryErr
	}
	var results []domain.QueryResult
	for _, mem := range m.memories {
		if !filters.Match(mem) {
			continue
		}
		score := m.queryScore
		results = append(results, domain.QueryResult{Memory: *mem, SimilarityScore: &score})
		if len(results) >= limit {
			break
		}
	}
	return results, nil
}

func (m *mockProvider) Recent(ctx context.Context, limit, offset int, filters domain.QueryFilters) ([]domain.QueryResult, error) {
	if m.queryErr != nil {
		return nil, m.queryErr
	}
	var results []domain.QueryResult
	for _, mem := range m.memories {
		if !filters.Match(mem) {
			continue
		}
		results = append(results, domain.QueryResult{Memory: *mem})
		if len(results) >= limit {
			break
		}
	}
	return results, nil
}

func (m *mockProvider) Get(ctx context.Context, id uuid.UUID) (*domain.QueryResult, error) {
	mem, ok := m.memories[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &domain.QueryResult{Memory: *mem}, nil
}

func (m *mockProvider) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	if _, ok := m.memories[id]; !ok {
		return false, nil
	}
	delete(m.memories, id)
	return true, nil
}

func (m *mockProvider) HealthCheck(ctx context.Context) domain.Health {
	if m.storeErr != nil {
		return domain.Health{Status: domain.Unavailable}
	}
	return domain.Health{Status: domain.Healthy}
}

func (m *mockProvider) Stats(ctx context.Context) (provider.Stats, error) {
	return provider.Stats{TotalVectors: int64(len(m.memories))}, nil
}

func (m *mockProvider) Close() {}

// mockEmbedder returns a fixed-dimension vector and counts calls.
type mockEmbedder struct {
	dimension int
	calls     int
	err       error
}

func (m *mockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return make([]float32, m.dimension), nil
}

func (m *mockEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		v, err := m.Embed(ctx, texts[i])
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (m *mockEmbedder) Dimension() int { return m.dimension }

func (m *mockEmbedder) HealthCheck(ctx context.Context) domain.Health {
	return domain.Health{Status: domain.Healthy}
}

// mockDedup returns scripted decisions.
type mockDedup struct {
	mode         domain.DedupMode
	exactResult  domain.DedupResult
	semResult    domain.DedupResult
	recorded     map[string]uuid.UUID
	forgotten    []string
	semanticRuns int
}

func newMockDedup(mode domain.DedupMode) *mockDedup {
	return &mockDedup{
		mode:        mode,
		exactResult: domain.DedupResult{Decision: domain.DedupUnique},
		semResult:   domain.DedupResult{Decision: domain.DedupUnique},
		recorded:    make(map[string]uuid.UUID),
	}
}

func (m *mockDedup) Mode() domain.DedupMode { return m.mode }

func (m *mockDedup) CheckExact(ctx context.Context, hash string) domain.DedupResult {
	return m.exactResult
}

func (m *mockDedup) CheckSemantic(ctx context.Context, embedding []float32) domain.DedupResult {
	m.semanticRuns++
	return m.semResult
}

func (m *mockDedup) Record(ctx context.Context, hash string, memoryID uuid.UUID) error {
	m.recorded[hash] = memoryID
	return nil
}

func (m *mockDedup) Forget(hash string) {
	m.forgotten = append(m.forgotten, hash)
}

func testLogger() *zap.Logger {
	logger, _ := zap.NewDevelopment()
	return logger
}

func setupStore(mode domain.DedupMode) (*Store, *mockProvider, *mockProvider, *mockEmbedder, *mockDedup) {
	primary := newMockProvider("primary")
	secondary := newMockProvider("secondary")
	embedder := &mockEmbedder{dimension: 8}
	deduper := newMockDedup(mode)
	store := NewStore(primary, []provider.VectorProvider{secondary}, embedder, deduper, nil, testLogger())
	return store, primary, secondary, embedder, deduper
}

func TestStoreWritesPrimaryAndFansOut(t *testing.T) {
	store, primary, secondary, _, deduper := setupStore(domain.DedupLogOnly)

	result, err := store.Store(context.Background(), &StoreRequest{Content: "the deploy failed at 3am"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsDuplicate {
		t.Error("expected non-duplicate result")
	}
	if len(primary.memories) != 1 {
		t.Errorf("primary has %d memories, want 1", len(primary.memories))
	}
	if len(secondary.memories) != 1 {
		t.Errorf("secondary has %d memories, want 1", len(secondary.memories))
	}
	if len(result.SyncedProviders) != 2 {
		t.Errorf("synced %v, want primary and secondary", result.SyncedProviders)
	}
	if len(deduper.recorded) != 1 {
		t.Error("expected content hash recorded after store")
	}
}

func TestStoreRejectsInvalidContent(t *testing.T) {
	store, _, _, _, _ := setupStore(domain.DedupLogOnly)

	for _, content := range []string{"", "   \n\t "} {
		_, err := store.Store(context.Background(), &StoreRequest{Content: content})
		if !errors.Is(err, domain.ErrInvalidRequest) {
			t.Errorf("content %q: got %v, want ErrInvalidRequest", content, err)
		}
	}
}

func TestStoreRejectsImportanceOutOfRange(t *testing.T) {
	store, _, _, _, _ := setupStore(domain.DedupLogOnly)

	bad := float32(1.5)
	_, err := store.Store(context.Background(), &StoreRequest{Content: "x", ImportanceScore: &bad})
	if !errors.Is(err, domain.ErrInvalidRequest) {
		t.Errorf("got %v, want ErrInvalidRequest", err)
	}
}

func TestStoreExactDuplicateActiveSkipsEmbedding(t *testing.T) {
	store, primary, _, embedder, deduper := setupStore(domain.DedupActive)
	existing := uuid.New()
	deduper.exactResult = domain.DedupResult{
		Decision:   domain.DedupExactDuplicate,
		ExistingID: existing,
		Similarity: 1,
	}

	result, err := store.Store(context.Background(), &StoreRequest{Content: "same thing again"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsDuplicate || result.ID != existing {
		t.Errorf("got %+v, want duplicate pointing at %s", result, existing)
	}
	if embedder.calls != 0 {
		t.Errorf("embedder called %d times, want 0 for exact duplicate", embedder.calls)
	}
	if len(primary.memories) != 0 {
		t.Error("duplicate must not be written")
	}
}

func TestStoreExactDuplicateLogOnlyStillWrites(t *testing.T) {
	store, primary, _, _, deduper := setupStore(domain.DedupLogOnly)
	deduper.exactResult = domain.DedupResult{
		Decision:   domain.DedupExactDuplicate,
		ExistingID: uuid.New(),
		Similarity: 1,
	}

	result, err := store.Store(context.Background(), &StoreRequest{Content: "observed duplicate"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsDuplicate {
		t.Error("log_only mode must not block the write")
	}
	if len(primary.memories) != 1 {
		t.Errorf("primary has %d memories, want 1", len(primary.memories))
	}
}

func TestStoreSemanticDuplicateActive(t *testing.T) {
	store, primary, _, _, deduper := setupStore(domain.DedupActive)
	existing := uuid.New()
	deduper.semResult = domain.DedupResult{
		Decision:   domain.DedupSemanticDuplicate,
		ExistingID: existing,
		Similarity: 0.97,
	}

	result, err := store.Store(context.Background(), &StoreRequest{Content: "nearly the same"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsDuplicate || result.ID != existing {
		t.Errorf("got %+v, want semantic duplicate", result)
	}
	if len(primary.memories) != 0 {
		t.Error("semantic duplicate must not be written")
	}
}

func TestStoreSemanticCheckSkippedInLogOnly(t *testing.T) {
	store, _, _, _, deduper := setupStore(domain.DedupLogOnly)

	if _, err := store.Store(context.Background(), &StoreRequest{Content: "whatever"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if deduper.semanticRuns != 0 {
		t.Errorf("semantic check ran %d times in log_only, want 0", deduper.semanticRuns)
	}
}

func TestStoreSkipDedupBypassesChecks(t *testing.T) {
	store, primary, _, _, deduper := setupStore(domain.DedupActive)
	deduper.exactResult = domain.DedupResult{
		Decision:   domain.DedupExactDuplicate,
		ExistingID: uuid.New(),
		Similarity: 1,
	}

	result, err := store.Store(context.Background(), &StoreRequest{Content: "forced write", SkipDedup: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsDuplicate {
		t.Error("SkipDedup write must not be treated as a duplicate")
	}
	if len(primary.memories) != 1 {
		t.Errorf("primary has %d memories, want 1", len(primary.memories))
	}
	if deduper.semanticRuns != 0 {
		t.Errorf("semantic check ran %d times with SkipDedup, want 0", deduper.semanticRuns)
	}
	if len(deduper.recorded) != 1 {
		t.Error("content hash must still be recorded for later writes")
	}
}

func TestStorePrimaryFailureIsFatal(t *testing.T) {
	store, primary, secondary, _, _ := setupStore(domain.DedupLogOnly)
	primary.storeErr = errors.New("connection refused")

	_, err := store.Store(context.Background(), &StoreRequest{Content: "doomed"})
	if !errors.Is(err, domain.ErrStorageUnavailable) {
		t.Errorf("got %v, want ErrStorageUnavailable", err)
	}
	if len(secondary.memories) != 0 {
		t.Error("fanout must not run when the primary rejects the write")
	}
}

func TestStoreSecondaryFailureIsNotFatal(t *testing.T) {
	store, primary, secondary, _, _ := setupStore(domain.DedupLogOnly)
	secondary.storeErr = errors.New("disk full")

	result, err := store.Store(context.Background(), &StoreRequest{Content: "primary only"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(primary.memories) != 1 {
		t.Error("primary write must survive a secondary failure")
	}
	if len(result.SyncedProviders) != 1 || result.SyncedProviders[0] != "primary" {
		t.Errorf("synced %v, want only primary", result.SyncedProviders)
	}
}

func TestQueryEmptyStringUsesRecencyPath(t *testing.T) {
	store, primary, _, embedder, _ := setupStore(domain.DedupLogOnly)
	id := uuid.New()
	primary.memories[id] = &domain.Memory{ID: id, Content: "recent", CreatedAt: time.Now()}

	resp, err := store.Query(context.Background(), &QueryRequest{Query: "   "})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Mode != "recent" {
		t.Errorf("mode = %q, want recent", resp.Mode)
	}
	if embedder.calls != 0 {
		t.Errorf("embedder called %d times on recency path, want 0", embedder.calls)
	}
	if len(resp.Results) != 1 {
		t.Fatalf("got %d results, want 1", len(resp.Results))
	}
	if resp.Results[0].SimilarityScore != nil {
		t.Error("recency results must carry a null similarity score")
	}
}

func TestQuerySimilarityPath(t *testing.T) {
	store, primary, _, embedder, _ := setupStore(domain.DedupLogOnly)
	id := uuid.New()
	primary.memories[id] = &domain.Memory{ID: id, Content: "kubernetes outage", CreatedAt: time.Now()}

	resp, err := store.Query(context.Background(), &QueryRequest{Query: "outage"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Mode != "similarity" {
		t.Errorf("mode = %q, want similarity", resp.Mode)
	}
	if embedder.calls != 1 {
		t.Errorf("embedder called %d times, want 1", embedder.calls)
	}
	if len(resp.Results) != 1 || resp.Results[0].SimilarityScore == nil {
		t.Fatalf("expected one scored result, got %+v", resp.Results)
	}
}

func TestQueryRejectsBadMinSimilarity(t *testing.T) {
	store, _, _, _, _ := setupStore(domain.DedupLogOnly)

	_, err := store.Query(context.Background(), &QueryRequest{Query: "x", MinSimilarity: 1.2})
	if !errors.Is(err, domain.ErrInvalidRequest) {
		t.Errorf("got %v, want ErrInvalidRequest", err)
	}
}

func TestQueryHonorsLargeLimit(t *testing.T) {
	store, primary, _, _, _ := setupStore(domain.DedupLogOnly)
	for range 500 {
		id := uuid.New()
		primary.memories[id] = &domain.Memory{ID: id, Content: "bulk", CreatedAt: time.Now()}
	}

	resp, err := store.Query(context.Background(), &QueryRequest{Query: "", Limit: 500})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(resp.Results) != 500 {
		t.Errorf("got %d results for limit=500, want 500", len(resp.Results))
	}
}

func TestQueryRejectsLimitOverMax(t *testing.T) {
	store, _, _, _, _ := setupStore(domain.DedupLogOnly)

	_, err := store.Query(context.Background(), &QueryRequest{Query: "x", Limit: 1001})
	if !errors.Is(err, domain.ErrInvalidRequest) {
		t.Errorf("got %v, want ErrInvalidRequest", err)
	}
}

func TestQueryMergesSecondariesWithoutDuplicates(t *testing.T) {
	store, primary, secondary, _, _ := setupStore(domain.DedupLogOnly)
	shared := uuid.New()
	only := uuid.New()
	primary.memories[shared] = &domain.Memory{ID: shared, Content: "both", CreatedAt: time.Now()}
	secondary.memories[shared] = &domain.Memory{ID: shared, Content: "both", CreatedAt: time.Now()}
	secondary.memories[only] = &domain.Memory{ID: only, Content: "secondary only", CreatedAt: time.Now()}

	resp, err := store.Query(context.Background(), &QueryRequest{Query: "both", IncludeSecondary: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(resp.Results) != 2 {
		t.Errorf("got %d results, want 2 after id dedupe", len(resp.Results))
	}
}

func TestQuerySkipsFailingSecondary(t *testing.T) {
	store, primary, secondary, _, _ := setupStore(domain.DedupLogOnly)
	id := uuid.New()
	primary.memories[id] = &domain.Memory{ID: id, Content: "survives", CreatedAt: time.Now()}
	secondary.queryErr = errors.New("timeout")

	resp, err := store.Query(context.Background(), &QueryRequest{Query: "survives", IncludeSecondary: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(resp.Results) != 1 {
		t.Errorf("got %d results, want primary's 1", len(resp.Results))
	}
	if len(resp.ProvidersSkipped) != 1 || resp.ProvidersSkipped[0] != "secondary" {
		t.Errorf("skipped = %v, want [secondary]", resp.ProvidersSkipped)
	}
}

func TestDeleteRemovesEverywhereAndForgetsHash(t *testing.T) {
	store, primary, secondary, _, deduper := setupStore(domain.DedupLogOnly)
	id := uuid.New()
	mem := &domain.Memory{ID: id, Content: "to delete", ContentHash: "abc123", CreatedAt: time.Now()}
	primary.memories[id] = mem
	secondary.memories[id] = mem

	if err := store.Delete(context.Background(), id); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(primary.memories) != 0 || len(secondary.memories) != 0 {
		t.Error("memory must be deleted from all providers")
	}
	if len(deduper.forgotten) != 1 || deduper.forgotten[0] != "abc123" {
		t.Errorf("forgotten = %v, want the stored hash", deduper.forgotten)
	}
}

func TestDeleteUnknownIDReturnsNotFound(t *testing.T) {
	store, _, _, _, _ := setupStore(domain.DedupLogOnly)

	err := store.Delete(context.Background(), uuid.New())
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("got %v, want ErrNotFound", err)
	}
}

func TestProvidersIncludeStats(t *testing.T) {
	store, primary, _, _, _ := setupStore(domain.DedupLogOnly)
	id := uuid.New()
	primary.memories[id] = &domain.Memory{ID: id, Content: "counted", CreatedAt: time.Now()}

	infos := store.Providers(context.Background())
	if len(infos) != 2 {
		t.Fatalf("got %d providers, want 2", len(infos))
	}
	if !infos[0].Primary || infos[0].Stats.TotalVectors != 1 {
		t.Errorf("primary entry = %+v, want primary with 1 vector", infos[0])
	}
	if infos[1].Primary || infos[1].Stats.TotalVectors != 0 {
		t.Errorf("secondary entry = %+v, want non-primary with 0 vectors", infos[1])
	}
}

func TestHealthCheckFoldsWorstState(t *testing.T) {
	store, primary, secondary, _, _ := setupStore(domain.DedupLogOnly)

	if h := store.HealthCheck(context.Background()); h.Status != domain.Healthy {
		t.Errorf("all healthy: got %s", h.Status)
	}

	secondary.storeErr = errors.New("down")
	if h := store.HealthCheck(context.Background()); h.Status != domain.Degraded {
		t.Errorf("secondary down: got %s, want degraded", h.Status)
	}

	primary.storeErr = errors.New("down")
	if h := store.HealthCheck(context.Background()); h.Status != domain.Unavailable {
		t.Errorf("primary down: got %s, want unavailable", h.Status)
	}
}
