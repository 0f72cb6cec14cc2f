package unified

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Von-Base-Enterprises/core-nexus/internal/dedup"
	"github.com/Von-Base-Enterprises/core-nexus/internal/domain"
	"github.com/Von-Base-Enterprises/core-nexus/internal/embedding"
	"github.com/Von-Base-Enterprises/core-nexus/internal/extract"
	"github.com/Von-Base-Enterprises/core-nexus/internal/provider"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	primaryStoreTimeout   = 10 * time.Second
	primaryQueryTimeout   = 5 * time.Second
	secondaryFanoutBudget = 1 * time.Second

	defaultLimit      = 10
	maxLimit          = 1000
	defaultImportance = 0.5
)

// Deduplicator is the duplicate-detection surface the store needs.
type Deduplicator interface {
	Mode() domain.DedupMode
	CheckExact(ctx context.Context, hash string) domain.DedupResult
	CheckSemantic(ctx context.Context, embedding []float32) domain.DedupResult
	Record(ctx context.Context, hash string, memoryID uuid.UUID) error
	Forget(hash string)
}

// StoreRequest is a single memory write. SkipDedup bypasses the duplicate
// checks for this write only; the content hash is still recorded so later
// writes can match it.
type StoreRequest struct {
	Content         string         `json:"content"`
	Metadata        map[string]any `json:"metadata,omitempty"`
	ImportanceScore *float32       `json:"importance_score,omitempty"`
	SkipDedup       bool           `json:"-"`
}

// StoreResult reports where a write landed. On a duplicate in active mode,
// ID is the existing memory and IsDuplicate is true; nothing was written.
type StoreResult struct {
	ID              uuid.UUID           `json:"id"`
	IsDuplicate     bool                `json:"is_duplicate"`
	Dedup           *domain.DedupResult `json:"dedup,omitempty"`
	SyncedProviders []string            `json:"synced_providers"`
	CreatedAt       time.Time           `json:"created_at"`
}

// QueryRequest is a similarity or recency read. An empty Query selects the
// recency path.
type QueryRequest struct {
	Query            string              `json:"query"`
	Limit            int                 `json:"limit,omitempty"`
	Offset           int                 `json:"offset,omitempty"`
	MinSimilarity    float32             `json:"min_similarity,omitempty"`
	Filters          domain.QueryFilters `json:"filters,omitempty"`
	IncludeSecondary bool                `json:"include_secondary,omitempty"`
}

// QueryResponse carries results plus enough provenance to debug a read.
type QueryResponse struct {
	Results          []domain.QueryResult `json:"results"`
	Total            int                  `json:"total"`
	Mode             string               `json:"mode"`
	ProvidersSkipped []string             `json:"providers_skipped,omitempty"`
	TookMS           float64              `json:"took_ms"`
}

// ProviderInfo describes one backend for the /providers endpoint.
type ProviderInfo struct {
	Name    string         `json:"name"`
	Primary bool           `json:"primary"`
	Health  domain.Health  `json:"health"`
	Stats   provider.Stats `json:"stats"`
}

// Store coordinates the primary, the secondaries, the embedder, and dedup.
// Writes commit on the primary and fan out best-effort; reads are served by
// the primary with optional secondary merge. The primary alone decides
// whether a write succeeded.
type Store struct {
	primary     provider.VectorProvider
	secondaries []provider.VectorProvider
	embedder    embedding.Model
	dedup       Deduplicator
	extractor   extract.Extractor
	logger      *zap.Logger

	stores       atomic.Int64
	queries      atomic.Int64
	dedupHits    atomic.Int64
	queryMsTotal atomic.Int64
}

func NewStore(primary provider.VectorProvider, secondaries []provider.VectorProvider, embedder embedding.Model, deduper Deduplicator, extractor extract.Extractor, logger *zap.Logger) *Store {
	return &Store{
		primary:     primary,
		secondaries: secondaries,
		embedder:    embedder,
		dedup:       deduper,
		extractor:   extractor,
		logger:      logger,
	}
}

// Store runs the write path: validate, exact dedup, embed, semantic dedup,
// commit on the primary, fan out, record the hash. The write is durable
// once the primary commit returns; everything after is best-effort.
func (s *Store) Store(ctx context.Context, req *StoreRequest) (*StoreResult, error) {
	if !domain.ValidContent(req.Content) {
		return nil, fmt.Errorf("%w: content must be non-empty and at most %d bytes",
			domain.ErrInvalidRequest, domain.MaxContentBytes)
	}

	importance := float32(defaultImportance)
	if req.ImportanceScore != nil {
		importance = *req.ImportanceScore
		if importance < 0 || importance > 1 {
			return nil, fmt.Errorf("%w: importance_score must be in [0, 1]", domain.ErrInvalidRequest)
		}
	}

	hash := dedup.Hash(req.Content)

	// Exact check first so duplicates never pay for an embedding.
	if !req.SkipDedup {
		if res := s.dedup.CheckExact(ctx, hash); res.Decision == domain.DedupExactDuplicate {
			s.dedupHits.Add(1)
			if s.dedup.Mode() == domain.DedupActive {
				return &StoreResult{ID: res.ExistingID, IsDuplicate: true, Dedup: &res}, nil
			}
			s.logger.Info("exact duplicate observed (log_only)",
				zap.String("existing_id", res.ExistingID.String()))
		}
	}

	vector, err := s.embedder.Embed(ctx, req.Content)
	if err != nil {
		return nil, err
	}

	if !req.SkipDedup && s.dedup.Mode() == domain.DedupActive {
		if res := s.dedup.CheckSemantic(ctx, vector); res.Decision == domain.DedupSemanticDuplicate {
			s.dedupHits.Add(1)
			return &StoreResult{ID: res.ExistingID, IsDuplicate: true, Dedup: &res}, nil
		}
	}

	m := &domain.Memory{
		ID:              uuid.New(),
		Content:         req.Content,
		Embedding:       vector,
		Metadata:        req.Metadata,
		ImportanceScore: importance,
		ContentHash:     hash,
	}

	storeCtx, cancel := context.WithTimeout(ctx, primaryStoreTimeout)
	defer cancel()
	if err := s.primary.Store(storeCtx, m); err != nil {
		return nil, fmt.Errorf("%w: primary store failed: %v", domain.ErrStorageUnavailable, err)
	}

	synced := s.fanoutStore(ctx, m)

	if err := s.dedup.Record(ctx, hash, m.ID); err != nil {
		s.logger.Warn("failed to record content hash", zap.Error(err))
	}

	s.stores.Add(1)
	return &StoreResult{
		ID:              m.ID,
		SyncedProviders: synced,
		CreatedAt:       m.CreatedAt,
	}, nil
}

// fanoutStore replicates the committed memory to every secondary under a
// shared budget. Failures are logged, never surfaced; the primary already
// accepted the write.
func (s *Store) fanoutStore(ctx context.Context, m *domain.Memory) []string {
	synced := []string{s.primary.Name()}
	if len(s.secondaries) == 0 {
		return synced
	}

	fanCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), secondaryFanoutBudget)
	defer cancel()

	var mu sync.Mutex
	g, fanCtx := errgroup.WithContext(fanCtx)
	for _, sec := range s.secondaries {
		g.Go(func() error {
			if err := sec.Store(fanCtx, m); err != nil {
				s.logger.Warn("secondary store failed",
					zap.String("provider", sec.Name()),
					zap.String("memory_id", m.ID.String()),
					zap.Error(err))
				return nil
			}
			mu.Lock()
			synced = append(synced, sec.Name())
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return synced
}

// Query serves reads. An empty or whitespace query is a recency read and
// never touches the embedding column; otherwise the query text is embedded
// and the primary answers by cosine similarity, optionally merged with the
// secondaries under a soft deadline.
func (s *Store) Query(ctx context.Context, req *QueryRequest) (*QueryResponse, error) {
	start := time.Now()
	limit := req.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		return nil, fmt.Errorf("%w: limit must be in [1, %d]", domain.ErrInvalidRequest, maxLimit)
	}
	if req.MinSimilarity < 0 || req.MinSimilarity > 1 {
		return nil, fmt.Errorf("%w: min_similarity must be in [0, 1]", domain.ErrInvalidRequest)
	}

	queryCtx, cancel := context.WithTimeout(ctx, primaryQueryTimeout)
	defer cancel()

	var resp *QueryResponse
	var err error
	if strings.TrimSpace(req.Query) == "" {
		resp, err = s.queryRecent(queryCtx, req, limit)
	} else {
		resp, err = s.querySimilarity(queryCtx, req, limit)
	}
	if err != nil {
		return nil, err
	}

	elapsed := time.Since(start)
	resp.TookMS = float64(elapsed.Microseconds()) / 1000
	s.queries.Add(1)
	s.queryMsTotal.Add(elapsed.Milliseconds())
	return resp, nil
}

func (s *Store) queryRecent(ctx context.Context, req *QueryRequest, limit int) (*QueryResponse, error) {
	results, err := s.primary.Recent(ctx, limit, req.Offset, req.Filters)
	if err != nil {
		return nil, fmt.Errorf("%w: recent read failed: %v", domain.ErrStorageUnavailable, err)
	}
	return &QueryResponse{Results: results, Total: len(results), Mode: "recent"}, nil
}

func (s *Store) querySimilarity(ctx context.Context, req *QueryRequest, limit int) (*QueryResponse, error) {
	vector, err := s.embedder.Embed(ctx, req.Query)
	if err != nil {
		return nil, err
	}

	results, err := s.primary.Query(ctx, vector, limit, req.Filters, req.MinSimilarity)
	if err != nil {
		return nil, fmt.Errorf("%w: similarity read failed: %v", domain.ErrStorageUnavailable, err)
	}

	var skipped []string
	if req.IncludeSecondary && len(s.secondaries) > 0 {
		merged, skip := s.mergeSecondaries(ctx, vector, limit, req, results)
		results, skipped = merged, skip
	}

	sortResults(results)
	if len(results) > limit {
		results = results[:limit]
	}

	return &QueryResponse{
		Results:          results,
		Total:            len(results),
		Mode:             "similarity",
		ProvidersSkipped: skipped,
	}, nil
}

// mergeSecondaries folds secondary results into the primary's under a soft
// deadline. A slow or failing secondary is skipped and named in the
// response; the primary's results always survive. Primary wins on id
// collisions.
func (s *Store) mergeSecondaries(ctx context.Context, vector []float32, limit int, req *QueryRequest, primary []domain.QueryResult) ([]domain.QueryResult, []string) {
	seen := make(map[uuid.UUID]bool, len(primary))
	for _, r := range primary {
		seen[r.ID] = true
	}

	mergeCtx, cancel := context.WithTimeout(ctx, secondaryFanoutBudget)
	defer cancel()

	type secResult struct {
		name    string
		results []domain.QueryResult
		err     error
	}
	out := make(chan secResult, len(s.secondaries))
	for _, sec := range s.secondaries {
		go func() {
			rs, err := sec.Query(mergeCtx, vector, limit, req.Filters, req.MinSimilarity)
			out <- secResult{name: sec.Name(), results: rs, err: err}
		}()
	}

	merged := primary
	var skipped []string
	for range s.secondaries {
		r := <-out
		if r.err != nil {
			s.logger.Warn("secondary query skipped",
				zap.String("provider", r.name), zap.Error(r.err))
			skipped = append(skipped, r.name)
			continue
		}
		for _, qr := range r.results {
			if !seen[qr.ID] {
				seen[qr.ID] = true
				merged = append(merged, qr)
			}
		}
	}
	return merged, skipped
}

// sortResults orders by similarity descending, then created_at descending,
// then id, so merged result sets are deterministic.
func sortResults(results []domain.QueryResult) {
	sort.SliceStable(results, func(i, j int) bool {
		si, sj := scoreOf(&results[i]), scoreOf(&results[j])
		if si != sj {
			return si > sj
		}
		if !results[i].CreatedAt.Equal(results[j].CreatedAt) {
			return results[i].CreatedAt.After(results[j].CreatedAt)
		}
		return results[i].ID.String() < results[j].ID.String()
	})
}

func scoreOf(r *domain.QueryResult) float32 {
	if r.SimilarityScore == nil {
		return 0
	}
	return *r.SimilarityScore
}

// Get reads a single memory from the primary, falling back to secondaries
// only when the primary is unreachable.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (*domain.QueryResult, error) {
	r, err := s.primary.Get(ctx, id)
	if err == nil {
		return r, nil
	}
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.ErrNotFound
	}

	s.logger.Warn("primary get failed, trying secondaries", zap.Error(err))
	for _, sec := range s.secondaries {
		if r, serr := sec.Get(ctx, id); serr == nil {
			return r, nil
		}
	}
	return nil, fmt.Errorf("%w: get failed: %v", domain.ErrStorageUnavailable, err)
}

// Delete removes a memory everywhere: primary first (authoritative), then
// every secondary best-effort, then the content hash so the same text can
// be stored again.
func (s *Store) Delete(ctx context.Context, id uuid.UUID) error {
	var hash string
	if r, err := s.primary.Get(ctx, id); err == nil {
		hash = r.ContentHash
	}

	deleted, err := s.primary.Delete(ctx, id)
	if err != nil {
		return fmt.Errorf("%w: primary delete failed: %v", domain.ErrStorageUnavailable, err)
	}
	if !deleted {
		return domain.ErrNotFound
	}

	fanCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), secondaryFanoutBudget)
	defer cancel()
	g, fanCtx := errgroup.WithContext(fanCtx)
	for _, sec := range s.secondaries {
		g.Go(func() error {
			if _, err := sec.Delete(fanCtx, id); err != nil {
				s.logger.Warn("secondary delete failed",
					zap.String("provider", sec.Name()), zap.Error(err))
			}
			return nil
		})
	}
	_ = g.Wait()

	s.dedup.Forget(hash)
	return nil
}

// HealthCheck folds component health into an overall state: the worst
// component wins. The embedder and extractor degrade the service, they do
// not make it unavailable; the primary does.
func (s *Store) HealthCheck(ctx context.Context) domain.Health {
	overall := domain.Healthy
	details := map[string]any{}

	primaryHealth := s.primary.HealthCheck(ctx)
	details[s.primary.Name()] = primaryHealth
	if primaryHealth.Status.Worse(overall) {
		overall = primaryHealth.Status
	}

	for _, sec := range s.secondaries {
		h := sec.HealthCheck(ctx)
		details[sec.Name()] = h
		if h.Status == domain.Unavailable && domain.Degraded.Worse(overall) {
			overall = domain.Degraded
		}
	}

	eh := s.embedder.HealthCheck(ctx)
	details["embedder"] = eh
	if eh.Status != domain.Healthy && domain.Degraded.Worse(overall) {
		overall = domain.Degraded
	}

	if s.extractor != nil {
		xh := s.extractor.HealthCheck(ctx)
		details["extractor"] = xh
		if xh.Status != domain.Healthy && domain.Degraded.Worse(overall) {
			overall = domain.Degraded
		}
	}

	return domain.Health{Status: overall, Details: details}
}

// Providers lists every backend with its health, primary first.
func (s *Store) Providers(ctx context.Context) []ProviderInfo {
	describe := func(p provider.VectorProvider, isPrimary bool) ProviderInfo {
		info := ProviderInfo{
			Name:    p.Name(),
			Primary: isPrimary,
			Health:  p.HealthCheck(ctx),
		}
		if st, err := p.Stats(ctx); err == nil {
			info.Stats = st
		}
		return info
	}

	infos := []ProviderInfo{describe(s.primary, true)}
	for _, sec := range s.secondaries {
		infos = append(infos, describe(sec, false))
	}
	return infos
}

// Stats aggregates per-provider storage stats with service counters.
func (s *Store) Stats(ctx context.Context) (map[string]any, error) {
	byProvider := map[string]any{}
	primaryStats, err := s.primary.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: primary stats: %v", domain.ErrStorageUnavailable, err)
	}
	byProvider[s.primary.Name()] = primaryStats

	for _, sec := range s.secondaries {
		st, err := sec.Stats(ctx)
		if err != nil {
			s.logger.Warn("secondary stats failed",
				zap.String("provider", sec.Name()), zap.Error(err))
			continue
		}
		byProvider[sec.Name()] = st
	}

	queries := s.queries.Load()
	var avgMs float64
	if queries > 0 {
		avgMs = float64(s.queryMsTotal.Load()) / float64(queries)
	}

	return map[string]any{
		"total_memories": primaryStats.TotalVectors,
		"providers":      byProvider,
		"total_stores":   s.stores.Load(),
		"total_queries":  queries,
		"dedup_hits":     s.dedupHits.Load(),
		"avg_query_ms":   avgMs,
	}, nil
}

// Primary exposes the authoritative provider for co-located components.
func (s *Store) Primary() provider.VectorProvider { return s.primary }

// Close shuts down every provider, primary last.
func (s *Store) Close() {
	for _, sec := range s.secondaries {
		sec.Close()
	}
	s.primary.Close()
}
