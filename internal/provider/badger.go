package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/Von-Base-Enterprises/core-nexus/internal/domain"
	badger "github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var memKeyPrefix = []byte("mem:")

var _ VectorProvider = (*Badger)(nil)

// Badger is the secondary provider: an embedded store used for redundancy
// and offline reads. Queries scan all records and score them in process,
// which is fine at secondary scale; the primary never waits for it.
type Badger struct {
	db        *badger.DB
	dimension int
	logger    *zap.Logger
}

// badgerRecord is the stored form of a memory. Embedding is kept so the
// provider can answer similarity queries on its own.
type badgerRecord struct {
	ID              uuid.UUID      `json:"id"`
	Content         string         `json:"content"`
	Embedding       []float32      `json:"embedding"`
	Metadata        map[string]any `json:"metadata,omitempty"`
	ImportanceScore float32        `json:"importance_score"`
	ContentHash     string         `json:"content_hash,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

func NewBadger(path string, dimension int, logger *zap.Logger) (*Badger, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger at %s: %w", path, err)
	}

	logger.Info("secondary provider initialized", zap.String("path", path))
	return &Badger{db: db, dimension: dimension, logger: logger}, nil
}

func (b *Badger) Name() string { return "badger" }

func (b *Badger) Store(ctx context.Context, m *domain.Memory) error {
	if len(m.Embedding) != b.dimension {
		return fmt.Errorf("%w: got %d, want %d", domain.ErrInvalidEmbedding, len(m.Embedding), b.dimension)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	rec := badgerRecord{
		ID:              m.ID,
		Content:         m.Content,
		Embedding:       m.Embedding,
		Metadata:        m.Metadata,
		ImportanceScore: m.ImportanceScore,
		ContentHash:     m.ContentHash,
		CreatedAt:       m.CreatedAt,
		UpdatedAt:       m.UpdatedAt,
	}
	blob, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}

	err = b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(memKey(m.ID), blob)
	})
	if err != nil {
		return fmt.Errorf("%w: badger set: %v", domain.ErrProviderUnavailable, err)
	}
	return nil
}

func (b *Badger) Query(ctx context.Context, embedding []float32, limit int, filters domain.QueryFilters, minSimilarity float32) ([]domain.QueryResult, error) {
	if len(embedding) != b.dimension {
		return nil, fmt.Errorf("%w: got %d, want %d", domain.ErrInvalidEmbedding, len(embedding), b.dimension)
	}

	var results []domain.QueryResult
	err := b.scan(ctx, func(rec *badgerRecord) {
		m := rec.memory()
		if !filters.Match(&m) {
			return
		}
		score := cosineSimilarity(embedding, rec.Embedding)
		if score < minSimilarity {
			return
		}
		s := score
		results = append(results, domain.QueryResult{Memory: m, SimilarityScore: &s})
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(results, func(i, j int) bool {
		return *results[i].SimilarityScore > *results[j].SimilarityScore
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func (b *Badger) Recent(ctx context.Context, limit, offset int, filters domain.QueryFilters) ([]domain.QueryResult, error) {
	var results []domain.QueryResult
	err := b.scan(ctx, func(rec *badgerRecord) {
		m := rec.memory()
		if !filters.Match(&m) {
			return
		}
		results = append(results, domain.QueryResult{Memory: m})
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(results, func(i, j int) bool {
		if !results[i].CreatedAt.Equal(results[j].CreatedAt) {
			return results[i].CreatedAt.After(results[j].CreatedAt)
		}
		return results[i].ID.String() > results[j].ID.String()
	})
	if offset >= len(results) {
		return nil, nil
	}
	results = results[offset:]
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func (b *Badger) Get(ctx context.Context, id uuid.UUID) (*domain.QueryResult, error) {
	var rec badgerRecord
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(memKey(id))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		})
	})
	if err != nil {
		if err == badger.ErrKeyNotFound {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("badger get: %w", err)
	}
	m := rec.memory()
	return &domain.QueryResult{Memory: m}, nil
}

func (b *Badger) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	found := false
	err := b.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(memKey(id)); err != nil {
			if err == badger.ErrKeyNotFound {
				return nil
			}
			return err
		}
		found = true
		return txn.Delete(memKey(id))
	})
	if err != nil {
		return false, fmt.Errorf("badger delete: %w", err)
	}
	return found, nil
}

func (b *Badger) HealthCheck(ctx context.Context) domain.Health {
	if b.db.IsClosed() {
		return domain.Health{Status: domain.Unavailable, Details: map[string]any{"error": "store closed"}}
	}
	lsm, vlog := b.db.Size()
	return domain.Health{
		Status:  domain.Healthy,
		Details: map[string]any{"lsm_bytes": lsm, "vlog_bytes": vlog},
	}
}

func (b *Badger) Stats(ctx context.Context) (Stats, error) {
	var count int64
	err := b.scan(ctx, func(*badgerRecord) { count++ })
	if err != nil {
		return Stats{}, err
	}
	return Stats{TotalVectors: count}, nil
}

func (b *Badger) Close() { _ = b.db.Close() }

func (b *Badger) scan(ctx context.Context, fn func(*badgerRecord)) error {
	return b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = memKeyPrefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			err := it.Item().Value(func(val []byte) error {
				var rec badgerRecord
				if err := json.Unmarshal(val, &rec); err != nil {
					return err
				}
				fn(&rec)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *badgerRecord) memory() domain.Memory {
	return domain.Memory{
		ID:              r.ID,
		Content:         r.Content,
		Embedding:       r.Embedding,
		Metadata:        r.Metadata,
		ImportanceScore: r.ImportanceScore,
		ContentHash:     r.ContentHash,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}
}

func memKey(id uuid.UUID) []byte {
	return append(append([]byte{}, memKeyPrefix...), id.String()...)
}

func cosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}
