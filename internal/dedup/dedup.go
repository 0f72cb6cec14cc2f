package dedup

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/Von-Base-Enterprises/core-nexus/internal/domain"
	"github.com/dgraph-io/ristretto/v2"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
	"golang.org/x/text/unicode/norm"
)

// cacheCapacity bounds the in-process hash cache. Entries are tiny (hash
// string to uuid), so the limit is on count, not bytes.
const cacheCapacity = 50_000

const hashSchema = `
CREATE TABLE IF NOT EXISTS content_hashes (
    content_hash    TEXT PRIMARY KEY,
    memory_id       UUID NOT NULL REFERENCES memories(id) ON DELETE CASCADE,
    first_seen      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    reference_count INTEGER NOT NULL DEFAULT 1
);
`

// semanticQuerier is the slice of the primary provider the semantic check
// needs.
type semanticQuerier interface {
	Query(ctx context.Context, embedding []float32, limit int, filters domain.QueryFilters, minSimilarity float32) ([]domain.QueryResult, error)
}

// querier is the slice of the connection pool the checker uses.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Checker detects exact and near duplicates before a write commits. Exact
// detection is a normalized SHA-256 hash looked up in an LRU cache and the
// content_hashes table; semantic detection is a top-1 similarity probe
// against the primary. In log_only mode duplicates are recorded but never
// block the write.
type Checker struct {
	db        querier
	primary   semanticQuerier
	cache     *ristretto.Cache[string, uuid.UUID]
	mode      domain.DedupMode
	threshold float32
	logger    *zap.Logger
}

func New(ctx context.Context, db *pgxpool.Pool, primary semanticQuerier, mode domain.DedupMode, threshold float32, logger *zap.Logger) (*Checker, error) {
	if _, err := db.Exec(ctx, hashSchema); err != nil {
		return nil, fmt.Errorf("create content_hashes schema: %w", err)
	}

	cache, err := ristretto.NewCache(&ristretto.Config[string, uuid.UUID]{
		NumCounters: cacheCapacity * 10,
		MaxCost:     cacheCapacity,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("create hash cache: %w", err)
	}

	return &Checker{
		db:        db,
		primary:   primary,
		cache:     cache,
		mode:      mode,
		threshold: threshold,
		logger:    logger,
	}, nil
}

func (c *Checker) Mode() domain.DedupMode { return c.mode }

// Normalize folds content for hashing: NFC, trimmed, internal whitespace
// collapsed, lowercased. Semantically equal texts with cosmetic differences
// hash the same.
func Normalize(content string) string {
	s := norm.NFC.String(content)
	s = strings.Join(strings.Fields(s), " ")
	return strings.ToLower(s)
}

// Hash returns the hex SHA-256 of the normalized content.
func Hash(content string) string {
	sum := sha256.Sum256([]byte(Normalize(content)))
	return hex.EncodeToString(sum[:])
}

// CheckExact looks the hash up in the cache, then the table. Runs before
// embedding so an exact duplicate never costs an embedding call. A storage
// failure degrades to unique with a logged warning; dedup never blocks a
// write on its own infrastructure.
func (c *Checker) CheckExact(ctx context.Context, hash string) domain.DedupResult {
	if id, ok := c.cache.Get(hash); ok {
		return domain.DedupResult{
			Decision:   domain.DedupExactDuplicate,
			ExistingID: id,
			Similarity: 1,
			Reason:     "content hash match (cached)",
		}
	}

	var id uuid.UUID
	err := c.db.QueryRow(ctx,
		`SELECT memory_id FROM content_hashes WHERE content_hash = $1`, hash,
	).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.DedupResult{Decision: domain.DedupUnique}
		}
		c.logger.Warn("hash lookup failed, treating as unique", zap.Error(err))
		return domain.DedupResult{Decision: domain.DedupUnique, Reason: "hash lookup unavailable"}
	}

	c.cache.Set(hash, id, 1)
	return domain.DedupResult{
		Decision:   domain.DedupExactDuplicate,
		ExistingID: id,
		Similarity: 1,
		Reason:     "content hash match",
	}
}

// CheckSemantic probes the primary for the single nearest neighbor at or
// above the threshold. Only meaningful in active mode; log_only callers
// skip it to avoid the extra query. Probe failure degrades to unique.
func (c *Checker) CheckSemantic(ctx context.Context, embedding []float32) domain.DedupResult {
	results, err := c.primary.Query(ctx, embedding, 1, domain.QueryFilters{}, c.threshold)
	if err != nil {
		c.logger.Warn("semantic dedup probe failed, treating as unique", zap.Error(err))
		return domain.DedupResult{Decision: domain.DedupUnique, Reason: "semantic probe unavailable"}
	}
	if len(results) == 0 || results[0].SimilarityScore == nil {
		return domain.DedupResult{Decision: domain.DedupUnique}
	}
	return domain.DedupResult{
		Decision:   domain.DedupSemanticDuplicate,
		ExistingID: results[0].ID,
		Similarity: *results[0].SimilarityScore,
		Reason:     fmt.Sprintf("similarity %.4f >= %.4f", *results[0].SimilarityScore, c.threshold),
	}
}

// Record registers a stored memory's hash. First writer wins; a concurrent
// insert of the same hash bumps the reference count and keeps the original
// memory id. The cache takes the row's canonical id, not the caller's, so
// cache and table never disagree after a log_only re-store.
func (c *Checker) Record(ctx context.Context, hash string, memoryID uuid.UUID) error {
	var canonical uuid.UUID
	err := c.db.QueryRow(ctx,
		`INSERT INTO content_hashes (content_hash, memory_id)
		 VALUES ($1, $2)
		 ON CONFLICT (content_hash) DO UPDATE
		 SET reference_count = content_hashes.reference_count + 1
		 RETURNING memory_id`,
		hash, memoryID,
	).Scan(&canonical)
	if err != nil {
		return fmt.Errorf("record content hash: %w", err)
	}
	c.cache.Set(hash, canonical, 1)
	return nil
}

// Forget drops the hash for a deleted memory. The table row goes away via
// the FK cascade; this clears the cache entry so a re-store of the same
// content is seen as unique.
func (c *Checker) Forget(hash string) {
	if hash != "" {
		c.cache.Del(hash)
	}
}

// Wait flushes pending cache writes. Used in tests where a Set must be
// visible immediately.
func (c *Checker) Wait() { c.cache.Wait() }

// Close releases the cache.
func (c *Checker) Close() { c.cache.Close() }
