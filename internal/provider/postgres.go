package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Von-Base-Enterprises/core-nexus/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
	"go.uber.org/zap"
)

// Postgres is the primary provider: a single non-partitioned memories table
// with exactly one HNSW cosine index on the embedding column. Partitioning
// and a second vector index are deliberately absent; mixing index types
// across partitions broke read-after-write because the planner picked a
// different index than the one the write landed in.
type Postgres struct {
	pool      *pgxpool.Pool
	dimension int
	logger    *zap.Logger
}

var _ VectorProvider = (*Postgres)(nil)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS memories (
    id               UUID PRIMARY KEY,
    content          TEXT NOT NULL,
    embedding        vector(%d) NOT NULL,
    metadata         JSONB NOT NULL DEFAULT '{}',
    importance_score REAL NOT NULL DEFAULT 0.5,
    content_hash     TEXT,
    created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS memories_embedding_hnsw
    ON memories USING hnsw (embedding vector_cosine_ops);
CREATE INDEX IF NOT EXISTS memories_created_at_idx
    ON memories (created_at DESC);
CREATE INDEX IF NOT EXISTS memories_importance_idx
    ON memories (importance_score DESC);
CREATE INDEX IF NOT EXISTS memories_metadata_gin
    ON memories USING gin (metadata);
`

// NewPostgres connects, verifies the pgvector extension, creates the table
// and indexes, and runs ANALYZE — all before returning. A Postgres provider
// that exists accepts Store and Query without further setup.
func NewPostgres(ctx context.Context, dsn string, dimension, minConns, maxConns int, logger *zap.Logger) (*Postgres, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse primary dsn: %w", err)
	}
	cfg.MinConns = int32(minConns)
	cfg.MaxConns = int32(maxConns)

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create primary pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping primary: %w", err)
	}

	if _, err := pool.Exec(ctx, `CREATE EXTENSION IF NOT EXISTS vector`); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create vector extension: %w", err)
	}

	if _, err := pool.Exec(ctx, fmt.Sprintf(postgresSchema, dimension)); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create memories schema: %w", err)
	}

	if _, err := pool.Exec(ctx, `ANALYZE memories`); err != nil {
		pool.Close()
		return nil, fmt.Errorf("analyze memories: %w", err)
	}

	logger.Info("primary provider initialized",
		zap.Int("dimension", dimension),
		zap.Int("min_conns", minConns),
		zap.Int("max_conns", maxConns))

	return &Postgres{pool: pool, dimension: dimension, logger: logger}, nil
}

func (p *Postgres) Name() string { return "pgvector" }

// Pool exposes the shared connection pool for co-located stores (graph
// tables, content hashes, import jobs).
func (p *Postgres) Pool() *pgxpool.Pool { return p.pool }

func (p *Postgres) Store(ctx context.Context, m *domain.Memory) error {
	if len(m.Embedding) != p.dimension {
		return fmt.Errorf("%w: got %d, want %d", domain.ErrInvalidEmbedding, len(m.Embedding), p.dimension)
	}

	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("%w: begin: %v", domain.ErrProviderUnavailable, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	err = tx.QueryRow(ctx,
		`INSERT INTO memories (id, content, embedding, metadata, importance_score, content_hash)
		 VALUES ($1, $2, $3::vector, $4, $5, $6)
		 RETURNING created_at, updated_at`,
		m.ID, m.Content, pgvector.NewVector(m.Embedding), m.Metadata, m.ImportanceScore, m.ContentHash,
	).Scan(&m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("%w: id %s", domain.ErrConstraintViolation, m.ID)
		}
		return fmt.Errorf("insert memory: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%w: commit: %v", domain.ErrProviderUnavailable, err)
	}
	return nil
}

const memoryColumns = `id, content, metadata, importance_score, content_hash, created_at, updated_at`

func (p *Postgres) Query(ctx context.Context, embedding []float32, limit int, filters domain.QueryFilters, minSimilarity float32) ([]domain.QueryResult, error) {
	if len(embedding) != p.dimension {
		return nil, fmt.Errorf("%w: got %d, want %d", domain.ErrInvalidEmbedding, len(embedding), p.dimension)
	}

	vec := pgvector.NewVector(embedding)
	conditions, args, err := filterConditions(filters, []any{vec})
	if err != nil {
		return nil, err
	}
	conditions = append(conditions, `1 - (embedding <=> $1) >= $`+itoa(len(args)+1))
	args = append(args, minSimilarity)

	limitParam := len(args) + 1
	args = append(args, limit)

	query := fmt.Sprintf(
		`SELECT %s, 1 - (embedding <=> $1) AS similarity
		 FROM memories
		 WHERE %s
		 ORDER BY embedding <=> $1
		 LIMIT $%d`,
		memoryColumns, strings.Join(conditions, " AND "), limitParam,
	)

	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("similarity query: %w", err)
	}
	defer rows.Close()

	return scanResults(rows, true)
}

// Recent is the empty-query path: most recent memories matching the
// filters. The SQL never references the embedding column in ORDER BY.
func (p *Postgres) Recent(ctx context.Context, limit, offset int, filters domain.QueryFilters) ([]domain.QueryResult, error) {
	conditions, args, err := filterConditions(filters, nil)
	if err != nil {
		return nil, err
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	limitParam := len(args) + 1
	args = append(args, limit)
	offsetParam := len(args) + 1
	args = append(args, offset)

	query := fmt.Sprintf(
		`SELECT %s, NULL::real AS similarity
		 FROM memories
		 %s
		 ORDER BY created_at DESC, id DESC
		 LIMIT $%d OFFSET $%d`,
		memoryColumns, where, limitParam, offsetParam,
	)

	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("recent query: %w", err)
	}
	defer rows.Close()

	return scanResults(rows, false)
}

func (p *Postgres) Get(ctx context.Context, id uuid.UUID) (*domain.QueryResult, error) {
	var r domain.QueryResult
	err := p.pool.QueryRow(ctx,
		fmt.Sprintf(`SELECT %s FROM memories WHERE id = $1`, memoryColumns), id,
	).Scan(&r.ID, &r.Content, &r.Metadata, &r.ImportanceScore, &r.ContentHash, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("get memory: %w", err)
	}
	return &r, nil
}

func (p *Postgres) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := p.pool.Exec(ctx, `DELETE FROM memories WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("delete memory: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// Embeddings fetches raw vectors for a set of ids. Used by the exporter;
// the normal read paths never return embeddings.
func (p *Postgres) Embeddings(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID][]float32, error) {
	rows, err := p.pool.Query(ctx, `SELECT id, embedding FROM memories WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("fetch embeddings: %w", err)
	}
	defer rows.Close()

	out := make(map[uuid.UUID][]float32, len(ids))
	for rows.Next() {
		var id uuid.UUID
		var vec pgvector.Vector
		if err := rows.Scan(&id, &vec); err != nil {
			return nil, fmt.Errorf("scan embedding: %w", err)
		}
		out[id] = vec.Slice()
	}
	return out, rows.Err()
}

func (p *Postgres) HealthCheck(ctx context.Context) domain.Health {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	if err := p.pool.Ping(ctx); err != nil {
		return domain.Health{
			Status:  domain.Unavailable,
			Details: map[string]any{"error": err.Error()},
		}
	}

	stat := p.pool.Stat()
	return domain.Health{
		Status: domain.Healthy,
		Details: map[string]any{
			"total_conns":    stat.TotalConns(),
			"idle_conns":     stat.IdleConns(),
			"acquired_conns": stat.AcquiredConns(),
		},
	}
}

func (p *Postgres) Stats(ctx context.Context) (Stats, error) {
	var count int64
	if err := p.pool.QueryRow(ctx, `SELECT COUNT(*) FROM memories`).Scan(&count); err != nil {
		return Stats{}, fmt.Errorf("count memories: %w", err)
	}
	return Stats{TotalVectors: count}, nil
}

func (p *Postgres) Close() { p.pool.Close() }

// filterConditions compiles QueryFilters into SQL predicates. Metadata
// filters become JSONB containment; user and conversation scoping read the
// folded metadata keys.
func filterConditions(f domain.QueryFilters, args []any) ([]string, []any, error) {
	var conditions []string

	if f.UserID != "" {
		conditions = append(conditions, `metadata->>'user_id' = $`+itoa(len(args)+1))
		args = append(args, f.UserID)
	}
	if f.ConversationID != "" {
		conditions = append(conditions, `metadata->>'conversation_id' = $`+itoa(len(args)+1))
		args = append(args, f.ConversationID)
	}
	if f.ImportanceMin != nil {
		conditions = append(conditions, `importance_score >= $`+itoa(len(args)+1))
		args = append(args, *f.ImportanceMin)
	}
	if f.ImportanceMax != nil {
		conditions = append(conditions, `importance_score <= $`+itoa(len(args)+1))
		args = append(args, *f.ImportanceMax)
	}
	if f.CreatedAfter != nil {
		conditions = append(conditions, `created_at >= $`+itoa(len(args)+1))
		args = append(args, *f.CreatedAfter)
	}
	if f.CreatedBefore != nil {
		conditions = append(conditions, `created_at <= $`+itoa(len(args)+1))
		args = append(args, *f.CreatedBefore)
	}
	if len(f.Metadata) > 0 {
		blob, err := json.Marshal(f.Metadata)
		if err != nil {
			return nil, nil, fmt.Errorf("marshal metadata filter: %w", err)
		}
		conditions = append(conditions, `metadata @> $`+itoa(len(args)+1)+`::jsonb`)
		args = append(args, string(blob))
	}

	return conditions, args, nil
}

func scanResults(rows pgx.Rows, withScore bool) ([]domain.QueryResult, error) {
	var results []domain.QueryResult
	for rows.Next() {
		var r domain.QueryResult
		var similarity *float32
		err := rows.Scan(&r.ID, &r.Content, &r.Metadata, &r.ImportanceScore,
			&r.ContentHash, &r.CreatedAt, &r.UpdatedAt, &similarity)
		if err != nil {
			return nil, fmt.Errorf("scan memory row: %w", err)
		}
		if withScore {
			r.SimilarityScore = similarity
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("memory rows: %w", err)
	}
	return results, nil
}

func itoa(n int) string { return fmt.Sprintf("%d", n) }
