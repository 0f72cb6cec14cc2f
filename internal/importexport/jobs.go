package importexport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Von-Base-Enterprises/core-nexus/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const jobsSchema = `
CREATE TABLE IF NOT EXISTS import_jobs (
    id          UUID PRIMARY KEY,
    status      TEXT NOT NULL DEFAULT 'pending',
    total       INTEGER NOT NULL DEFAULT 0,
    processed   INTEGER NOT NULL DEFAULT 0,
    succeeded   INTEGER NOT NULL DEFAULT 0,
    failed      INTEGER NOT NULL DEFAULT 0,
    duplicates  INTEGER NOT NULL DEFAULT 0,
    errors      JSONB NOT NULL DEFAULT '[]',
    started_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    finished_at TIMESTAMPTZ
);
`

// JobStore persists import job progress. Jobs survive restarts so a client
// polling a job id after a crash sees the last recorded state rather than
// a 404.
type JobStore struct {
	db *pgxpool.Pool
}

func NewJobStore(ctx context.Context, db *pgxpool.Pool) (*JobStore, error) {
	if _, err := db.Exec(ctx, jobsSchema); err != nil {
		return nil, fmt.Errorf("create import_jobs schema: %w", err)
	}
	return &JobStore{db: db}, nil
}

func (s *JobStore) Create(ctx context.Context, job *domain.ImportJob) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO import_jobs (id, status, total) VALUES ($1, $2, $3)`,
		job.ID, job.Status, job.Total,
	)
	if err != nil {
		return fmt.Errorf("create import job: %w", err)
	}
	return nil
}

// Update writes the full job state. Called at batch boundaries and on
// terminal transitions; the errors list is capped by the importer before
// it gets here.
func (s *JobStore) Update(ctx context.Context, job *domain.ImportJob) error {
	blob, err := json.Marshal(job.Errors)
	if err != nil {
		return fmt.Errorf("marshal job errors: %w", err)
	}
	tag, err := s.db.Exec(ctx,
		`UPDATE import_jobs
		 SET status = $2, total = $3, processed = $4, succeeded = $5,
		     failed = $6, duplicates = $7, errors = $8, finished_at = $9
		 WHERE id = $1`,
		job.ID, job.Status, job.Total, job.Processed, job.Succeeded,
		job.Failed, job.Duplicates, blob, job.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("update import job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *JobStore) Get(ctx context.Context, id uuid.UUID) (*domain.ImportJob, error) {
	job := &domain.ImportJob{}
	var blob []byte
	err := s.db.QueryRow(ctx,
		`SELECT id, status, total, processed, succeeded, failed, duplicates, errors, started_at, finished_at
		 FROM import_jobs WHERE id = $1`, id,
	).Scan(&job.ID, &job.Status, &job.Total, &job.Processed, &job.Succeeded,
		&job.Failed, &job.Duplicates, &blob, &job.StartedAt, &job.FinishedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("get import job: %w", err)
	}
	if len(blob) > 0 {
		if err := json.Unmarshal(blob, &job.Errors); err != nil {
			return nil, fmt.Errorf("unmarshal job errors: %w", err)
		}
	}
	return job, nil
}

func now() *time.Time {
	t := time.Now().UTC()
	return &t
}
