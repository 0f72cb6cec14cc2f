package domain

import (
	"time"

	"github.com/google/uuid"
)

type ImportStatus string

const (
	ImportPending   ImportStatus = "pending"
	ImportRunning   ImportStatus = "running"
	ImportCompleted ImportStatus = "completed"
	ImportPartial   ImportStatus = "partial"
	ImportFailed    ImportStatus = "failed"
	ImportCancelled ImportStatus = "cancelled"
)

// Terminal reports whether the status is final.
func (s ImportStatus) Terminal() bool {
	switch s {
	case ImportCompleted, ImportPartial, ImportFailed, ImportCancelled:
		return true
	}
	return false
}

// ImportError records a single failed record within an import job.
type ImportError struct {
	Line   int    `json:"line"`
	Reason string `json:"reason"`
}

// ImportJob tracks the progress of an asynchronous bulk import. Created on
// submission, mutated by the import worker at batch boundaries, terminal
// after completion.
type ImportJob struct {
	ID         uuid.UUID     `json:"import_id"`
	Status     ImportStatus  `json:"status"`
	Total      int           `json:"total"`
	Processed  int           `json:"processed"`
	Succeeded  int           `json:"succeeded"`
	Failed     int           `json:"failed"`
	Duplicates int           `json:"duplicates"`
	Errors     []ImportError `json:"errors,omitempty"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt *time.Time    `json:"finished_at,omitempty"`
}
