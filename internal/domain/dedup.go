package domain

import "github.com/google/uuid"

type DedupMode string

const (
	// DedupLogOnly observes duplicates without ever blocking a write.
	DedupLogOnly DedupMode = "log_only"
	// DedupActive rejects exact and semantic duplicates, returning the
	// existing memory id.
	DedupActive DedupMode = "active"
)

func ValidDedupMode(m string) bool {
	switch DedupMode(m) {
	case DedupLogOnly, DedupActive:
		return true
	}
	return false
}

type DedupDecision string

const (
	DedupUnique            DedupDecision = "unique"
	DedupExactDuplicate    DedupDecision = "exact_duplicate"
	DedupSemanticDuplicate DedupDecision = "semantic_duplicate"
)

// DedupResult is the outcome of a duplicate check.
type DedupResult struct {
	Decision   DedupDecision `json:"decision"`
	ExistingID uuid.UUID     `json:"existing_id,omitempty"`
	Similarity float32       `json:"similarity,omitempty"`
	Reason     string        `json:"reason,omitempty"`
}
