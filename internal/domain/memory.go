package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// MaxContentBytes bounds memory content size.
const MaxContentBytes = 64 * 1024

// Memory is an immutable record of a piece of text plus metadata, enriched
// with an embedding vector and an importance score. Content never changes
// after the write; metadata may be updated.
type Memory struct {
	ID              uuid.UUID      `json:"id"`
	Content         string         `json:"content"`
	Embedding       []float32      `json:"-"`
	Metadata        map[string]any `json:"metadata,omitempty"`
	ImportanceScore float32        `json:"importance_score"`
	ContentHash     string         `json:"content_hash,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

// UserID reads the user identifier folded into metadata, if any.
func (m *Memory) UserID() string {
	if m.Metadata == nil {
		return ""
	}
	s, _ := m.Metadata["user_id"].(string)
	return s
}

// QueryResult is a memory returned by a provider query. SimilarityScore is
// nil on recency reads.
type QueryResult struct {
	Memory
	SimilarityScore *float32 `json:"similarity_score"`
}

// QueryFilters narrows query and recency reads. Zero values mean "no filter".
type QueryFilters struct {
	UserID         string         `json:"user_id,omitempty"`
	ConversationID string         `json:"conversation_id,omitempty"`
	ImportanceMin  *float32       `json:"importance_min,omitempty"`
	ImportanceMax  *float32       `json:"importance_max,omitempty"`
	CreatedAfter   *time.Time     `json:"created_after,omitempty"`
	CreatedBefore  *time.Time     `json:"created_before,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// Match reports whether a memory satisfies the filters. Providers that push
// filtering into SQL do not use it; embedded providers filter in process.
func (f QueryFilters) Match(m *Memory) bool {
	if f.UserID != "" {
		if s, _ := m.Metadata["user_id"].(string); s != f.UserID {
			return false
		}
	}
	if f.ConversationID != "" {
		if s, _ := m.Metadata["conversation_id"].(string); s != f.ConversationID {
			return false
		}
	}
	if f.ImportanceMin != nil && m.ImportanceScore < *f.ImportanceMin {
		return false
	}
	if f.ImportanceMax != nil && m.ImportanceScore > *f.ImportanceMax {
		return false
	}
	if f.CreatedAfter != nil && m.CreatedAt.Before(*f.CreatedAfter) {
		return false
	}
	if f.CreatedBefore != nil && m.CreatedAt.After(*f.CreatedBefore) {
		return false
	}
	for k, want := range f.Metadata {
		if m.Metadata[k] != want {
			return false
		}
	}
	return true
}

// ValidContent reports whether memory content is acceptable for storage.
func ValidContent(content string) bool {
	trimmed := strings.TrimSpace(content)
	return trimmed != "" && len(content) <= MaxContentBytes
}
