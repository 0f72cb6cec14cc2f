package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/Von-Base-Enterprises/core-nexus/internal/domain"
	"github.com/Von-Base-Enterprises/core-nexus/internal/unified"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type MemoryHandler struct {
	store *unified.Store
}

func NewMemoryHandler(store *unified.Store) *MemoryHandler {
	return &MemoryHandler{store: store}
}

type storeMemoryRequest struct {
	Content         string         `json:"content"`
	Metadata        map[string]any `json:"metadata,omitempty"`
	ImportanceScore *float32       `json:"importance_score,omitempty"`
	UserID          string         `json:"user_id,omitempty"`
	ConversationID  string         `json:"conversation_id,omitempty"`
}

type queryMemoryRequest struct {
	Query            string              `json:"query"`
	Limit            int                 `json:"limit,omitempty"`
	Offset           int                 `json:"offset,omitempty"`
	MinSimilarity    float32             `json:"min_similarity,omitempty"`
	Filters          domain.QueryFilters `json:"filters,omitempty"`
	UserID           string              `json:"user_id,omitempty"`
	ConversationID   string              `json:"conversation_id,omitempty"`
	IncludeSecondary bool                `json:"include_secondary,omitempty"`
}

// Create stores a single memory. Top-level user_id and conversation_id are
// folded into metadata so scoping survives as plain filterable keys. A
// duplicate in active mode answers 200 with the existing id, not an error.
func (h *MemoryHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req storeMemoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	metadata := req.Metadata
	if req.UserID != "" || req.ConversationID != "" {
		if metadata == nil {
			metadata = map[string]any{}
		}
		if req.UserID != "" {
			metadata["user_id"] = req.UserID
		}
		if req.ConversationID != "" {
			metadata["conversation_id"] = req.ConversationID
		}
	}

	result, err := h.store.Store(r.Context(), &unified.StoreRequest{
		Content:         req.Content,
		Metadata:        metadata,
		ImportanceScore: req.ImportanceScore,
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	status := http.StatusCreated
	if result.IsDuplicate {
		status = http.StatusOK
	}
	writeJSON(w, status, result)
}

// Query answers similarity or recency reads. An empty query string selects
// the recency path.
func (h *MemoryHandler) Query(w http.ResponseWriter, r *http.Request) {
	var req queryMemoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	filters := req.Filters
	if req.UserID != "" {
		filters.UserID = req.UserID
	}
	if req.ConversationID != "" {
		filters.ConversationID = req.ConversationID
	}

	resp, err := h.store.Query(r.Context(), &unified.QueryRequest{
		Query:            req.Query,
		Limit:            req.Limit,
		Offset:           req.Offset,
		MinSimilarity:    req.MinSimilarity,
		Filters:          filters,
		IncludeSecondary: req.IncludeSecondary,
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// List is the query-string recency listing.
func (h *MemoryHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))

	filters := domain.QueryFilters{
		UserID:         q.Get("user_id"),
		ConversationID: q.Get("conversation_id"),
	}
	if v := q.Get("importance_min"); v != "" {
		f, err := strconv.ParseFloat(v, 32)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid importance_min")
			return
		}
		min := float32(f)
		filters.ImportanceMin = &min
	}
	if v := q.Get("importance_max"); v != "" {
		f, err := strconv.ParseFloat(v, 32)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid importance_max")
			return
		}
		max := float32(f)
		filters.ImportanceMax = &max
	}
	if v := q.Get("created_after"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid created_after, want RFC3339")
			return
		}
		filters.CreatedAfter = &t
	}
	if v := q.Get("created_before"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid created_before, want RFC3339")
			return
		}
		filters.CreatedBefore = &t
	}

	resp, err := h.store.Query(r.Context(), &unified.QueryRequest{
		Limit:   limit,
		Offset:  offset,
		Filters: filters,
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *MemoryHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid memory id")
		return
	}

	result, err := h.store.Get(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *MemoryHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid memory id")
		return
	}

	if err := h.store.Delete(r.Context(), id); err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": true, "id": id})
}

func (h *MemoryHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.store.Stats(r.Context())
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
