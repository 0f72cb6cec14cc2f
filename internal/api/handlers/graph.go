package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/Von-Base-Enterprises/core-nexus/internal/domain"
	"github.com/Von-Base-Enterprises/core-nexus/internal/graph"
	"github.com/Von-Base-Enterprises/core-nexus/internal/unified"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type GraphHandler struct {
	store  *graph.Store
	syncer *graph.Syncer
	memory *unified.Store
}

func NewGraphHandler(store *graph.Store, syncer *graph.Syncer, memory *unified.Store) *GraphHandler {
	return &GraphHandler{store: store, syncer: syncer, memory: memory}
}

func (h *GraphHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.store.Stats(r.Context())
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

type graphQueryRequest struct {
	QueryType   string  `json:"query_type"`
	EntityName  string  `json:"entity_name,omitempty"`
	EntityType  string  `json:"entity_type,omitempty"`
	Limit       int     `json:"limit,omitempty"`
	MinStrength float32 `json:"min_strength,omitempty"`
}

// Query serves entity_search and neighbors lookups.
func (h *GraphHandler) Query(w http.ResponseWriter, r *http.Request) {
	var req graphQueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.EntityType != "" && !domain.ValidEntityType(req.EntityType) {
		writeError(w, http.StatusBadRequest, "unknown entity_type")
		return
	}

	switch req.QueryType {
	case "entity_search":
		nodes, err := h.store.EntitySearch(r.Context(), req.EntityName, domain.EntityType(req.EntityType), req.Limit)
		if err != nil {
			writeDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"nodes": nodes, "count": len(nodes)})

	case "neighbors":
		if req.EntityName == "" {
			writeError(w, http.StatusBadRequest, "entity_name is required for neighbors query")
			return
		}
		hood, err := h.store.Neighbors(r.Context(), req.EntityName, req.Limit, req.MinStrength)
		if err != nil {
			writeDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, hood)

	default:
		writeError(w, http.StatusBadRequest, "query_type must be entity_search or neighbors")
	}
}

func (h *GraphHandler) Explore(w http.ResponseWriter, r *http.Request) {
	depth, _ := strconv.Atoi(r.URL.Query().Get("depth"))

	hood, err := h.store.Explore(r.Context(), chi.URLParam(r, "entity_name"), depth)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, hood)
}

func (h *GraphHandler) Path(w http.ResponseWriter, r *http.Request) {
	maxDepth, _ := strconv.Atoi(r.URL.Query().Get("max_depth"))

	path, err := h.store.Path(r.Context(), chi.URLParam(r, "from"), chi.URLParam(r, "to"), maxDepth)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, path)
}

func (h *GraphHandler) Insights(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "memory_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid memory id")
		return
	}
	topK, _ := strconv.Atoi(r.URL.Query().Get("top_k"))

	hood, err := h.store.Insights(r.Context(), id, topK)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, hood)
}

// Sync forces a resync of a single memory through the extraction pipeline.
// Runs synchronously regardless of the configured sync mode; the caller
// asked for this one explicitly.
func (h *GraphHandler) Sync(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "memory_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid memory id")
		return
	}

	result, err := h.memory.Get(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	if err := h.syncer.Sync(r.Context(), &result.Memory); err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"synced": true, "memory_id": id})
}

// BulkSync enqueues a batch of memories for resync. Unknown ids are
// reported, not fatal.
func (h *GraphHandler) BulkSync(w http.ResponseWriter, r *http.Request) {
	var ids []uuid.UUID
	if err := json.NewDecoder(r.Body).Decode(&ids); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body, want array of memory ids")
		return
	}
	if len(ids) == 0 {
		writeError(w, http.StatusBadRequest, "no memory ids given")
		return
	}

	enqueued := 0
	var missing []uuid.UUID
	for _, id := range ids {
		result, err := h.memory.Get(r.Context(), id)
		if err != nil {
			missing = append(missing, id)
			continue
		}
		h.syncer.Submit(r.Context(), &result.Memory)
		enqueued++
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"enqueued": enqueued,
		"missing":  missing,
	})
}
