package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/Von-Base-Enterprises/core-nexus/internal/domain"
	"github.com/Von-Base-Enterprises/core-nexus/internal/importexport"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type ImportExportHandler struct {
	importer *importexport.Importer
	exporter *importexport.Exporter
}

func NewImportExportHandler(importer *importexport.Importer, exporter *importexport.Exporter) *ImportExportHandler {
	return &ImportExportHandler{importer: importer, exporter: exporter}
}

// Import starts an asynchronous bulk import. The format and options come
// from the query string (default json); the request body is the payload
// itself so large files stream straight into the parser.
func (h *ImportExportHandler) Import(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	format := q.Get("format")
	if format == "" {
		format = string(importexport.FormatJSON)
	}
	if !importexport.ValidFormat(format) {
		writeError(w, http.StatusBadRequest, "format must be json, jsonl, or csv")
		return
	}

	opts := importexport.Options{
		Source: q.Get("source"),
		UserID: q.Get("user_id"),
	}
	if v := q.Get("deduplicate"); v != "" {
		dedup, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "deduplicate must be true or false")
			return
		}
		opts.Deduplicate = &dedup
	}
	if v := q.Get("batch_size"); v != "" {
		size, err := strconv.Atoi(v)
		if err != nil || size <= 0 {
			writeError(w, http.StatusBadRequest, "batch_size must be a positive integer")
			return
		}
		opts.BatchSize = size
	}
	if v := q.Get("tags"); v != "" {
		for _, tag := range strings.Split(v, ",") {
			if tag = strings.TrimSpace(tag); tag != "" {
				opts.Tags = append(opts.Tags, tag)
			}
		}
	}
	if v := q.Get("metadata_mapping"); v != "" {
		if err := json.Unmarshal([]byte(v), &opts.MetadataMapping); err != nil {
			writeError(w, http.StatusBadRequest, "metadata_mapping must be a JSON object of column to key")
			return
		}
	}

	job, err := h.importer.Submit(r.Context(), importexport.Format(format), r.Body, opts)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"import_id": job.ID,
		"status":    job.Status,
		"total":     job.Total,
	})
}

func (h *ImportExportHandler) ImportStatus(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "job_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid job id")
		return
	}

	job, err := h.importer.Status(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (h *ImportExportHandler) ImportCancel(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "job_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid job id")
		return
	}

	job, err := h.importer.Cancel(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"import_id": job.ID,
		"status":    "cancelling",
	})
}

type exportRequest struct {
	Format            string              `json:"format"`
	Filters           domain.QueryFilters `json:"filters,omitempty"`
	UserID            string              `json:"user_id,omitempty"`
	IncludeMetadata   *bool               `json:"include_metadata,omitempty"`
	IncludeEmbeddings bool                `json:"include_embeddings,omitempty"`
	Limit             int                 `json:"limit,omitempty"`
}

// Export streams memories in the requested format. The response body is
// written incrementally; by the time an error can occur mid-stream the
// status line is already gone, so failures are logged, not surfaced.
func (h *ImportExportHandler) Export(w http.ResponseWriter, r *http.Request) {
	var req exportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	format := importexport.Format(strings.ToLower(req.Format))
	if format == "" {
		format = importexport.FormatJSON
	}

	filters := req.Filters
	if req.UserID != "" {
		filters.UserID = req.UserID
	}
	includeMetadata := true
	if req.IncludeMetadata != nil {
		includeMetadata = *req.IncludeMetadata
	}

	switch format {
	case importexport.FormatJSON:
		w.Header().Set("Content-Type", "application/json")
	case importexport.FormatCSV:
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", `attachment; filename="memories.csv"`)
	default:
		writeError(w, http.StatusBadRequest, "format must be json or csv")
		return
	}

	_, err := h.exporter.Export(r.Context(), w, importexport.ExportOptions{
		Format:            format,
		Filters:           filters,
		IncludeMetadata:   includeMetadata,
		IncludeEmbeddings: req.IncludeEmbeddings,
		Limit:             req.Limit,
	})
	if err != nil {
		writeDomainError(w, r, err)
	}
}

// GDPR produces the structured data-subject export for one user.
func (h *ImportExportHandler) GDPR(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "user_id")
	reason := r.URL.Query().Get("reason")
	if reason == "" {
		reason = "user_request"
	}

	w.Header().Set("Content-Type", "application/json")
	if _, err := h.exporter.GDPRExport(r.Context(), w, userID, reason); err != nil {
		writeDomainError(w, r, err)
	}
}
