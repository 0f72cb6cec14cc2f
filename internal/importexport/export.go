package importexport

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/Von-Base-Enterprises/core-nexus/internal/domain"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// exportPageSize is the scan page for streaming exports.
const exportPageSize = 500

// memoryScanner pages through stored memories in recency order.
type memoryScanner interface {
	Recent(ctx context.Context, limit, offset int, filters domain.QueryFilters) ([]domain.QueryResult, error)
}

// embeddingFetcher optionally supplies raw vectors for exported records.
type embeddingFetcher interface {
	Embeddings(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID][]float32, error)
}

// ExportOptions shape one export request.
type ExportOptions struct {
	Format            Format
	Filters           domain.QueryFilters
	IncludeMetadata   bool
	IncludeEmbeddings bool
	Limit             int
}

// exportRecord is the wire shape of one exported memory.
type exportRecord struct {
	ID              uuid.UUID      `json:"id"`
	Content         string         `json:"content"`
	Metadata        map[string]any `json:"metadata,omitempty"`
	ImportanceScore float32        `json:"importance_score"`
	CreatedAt       time.Time      `json:"created_at"`
	Embedding       []float32      `json:"embedding,omitempty"`
}

// Exporter streams memories out of the primary in pages so an export never
// holds the full data set in memory.
type Exporter struct {
	scanner memoryScanner
	logger  *zap.Logger
}

func NewExporter(scanner memoryScanner, logger *zap.Logger) *Exporter {
	return &Exporter{scanner: scanner, logger: logger}
}

// Export writes the selected memories to w in the requested format and
// returns the record count.
func (e *Exporter) Export(ctx context.Context, w io.Writer, opts ExportOptions) (int, error) {
	switch opts.Format {
	case FormatJSON:
		return e.exportJSON(ctx, w, opts)
	case FormatCSV:
		return e.exportCSV(ctx, w, opts)
	default:
		return 0, fmt.Errorf("%w: unsupported export format %q", domain.ErrInvalidRequest, opts.Format)
	}
}

// GDPRExport wraps a user's complete memory set in a structured envelope
// suitable for a data subject access request.
func (e *Exporter) GDPRExport(ctx context.Context, w io.Writer, userID, reason string) (int, error) {
	if userID == "" {
		return 0, fmt.Errorf("%w: user_id is required", domain.ErrInvalidRequest)
	}

	var items []exportRecord
	err := e.scan(ctx, ExportOptions{
		Filters:         domain.QueryFilters{UserID: userID},
		IncludeMetadata: true,
	}, func(rec exportRecord) error {
		items = append(items, rec)
		return nil
	})
	if err != nil {
		return 0, err
	}

	envelope := map[string]any{
		"data_export": map[string]any{
			"user_id":     userID,
			"export_date": time.Now().UTC().Format(time.RFC3339),
			"data_categories": map[string]any{
				"memories": map[string]any{
					"count": len(items),
					"items": items,
				},
			},
			"metadata": map[string]any{
				"export_reason": reason,
			},
		},
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(envelope); err != nil {
		return 0, fmt.Errorf("encode gdpr export: %w", err)
	}
	return len(items), nil
}

func (e *Exporter) exportJSON(ctx context.Context, w io.Writer, opts ExportOptions) (int, error) {
	if _, err := io.WriteString(w, `{"memories":[`); err != nil {
		return 0, err
	}

	count := 0
	enc := json.NewEncoder(w)
	err := e.scan(ctx, opts, func(rec exportRecord) error {
		if count > 0 {
			if _, err := io.WriteString(w, ","); err != nil {
				return err
			}
		}
		count++
		return enc.Encode(rec)
	})
	if err != nil {
		return count, err
	}

	if _, err := fmt.Fprintf(w, `],"count":%d}`, count); err != nil {
		return count, err
	}
	return count, nil
}

func (e *Exporter) exportCSV(ctx context.Context, w io.Writer, opts ExportOptions) (int, error) {
	cw := csv.NewWriter(w)
	header := []string{"id", "content", "importance_score", "created_at"}
	if opts.IncludeMetadata {
		header = append(header, "metadata")
	}
	if err := cw.Write(header); err != nil {
		return 0, err
	}

	count := 0
	err := e.scan(ctx, opts, func(rec exportRecord) error {
		row := []string{
			rec.ID.String(),
			rec.Content,
			strconv.FormatFloat(float64(rec.ImportanceScore), 'f', -1, 32),
			rec.CreatedAt.Format(time.RFC3339),
		}
		if opts.IncludeMetadata {
			blob, err := json.Marshal(rec.Metadata)
			if err != nil {
				return fmt.Errorf("marshal metadata: %w", err)
			}
			row = append(row, string(blob))
		}
		count++
		return cw.Write(row)
	})
	if err != nil {
		return count, err
	}

	cw.Flush()
	return count, cw.Error()
}

// scan pages through the primary in recency order, invoking fn per record.
func (e *Exporter) scan(ctx context.Context, opts ExportOptions, fn func(exportRecord) error) error {
	fetcher, canFetch := e.scanner.(embeddingFetcher)
	if opts.IncludeEmbeddings && !canFetch {
		return fmt.Errorf("%w: provider does not expose embeddings", domain.ErrInvalidRequest)
	}

	emitted := 0
	for offset := 0; ; offset += exportPageSize {
		page, err := e.scanner.Recent(ctx, exportPageSize, offset, opts.Filters)
		if err != nil {
			return fmt.Errorf("%w: export scan failed: %v", domain.ErrStorageUnavailable, err)
		}
		if len(page) == 0 {
			return nil
		}

		var embeddings map[uuid.UUID][]float32
		if opts.IncludeEmbeddings {
			ids := make([]uuid.UUID, len(page))
			for i, r := range page {
				ids[i] = r.ID
			}
			embeddings, err = fetcher.Embeddings(ctx, ids)
			if err != nil {
				return fmt.Errorf("%w: export embeddings failed: %v", domain.ErrStorageUnavailable, err)
			}
		}

		for _, r := range page {
			if opts.Limit > 0 && emitted >= opts.Limit {
				return nil
			}
			rec := exportRecord{
				ID:              r.ID,
				Content:         r.Content,
				ImportanceScore: r.ImportanceScore,
				CreatedAt:       r.CreatedAt,
			}
			if opts.IncludeMetadata {
				rec.Metadata = r.Metadata
			}
			if opts.IncludeEmbeddings {
				rec.Embedding = embeddings[r.ID]
			}
			if err := fn(rec); err != nil {
				return err
			}
			emitted++
		}

		if len(page) < exportPageSize {
			return nil
		}
	}
}
