package importexport

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/Von-Base-Enterprises/core-nexus/internal/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockScanner serves fixed results in recency order.
type mockScanner struct {
	results []domain.QueryResult
}

func (m *mockScanner) Recent(ctx context.Context, limit, offset int, filters domain.QueryFilters) ([]domain.QueryResult, error) {
	var matched []domain.QueryResult
	for _, r := range m.results {
		if filters.Match(&r.Memory) {
			matched = append(matched, r)
		}
	}
	if offset >= len(matched) {
		return nil, nil
	}
	matched = matched[offset:]
	if len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

func scannerWith(contents ...string) *mockScanner {
	m := &mockScanner{}
	for i, c := range contents {
		m.results = append(m.results, domain.QueryResult{Memory: domain.Memory{
			ID:        uuid.New(),
			Content:   c,
			Metadata:  map[string]any{"user_id": "u1"},
			CreatedAt: time.Now().Add(-time.Duration(i) * time.Minute),
		}})
	}
	return m
}

func TestExportJSON(t *testing.T) {
	e := NewExporter(scannerWith("alpha", "beta"), testLogger())

	var buf bytes.Buffer
	count, err := e.Export(context.Background(), &buf, ExportOptions{
		Format:          FormatJSON,
		IncludeMetadata: true,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	var payload struct {
		Memories []exportRecord `json:"memories"`
		Count    int            `json:"count"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &payload), "export must be valid json: %s", buf.String())
	assert.Equal(t, 2, payload.Count)
	assert.Len(t, payload.Memories, 2)
	assert.Equal(t, "u1", payload.Memories[0].Metadata["user_id"])
}

func TestExportCSV(t *testing.T) {
	e := NewExporter(scannerWith("alpha", "beta"), testLogger())

	var buf bytes.Buffer
	count, err := e.Export(context.Background(), &buf, ExportOptions{Format: FormatCSV})
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3, "header plus two rows")
	assert.True(t, strings.HasPrefix(lines[0], "id,content,importance_score,created_at"))
}

func TestExportRespectsLimit(t *testing.T) {
	e := NewExporter(scannerWith("a", "b", "c"), testLogger())

	var buf bytes.Buffer
	count, err := e.Export(context.Background(), &buf, ExportOptions{Format: FormatJSON, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestExportRejectsUnknownFormat(t *testing.T) {
	e := NewExporter(scannerWith("a"), testLogger())

	var buf bytes.Buffer
	_, err := e.Export(context.Background(), &buf, ExportOptions{Format: Format("xml")})
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)
}

func TestGDPRExportEnvelope(t *testing.T) {
	scanner := scannerWith("user memory one", "user memory two")
	scanner.results = append(scanner.results, domain.QueryResult{Memory: domain.Memory{
		ID:        uuid.New(),
		Content:   "someone else's memory",
		Metadata:  map[string]any{"user_id": "u2"},
		CreatedAt: time.Now(),
	}})
	e := NewExporter(scanner, testLogger())

	var buf bytes.Buffer
	count, err := e.GDPRExport(context.Background(), &buf, "u1", "user_request")
	require.NoError(t, err)
	assert.Equal(t, 2, count, "only u1's memories")

	var envelope struct {
		DataExport struct {
			UserID         string `json:"user_id"`
			ExportDate     string `json:"export_date"`
			DataCategories struct {
				Memories struct {
					Count int            `json:"count"`
					Items []exportRecord `json:"items"`
				} `json:"memories"`
			} `json:"data_categories"`
			Metadata struct {
				ExportReason string `json:"export_reason"`
			} `json:"metadata"`
		} `json:"data_export"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &envelope))
	assert.Equal(t, "u1", envelope.DataExport.UserID)
	assert.Equal(t, 2, envelope.DataExport.DataCategories.Memories.Count)
	assert.Equal(t, "user_request", envelope.DataExport.Metadata.ExportReason)
	assert.NotEmpty(t, envelope.DataExport.ExportDate)
}

func TestGDPRExportRequiresUserID(t *testing.T) {
	e := NewExporter(scannerWith(), testLogger())
	var buf bytes.Buffer
	_, err := e.GDPRExport(context.Background(), &buf, "", "x")
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)
}
