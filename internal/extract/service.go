package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/Von-Base-Enterprises/core-nexus/internal/domain"
)

// Service is the statistical extractor. It calls an NER sidecar over HTTP
// (a local sentence-transformers style model server). Relationships are
// still inferred locally from the returned spans.
type Service struct {
	baseURL    string
	httpClient *http.Client
}

func NewService(baseURL string) *Service {
	return &Service{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

type extractRequest struct {
	Text string `json:"text"`
}

type extractResponse struct {
	Entities []struct {
		Name       string  `json:"name"`
		Type       string  `json:"type"`
		Confidence float32 `json:"confidence"`
		Start      int     `json:"start"`
		End        int     `json:"end"`
	} `json:"entities"`
	Error string `json:"error,omitempty"`
}

func (s *Service) Extract(ctx context.Context, text string) ([]Entity, []Relationship, error) {
	body, err := json.Marshal(extractRequest{Text: text})
	if err != nil {
		return nil, nil, fmt.Errorf("marshal extract request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/extract", bytes.NewReader(body))
	if err != nil {
		return nil, nil, fmt.Errorf("create extract request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("extract request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("read extract response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, nil, fmt.Errorf("extractor returned status %d: %s", resp.StatusCode, string(respBody))
	}

	var result extractResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, nil, fmt.Errorf("unmarshal extract response: %w", err)
	}
	if result.Error != "" {
		return nil, nil, fmt.Errorf("extractor error: %s", result.Error)
	}

	entities := make([]Entity, 0, len(result.Entities))
	for _, e := range result.Entities {
		typ := domain.EntityType(e.Type)
		if !domain.ValidEntityType(e.Type) {
			typ = domain.EntityOther
		}
		entities = append(entities, Entity{
			Name:       e.Name,
			Type:       typ,
			Confidence: e.Confidence,
			Start:      e.Start,
			End:        e.End,
		})
	}

	return entities, inferRelationships(text, entities), nil
}

func (s *Service) HealthCheck(ctx context.Context) domain.Health {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/health", nil)
	if err != nil {
		return domain.Health{Status: domain.Unavailable, Details: map[string]any{"error": err.Error()}}
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return domain.Health{Status: domain.Unavailable, Details: map[string]any{"error": err.Error()}}
	}
	_ = resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return domain.Health{
			Status:  domain.Degraded,
			Details: map[string]any{"variant": "statistical", "status_code": resp.StatusCode},
		}
	}
	return domain.Health{
		Status:  domain.Healthy,
		Details: map[string]any{"variant": "statistical", "url": s.baseURL},
	}
}
