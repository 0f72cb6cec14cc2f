package extract

import (
	"context"
	"net/http"
	"time"

	"github.com/Von-Base-Enterprises/core-nexus/internal/domain"
	"go.uber.org/zap"
)

// Entity is a single extracted mention with its character span.
type Entity struct {
	Name       string            `json:"name"`
	Type       domain.EntityType `json:"type"`
	Confidence float32           `json:"confidence"`
	Start      int               `json:"start"`
	End        int               `json:"end"`
}

// Relationship is a candidate edge between two extracted entities, inferred
// from co-occurrence and surface patterns.
type Relationship struct {
	From       string                  `json:"from"`
	To         string                  `json:"to"`
	Type       domain.RelationshipType `json:"type"`
	Strength   float32                 `json:"strength"`
	Confidence float32                 `json:"confidence"`
}

// Extractor turns free text into entities and candidate relationships.
type Extractor interface {
	Extract(ctx context.Context, text string) ([]Entity, []Relationship, error)
	HealthCheck(ctx context.Context) domain.Health
}

// New selects the extractor. If a NER sidecar URL is configured and the
// sidecar answers its health probe, the service-backed extractor is used;
// otherwise the regex fallback is, and the degradation is surfaced through
// HealthCheck.
func New(sidecarURL string, logger *zap.Logger) Extractor {
	if sidecarURL == "" {
		return NewRegex()
	}

	svc := NewService(sidecarURL)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sidecarURL+"/health", nil)
	if err == nil {
		resp, perr := svc.httpClient.Do(req)
		if perr == nil {
			_ = resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				logger.Info("entity extractor using NER sidecar", zap.String("url", sidecarURL))
				return svc
			}
			err = &probeError{status: resp.StatusCode}
		} else {
			err = perr
		}
	}

	logger.Warn("NER sidecar unavailable, falling back to regex extractor",
		zap.String("url", sidecarURL), zap.Error(err))
	return NewRegexDegraded("ner sidecar unavailable at startup")
}

type probeError struct{ status int }

func (e *probeError) Error() string { return http.StatusText(e.status) }
