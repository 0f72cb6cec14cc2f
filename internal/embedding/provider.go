package embedding

import (
	"context"
	"fmt"

	"github.com/Von-Base-Enterprises/core-nexus/internal/domain"
)

// Provider constants
const (
	ProviderRemote = "remote"
	ProviderMock   = "mock"
)

// Model produces embedding vectors of a fixed dimension.
type Model interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
	HealthCheck(ctx context.Context) domain.Health
}

// New creates an embedding model based on the provider name. The choice is
// process-wide and made once at startup; callers treat both variants
// uniformly. Returns an error if the provider is unknown or the API key is
// empty (except for mock).
func New(provider, apiKey string, dimension int) (Model, error) {
	switch provider {
	case ProviderRemote:
		if apiKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY is required for remote embedding provider")
		}
		return NewRemote(apiKey, dimension), nil

	case ProviderMock:
		return NewMock(dimension), nil

	default:
		return nil, fmt.Errorf("unknown embedding provider: %s (valid options: remote, mock)", provider)
	}
}
