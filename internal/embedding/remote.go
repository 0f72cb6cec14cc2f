package embedding

import (
	"context"
	"fmt"
	"time"

	"github.com/Von-Base-Enterprises/core-nexus/internal/domain"
	openai "github.com/sashabaranov/go-openai"
	"github.com/sethvargo/go-retry"
)

const (
	remoteModel = openai.SmallEmbedding3

	// embedTimeout bounds a single embedding call including retries.
	embedTimeout = 30 * time.Second
	// embedRetries is the number of retries after the first attempt.
	embedRetries = 3
)

// Remote generates embeddings via the OpenAI embeddings API. Transient
// failures are retried with exponential backoff (1s, 2s, 4s); after the
// retries are exhausted the call fails with domain.ErrEmbeddingUnavailable.
type Remote struct {
	client    *openai.Client
	dimension int
}

func NewRemote(apiKey string, dimension int) *Remote {
	return &Remote{
		client:    openai.NewClient(apiKey),
		dimension: dimension,
	}
}

func (r *Remote) Dimension() int {
	return r.dimension
}

func (r *Remote) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := r.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (r *Remote) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, embedTimeout)
	defer cancel()

	var resp openai.EmbeddingResponse
	backoff := retry.WithMaxRetries(embedRetries, retry.NewExponential(time.Second))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		var err error
		resp, err = r.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
			Model:      remoteModel,
			Input:      texts,
			Dimensions: r.dimension,
		})
		if err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrEmbeddingUnavailable, err)
	}

	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("%w: expected %d embeddings, got %d",
			domain.ErrEmbeddingUnavailable, len(texts), len(resp.Data))
	}

	vecs := make([][]float32, len(resp.Data))
	for i, d := range resp.Data {
		vecs[i] = d.Embedding
	}
	return vecs, nil
}

func (r *Remote) HealthCheck(ctx context.Context) domain.Health {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	start := time.Now()
	_, err := r.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Model:      remoteModel,
		Input:      []string{"ping"},
		Dimensions: r.dimension,
	})
	latency := time.Since(start)

	if err != nil {
		return domain.Health{
			Status:  domain.Unavailable,
			Details: map[string]any{"error": err.Error(), "latency_ms": latency.Milliseconds()},
		}
	}
	return domain.Health{
		Status:  domain.Healthy,
		Details: map[string]any{"provider": ProviderRemote, "latency_ms": latency.Milliseconds()},
	}
}
