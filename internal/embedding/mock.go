package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"math"

	"github.com/Von-Base-Enterprises/core-nexus/internal/domain"
)

// Mock derives a pseudo-random but stable unit vector from a hash of the
// text. Identical texts embed identically; different texts are close to
// orthogonal. Used for tests and offline operation.
type Mock struct {
	dimension int
}

func NewMock(dimension int) *Mock {
	return &Mock{dimension: dimension}
}

func (m *Mock) Dimension() int {
	return m.dimension
}

func (m *Mock) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	vec := make([]float32, m.dimension)
	seed := sha256.Sum256([]byte(text))

	// Expand the digest into dimension floats by re-hashing a counter with
	// the seed. Map each 8-byte chunk to [-1, 1).
	var sum float64
	block := seed[:]
	for i := 0; i < m.dimension; {
		h := sha256.New()
		h.Write(block)
		block = h.Sum(nil)
		for off := 0; off+8 <= len(block) && i < m.dimension; off += 8 {
			u := binary.BigEndian.Uint64(block[off : off+8])
			v := float64(u)/float64(math.MaxUint64)*2 - 1
			vec[i] = float32(v)
			sum += v * v
			i++
		}
	}

	// Normalize to unit length so cosine similarity behaves.
	norm := float32(math.Sqrt(sum))
	if norm > 0 {
		for i := range vec {
			vec[i] /= norm
		}
	}
	return vec, nil
}

func (m *Mock) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vecs := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := m.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		vecs[i] = v
	}
	return vecs, nil
}

func (m *Mock) HealthCheck(ctx context.Context) domain.Health {
	return domain.Health{
		Status:  domain.Healthy,
		Details: map[string]any{"provider": ProviderMock, "latency_ms": 0},
	}
}
