package embedding

import (
	"context"
	"math"
	"testing"
)

func TestMockEmbedIsDeterministic(t *testing.T) {
	m := NewMock(64)

	a, err := m.Embed(context.Background(), "the same text")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, err := m.Embed(context.Background(), "the same text")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("vectors differ at %d: %v vs %v", i, a[i], b[i])
		}
	}
}

func TestMockEmbedDifferentTextsDiffer(t *testing.T) {
	m := NewMock(64)

	a, _ := m.Embed(context.Background(), "postgres is down")
	b, _ := m.Embed(context.Background(), "lunch was great")

	same := true
	for i := range a {
		if a[i] != b[i] {
			same = false
			break
		}
	}
	if same {
		t.Error("different texts produced identical vectors")
	}
}

func TestMockEmbedUnitLength(t *testing.T) {
	m := NewMock(128)

	vec, err := m.Embed(context.Background(), "normalize me")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vec) != 128 {
		t.Fatalf("dimension = %d, want 128", len(vec))
	}

	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if norm := math.Sqrt(sum); math.Abs(norm-1) > 1e-5 {
		t.Errorf("norm = %v, want 1", norm)
	}
}

func TestMockEmbedBatchMatchesSingle(t *testing.T) {
	m := NewMock(32)
	texts := []string{"one", "two", "three"}

	batch, err := m.EmbedBatch(context.Background(), texts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(batch) != len(texts) {
		t.Fatalf("batch size = %d, want %d", len(batch), len(texts))
	}
	for i, text := range texts {
		single, _ := m.Embed(context.Background(), text)
		for j := range single {
			if batch[i][j] != single[j] {
				t.Fatalf("batch[%d] differs from single embed of %q", i, text)
			}
		}
	}
}

func TestNewSelectsProvider(t *testing.T) {
	if _, err := New(ProviderMock, "", 16); err != nil {
		t.Errorf("mock provider should not need an api key: %v", err)
	}
	if _, err := New(ProviderRemote, "", 16); err == nil {
		t.Error("remote provider without api key should fail")
	}
	if _, err := New("bogus", "key", 16); err == nil {
		t.Error("unknown provider should fail")
	}
}
