package extract

import (
	"context"
	"testing"

	"github.com/Von-Base-Enterprises/core-nexus/internal/domain"
)

func findEntity(entities []Entity, name string) *Entity {
	for i := range entities {
		if entities[i].Name == name {
			return &entities[i]
		}
	}
	return nil
}

func TestRegexExtractsCapitalizedSpans(t *testing.T) {
	r := NewRegex()
	entities, _, err := r.Extract(context.Background(),
		"Sarah joined Von Base Enterprises last spring.")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	vbe := findEntity(entities, "Von Base Enterprises")
	if vbe == nil {
		t.Fatalf("Von Base Enterprises not extracted, got %+v", entities)
	}
	if vbe.Type != domain.EntityOrganization {
		t.Errorf("type = %s, want organization", vbe.Type)
	}
	if vbe.Confidence != 0.7 {
		t.Errorf("multi-word confidence = %v, want 0.7", vbe.Confidence)
	}

	if sarah := findEntity(entities, "Sarah"); sarah == nil {
		t.Error("Sarah not extracted")
	} else if sarah.Confidence != 0.5 {
		t.Errorf("single-word confidence = %v, want 0.5", sarah.Confidence)
	}
}

func TestRegexDropsLeadingStopwords(t *testing.T) {
	r := NewRegex()
	entities, _, err := r.Extract(context.Background(), "The OpenAI team shipped a model.")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if e := findEntity(entities, "The OpenAI team"); e != nil {
		t.Error("leading stopword must be trimmed from the span")
	}
	if e := findEntity(entities, "OpenAI team"); e == nil {
		t.Errorf("trimmed span missing, got %+v", entities)
	}
}

func TestRegexKnownTypes(t *testing.T) {
	r := NewRegex()
	entities, _, err := r.Extract(context.Background(), "OpenAI runs on Kubernetes.")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if e := findEntity(entities, "OpenAI"); e == nil || e.Type != domain.EntityOrganization {
		t.Errorf("OpenAI should be organization, got %+v", e)
	}
	if e := findEntity(entities, "Kubernetes"); e == nil || e.Type != domain.EntityTechnology {
		t.Errorf("Kubernetes should be technology, got %+v", e)
	}
}

func TestRegexVersionedNamesAreTechnology(t *testing.T) {
	r := NewRegex()
	entities, _, err := r.Extract(context.Background(), "We migrated everything to GPT-4 overnight.")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if e := findEntity(entities, "GPT-4"); e == nil || e.Type != domain.EntityTechnology {
		t.Errorf("GPT-4 should be technology, got %+v", entities)
	}
}

func TestRegexPersonTitleHint(t *testing.T) {
	r := NewRegex()
	entities, _, err := r.Extract(context.Background(), "A long call with Dr. Chen yesterday.")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if e := findEntity(entities, "Chen"); e == nil || e.Type != domain.EntityPerson {
		t.Errorf("Chen should be person after a title, got %+v", entities)
	}
}

func TestRegexIgnoresBareStopwords(t *testing.T) {
	r := NewRegex()
	entities, _, err := r.Extract(context.Background(), "Today it rained. Yesterday too.")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entities) != 0 {
		t.Errorf("stopwords extracted as entities: %+v", entities)
	}
}

func TestRegexDegradedHealth(t *testing.T) {
	healthy := NewRegex().HealthCheck(context.Background())
	if healthy.Status != domain.Healthy {
		t.Errorf("plain regex extractor should be healthy, got %s", healthy.Status)
	}

	degraded := NewRegexDegraded("sidecar down").HealthCheck(context.Background())
	if degraded.Status != domain.Degraded {
		t.Errorf("fallback extractor should be degraded, got %s", degraded.Status)
	}
	if degraded.Details["reason"] != "sidecar down" {
		t.Errorf("reason missing from details: %+v", degraded.Details)
	}
}
