package domain

import (
	"strings"
	"testing"
	"time"
)

func TestValidContent(t *testing.T) {
	cases := []struct {
		content string
		want    bool
	}{
		{"hello", true},
		{"", false},
		{"   \n\t ", false},
		{strings.Repeat("a", MaxContentBytes), true},
		{strings.Repeat("a", MaxContentBytes+1), false},
	}
	for _, c := range cases {
		if got := ValidContent(c.content); got != c.want {
			t.Errorf("ValidContent(len=%d) = %v, want %v", len(c.content), got, c.want)
		}
	}
}

func TestQueryFiltersMatch(t *testing.T) {
	now := time.Now()
	earlier := now.Add(-time.Hour)
	min := float32(0.3)
	max := float32(0.7)

	m := &Memory{
		Metadata:        map[string]any{"user_id": "u1", "conversation_id": "c1", "topic": "ops"},
		ImportanceScore: 0.5,
		CreatedAt:       now,
	}

	cases := []struct {
		name    string
		filters QueryFilters
		want    bool
	}{
		{"empty filters match", QueryFilters{}, true},
		{"user match", QueryFilters{UserID: "u1"}, true},
		{"user mismatch", QueryFilters{UserID: "u2"}, false},
		{"conversation match", QueryFilters{ConversationID: "c1"}, true},
		{"importance window", QueryFilters{ImportanceMin: &min, ImportanceMax: &max}, true},
		{"importance below min", QueryFilters{ImportanceMin: &max}, false},
		{"created after earlier", QueryFilters{CreatedAfter: &earlier}, true},
		{"created before earlier", QueryFilters{CreatedBefore: &earlier}, false},
		{"metadata match", QueryFilters{Metadata: map[string]any{"topic": "ops"}}, true},
		{"metadata mismatch", QueryFilters{Metadata: map[string]any{"topic": "sales"}}, false},
	}
	for _, c := range cases {
		if got := c.filters.Match(m); got != c.want {
			t.Errorf("%s: got %v, want %v", c.name, got, c.want)
		}
	}
}

func TestHealthStateWorse(t *testing.T) {
	if !Unavailable.Worse(Degraded) || !Degraded.Worse(Healthy) {
		t.Error("ordering should be unavailable < degraded < healthy")
	}
	if Healthy.Worse(Degraded) {
		t.Error("healthy is not worse than degraded")
	}
}

func TestImportStatusTerminal(t *testing.T) {
	terminal := []ImportStatus{ImportCompleted, ImportPartial, ImportFailed, ImportCancelled}
	for _, s := range terminal {
		if !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
	for _, s := range []ImportStatus{ImportPending, ImportRunning} {
		if s.Terminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
}
