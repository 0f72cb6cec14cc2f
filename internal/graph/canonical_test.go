package graph

import "testing"

func TestNormalize(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"OpenAI", "openai"},
		{"  Von  Base   Enterprises ", "von base enterprises"},
		{"GPT-4", "gpt-4"},
	}
	for _, c := range cases {
		if got := Normalize(c.in); got != c.want {
			t.Errorf("Normalize(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestCanonicalizeResolvesAliases(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"VBE", "von base enterprises"},
		{"Von Base Enterprises", "von base enterprises"},
		{"K8s", "kubernetes"},
		{"Postgres", "postgresql"},
		{"pg", "postgresql"},
	}
	for _, c := range cases {
		if got := Canonicalize(c.in); got != c.want {
			t.Errorf("Canonicalize(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestCanonicalizePassesThroughUnknownNames(t *testing.T) {
	if got := Canonicalize("Jane Doe"); got != "jane doe" {
		t.Errorf("got %q, want normalized passthrough", got)
	}
}
