package extract

import (
	"context"
	"regexp"
	"strings"

	"github.com/Von-Base-Enterprises/core-nexus/internal/domain"
)

// capitalizedSpan matches one or more capitalized words, allowing internal
// digits, ampersands, and hyphens ("Von Base Enterprises", "GPT-4").
var capitalizedSpan = regexp.MustCompile(`\b[A-Z][A-Za-z0-9&.-]*(?:\s+[A-Z][A-Za-z0-9&.-]*)*\b`)

// versionedName matches technology-style names with a version or digit
// suffix regardless of position ("GPT-4", "pgvector0.5" does not apply,
// "K8s" does).
var versionedName = regexp.MustCompile(`\b[A-Za-z]+-?\d+(?:\.\d+)*[A-Za-z]*\b`)

var orgSuffixes = []string{
	"inc", "inc.", "corp", "corp.", "corporation", "llc", "ltd", "ltd.",
	"gmbh", "enterprises", "labs", "systems", "technologies", "holdings",
	"group", "ventures", "partners", "foundation",
}

var personTitles = []string{
	"mr", "mr.", "mrs", "mrs.", "ms", "ms.", "dr", "dr.", "prof", "prof.",
	"ceo", "cto", "coo", "president",
}

var knownTypes = map[string]domain.EntityType{
	"kubernetes": domain.EntityTechnology,
	"docker":     domain.EntityTechnology,
	"postgresql": domain.EntityTechnology,
	"postgres":   domain.EntityTechnology,
	"pgvector":   domain.EntityTechnology,
	"python":     domain.EntityTechnology,
	"go":         domain.EntityTechnology,
	"rust":       domain.EntityTechnology,
	"openai":     domain.EntityOrganization,
	"anthropic":  domain.EntityOrganization,
	"google":     domain.EntityOrganization,
	"microsoft":  domain.EntityOrganization,
	"amazon":     domain.EntityOrganization,
	"aws":        domain.EntityTechnology,
	"gcp":        domain.EntityTechnology,
	"azure":      domain.EntityTechnology,
	"linux":      domain.EntityTechnology,
	"github":     domain.EntityProduct,
	"slack":      domain.EntityProduct,
}

// stopwords are capitalized sentence starters that are not entities.
var stopwords = map[string]bool{
	"the": true, "a": true, "an": true, "this": true, "that": true,
	"these": true, "those": true, "it": true, "he": true, "she": true,
	"they": true, "we": true, "i": true, "you": true, "in": true,
	"on": true, "at": true, "and": true, "but": true, "or": true,
	"if": true, "when": true, "while": true, "after": true, "before": true,
	"my": true, "our": true, "his": true, "her": true, "their": true,
	"there": true, "here": true, "today": true, "yesterday": true,
	"tomorrow": true,
}

// Regex is the fallback extractor. It matches capitalized multi-word spans
// plus versioned technology names and guesses types from surface features.
type Regex struct {
	degraded string // non-empty when standing in for the NER sidecar
}

func NewRegex() *Regex {
	return &Regex{}
}

// NewRegexDegraded marks the extractor as a fallback so health checks can
// surface why the statistical variant is not running.
func NewRegexDegraded(reason string) *Regex {
	return &Regex{degraded: reason}
}

func (r *Regex) Extract(ctx context.Context, text string) ([]Entity, []Relationship, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	var entities []Entity
	seen := make(map[string]bool)

	add := func(name string, start, end int, conf float32) {
		name = strings.TrimRight(name, ".")
		lower := strings.ToLower(name)
		if len(name) < 2 || stopwords[lower] || seen[lower] {
			return
		}
		seen[lower] = true
		entities = append(entities, Entity{
			Name:       name,
			Type:       guessType(name, text, start),
			Confidence: conf,
			Start:      start,
			End:        end,
		})
	}

	for _, loc := range capitalizedSpan.FindAllStringIndex(text, -1) {
		span := text[loc[0]:loc[1]]
		// Drop leading stopword tokens ("The OpenAI team" -> "OpenAI team").
		words := strings.Fields(span)
		offset := 0
		for len(words) > 0 && stopwords[strings.ToLower(words[0])] {
			offset += len(words[0]) + 1
			words = words[1:]
		}
		if len(words) == 0 {
			continue
		}
		trimmed := strings.Join(words, " ")
		conf := float32(0.5)
		if len(words) > 1 {
			conf = 0.7 // multi-word spans are rarely false positives
		}
		add(trimmed, loc[0]+offset, loc[1], conf)
	}

	for _, loc := range versionedName.FindAllStringIndex(text, -1) {
		add(text[loc[0]:loc[1]], loc[0], loc[1], 0.6)
	}

	return entities, inferRelationships(text, entities), nil
}

func (r *Regex) HealthCheck(ctx context.Context) domain.Health {
	details := map[string]any{"variant": "regex"}
	status := domain.Healthy
	if r.degraded != "" {
		status = domain.Degraded
		details["reason"] = r.degraded
	}
	return domain.Health{Status: status, Details: details}
}

func guessType(name, text string, start int) domain.EntityType {
	lower := strings.ToLower(name)
	if t, ok := knownTypes[lower]; ok {
		return t
	}

	words := strings.Fields(lower)
	last := words[len(words)-1]
	for _, suf := range orgSuffixes {
		if last == suf {
			return domain.EntityOrganization
		}
	}

	// A title immediately before the span suggests a person.
	prefix := strings.ToLower(text[:start])
	for _, title := range personTitles {
		if strings.HasSuffix(strings.TrimSpace(prefix), title) {
			return domain.EntityPerson
		}
	}

	// Versioned names read as technology.
	if versionedName.MatchString(name) {
		return domain.EntityTechnology
	}

	if len(words) >= 2 {
		return domain.EntityOrganization
	}
	return domain.EntityConcept
}
