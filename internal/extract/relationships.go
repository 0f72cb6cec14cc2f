package extract

import (
	"regexp"
	"strings"

	"github.com/Von-Base-Enterprises/core-nexus/internal/domain"
)

// coWindow is the co-occurrence window in characters. Entities further apart
// than this are not related.
const coWindow = 200

// verbPatterns maps surface patterns in the text between two mentions to
// relationship types. First match wins; order is most-specific first.
var verbPatterns = []struct {
	re  *regexp.Regexp
	typ domain.RelationshipType
}{
	{regexp.MustCompile(`(?i)\bworks?\s+(?:at|for)\b`), domain.RelWorksAt},
	{regexp.MustCompile(`(?i)\b(?:develops?|developed|building|builds?|built|created?|creates?|released?)\b`), domain.RelDevelops},
	{regexp.MustCompile(`(?i)\b(?:uses?|using|used|integrates?\s+with|built\s+on|powered\s+by)\b`), domain.RelUses},
	{regexp.MustCompile(`(?i)\b(?:owns?|acquired?|acquires?|bought)\b`), domain.RelOwns},
	{regexp.MustCompile(`(?i)\binvest(?:s|ed|ing)?\s+in\b`), domain.RelInvestsIn},
	{regexp.MustCompile(`(?i)\bcompet(?:es?|ing)\s+(?:with|against)\b`), domain.RelCompetesWith},
	{regexp.MustCompile(`(?i)\b(?:leads?|leading|led|heads?|runs?)\b`), domain.RelLeads},
	{regexp.MustCompile(`(?i)\b(?:located|based|headquartered)\s+in\b`), domain.RelLocatedIn},
	{regexp.MustCompile(`(?i)\bpart\s+of\b`), domain.RelPartOf},
	{regexp.MustCompile(`(?i)\bcaused\s+by\b`), domain.RelCausedBy},
	{regexp.MustCompile(`(?i)\b(?:works?|working|collaborat\w+|partner\w*)\s+with\b`), domain.RelWorksWith},
	{regexp.MustCompile(`(?i)\baffiliated\s+with\b`), domain.RelAffiliatedWith},
	{regexp.MustCompile(`(?i)\bsimilar\s+to\b`), domain.RelSimilarTo},
	{regexp.MustCompile(`(?i)\bmentions?\b`), domain.RelMentions},
}

// inferRelationships derives candidate edges from entity co-occurrence. Two
// entities within the window get an edge whose strength falls off linearly
// with their distance and whose type comes from the text between them.
func inferRelationships(text string, entities []Entity) []Relationship {
	var rels []Relationship
	seen := make(map[string]bool)

	for i := 0; i < len(entities); i++ {
		for j := i + 1; j < len(entities); j++ {
			a, b := entities[i], entities[j]
			if strings.EqualFold(a.Name, b.Name) {
				continue
			}

			// Distance between the end of the first span and the start
			// of the second.
			first, second := a, b
			if second.Start < first.Start {
				first, second = second, first
			}
			dist := second.Start - first.End
			if dist < 0 {
				dist = 0
			}
			if dist > coWindow {
				continue
			}

			strength := 1 - float32(dist)/float32(coWindow)
			if strength < 0 {
				strength = 0
			} else if strength > 1 {
				strength = 1
			}

			typ := domain.RelRelatesTo
			if first.End <= second.Start && second.Start <= len(text) {
				between := text[first.End:second.Start]
				for _, p := range verbPatterns {
					if p.re.MatchString(between) {
						typ = p.typ
						break
					}
				}
			}

			key := first.Name + "|" + second.Name + "|" + string(typ)
			if seen[key] {
				continue
			}
			seen[key] = true

			conf := a.Confidence
			if b.Confidence < conf {
				conf = b.Confidence
			}
			rels = append(rels, Relationship{
				From:       first.Name,
				To:         second.Name,
				Type:       typ,
				Strength:   strength,
				Confidence: conf,
			})
		}
	}
	return rels
}
