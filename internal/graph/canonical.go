package graph

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// aliases maps normalized surface forms to canonical entity names. Applied
// after normalization, before upsert, so "VBE" and "Von Base Enterprises"
// land on the same node.
var aliases = map[string]string{
	"vbe":      "von base enterprises",
	"von base": "von base enterprises",
	"k8s":      "kubernetes",
	"pg":       "postgresql",
	"postgres": "postgresql",
	"gpt4":     "gpt-4",
	"chatgpt":  "chatgpt",
	"ms":       "microsoft",
}

// Normalize produces the case-normalized form of an entity name: NFC,
// casefold, internal whitespace collapsed to single spaces.
func Normalize(name string) string {
	s := norm.NFC.String(name)
	s = strings.ToLower(s)
	return strings.Join(strings.Fields(s), " ")
}

// Canonicalize normalizes and resolves known aliases to the canonical name.
func Canonicalize(name string) string {
	n := Normalize(name)
	if canonical, ok := aliases[n]; ok {
		return canonical
	}
	return n
}
