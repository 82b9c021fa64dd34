package gallery

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// RemoveDiacritics removes diacritical marks from a string (e.g., "Jiří" -> "Jiri").
func RemoveDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	result, _, _ := transform.String(t, s)
	return result
}

// LabelKey normalizes a label for comparison (lowercase, no diacritics, spaces
// for dashes and underscores, collapsed whitespace). Two labels with the same
// key name the same person.
func LabelKey(label string) string {
	label = RemoveDiacritics(label)
	label = strings.ToLower(label)
	label = strings.NewReplacer("-", " ", "_", " ").Replace(label)
	return strings.Join(strings.Fields(label), " ")
}

// ResolveLabel returns the label already in use for the same person as
// candidate and true, or candidate itself (trimmed) and false.
func (g *Gallery) ResolveLabel(candidate string) (string, bool) {
	key := LabelKey(candidate)
	for _, id := range g.identities {
		if LabelKey(id.Label) == key {
			return id.Label, true
		}
	}
	return strings.TrimSpace(candidate), false
}
