package rules

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Fold lower-cases s and strips diacritics, so "RazãoSocial" and
// "razaosocial" compare equal.
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(out)
}

// NormalizeKey returns the matching form of a flattened key: folded and
// wrapped in separators, so a fragment such as "_cnpj_" matches a whole
// path segment anywhere in the key, including the last one.
func NormalizeKey(key string) string {
	return "_" + Fold(key) + "_"
}

// NormalizeTerms folds every term and drops empty ones.
func NormalizeTerms(terms []string) []string {
	out := make([]string, 0, len(terms))
	for _, t := range terms {
		t = Fold(strings.TrimSpace(t))
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// NormalizeValue folds a flag or code value for comparison.
func NormalizeValue(v string) string {
	return Fold(strings.TrimSpace(v))
}
