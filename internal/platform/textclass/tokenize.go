// Package textclass is a small TF-IDF + softmax text classifier used to map
// free-text symptom descriptions to disease labels.
package textclass

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const minTokenLen = 2

// Normalize lowercases text, strips diacritics and collapses whitespace.
// "Dolor de  CABEZA, náusea" becomes "dolor de cabeza, nausea".
func Normalize(text string) string {
	// Transformers keep state, so each call builds its own chain.
	fold := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(fold, strings.ToLower(text))
	if err != nil {
		folded = strings.ToLower(text)
	}
	return strings.Join(strings.Fields(folded), " ")
}

// Tokenize splits normalized text into runs of letters and digits, dropping
// tokens shorter than two characters.
func Tokenize(text string) []string {
	fields := strings.FieldsFunc(Normalize(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	tokens := fields[:0]
	for _, f := range fields {
		if len([]rune(f)) >= minTokenLen {
			tokens = append(tokens, f)
		}
	}
	return tokens
}
