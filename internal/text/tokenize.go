// Package text provides the tokenizer shared by the keyword index, the
// section re-ranker, session-memory scoring and community keyword extraction.
// Using one tokenizer everywhere keeps lexical scores comparable.
package text

import (
	"strings"
	"unicode"

	mapset "github.com/deckarep/golang-set/v2"
)

// Tokenize lowercases, splits on non-alphanumeric runes and drops stop words
// and single-character tokens.
func Tokenize(s string) []string {
	s = strings.ToLower(s)
	words := strings.FieldsFunc(s, func(c rune) bool {
		return !unicode.IsLetter(c) && !unicode.IsDigit(c)
	})

	var tokens []string
	for _, word := range words {
		if len(word) < 2 {
			continue
		}
		if stopWords[word] {
			continue
		}
		tokens = append(tokens, word)
	}
	return tokens
}

// TokenSet returns the distinct tokens of s.
func TokenSet(s string) mapset.Set[string] {
	set := mapset.NewThreadUnsafeSet[string]()
	for _, tok := range Tokenize(s) {
		set.Add(tok)
	}
	return set
}

// A minimal stop word list. Domain terms are deliberately not filtered.
var stopWords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true,
	"at": true, "be": true, "by": true, "for": true, "from": true,
	"has": true, "have": true, "he": true, "in": true, "is": true,
	"it": true, "its": true, "of": true, "on": true, "or": true,
	"that": true, "the": true, "to": true, "was": true, "were": true,
	"with": true, "this": true, "but": true, "they": true,
	"we": true, "you": true, "your": true, "my": true, "their": true,
	"been": true, "do": true, "does": true, "did": true,
}
