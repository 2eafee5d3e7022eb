package store

import (
	"regexp"
	"strings"
)

// wordRegex matches runs of letters and digits in any script.
var wordRegex = regexp.MustCompile(`[\p{L}\p{N}]+`)

// Tokenize lowercases text and splits it into words of at least minLen runes.
// Hyphenated and slashed compounds ("graph-based") become separate words.
func Tokenize(text string, minLen int) []string {
	words := wordRegex.FindAllString(strings.ToLower(text), -1)
	tokens := make([]string, 0, len(words))
	for _, w := range words {
		if len([]rune(w)) >= minLen {
			tokens = append(tokens, w)
		}
	}
	return tokens
}

// FilterStopWords removes stop words from tokens.
func FilterStopWords(tokens []string, stopWords map[string]struct{}) []string {
	out := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if _, stop := stopWords[strings.ToLower(t)]; !stop {
			out = append(out, t)
		}
	}
	return out
}

// BuildStopWordMap converts a stop word list to a lookup set.
func BuildStopWordMap(stopWords []string) map[string]struct{} {
	m := make(map[string]struct{}, len(stopWords))
	for _, w := range stopWords {
		m[strings.ToLower(w)] = struct{}{}
	}
	return m
}

// analyze applies the shared tokenization pipeline used by both backends.
func analyze(text string, cfg BM25Config, stop map[string]struct{}) []string {
	minLen := cfg.MinTokenLength
	if minLen <= 0 {
		minLen = 1
	}
	return FilterStopWords(Tokenize(text, minLen), stop)
}
