package search

import (
	"strings"
	"unicode"
)

// AcronymExpansions maps common research acronyms to their spelled-out form.
// Abstracts often use one form and queries the other.
var AcronymExpansions = map[string][]string{
	"llm":  {"large", "language", "model"},
	"llms": {"large", "language", "models"},
	"nlp":  {"natural", "language", "processing"},
	"rag":  {"retrieval", "augmented", "generation"},
	"kg":   {"knowledge", "graph"},
	"gnn":  {"graph", "neural", "network"},
	"cnn":  {"convolutional", "neural", "network"},
	"rnn":  {"recurrent", "neural", "network"},
	"rl":   {"reinforcement", "learning"},
	"ml":   {"machine", "learning"},
	"ir":   {"information", "retrieval"},
	"qa":   {"question", "answering"},
	"ner":  {"named", "entity", "recognition"},
	"cv":   {"computer", "vision"},
}

// QueryExpander appends acronym expansions to a BM25 query. Vector search
// uses the original query; the embedding model bridges vocabulary itself.
type QueryExpander struct {
	expansions map[string][]string
}

// QueryExpanderOption configures a QueryExpander.
type QueryExpanderOption func(*QueryExpander)

// WithExpansions adds or overrides entries.
func WithExpansions(m map[string][]string) QueryExpanderOption {
	return func(e *QueryExpander) {
		for k, v := range m {
			e.expansions[strings.ToLower(k)] = v
		}
	}
}

// NewQueryExpander returns an expander seeded with AcronymExpansions.
func NewQueryExpander(opts ...QueryExpanderOption) *QueryExpander {
	e := &QueryExpander{expansions: make(map[string][]string, len(AcronymExpansions))}
	for k, v := range AcronymExpansions {
		e.expansions[k] = v
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Expand returns query followed by any expansion terms not already present.
func (e *QueryExpander) Expand(query string) string {
	terms := splitTerms(query)
	if len(terms) == 0 {
		return query
	}

	seen := make(map[string]bool, len(terms))
	for _, t := range terms {
		seen[t] = true
	}

	var extra []string
	for _, t := range terms {
		for _, syn := range e.expansions[t] {
			if !seen[syn] {
				seen[syn] = true
				extra = append(extra, syn)
			}
		}
	}
	if len(extra) == 0 {
		return query
	}
	return query + " " + strings.Join(extra, " ")
}

func splitTerms(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
