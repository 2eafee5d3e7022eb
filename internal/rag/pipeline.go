// Package rag answers questions from the publication index: hybrid search
// picks the sources, subgraph extraction adds their graph neighbourhood, and
// a Generator writes the answer.
package rag

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	perrors "github.com/Aman-CERP/pubrag/internal/errors"
	"github.com/Aman-CERP/pubrag/internal/search"
	"github.com/Aman-CERP/pubrag/internal/subgraph"
)

const (
	// DefaultContextPublications is the number of sources put in the prompt.
	DefaultContextPublications = 5

	// NoResultsAnswer is returned, without calling the generator, when
	// search finds nothing.
	NoResultsAnswer = "No relevant publications were found in the index for this question."
)

// Searcher is satisfied by *search.Engine.
type Searcher interface {
	Search(ctx context.Context, query string, opts search.Options) ([]search.Result, error)
}

// SubgraphExtractor is satisfied by *subgraph.Extractor.
type SubgraphExtractor interface {
	Extract(ctx context.Context, seedIDs []string, opts subgraph.Options) (*subgraph.Subgraph, error)
}

// Options configures one question.
type Options struct {
	// Limit is the number of publications used as sources.
	Limit int
	// Depth is the citation depth of the subgraph, 1 or 2.
	Depth    int
	YearFrom int
	YearTo   int
}

// Answer is the pipeline output.
type Answer struct {
	RequestID string             `json:"request_id"`
	Question  string             `json:"question"`
	Text      string             `json:"answer"`
	Sources   []search.Result    `json:"sources"`
	Subgraph  *subgraph.Subgraph `json:"subgraph,omitempty"`
	Model     string             `json:"model,omitempty"`
	Duration  time.Duration      `json:"duration_ns"`
}

// Pipeline wires search, extraction and generation.
type Pipeline struct {
	searcher  Searcher
	extractor SubgraphExtractor
	generator Generator
	logger    *slog.Logger
}

// NewPipeline builds a pipeline. extractor may be nil, in which case
// prompts carry no graph facts.
func NewPipeline(s Searcher, x SubgraphExtractor, g Generator) (*Pipeline, error) {
	if s == nil {
		return nil, fmt.Errorf("searcher is required")
	}
	if g == nil {
		return nil, fmt.Errorf("generator is required")
	}
	return &Pipeline{searcher: s, extractor: x, generator: g, logger: slog.Default()}, nil
}

// Answer runs the pipeline for question.
func (p *Pipeline) Answer(ctx context.Context, question string, opts Options) (*Answer, error) {
	start := time.Now()
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, search.ErrEmptyQuery
	}
	if opts.Limit <= 0 {
		opts.Limit = DefaultContextPublications
	}

	ans := &Answer{RequestID: uuid.NewString(), Question: question, Model: p.generator.Model()}
	log := p.logger.With(slog.String("request_id", ans.RequestID))

	hits, err := p.searcher.Search(ctx, question, search.Options{
		Limit:    opts.Limit,
		YearFrom: opts.YearFrom,
		YearTo:   opts.YearTo,
	})
	if err != nil {
		return nil, err
	}
	ans.Sources = hits

	if len(hits) == 0 {
		ans.Text = NoResultsAnswer
		ans.Duration = time.Since(start)
		log.Info("rag_no_results", slog.String("question", question))
		return ans, nil
	}

	if p.extractor != nil {
		ids := make([]string, len(hits))
		for i, h := range hits {
			ids[i] = h.ID
		}
		sg, err := p.extractor.Extract(ctx, ids, subgraph.Options{Depth: opts.Depth})
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			log.Warn("rag_subgraph_failed", slog.String("error", err.Error()))
		} else {
			ans.Subgraph = sg
		}
	}

	prompt := BuildPrompt(question, hits, ans.Subgraph)
	text, err := p.generator.Generate(ctx, prompt)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if perrors.GetCode(err) != "" {
			return nil, err
		}
		return nil, perrors.New(perrors.ErrCodeGenerateFailed, "failed to generate answer", err)
	}
	ans.Text = strings.TrimSpace(text)
	if ans.Text == "" {
		return nil, perrors.New(perrors.ErrCodeGenerateFailed, "generator returned an empty answer", nil)
	}
	ans.Duration = time.Since(start)

	log.Info("rag_answered",
		slog.Int("sources", len(hits)),
		slog.Int("prompt_chars", len(prompt)),
		slog.Duration("duration", ans.Duration))
	return ans, nil
}

// BuildPrompt renders numbered sources and graph facts around question.
func BuildPrompt(question string, sources []search.Result, sg *subgraph.Subgraph) string {
	var b strings.Builder
	b.WriteString("You are a research assistant. Answer the question using only the sources and graph facts below. ")
	b.WriteString("Cite sources by their number, like [1]. If the sources do not contain the answer, say so.\n\n")

	b.WriteString("Sources:\n")
	for i, s := range sources {
		fmt.Fprintf(&b, "[%d] %s", i+1, s.Title)
		if s.Year > 0 {
			fmt.Fprintf(&b, " (%d)", s.Year)
		}
		b.WriteString("\n")
		if s.Snippet != "" && s.Snippet != s.Title {
			b.WriteString(s.Snippet)
			b.WriteString("\n")
		}
	}

	if summary := sg.Summary(); summary != "" {
		b.WriteString("\nGraph facts:\n")
		b.WriteString(summary)
	}

	b.WriteString("\nQuestion: ")
	b.WriteString(question)
	b.WriteString("\nAnswer:")
	return b.String()
}
