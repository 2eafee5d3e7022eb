package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/analysis/token/porter"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/registry"
	"github.com/blevesearch/bleve/v2/search"
)

const (
	ProseTokenizerName  = "pubrag_prose"
	ProseStopFilterName = "pubrag_stop"
	ProseAnalyzerName   = "pubrag_analyzer"
)

func init() {
	_ = registry.RegisterTokenizer(ProseTokenizerName, proseTokenizerConstructor)
	_ = registry.RegisterTokenFilter(ProseStopFilterName, proseStopFilterConstructor)
}

// BleveBM25Index implements BM25Index with Bleve. Bleve holds an exclusive
// BoltDB lock, so only one process may open a given index.
type BleveBM25Index struct {
	mu     sync.RWMutex
	index  bleve.Index
	path   string
	config BM25Config
	closed bool
}

var _ BM25Index = (*BleveBM25Index)(nil)

// bleveDocument is the stored shape of a Document.
type bleveDocument struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// validateBleveIntegrity reports an incomplete or corrupt index directory.
// A missing directory is valid.
func validateBleveIntegrity(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	metaPath := filepath.Join(path, "index_meta.json")
	info, err := os.Stat(metaPath)
	if os.IsNotExist(err) {
		return fmt.Errorf("index_meta.json missing (corrupted index)")
	}
	if err != nil {
		return fmt.Errorf("cannot stat index_meta.json: %w", err)
	}
	if info.Size() == 0 {
		return fmt.Errorf("index_meta.json is empty (corrupted)")
	}

	data, err := os.ReadFile(metaPath)
	if err != nil {
		return fmt.Errorf("cannot read index_meta.json: %w", err)
	}
	var meta map[string]any
	if err := json.Unmarshal(data, &meta); err != nil {
		return fmt.Errorf("index_meta.json is corrupt: %w", err)
	}
	return nil
}

func isBleveCorruption(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, bleve.ErrorIndexMetaCorrupt) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "unexpected end of JSON") ||
		strings.Contains(msg, "error parsing mapping JSON") ||
		strings.Contains(msg, "failed to load segment")
}

// NewBleveBM25Index opens or creates the index directory at path. An empty
// path gives an in-memory index. A corrupted index is cleared and recreated.
func NewBleveBM25Index(path string, config BM25Config) (*BleveBM25Index, error) {
	m, err := newIndexMapping()
	if err != nil {
		return nil, fmt.Errorf("failed to create index mapping: %w", err)
	}

	var idx bleve.Index
	if path == "" {
		idx, err = bleve.NewMemOnly(m)
	} else {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", filepath.Dir(path), err)
		}
		if verr := validateBleveIntegrity(path); verr != nil {
			slog.Warn("bleve_bm25_index_corrupted", slog.String("path", path), slog.String("error", verr.Error()))
			if rerr := os.RemoveAll(path); rerr != nil {
				return nil, fmt.Errorf("BM25 index corrupted at %s and cannot remove: %w (original error: %v)", path, rerr, verr)
			}
		}

		idx, err = bleve.Open(path)
		switch {
		case errors.Is(err, bleve.ErrorIndexPathDoesNotExist):
			idx, err = bleve.New(path, m)
		case isBleveCorruption(err):
			slog.Warn("bleve_bm25_index_open_failed", slog.String("path", path), slog.String("error", err.Error()))
			if rerr := os.RemoveAll(path); rerr != nil {
				return nil, fmt.Errorf("BM25 index corrupted, cannot clear: %w (original: %v)", rerr, err)
			}
			idx, err = bleve.New(path, m)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create/open index: %w", err)
	}

	return &BleveBM25Index{index: idx, path: path, config: config}, nil
}

func newIndexMapping() (*mapping.IndexMappingImpl, error) {
	m := bleve.NewIndexMapping()
	err := m.AddCustomAnalyzer(ProseAnalyzerName, map[string]any{
		"type":      custom.Name,
		"tokenizer": ProseTokenizerName,
		"token_filters": []string{
			lowercase.Name,
			ProseStopFilterName,
			porter.Name,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to add custom analyzer: %w", err)
	}
	m.DefaultAnalyzer = ProseAnalyzerName
	return m, nil
}

// Backend implements BM25Index.
func (b *BleveBM25Index) Backend() BM25Backend { return BM25BackendBleve }

// Index implements BM25Index.
func (b *BleveBM25Index) Index(_ context.Context, docs []*Document) error {
	if len(docs) == 0 {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrStoreClosed
	}

	batch := b.index.NewBatch()
	for _, doc := range docs {
		if err := batch.Index(doc.ID, bleveDocument{Title: doc.Title, Content: doc.Text}); err != nil {
			return fmt.Errorf("failed to index document %s: %w", doc.ID, err)
		}
	}
	if err := b.index.Batch(batch); err != nil {
		return fmt.Errorf("failed to execute batch: %w", err)
	}
	return nil
}

// Search implements BM25Index.
func (b *BleveBM25Index) Search(ctx context.Context, query string, limit int) ([]*BM25Result, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return nil, ErrStoreClosed
	}
	if strings.TrimSpace(query) == "" || limit <= 0 {
		return []*BM25Result{}, nil
	}

	q := bleve.NewMatchQuery(query)
	q.SetField("content")

	req := bleve.NewSearchRequest(q)
	req.Size = limit
	req.IncludeLocations = true

	res, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	out := make([]*BM25Result, 0, len(res.Hits))
	for _, hit := range res.Hits {
		out = append(out, &BM25Result{DocID: hit.ID, Score: hit.Score, MatchedTerms: matchedTerms(hit)})
	}
	return out, nil
}

// Delete implements BM25Index.
func (b *BleveBM25Index) Delete(_ context.Context, docIDs []string) error {
	if len(docIDs) == 0 {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrStoreClosed
	}

	batch := b.index.NewBatch()
	for _, id := range docIDs {
		batch.Delete(id)
	}
	if err := b.index.Batch(batch); err != nil {
		return fmt.Errorf("failed to delete documents: %w", err)
	}
	return nil
}

// AllIDs implements BM25Index.
func (b *BleveBM25Index) AllIDs() ([]string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return nil, ErrStoreClosed
	}

	n, err := b.index.DocCount()
	if err != nil {
		return nil, fmt.Errorf("failed to count documents: %w", err)
	}
	if n == 0 {
		return nil, nil
	}

	req := bleve.NewSearchRequest(bleve.NewMatchAllQuery())
	req.Size = int(n)
	res, err := b.index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("failed to search for all IDs: %w", err)
	}

	ids := make([]string, len(res.Hits))
	for i, hit := range res.Hits {
		ids[i] = hit.ID
	}
	sort.Strings(ids)
	return ids, nil
}

// Stats implements BM25Index.
func (b *BleveBM25Index) Stats() *IndexStats {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return &IndexStats{}
	}
	n, _ := b.index.DocCount()
	return &IndexStats{DocumentCount: int(n)}
}

// Close implements BM25Index. It is idempotent.
func (b *BleveBM25Index) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	return b.index.Close()
}

func matchedTerms(hit *search.DocumentMatch) []string {
	var terms []string
	for term := range hit.Locations["content"] {
		terms = append(terms, term)
	}
	sort.Strings(terms)
	return terms
}

func proseTokenizerConstructor(map[string]any, *registry.Cache) (analysis.Tokenizer, error) {
	return proseTokenizer{}, nil
}

// proseTokenizer emits the same words as Tokenize, with byte offsets.
type proseTokenizer struct{}

func (proseTokenizer) Tokenize(input []byte) analysis.TokenStream {
	locs := wordRegex.FindAllIndex(input, -1)
	out := make(analysis.TokenStream, 0, len(locs))
	pos := 1
	for _, loc := range locs {
		term := input[loc[0]:loc[1]]
		if len([]rune(string(term))) < 2 {
			continue
		}
		out = append(out, &analysis.Token{
			Term:     term,
			Start:    loc[0],
			End:      loc[1],
			Position: pos,
			Type:     analysis.AlphaNumeric,
		})
		pos++
	}
	return out
}

func proseStopFilterConstructor(map[string]any, *registry.Cache) (analysis.TokenFilter, error) {
	return proseStopFilter{stop: BuildStopWordMap(DefaultStopWords)}, nil
}

type proseStopFilter struct {
	stop map[string]struct{}
}

func (f proseStopFilter) Filter(input analysis.TokenStream) analysis.TokenStream {
	out := make(analysis.TokenStream, 0, len(input))
	for _, tok := range input {
		if _, isStop := f.stop[string(tok.Term)]; !isStop {
			out = append(out, tok)
		}
	}
	return out
}
