package indexer

import (
	"context"
	"log/slog"
	"time"

	"github.com/Aman-CERP/pubrag/internal/store"
)

// InconsistencyType categorizes a cross-store issue.
type InconsistencyType int

const (
	// InconsistencyOrphanBM25 is a BM25 entry with no document row.
	InconsistencyOrphanBM25 InconsistencyType = iota
	// InconsistencyOrphanVector is a vector with no document row.
	InconsistencyOrphanVector
	// InconsistencyMissingBM25 is a document row missing from BM25.
	InconsistencyMissingBM25
	// InconsistencyMissingVector is a document row missing from the vector store.
	InconsistencyMissingVector
)

func (t InconsistencyType) String() string {
	switch t {
	case InconsistencyOrphanBM25:
		return "orphan_bm25"
	case InconsistencyOrphanVector:
		return "orphan_vector"
	case InconsistencyMissingBM25:
		return "missing_bm25"
	case InconsistencyMissingVector:
		return "missing_vector"
	default:
		return "unknown"
	}
}

// Inconsistency is one detected issue.
type Inconsistency struct {
	Type  InconsistencyType
	DocID string
}

// ConsistencyReport is the outcome of Check.
type ConsistencyReport struct {
	// Checked is the number of document rows compared.
	Checked         int
	Inconsistencies []Inconsistency
	Duration        time.Duration
}

// ConsistencyChecker compares the BM25 index and vector store against the
// document table, which is the source of truth.
type ConsistencyChecker struct {
	docs    *store.DocumentStore
	bm25    store.BM25Index
	vectors store.VectorStore
}

// NewConsistencyChecker returns a checker over the three stores.
func NewConsistencyChecker(docs *store.DocumentStore, bm25 store.BM25Index, vectors store.VectorStore) *ConsistencyChecker {
	return &ConsistencyChecker{docs: docs, bm25: bm25, vectors: vectors}
}

// Check lists orphaned and missing entries.
func (c *ConsistencyChecker) Check(ctx context.Context) (*ConsistencyReport, error) {
	start := time.Now()

	docIDs, err := c.docs.AllIDs(ctx)
	if err != nil {
		return nil, err
	}
	truth := toSet(docIDs)

	bm25IDs, bm25Err := c.bm25.AllIDs()
	if bm25Err != nil {
		slog.Warn("bm25_ids_unavailable", slog.String("error", bm25Err.Error()))
	}
	vectorIDs := c.vectors.AllIDs()

	var issues []Inconsistency
	for _, id := range bm25IDs {
		if _, ok := truth[id]; !ok {
			issues = append(issues, Inconsistency{Type: InconsistencyOrphanBM25, DocID: id})
		}
	}
	for _, id := range vectorIDs {
		if _, ok := truth[id]; !ok {
			issues = append(issues, Inconsistency{Type: InconsistencyOrphanVector, DocID: id})
		}
	}

	bm25Set := toSet(bm25IDs)
	vectorSet := toSet(vectorIDs)
	for _, id := range docIDs {
		if _, ok := bm25Set[id]; !ok && bm25Err == nil {
			issues = append(issues, Inconsistency{Type: InconsistencyMissingBM25, DocID: id})
		}
		if _, ok := vectorSet[id]; !ok {
			issues = append(issues, Inconsistency{Type: InconsistencyMissingVector, DocID: id})
		}
	}

	return &ConsistencyReport{
		Checked:         len(docIDs),
		Inconsistencies: issues,
		Duration:        time.Since(start),
	}, nil
}

// Repair deletes orphans. Missing entries are only logged; the next index
// run rewrites them.
func (c *ConsistencyChecker) Repair(ctx context.Context, issues []Inconsistency) error {
	var orphanBM25, orphanVector []string
	missing := 0
	for _, issue := range issues {
		switch issue.Type {
		case InconsistencyOrphanBM25:
			orphanBM25 = append(orphanBM25, issue.DocID)
		case InconsistencyOrphanVector:
			orphanVector = append(orphanVector, issue.DocID)
		default:
			missing++
		}
	}

	if len(orphanBM25) > 0 {
		if err := c.bm25.Delete(ctx, orphanBM25); err != nil {
			return err
		}
		slog.Info("orphan_bm25_deleted", slog.Int("count", len(orphanBM25)))
	}
	if len(orphanVector) > 0 {
		if err := c.vectors.Delete(ctx, orphanVector); err != nil {
			return err
		}
		slog.Info("orphan_vectors_deleted", slog.Int("count", len(orphanVector)))
	}
	if missing > 0 {
		slog.Warn("index_entries_missing", slog.Int("count", missing))
	}
	return nil
}

func toSet(ids []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}
