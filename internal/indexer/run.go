package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	perrors "github.com/Aman-CERP/pubrag/internal/errors"
	"github.com/Aman-CERP/pubrag/internal/embed"
	"github.com/Aman-CERP/pubrag/internal/graph"
	"github.com/Aman-CERP/pubrag/internal/store"
	"github.com/Aman-CERP/pubrag/internal/ui"
)

// ErrClosed is returned by IndexPublications after Close.
var ErrClosed = errors.New("indexer is closed")

// DocumentText is the text embedded for p: the title, a blank line, then the
// abstract. Publications without an abstract use the title alone.
func DocumentText(p graph.Publication) string {
	title := strings.TrimSpace(p.Title)
	if !p.HasAbstract() {
		return title
	}
	return title + "\n\n" + strings.TrimSpace(p.Abstract)
}

// run carries per-call state through the batch loop.
type run struct {
	result  Result
	timings ui.StageTimings
	total   int
	seen    int
	warns   int
}

// IndexPublications pages through publications batchSize at a time and
// upserts each page into the vector store, the BM25 index and the document
// table. limit <= 0 indexes everything. The vector store and manifest are
// saved once at the end, and also when ctx is cancelled between batches.
func (ix *PublicationIndexer) IndexPublications(ctx context.Context, batchSize, limit int) (*Result, error) {
	if ix.isClosed() {
		return nil, ErrClosed
	}
	if batchSize <= 0 {
		batchSize = embed.DefaultBatchSize
	}

	r := &run{result: Result{RunID: uuid.NewString()}}
	start := time.Now()
	r.total = ix.expectedTotal(ctx, limit)

	ix.logger.Info("index_started",
		slog.String("run_id", r.result.RunID),
		slog.Int("batch_size", batchSize),
		slog.Int("limit", limit),
		slog.Int("expected", r.total))

	if err := ix.renderer.Start(ctx); err != nil {
		ix.logger.Warn("renderer_start_failed", slog.String("error", err.Error()))
	}
	defer func() { _ = ix.renderer.Stop() }()

	loopErr := ix.indexAll(ctx, r, batchSize, limit)
	if loopErr != nil && !isCancellation(loopErr) {
		r.result.Duration = time.Since(start)
		ix.renderer.AddError(ui.ErrorEvent{Err: loopErr})
		ix.logger.Error("index_failed",
			slog.String("run_id", r.result.RunID),
			slog.Int("indexed", r.result.Indexed),
			slog.String("error", loopErr.Error()))
		return &r.result, loopErr
	}

	if err := ix.persist(r); err != nil {
		r.result.Duration = time.Since(start)
		return &r.result, errors.Join(loopErr, err)
	}
	ix.reconcile(ctx)

	r.result.Duration = time.Since(start)
	if loopErr != nil {
		ix.logger.Warn("index_cancelled",
			slog.String("run_id", r.result.RunID),
			slog.Int("indexed", r.result.Indexed))
		return &r.result, loopErr
	}

	ix.renderer.Complete(ui.CompletionStats{
		Publications: r.result.Indexed,
		Skipped:      r.result.Skipped,
		Batches:      r.result.Batches,
		Duration:     r.result.Duration,
		Warnings:     r.warns,
		Stages:       r.timings,
		Embedder: ui.EmbedderInfo{
			Backend:    backendName(ix.embedder),
			Model:      ix.embedder.ModelName(),
			Dimensions: ix.embedder.Dimensions(),
		},
	})
	ix.logger.Info("index_complete",
		slog.String("run_id", r.result.RunID),
		slog.Int("indexed", r.result.Indexed),
		slog.Int("skipped", r.result.Skipped),
		slog.Int("batches", r.result.Batches),
		slog.Duration("duration", r.result.Duration))
	return &r.result, nil
}

func (ix *PublicationIndexer) indexAll(ctx context.Context, r *run, batchSize, limit int) error {
	skip := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		pageSize := batchSize
		if limit > 0 {
			remaining := limit - skip
			if remaining <= 0 {
				return nil
			}
			pageSize = min(pageSize, remaining)
		}

		fetchStart := time.Now()
		pubs, err := ix.source.FetchPublications(ctx, skip, pageSize)
		r.timings.Fetch += time.Since(fetchStart)
		if err != nil {
			return fmt.Errorf("failed to fetch publications at offset %d: %w", skip, err)
		}
		if len(pubs) == 0 {
			return nil
		}
		skip += len(pubs)
		r.result.Batches++

		if err := ix.indexBatch(ctx, r, pubs); err != nil {
			return err
		}
		if len(pubs) < pageSize {
			return nil
		}
	}
}

// indexBatch embeds and stores one page.
func (ix *PublicationIndexer) indexBatch(ctx context.Context, r *run, pubs []graph.Publication) error {
	docs := make([]*store.Document, 0, len(pubs))
	skipped := 0
	for _, p := range pubs {
		r.seen++
		id := strings.TrimSpace(p.ID)
		if id == "" || strings.TrimSpace(p.Title) == "" {
			skipped++
			r.warns++
			ix.renderer.AddError(ui.ErrorEvent{
				Item:   displayID(p.ID),
				Err:    fmt.Errorf("publication has no id or title"),
				IsWarn: true,
			})
			ix.logger.Debug("publication_skipped", slog.String("id", p.ID))
			continue
		}
		docs = append(docs, &store.Document{
			ID:    id,
			Title: strings.TrimSpace(p.Title),
			Text:  DocumentText(p),
			Year:  p.Year,
		})
	}
	r.result.Skipped += skipped

	ix.renderer.UpdateProgress(ui.ProgressEvent{
		Stage:   ui.StageFetch,
		Current: r.seen,
		Total:   r.total,
		Message: fmt.Sprintf("batch %d: %d publications", r.result.Batches, len(pubs)),
	})

	if len(docs) == 0 {
		ix.metrics.RecordBatch(0, skipped, 0, nil)
		return nil
	}

	texts := make([]string, len(docs))
	ids := make([]string, len(docs))
	for i, d := range docs {
		texts[i] = d.Text
		ids[i] = d.ID
	}

	embedStart := time.Now()
	vecs, err := ix.embedder.EmbedBatch(ctx, texts)
	embedDur := time.Since(embedStart)
	r.timings.Embed += embedDur
	if err == nil && len(vecs) != len(docs) {
		err = perrors.New(perrors.ErrCodeEmbedFailed,
			fmt.Sprintf("embedder returned %d vectors for %d publications", len(vecs), len(docs)), nil)
	}
	if err != nil {
		ix.metrics.RecordBatch(0, skipped, embedDur, err)
		return fmt.Errorf("failed to embed batch %d: %w", r.result.Batches, err)
	}
	ix.renderer.UpdateProgress(ui.ProgressEvent{
		Stage:   ui.StageEmbed,
		Current: r.seen,
		Total:   r.total,
		Item:    docs[len(docs)-1].Title,
	})

	indexStart := time.Now()
	err = ix.upsert(ctx, ids, vecs, docs)
	r.timings.Index += time.Since(indexStart)
	ix.metrics.RecordBatch(len(docs), skipped, embedDur, err)
	if err != nil {
		return err
	}

	r.result.Indexed += len(docs)
	ix.renderer.UpdateProgress(ui.ProgressEvent{
		Stage:   ui.StageIndex,
		Current: r.seen,
		Total:   r.total,
		Item:    docs[len(docs)-1].Title,
	})
	ix.logger.Debug("index_batch",
		slog.Int("batch", r.result.Batches),
		slog.Int("indexed", len(docs)),
		slog.Int("skipped", skipped),
		slog.Duration("embed", embedDur))
	return nil
}

// upsert writes one batch to all three stores. Vector Add replaces existing
// ids and BM25 Index deletes before inserting, so re-runs never duplicate.
func (ix *PublicationIndexer) upsert(ctx context.Context, ids []string, vecs [][]float32, docs []*store.Document) error {
	if err := ix.vectors.Add(ctx, ids, vecs); err != nil {
		var dm store.ErrDimensionMismatch
		if errors.As(err, &dm) {
			return perrors.New(perrors.ErrCodeDimensionMismatch, "vector width does not match the index", err).
				WithSuggestion("run 'pubrag index --rebuild'")
		}
		return perrors.StorageError("failed to add vectors", err)
	}
	if err := ix.bm25.Index(ctx, docs); err != nil {
		return perrors.StorageError("failed to update BM25 index", err)
	}
	if err := ix.docs.Put(ctx, docs); err != nil {
		return perrors.StorageError("failed to store documents", err)
	}
	return nil
}

// persist saves the vector graph and writes the manifest.
func (ix *PublicationIndexer) persist(r *run) error {
	start := time.Now()
	ix.renderer.UpdateProgress(ui.ProgressEvent{Stage: ui.StageSave, Message: "saving index"})

	if err := ix.vectors.Save(ix.layout.VectorPath()); err != nil {
		return perrors.StorageError("failed to save vector store", err)
	}
	err := store.WriteManifest(ix.layout, &store.Manifest{
		Model:       ix.embedder.ModelName(),
		Dimensions:  ix.embedder.Dimensions(),
		Count:       ix.vectors.Count(),
		BM25Backend: ix.bm25.Backend(),
		RunID:       r.result.RunID,
		UpdatedAt:   time.Now().UTC(),
	})
	r.timings.Save += time.Since(start)
	if err != nil {
		return perrors.StorageError("failed to write manifest", err)
	}
	return nil
}

// reconcile drops entries that exist in only some stores. Failures are logged
// and never fail the run.
func (ix *PublicationIndexer) reconcile(ctx context.Context) {
	checker := NewConsistencyChecker(ix.docs, ix.bm25, ix.vectors)
	report, err := checker.Check(ctx)
	if err != nil {
		ix.logger.Warn("consistency_check_failed", slog.String("error", err.Error()))
		return
	}
	if len(report.Inconsistencies) == 0 {
		return
	}
	ix.logger.Warn("index_inconsistent",
		slog.Int("checked", report.Checked),
		slog.Int("issues", len(report.Inconsistencies)))
	if err := checker.Repair(ctx, report.Inconsistencies); err != nil {
		ix.logger.Warn("consistency_repair_failed", slog.String("error", err.Error()))
		return
	}
	if err := ix.vectors.Save(ix.layout.VectorPath()); err != nil {
		ix.logger.Warn("vector_save_failed", slog.String("error", err.Error()))
	}
}

// expectedTotal asks the source for a count when it can give one.
func (ix *PublicationIndexer) expectedTotal(ctx context.Context, limit int) int {
	counter, ok := ix.source.(publicationCounter)
	if !ok {
		return max(limit, 0)
	}
	n, err := counter.CountPublications(ctx)
	if err != nil {
		ix.logger.Debug("publication_count_failed", slog.String("error", err.Error()))
		return max(limit, 0)
	}
	if limit > 0 && int64(limit) < n {
		return limit
	}
	return int(n)
}

func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func backendName(e embed.Embedder) string {
	if c, ok := e.(*embed.CachedEmbedder); ok {
		e = c.Inner()
	}
	switch e.(type) {
	case *embed.OllamaEmbedder:
		return string(embed.ProviderOllama)
	case *embed.StaticEmbedder:
		return string(embed.ProviderStatic)
	default:
		return "custom"
	}
}

func displayID(id string) string {
	if strings.TrimSpace(id) == "" {
		return "(no id)"
	}
	return id
}
