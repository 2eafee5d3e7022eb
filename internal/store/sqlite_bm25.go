package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	_ "modernc.org/sqlite" // pure Go driver, registers "sqlite"
)

// SQLiteBM25Index implements BM25Index with an SQLite FTS5 table.
// WAL mode lets `pubrag serve` read while `pubrag index` writes.
type SQLiteBM25Index struct {
	mu        sync.RWMutex
	db        *sql.DB
	path      string
	config    BM25Config
	closed    bool
	stopWords map[string]struct{}
}

var _ BM25Index = (*SQLiteBM25Index)(nil)

// sqlitePragmas are applied to every connection pool opened by this package.
var sqlitePragmas = []string{
	"PRAGMA journal_mode = WAL",
	"PRAGMA busy_timeout = 5000",
	"PRAGMA synchronous = NORMAL",
	"PRAGMA temp_store = MEMORY",
}

// openSQLite opens path (":memory:" when empty) with a single connection and
// the shared pragmas.
func openSQLite(path string) (*sql.DB, error) {
	dsn := ":memory:"
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", filepath.Dir(path), err)
		}
		dsn = path
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One writer; also keeps an in-memory database on a single connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	for _, p := range sqlitePragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}
	return db, nil
}

// validateSQLiteIntegrity reports corruption of an existing FTS database.
// A missing file is valid.
func validateSQLiteIntegrity(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	db, err := sql.Open("sqlite", path+"?mode=ro")
	if err != nil {
		return fmt.Errorf("cannot open for validation: %w", err)
	}
	defer func() { _ = db.Close() }()

	var result string
	if err := db.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check failed: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("database corrupted: %s", result)
	}

	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='fts_publications'`).Scan(&count); err != nil {
		return fmt.Errorf("cannot query schema: %w", err)
	}
	if count == 0 {
		return fmt.Errorf("FTS5 table 'fts_publications' missing")
	}
	return nil
}

// NewSQLiteBM25Index opens or creates the index at path. An empty path gives
// an in-memory index. A corrupted file is removed and recreated empty.
func NewSQLiteBM25Index(path string, config BM25Config) (*SQLiteBM25Index, error) {
	if path != "" {
		if verr := validateSQLiteIntegrity(path); verr != nil {
			slog.Warn("sqlite_bm25_index_corrupted",
				slog.String("path", path),
				slog.String("error", verr.Error()))
			if rerr := os.Remove(path); rerr != nil && !os.IsNotExist(rerr) {
				return nil, fmt.Errorf("BM25 index corrupted at %s and cannot remove: %w (original error: %v)", path, rerr, verr)
			}
			_ = os.Remove(path + "-wal")
			_ = os.Remove(path + "-shm")
			slog.Info("sqlite_bm25_index_cleared",
				slog.String("path", path),
				slog.String("reason", "corruption detected, please reindex"))
		}
	}

	db, err := openSQLite(path)
	if err != nil {
		return nil, err
	}

	idx := &SQLiteBM25Index{
		db:        db,
		path:      path,
		config:    config,
		stopWords: BuildStopWordMap(config.StopWords),
	}
	if err := idx.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return idx, nil
}

func (s *SQLiteBM25Index) initSchema() error {
	_, err := s.db.Exec(`
	CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY
	);

	-- doc_id is stored but not searchable. content holds pre-analyzed text.
	CREATE VIRTUAL TABLE IF NOT EXISTS fts_publications USING fts5(
		doc_id UNINDEXED,
		content,
		tokenize='porter unicode61'
	);

	CREATE TABLE IF NOT EXISTS doc_ids (
		doc_id TEXT PRIMARY KEY
	);

	INSERT OR IGNORE INTO schema_version (version) VALUES (1);
	`)
	return err
}

// Backend implements BM25Index.
func (s *SQLiteBM25Index) Backend() BM25Backend { return BM25BackendSQLite }

// Index implements BM25Index. FTS5 has no REPLACE, so rows are deleted first.
func (s *SQLiteBM25Index) Index(ctx context.Context, docs []*Document) error {
	if len(docs) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	del, err := tx.PrepareContext(ctx, `DELETE FROM fts_publications WHERE doc_id = ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare delete statement: %w", err)
	}
	defer func() { _ = del.Close() }()

	ins, err := tx.PrepareContext(ctx, `INSERT INTO fts_publications(doc_id, content) VALUES (?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare FTS statement: %w", err)
	}
	defer func() { _ = ins.Close() }()

	track, err := tx.PrepareContext(ctx, `INSERT OR REPLACE INTO doc_ids(doc_id) VALUES (?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare ID statement: %w", err)
	}
	defer func() { _ = track.Close() }()

	for _, doc := range docs {
		content := strings.Join(analyze(doc.Text, s.config, s.stopWords), " ")
		if _, err := del.ExecContext(ctx, doc.ID); err != nil {
			return fmt.Errorf("failed to delete existing document %s: %w", doc.ID, err)
		}
		if _, err := ins.ExecContext(ctx, doc.ID, content); err != nil {
			return fmt.Errorf("failed to index document %s: %w", doc.ID, err)
		}
		if _, err := track.ExecContext(ctx, doc.ID); err != nil {
			return fmt.Errorf("failed to track document ID %s: %w", doc.ID, err)
		}
	}
	return tx.Commit()
}

// Search implements BM25Index. Query terms are OR-ed so partial matches rank
// below full ones instead of disappearing.
func (s *SQLiteBM25Index) Search(ctx context.Context, query string, limit int) ([]*BM25Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}

	tokens := analyze(query, s.config, s.stopWords)
	if len(tokens) == 0 || limit <= 0 {
		return []*BM25Result{}, nil
	}

	quoted := make([]string, len(tokens))
	for i, t := range tokens {
		quoted[i] = `"` + t + `"`
	}
	match := strings.Join(quoted, " OR ")

	// bm25() is negative, lower is better.
	rows, err := s.db.QueryContext(ctx, `
		SELECT doc_id, bm25(fts_publications) AS score
		FROM fts_publications
		WHERE fts_publications MATCH ?
		ORDER BY score
		LIMIT ?`, match, limit)
	if err != nil {
		if strings.Contains(err.Error(), "fts5:") || strings.Contains(err.Error(), "syntax error") {
			return []*BM25Result{}, nil
		}
		return nil, fmt.Errorf("search failed: %w", err)
	}
	defer func() { _ = rows.Close() }()

	results := []*BM25Result{}
	for rows.Next() {
		var id string
		var score float64
		if err := rows.Scan(&id, &score); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		results = append(results, &BM25Result{DocID: id, Score: -score, MatchedTerms: tokens})
	}
	return results, rows.Err()
}

// Delete implements BM25Index.
func (s *SQLiteBM25Index) Delete(ctx context.Context, docIDs []string) error {
	if len(docIDs) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	in, args := inClause(docIDs)
	if _, err := tx.ExecContext(ctx, "DELETE FROM fts_publications WHERE doc_id IN ("+in+")", args...); err != nil {
		return fmt.Errorf("failed to delete from FTS: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM doc_ids WHERE doc_id IN ("+in+")", args...); err != nil {
		return fmt.Errorf("failed to delete from doc_ids: %w", err)
	}
	return tx.Commit()
}

// AllIDs implements BM25Index.
func (s *SQLiteBM25Index) AllIDs() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}

	rows, err := s.db.Query(`SELECT doc_id FROM doc_ids ORDER BY doc_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query IDs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan ID: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Stats implements BM25Index.
func (s *SQLiteBM25Index) Stats() *IndexStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return &IndexStats{}
	}
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM doc_ids`).Scan(&n); err != nil {
		return &IndexStats{}
	}
	return &IndexStats{DocumentCount: n}
}

// Close checkpoints the WAL and closes the database. It is idempotent.
func (s *SQLiteBM25Index) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return s.db.Close()
}

func inClause(ids []string) (string, []any) {
	ph := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		ph[i] = "?"
		args[i] = id
	}
	return strings.Join(ph, ","), args
}
