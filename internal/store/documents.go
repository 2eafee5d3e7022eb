package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
)

// DocumentStore keeps the title, text and year of each indexed publication
// so search hits can be displayed without a graph round-trip.
type DocumentStore struct {
	mu     sync.RWMutex
	db     *sql.DB
	closed bool
}

// NewDocumentStore opens or creates the table at path. An empty path gives
// an in-memory store.
func NewDocumentStore(path string) (*DocumentStore, error) {
	db, err := openSQLite(path)
	if err != nil {
		return nil, err
	}
	_, err = db.Exec(`
	CREATE TABLE IF NOT EXISTS documents (
		id    TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		text  TEXT NOT NULL,
		year  INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_documents_year ON documents(year);
	`)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize documents schema: %w", err)
	}
	return &DocumentStore{db: db}, nil
}

// Put upserts docs in one transaction.
func (s *DocumentStore) Put(ctx context.Context, docs []*Document) error {
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

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR REPLACE INTO documents(id, title, text, year) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, d := range docs {
		if _, err := stmt.ExecContext(ctx, d.ID, d.Title, d.Text, d.Year); err != nil {
			return fmt.Errorf("failed to store document %s: %w", d.ID, err)
		}
	}
	return tx.Commit()
}

// Get returns the documents for ids keyed by id. Unknown ids are absent.
func (s *DocumentStore) Get(ctx context.Context, ids []string) (map[string]*Document, error) {
	out := make(map[string]*Document, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}

	in, args := inClause(ids)
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, title, text, year FROM documents WHERE id IN ("+in+")", args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		d := &Document{}
		if err := rows.Scan(&d.ID, &d.Title, &d.Text, &d.Year); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		out[d.ID] = d
	}
	return out, rows.Err()
}

// Delete removes ids.
func (s *DocumentStore) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	in, args := inClause(ids)
	if _, err := s.db.ExecContext(ctx, "DELETE FROM documents WHERE id IN ("+in+")", args...); err != nil {
		return fmt.Errorf("failed to delete documents: %w", err)
	}
	return nil
}

// Count returns the number of stored documents.
func (s *DocumentStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, ErrStoreClosed
	}
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`).Scan(&n)
	return n, err
}

// AllIDs returns every stored id in ascending order.
func (s *DocumentStore) AllIDs(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM documents ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Close closes the database. It is idempotent.
func (s *DocumentStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return s.db.Close()
}
