package telemetry

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // registers "sqlite"
)

// MaxZeroResultQueries bounds the persisted zero-result buffer.
const MaxZeroResultQueries = 100

const schema = `
CREATE TABLE IF NOT EXISTS query_mode_stats (
	date TEXT NOT NULL,
	mode TEXT NOT NULL,
	count INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (date, mode)
);

CREATE TABLE IF NOT EXISTS query_terms (
	term TEXT PRIMARY KEY,
	count INTEGER NOT NULL DEFAULT 1,
	last_seen TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_query_terms_count ON query_terms(count DESC);

CREATE TABLE IF NOT EXISTS zero_result_queries (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	query TEXT NOT NULL,
	timestamp TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS query_latency_stats (
	date TEXT NOT NULL,
	bucket TEXT NOT NULL,
	count INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (date, bucket)
);
`

// Store persists the query log in SQLite.
type Store struct {
	db *sql.DB
}

var _ Sink = (*Store)(nil)

// Open opens or creates the query log at path. An empty path opens an
// in-memory database.
func Open(path string) (*Store, error) {
	dsn := ":memory:"
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create telemetry directory: %w", err)
		}
		dsn = path
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open telemetry database: %w", err)
	}
	db.SetMaxOpenConns(1)

	for _, stmt := range []string{"PRAGMA journal_mode = WAL", "PRAGMA busy_timeout = 5000", schema} {
		if _, err := db.Exec(stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("init telemetry schema: %w", err)
		}
	}
	return &Store{db: db}, nil
}

// SaveModeCounts adds counts to the day's per-mode totals.
func (s *Store) SaveModeCounts(date string, counts map[string]int64) error {
	return s.upsertDaily(`
		INSERT INTO query_mode_stats (date, mode, count)
		VALUES (?, ?, ?)
		ON CONFLICT(date, mode) DO UPDATE SET count = count + excluded.count
	`, date, counts)
}

// ModeCounts sums per-mode counts over an inclusive date range.
func (s *Store) ModeCounts(from, to string) (map[string]int64, error) {
	return querySums[string](s.db, `
		SELECT mode, SUM(count) FROM query_mode_stats
		WHERE date >= ? AND date <= ?
		GROUP BY mode
	`, from, to)
}

// UpsertTermCounts adds to each term's total.
func (s *Store) UpsertTermCounts(terms map[string]int64) error {
	if len(terms) == 0 {
		return nil
	}
	return s.inTx(`
		INSERT INTO query_terms (term, count, last_seen)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(term) DO UPDATE SET
			count = count + excluded.count,
			last_seen = CURRENT_TIMESTAMP
	`, func(stmt *sql.Stmt) error {
		for term, n := range terms {
			if _, err := stmt.Exec(term, n); err != nil {
				return fmt.Errorf("upsert term count: %w", err)
			}
		}
		return nil
	})
}

// TopTerms returns the limit most frequent terms.
func (s *Store) TopTerms(limit int) ([]TermCount, error) {
	rows, err := s.db.Query(`SELECT term, count FROM query_terms ORDER BY count DESC, term LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query top terms: %w", err)
	}
	defer rows.Close()

	var terms []TermCount
	for rows.Next() {
		var tc TermCount
		if err := rows.Scan(&tc.Term, &tc.Count); err != nil {
			return nil, fmt.Errorf("scan term: %w", err)
		}
		terms = append(terms, tc)
	}
	return terms, rows.Err()
}

// AddZeroResultQueries appends queries and keeps the newest
// MaxZeroResultQueries.
func (s *Store) AddZeroResultQueries(queries []string, at time.Time) error {
	err := s.inTx(`INSERT INTO zero_result_queries (query, timestamp) VALUES (?, ?)`, func(stmt *sql.Stmt) error {
		for _, q := range queries {
			if _, err := stmt.Exec(q, at.UTC()); err != nil {
				return fmt.Errorf("insert zero-result query: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`
		DELETE FROM zero_result_queries
		WHERE id NOT IN (SELECT id FROM zero_result_queries ORDER BY id DESC LIMIT ?)
	`, MaxZeroResultQueries)
	if err != nil {
		return fmt.Errorf("trim zero-result queries: %w", err)
	}
	return nil
}

// ZeroResultQueries returns up to limit queries, newest first.
func (s *Store) ZeroResultQueries(limit int) ([]string, error) {
	rows, err := s.db.Query(`SELECT query FROM zero_result_queries ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query zero-result queries: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var q string
		if err := rows.Scan(&q); err != nil {
			return nil, fmt.Errorf("scan query: %w", err)
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

// SaveLatencyCounts adds counts to the day's latency histogram.
func (s *Store) SaveLatencyCounts(date string, counts map[LatencyBucket]int64) error {
	plain := make(map[string]int64, len(counts))
	for b, n := range counts {
		plain[string(b)] = n
	}
	return s.upsertDaily(`
		INSERT INTO query_latency_stats (date, bucket, count)
		VALUES (?, ?, ?)
		ON CONFLICT(date, bucket) DO UPDATE SET count = count + excluded.count
	`, date, plain)
}

// LatencyCounts sums the histogram over an inclusive date range.
func (s *Store) LatencyCounts(from, to string) (map[LatencyBucket]int64, error) {
	return querySums[LatencyBucket](s.db, `
		SELECT bucket, SUM(count) FROM query_latency_stats
		WHERE date >= ? AND date <= ?
		GROUP BY bucket
	`, from, to)
}

// Report reads a Snapshot of everything persisted between from and to.
// Terms and zero-result queries are not dated and are always included;
// ZeroResultCount counts the retained zero-result queries.
func (s *Store) Report(from, to string, topN int) (*Snapshot, error) {
	modes, err := s.ModeCounts(from, to)
	if err != nil {
		return nil, err
	}
	terms, err := s.TopTerms(topN)
	if err != nil {
		return nil, err
	}
	zero, err := s.ZeroResultQueries(MaxZeroResultQueries)
	if err != nil {
		return nil, err
	}
	latency, err := s.LatencyCounts(from, to)
	if err != nil {
		return nil, err
	}

	snap := &Snapshot{
		Modes:             modes,
		TopTerms:          terms,
		ZeroResultQueries: zero,
		Latency:           latency,
		ZeroResultCount:   int64(len(zero)),
	}
	for _, n := range modes {
		snap.TotalQueries += n
	}
	if t, err := time.Parse(time.DateOnly, from); err == nil {
		snap.Since = t
	}
	return snap, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) upsertDaily(stmt, date string, counts map[string]int64) error {
	return s.inTx(stmt, func(st *sql.Stmt) error {
		for k, n := range counts {
			if _, err := st.Exec(date, k, n); err != nil {
				return fmt.Errorf("upsert daily count: %w", err)
			}
		}
		return nil
	})
}

func (s *Store) inTx(query string, fn func(*sql.Stmt) error) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.Prepare(query)
	if err != nil {
		return fmt.Errorf("prepare statement: %w", err)
	}
	defer stmt.Close()

	if err := fn(stmt); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func querySums[K ~string](db *sql.DB, query string, args ...any) (map[K]int64, error) {
	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query counts: %w", err)
	}
	defer rows.Close()

	out := map[K]int64{}
	for rows.Next() {
		var k string
		var n int64
		if err := rows.Scan(&k, &n); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		out[K(k)] = n
	}
	return out, rows.Err()
}
