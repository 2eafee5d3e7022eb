package store

import (
	"fmt"
	"os"
)

// BM25Backend names a BM25Index implementation.
type BM25Backend string

const (
	// BM25BackendSQLite is SQLite FTS5 in WAL mode. Several processes may
	// read it while one writes.
	BM25BackendSQLite BM25Backend = "sqlite"

	// BM25BackendBleve is Bleve v2. Its BoltDB lock admits one process.
	BM25BackendBleve BM25Backend = "bleve"
)

// ParseBM25Backend validates a configured backend name. Empty means sqlite.
func ParseBM25Backend(s string) (BM25Backend, error) {
	switch BM25Backend(s) {
	case BM25BackendSQLite, "":
		return BM25BackendSQLite, nil
	case BM25BackendBleve:
		return BM25BackendBleve, nil
	default:
		return "", fmt.Errorf("unknown BM25 backend: %s (valid options: sqlite, bleve)", s)
	}
}

// NewBM25Index opens the index for backend at path. An empty path gives an
// in-memory index.
func NewBM25Index(backend BM25Backend, path string) (BM25Index, error) {
	b, err := ParseBM25Backend(string(backend))
	if err != nil {
		return nil, err
	}
	if b == BM25BackendBleve {
		return NewBleveBM25Index(path, DefaultBM25Config())
	}
	return NewSQLiteBM25Index(path, DefaultBM25Config())
}

// DetectBM25Backend reports which backend has an index under layout, or ""
// when there is none.
func DetectBM25Backend(l Layout) BM25Backend {
	if fileExists(l.BM25Path(BM25BackendSQLite)) {
		return BM25BackendSQLite
	}
	if dirExists(l.BM25Path(BM25BackendBleve)) {
		return BM25BackendBleve
	}
	return ""
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
