package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ManifestVersion is bumped when the on-disk layout changes incompatibly.
const ManifestVersion = 1

// Layout names the files under a persist directory.
type Layout struct {
	Dir string
}

// NewLayout returns the layout rooted at persistDir.
func NewLayout(persistDir string) Layout { return Layout{Dir: persistDir} }

func (l Layout) VectorPath() string    { return filepath.Join(l.Dir, "vectors.hnsw") }
func (l Layout) DocumentsPath() string { return filepath.Join(l.Dir, "documents.db") }
func (l Layout) ManifestPath() string  { return filepath.Join(l.Dir, "manifest.json") }
func (l Layout) LockPath() string      { return filepath.Join(l.Dir, ".index.lock") }
func (l Layout) TelemetryPath() string { return filepath.Join(l.Dir, "telemetry.db") }

// BM25Path returns bm25.db for sqlite and the bm25.bleve directory for bleve.
func (l Layout) BM25Path(backend BM25Backend) string {
	if backend == BM25BackendBleve {
		return filepath.Join(l.Dir, "bm25.bleve")
	}
	return filepath.Join(l.Dir, "bm25.db")
}

// Manifest records what an index was built with.
type Manifest struct {
	Version     int         `json:"version"`
	Model       string      `json:"model"`
	Dimensions  int         `json:"dimensions"`
	Count       int         `json:"count"`
	BM25Backend BM25Backend `json:"bm25_backend"`
	RunID       string      `json:"run_id,omitempty"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// Compatible reports whether vectors from model at dims can join this index.
func (m *Manifest) Compatible(model string, dims int) bool {
	return m.Version == ManifestVersion && m.Model == model && m.Dimensions == dims
}

// ErrNoManifest means the persist directory has never been indexed.
var ErrNoManifest = errors.New("index manifest not found")

// ReadManifest loads the manifest, returning ErrNoManifest when absent.
func ReadManifest(l Layout) (*Manifest, error) {
	data, err := os.ReadFile(l.ManifestPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNoManifest
		}
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}
	return &m, nil
}

// WriteManifest stores m atomically.
func WriteManifest(l Layout, m *Manifest) error {
	if m.Version == 0 {
		m.Version = ManifestVersion
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode manifest: %w", err)
	}
	if err := os.MkdirAll(l.Dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tmp := l.ManifestPath() + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	if err := os.Rename(tmp, l.ManifestPath()); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to rename manifest: %w", err)
	}
	return nil
}

// RemoveIndexFiles deletes every index artifact except the lock file.
func RemoveIndexFiles(l Layout) error {
	paths := []string{
		l.VectorPath(),
		l.VectorPath() + ".meta",
		l.BM25Path(BM25BackendSQLite),
		l.BM25Path(BM25BackendSQLite) + "-wal",
		l.BM25Path(BM25BackendSQLite) + "-shm",
		l.BM25Path(BM25BackendBleve),
		l.DocumentsPath(),
		l.DocumentsPath() + "-wal",
		l.DocumentsPath() + "-shm",
		l.ManifestPath(),
	}
	for _, p := range paths {
		if err := os.RemoveAll(p); err != nil {
			return fmt.Errorf("failed to remove %s: %w", p, err)
		}
	}
	return nil
}
