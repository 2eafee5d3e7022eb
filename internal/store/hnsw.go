package store

import (
	"bufio"
	"context"
	"encoding/gob"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/coder/hnsw"
)

// HNSWStore implements VectorStore with coder/hnsw using cosine distance.
//
// Replaced and deleted vectors are dropped from the ID maps but stay in the
// graph as orphans; coder/hnsw misbehaves when its last node is deleted.
// Save compacts the graph once orphans outnumber live vectors.
type HNSWStore struct {
	mu     sync.RWMutex
	graph  *hnsw.Graph[uint64]
	config VectorStoreConfig

	idMap   map[string]uint64
	keyMap  map[uint64]string
	nextKey uint64

	closed bool
}

// hnswMetadata is the gob payload saved next to the graph.
type hnswMetadata struct {
	IDMap   map[string]uint64
	NextKey uint64
	Config  VectorStoreConfig
}

var _ VectorStore = (*HNSWStore)(nil)

// NewHNSWStore creates an empty store.
func NewHNSWStore(cfg VectorStoreConfig) (*HNSWStore, error) {
	if cfg.Dimensions <= 0 {
		return nil, fmt.Errorf("vector dimensions must be positive, got %d", cfg.Dimensions)
	}
	if cfg.M == 0 {
		cfg.M = 16
	}
	if cfg.EfSearch == 0 {
		cfg.EfSearch = 64
	}

	return &HNSWStore{
		graph:  newGraph(cfg),
		config: cfg,
		idMap:  make(map[string]uint64),
		keyMap: make(map[uint64]string),
	}, nil
}

func newGraph(cfg VectorStoreConfig) *hnsw.Graph[uint64] {
	g := hnsw.NewGraph[uint64]()
	g.Distance = hnsw.CosineDistance
	g.M = cfg.M
	g.EfSearch = cfg.EfSearch
	g.Ml = 0.25
	return g
}

// Add inserts vectors, replacing existing IDs.
func (s *HNSWStore) Add(_ context.Context, ids []string, vectors [][]float32) error {
	if len(ids) == 0 {
		return nil
	}
	if len(ids) != len(vectors) {
		return fmt.Errorf("ids and vectors length mismatch: %d vs %d", len(ids), len(vectors))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}
	for _, v := range vectors {
		if len(v) != s.config.Dimensions {
			return ErrDimensionMismatch{Expected: s.config.Dimensions, Got: len(v)}
		}
	}

	for i, id := range ids {
		if old, ok := s.idMap[id]; ok {
			delete(s.keyMap, old)
			delete(s.idMap, id)
		}

		key := s.nextKey
		s.nextKey++

		vec := make([]float32, len(vectors[i]))
		copy(vec, vectors[i])
		normalizeVectorInPlace(vec)

		s.graph.Add(hnsw.MakeNode(key, vec))
		s.idMap[id] = key
		s.keyMap[key] = id
	}
	return nil
}

// Search returns up to k live vectors nearest to query.
func (s *HNSWStore) Search(_ context.Context, query []float32, k int) ([]*VectorResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}
	if len(query) != s.config.Dimensions {
		return nil, ErrDimensionMismatch{Expected: s.config.Dimensions, Got: len(query)}
	}
	if k <= 0 || s.graph.Len() == 0 || len(s.idMap) == 0 {
		return []*VectorResult{}, nil
	}

	q := make([]float32, len(query))
	copy(q, query)
	normalizeVectorInPlace(q)

	// Over-fetch by the orphan count so lazy deletes cannot starve k.
	orphans := s.graph.Len() - len(s.idMap)
	nodes := s.graph.Search(q, k+orphans)

	results := make([]*VectorResult, 0, k)
	for _, node := range nodes {
		id, ok := s.keyMap[node.Key]
		if !ok {
			continue
		}
		d := s.graph.Distance(q, node.Value)
		results = append(results, &VectorResult{ID: id, Distance: d, Score: distanceToScore(d)})
		if len(results) == k {
			break
		}
	}
	return results, nil
}

// Delete removes ids. Unknown ids are ignored.
func (s *HNSWStore) Delete(_ context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}
	for _, id := range ids {
		if key, ok := s.idMap[id]; ok {
			delete(s.keyMap, key)
			delete(s.idMap, id)
		}
	}
	return nil
}

// Contains reports whether id is stored.
func (s *HNSWStore) Contains(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return false
	}
	_, ok := s.idMap[id]
	return ok
}

// Count returns the number of live vectors.
func (s *HNSWStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0
	}
	return len(s.idMap)
}

// AllIDs implements VectorStore.
func (s *HNSWStore) AllIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.idMap))
	for id := range s.idMap {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Dimensions returns the configured vector width.
func (s *HNSWStore) Dimensions() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.config.Dimensions
}

// HNSWStats counts live vectors and the orphans left by replaced or
// deleted ones.
type HNSWStats struct {
	Live       int
	GraphNodes int
	Orphans    int
}

// Stats returns the current counts.
func (s *HNSWStore) Stats() HNSWStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return HNSWStats{}
	}
	return s.statsLocked()
}

func (s *HNSWStore) statsLocked() HNSWStats {
	nodes := s.graph.Len()
	return HNSWStats{Live: len(s.idMap), GraphNodes: nodes, Orphans: nodes - len(s.idMap)}
}

// NeedsCompaction reports whether orphans outnumber live vectors.
func (st HNSWStats) NeedsCompaction() bool {
	return st.Orphans > 0 && st.Orphans > st.Live
}

// Compact rebuilds the graph from the live vectors, dropping every orphan.
func (s *HNSWStore) Compact() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	return s.compactLocked()
}

func (s *HNSWStore) compactLocked() error {
	before := s.statsLocked()
	if before.Orphans == 0 {
		return nil
	}

	keys := make([]uint64, 0, len(s.keyMap))
	for key := range s.keyMap {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	g := newGraph(s.config)
	for _, key := range keys {
		vec, ok := s.graph.Lookup(key)
		if !ok {
			return fmt.Errorf("vector for %q missing from graph", s.keyMap[key])
		}
		g.Add(hnsw.MakeNode(key, vec))
	}
	s.graph = g

	slog.Debug("vector_store_compacted",
		slog.Int("live", before.Live),
		slog.Int("orphans_removed", before.Orphans))
	return nil
}

// Save writes the graph to path and the ID maps to path+".meta", each via a
// temp file and rename. It compacts first when NeedsCompaction holds.
func (s *HNSWStore) Save(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}
	if s.statsLocked().NeedsCompaction() {
		if err := s.compactLocked(); err != nil {
			return fmt.Errorf("failed to compact graph: %w", err)
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("failed to create index file: %w", err)
	}
	if err := s.graph.Export(f); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to export graph: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to close index file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to rename index file: %w", err)
	}

	if err := s.saveMetadata(path + ".meta"); err != nil {
		return fmt.Errorf("failed to save metadata: %w", err)
	}
	return nil
}

func (s *HNSWStore) saveMetadata(path string) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create temp metadata file: %w", err)
	}

	meta := hnswMetadata{IDMap: s.idMap, NextKey: s.nextKey, Config: s.config}
	if err := gob.NewEncoder(f).Encode(meta); err != nil {
		if cerr := f.Close(); cerr != nil {
			slog.Warn("failed to close temp file during cleanup", slog.String("error", cerr.Error()))
		}
		_ = os.Remove(tmp)
		return fmt.Errorf("encode metadata: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("close metadata file: %w", err)
	}
	return os.Rename(tmp, path)
}

// Load replaces the store's contents with the graph saved at path.
func (s *HNSWStore) Load(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	meta, err := readMetadata(path + ".meta")
	if err != nil {
		return fmt.Errorf("failed to load metadata: %w", err)
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open index file: %w", err)
	}
	defer func() { _ = f.Close() }()

	g := newGraph(meta.Config)
	// Import needs an io.ByteReader.
	if err := g.Import(bufio.NewReader(f)); err != nil {
		return fmt.Errorf("failed to import graph: %w", err)
	}

	s.graph = g
	s.config = meta.Config
	s.idMap = meta.IDMap
	if s.idMap == nil {
		s.idMap = make(map[string]uint64)
	}
	s.nextKey = meta.NextKey
	s.keyMap = make(map[uint64]string, len(s.idMap))
	for id, key := range s.idMap {
		s.keyMap[key] = id
	}
	return nil
}

func readMetadata(path string) (*hnswMetadata, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	var meta hnswMetadata
	if err := gob.NewDecoder(f).Decode(&meta); err != nil {
		return nil, fmt.Errorf("decode hnsw metadata: %w", err)
	}
	return &meta, nil
}

// ReadHNSWDimensions returns the width recorded next to a saved graph, or 0
// when none has been saved.
func ReadHNSWDimensions(vectorPath string) (int, error) {
	meta, err := readMetadata(vectorPath + ".meta")
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	return meta.Config.Dimensions, nil
}

// Close releases the graph. It is idempotent.
func (s *HNSWStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.graph = nil
	return nil
}

func normalizeVectorInPlace(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return
	}
	inv := float32(1.0 / math.Sqrt(sum))
	for i := range v {
		v[i] *= inv
	}
}

// distanceToScore maps cosine distance (0..2) to a similarity in [0,1].
func distanceToScore(d float32) float32 {
	score := 1 - d/2
	switch {
	case score < 0:
		return 0
	case score > 1:
		return 1
	}
	return score
}
