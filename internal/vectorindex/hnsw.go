package vectorindex

import (
	"bufio"
	"context"
	"encoding/gob"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/coder/hnsw"
	"github.com/gofrs/flock"
)

// searchKFloor is the first candidate-list size tried for a scoped search.
// If too few in-scope results survive filtering, it doubles until maxSearchK
// is reached, per the scoped-fallback algorithm's "widen the net" step.
const searchKFloor = 32

// maxSearchK bounds the exponential search-K expansion so a narrow
// department scope over a huge graph can't turn one query into an
// unbounded linear scan.
const maxSearchK = 4096

// hnswMetadata is the gob-encoded sidecar persisted next to the graph file.
// It carries everything needed to reconstruct the id mappings and replay
// the configuration the graph was built with.
type hnswMetadata struct {
	IDMap       map[string]uint64
	Departments map[string]string
	NextKey     uint64
	Config      Config
}

// HNSWIndex is a coder/hnsw-backed Index, file-persisted with atomic
// tmp+rename writes and a gob metadata sidecar.
type HNSWIndex struct {
	mu     sync.RWMutex
	path   string
	graph  *hnsw.Graph[uint64]
	config Config

	idMap       map[string]uint64 // chunk ID -> graph key
	keyMap      map[uint64]string // graph key -> chunk ID
	departments map[string]string // chunk ID -> department slug
	nextKey     uint64

	lock       *flock.Flock
	lastReload time.Time
	closed     bool

	logger *slog.Logger
}

// Open creates or loads an HNSWIndex rooted at path (the graph file;
// "<path>.meta" holds the sidecar, "<path>.lock" guards rebuilds across
// processes). If path exists it is loaded; otherwise an empty index backed
// by cfg is created.
func Open(path string, cfg Config, logger *slog.Logger) (*HNSWIndex, error) {
	if cfg.Metric == "" {
		cfg.Metric = MetricCosine
	}
	if cfg.M == 0 {
		cfg.M = 16
	}
	if cfg.EfSearch == 0 {
		cfg.EfSearch = 20
	}
	if logger == nil {
		logger = slog.Default()
	}

	idx := &HNSWIndex{
		path:        path,
		config:      cfg,
		idMap:       make(map[string]uint64),
		keyMap:      make(map[uint64]string),
		departments: make(map[string]string),
		lock:        flock.New(path + ".lock"),
		logger:      logger,
	}
	idx.resetGraph()

	if _, err := os.Stat(path); err == nil {
		if err := idx.load(); err != nil {
			return nil, fmt.Errorf("vectorindex: load %s: %w", path, err)
		}
	}

	return idx, nil
}

func (idx *HNSWIndex) resetGraph() {
	graph := hnsw.NewGraph[uint64]()
	switch idx.config.Metric {
	case MetricL2:
		graph.Distance = hnsw.EuclideanDistance
	default:
		graph.Distance = hnsw.CosineDistance
	}
	graph.M = idx.config.M
	graph.EfSearch = idx.config.EfSearch
	graph.Ml = 0.25
	idx.graph = graph
}

// Upsert inserts or replaces vectors. Replacing an existing chunk ID uses
// lazy deletion (orphan the old key, never call graph.Delete) because
// coder/hnsw corrupts its graph when the last-inserted node is removed.
func (idx *HNSWIndex) Upsert(ctx context.Context, chunkIDs []string, departmentSlugs []string, vectors [][]float32) error {
	if len(chunkIDs) == 0 {
		return nil
	}
	if len(chunkIDs) != len(vectors) || len(chunkIDs) != len(departmentSlugs) {
		return fmt.Errorf("vectorindex: chunkIDs/departmentSlugs/vectors length mismatch")
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	if idx.closed {
		return fmt.Errorf("vectorindex: index is closed")
	}

	for _, v := range vectors {
		if len(v) != idx.config.Dimensions {
			return ErrDimensionMismatch{Expected: idx.config.Dimensions, Got: len(v)}
		}
	}

	for i, id := range chunkIDs {
		if existing, ok := idx.idMap[id]; ok {
			delete(idx.keyMap, existing)
			delete(idx.idMap, id)
		}

		key := idx.nextKey
		idx.nextKey++

		vec := make([]float32, len(vectors[i]))
		copy(vec, vectors[i])
		if idx.config.Metric == MetricCosine {
			normalizeInPlace(vec)
		}

		idx.graph.Add(hnsw.MakeNode(key, vec))
		idx.idMap[id] = key
		idx.keyMap[key] = id
		idx.departments[id] = departmentSlugs[i]
	}

	return nil
}

// Delete removes chunk IDs from the index via lazy deletion.
func (idx *HNSWIndex) Delete(ctx context.Context, chunkIDs []string) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if idx.closed {
		return fmt.Errorf("vectorindex: index is closed")
	}

	for _, id := range chunkIDs {
		if key, ok := idx.idMap[id]; ok {
			delete(idx.keyMap, key)
			delete(idx.idMap, id)
			delete(idx.departments, id)
		}
	}
	return nil
}

// Search runs the scoped-fallback search: it asks the graph for an
// expanding candidate list until enough results fall within scopes survive,
// or maxSearchK is reached. An empty scopes slice means unscoped
// (company-wide) search.
func (idx *HNSWIndex) Search(ctx context.Context, query []float32, k int, scopes []string) ([]Result, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if idx.closed {
		return nil, fmt.Errorf("vectorindex: index is closed")
	}
	if len(query) != idx.config.Dimensions {
		return nil, ErrDimensionMismatch{Expected: idx.config.Dimensions, Got: len(query)}
	}
	if idx.graph.Len() == 0 {
		return nil, nil
	}

	q := make([]float32, len(query))
	copy(q, query)
	if idx.config.Metric == MetricCosine {
		normalizeInPlace(q)
	}

	scopeSet := make(map[string]struct{}, len(scopes))
	for _, s := range scopes {
		scopeSet[s] = struct{}{}
	}

	searchK := searchKFloor
	if searchK < k*4 {
		searchK = k * 4
	}

	var results []Result
	for {
		nodes := idx.graph.Search(q, searchK)
		results = results[:0]
		for _, node := range nodes {
			id, ok := idx.keyMap[node.Key]
			if !ok {
				continue
			}
			if len(scopeSet) > 0 {
				if _, inScope := scopeSet[idx.departments[id]]; !inScope {
					continue
				}
			}
			distance := idx.graph.Distance(q, node.Value)
			results = append(results, Result{
				ChunkID:        id,
				DepartmentSlug: idx.departments[id],
				Distance:       distance,
				Score:          distanceToScore(distance, idx.config.Metric),
			})
			if len(results) >= k {
				break
			}
		}

		if len(results) >= k || searchK >= maxSearchK || searchK >= idx.graph.Len() {
			break
		}
		searchK *= 2
		if searchK > maxSearchK {
			searchK = maxSearchK
		}
	}

	return results, nil
}

// rebuildBatchSize is the number of chunks Rebuild inserts into the fresh
// graph between batches.
const rebuildBatchSize = 256

// Rebuild replaces the live graph with a brand-new one built from chunks,
// inserted in the order given, then persists it. Unlike Upsert/Delete's
// lazy deletion, a fresh graph has no orphaned nodes to begin with: every
// key in it is live. If chunks is empty, Rebuild aborts without touching
// the graph or the file on disk.
func (idx *HNSWIndex) Rebuild(chunks []RebuildChunk) error {
	idx.mu.Lock()

	if idx.closed {
		idx.mu.Unlock()
		return fmt.Errorf("vectorindex: index is closed")
	}
	if len(chunks) == 0 {
		idx.mu.Unlock()
		return nil
	}

	idx.resetGraph()
	idMap := make(map[string]uint64, len(chunks))
	keyMap := make(map[uint64]string, len(chunks))
	departments := make(map[string]string, len(chunks))
	var nextKey uint64

	for start := 0; start < len(chunks); start += rebuildBatchSize {
		end := start + rebuildBatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		for _, c := range chunks[start:end] {
			if len(c.Vector) != idx.config.Dimensions {
				idx.mu.Unlock()
				return ErrDimensionMismatch{Expected: idx.config.Dimensions, Got: len(c.Vector)}
			}

			vec := make([]float32, len(c.Vector))
			copy(vec, c.Vector)
			if idx.config.Metric == MetricCosine {
				normalizeInPlace(vec)
			}

			key := nextKey
			nextKey++
			idx.graph.Add(hnsw.MakeNode(key, vec))
			idMap[c.ChunkID] = key
			keyMap[key] = c.ChunkID
			departments[c.ChunkID] = c.Department
		}
	}

	idx.idMap = idMap
	idx.keyMap = keyMap
	idx.departments = departments
	idx.nextKey = nextKey
	idx.mu.Unlock()

	return idx.Save()
}

// Count returns the number of live (non-orphaned) vectors.
func (idx *HNSWIndex) Count() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	if idx.closed {
		return 0
	}
	return len(idx.idMap)
}

// Save persists the graph and metadata sidecar atomically, holding the
// cross-process rebuild lock for the duration of the write so a concurrent
// loader never observes a half-written pair of files.
func (idx *HNSWIndex) Save() error {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if idx.closed {
		return fmt.Errorf("vectorindex: index is closed")
	}

	if err := idx.lock.Lock(); err != nil {
		return fmt.Errorf("vectorindex: acquire rebuild lock: %w", err)
	}
	defer func() {
		if err := idx.lock.Unlock(); err != nil {
			idx.logger.Warn("vectorindex: release rebuild lock failed", slog.String("error", err.Error()))
		}
	}()

	if err := os.MkdirAll(filepath.Dir(idx.path), 0o755); err != nil {
		return fmt.Errorf("vectorindex: create directory: %w", err)
	}

	tmpPath := idx.path + ".tmp"
	file, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("vectorindex: create index file: %w", err)
	}
	if err := idx.graph.Export(file); err != nil {
		file.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("vectorindex: export graph: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("vectorindex: close index file: %w", err)
	}
	if err := os.Rename(tmpPath, idx.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("vectorindex: rename index file: %w", err)
	}

	if err := idx.saveMetadata(idx.path + ".meta"); err != nil {
		return fmt.Errorf("vectorindex: save metadata: %w", err)
	}

	if info, err := os.Stat(idx.path); err == nil {
		idx.lastReload = info.ModTime()
	}

	return nil
}

func (idx *HNSWIndex) saveMetadata(path string) error {
	tmpPath := path + ".tmp"
	file, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("create temp metadata file: %w", err)
	}

	meta := hnswMetadata{
		IDMap:       idx.idMap,
		Departments: idx.departments,
		NextKey:     idx.nextKey,
		Config:      idx.config,
	}

	enc := gob.NewEncoder(file)
	if err := enc.Encode(meta); err != nil {
		file.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("encode metadata: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close metadata file: %w", err)
	}
	return os.Rename(tmpPath, path)
}

// load reads the graph and metadata sidecar from disk. Called once from
// Open; ReloadIfStale calls it again after taking the write lock.
func (idx *HNSWIndex) load() error {
	if err := idx.lock.RLock(); err != nil {
		return fmt.Errorf("acquire rebuild lock: %w", err)
	}
	defer func() {
		if err := idx.lock.Unlock(); err != nil {
			idx.logger.Warn("vectorindex: release rebuild lock failed", slog.String("error", err.Error()))
		}
	}()

	if err := idx.loadMetadata(idx.path + ".meta"); err != nil {
		return fmt.Errorf("load metadata: %w", err)
	}

	file, err := os.Open(idx.path)
	if err != nil {
		return fmt.Errorf("open index file: %w", err)
	}
	defer file.Close()

	idx.resetGraph()
	reader := bufio.NewReader(file)
	if err := idx.graph.Import(reader); err != nil {
		return fmt.Errorf("import graph: %w", err)
	}

	if info, err := file.Stat(); err == nil {
		idx.lastReload = info.ModTime()
	}
	return nil
}

func (idx *HNSWIndex) loadMetadata(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open metadata file: %w", err)
	}
	defer file.Close()

	var meta hnswMetadata
	if err := gob.NewDecoder(file).Decode(&meta); err != nil {
		return fmt.Errorf("decode metadata: %w", err)
	}

	idx.idMap = meta.IDMap
	idx.departments = meta.Departments
	if idx.departments == nil {
		idx.departments = make(map[string]string)
	}
	idx.nextKey = meta.NextKey
	idx.config = meta.Config
	idx.keyMap = make(map[uint64]string, len(idx.idMap))
	for id, key := range idx.idMap {
		idx.keyMap[key] = id
	}
	return nil
}

// ReloadIfStale reloads the graph from disk when the on-disk file's mtime is
// newer than the one this index last loaded or saved, picking up whatever
// the last Save() (from any process) produced. Search and the other
// methods of the index do not call it.
func (idx *HNSWIndex) ReloadIfStale() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if idx.closed {
		return fmt.Errorf("vectorindex: index is closed")
	}

	info, err := os.Stat(idx.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("vectorindex: stat index file: %w", err)
	}
	if !info.ModTime().After(idx.lastReload) {
		return nil
	}

	return idx.load()
}

// Close releases resources.
func (idx *HNSWIndex) Close() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if idx.closed {
		return nil
	}
	idx.closed = true
	idx.graph = nil
	return nil
}

// Dimensions reads the embedding width recorded in an existing index's
// metadata sidecar without loading the full graph. Returns 0 if no index
// has been persisted yet.
func Dimensions(path string) (int, error) {
	metaPath := path + ".meta"
	file, err := os.Open(metaPath)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("vectorindex: open metadata: %w", err)
	}
	defer file.Close()

	var meta hnswMetadata
	if err := gob.NewDecoder(file).Decode(&meta); err != nil {
		return 0, fmt.Errorf("vectorindex: decode metadata: %w", err)
	}
	return meta.Config.Dimensions, nil
}

func normalizeInPlace(v []float32) {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}
	if sumSquares == 0 {
		return
	}
	inv := float32(1.0 / math.Sqrt(sumSquares))
	for i := range v {
		v[i] *= inv
	}
}

func distanceToScore(distance float32, metric Metric) float32 {
	switch metric {
	case MetricL2:
		return 1.0 / (1.0 + distance)
	default:
		return 1.0 - distance
	}
}

var _ Index = (*HNSWIndex)(nil)
