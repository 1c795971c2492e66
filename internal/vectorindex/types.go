// Package vectorindex implements the department-scoped approximate nearest
// neighbor index: an HNSW graph over chunk embeddings, atomically persisted
// to disk, with an explicit mtime-based reload (ReloadIfStale) for processes
// that share the data directory.
package vectorindex

import (
	"context"
	"fmt"
)

// Metric names the distance function a graph is built with.
type Metric string

const (
	MetricCosine Metric = "cos"
	MetricL2     Metric = "l2"
)

// Config configures a new Index.
type Config struct {
	// Dimensions is the embedding width. Upserting or searching with a
	// vector of a different width fails. Open and ReloadIfStale take the
	// width recorded in an existing index's sidecar as it is, without
	// comparing it with this value.
	Dimensions int
	// Metric selects the distance function. Defaults to cosine.
	Metric Metric
	// M is the HNSW graph degree. Defaults to 16.
	M int
	// EfSearch controls search-time candidate list size. Defaults to 20.
	EfSearch int
}

// ErrDimensionMismatch is returned when a vector's width doesn't match the
// index's configured dimensionality.
type ErrDimensionMismatch struct {
	Expected int
	Got      int
}

func (e ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("vectorindex: dimension mismatch: expected %d, got %d (run reindex-all)", e.Expected, e.Got)
}

// Result is one scored match from a Search call.
type Result struct {
	ChunkID        string
	DepartmentSlug string
	Distance       float32
	Score          float32
}

// RebuildChunk is one chunk's worth of input to Rebuild: the embedding the
// full reload should insert, alongside the IDs Search needs to return and
// scope it.
type RebuildChunk struct {
	ChunkID    string
	Department string
	Vector     []float32
}

// Index is the department-scoped ANN index contract. Implementations must
// be safe for concurrent use.
type Index interface {
	// Upsert inserts or replaces vectors for the given chunk IDs, each
	// tagged with the department it belongs to for scoped search.
	Upsert(ctx context.Context, chunkIDs []string, departmentSlugs []string, vectors [][]float32) error

	// Delete removes vectors by chunk ID.
	Delete(ctx context.Context, chunkIDs []string) error

	// Search returns up to k nearest neighbors to query, restricted to the
	// given department scopes (empty scopes means search everything).
	Search(ctx context.Context, query []float32, k int, scopes []string) ([]Result, error)

	// Count returns the number of live vectors in the index.
	Count() int

	// Rebuild discards the live graph and builds a fresh one in memory from
	// chunks, in the order given, then persists it. It aborts without
	// writing anything when chunks is empty, so a caller that read an
	// empty chunk store by mistake can never clobber a good index.
	Rebuild(chunks []RebuildChunk) error

	// Save persists the index atomically to its configured path.
	Save() error

	// Close releases resources.
	Close() error
}
