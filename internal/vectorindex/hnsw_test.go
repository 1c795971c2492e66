package vectorindex_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/northbound/deptqa/internal/vectorindex"
)

func newTestIndex(t *testing.T, dims int) (*vectorindex.HNSWIndex, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "vectors.hnsw")
	idx, err := vectorindex.Open(path, vectorindex.Config{Dimensions: dims}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })
	return idx, path
}

func TestUpsertAndSearchScoped(t *testing.T) {
	idx, _ := newTestIndex(t, 3)
	ctx := context.Background()

	err := idx.Upsert(ctx,
		[]string{"c1", "c2", "c3"},
		[]string{"legal", "legal", "hr"},
		[][]float32{{1, 0, 0}, {0.9, 0.1, 0}, {0, 1, 0}},
	)
	require.NoError(t, err)
	assert.Equal(t, 3, idx.Count())

	results, err := idx.Search(ctx, []float32{1, 0, 0}, 5, []string{"legal"})
	require.NoError(t, err)
	for _, r := range results {
		assert.Equal(t, "legal", r.DepartmentSlug)
	}
}

func TestUpsertRejectsDimensionMismatch(t *testing.T) {
	idx, _ := newTestIndex(t, 3)
	err := idx.Upsert(context.Background(), []string{"c1"}, []string{"hr"}, [][]float32{{1, 0}})
	var mismatch vectorindex.ErrDimensionMismatch
	require.ErrorAs(t, err, &mismatch)
}

func TestDeleteRemovesFromResults(t *testing.T) {
	idx, _ := newTestIndex(t, 2)
	ctx := context.Background()
	require.NoError(t, idx.Upsert(ctx, []string{"a", "b"}, []string{"hr", "hr"}, [][]float32{{1, 0}, {0, 1}}))
	require.NoError(t, idx.Delete(ctx, []string{"a"}))
	assert.Equal(t, 1, idx.Count())

	results, err := idx.Search(ctx, []float32{1, 0}, 5, nil)
	require.NoError(t, err)
	for _, r := range results {
		assert.NotEqual(t, "a", r.ChunkID)
	}
}

func TestSaveAndReopenRoundTrips(t *testing.T) {
	idx, path := newTestIndex(t, 2)
	ctx := context.Background()
	require.NoError(t, idx.Upsert(ctx, []string{"a"}, []string{"hr"}, [][]float32{{1, 0}}))
	require.NoError(t, idx.Save())

	reopened, err := vectorindex.Open(path, vectorindex.Config{Dimensions: 2}, nil)
	require.NoError(t, err)
	defer reopened.Close()
	assert.Equal(t, 1, reopened.Count())

	dims, err := vectorindex.Dimensions(path)
	require.NoError(t, err)
	assert.Equal(t, 2, dims)
}

func TestRebuildReplacesLiveGraph(t *testing.T) {
	idx, path := newTestIndex(t, 2)
	ctx := context.Background()

	require.NoError(t, idx.Upsert(ctx, []string{"a", "b"}, []string{"hr", "hr"}, [][]float32{{1, 0}, {0, 1}}))
	require.NoError(t, idx.Upsert(ctx, []string{"a"}, []string{"hr"}, [][]float32{{0.5, 0.5}}))
	require.Equal(t, 2, idx.Count())

	require.NoError(t, idx.Rebuild([]vectorindex.RebuildChunk{
		{ChunkID: "c1", Department: "legal", Vector: []float32{1, 0}},
		{ChunkID: "c2", Department: "legal", Vector: []float32{0, 1}},
		{ChunkID: "c3", Department: "hr", Vector: []float32{1, 1}},
	}))
	assert.Equal(t, 3, idx.Count())

	results, err := idx.Search(ctx, []float32{1, 0}, 5, nil)
	require.NoError(t, err)
	require.NotEmpty(t, results)

	reopened, err := vectorindex.Open(path, vectorindex.Config{Dimensions: 2}, nil)
	require.NoError(t, err)
	defer reopened.Close()
	assert.Equal(t, 3, reopened.Count())
}

func TestRebuildWithNoChunksAbortsWithoutWriting(t *testing.T) {
	idx, path := newTestIndex(t, 2)
	ctx := context.Background()
	require.NoError(t, idx.Upsert(ctx, []string{"a"}, []string{"hr"}, [][]float32{{1, 0}}))
	require.NoError(t, idx.Save())

	info, err := os.Stat(path)
	require.NoError(t, err)
	before := info.ModTime()

	require.NoError(t, idx.Rebuild(nil))
	assert.Equal(t, 1, idx.Count())

	info, err = os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, before, info.ModTime())
}

func TestReloadIfStalePicksUpExternalWrite(t *testing.T) {
	idx, path := newTestIndex(t, 2)
	ctx := context.Background()
	require.NoError(t, idx.Upsert(ctx, []string{"a"}, []string{"hr"}, [][]float32{{1, 0}}))
	require.NoError(t, idx.Save())

	reader, err := vectorindex.Open(path, vectorindex.Config{Dimensions: 2}, nil)
	require.NoError(t, err)
	defer reader.Close()

	require.NoError(t, idx.Upsert(ctx, []string{"b"}, []string{"hr"}, [][]float32{{0, 1}}))
	require.NoError(t, idx.Save())

	require.NoError(t, reader.ReloadIfStale())
	assert.Equal(t, 2, reader.Count())
}
