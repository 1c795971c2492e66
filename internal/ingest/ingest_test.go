package ingest_test

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/northbound/deptqa/internal/embedding"
	"github.com/northbound/deptqa/internal/ingest"
	"github.com/northbound/deptqa/internal/model"
	"github.com/northbound/deptqa/internal/storage"
	"github.com/northbound/deptqa/internal/vectorindex"
)

type fakeEmbedder struct{ dims int }

func (f fakeEmbedder) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	v, err := f.EmbedMany(ctx, []string{text})
	return v[0], err
}

func (f fakeEmbedder) EmbedMany(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		v := make([]float32, f.dims)
		v[0] = float32(i + 1)
		out[i] = v
	}
	return out, nil
}

func (f fakeEmbedder) Dimensions() int       { return f.dims }
func (f fakeEmbedder) ModelName() string     { return "fake" }
func (f fakeEmbedder) Probe(context.Context) error { return nil }

func newTestService(t *testing.T) (*ingest.Service, *storage.Store, vectorindex.Index) {
	t.Helper()
	dir := t.TempDir()

	store, err := storage.Open(filepath.Join(dir, "deptqa.db"), slog.Default())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	idx, err := vectorindex.Open(filepath.Join(dir, "index.hnsw"), vectorindex.Config{Dimensions: 4}, slog.Default())
	require.NoError(t, err)
	t.Cleanup(func() { idx.Close() })

	svc := ingest.New(store, idx, fakeEmbedder{dims: 4}, slog.Default())
	return svc, store, idx
}

func TestIngestPersistsChunksAndVectors(t *testing.T) {
	svc, _, idx := newTestService(t)

	doc := model.Document{
		ID:             uuid.NewString(),
		DepartmentSlug: "hr",
		Filename:       "handbook.md",
		ContentType:    "text/markdown",
		CreatedAt:      time.Now().UTC(),
	}

	text := "## Intro\n\n" + repeat("paragraph one sentence. ", 60) + "\n\n## Next\n\n" + repeat("paragraph two sentence. ", 60)

	result, err := svc.Ingest(context.Background(), doc, []byte(text))
	require.NoError(t, err)
	require.Greater(t, result.ChunkCount, 0)
	require.Equal(t, result.ChunkCount, idx.Count())
}

func TestIngestSkipsEmptyDocuments(t *testing.T) {
	svc, _, idx := newTestService(t)
	doc := model.Document{ID: uuid.NewString(), DepartmentSlug: "hr", Filename: "empty.txt", ContentType: "text/plain"}

	result, err := svc.Ingest(context.Background(), doc, []byte(""))
	require.NoError(t, err)
	require.Equal(t, 0, result.ChunkCount)
	require.Equal(t, 0, idx.Count())
}

func TestContentHashIsDeterministic(t *testing.T) {
	a := ingest.ContentHash([]byte("hello"))
	b := ingest.ContentHash([]byte("hello"))
	require.Equal(t, a, b)
}

func TestDetectContentTypeByExtension(t *testing.T) {
	require.Equal(t, "application/pdf", ingest.DetectContentType("report.pdf"))
	require.Equal(t, "text/markdown", ingest.DetectContentType("notes.md"))
	require.Equal(t, "text/csv", ingest.DetectContentType("data.csv"))
}

func repeat(s string, n int) string {
	out := ""
	for i := 0; i < n; i++ {
		out += s
	}
	return out
}
