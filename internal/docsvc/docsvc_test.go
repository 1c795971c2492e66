package docsvc_test

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/northbound/deptqa/internal/blobstore"
	"github.com/northbound/deptqa/internal/docsvc"
	"github.com/northbound/deptqa/internal/embedding"
	"github.com/northbound/deptqa/internal/ingest"
	"github.com/northbound/deptqa/internal/storage"
	"github.com/northbound/deptqa/internal/vectorindex"
)

type fakeEmbedder struct{ dims int }

func (f fakeEmbedder) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	return make([]float32, f.dims), nil
}
func (f fakeEmbedder) EmbedMany(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = make([]float32, f.dims)
		out[i][0] = float32(i + 1)
	}
	return out, nil
}
func (f fakeEmbedder) Dimensions() int              { return f.dims }
func (f fakeEmbedder) ModelName() string            { return "fake" }
func (f fakeEmbedder) Probe(context.Context) error  { return nil }

func newTestService(t *testing.T) *docsvc.Service {
	t.Helper()
	dir := t.TempDir()

	store, err := storage.Open(filepath.Join(dir, "deptqa.db"), slog.Default())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	blobs, err := blobstore.New(filepath.Join(dir, "blobs"))
	require.NoError(t, err)

	idx, err := vectorindex.Open(filepath.Join(dir, "index.hnsw"), vectorindex.Config{Dimensions: 4}, slog.Default())
	require.NoError(t, err)
	t.Cleanup(func() { idx.Close() })

	embedder := fakeEmbedder{dims: 4}
	ingester := ingest.New(store, idx, embedder, slog.Default())
	return docsvc.New(store, blobs, idx, ingester, embedder, slog.Default())
}

func TestUploadIndexesAndRecordsAudit(t *testing.T) {
	svc := newTestService(t)

	text := ""
	for i := 0; i < 80; i++ {
		text += "the quarterly review covers project status and budget. "
	}

	doc, err := svc.Upload(context.Background(), "hr", "alice", "review.txt", "text/plain", []byte(text))
	require.NoError(t, err)
	require.NotEmpty(t, doc.ID)
	require.Greater(t, doc.ChunkCount, 0)
}

func TestDeleteRemovesDocument(t *testing.T) {
	svc := newTestService(t)

	doc, err := svc.Upload(context.Background(), "hr", "alice", "short.txt", "text/plain", []byte("short document text that still forms one chunk"))
	require.NoError(t, err)

	err = svc.Delete(context.Background(), doc.ID, "alice")
	require.NoError(t, err)
}

func TestReindexAllTalliesSuccesses(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.Upload(context.Background(), "hr", "alice", "a.txt", "text/plain", []byte("first document body text for reindexing"))
	require.NoError(t, err)
	_, err = svc.Upload(context.Background(), "legal", "bob", "b.txt", "text/plain", []byte("second document body text for reindexing"))
	require.NoError(t, err)

	summary, err := svc.ReindexAll(context.Background(), "admin")
	require.NoError(t, err)
	require.Equal(t, 2, summary.TotalDocuments)
	require.Equal(t, 2, summary.SuccessDocuments)
	require.Equal(t, 0, summary.FailedDocuments)
}
