package embedding_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/northbound/deptqa/internal/embedding"
)

func fakeOllamaServer(t *testing.T, calls *int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*calls++
		_ = json.NewEncoder(w).Encode(map[string]any{
			"embedding": []float32{0.1, 0.2, 0.3},
		})
	}))
}

func TestEmbedOneReturnsVector(t *testing.T) {
	var calls int
	srv := fakeOllamaServer(t, &calls)
	defer srv.Close()

	p := embedding.NewOllamaProvider(embedding.OllamaConfig{Host: srv.URL, Dimensions: 3})
	vec, err := p.EmbedOne(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, vec)
	assert.Equal(t, 1, calls)
}

func TestEmbedManyPreservesOrder(t *testing.T) {
	var calls int
	srv := fakeOllamaServer(t, &calls)
	defer srv.Close()

	p := embedding.NewOllamaProvider(embedding.OllamaConfig{Host: srv.URL, Dimensions: 3})
	vecs, err := p.EmbedMany(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)
	require.Len(t, vecs, 3)
	assert.Equal(t, 3, calls)
}

func TestCachedProviderSkipsRepeatedCalls(t *testing.T) {
	var calls int
	srv := fakeOllamaServer(t, &calls)
	defer srv.Close()

	inner := embedding.NewOllamaProvider(embedding.OllamaConfig{Host: srv.URL, Dimensions: 3})
	cached := embedding.NewCachedProvider(inner, 16)

	_, err := cached.EmbedOne(context.Background(), "repeat me")
	require.NoError(t, err)
	_, err = cached.EmbedOne(context.Background(), "repeat me")
	require.NoError(t, err)

	assert.Equal(t, 1, calls, "second call should be served from cache")
}

func TestEmbedOneRejectsDimensionMismatch(t *testing.T) {
	var calls int
	srv := fakeOllamaServer(t, &calls)
	defer srv.Close()

	p := embedding.NewOllamaProvider(embedding.OllamaConfig{Host: srv.URL, Dimensions: 8})
	_, err := p.EmbedOne(context.Background(), "hello")
	assert.Error(t, err)
}

func TestProbeSurfacesProviderFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	p := embedding.NewOllamaProvider(embedding.OllamaConfig{Host: srv.URL, Dimensions: 3})
	assert.Error(t, p.Probe(context.Background()))
}
