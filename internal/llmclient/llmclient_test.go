package llmclient_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/northbound/deptqa/internal/llmclient"
)

func TestCompleteReturnsMessageContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"message": map[string]string{"content": "the answer is 4"},
		})
	}))
	defer srv.Close()

	c := llmclient.New(llmclient.Config{Host: srv.URL})
	out, err := c.Complete(context.Background(), "you are helpful", "what is 2+2?")
	require.NoError(t, err)
	assert.Equal(t, "the answer is 4", out)
}

func TestCompleteJSONSetsFormatField(t *testing.T) {
	var seenFormat string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		seenFormat, _ = body["format"].(string)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"message": map[string]string{"content": `{"ok":true}`},
		})
	}))
	defer srv.Close()

	c := llmclient.New(llmclient.Config{Host: srv.URL})
	out, err := c.CompleteJSON(context.Background(), "sys", "usr")
	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, out)
	assert.Equal(t, "json", seenFormat)
}

func TestCompleteSurfacesProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := llmclient.New(llmclient.Config{Host: srv.URL})
	_, err := c.Complete(context.Background(), "sys", "usr")
	assert.Error(t, err)
}
