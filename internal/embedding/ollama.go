package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	qerrors "github.com/northbound/deptqa/internal/errors"
)

// OllamaConfig configures an OllamaProvider.
type OllamaConfig struct {
	Host       string
	Model      string
	Dimensions int
	BatchSize  int
	PoolSize   int
}

// OllamaProvider implements Provider against Ollama's /api/embeddings
// endpoint.
type OllamaProvider struct {
	client    *http.Client
	cfg       OllamaConfig
	mu        sync.Mutex
	lastCall  time.Time
}

var _ Provider = (*OllamaProvider)(nil)

// NewOllamaProvider builds a provider with a pooled transport. Per BUG-052
// in the embedding stack this is grounded on, the client itself carries no
// Timeout — every call supplies its own context deadline so warm/cold
// timeouts can differ per call instead of being capped by a static client
// timeout.
func NewOllamaProvider(cfg OllamaConfig) *OllamaProvider {
	if cfg.Host == "" {
		cfg.Host = "http://localhost:11434"
	}
	if cfg.Model == "" {
		cfg.Model = "embeddinggemma"
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = 4
	}

	transport := &http.Transport{
		MaxIdleConns:        cfg.PoolSize,
		MaxIdleConnsPerHost: cfg.PoolSize,
		MaxConnsPerHost:     cfg.PoolSize * 2,
		IdleConnTimeout:     10 * time.Second,
	}

	return &OllamaProvider{
		client: &http.Client{Transport: transport},
		cfg:    cfg,
	}
}

func (p *OllamaProvider) Dimensions() int  { return p.cfg.Dimensions }
func (p *OllamaProvider) ModelName() string { return p.cfg.Model }

type ollamaEmbedRequest struct {
	Model string `json:"model"`
	Input string `json:"prompt"`
}

type ollamaEmbedResponse struct {
	Embedding []float32 `json:"embedding"`
}

// timeoutFor returns the cold timeout for the first call after a period of
// inactivity (the model may need to load) and the warm timeout otherwise.
func (p *OllamaProvider) timeoutFor() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()

	cold := p.lastCall.IsZero() || time.Since(p.lastCall) > 5*time.Minute
	p.lastCall = time.Now()
	if cold {
		return DefaultColdTimeout
	}
	return DefaultWarmTimeout
}

// EmbedOne embeds a single piece of text.
func (p *OllamaProvider) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeoutFor())
	defer cancel()

	body, err := json.Marshal(ollamaEmbedRequest{Model: p.cfg.Model, Input: text})
	if err != nil {
		return nil, qerrors.Wrap(qerrors.ErrCodeInternal, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.Host+"/api/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, qerrors.Wrap(qerrors.ErrCodeInternal, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, qerrors.New(qerrors.ErrCodeEmbeddingProvider, fmt.Sprintf("embedding request failed: %v", err), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, qerrors.New(qerrors.ErrCodeEmbeddingProvider, fmt.Sprintf("embedding provider returned %d: %s", resp.StatusCode, data), nil)
	}

	var out ollamaEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, qerrors.Wrap(qerrors.ErrCodeEmbeddingProvider, err)
	}
	if p.cfg.Dimensions != 0 && len(out.Embedding) != p.cfg.Dimensions {
		return nil, fmt.Errorf("embedding: provider returned %d dims, expected %d", len(out.Embedding), p.cfg.Dimensions)
	}
	return out.Embedding, nil
}

// EmbedMany embeds a batch of texts sequentially, preserving order. Ollama's
// embeddings endpoint takes one prompt per request, so batching here is
// about grouping call sites, not a single bulk HTTP call.
func (p *OllamaProvider) EmbedMany(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := EmbedWithRetry(ctx, p, text, DefaultMaxRetries)
		if err != nil {
			return nil, fmt.Errorf("embedding: batch item %d: %w", i, err)
		}
		out[i] = vec
	}
	return out, nil
}

// Probe checks that the provider is reachable by requesting a throwaway
// embedding for a one-word prompt.
func (p *OllamaProvider) Probe(ctx context.Context) error {
	_, err := p.EmbedOne(ctx, "ping")
	return err
}
