// Package embedding provides the EmbeddingProvider abstraction over an
// Ollama-compatible HTTP embeddings endpoint, with an LRU response cache and
// exponential-backoff retries for transient provider failures.
package embedding

import (
	"context"
	"time"
)

// Default tuning constants, matched to Ollama's own model-unload behavior:
// a cold model (just loaded) answers slower than a warm one, so cold calls
// get a longer timeout budget.
const (
	DefaultBatchSize  = 32
	DefaultWarmTimeout = 30 * time.Second
	DefaultColdTimeout = 90 * time.Second
	DefaultMaxRetries = 3
	DefaultCacheSize  = 4096
)

// Provider generates vector embeddings for text.
type Provider interface {
	// EmbedOne embeds a single string.
	EmbedOne(ctx context.Context, text string) ([]float32, error)

	// EmbedMany embeds a batch of strings, preserving order.
	EmbedMany(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the embedding width this provider produces.
	Dimensions() int

	// ModelName identifies the embedding model in use.
	ModelName() string

	// Probe checks whether the provider is reachable and ready.
	Probe(ctx context.Context) error
}
