// Package llmclient provides the LLMProvider abstraction over Ollama's
// /api/chat HTTP endpoint, used by both the routing classifier and the RAG
// chat orchestrator.
package llmclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	qerrors "github.com/northbound/deptqa/internal/errors"
)

// Config configures a Client.
type Config struct {
	Host        string
	Model       string
	Temperature float64
	Timeout     time.Duration
	PoolSize    int
}

// Provider completes prompts against a chat-completions endpoint.
type Provider interface {
	// Complete returns the model's plain-text completion for prompt.
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)

	// CompleteJSON is like Complete but instructs the model to return JSON
	// and returns the raw JSON text for the caller to unmarshal and
	// validate against its own schema.
	CompleteJSON(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Client implements Provider over Ollama's /api/chat endpoint: it posts an
// Ollama-shaped request and reads the reply from message.content.
type Client struct {
	client  *http.Client
	cfg     Config
	breaker *qerrors.CircuitBreaker
}

var _ Provider = (*Client)(nil)

// New builds a Client. No package-level singleton is kept: callers own
// their Client and its lifetime, so swapping providers never races with an
// in-flight request against the old one.
func New(cfg Config) *Client {
	if cfg.Host == "" {
		cfg.Host = "http://localhost:11434"
	}
	if cfg.Model == "" {
		cfg.Model = "llama3.1"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
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

	return &Client{
		client: &http.Client{Transport: transport},
		cfg:    cfg,
		breaker: qerrors.NewCircuitBreaker("llm-provider",
			qerrors.WithMaxFailures(5),
			qerrors.WithResetTimeout(30*time.Second)),
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
	Format   string        `json:"format,omitempty"`
	Options  chatOptions   `json:"options"`
}

type chatOptions struct {
	Temperature float64 `json:"temperature"`
}

type chatResponseMessage struct {
	Content string `json:"content"`
}

type chatResponse struct {
	Message chatResponseMessage `json:"message"`
}

// retryConfig governs transient-failure retries for a single call to the
// provider; the circuit breaker around it stops retrying altogether once
// the provider looks down rather than just slow.
var retryConfig = qerrors.RetryConfig{
	MaxRetries:   2,
	InitialDelay: 300 * time.Millisecond,
	MaxDelay:     2 * time.Second,
	Multiplier:   2.0,
	Jitter:       true,
}

func (c *Client) complete(ctx context.Context, systemPrompt, userPrompt, format string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	body, err := json.Marshal(chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		Stream:  false,
		Format:  format,
		Options: chatOptions{Temperature: c.cfg.Temperature},
	})
	if err != nil {
		return "", qerrors.Wrap(qerrors.ErrCodeInternal, err)
	}

	return c.breaker.ExecuteWithResult(
		func() (string, error) {
			return qerrors.RetryWithResult(ctx, retryConfig, func() (string, error) {
				return c.doRequest(ctx, body)
			})
		},
		func() (string, error) {
			return "", qerrors.New(qerrors.ErrCodeLLMProvider, "llm provider unavailable, circuit open", qerrors.ErrCircuitOpen)
		},
	)
}

func (c *Client) doRequest(ctx context.Context, body []byte) (string, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Host+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return "", qerrors.Wrap(qerrors.ErrCodeInternal, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return "", qerrors.New(qerrors.ErrCodeLLMProvider, fmt.Sprintf("llm request failed: %v", err), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", qerrors.New(qerrors.ErrCodeLLMProvider, fmt.Sprintf("llm provider returned %d: %s", resp.StatusCode, data), nil)
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", qerrors.Wrap(qerrors.ErrCodeLLMProvider, err)
	}
	return out.Message.Content, nil
}

// Complete requests a free-form text completion.
func (c *Client) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return c.complete(ctx, systemPrompt, userPrompt, "")
}

// CompleteJSON requests a JSON-formatted completion.
func (c *Client) CompleteJSON(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return c.complete(ctx, systemPrompt, userPrompt, "json")
}
