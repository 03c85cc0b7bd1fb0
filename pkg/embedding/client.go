// Package embedding provides clients for turning text into fixed-dimension vectors.
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/time/rate"
	"pdfchat-go/internal/config"
	"pdfchat-go/pkg/log"
)

// Client defines the interface for an embedding backend.
// Implementations must be deterministic for identical input and safe for concurrent use.
type Client interface {
	CreateEmbedding(ctx context.Context, text string) ([]float32, error)
	Dimension() int
	ModelName() string
}

// NewClient creates the embedding client selected by cfg.Provider.
func NewClient(cfg config.EmbeddingConfig) (Client, error) {
	switch cfg.Provider {
	case "openai":
		return NewOpenAICompatibleClient(cfg), nil
	case "hash":
		return NewHashClient(cfg.Dimensions), nil
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %q", cfg.Provider)
	}
}

type openAICompatibleClient struct {
	cfg     config.EmbeddingConfig
	client  *http.Client
	limiter *rate.Limiter
}

// NewOpenAICompatibleClient creates a client for any OpenAI-compatible /embeddings endpoint.
// Calls are rate limited and transient failures (network, 429, 5xx) are retried with backoff.
func NewOpenAICompatibleClient(cfg config.EmbeddingConfig) Client {
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	burst := cfg.Workers
	if burst < 1 {
		burst = 1
	}
	return &openAICompatibleClient{
		cfg:     cfg,
		client:  &http.Client{},
		limiter: rate.NewLimiter(limit, burst),
	}
}

type embeddingRequest struct {
	Model      string   `json:"model"`
	Input      []string `json:"input"`
	Dimensions int      `json:"dimensions,omitempty"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// statusError 记录非 200 响应，用于区分可重试与不可重试的失败。
type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("embedding api returned non-200 status: %d, body: %s", e.code, e.body)
}

func (e *statusError) retryable() bool {
	return e.code == http.StatusTooManyRequests || e.code >= 500
}

func (c *openAICompatibleClient) Dimension() int    { return c.cfg.Dimensions }
func (c *openAICompatibleClient) ModelName() string { return c.cfg.Model }

// CreateEmbedding calls the OpenAI-compatible API to get the vector for a given text.
func (c *openAICompatibleClient) CreateEmbedding(ctx context.Context, text string) ([]float32, error) {
	operation := func() ([]float32, error) {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, backoff.Permanent(err)
		}
		vec, err := c.call(ctx, text)
		if err != nil {
			var se *statusError
			if errors.As(err, &se) && !se.retryable() {
				return nil, backoff.Permanent(err)
			}
			if ctx.Err() != nil {
				return nil, backoff.Permanent(err)
			}
			log.Warnf("[EmbeddingClient] 调用失败，准备重试: %v", err)
			return nil, err
		}
		return vec, nil
	}

	return backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(c.cfg.MaxRetries+1),
	)
}

func (c *openAICompatibleClient) call(ctx context.Context, text string) ([]float32, error) {
	reqBody := embeddingRequest{
		Model:      c.cfg.Model,
		Input:      []string{text},
		Dimensions: c.cfg.Dimensions,
	}
	reqBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal embedding request: %w", err)
	}

	url := strings.TrimRight(c.cfg.BaseURL, "/") + "/embeddings"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call embedding api: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &statusError{code: resp.StatusCode, body: string(body)}
	}

	var embeddingResp embeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&embeddingResp); err != nil {
		return nil, backoff.Permanent(fmt.Errorf("failed to decode embedding response: %w", err))
	}
	if len(embeddingResp.Data) == 0 || len(embeddingResp.Data[0].Embedding) == 0 {
		return nil, backoff.Permanent(errors.New("received empty embedding from api"))
	}
	vec := embeddingResp.Data[0].Embedding
	if c.cfg.Dimensions > 0 && len(vec) != c.cfg.Dimensions {
		return nil, backoff.Permanent(fmt.Errorf("embedding dimension mismatch: expected %d, got %d", c.cfg.Dimensions, len(vec)))
	}
	return vec, nil
}
