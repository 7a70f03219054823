package embeddings

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/selivandex/advisor/pkg/logger"
)

// Repository stores generated embeddings permanently. Embeddings are
// deterministic and paid per call, so this is deduplication, not a cache.
type Repository interface {
	Get(ctx context.Context, textHash string) ([]float32, bool)
	Set(ctx context.Context, textHash string, embedding []float32, model string, textLength int) error
}

// Client generates fixed-length vectors for free text via OpenAI,
// with optional Postgres-backed deduplication
type Client struct {
	repository Repository
	openai     *openai.Client
	model      openai.EmbeddingModel
	hits       int64
	misses     int64
}

// Config for embedding client
type Config struct {
	OpenAIClient *openai.Client
	Repository   Repository            // optional deduplication store
	Model        openai.EmbeddingModel // default: openai.SmallEmbedding3
}

// NewClient creates new embedding client
func NewClient(cfg Config) *Client {
	model := cfg.Model
	if model == "" {
		model = openai.SmallEmbedding3
	}

	if cfg.Repository != nil {
		logger.Info("embedding deduplication enabled")
	}

	return &Client{
		openai:     cfg.OpenAIClient,
		repository: cfg.Repository,
		model:      model,
	}
}

// Generate creates an embedding for text, consulting the dedup store first
func (c *Client) Generate(ctx context.Context, text string) ([]float32, error) {
	textHash := hashText(text)

	if c.repository != nil {
		if existing, found := c.repository.Get(ctx, textHash); found {
			atomic.AddInt64(&c.hits, 1)
			logger.Debug("embedding deduplication hit",
				zap.Int("text_len", len(text)),
				zap.String("hash", textHash[:12]),
			)
			return existing, nil
		}
		atomic.AddInt64(&c.misses, 1)
	}

	if c.openai == nil {
		return nil, fmt.Errorf("embedding client not configured - please set OPENAI_API_KEY")
	}

	embedding, err := c.generateWithRetry(ctx, text, 3)
	if err != nil {
		return nil, fmt.Errorf("embedding API failed after retries: %w", err)
	}

	if c.repository != nil {
		if err := c.repository.Set(ctx, textHash, embedding, string(c.model), len(text)); err != nil {
			logger.Warn("failed to store embedding in repository", zap.Error(err))
			// Non-critical, continue
		}
	}

	logger.Debug("embedding generated",
		zap.Int("text_len", len(text)),
		zap.Int("dim", len(embedding)),
	)

	return embedding, nil
}

// generateWithRetry calls the API with exponential backoff
func (c *Client) generateWithRetry(ctx context.Context, text string, maxRetries int) ([]float32, error) {
	var lastErr error

	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(math.Pow(2, float64(attempt))) * time.Second
			logger.Debug("retrying embedding request",
				zap.Int("attempt", attempt+1),
				zap.Duration("backoff", backoff),
			)

			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, fmt.Errorf("context canceled during retry backoff: %w", ctx.Err())
			}
		}

		resp, err := c.openai.CreateEmbeddings(ctx, openai.EmbeddingRequest{
			Model: c.model,
			Input: []string{text},
		})
		if err == nil {
			if len(resp.Data) == 0 {
				return nil, fmt.Errorf("embedding API returned no data")
			}
			return resp.Data[0].Embedding, nil
		}

		lastErr = err
		if !isRetryableError(err) {
			return nil, err
		}

		logger.Warn("retryable embedding API error",
			zap.Error(err),
			zap.Int("attempt", attempt+1),
		)
	}

	return nil, fmt.Errorf("max retries (%d) exceeded: %w", maxRetries, lastErr)
}

// isRetryableError checks if error should trigger a retry
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == http.StatusTooManyRequests ||
			apiErr.HTTPStatusCode >= 500
	}

	errStr := err.Error()
	for _, marker := range []string{"429", "rate limit", "timeout", "deadline exceeded", "connection refused", "connection reset"} {
		if strings.Contains(errStr, marker) {
			return true
		}
	}
	return false
}

// DeduplicationStats returns hit/miss counters
func (c *Client) DeduplicationStats() (hits, misses int64) {
	return atomic.LoadInt64(&c.hits), atomic.LoadInt64(&c.misses)
}

// hashText creates SHA256 hash of text for the dedup key
func hashText(text string) string {
	hash := sha256.Sum256([]byte(text))
	return hex.EncodeToString(hash[:])
}
