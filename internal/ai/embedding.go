package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"golang.org/x/time/rate"

	"docproc/internal/pkg/retry"
)

const (
	DefaultEmbedAttempts  = 3
	DefaultRetryBaseDelay = time.Second
	DefaultSubBatchSize   = 3
	DefaultSubBatchDelay  = time.Second
	DefaultRequestTimeout = 30 * time.Second
)

var (
	ErrEmptyEmbedding     = errors.New("empty embedding in response")
	ErrMalformedEmbedding = errors.New("malformed embedding response")
)

// EmbeddingConfig holds API settings for the embedding provider.
type EmbeddingConfig struct {
	BaseURL string
	APIKey  string
	Model   string
}

// EmbeddingError is returned by Embed once every attempt has failed.
type EmbeddingError struct {
	Attempts int
	Err      error
}

func (e *EmbeddingError) Error() string {
	return fmt.Sprintf("embedding failed after %d attempts: %v", e.Attempts, e.Err)
}

func (e *EmbeddingError) Unwrap() error {
	return e.Err
}

// EmbeddingResult pairs an input text with its vector. A failed text has an empty Vector.
type EmbeddingResult struct {
	Text   string
	Vector []float32
}

func (r EmbeddingResult) Valid() bool {
	return len(r.Vector) > 0
}

type EmbeddingClient struct {
	cfg        EmbeddingConfig
	httpClient *http.Client
	limiter    *rate.Limiter
	pool       *ants.Pool
	poolSize   int
	logger     *slog.Logger

	retryPolicy   retry.Policy
	subBatchSize  int
	subBatchDelay time.Duration
}

type EmbeddingOption func(*EmbeddingClient)

// WithRetry sets the attempt budget and base backoff delay used by Embed.
func WithRetry(maxAttempts int, baseDelay time.Duration) EmbeddingOption {
	return func(c *EmbeddingClient) {
		if maxAttempts > 0 {
			c.retryPolicy.MaxAttempts = maxAttempts
		}
		if baseDelay >= 0 {
			c.retryPolicy.BaseDelay = baseDelay
		}
	}
}

// WithSubBatch sets how many texts EmbedBatch sends at once and the pause between groups.
func WithSubBatch(size int, delay time.Duration) EmbeddingOption {
	return func(c *EmbeddingClient) {
		if size > 0 {
			c.subBatchSize = size
		}
		if delay >= 0 {
			c.subBatchDelay = delay
		}
	}
}

// WithRateLimit caps provider requests per second. A non-positive rps disables the limit.
func WithRateLimit(rps float64, burst int) EmbeddingOption {
	return func(c *EmbeddingClient) {
		if rps <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 0)
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithConcurrency sets the worker pool size used for in-flight batch requests.
func WithConcurrency(n int) EmbeddingOption {
	return func(c *EmbeddingClient) {
		if n > 0 {
			c.poolSize = n
		}
	}
}

func WithHTTPClient(client *http.Client) EmbeddingOption {
	return func(c *EmbeddingClient) {
		if client != nil {
			c.httpClient = client
		}
	}
}

func WithLogger(logger *slog.Logger) EmbeddingOption {
	return func(c *EmbeddingClient) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func NewEmbeddingClient(cfg EmbeddingConfig, opts ...EmbeddingOption) (*EmbeddingClient, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, errors.New("embedding base url is required")
	}

	c := &EmbeddingClient{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: DefaultRequestTimeout},
		limiter:    rate.NewLimiter(rate.Inf, 0),
		logger:     slog.Default(),
		retryPolicy: retry.Policy{
			MaxAttempts: DefaultEmbedAttempts,
			BaseDelay:   DefaultRetryBaseDelay,
		},
		subBatchSize:  DefaultSubBatchSize,
		subBatchDelay: DefaultSubBatchDelay,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.poolSize == 0 {
		c.poolSize = c.subBatchSize
	}

	pool, err := ants.NewPool(c.poolSize)
	if err != nil {
		return nil, fmt.Errorf("create embedding worker pool failed: %w", err)
	}
	c.pool = pool
	return c, nil
}

// Release stops the worker pool. The client must not be used afterwards.
func (c *EmbeddingClient) Release() {
	if c.pool != nil {
		c.pool.Release()
	}
}

// Embed returns the embedding vector for text, retrying with exponential backoff.
func (c *EmbeddingClient) Embed(ctx context.Context, text string) ([]float32, error) {
	var (
		vec      []float32
		attempts int
	)
	err := retry.Do(ctx, c.retryPolicy, func(attempt int) error {
		attempts = attempt
		v, err := c.embedOnce(ctx, text)
		if err != nil {
			c.logger.Warn("embedding attempt failed",
				"attempt", attempt,
				"max_attempts", c.retryPolicy.MaxAttempts,
				"text_length", len(text),
				"err", err)
			return err
		}
		vec = v
		return nil
	})
	if err != nil {
		return nil, &EmbeddingError{Attempts: attempts, Err: err}
	}
	return vec, nil
}

// EmbedBatch embeds texts in groups of subBatchSize, pausing between groups to stay under
// provider rate limits. Texts inside a group are requested concurrently and each gets a single
// attempt; a failure leaves an empty Vector in its result. Results keep the input order.
// The returned error is only set when ctx ends.
func (c *EmbeddingClient) EmbedBatch(ctx context.Context, texts []string) ([]EmbeddingResult, error) {
	results := make([]EmbeddingResult, len(texts))
	for i, text := range texts {
		results[i].Text = text
	}

	for start := 0; start < len(texts); start += c.subBatchSize {
		if start > 0 {
			if err := retry.Sleep(ctx, c.subBatchDelay); err != nil {
				return results, err
			}
		}
		end := start + c.subBatchSize
		if end > len(texts) {
			end = len(texts)
		}

		var wg sync.WaitGroup
		for i := start; i < end; i++ {
			i := i
			wg.Add(1)
			task := func() {
				defer wg.Done()
				vec, err := c.embedOnce(ctx, texts[i])
				if err != nil {
					c.logger.Warn("batch embedding failed", "index", i, "err", err)
					return
				}
				results[i].Vector = vec
			}
			if err := c.pool.Submit(task); err != nil {
				task()
			}
		}
		wg.Wait()

		if err := ctx.Err(); err != nil {
			return results, err
		}
	}
	return results, nil
}

type embeddingRequest struct {
	Model string `json:"model,omitempty"`
	Input string `json:"input"`
}

func (c *EmbeddingClient) embedOnce(ctx context.Context, text string) ([]float32, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	bodyBytes, err := json.Marshal(embeddingRequest{Model: c.cfg.Model, Input: text})
	if err != nil {
		return nil, fmt.Errorf("marshal embedding request failed: %w", err)
	}

	url := strings.TrimRight(c.cfg.BaseURL, "/") + "/embeddings"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("build embedding request failed: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embedding request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read embedding response failed: %w", err)
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("embedding response status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	return parseEmbedding(raw)
}

// parseEmbedding accepts the response shapes of the common providers:
// OpenAI {"data":[{"embedding":[...]}]}, Ollama {"embedding":[...]} / {"embeddings":[[...]]},
// and Hugging Face feature extraction, which returns the bare (possibly nested) array.
func parseEmbedding(raw []byte) ([]float32, error) {
	var payload interface{}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEmbedding, err)
	}

	switch v := payload.(type) {
	case []interface{}:
		return vectorFrom(v)
	case map[string]interface{}:
		if e, ok := v["error"]; ok && e != nil {
			return nil, fmt.Errorf("embedding provider error: %s", providerErrorMessage(e))
		}
		if data, ok := v["data"]; ok {
			items, ok := data.([]interface{})
			if !ok || len(items) == 0 {
				return nil, ErrEmptyEmbedding
			}
			first, ok := items[0].(map[string]interface{})
			if !ok {
				return nil, fmt.Errorf("%w: data item is %T", ErrMalformedEmbedding, items[0])
			}
			return vectorFrom(first["embedding"])
		}
		if emb, ok := v["embedding"]; ok {
			return vectorFrom(emb)
		}
		if embs, ok := v["embeddings"]; ok {
			return vectorFrom(embs)
		}
		return nil, fmt.Errorf("%w: no embedding field", ErrMalformedEmbedding)
	default:
		return nil, fmt.Errorf("%w: unexpected %T", ErrMalformedEmbedding, payload)
	}
}

func vectorFrom(value interface{}) ([]float32, error) {
	items, ok := value.([]interface{})
	if !ok {
		return nil, fmt.Errorf("%w: embedding is %T", ErrMalformedEmbedding, value)
	}
	if len(items) == 0 {
		return nil, ErrEmptyEmbedding
	}
	if _, nested := items[0].([]interface{}); nested {
		return vectorFrom(items[0])
	}

	vec := make([]float32, len(items))
	for i, item := range items {
		f, ok := item.(float64)
		if !ok {
			return nil, fmt.Errorf("%w: element %d is %T", ErrMalformedEmbedding, i, item)
		}
		vec[i] = float32(f)
	}
	return vec, nil
}

func providerErrorMessage(e interface{}) string {
	switch v := e.(type) {
	case string:
		return v
	case map[string]interface{}:
		if msg, ok := v["message"].(string); ok {
			return msg
		}
	}
	b, _ := json.Marshal(e)
	return string(b)
}
