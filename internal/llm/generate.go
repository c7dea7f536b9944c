package llm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/fahimulhaque/MarketMind/internal/config"
	"github.com/fahimulhaque/MarketMind/internal/infra"
)

const (
	defaultMaxConcurrent = 2
	defaultCacheTTL      = 15 * time.Minute
	generateAttempts     = 3
	retryBase            = 2 * time.Second
	retryCap             = 15 * time.Second

	// Minimum spacing between calls when the backend is a rate-limited
	// cloud API. Local Ollama takes requests as fast as the semaphore
	// lets them through.
	cloudCallGap = 1 * time.Second
)

// Client wraps a single LLMProvider with the generation policy shared by
// every report section: a concurrency cap, a response cache keyed on the
// exact request, retry with backoff, and serialized dispatch for cloud
// backends.
type Client struct {
	provider LLMProvider
	cache    *infra.Cache
	sem      *semaphore.Weighted
	cloud    bool

	mu       sync.Mutex
	lastCall time.Time
}

// NewClient builds a client from configuration. The provider name
// selects the backend; cloud backends prefer cloud_model over model.
func NewClient(cfg config.LLMConfig) (*Client, error) {
	model := cfg.Model
	if cfg.IsCloud() && cfg.CloudModel != "" {
		model = cfg.CloudModel
	}

	var (
		provider LLMProvider
		err      error
	)
	switch cfg.Provider {
	case ProviderOllama, "":
		var opts []OllamaOption
		if model != "" {
			opts = append(opts, WithOllamaModel(model))
		}
		provider, err = NewOllamaProvider(cfg.OllamaHost, opts...)
	case ProviderOpenAI:
		opts := []OpenAIOption{}
		if cfg.BaseURL != "" {
			opts = append(opts, WithOpenAIBaseURL(cfg.BaseURL))
		}
		if model != "" {
			opts = append(opts, WithOpenAIModel(model))
		}
		provider, err = NewOpenAIProvider(cfg.APIKey, opts...)
	case ProviderGemini:
		var opts []GeminiOption
		if model != "" {
			opts = append(opts, WithGeminiModel(model))
		}
		provider, err = NewGeminiProvider(cfg.APIKey, opts...)
	case ProviderAnthropic:
		var opts []AnthropicOption
		if model != "" {
			opts = append(opts, WithAnthropicModel(model))
		}
		provider, err = NewAnthropicProvider(cfg.APIKey, opts...)
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", ErrNoProviders, cfg.Provider)
	}
	if err != nil {
		return nil, err
	}

	maxConcurrent := cfg.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = defaultMaxConcurrent
	}
	ttl := defaultCacheTTL
	if cfg.CacheTTLSeconds > 0 {
		ttl = time.Duration(cfg.CacheTTLSeconds) * time.Second
	}

	return &Client{
		provider: provider,
		cache:    infra.NewCache(ttl),
		sem:      semaphore.NewWeighted(int64(maxConcurrent)),
		cloud:    cfg.IsCloud(),
	}, nil
}

// NewClientWithProvider wraps an already-constructed provider. Used by
// tests and by callers that manage provider selection themselves.
func NewClientWithProvider(provider LLMProvider, maxConcurrent int, cacheTTL time.Duration, cloud bool) *Client {
	if maxConcurrent <= 0 {
		maxConcurrent = defaultMaxConcurrent
	}
	if cacheTTL <= 0 {
		cacheTTL = defaultCacheTTL
	}
	return &Client{
		provider: provider,
		cache:    infra.NewCache(cacheTTL),
		sem:      semaphore.NewWeighted(int64(maxConcurrent)),
		cloud:    cloud,
	}
}

// Provider returns the underlying backend.
func (c *Client) Provider() LLMProvider { return c.provider }

// Ping checks the backend is reachable.
func (c *Client) Ping(ctx context.Context) error {
	return c.provider.Ping(ctx)
}

// cacheKey hashes the full request so identical prompts within the TTL
// window reuse the previous completion.
func cacheKey(system, prompt string, temperature float64, maxTokens int) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s\x00%s\x00%.3f\x00%d", system, prompt, temperature, maxTokens)
	return hex.EncodeToString(h.Sum(nil))
}

// throttleCloud enforces the inter-call gap for cloud backends. Must be
// called once per outbound request.
func (c *Client) throttleCloud(ctx context.Context) error {
	if !c.cloud {
		return nil
	}
	c.mu.Lock()
	wait := cloudCallGap - time.Since(c.lastCall)
	if wait < 0 {
		wait = 0
	}
	c.lastCall = time.Now().Add(wait)
	c.mu.Unlock()

	if wait == 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(wait):
		return nil
	}
}

// Generate runs a complete (non-streaming) generation with retries.
// Returns the trimmed completion text; an error means every attempt
// failed and the caller should fall back to templated output.
func (c *Client) Generate(ctx context.Context, system, prompt string, temperature float64, maxTokens int) (string, error) {
	key := cacheKey(system, prompt, temperature, maxTokens)
	if cached, ok := c.cache.Get(key); ok {
		return cached.(string), nil
	}

	if err := c.sem.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer c.sem.Release(1)

	messages := []Message{SystemMessage(system), UserMessage(prompt)}
	opts := &ChatOptions{Temperature: temperature, MaxTokens: maxTokens}

	var content string
	err := infra.RetryBackoff(ctx, generateAttempts, retryBase, retryCap, func() error {
		if err := c.throttleCloud(ctx); err != nil {
			return err
		}
		resp, err := c.provider.Chat(ctx, messages, opts)
		if err != nil {
			log.Printf("llm: %s chat failed: %v", c.provider.Name(), err)
			return err
		}
		content = resp.Content
		return nil
	})
	if err != nil {
		return "", err
	}

	c.cache.Set(key, content)
	return content, nil
}

// GenerateStream runs a streaming generation. Tokens arrive on the
// returned channel; the full text is cached once the stream completes so
// a repeat of the same request replays instantly.
func (c *Client) GenerateStream(ctx context.Context, system, prompt string, temperature float64, maxTokens int) (<-chan StreamChunk, error) {
	key := cacheKey(system, prompt, temperature, maxTokens)
	if cached, ok := c.cache.Get(key); ok {
		ch := make(chan StreamChunk, 2)
		ch <- StreamChunk{Content: cached.(string)}
		ch <- StreamChunk{Done: true, FinishReason: FinishStop}
		close(ch)
		return ch, nil
	}

	if err := c.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	if err := c.throttleCloud(ctx); err != nil {
		c.sem.Release(1)
		return nil, err
	}

	messages := []Message{SystemMessage(system), UserMessage(prompt)}
	opts := &ChatOptions{Temperature: temperature, MaxTokens: maxTokens}

	inner, err := c.provider.ChatStream(ctx, messages, opts)
	if err != nil {
		c.sem.Release(1)
		return nil, err
	}

	out := make(chan StreamChunk, 64)
	go func() {
		defer close(out)
		defer c.sem.Release(1)
		var full []byte
		failed := false
		for chunk := range inner {
			if chunk.Err != nil {
				failed = true
			}
			full = append(full, chunk.Content...)
			select {
			case out <- chunk:
			case <-ctx.Done():
				return
			}
		}
		if !failed && len(full) > 0 {
			c.cache.Set(key, string(full))
		}
	}()
	return out, nil
}

// GenerateAsync starts a generation in the background and returns a
// channel that delivers the single result.
func (c *Client) GenerateAsync(ctx context.Context, system, prompt string, temperature float64, maxTokens int) <-chan AsyncResult {
	ch := make(chan AsyncResult, 1)
	go func() {
		defer close(ch)
		content, err := c.Generate(ctx, system, prompt, temperature, maxTokens)
		ch <- AsyncResult{Content: content, Err: err}
	}()
	return ch
}

// AsyncResult is the outcome of a GenerateAsync call.
type AsyncResult struct {
	Content string
	Err     error
}
