package llm

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fahimulhaque/MarketMind/pkg/models"
)

type fakeLLM struct {
	calls   atomic.Int64
	content string
	err     error
}

func (f *fakeLLM) Name() string { return "fake" }

func (f *fakeLLM) Chat(_ context.Context, _ []Message, _ *ChatOptions) (*Response, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return &Response{Content: f.content, FinishReason: FinishStop}, nil
}

func (f *fakeLLM) ChatStream(_ context.Context, _ []Message, _ *ChatOptions) (<-chan StreamChunk, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	ch := make(chan StreamChunk, 8)
	for _, word := range []string{"hello", " ", "world"} {
		ch <- StreamChunk{Content: word}
	}
	ch <- StreamChunk{Done: true, FinishReason: FinishStop}
	close(ch)
	return ch, nil
}

func (f *fakeLLM) Ping(context.Context) error { return f.err }

func TestGenerateCachesByRequest(t *testing.T) {
	backend := &fakeLLM{content: "analysis text"}
	c := NewClientWithProvider(backend, 2, time.Minute, false)

	first, err := c.Generate(context.Background(), "sys", "prompt", 0.25, 384)
	require.NoError(t, err)
	second, err := c.Generate(context.Background(), "sys", "prompt", 0.25, 384)
	require.NoError(t, err)

	assert.Equal(t, "analysis text", first)
	assert.Equal(t, first, second)
	assert.Equal(t, int64(1), backend.calls.Load(), "second call must come from cache")
}

func TestGenerateDistinctParamsMissCache(t *testing.T) {
	backend := &fakeLLM{content: "text"}
	c := NewClientWithProvider(backend, 2, time.Minute, false)

	_, err := c.Generate(context.Background(), "sys", "prompt", 0.25, 384)
	require.NoError(t, err)
	_, err = c.Generate(context.Background(), "sys", "prompt", 0.30, 384)
	require.NoError(t, err)

	assert.Equal(t, int64(2), backend.calls.Load())
}

func TestGenerateStreamAssemblesAndCaches(t *testing.T) {
	backend := &fakeLLM{}
	c := NewClientWithProvider(backend, 2, time.Minute, false)

	ch, err := c.GenerateStream(context.Background(), "sys", "prompt", 0.3, 512)
	require.NoError(t, err)
	var full string
	for chunk := range ch {
		require.NoError(t, chunk.Err)
		full += chunk.Content
	}
	assert.Equal(t, "hello world", full)

	// A repeat of the same request replays from cache without a backend call.
	ch, err = c.GenerateStream(context.Background(), "sys", "prompt", 0.3, 512)
	require.NoError(t, err)
	full = ""
	for chunk := range ch {
		full += chunk.Content
	}
	assert.Equal(t, "hello world", full)
	assert.Equal(t, int64(1), backend.calls.Load())
}

func TestGenerateAsyncDeliversResult(t *testing.T) {
	c := NewClientWithProvider(&fakeLLM{content: "done"}, 2, time.Minute, false)
	res := <-c.GenerateAsync(context.Background(), "sys", "prompt", 0.2, 64)
	require.NoError(t, res.Err)
	assert.Equal(t, "done", res.Content)
}

func TestOllamaChatParsesResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		fmt.Fprint(w, `{"model":"qwen2.5:7b","message":{"role":"assistant","content":"brief"},"done":true,"prompt_eval_count":12,"eval_count":3}`)
	}))
	defer srv.Close()

	p, err := NewOllamaProvider(srv.URL)
	require.NoError(t, err)
	resp, err := p.Chat(context.Background(), []Message{UserMessage("hi")}, nil)
	require.NoError(t, err)
	assert.Equal(t, "brief", resp.Content)
	assert.Equal(t, 15, resp.Usage.TotalTokens)
	assert.Equal(t, FinishStop, resp.FinishReason)
}

func TestOllamaStreamYieldsTokens(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintln(w, `{"message":{"content":"alpha"},"done":false}`)
		fmt.Fprintln(w, `{"message":{"content":" beta"},"done":false}`)
		fmt.Fprintln(w, `{"message":{"content":""},"done":true,"done_reason":"stop"}`)
	}))
	defer srv.Close()

	p, err := NewOllamaProvider(srv.URL)
	require.NoError(t, err)
	ch, err := p.ChatStream(context.Background(), []Message{UserMessage("hi")}, nil)
	require.NoError(t, err)

	var full string
	var done bool
	for chunk := range ch {
		require.NoError(t, chunk.Err)
		full += chunk.Content
		done = done || chunk.Done
	}
	assert.Equal(t, "alpha beta", full)
	assert.True(t, done)
}

func TestOpenAIStreamHandlesSSE(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"one\"}}]}\n\n")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\" two\"},\"finish_reason\":\"stop\"}]}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	p, err := NewOpenAIProvider("test-key", WithOpenAIBaseURL(srv.URL))
	require.NoError(t, err)
	ch, err := p.ChatStream(context.Background(), []Message{UserMessage("hi")}, nil)
	require.NoError(t, err)

	var full string
	for chunk := range ch {
		require.NoError(t, chunk.Err)
		full += chunk.Content
	}
	assert.Equal(t, "one two", full)
}

func TestOpenAIRateLimitError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"error":{"message":"slow down","type":"rate_limit_error"}}`)
	}))
	defer srv.Close()

	p, err := NewOpenAIProvider("test-key", WithOpenAIBaseURL(srv.URL))
	require.NoError(t, err)
	_, err = p.Chat(context.Background(), []Message{UserMessage("hi")}, nil)
	assert.ErrorIs(t, err, ErrRateLimit)
}

func TestAnthropicSystemPromptLifted(t *testing.T) {
	p := &AnthropicProvider{model: "claude-sonnet-4-20250514"}
	req := p.buildRequest([]Message{
		SystemMessage("be terse"),
		UserMessage("hi"),
	}, p.model, &ChatOptions{MaxTokens: 192}, false)

	assert.Equal(t, "be terse", req.System)
	require.Len(t, req.Messages, 1)
	assert.Equal(t, "user", req.Messages[0].Role)
	assert.Equal(t, 192, req.MaxTokens)
}

func TestGeminiRolesMapped(t *testing.T) {
	p := &GeminiProvider{model: "gemini-2.0-flash"}
	req := p.buildRequest([]Message{
		SystemMessage("sys"),
		UserMessage("question"),
		{Role: RoleAssistant, Content: "answer"},
	}, nil)

	require.NotNil(t, req.SystemInstruction)
	require.Len(t, req.Contents, 2)
	assert.Equal(t, "user", req.Contents[0].Role)
	assert.Equal(t, "model", req.Contents[1].Role)
}

func TestParseJSONArray(t *testing.T) {
	tests := []struct {
		name string
		text string
		ok   bool
	}{
		{"plain array", `[{"name":"bull","probability":0.4}]`, true},
		{"fenced", "```json\n[{\"name\":\"bull\",\"probability\":0.4}]\n```", true},
		{"prose wrapped", "Here are the scenarios:\n[{\"name\":\"bull\",\"probability\":0.4}] Hope this helps.", true},
		{"no array", "I cannot produce scenarios.", false},
		{"broken json", "[{name: bull}]", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out []models.Scenario
			ok := ParseJSONArray(tt.text, &out)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				require.Len(t, out, 1)
				assert.Equal(t, "bull", out[0].Name)
			}
		})
	}
}

func TestFormatMoney(t *testing.T) {
	tests := []struct {
		value float64
		want  string
	}{
		{2.4e12, "$2.4T"},
		{53.8e9, "$53.8B"},
		{4.1e6, "$4.1M"},
		{950, "$950"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatMoney(&tt.value))
	}
	assert.Equal(t, "n/a", FormatMoney(nil))
}

func TestFormatEvidenceBlockTruncates(t *testing.T) {
	items := []models.EvidenceItem{
		{Insight: models.Insight{SourceName: "SEC EDGAR", Insight: "10-K filed", ThreatLevel: "low", Confidence: 0.72}},
		{Insight: models.Insight{SourceName: "Reuters", Insight: "guidance cut", ThreatLevel: "high", Confidence: 0.8}},
	}
	block := FormatEvidenceBlock(items, 1)
	assert.Contains(t, block, "SEC EDGAR")
	assert.NotContains(t, block, "Reuters")
}

func TestFormatFinancialsBlockHandlesEmpty(t *testing.T) {
	assert.Equal(t, "No financial snapshot available.", FormatFinancialsBlock(nil))
	assert.Equal(t, "No financial snapshot available.", FormatFinancialsBlock(&models.FinancialSnapshot{}))

	snap := &models.FinancialSnapshot{Symbol: "ACME", Price: models.Float(42.5), Currency: "USD", Source: "yahoo"}
	block := FormatFinancialsBlock(snap)
	assert.Contains(t, block, "Symbol: ACME")
	assert.Contains(t, block, "(Source: yahoo)")
}
