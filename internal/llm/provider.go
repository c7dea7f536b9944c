// Package llm abstracts the text-generation backends used to write the
// narrative sections of a report. A single LLMProvider interface covers
// local Ollama instances and the OpenAI, Gemini and Anthropic cloud APIs;
// the Client in generate.go adds caching, concurrency limits and retry
// behavior on top.
package llm

import (
	"context"
	"errors"
	"time"
)

// Provider identifiers.
const (
	ProviderOllama    = "ollama"
	ProviderOpenAI    = "openai"
	ProviderGemini    = "gemini"
	ProviderAnthropic = "anthropic"
)

// Common errors returned by providers.
var (
	ErrNoAPIKey      = errors.New("llm: missing or invalid API key")
	ErrRateLimit     = errors.New("llm: rate limited")
	ErrContextLength = errors.New("llm: context length exceeded")
	ErrProviderDown  = errors.New("llm: provider unreachable")
	ErrInvalidModel  = errors.New("llm: invalid model")
	ErrNoProviders   = errors.New("llm: no providers available")
)

// Role identifies the author of a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// FinishReason indicates why generation stopped.
type FinishReason string

const (
	FinishStop   FinishReason = "stop"
	FinishLength FinishReason = "length"
)

// Message is a single turn in a conversation.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Response is a complete (non-streaming) generation result.
type Response struct {
	Content      string        `json:"content"`
	FinishReason FinishReason  `json:"finish_reason"`
	Usage        Usage         `json:"usage"`
	Model        string        `json:"model"`
	Provider     string        `json:"provider"`
	Latency      time.Duration `json:"latency"`
}

// Usage reports token consumption for a request.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// StreamChunk is one increment of a streaming response. Err is set when
// the stream fails mid-flight; the channel is closed after the final
// chunk either way.
type StreamChunk struct {
	Content      string       `json:"content"`
	FinishReason FinishReason `json:"finish_reason,omitempty"`
	Done         bool         `json:"done"`
	Err          error        `json:"-"`
}

// ChatOptions override per-request generation parameters.
type ChatOptions struct {
	Model       string   `json:"model,omitempty"`
	Temperature float64  `json:"temperature,omitempty"`
	MaxTokens   int      `json:"max_tokens,omitempty"`
	TopP        float64  `json:"top_p,omitempty"`
	Stop        []string `json:"stop,omitempty"`
}

// LLMProvider is the interface every text-generation backend implements.
type LLMProvider interface {
	// Name returns the provider identifier (e.g., "openai", "ollama").
	Name() string

	// Chat sends a conversation and returns a complete response.
	Chat(ctx context.Context, messages []Message, opts *ChatOptions) (*Response, error)

	// ChatStream sends a conversation and returns a channel of streaming
	// chunks. The channel is closed when the response is complete.
	ChatStream(ctx context.Context, messages []Message, opts *ChatOptions) (<-chan StreamChunk, error)

	// Ping checks if the provider is reachable and the API key is valid.
	Ping(ctx context.Context) error
}

// SystemMessage creates a system prompt message.
func SystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

// UserMessage creates a user message.
func UserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

func mapFinishReason(reason string) FinishReason {
	switch reason {
	case "stop", "end_turn", "STOP":
		return FinishStop
	case "length", "max_tokens", "MAX_TOKENS":
		return FinishLength
	default:
		return FinishReason(reason)
	}
}
