// Package provider implements LLM provider clients over raw HTTP: Anthropic,
// OpenAI, Gemini, and an OpenAI-compatible gateway. All clients share the
// Client interface; the factory and fallback resolver pick which one serves
// a given consultation member.
package provider

import (
	"context"
	"time"

	"quorum/internal/types"
)

// Client is the interface all provider clients implement.
type Client interface {
	// Complete sends a prompt and returns the completion with token usage.
	Complete(ctx context.Context, prompt string) (string, *types.Usage, error)

	// CompleteWithSystem sends a prompt with a system message.
	CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, *types.Usage, error)

	// CompleteWithStreaming sends a prompt with streaming enabled and
	// returns channels of incremental content deltas. Both channels are
	// closed when the stream ends; at most one error is sent.
	CompleteWithStreaming(ctx context.Context, systemPrompt, userPrompt string) (<-chan string, <-chan error)

	// Name returns the provider identifier ("anthropic", "openai", ...).
	Name() string

	// Model returns the model this client targets.
	Model() string
}

// Options configures a provider client.
type Options struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

// Provider identifiers.
const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
	ProviderGemini    = "gemini"
	ProviderGateway   = "gateway"
)

// Default models per provider.
const (
	defaultAnthropicModel = "claude-sonnet-4-20250514"
	defaultOpenAIModel    = "gpt-4o"
	defaultGeminiModel    = "gemini-2.0-flash"
)

const (
	defaultTimeout   = 10 * time.Minute
	defaultMaxTokens = 4096
	// minRequestGap rate-limits back-to-back calls on a single client.
	minRequestGap = 100 * time.Millisecond
	maxRetries    = 3
)

func (o *Options) applyDefaults(model string) {
	if o.Model == "" {
		o.Model = model
	}
	if o.Timeout <= 0 {
		o.Timeout = defaultTimeout
	}
	if o.MaxTokens <= 0 {
		o.MaxTokens = defaultMaxTokens
	}
}
