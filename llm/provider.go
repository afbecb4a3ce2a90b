// Package llm provides the language-model providers behind the decision
// backend.
package llm

import (
	"context"
	"sync"
	"time"

	perrors "github.com/vinayprograms/pulse/errors"
)

// Message represents an LLM message.
type Message struct {
	Role    string `json:"role"` // system, user, assistant
	Content string `json:"content"`
}

// ChatRequest represents a chat request to the LLM.
type ChatRequest struct {
	Messages  []Message `json:"messages"`
	MaxTokens int       `json:"max_tokens,omitempty"`

	// JSON asks the provider for a bare JSON object where it supports it.
	JSON bool `json:"json,omitempty"`
}

// ChatResponse represents a chat response from the LLM.
type ChatResponse struct {
	Content      string `json:"content"`
	StopReason   string `json:"stop_reason"`
	InputTokens  int    `json:"input_tokens"`
	OutputTokens int    `json:"output_tokens"`
	Model        string `json:"model"`
}

// Provider is the interface for LLM providers.
type Provider interface {
	// Chat sends a chat request and returns the response.
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
}

// Config selects and configures a provider.
type Config struct {
	Provider  string      `toml:"provider"` // anthropic, openai, google; inferred from model if empty
	Model     string      `toml:"model"`
	APIKey    string      `toml:"api_key"`
	BaseURL   string      `toml:"base_url"` // OpenAI-compatible gateways, proxies
	MaxTokens int         `toml:"max_tokens"`
	Retry     RetryConfig `toml:"retry"`
}

// RetryConfig holds retry settings for LLM calls.
type RetryConfig struct {
	MaxRetries  int           `toml:"max_retries"`  // default 2
	InitBackoff time.Duration `toml:"init_backoff"` // default 1s
	MaxBackoff  time.Duration `toml:"max_backoff"`  // default 8s
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Provider == "" {
		return perrors.InvalidConfig("llm.provider", "required (or a model name it can be inferred from)")
	}
	if c.Model == "" {
		return perrors.InvalidConfig("llm.model", "required")
	}
	if c.APIKey == "" {
		return perrors.InvalidConfig("llm.api_key", "required")
	}
	if c.MaxTokens <= 0 {
		return perrors.InvalidConfig("llm.max_tokens", "must be positive")
	}
	return nil
}

// --- Mock Provider for Testing ---

// MockProvider is a scripted provider for tests. It is safe for concurrent use.
type MockProvider struct {
	mu          sync.Mutex
	response    string
	err         error
	lastRequest *ChatRequest
	callCount   int

	// ChatFunc can be overridden for custom behavior
	ChatFunc func(ctx context.Context, req ChatRequest) (*ChatResponse, error)
}

// NewMockProvider creates a new mock provider.
func NewMockProvider() *MockProvider {
	return &MockProvider{}
}

// SetResponse sets the response content.
func (p *MockProvider) SetResponse(content string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.response = content
}

// SetError sets an error to return.
func (p *MockProvider) SetError(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
}

// LastRequest returns the last request.
func (p *MockProvider) LastRequest() *ChatRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastRequest
}

// CallCount returns the number of Chat calls made.
func (p *MockProvider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.callCount
}

// Chat implements the Provider interface.
func (p *MockProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	p.mu.Lock()
	p.callCount++
	p.lastRequest = &req
	fn, resp, err := p.ChatFunc, p.response, p.err
	p.mu.Unlock()

	if fn != nil {
		return fn(ctx, req)
	}
	if err != nil {
		return nil, err
	}
	return &ChatResponse{Content: resp, StopReason: "end_turn", Model: "mock"}, nil
}
