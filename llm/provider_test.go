package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	perrors "github.com/vinayprograms/pulse/errors"
)

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		ok   bool
	}{
		{"complete", Config{Provider: "anthropic", Model: "claude-sonnet-4", APIKey: "k", MaxTokens: 512}, true},
		{"no provider", Config{Model: "m", APIKey: "k", MaxTokens: 512}, false},
		{"no model", Config{Provider: "openai", APIKey: "k", MaxTokens: 512}, false},
		{"no key", Config{Provider: "openai", Model: "m", MaxTokens: 512}, false},
		{"no max tokens", Config{Provider: "openai", Model: "m", APIKey: "k"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err == nil) != tt.ok {
				t.Errorf("Validate() = %v, want ok=%v", err, tt.ok)
			}
			if err != nil && !perrors.Is(err, perrors.ErrCodeInvalidConfig) {
				t.Errorf("expected INVALID_CONFIG, got %v", err)
			}
		})
	}
}

func TestInferProviderFromModel(t *testing.T) {
	tests := map[string]string{
		"claude-sonnet-4-5": "anthropic",
		"GPT-4o-mini":       "openai",
		"o3-mini":           "openai",
		"gemini-2.0-flash":  "google",
		"llama-3.1-70b":     "",
	}
	for model, want := range tests {
		if got := InferProviderFromModel(model); got != want {
			t.Errorf("InferProviderFromModel(%q) = %q, want %q", model, got, want)
		}
	}
}

func TestNewProvider(t *testing.T) {
	ctx := context.Background()

	p, err := NewProvider(ctx, Config{Model: "claude-haiku-4-5", APIKey: "k", MaxTokens: 256})
	if err != nil {
		t.Fatalf("NewProvider: %v", err)
	}
	tp, ok := p.(*TracingProvider)
	if !ok {
		t.Fatalf("expected traced provider, got %T", p)
	}
	if _, ok := tp.Unwrap().(*AnthropicProvider); !ok {
		t.Errorf("expected anthropic provider, got %T", tp.Unwrap())
	}

	if _, err := NewProvider(ctx, Config{Model: "mystery-model", APIKey: "k", MaxTokens: 1}); err == nil {
		t.Error("expected error for uninferable model")
	}
	if _, err := NewProvider(ctx, Config{Provider: "cohere", Model: "x", APIKey: "k", MaxTokens: 1}); err == nil {
		t.Error("expected error for unsupported provider")
	}
}

func TestMockProvider(t *testing.T) {
	m := NewMockProvider()
	m.SetResponse(`{"checks_to_run":[],"reasoning":"quiet"}`)

	resp, err := m.Chat(context.Background(), ChatRequest{Messages: []Message{{Role: "user", Content: "hi"}}})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if !strings.Contains(resp.Content, "checks_to_run") {
		t.Errorf("content = %q", resp.Content)
	}
	if m.CallCount() != 1 || m.LastRequest().Messages[0].Content != "hi" {
		t.Error("request not recorded")
	}

	m.SetError(errors.New("down"))
	if _, err := m.Chat(context.Background(), ChatRequest{}); err == nil {
		t.Error("expected scripted error")
	}
}

func fastRetry() RetryConfig {
	return RetryConfig{MaxRetries: 2, InitBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond}
}

func TestWithRetry(t *testing.T) {
	ctx := context.Background()

	var calls int
	got, err := withRetry(ctx, fastRetry(), "test", func() (string, error) {
		calls++
		if calls < 3 {
			return "", errors.New("503 service unavailable")
		}
		return "ok", nil
	})
	if err != nil || got != "ok" || calls != 3 {
		t.Errorf("got %q, %v after %d calls", got, err, calls)
	}

	calls = 0
	_, err = withRetry(ctx, fastRetry(), "test", func() (string, error) {
		calls++
		return "", errors.New("400 bad request")
	})
	if calls != 1 || !perrors.Is(err, perrors.ErrCodeDecisionFailed) {
		t.Errorf("non-retryable: calls=%d err=%v", calls, err)
	}

	calls = 0
	_, err = withRetry(ctx, fastRetry(), "test", func() (string, error) {
		calls++
		return "", errors.New("429 too many requests")
	})
	if calls != 3 || !perrors.Is(err, perrors.ErrCodeRateLimit) {
		t.Errorf("rate limited: calls=%d err=%v", calls, err)
	}

	_, err = withRetry(ctx, fastRetry(), "test", func() (string, error) {
		return "", errors.New("your credit balance is too low")
	})
	if perrors.IsRetryable(err) {
		t.Errorf("billing errors must not be retryable: %v", err)
	}
}

func TestWithRetry_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := RetryConfig{MaxRetries: 5, InitBackoff: time.Hour, MaxBackoff: time.Hour}

	done := make(chan error, 1)
	go func() {
		_, err := withRetry(ctx, cfg, "test", func() (int, error) {
			return 0, errors.New("502 bad gateway")
		})
		done <- err
	}()
	cancel()

	select {
	case err := <-done:
		if !perrors.Is(err, perrors.ErrCodeCanceled) {
			t.Errorf("expected CANCELED, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("withRetry ignored cancellation")
	}
}

func TestOpenAIProvider_MockServer(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if attempts.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			io.WriteString(w, `{"error":{"message":"service unavailable"}}`)
			return
		}
		var body map[string]interface{}
		json.NewDecoder(r.Body).Decode(&body)
		format, _ := body["response_format"].(map[string]interface{})
		if format["type"] != "json_object" {
			t.Errorf("response_format = %v", body["response_format"])
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{
			"id": "chatcmpl-1", "object": "chat.completion", "created": 1, "model": "gpt-4o-mini",
			"choices": [{"index": 0, "finish_reason": "stop",
				"message": {"role": "assistant", "content": "{\"checks_to_run\":[],\"reasoning\":\"quiet\"}"}}],
			"usage": {"prompt_tokens": 42, "completion_tokens": 7, "total_tokens": 49}
		}`)
	}))
	defer server.Close()

	p, err := NewOpenAIProvider(Config{
		Model: "gpt-4o-mini", APIKey: "test", MaxTokens: 256,
		BaseURL: server.URL + "/", Retry: fastRetry(),
	})
	if err != nil {
		t.Fatalf("NewOpenAIProvider: %v", err)
	}

	resp, err := p.Chat(context.Background(), ChatRequest{
		Messages: []Message{{Role: "system", Content: "decide"}, {Role: "user", Content: "now"}},
		JSON:     true,
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if resp.Content != `{"checks_to_run":[],"reasoning":"quiet"}` {
		t.Errorf("content = %q", resp.Content)
	}
	if resp.InputTokens != 42 || resp.OutputTokens != 7 {
		t.Errorf("tokens = %d/%d", resp.InputTokens, resp.OutputTokens)
	}
	if attempts.Load() != 2 {
		t.Errorf("attempts = %d, want retry after 503", attempts.Load())
	}
}

func TestAnthropicProvider_MockServer(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/v1/messages") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var body map[string]interface{}
		json.NewDecoder(r.Body).Decode(&body)
		if _, ok := body["system"]; !ok {
			t.Error("system prompt not sent")
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{
			"id": "msg_1", "type": "message", "role": "assistant", "model": "claude-haiku-4-5",
			"content": [{"type": "text", "text": "{\"checks_to_run\":[\"c1\"],\"reasoning\":\"meeting\"}"}],
			"stop_reason": "end_turn",
			"usage": {"input_tokens": 30, "output_tokens": 12}
		}`)
	}))
	defer server.Close()

	p, err := NewAnthropicProvider(Config{
		Model: "claude-haiku-4-5", APIKey: "test", MaxTokens: 256,
		BaseURL: server.URL + "/", Retry: fastRetry(),
	})
	if err != nil {
		t.Fatalf("NewAnthropicProvider: %v", err)
	}

	resp, err := p.Chat(context.Background(), ChatRequest{
		Messages: []Message{{Role: "system", Content: "decide"}, {Role: "user", Content: "now"}},
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if !strings.Contains(resp.Content, `"c1"`) || resp.StopReason != "end_turn" {
		t.Errorf("response = %+v", resp)
	}

	if _, err := p.Chat(context.Background(), ChatRequest{Messages: []Message{{Role: "system", Content: "only"}}}); err == nil {
		t.Error("expected error without a user message")
	}
}

func TestTracingProvider_PassesThrough(t *testing.T) {
	m := NewMockProvider()
	m.SetResponse("ok")
	p := WithTracing(m, "mock")

	resp, err := p.Chat(context.Background(), ChatRequest{Messages: []Message{{Role: "user", Content: "x"}}})
	if err != nil || resp.Content != "ok" {
		t.Errorf("got %v, %v", resp, err)
	}

	m.SetError(errors.New("down"))
	if _, err := p.Chat(context.Background(), ChatRequest{}); err == nil {
		t.Error("error should propagate")
	}
}
