package decision

import (
	"context"

	"github.com/vinayprograms/pulse/llm"
)

// Backend turns a prompt into the model's raw text answer.
type Backend interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// BackendFunc adapts a function to Backend.
type BackendFunc func(ctx context.Context, prompt string) (string, error)

// Complete calls f.
func (f BackendFunc) Complete(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

// ProviderBackend sends prompts to an llm.Provider in JSON mode.
type ProviderBackend struct {
	provider  llm.Provider
	maxTokens int
}

// FromProvider adapts an llm.Provider into a Backend.
func FromProvider(p llm.Provider) *ProviderBackend {
	return &ProviderBackend{provider: p, maxTokens: 512}
}

// Complete implements Backend.
func (b *ProviderBackend) Complete(ctx context.Context, prompt string) (string, error) {
	resp, err := b.provider.Chat(ctx, llm.ChatRequest{
		Messages: []llm.Message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: prompt},
		},
		MaxTokens: b.maxTokens,
		JSON:      true,
	})
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

const systemPrompt = `You are the scheduler of a personal assistant. Every few minutes you decide which background checks are worth running right now.

Silence is good. Most of the time the right answer is to run nothing.

Respond with exactly one JSON object and nothing else:
{"checks_to_run": ["<check id>", ...], "reasoning": "<one short sentence>"}`
