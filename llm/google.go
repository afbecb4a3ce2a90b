package llm

import (
	"context"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	perrors "github.com/vinayprograms/pulse/errors"
)

// GoogleProvider implements Provider using the Gemini SDK.
type GoogleProvider struct {
	client    *genai.Client
	modelName string
	maxTokens int
	retry     RetryConfig
}

// NewGoogleProvider creates a new Gemini provider.
func NewGoogleProvider(ctx context.Context, cfg Config) (*GoogleProvider, error) {
	cfg.Provider = "google"
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	opts := []option.ClientOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithEndpoint(cfg.BaseURL))
	}
	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return nil, perrors.WrapWithCode(err, perrors.ErrCodeInvalidConfig, "create google client")
	}

	return &GoogleProvider{
		client:    client,
		modelName: cfg.Model,
		maxTokens: cfg.MaxTokens,
		retry:     cfg.Retry,
	}, nil
}

// Close closes the underlying client.
func (p *GoogleProvider) Close() error {
	return p.client.Close()
}

// Chat implements the Provider interface. Each call configures its own
// model handle, so concurrent calls do not share system instructions.
func (p *GoogleProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	model := p.client.GenerativeModel(p.modelName)
	maxTokens := int32(p.maxTokens)
	if req.MaxTokens > 0 {
		maxTokens = int32(req.MaxTokens)
	}
	model.SetMaxOutputTokens(maxTokens)
	if req.JSON {
		model.ResponseMIMEType = "application/json"
	}

	var parts []genai.Part
	cs := model.StartChat()
	for _, m := range req.Messages {
		switch m.Role {
		case "system":
			model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(m.Content)}}
		case "assistant":
			cs.History = append(cs.History, &genai.Content{Role: "model", Parts: []genai.Part{genai.Text(m.Content)}})
		default:
			if len(parts) > 0 {
				cs.History = append(cs.History, &genai.Content{Role: "user", Parts: parts})
			}
			parts = []genai.Part{genai.Text(m.Content)}
		}
	}
	if len(parts) == 0 {
		return nil, perrors.New(perrors.ErrCodeDecisionFailed, "google request has no user message")
	}

	resp, err := withRetry(ctx, p.retry, "google", func() (*genai.GenerateContentResponse, error) {
		return cs.SendMessage(ctx, parts...)
	})
	if err != nil {
		return nil, err
	}

	result := &ChatResponse{Model: p.modelName}
	if len(resp.Candidates) > 0 {
		candidate := resp.Candidates[0]
		if candidate.FinishReason != 0 {
			result.StopReason = candidate.FinishReason.String()
		}
		if candidate.Content != nil {
			for _, part := range candidate.Content.Parts {
				if text, ok := part.(genai.Text); ok {
					result.Content += string(text)
				}
			}
		}
	}
	if resp.UsageMetadata != nil {
		result.InputTokens = int(resp.UsageMetadata.PromptTokenCount)
		result.OutputTokens = int(resp.UsageMetadata.CandidatesTokenCount)
	}
	return result, nil
}
