// File: internal/infra/adapters/ai/openai_adapter.go
package ai

import (
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"github.com/pkoukk/tiktoken-go"

	"github.com/Alterya/agents-sub000/internal/domain"
	"github.com/Alterya/agents-sub000/internal/domain/ports/adapter"
)

const openRouterBase = "https://openrouter.ai/api/v1"

// Compile-time assurance this adapter satisfies the port
var _ adapter.ChatAdapter = (*OpenAIAdapter)(nil)

// OpenAIAdapter implements adapter.ChatAdapter through the Chat Completions
// API. It serves both the "openai" and "openrouter" providers; OpenRouter
// speaks the same protocol behind a different base URL.
type OpenAIAdapter struct {
	client       openai.Client
	provider     string
	defaultModel string
}

func NewOpenAIAdapter(apiKey, defaultModel string) (*OpenAIAdapter, error) {
	if apiKey == "" {
		return nil, errors.New("openai api key empty")
	}
	if defaultModel == "" {
		defaultModel = "gpt-4o-mini"
	}
	return &OpenAIAdapter{
		client:       openai.NewClient(option.WithAPIKey(apiKey)),
		provider:     "openai",
		defaultModel: defaultModel,
	}, nil
}

// NewOpenRouterAdapter points the same client at OpenRouter. site is sent as
// the HTTP-Referer attribution header when non-empty.
func NewOpenRouterAdapter(apiKey, site, defaultModel string) (*OpenAIAdapter, error) {
	if apiKey == "" {
		return nil, errors.New("openrouter api key empty")
	}
	if defaultModel == "" {
		defaultModel = "openai/gpt-4o-mini"
	}
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithBaseURL(openRouterBase),
		option.WithHeader("X-Title", "Agent Wars"),
	}
	if site != "" {
		opts = append(opts, option.WithHeader("HTTP-Referer", site))
	}
	return &OpenAIAdapter{
		client:       openai.NewClient(opts...),
		provider:     "openrouter",
		defaultModel: defaultModel,
	}, nil
}

func (o *OpenAIAdapter) Chat(ctx context.Context, messages []adapter.Message, opts adapter.ChatOptions) (adapter.ChatResult, error) {
	model := opts.Model
	if model == "" {
		model = o.defaultModel
	}
	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(model),
		Messages: toOpenAIMessages(messages),
	}
	if opts.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(opts.MaxTokens))
	}
	if opts.Temperature > 0 {
		params.Temperature = openai.Float(opts.Temperature)
	}

	resp, err := o.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return adapter.ChatResult{}, fmt.Errorf("%s chat: %w", o.provider, err)
	}
	if len(resp.Choices) == 0 {
		return adapter.ChatResult{}, fmt.Errorf("%s chat: no choices", o.provider)
	}
	res := adapter.ChatResult{Text: resp.Choices[0].Message.Content}
	if resp.Usage.PromptTokens > 0 || resp.Usage.CompletionTokens > 0 {
		res.Usage = &adapter.Usage{
			InputTokens:  int(resp.Usage.PromptTokens),
			OutputTokens: int(resp.Usage.CompletionTokens),
		}
	}
	return res, nil
}

// CountTokens approximates prompt tokens with tiktoken. Unknown models fall
// back to the cl100k_base encoding.
func (o *OpenAIAdapter) CountTokens(_ context.Context, model string, messages []adapter.Message) (int, error) {
	if model == "" {
		model = o.defaultModel
	}
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		if enc, err = tiktoken.GetEncoding("cl100k_base"); err != nil {
			return 0, fmt.Errorf("tiktoken: %w", err)
		}
	}
	total := 0
	for _, m := range messages {
		// 4 tokens of per-message chat framing overhead
		total += len(enc.Encode(m.Content, nil, nil)) + 4
	}
	return total, nil
}

func (o *OpenAIAdapter) ListModels(ctx context.Context) ([]string, error) {
	var out []string
	iter := o.client.Models.ListAutoPaging(ctx)
	for iter.Next() {
		out = append(out, iter.Current().ID)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("%s list models: %w", o.provider, err)
	}
	if len(out) == 0 {
		out = []string{o.defaultModel}
	}
	return out, nil
}

func toOpenAIMessages(messages []adapter.Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case "system":
			out = append(out, openai.SystemMessage(m.Content))
		case "assistant":
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}

// IsTransient reports whether an error is worth retrying: rate limiting
// (429), a server-side failure (5xx), or anything an adapter explicitly
// marked with domain.ErrProviderTransient.
func IsTransient(err error) bool {
	if errors.Is(err, domain.ErrProviderTransient) {
		return true
	}
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429 || (apiErr.StatusCode >= 500 && apiErr.StatusCode <= 599)
	}
	return false
}
