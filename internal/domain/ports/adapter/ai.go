package adapter

import "context"

// Message represents a chat message on the wire.
type Message struct {
	Role    string `json:"role"` // "system", "user", "assistant"
	Content string `json:"content"`
}

// Usage for a single chat call, as reported by the provider.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// ChatOptions tunes a single chat call.
type ChatOptions struct {
	Provider    string // "openai" | "openrouter" | "gemini"
	Model       string
	MaxTokens   int
	Temperature float64
}

// ChatResult is the assistant reply plus usage when the provider reports it.
type ChatResult struct {
	Text  string
	Usage *Usage
}

// ChatAdapter is the port for LLM chat. Implementations may wrap each other
// (guardrails, retry, concurrency limits) and must stay safe for concurrent
// use.
type ChatAdapter interface {
	// Chat sends the full message history and returns the assistant turn.
	Chat(ctx context.Context, messages []Message, opts ChatOptions) (ChatResult, error)

	// CountTokens returns prompt tokens for the provided messages
	// (best-effort when exact counting isn't available).
	CountTokens(ctx context.Context, model string, messages []Message) (int, error)

	ListModels(ctx context.Context) ([]string, error)
}
