// File: internal/infra/adapters/ai/noop_ai.go
package ai

import (
	"context"
	"strings"

	"github.com/Alterya/agents-sub000/internal/domain/ports/adapter"
)

var _ adapter.ChatAdapter = (*NoopAdapter)(nil)

// NoopAdapter is a deterministic stub for dev mode: it echoes the last user
// message and reports fixed usage, so battles terminate predictably without
// spending money.
type NoopAdapter struct{}

func NewNoopAdapter() *NoopAdapter { return &NoopAdapter{} }

func (NoopAdapter) Chat(_ context.Context, messages []adapter.Message, _ adapter.ChatOptions) (adapter.ChatResult, error) {
	text := "dev: ok"
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == "user" {
			text = "dev: " + messages[i].Content
			break
		}
	}
	return adapter.ChatResult{
		Text:  text,
		Usage: &adapter.Usage{InputTokens: 10, OutputTokens: 20},
	}, nil
}

func (NoopAdapter) CountTokens(_ context.Context, _ string, messages []adapter.Message) (int, error) {
	total := 0
	for _, m := range messages {
		total += len(strings.Fields(m.Content))
	}
	return total, nil
}

func (NoopAdapter) ListModels(context.Context) ([]string, error) {
	return []string{"dev-echo"}, nil
}
