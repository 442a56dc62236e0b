// File: internal/infra/adapters/ai/limit_wrapper.go
package ai

import (
	"context"

	"github.com/Alterya/agents-sub000/internal/domain/ports/adapter"
)

// Compile-time check
var _ adapter.ChatAdapter = (*limitedAI)(nil)

type limitedAI struct {
	inner adapter.ChatAdapter
	sem   chan struct{}
}

// NewLimitedAI caps concurrent provider calls with a semaphore.
func NewLimitedAI(inner adapter.ChatAdapter, maxConcurrent int) adapter.ChatAdapter {
	if maxConcurrent <= 0 {
		return inner
	}
	return &limitedAI{
		inner: inner,
		sem:   make(chan struct{}, maxConcurrent),
	}
}

func (l *limitedAI) Chat(ctx context.Context, messages []adapter.Message, opts adapter.ChatOptions) (adapter.ChatResult, error) {
	l.sem <- struct{}{}
	defer func() { <-l.sem }()
	return l.inner.Chat(ctx, messages, opts)
}

func (l *limitedAI) CountTokens(ctx context.Context, model string, messages []adapter.Message) (int, error) {
	l.sem <- struct{}{}
	defer func() { <-l.sem }()
	return l.inner.CountTokens(ctx, model, messages)
}

func (l *limitedAI) ListModels(ctx context.Context) ([]string, error) {
	return l.inner.ListModels(ctx)
}
