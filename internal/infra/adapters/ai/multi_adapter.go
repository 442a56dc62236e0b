// File: internal/infra/adapters/ai/multi_adapter.go
package ai

import (
	"context"
	"fmt"

	"github.com/Alterya/agents-sub000/internal/domain"
	"github.com/Alterya/agents-sub000/internal/domain/ports/adapter"
)

var _ adapter.ChatAdapter = (*MultiAdapter)(nil)

// MultiAdapter routes each call to the adapter registered for the requested
// provider. An unknown provider is an invalid argument, not a fallback.
type MultiAdapter struct {
	byProvider map[string]adapter.ChatAdapter
	def        string
}

func NewMultiAdapter(defaultProvider string) *MultiAdapter {
	return &MultiAdapter{byProvider: make(map[string]adapter.ChatAdapter), def: defaultProvider}
}

func (m *MultiAdapter) Register(provider string, a adapter.ChatAdapter) {
	m.byProvider[provider] = a
}

func (m *MultiAdapter) pick(provider string) (adapter.ChatAdapter, error) {
	if provider == "" {
		provider = m.def
	}
	a, ok := m.byProvider[provider]
	if !ok {
		return nil, fmt.Errorf("%w: unknown provider %q", domain.ErrInvalidArgument, provider)
	}
	return a, nil
}

func (m *MultiAdapter) Chat(ctx context.Context, messages []adapter.Message, opts adapter.ChatOptions) (adapter.ChatResult, error) {
	a, err := m.pick(opts.Provider)
	if err != nil {
		return adapter.ChatResult{}, err
	}
	return a.Chat(ctx, messages, opts)
}

func (m *MultiAdapter) CountTokens(ctx context.Context, model string, messages []adapter.Message) (int, error) {
	a, err := m.pick(m.def)
	if err != nil {
		return 0, err
	}
	return a.CountTokens(ctx, model, messages)
}

func (m *MultiAdapter) ListModels(ctx context.Context) ([]string, error) {
	var out []string
	for _, a := range m.byProvider {
		models, err := a.ListModels(ctx)
		if err != nil {
			continue
		}
		out = append(out, models...)
	}
	return out, nil
}
