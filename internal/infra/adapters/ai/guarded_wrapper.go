// File: internal/infra/adapters/ai/guarded_wrapper.go
package ai

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/Alterya/agents-sub000/internal/domain"
	"github.com/Alterya/agents-sub000/internal/domain/ports/adapter"
	"github.com/Alterya/agents-sub000/internal/infra/guard"
	"github.com/Alterya/agents-sub000/internal/infra/metrics"
)

const maxChatAttempts = 3

// Compile-time check
var _ adapter.ChatAdapter = (*guardedAI)(nil)

// guardedAI enforces caps and rate limits before every chat call and retries
// transient provider failures with backoff. Guardrail rejections are hard
// stops; callers must not retry them.
type guardedAI struct {
	inner    adapter.ChatAdapter
	enforcer *guard.Enforcer
	limiter  guard.RateLimiter
	log      *zerolog.Logger
}

func NewGuardedAI(inner adapter.ChatAdapter, enforcer *guard.Enforcer, limiter guard.RateLimiter, log *zerolog.Logger) adapter.ChatAdapter {
	return &guardedAI{inner: inner, enforcer: enforcer, limiter: limiter, log: log}
}

func (g *guardedAI) Chat(ctx context.Context, messages []adapter.Message, opts adapter.ChatOptions) (adapter.ChatResult, error) {
	if err := g.enforcer.EnforceCaps(opts.MaxTokens, len(messages), opts.Model); err != nil {
		metrics.GuardBlocked(opts.Provider, opts.Model, "cap")
		return adapter.ChatResult{}, err
	}
	if err := g.limiter.Allow(ctx, opts.Provider+":"+opts.Model); err != nil {
		metrics.GuardBlocked(opts.Provider, opts.Model, "rate_limit")
		return adapter.ChatResult{}, err
	}

	var lastErr error
	for attempt := 0; attempt < maxChatAttempts; attempt++ {
		start := time.Now()
		res, err := g.inner.Chat(ctx, messages, opts)
		latency := int(time.Since(start) / time.Millisecond)
		if err == nil {
			in, out := 0, 0
			if res.Usage != nil {
				in, out = res.Usage.InputTokens, res.Usage.OutputTokens
			}
			metrics.ObserveChatUsage(opts.Provider, opts.Model, in, out, latency, true)
			return res, nil
		}
		metrics.ObserveChatUsage(opts.Provider, opts.Model, 0, 0, latency, false)
		lastErr = err
		if attempt < maxChatAttempts-1 && IsTransient(err) {
			delay := guard.BackoffDelay(attempt)
			metrics.IncRetry(opts.Provider, opts.Model)
			g.log.Warn().Err(err).
				Str("provider", opts.Provider).
				Str("model", opts.Model).
				Int("attempt", attempt).
				Dur("backoff", delay).
				Msg("transient provider failure, retrying")
			select {
			case <-time.After(delay):
				continue
			case <-ctx.Done():
				return adapter.ChatResult{}, ctx.Err()
			}
		}
		break
	}
	return adapter.ChatResult{}, lastErr
}

func (g *guardedAI) CountTokens(ctx context.Context, model string, messages []adapter.Message) (int, error) {
	return g.inner.CountTokens(ctx, model, messages)
}

func (g *guardedAI) ListModels(ctx context.Context) ([]string, error) {
	return g.inner.ListModels(ctx)
}

// IsGuardrailError reports whether err came from the guardrail layer rather
// than the provider.
func IsGuardrailError(err error) bool {
	return errors.Is(err, domain.ErrCapExceeded) || errors.Is(err, domain.ErrRateLimited)
}
