// File: internal/infra/guard/guard.go
package guard

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/Alterya/agents-sub000/internal/config"
	"github.com/Alterya/agents-sub000/internal/domain"
)

// Enforcer validates chat requests against the configured caps. Pure
// validation; callers must treat a returned error as a hard stop.
type Enforcer struct {
	maxTokensPerCall   int
	maxMessagesPerConv int
	allowedModels      map[string]struct{}
}

func NewEnforcer(cfg config.GuardConfig) *Enforcer {
	allowed := make(map[string]struct{}, len(cfg.AllowedModels))
	for _, m := range cfg.AllowedModels {
		allowed[m] = struct{}{}
	}
	return &Enforcer{
		maxTokensPerCall:   cfg.MaxTokensPerCall,
		maxMessagesPerConv: cfg.MaxMessagesPerConv,
		allowedModels:      allowed,
	}
}

func (e *Enforcer) MaxTokensPerCall() int    { return e.maxTokensPerCall }
func (e *Enforcer) MaxMessagesPerConvo() int { return e.maxMessagesPerConv }

// EnforceCaps rejects requests over the per-call token cap, over the
// per-conversation message cap, or naming a model outside the allow-list
// (empty allow-list admits all models).
func (e *Enforcer) EnforceCaps(requestedMaxTokens, messageCount int, model string) error {
	maxTokens := requestedMaxTokens
	if maxTokens == 0 {
		maxTokens = e.maxTokensPerCall
	}
	if maxTokens > e.maxTokensPerCall {
		return fmt.Errorf("%w: maxTokens %d > %d", domain.ErrCapExceeded, maxTokens, e.maxTokensPerCall)
	}
	if messageCount > e.maxMessagesPerConv {
		return fmt.Errorf("%w: message count %d > %d", domain.ErrCapExceeded, messageCount, e.maxMessagesPerConv)
	}
	if len(e.allowedModels) > 0 {
		if _, ok := e.allowedModels[model]; !ok {
			return fmt.Errorf("%w: model not allowed: %s", domain.ErrCapExceeded, model)
		}
	}
	return nil
}

// RateLimiter admits or rejects one request for a key. Requests over the cap
// are rejected, never queued.
type RateLimiter interface {
	Allow(ctx context.Context, key string) error
}

type memoryWindow struct {
	count   int
	startAt time.Time
}

// MemoryRateLimiter is a fixed 60-second window counter per key, shared
// across callers and guarded by one lock.
type MemoryRateLimiter struct {
	mu      sync.Mutex
	windows map[string]*memoryWindow
	limit   int
	window  time.Duration
	now     func() time.Time
}

func NewMemoryRateLimiter(rpm int) *MemoryRateLimiter {
	return &MemoryRateLimiter{
		windows: make(map[string]*memoryWindow),
		limit:   rpm,
		window:  time.Minute,
		now:     time.Now,
	}
}

var _ RateLimiter = (*MemoryRateLimiter)(nil)

func (r *MemoryRateLimiter) Allow(_ context.Context, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	w := r.windows[key]
	if w == nil || now.Sub(w.startAt) >= r.window {
		r.windows[key] = &memoryWindow{count: 1, startAt: now}
		return nil
	}
	if w.count >= r.limit {
		return fmt.Errorf("%w: key %s", domain.ErrRateLimited, key)
	}
	w.count++
	return nil
}

// NopRateLimiter admits everything; used when rate limiting is disabled.
type NopRateLimiter struct{}

var _ RateLimiter = NopRateLimiter{}

func (NopRateLimiter) Allow(context.Context, string) error { return nil }

// BackoffDelay returns the retry delay for a zero-based attempt index:
// 250ms, 750ms, 1250ms... plus up to 100ms of jitter.
func BackoffDelay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	base := 250*time.Millisecond + time.Duration(attempt)*500*time.Millisecond
	jitter := time.Duration(rand.Intn(100)) * time.Millisecond
	return base + jitter
}
