//go:build !integration

package guard

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Alterya/agents-sub000/internal/config"
	"github.com/Alterya/agents-sub000/internal/domain"
)

func testEnforcer() *Enforcer {
	return NewEnforcer(config.GuardConfig{
		MaxTokensPerCall:   512,
		MaxMessagesPerConv: 25,
		AllowedModels:      []string{"gpt-4o-mini", "gpt-4o"},
	})
}

func TestEnforceCaps(t *testing.T) {
	e := testEnforcer()

	if err := e.EnforceCaps(256, 10, "gpt-4o-mini"); err != nil {
		t.Fatalf("valid request rejected: %v", err)
	}
	// Zero means "use the configured cap".
	if err := e.EnforceCaps(0, 10, "gpt-4o"); err != nil {
		t.Fatalf("zero maxTokens rejected: %v", err)
	}
	if err := e.EnforceCaps(513, 10, "gpt-4o-mini"); !errors.Is(err, domain.ErrCapExceeded) {
		t.Fatalf("token cap: err = %v, want ErrCapExceeded", err)
	}
	if err := e.EnforceCaps(256, 26, "gpt-4o-mini"); !errors.Is(err, domain.ErrCapExceeded) {
		t.Fatalf("message cap: err = %v, want ErrCapExceeded", err)
	}
	if err := e.EnforceCaps(256, 10, "claude-3"); !errors.Is(err, domain.ErrCapExceeded) {
		t.Fatalf("model allow-list: err = %v, want ErrCapExceeded", err)
	}
}

func TestEnforceCaps_EmptyAllowListAdmitsAll(t *testing.T) {
	e := NewEnforcer(config.GuardConfig{MaxTokensPerCall: 512, MaxMessagesPerConv: 25})
	if err := e.EnforceCaps(256, 10, "anything-goes"); err != nil {
		t.Fatalf("empty allow-list rejected model: %v", err)
	}
}

func TestMemoryRateLimiter_Window(t *testing.T) {
	rl := NewMemoryRateLimiter(3)
	base := time.Now()
	rl.now = func() time.Time { return base }
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := rl.Allow(ctx, "openai:gpt-4o-mini"); err != nil {
			t.Fatalf("request %d rejected: %v", i+1, err)
		}
	}
	if err := rl.Allow(ctx, "openai:gpt-4o-mini"); !errors.Is(err, domain.ErrRateLimited) {
		t.Fatalf("over limit: err = %v, want ErrRateLimited", err)
	}
	// A different key has its own window.
	if err := rl.Allow(ctx, "openai:gpt-4o"); err != nil {
		t.Fatalf("independent key rejected: %v", err)
	}
	// The window resets after a minute.
	rl.now = func() time.Time { return base.Add(61 * time.Second) }
	if err := rl.Allow(ctx, "openai:gpt-4o-mini"); err != nil {
		t.Fatalf("new window rejected: %v", err)
	}
}

func TestBackoffDelay(t *testing.T) {
	for attempt, base := range []time.Duration{250 * time.Millisecond, 750 * time.Millisecond, 1250 * time.Millisecond} {
		for i := 0; i < 20; i++ {
			d := BackoffDelay(attempt)
			if d < base || d >= base+100*time.Millisecond {
				t.Fatalf("attempt %d delay %v outside [%v, %v)", attempt, d, base, base+100*time.Millisecond)
			}
		}
	}
}
