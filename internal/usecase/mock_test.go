//go:build !integration

package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Alterya/agents-sub000/internal/domain"
	"github.com/Alterya/agents-sub000/internal/domain/model"
	"github.com/Alterya/agents-sub000/internal/domain/ports/adapter"
)

func testLogger() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}

// ---- Fake ChatAdapter ----

type fakeAI struct {
	mu    sync.Mutex
	calls int

	ChatFunc  func(ctx context.Context, messages []adapter.Message, opts adapter.ChatOptions) (adapter.ChatResult, error)
	CountFunc func(ctx context.Context, model string, messages []adapter.Message) (int, error)
}

var _ adapter.ChatAdapter = (*fakeAI)(nil)

func (f *fakeAI) Chat(ctx context.Context, messages []adapter.Message, opts adapter.ChatOptions) (adapter.ChatResult, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.ChatFunc != nil {
		return f.ChatFunc(ctx, messages, opts)
	}
	return adapter.ChatResult{Text: "ok", Usage: &adapter.Usage{InputTokens: 10, OutputTokens: 20}}, nil
}

func (f *fakeAI) CountTokens(ctx context.Context, model string, messages []adapter.Message) (int, error) {
	if f.CountFunc != nil {
		return f.CountFunc(ctx, model, messages)
	}
	return len(messages) * 10, nil
}

func (f *fakeAI) ListModels(ctx context.Context) ([]string, error) {
	return []string{"gpt-4o-mini"}, nil
}

func (f *fakeAI) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// ---- In-memory conversation repository ----

type memConvRepo struct {
	mu   sync.Mutex
	byID map[string]*model.Conversation

	failCreate   bool
	failAppend   bool
	failComplete bool
	failRead     bool
}

func newMemConvRepo() *memConvRepo {
	return &memConvRepo{byID: map[string]*model.Conversation{}}
}

func (m *memConvRepo) Create(ctx context.Context, c *model.Conversation) error {
	if m.failCreate {
		return fmt.Errorf("create: store down")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *c
	m.byID[c.ID] = &cp
	return nil
}

func (m *memConvRepo) AppendMessage(ctx context.Context, msg *model.Message) error {
	if m.failAppend {
		return fmt.Errorf("append: store down")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.byID[msg.ConversationID]
	if !ok {
		return domain.ErrNotFound
	}
	mm := *msg
	mm.CreatedAt = time.Now()
	c.Messages = append(c.Messages, mm)
	return nil
}

func (m *memConvRepo) Complete(ctx context.Context, id string, endedReason model.EndedReason, goalReached bool) error {
	if m.failComplete {
		return fmt.Errorf("complete: store down")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.byID[id]
	if !ok {
		return domain.ErrNotFound
	}
	c.EndedReason = endedReason
	c.GoalReached = goalReached
	return nil
}

func (m *memConvRepo) Read(ctx context.Context, id string) (*model.Conversation, error) {
	if m.failRead {
		return nil, fmt.Errorf("read: store down")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.byID[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *c
	cp.Messages = append([]model.Message(nil), c.Messages...)
	return &cp, nil
}

func (m *memConvRepo) get(id string) *model.Conversation {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.byID[id]
}

// ---- In-memory run report repository ----

type memReportRepo struct {
	mu      sync.Mutex
	byRunID map[string]*model.RunReport
	saveErr error
}

func newMemReportRepo() *memReportRepo {
	return &memReportRepo{byRunID: map[string]*model.RunReport{}}
}

func (m *memReportRepo) Save(ctx context.Context, r *model.RunReport) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *r
	m.byRunID[r.RunID] = &cp
	return nil
}

func (m *memReportRepo) GetByRunID(ctx context.Context, runID string) (*model.RunReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.byRunID[runID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

// ---- Static pricing ----

type staticPricing struct {
	in, out float64
}

var _ PricingUseCase = (*staticPricing)(nil)

func (p *staticPricing) GetPricing(ctx context.Context, provider, modelName string) (Price, error) {
	return Price{InputUSDPer1K: p.in, OutputUSDPer1K: p.out}, nil
}

func (p *staticPricing) EstimateCost(ctx context.Context, provider, modelName string, usage *adapter.Usage) (float64, float64) {
	if usage == nil {
		return 0, 0
	}
	return float64(usage.InputTokens) / 1000 * p.in, float64(usage.OutputTokens) / 1000 * p.out
}

// ---- Fake summarizer ----

type fakeSummarizer struct {
	result SummaryResult
	err    error
	calls  int
	lastIn RunsLite
}

var _ Summarizer = (*fakeSummarizer)(nil)

func (f *fakeSummarizer) Summarize(ctx context.Context, input RunsLite, provider, modelName string) (SummaryResult, error) {
	f.calls++
	f.lastIn = input
	if f.err != nil {
		return SummaryResult{}, f.err
	}
	return f.result, nil
}
