//go:build !integration

package usecase

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/Alterya/agents-sub000/internal/domain"
	"github.com/Alterya/agents-sub000/internal/domain/model"
	"github.com/Alterya/agents-sub000/internal/domain/ports/adapter"
)

type memPricingRepo struct {
	mu    sync.Mutex
	rows  map[string]*model.ModelPricing
	reads int
}

func newMemPricingRepo() *memPricingRepo {
	return &memPricingRepo{rows: map[string]*model.ModelPricing{}}
}

func (m *memPricingRepo) GetByModel(ctx context.Context, provider, modelName string) (*model.ModelPricing, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reads++
	row, ok := m.rows[provider+":"+modelName]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *row
	return &cp, nil
}

func (m *memPricingRepo) ListActive(ctx context.Context) ([]*model.ModelPricing, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*model.ModelPricing, 0, len(m.rows))
	for _, r := range m.rows {
		cp := *r
		out = append(out, &cp)
	}
	return out, nil
}

func (m *memPricingRepo) Save(ctx context.Context, p *model.ModelPricing) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.rows[p.Provider+":"+p.ModelName] = &cp
	return nil
}

func (m *memPricingRepo) readCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reads
}

func TestGetPricing_RepoRowWins(t *testing.T) {
	repo := newMemPricingRepo()
	_ = repo.Save(context.Background(), model.NewModelPricing("openai", "gpt-4o-mini", 0.01, 0.03, true))
	uc := NewPricingUseCase(repo, testLogger())

	price, err := uc.GetPricing(context.Background(), "openai", "gpt-4o-mini")
	if err != nil {
		t.Fatalf("GetPricing: %v", err)
	}
	if price.InputUSDPer1K != 0.01 || price.OutputUSDPer1K != 0.03 {
		t.Fatalf("price = %+v, want repo row", price)
	}
}

func TestGetPricing_CachesForAnHour(t *testing.T) {
	repo := newMemPricingRepo()
	uc := NewPricingUseCase(repo, testLogger())
	base := time.Now()
	uc.now = func() time.Time { return base }

	for i := 0; i < 5; i++ {
		if _, err := uc.GetPricing(context.Background(), "openai", "gpt-4o-mini"); err != nil {
			t.Fatalf("GetPricing: %v", err)
		}
	}
	if repo.readCount() != 1 {
		t.Fatalf("repo reads = %d, want 1 (cached)", repo.readCount())
	}

	uc.now = func() time.Time { return base.Add(pricingCacheTTL + time.Second) }
	if _, err := uc.GetPricing(context.Background(), "openai", "gpt-4o-mini"); err != nil {
		t.Fatalf("GetPricing: %v", err)
	}
	if repo.readCount() != 2 {
		t.Fatalf("repo reads = %d, want 2 after TTL", repo.readCount())
	}
}

func TestDefaultPrice_Heuristics(t *testing.T) {
	cases := []struct {
		provider, model string
		wantIn          float64
	}{
		{"openai", "gpt-3.5-turbo", 0.002},
		{"openai", "gpt-4-turbo", 0.006},         // gpt-4 family costs 3x
		{"openai", "gpt-4o-mini", 0.006},         // gpt-4 wins over mini
		{"openrouter", "llama-3-small", 0.0009},  // small variants cost 0.6x
		{"gemini", "gemini-1.5-flash", 0.001},
		{"unknown", "whatever", 0.002},           // unknown providers use openai defaults
	}
	for _, c := range cases {
		got := defaultPrice(c.provider, c.model)
		if diff := got.InputUSDPer1K - c.wantIn; diff > 1e-9 || diff < -1e-9 {
			t.Fatalf("%s/%s input = %v, want %v", c.provider, c.model, got.InputUSDPer1K, c.wantIn)
		}
	}
}

func TestEstimateCost(t *testing.T) {
	uc := NewPricingUseCase(nil, testLogger())

	usdIn, usdOut := uc.EstimateCost(context.Background(), "openai", "gpt-3.5-turbo", &adapter.Usage{InputTokens: 1000, OutputTokens: 500})
	if usdIn != 0.002 {
		t.Fatalf("usdIn = %v, want 0.002", usdIn)
	}
	if usdOut != 0.003 {
		t.Fatalf("usdOut = %v, want 0.003", usdOut)
	}

	if in, out := uc.EstimateCost(context.Background(), "openai", "gpt-3.5-turbo", nil); in != 0 || out != 0 {
		t.Fatalf("nil usage cost = %v/%v, want 0/0", in, out)
	}
}

func TestSeedDefaults(t *testing.T) {
	repo := newMemPricingRepo()
	if err := SeedDefaults(context.Background(), repo); err != nil {
		t.Fatalf("SeedDefaults: %v", err)
	}
	rows, _ := repo.ListActive(context.Background())
	if len(rows) != len(pricingDefaults) {
		t.Fatalf("seeded rows = %d, want %d", len(rows), len(pricingDefaults))
	}
}
