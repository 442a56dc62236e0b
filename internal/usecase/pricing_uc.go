// File: internal/usecase/pricing_uc.go
package usecase

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Alterya/agents-sub000/internal/domain/model"
	"github.com/Alterya/agents-sub000/internal/domain/ports/adapter"
	"github.com/Alterya/agents-sub000/internal/domain/ports/repository"
)

// Price is a USD-per-1K-token rate pair.
type Price struct {
	InputUSDPer1K  float64
	OutputUSDPer1K float64
}

// Compile-time check
var _ PricingUseCase = (*pricingUC)(nil)

// PricingUseCase maps (provider, model, usage) to estimated USD cost.
type PricingUseCase interface {
	GetPricing(ctx context.Context, provider, modelName string) (Price, error)
	// EstimateCost never fails; unknown models fall back to provider
	// defaults with family heuristics.
	EstimateCost(ctx context.Context, provider, modelName string, usage *adapter.Usage) (usdIn, usdOut float64)
}

const pricingCacheTTL = time.Hour

// Static per-provider defaults (USD per 1K tokens) used when the pricing
// table has no row for a model.
var pricingDefaults = map[string]Price{
	"openai":     {InputUSDPer1K: 0.002, OutputUSDPer1K: 0.006},
	"openrouter": {InputUSDPer1K: 0.0015, OutputUSDPer1K: 0.005},
	"gemini":     {InputUSDPer1K: 0.001, OutputUSDPer1K: 0.004},
}

type cachedPrice struct {
	price Price
	at    time.Time
}

type pricingUC struct {
	repo repository.ModelPricingRepository // nil is allowed: defaults only
	log  *zerolog.Logger

	mu    sync.Mutex
	cache map[string]cachedPrice
	now   func() time.Time
}

func NewPricingUseCase(repo repository.ModelPricingRepository, log *zerolog.Logger) *pricingUC {
	return &pricingUC{
		repo:  repo,
		log:   log,
		cache: make(map[string]cachedPrice),
		now:   time.Now,
	}
}

func (p *pricingUC) GetPricing(ctx context.Context, provider, modelName string) (Price, error) {
	key := provider + ":" + modelName
	p.mu.Lock()
	hit, ok := p.cache[key]
	p.mu.Unlock()
	if ok && p.now().Sub(hit.at) < pricingCacheTTL {
		return hit.price, nil
	}

	price := defaultPrice(provider, modelName)
	if p.repo != nil {
		row, err := p.repo.GetByModel(ctx, provider, modelName)
		if err == nil {
			price = Price{InputUSDPer1K: row.InputUSDPer1K, OutputUSDPer1K: row.OutputUSDPer1K}
		} else {
			p.log.Debug().Err(err).Str("provider", provider).Str("model", modelName).
				Msg("no pricing row, using defaults")
		}
	}

	p.mu.Lock()
	p.cache[key] = cachedPrice{price: price, at: p.now()}
	p.mu.Unlock()
	return price, nil
}

func (p *pricingUC) EstimateCost(ctx context.Context, provider, modelName string, usage *adapter.Usage) (float64, float64) {
	if usage == nil {
		return 0, 0
	}
	price, _ := p.GetPricing(ctx, provider, modelName)
	usdIn := float64(usage.InputTokens) / 1000 * price.InputUSDPer1K
	usdOut := float64(usage.OutputTokens) / 1000 * price.OutputUSDPer1K
	return usdIn, usdOut
}

// defaultPrice applies the provider defaults plus simple family heuristics:
// gpt-4 class costs 3x, mini/small variants cost 0.6x.
func defaultPrice(provider, modelName string) Price {
	base, ok := pricingDefaults[provider]
	if !ok {
		base = pricingDefaults["openai"]
	}
	family := strings.ToLower(modelName)
	switch {
	case strings.Contains(family, "gpt-4"):
		return Price{InputUSDPer1K: base.InputUSDPer1K * 3, OutputUSDPer1K: base.OutputUSDPer1K * 3}
	case strings.Contains(family, "mini") || strings.Contains(family, "small"):
		return Price{InputUSDPer1K: base.InputUSDPer1K * 0.6, OutputUSDPer1K: base.OutputUSDPer1K * 0.6}
	}
	return base
}

// SeedDefaults writes the static default rates into the pricing table; used
// by cmd/seed.
func SeedDefaults(ctx context.Context, repo repository.ModelPricingRepository) error {
	for provider, price := range pricingDefaults {
		p := model.NewModelPricing(provider, "default", price.InputUSDPer1K, price.OutputUSDPer1K, true)
		if err := repo.Save(ctx, p); err != nil {
			return err
		}
	}
	return nil
}
