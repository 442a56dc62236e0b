package repository

import (
	"context"

	"github.com/Alterya/agents-sub000/internal/domain/model"
)

type ModelPricingRepository interface {
	GetByModel(ctx context.Context, provider, modelName string) (*model.ModelPricing, error)
	ListActive(ctx context.Context) ([]*model.ModelPricing, error)
	Save(ctx context.Context, p *model.ModelPricing) error
}
