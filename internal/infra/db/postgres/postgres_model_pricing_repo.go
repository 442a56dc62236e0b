// File: internal/infra/db/postgres/postgres_model_pricing_repo.go
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"github.com/Alterya/agents-sub000/internal/domain"
	"github.com/Alterya/agents-sub000/internal/domain/model"
	"github.com/Alterya/agents-sub000/internal/domain/ports/repository"
)

var _ repository.ModelPricingRepository = (*ModelPricingRepo)(nil)

type ModelPricingRepo struct {
	pool *pgxpool.Pool
}

func NewModelPricingRepo(pool *pgxpool.Pool) *ModelPricingRepo {
	return &ModelPricingRepo{pool: pool}
}

func (r *ModelPricingRepo) GetByModel(ctx context.Context, provider, modelName string) (*model.ModelPricing, error) {
	const q = `
SELECT id, provider, model_name, input_usd_per_1k, output_usd_per_1k, active, created_at, updated_at
  FROM model_pricing
 WHERE provider=$1 AND model_name=$2 AND active=TRUE
 LIMIT 1;`
	var p model.ModelPricing
	err := r.pool.QueryRow(ctx, q, provider, modelName).Scan(
		&p.ID, &p.Provider, &p.ModelName, &p.InputUSDPer1K, &p.OutputUSDPer1K, &p.Active, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("get model pricing: %w", err)
	}
	return &p, nil
}

func (r *ModelPricingRepo) ListActive(ctx context.Context) ([]*model.ModelPricing, error) {
	const q = `
SELECT id, provider, model_name, input_usd_per_1k, output_usd_per_1k, active, created_at, updated_at
  FROM model_pricing WHERE active=TRUE ORDER BY provider, model_name;`
	rows, err := r.pool.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list model pricing: %w", err)
	}
	defer rows.Close()
	var out []*model.ModelPricing
	for rows.Next() {
		var p model.ModelPricing
		if err := rows.Scan(&p.ID, &p.Provider, &p.ModelName, &p.InputUSDPer1K, &p.OutputUSDPer1K, &p.Active, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan model pricing: %w", err)
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}

func (r *ModelPricingRepo) Save(ctx context.Context, p *model.ModelPricing) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	p.UpdatedAt = time.Now()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = p.UpdatedAt
	}
	const q = `
INSERT INTO model_pricing (id, provider, model_name, input_usd_per_1k, output_usd_per_1k, active, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
ON CONFLICT (provider, model_name) DO UPDATE SET
  input_usd_per_1k = EXCLUDED.input_usd_per_1k,
  output_usd_per_1k = EXCLUDED.output_usd_per_1k,
  active = EXCLUDED.active,
  updated_at = EXCLUDED.updated_at;`
	_, err := r.pool.Exec(ctx, q, p.ID, p.Provider, p.ModelName, p.InputUSDPer1K, p.OutputUSDPer1K, p.Active, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save model pricing: %w", err)
	}
	return nil
}
