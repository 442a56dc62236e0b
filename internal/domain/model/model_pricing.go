package model

import (
	"time"

	"github.com/google/uuid"
)

// ModelPricing holds USD-per-1K-token rates for one provider/model pair.
type ModelPricing struct {
	ID             string
	Provider       string
	ModelName      string
	InputUSDPer1K  float64
	OutputUSDPer1K float64
	Active         bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func NewModelPricing(provider, modelName string, inputUSDPer1K, outputUSDPer1K float64, active bool) *ModelPricing {
	now := time.Now()
	return &ModelPricing{
		ID:             uuid.NewString(),
		Provider:       provider,
		ModelName:      modelName,
		InputUSDPer1K:  inputUSDPer1K,
		OutputUSDPer1K: outputUSDPer1K,
		Active:         active,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}
