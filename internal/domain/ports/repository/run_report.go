package repository

import (
	"context"

	"github.com/Alterya/agents-sub000/internal/domain/model"
)

// RunReportRepository stores scale-test reports. Save is idempotent on run
// id (upsert).
type RunReportRepository interface {
	Save(ctx context.Context, r *model.RunReport) error
	GetByRunID(ctx context.Context, runID string) (*model.RunReport, error)
}
