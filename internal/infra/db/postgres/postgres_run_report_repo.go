// File: internal/infra/db/postgres/postgres_run_report_repo.go
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"github.com/Alterya/agents-sub000/internal/domain"
	"github.com/Alterya/agents-sub000/internal/domain/model"
	"github.com/Alterya/agents-sub000/internal/domain/ports/repository"
)

const fkViolation = "23503"

var _ repository.RunReportRepository = (*RunReportRepo)(nil)

type RunReportRepo struct {
	pool *pgxpool.Pool
}

func NewRunReportRepo(pool *pgxpool.Pool) *RunReportRepo {
	return &RunReportRepo{pool: pool}
}

// Save upserts on run_id. A foreign-key violation (agent not seeded in this
// environment) is treated as a soft no-op; everything else propagates.
func (r *RunReportRepo) Save(ctx context.Context, rep *model.RunReport) error {
	failures, err := json.Marshal(rep.Failures)
	if err != nil {
		return fmt.Errorf("marshal failures: %w", err)
	}
	stats, err := json.Marshal(rep.Stats)
	if err != nil {
		return fmt.Errorf("marshal stats: %w", err)
	}
	const q = `
INSERT INTO run_reports (run_id, agent_id, model, system_prompt, run_count, failures, summary, revised_prompt, stats, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,NOW(),NOW())
ON CONFLICT (run_id) DO UPDATE SET
  run_count = EXCLUDED.run_count,
  failures = EXCLUDED.failures,
  summary = EXCLUDED.summary,
  revised_prompt = EXCLUDED.revised_prompt,
  stats = EXCLUDED.stats,
  updated_at = NOW();`
	_, err = r.pool.Exec(ctx, q,
		rep.RunID, rep.AgentID, rep.Model, nullIfEmpty(rep.SystemPrompt),
		rep.RunCount, failures, rep.Summary, rep.RevisedPrompt, stats)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == fkViolation {
			return nil
		}
		return fmt.Errorf("save run report: %w", err)
	}
	return nil
}

func (r *RunReportRepo) GetByRunID(ctx context.Context, runID string) (*model.RunReport, error) {
	const q = `
SELECT run_id, agent_id, model, COALESCE(system_prompt,''), run_count, failures, summary, revised_prompt, stats, created_at, updated_at
  FROM run_reports WHERE run_id=$1;`
	var rep model.RunReport
	var failures, stats []byte
	err := r.pool.QueryRow(ctx, q, runID).Scan(
		&rep.RunID, &rep.AgentID, &rep.Model, &rep.SystemPrompt, &rep.RunCount,
		&failures, &rep.Summary, &rep.RevisedPrompt, &stats, &rep.CreatedAt, &rep.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("get run report: %w", err)
	}
	if len(failures) > 0 {
		if err := json.Unmarshal(failures, &rep.Failures); err != nil {
			return nil, fmt.Errorf("unmarshal failures: %w", err)
		}
	}
	if len(stats) > 0 {
		if err := json.Unmarshal(stats, &rep.Stats); err != nil {
			return nil, fmt.Errorf("unmarshal stats: %w", err)
		}
	}
	return &rep, nil
}
