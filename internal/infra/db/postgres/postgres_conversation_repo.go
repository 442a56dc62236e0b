// File: internal/infra/db/postgres/postgres_conversation_repo.go
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

var _ repository.ConversationRepository = (*ConversationRepo)(nil)

type ConversationRepo struct {
	pool *pgxpool.Pool
}

func NewConversationRepo(pool *pgxpool.Pool) *ConversationRepo {
	return &ConversationRepo{pool: pool}
}

func (r *ConversationRepo) Create(ctx context.Context, c *model.Conversation) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	const q = `
INSERT INTO conversations (id, agent_id, run_id, provider, model, system_prompt, goal, goal_reached, message_limit, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,FALSE,$8,COALESCE($9,NOW()),COALESCE($10,NOW()));`
	_, err := r.pool.Exec(ctx, q,
		c.ID, c.AgentID, nullIfEmpty(c.RunID), c.Provider, c.Model,
		nullIfEmpty(c.SystemPrompt), nullIfEmpty(c.Goal), c.MessageLimit,
		c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create conversation: %w", err)
	}
	return nil
}

func (r *ConversationRepo) AppendMessage(ctx context.Context, m *model.Message) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}
	const q = `
INSERT INTO messages (id, conversation_id, role, content, tokens_in, tokens_out, cost_usd, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8);`
	_, err := r.pool.Exec(ctx, q,
		m.ID, m.ConversationID, m.Role, m.Content, m.TokensIn, m.TokensOut, m.CostUSD, m.CreatedAt)
	if err != nil {
		return fmt.Errorf("append message: %w", err)
	}
	return nil
}

func (r *ConversationRepo) Complete(ctx context.Context, id string, endedReason model.EndedReason, goalReached bool) error {
	const q = `
UPDATE conversations SET ended_reason=$2, goal_reached=$3, updated_at=NOW() WHERE id=$1;`
	ct, err := r.pool.Exec(ctx, q, id, string(endedReason), goalReached)
	if err != nil {
		return fmt.Errorf("complete conversation: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *ConversationRepo) Read(ctx context.Context, id string) (*model.Conversation, error) {
	const qc = `
SELECT id, agent_id, COALESCE(run_id,''), provider, model, COALESCE(system_prompt,''), COALESCE(goal,''),
       goal_reached, COALESCE(ended_reason,''), message_limit, created_at, updated_at
  FROM conversations WHERE id=$1;`
	var c model.Conversation
	var reason string
	err := r.pool.QueryRow(ctx, qc, id).Scan(
		&c.ID, &c.AgentID, &c.RunID, &c.Provider, &c.Model, &c.SystemPrompt, &c.Goal,
		&c.GoalReached, &reason, &c.MessageLimit, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("read conversation: %w", err)
	}
	c.EndedReason = model.EndedReason(reason)

	const qm = `
SELECT id, role, content, tokens_in, tokens_out, cost_usd, created_at
  FROM messages WHERE conversation_id=$1 ORDER BY created_at ASC, id ASC;`
	rows, err := r.pool.Query(ctx, qm, id)
	if err != nil {
		return nil, fmt.Errorf("read messages: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		m := model.Message{ConversationID: id}
		if err := rows.Scan(&m.ID, &m.Role, &m.Content, &m.TokensIn, &m.TokensOut, &m.CostUSD, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		c.Messages = append(c.Messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read messages: %w", err)
	}
	return &c, nil
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
