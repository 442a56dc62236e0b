package repository

import (
	"context"

	"github.com/Alterya/agents-sub000/internal/domain/model"
)

// ConversationRepository is the external conversation store a battle writes
// to. Writes on the battle hot path are best-effort for the caller; the
// implementations still report errors so callers can log them.
type ConversationRepository interface {
	Create(ctx context.Context, c *model.Conversation) error
	AppendMessage(ctx context.Context, m *model.Message) error
	Complete(ctx context.Context, id string, endedReason model.EndedReason, goalReached bool) error

	// Read returns the conversation with its messages in append order.
	Read(ctx context.Context, id string) (*model.Conversation, error)
}
