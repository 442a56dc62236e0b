package model

import (
	"time"
)

type EndedReason string

const (
	EndedReasonGoal    EndedReason = "goal"
	EndedReasonLimit   EndedReason = "limit"
	EndedReasonError   EndedReason = "error"
	EndedReasonManual  EndedReason = "manual"
	EndedReasonTimeout EndedReason = "timeout"
)

// Message represents one message within a conversation.
type Message struct {
	ID             string
	ConversationID string
	Role           string // "system" | "user" | "assistant"
	Content        string
	TokensIn       int
	TokensOut      int
	CostUSD        float64
	CreatedAt      time.Time
}

// Conversation is the aggregate root for one battle against a model.
type Conversation struct {
	ID           string
	AgentID      string
	RunID        string
	Provider     string
	Model        string
	SystemPrompt string
	Goal         string
	GoalReached  bool
	EndedReason  EndedReason
	MessageLimit int
	Messages     []Message
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func NewConversation(id, agentID, runID, provider, model, systemPrompt, goal string, messageLimit int) *Conversation {
	now := time.Now()
	return &Conversation{
		ID:           id,
		AgentID:      agentID,
		RunID:        runID,
		Provider:     provider,
		Model:        model,
		SystemPrompt: systemPrompt,
		Goal:         goal,
		MessageLimit: messageLimit,
		Messages:     make([]Message, 0, 8),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// RunCost accumulates per-turn usage and estimated spend for one battle.
type RunCost struct {
	USDIn        float64
	USDOut       float64
	InputTokens  int
	OutputTokens int
}

func (c *RunCost) TotalUSD() float64 { return c.USDIn + c.USDOut }

// BattleResult is the outcome of one bounded conversation run.
type BattleResult struct {
	ConversationID string      `json:"conversationId"`
	GoalReached    bool        `json:"goalReached"`
	EndedReason    EndedReason `json:"endedReason"`
	MessageCount   int         `json:"messageCount"`
}
