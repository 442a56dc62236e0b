package model

import (
	"time"
)

// RunFailure describes one failed battle inside a scale test.
type RunFailure struct {
	RunID string `json:"runId,omitempty"`
	Error string `json:"error"`
}

// RunStats is the numeric aggregate of a scale test plus the summarizer's
// rationale. It is stored as JSON inside the report row.
type RunStats struct {
	Succeeded       int      `json:"succeeded"`
	Failed          int      `json:"failed"`
	ConversationIDs []string `json:"conversationIds"`
	Rationale       string   `json:"rationale,omitempty"`
}

// RunReport is the durable record of one scale test, keyed by run id.
type RunReport struct {
	RunID         string
	AgentID       string
	Model         string
	SystemPrompt  string
	RunCount      int
	Failures      []RunFailure
	Summary       string
	RevisedPrompt string
	Stats         RunStats
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// ScaleResult is the in-memory outcome returned to the job registry.
type ScaleResult struct {
	RunID           string   `json:"runId"`
	Total           int      `json:"total"`
	Succeeded       int      `json:"succeeded"`
	Failed          int      `json:"failed"`
	ConversationIDs []string `json:"conversationIds"`
}
