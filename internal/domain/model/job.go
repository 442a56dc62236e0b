package model

import (
	"time"
)

type JobType string

const (
	JobTypeBattle JobType = "battle"
	JobTypeScale  JobType = "scale"
)

type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusSucceeded JobStatus = "succeeded"
	JobStatusFailed    JobStatus = "failed"
)

// Terminal reports whether no further status transition is allowed.
func (s JobStatus) Terminal() bool {
	return s == JobStatusSucceeded || s == JobStatusFailed
}

// Job is an asynchronous battle or scale-test execution tracked by the
// registry. Data carries the run result once the job succeeds; Error carries
// a short stringified cause when it fails.
type Job struct {
	ID        string      `json:"id"`
	Type      JobType     `json:"type"`
	Status    JobStatus   `json:"status"`
	Owner     string      `json:"-"`
	Data      interface{} `json:"data,omitempty"`
	Error     string      `json:"error,omitempty"`
	CreatedAt time.Time   `json:"createdAt"`
	UpdatedAt time.Time   `json:"updatedAt"`
}

func NewJob(id string, typ JobType, owner string, now time.Time) *Job {
	return &Job{
		ID:        id,
		Type:      typ,
		Status:    JobStatusPending,
		Owner:     owner,
		CreatedAt: now,
		UpdatedAt: now,
	}
}
