package model

import "time"

type JobStatus string

const (
	JobPending    JobStatus = "pending"
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
)

func (s JobStatus) String() string { return string(s) }

func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

// DispatchJob is the ephemeral progress state of one bulk dispatch. It lives
// in process-local memory only and is evicted after a retention window.
type DispatchJob struct {
	ID           string
	Total        int
	Completed    int
	Success      int
	Failed       int
	CurrentBatch int
	TotalBatches int
	Status       JobStatus
	Error        string
	StartedAt    time.Time
	CompletedAt  *time.Time
}

// RecipientError describes a single recipient that could not be dispatched.
type RecipientError struct {
	Phone  string `json:"phone"`
	Reason string `json:"reason"`
}
