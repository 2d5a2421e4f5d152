package domain

import "time"

// JobState is the lifecycle state of an update cycle.
type JobState string

const (
	JobRunning   JobState = "running"
	JobCompleted JobState = "completed"
	JobFailed    JobState = "failed"
)

// JobError records a single token failure inside an update cycle.
type JobError struct {
	Mint    string `json:"mint"`
	Message string `json:"message"`
}

// JobStatus is the record of the most recent update cycle. One current
// value, overwritten per run; not persisted.
type JobStatus struct {
	Status          JobState   `json:"status"`
	StartTime       time.Time  `json:"startTime"`
	EndTime         *time.Time `json:"endTime,omitempty"`
	TokensProcessed int        `json:"tokensProcessed"`
	TokensUpdated   int        `json:"tokensUpdated"`
	Errors          []JobError `json:"errors,omitempty"`

	// Error holds the cycle-level failure message when Status is JobFailed.
	Error string `json:"error,omitempty"`
}
