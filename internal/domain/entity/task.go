package entity

import "time"

// TaskState is the lifecycle state of an async task.
type TaskState string

const (
	TaskPending TaskState = "PENDING"
	TaskStarted TaskState = "STARTED"
	TaskSuccess TaskState = "SUCCESS"
	TaskFailure TaskState = "FAILURE"
	// TaskRevoked is reported by the store for cancelled tasks; clients see
	// it as a failure.
	TaskRevoked TaskState = "REVOKED"
)

// Terminal reports whether the state admits no further transitions.
func (s TaskState) Terminal() bool {
	return s == TaskSuccess || s == TaskFailure || s == TaskRevoked
}

// Task is the client-visible record of an async job.
type Task struct {
	ID        string
	Type      string
	State     TaskState
	Result    string
	Error     string
	CreatedAt time.Time
}
