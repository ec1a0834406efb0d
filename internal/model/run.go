package model

import "time"

// RunStatus represents the outcome of a single report execution
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// RunResult is published after each execution attempt
type RunResult struct {
	RunID       string    `json:"run_id"`
	ScheduleID  string    `json:"schedule_id"`
	Shop        string    `json:"shop"`
	Status      RunStatus `json:"status"`
	OrderCount  int       `json:"order_count"`
	Error       string    `json:"error,omitempty"`
	CompletedAt time.Time `json:"completed_at"`
}
