package domain

import (
	"time"

	"github.com/google/uuid"
)

// ItemFailure names one record a batch could not process.
type ItemFailure struct {
	ID     string `json:"id"`
	Reason string `json:"reason"`
}

// BatchResult aggregates a batch operation where items succeed or fail independently.
type BatchResult struct {
	Total   int           `json:"total"`
	Updated int           `json:"updated"`
	Failed  []ItemFailure `json:"failed"`
}

// FailedCount returns the number of failed items.
func (b BatchResult) FailedCount() int { return len(b.Failed) }

// JobResult is returned by every scheduled job invocation.
type JobResult struct {
	Success   bool          `json:"success"`
	Processed int           `json:"processed"`
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
	Duration  time.Duration `json:"duration"`
	// Skipped is true when the period was already completed by an earlier run.
	Skipped  bool          `json:"skipped,omitempty"`
	Failures []ItemFailure `json:"failures,omitempty"`
}

// Status maps a result to the job_execution_log status.
func (r JobResult) Status() JobStatus {
	switch {
	case !r.Success:
		return JobStatusError
	case r.Failed > 0:
		return JobStatusPartialFailure
	default:
		return JobStatusSuccess
	}
}

// JobExecution is one row of job_execution_log.
type JobExecution struct {
	ID         uuid.UUID      `json:"id"`
	JobName    string         `json:"job_name"`
	PeriodKey  string         `json:"period_key"`
	Status     JobStatus      `json:"status"`
	Processed  int            `json:"processed"`
	Succeeded  int            `json:"succeeded"`
	Failed     int            `json:"failed"`
	DurationMS int64          `json:"duration_ms"`
	Details    map[string]any `json:"details,omitempty"`
	StartedAt  int64          `json:"started_at"`
	FinishedAt int64          `json:"finished_at"`
}

// TransitionLog is one row of workflow_transition_log: every manual or
// automatic transition attempt, successful or not.
type TransitionLog struct {
	ID         uuid.UUID `json:"id"`
	EntityType string    `json:"entity_type"`
	EntityID   uuid.UUID `json:"entity_id"`
	FromStage  string    `json:"from_stage"`
	ToStage    string    `json:"to_stage"`
	UserID     uuid.UUID `json:"user_id"`
	Reason     string    `json:"reason,omitempty"`
	Automatic  bool      `json:"automatic"`
	Success    bool      `json:"success"`
	Error      string    `json:"error,omitempty"`
	CreatedAt  int64     `json:"created_at"`
}
