// Package types defines core data structures for Sherpa
package types

import "time"

// TaskStatus represents the current state of a plan task
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
)

// Task is one step of a plan with its own lifecycle.
// Numbers are 1-based, assigned at append time, and never change.
type Task struct {
	Number      int        `json:"number"`
	Description string     `json:"description"`
	Status      TaskStatus `json:"status"`
	Error       string     `json:"error,omitempty"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// PlanStatus represents the derived overall state of a plan
type PlanStatus string

const (
	PlanStatusPending    PlanStatus = "pending"
	PlanStatusInProgress PlanStatus = "in_progress"
	PlanStatusCompleted  PlanStatus = "completed"
	PlanStatusFailed     PlanStatus = "failed"
)

// Plan is a flat, ordered sequence of tasks pursuing one stated goal.
// Tasks are append-only; their order is authoritative.
type Plan struct {
	Description string    `json:"description"`
	Tasks       []*Task   `json:"tasks"`
	CreatedAt   time.Time `json:"created_at"`
}

// OverallStatus derives the plan status from its tasks. Failure dominates:
// a single failed task marks the whole plan failed even if every other
// task completed.
func (p *Plan) OverallStatus() PlanStatus {
	anyInProgress := false
	allCompleted := len(p.Tasks) > 0

	for _, t := range p.Tasks {
		switch t.Status {
		case TaskStatusFailed:
			return PlanStatusFailed
		case TaskStatusInProgress:
			anyInProgress = true
			allCompleted = false
		case TaskStatusCompleted:
			// still a candidate for completed
		default:
			allCompleted = false
		}
	}

	if allCompleted {
		return PlanStatusCompleted
	}
	if anyInProgress {
		return PlanStatusInProgress
	}
	return PlanStatusPending
}

// Task returns the task with the given 1-based number, or nil if the
// number is out of range.
func (p *Plan) Task(number int) *Task {
	if number < 1 || number > len(p.Tasks) {
		return nil
	}
	return p.Tasks[number-1]
}

// CompletedCount returns how many tasks have completed
func (p *Plan) CompletedCount() int {
	n := 0
	for _, t := range p.Tasks {
		if t.Status == TaskStatusCompleted {
			n++
		}
	}
	return n
}

// ComplexityLevel buckets a request by how much planning it warrants
type ComplexityLevel string

const (
	ComplexitySimple      ComplexityLevel = "simple"
	ComplexityModerate    ComplexityLevel = "moderate"
	ComplexityComplex     ComplexityLevel = "complex"
	ComplexityVeryComplex ComplexityLevel = "very_complex"
)

// ComplexityVerdict is the result of analyzing a request. It is produced
// fresh per request and never persisted.
type ComplexityVerdict struct {
	Level     ComplexityLevel `json:"level"`
	Score     int             `json:"score"`
	Reasoning string          `json:"reasoning"`
}

// ErrorRecord is a normalized task fault: a coarse type plus the raw message
type ErrorRecord struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// ExecutionResult summarizes a finished plan run. Skipped counts tasks
// that were still pending when execution stopped; it is a reporting
// category, not a stored task status.
type ExecutionResult struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	Total     int    `json:"total"`
	Completed int    `json:"completed"`
	Failed    int    `json:"failed"`
	Skipped   int    `json:"skipped"`
}
