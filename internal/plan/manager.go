// Package plan owns the single current plan and its task lifecycle.
// A plan is a flat, ordered sequence of tasks; there is at most one
// current plan, and creating a new one discards the previous one.
package plan

import (
	"sync"
	"time"

	"github.com/cloud-shuttle/sherpa/pkg/types"
)

// Manager holds the current plan and mediates all task transitions.
// Every operation except Create is a no-op when no plan is current.
// Operations on task numbers outside the plan are silently ignored;
// downstream callers rely on that being a no-op.
type Manager struct {
	mu      sync.Mutex
	current *types.Plan
}

// NewManager creates a manager with no current plan
func NewManager() *Manager {
	return &Manager{}
}

// Create replaces the current plan with a new empty plan for the goal
func (m *Manager) Create(description string) *types.Plan {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.current = &types.Plan{
		Description: description,
		CreatedAt:   time.Now(),
	}
	return m.current
}

// AddTask appends a task with the next sequential number and returns
// that number. Returns 0 when no plan is current.
func (m *Manager) AddTask(description string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == nil {
		return 0
	}

	task := &types.Task{
		Number:      len(m.current.Tasks) + 1,
		Description: description,
		Status:      types.TaskStatusPending,
	}
	m.current.Tasks = append(m.current.Tasks, task)
	return task.Number
}

// StartTask transitions task n to in_progress and stamps its start time
func (m *Manager) StartTask(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if task := m.taskLocked(n); task != nil {
		now := time.Now()
		task.Status = types.TaskStatusInProgress
		task.StartedAt = &now
	}
}

// CompleteTask transitions task n to completed and stamps its completion time
func (m *Manager) CompleteTask(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if task := m.taskLocked(n); task != nil {
		now := time.Now()
		task.Status = types.TaskStatusCompleted
		task.CompletedAt = &now
		task.Error = ""
	}
}

// FailTask transitions task n to failed and records the error text
func (m *Manager) FailTask(n int, errMsg string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if task := m.taskLocked(n); task != nil {
		now := time.Now()
		task.Status = types.TaskStatusFailed
		task.CompletedAt = &now
		task.Error = errMsg
	}
}

// HasPlan reports whether a plan is current
func (m *Manager) HasPlan() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current != nil
}

// Current returns the current plan, or nil
func (m *Manager) Current() *types.Plan {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Clear discards the current plan
func (m *Manager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = nil
}

func (m *Manager) taskLocked(n int) *types.Task {
	if m.current == nil {
		return nil
	}
	return m.current.Task(n)
}
