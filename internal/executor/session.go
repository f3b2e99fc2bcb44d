// Package executor drives a plan through the reasoning engine one task
// at a time, with operator-controlled recovery on failure. Tasks never
// run concurrently: each task's prompt depends on the completed state of
// the tasks before it.
package executor

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cloud-shuttle/sherpa/internal/plan"
	"github.com/cloud-shuttle/sherpa/pkg/types"
)

// defaultTaskDelay smooths load on the engine and gives the operator a
// moment between tasks
const defaultTaskDelay = 2 * time.Second

// Engine answers a task prompt. It may block for an arbitrary duration
// and may fail with an error, which the session surfaces as a task
// failure.
type Engine interface {
	Query(ctx context.Context, prompt string) (string, error)
}

// FailureRecovery wraps task faults into error records and mediates
// learning. The session never talks to the knowledge store directly.
type FailureRecovery interface {
	RecordFailure(taskDescription, errorMessage string) types.ErrorRecord
	Suggestions(rec types.ErrorRecord) []string
	RecordResolutionSuccess(rec types.ErrorRecord, solution, outcome string)
	RecordResolutionFailure(rec types.ErrorRecord, attempted, reason string)
}

// RunRecorder persists finished runs. Recording is best-effort: an error
// is logged as a warning and never affects the run result.
type RunRecorder interface {
	RecordRun(goal string, result types.ExecutionResult, tasks []*types.Task, startedAt time.Time) error
}

// SessionConfig holds the session's collaborators and tuning
type SessionConfig struct {
	Plans      *plan.Manager
	Engine     Engine
	Classifier Classifier       // defaults to KeywordClassifier
	Prompter   DecisionProvider // defaults to a terminal prompter
	Recovery   FailureRecovery  // optional
	History    RunRecorder      // optional
	TaskDelay  time.Duration    // defaults to 2s
	Verbose    bool
}

// Session executes the current plan. It is owned by its caller and
// enforces the one-run-at-a-time invariant itself, so no process-wide
// state is involved.
type Session struct {
	plans      *plan.Manager
	engine     Engine
	classifier Classifier
	prompter   DecisionProvider
	recovery   FailureRecovery
	history    RunRecorder
	taskDelay  time.Duration
	verbose    bool

	running atomic.Bool
	stopped atomic.Bool

	stopMu     sync.Mutex
	stopCh     chan struct{}
	stopClosed bool
}

// NewSession creates an execution session around a plan manager and an
// engine, applying defaults for any optional collaborator left nil.
func NewSession(cfg *SessionConfig) *Session {
	s := &Session{
		plans:      cfg.Plans,
		engine:     cfg.Engine,
		classifier: cfg.Classifier,
		prompter:   cfg.Prompter,
		recovery:   cfg.Recovery,
		history:    cfg.History,
		taskDelay:  cfg.TaskDelay,
		verbose:    cfg.Verbose,
	}

	if s.classifier == nil {
		s.classifier = KeywordClassifier{}
	}
	if s.prompter == nil {
		s.prompter = NewTerminalPrompter()
	}
	if s.taskDelay == 0 {
		s.taskDelay = defaultTaskDelay
	}

	return s
}

// Stop requests cooperative cancellation. Remaining pending tasks are
// reported as skipped; their stored status is untouched.
func (s *Session) Stop() {
	s.stopped.Store(true)

	s.stopMu.Lock()
	if s.stopCh != nil && !s.stopClosed {
		close(s.stopCh)
		s.stopClosed = true
	}
	s.stopMu.Unlock()
}

// taskOutcome is the result of one engine round-trip for one task
type taskOutcome struct {
	failed bool
	errMsg string
}

// ExecutePlan runs the current plan to completion, failure, or stop.
// Only one run may be active at a time; a concurrent call returns
// immediately with a failure result and performs no work. Task-level
// failures are recovered by the retry/skip/stop protocol and never
// escape this method.
func (s *Session) ExecutePlan(ctx context.Context, projectContext string) types.ExecutionResult {
	if !s.running.CompareAndSwap(false, true) {
		return types.ExecutionResult{
			Success: false,
			Message: "execution already in progress",
		}
	}
	defer s.running.Store(false)

	currentPlan := s.plans.Current()
	if currentPlan == nil || len(currentPlan.Tasks) == 0 {
		return types.ExecutionResult{
			Success: false,
			Message: "no plan to execute",
		}
	}

	s.stopped.Store(false)
	s.stopMu.Lock()
	s.stopCh = make(chan struct{})
	s.stopClosed = false
	s.stopMu.Unlock()

	startedAt := time.Now()
	total := len(currentPlan.Tasks)
	completed, failed, skipped := 0, 0, 0

	log.Printf("🧭 Executing plan: %s (%d tasks)", currentPlan.Description, total)

	for i, task := range currentPlan.Tasks {
		if s.isStopped(ctx) {
			c, f, sk := tallyRemaining(currentPlan.Tasks[i:])
			completed += c
			failed += f
			skipped += sk
			break
		}

		// Idempotent resume: never re-execute a settled task
		switch task.Status {
		case types.TaskStatusCompleted:
			completed++
			continue
		case types.TaskStatusFailed:
			failed++
			continue
		}

		s.plans.StartTask(task.Number)
		if s.verbose {
			log.Printf("🔄 Task %d/%d: %s", task.Number, total, task.Description)
		}

		prompt := buildTaskPrompt(currentPlan, task, projectContext)
		outcome := s.runTask(ctx, prompt)

		if !outcome.failed {
			s.plans.CompleteTask(task.Number)
			completed++
			log.Printf("✅ Task %d completed", task.Number)
		} else {
			s.plans.FailTask(task.Number, outcome.errMsg)
			failed++
			log.Printf("❌ Task %d failed: %s", task.Number, outcome.errMsg)

			var rec types.ErrorRecord
			if s.recovery != nil {
				rec = s.recovery.RecordFailure(task.Description, outcome.errMsg)
			}

			decision := s.askDecision(task, outcome.errMsg)
			switch decision {
			case DecisionRetry:
				if s.retryTask(ctx, currentPlan, task, prompt, rec) {
					completed++
					failed--
				} else {
					// No second retry is offered
					s.Stop()
				}
			case DecisionSkip:
				// Task stays failed; move on
			default:
				s.Stop()
			}
		}

		if i < total-1 && !s.stopped.Load() {
			s.sleepBetweenTasks(ctx)
		}
	}

	result := types.ExecutionResult{
		Success:   completed == total,
		Total:     total,
		Completed: completed,
		Failed:    failed,
		Skipped:   skipped,
	}
	result.Message = fmt.Sprintf("Plan execution finished: %d/%d completed, %d failed, %d skipped",
		completed, total, failed, skipped)

	log.Printf("🧭 %s", result.Message)

	if s.history != nil {
		if err := s.history.RecordRun(currentPlan.Description, result, currentPlan.Tasks, startedAt); err != nil {
			log.Printf("⚠️  Could not record run history: %v", err)
		}
	}

	return result
}

// runTask sends one prompt to the engine and classifies the response.
// Engine transport errors become task failures; nothing is thrown.
func (s *Session) runTask(ctx context.Context, prompt string) taskOutcome {
	response, err := s.engine.Query(ctx, prompt)
	if err != nil {
		return taskOutcome{failed: true, errMsg: err.Error()}
	}

	c := s.classifier.Classify(response)
	if c.Failed {
		return taskOutcome{failed: true, errMsg: c.Reason}
	}
	return taskOutcome{}
}

// retryTask re-runs a failed task exactly once, enriching the prompt
// with learned guidance. Returns true if the retry succeeded. The
// resolution outcome is recorded either way so the knowledge store
// learns from the attempt.
func (s *Session) retryTask(ctx context.Context, currentPlan *types.Plan, task *types.Task, basePrompt string, rec types.ErrorRecord) bool {
	var hints []string
	if s.recovery != nil {
		hints = s.recovery.Suggestions(rec)
	}

	solution := "retry task"
	if len(hints) > 0 {
		solution = "retry with learned guidance: " + strings.Join(hints, "; ")
	}

	s.plans.StartTask(task.Number)
	log.Printf("🔁 Retrying task %d", task.Number)

	outcome := s.runTask(ctx, retryPrompt(basePrompt, task.Error, hints))
	if !outcome.failed {
		s.plans.CompleteTask(task.Number)
		log.Printf("✅ Task %d completed on retry", task.Number)
		if s.recovery != nil {
			s.recovery.RecordResolutionSuccess(rec, solution, "retry succeeded")
		}
		return true
	}

	s.plans.FailTask(task.Number, outcome.errMsg)
	log.Printf("❌ Task %d failed again: %s", task.Number, outcome.errMsg)
	if s.recovery != nil {
		s.recovery.RecordResolutionFailure(rec, solution, outcome.errMsg)
	}
	return false
}

// askDecision blocks for the operator's retry/skip/stop choice. A
// prompter error is treated as a stop request.
func (s *Session) askDecision(task *types.Task, errMsg string) Decision {
	prompt := fmt.Sprintf("Task %d failed (%s). How should execution continue?", task.Number, errMsg)
	decision, err := s.prompter.AskChoice(prompt, []Decision{DecisionRetry, DecisionSkip, DecisionStop})
	if err != nil {
		log.Printf("⚠️  Could not read operator decision: %v (stopping)", err)
		return DecisionStop
	}
	return decision
}

// isStopped reports whether the stop flag is set or the context is done
func (s *Session) isStopped(ctx context.Context) bool {
	if ctx.Err() != nil {
		s.stopped.Store(true)
	}
	return s.stopped.Load()
}

// sleepBetweenTasks waits the inter-task delay; an interrupt during the
// delay is treated as a stop request.
func (s *Session) sleepBetweenTasks(ctx context.Context) {
	s.stopMu.Lock()
	stopCh := s.stopCh
	s.stopMu.Unlock()

	select {
	case <-time.After(s.taskDelay):
	case <-ctx.Done():
		s.stopped.Store(true)
	case <-stopCh:
	}
}

// tallyRemaining buckets the tasks left untouched after a stop: pending
// tasks become skipped (a reporting category only), settled tasks keep
// their counts.
func tallyRemaining(tasks []*types.Task) (completed, failed, skipped int) {
	for _, t := range tasks {
		switch t.Status {
		case types.TaskStatusCompleted:
			completed++
		case types.TaskStatusFailed:
			failed++
		default:
			skipped++
		}
	}
	return
}

// buildTaskPrompt assembles the engine prompt for one task: the task
// description, its position, and the descriptions of all earlier
// completed tasks. Later or same-numbered tasks are never included.
func buildTaskPrompt(currentPlan *types.Plan, task *types.Task, projectContext string) string {
	var sb strings.Builder

	if projectContext != "" {
		sb.WriteString("## Project Context\n\n")
		sb.WriteString(projectContext)
		sb.WriteString("\n\n")
	}

	sb.WriteString(fmt.Sprintf("## Goal\n\n%s\n\n", currentPlan.Description))
	sb.WriteString(fmt.Sprintf("## Current Step (%d of %d)\n\n%s\n\n",
		task.Number, len(currentPlan.Tasks), task.Description))

	var earlier []string
	for _, t := range currentPlan.Tasks {
		if t.Number < task.Number && t.Status == types.TaskStatusCompleted {
			earlier = append(earlier, fmt.Sprintf("%d. %s", t.Number, t.Description))
		}
	}
	if len(earlier) > 0 {
		sb.WriteString("## Already Completed\n\n")
		sb.WriteString(strings.Join(earlier, "\n"))
		sb.WriteString("\n\n")
	}

	sb.WriteString("Execute this step and report what you did. If the step cannot be completed, state the error clearly.")
	return sb.String()
}

// retryPrompt extends the base prompt with the previous error and any
// learned guidance from past resolutions.
func retryPrompt(basePrompt, prevError string, hints []string) string {
	var sb strings.Builder
	sb.WriteString(basePrompt)
	sb.WriteString(fmt.Sprintf("\n\n## Previous Attempt Failed\n\n%s\n", prevError))

	if len(hints) > 0 {
		sb.WriteString("\n## Guidance From Past Runs\n\nThese resolutions worked for similar failures before:\n")
		for _, h := range hints {
			sb.WriteString("- ")
			sb.WriteString(h)
			sb.WriteString("\n")
		}
	}

	return sb.String()
}
