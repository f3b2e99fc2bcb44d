package executor

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cloud-shuttle/sherpa/internal/plan"
	"github.com/cloud-shuttle/sherpa/pkg/types"
)

// mockEngine replays scripted responses in order, repeating the last one
// when the script runs out.
type mockEngine struct {
	mu        sync.Mutex
	responses []string
	errs      []error
	prompts   []string
	release   chan struct{} // when set, Query blocks until closed
}

func (m *mockEngine) Query(ctx context.Context, prompt string) (string, error) {
	m.mu.Lock()
	m.prompts = append(m.prompts, prompt)
	i := len(m.prompts) - 1
	release := m.release
	m.mu.Unlock()

	if release != nil {
		<-release
	}

	if i < len(m.errs) && m.errs[i] != nil {
		return "", m.errs[i]
	}
	if len(m.responses) == 0 {
		return "done", nil
	}
	if i >= len(m.responses) {
		i = len(m.responses) - 1
	}
	return m.responses[i], nil
}

func (m *mockEngine) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.prompts)
}

// scriptedPrompter answers each AskChoice call from a fixed script
type scriptedPrompter struct {
	decisions []Decision
	calls     int
}

func (p *scriptedPrompter) AskChoice(prompt string, options []Decision) (Decision, error) {
	if p.calls >= len(p.decisions) {
		return DecisionStop, nil
	}
	d := p.decisions[p.calls]
	p.calls++
	return d, nil
}

// mockRecovery counts calls and serves canned suggestions
type mockRecovery struct {
	failures    []string
	suggestions []string
	successes   int
	failedRes   int
}

func (m *mockRecovery) RecordFailure(taskDescription, errorMessage string) types.ErrorRecord {
	m.failures = append(m.failures, errorMessage)
	return types.ErrorRecord{Type: "task_failure", Message: errorMessage}
}

func (m *mockRecovery) Suggestions(rec types.ErrorRecord) []string {
	return m.suggestions
}

func (m *mockRecovery) RecordResolutionSuccess(rec types.ErrorRecord, solution, outcome string) {
	m.successes++
}

func (m *mockRecovery) RecordResolutionFailure(rec types.ErrorRecord, attempted, reason string) {
	m.failedRes++
}

func planWith(t *testing.T, descriptions ...string) *plan.Manager {
	t.Helper()
	m := plan.NewManager()
	m.Create("test goal")
	for _, d := range descriptions {
		m.AddTask(d)
	}
	return m
}

func newTestSession(plans *plan.Manager, eng Engine, prompter DecisionProvider, rec FailureRecovery) *Session {
	return NewSession(&SessionConfig{
		Plans:     plans,
		Engine:    eng,
		Prompter:  prompter,
		Recovery:  rec,
		TaskDelay: time.Millisecond,
	})
}

func TestExecutePlanAllSucceed(t *testing.T) {
	plans := planWith(t, "first step", "second step", "third step")
	eng := &mockEngine{responses: []string{"done"}}

	s := newTestSession(plans, eng, &StaticPrompter{Decision: DecisionStop}, nil)
	result := s.ExecutePlan(context.Background(), "")

	if !result.Success {
		t.Errorf("expected success, got %+v", result)
	}
	if result.Completed != 3 || result.Failed != 0 || result.Skipped != 0 {
		t.Errorf("unexpected counts: %+v", result)
	}
	if eng.callCount() != 3 {
		t.Errorf("expected 3 engine calls, got %d", eng.callCount())
	}
	if plans.Current().OverallStatus() != types.PlanStatusCompleted {
		t.Errorf("expected completed plan, got %s", plans.Current().OverallStatus())
	}
}

func TestExecutePlanNoPlan(t *testing.T) {
	s := newTestSession(plan.NewManager(), &mockEngine{}, &StaticPrompter{Decision: DecisionStop}, nil)
	result := s.ExecutePlan(context.Background(), "")
	if result.Success {
		t.Error("expected failure without a plan")
	}
}

func TestExecutePlanPreCompletedTasksNotReRun(t *testing.T) {
	plans := planWith(t, "first step", "second step")
	plans.StartTask(1)
	plans.CompleteTask(1)
	plans.StartTask(2)
	plans.CompleteTask(2)

	eng := &mockEngine{}
	s := newTestSession(plans, eng, &StaticPrompter{Decision: DecisionStop}, nil)
	result := s.ExecutePlan(context.Background(), "")

	if !result.Success {
		t.Errorf("expected success, got %+v", result)
	}
	if result.Completed != 2 {
		t.Errorf("expected completed=2, got %d", result.Completed)
	}
	if eng.callCount() != 0 {
		t.Errorf("pre-completed tasks must not hit the engine, got %d calls", eng.callCount())
	}
}

func TestExecutePlanFailureSkipped(t *testing.T) {
	plans := planWith(t, "first step", "second step")
	eng := &mockEngine{responses: []string{"Error: disk full", "done"}}
	rec := &mockRecovery{}

	s := newTestSession(plans, eng, &StaticPrompter{Decision: DecisionSkip}, rec)
	result := s.ExecutePlan(context.Background(), "")

	if result.Success {
		t.Error("expected failure result when a task stays failed")
	}
	if result.Completed != 1 || result.Failed != 1 || result.Skipped != 0 {
		t.Errorf("unexpected counts: %+v", result)
	}

	task := plans.Current().Task(1)
	if task.Status != types.TaskStatusFailed {
		t.Errorf("expected task 1 failed, got %s", task.Status)
	}
	if task.Error != "Error: disk full" {
		t.Errorf("expected extracted error line, got %q", task.Error)
	}
	if len(rec.failures) != 1 {
		t.Errorf("expected exactly one recorded failure, got %d", len(rec.failures))
	}
}

func TestExecutePlanRetrySucceeds(t *testing.T) {
	plans := planWith(t, "only step")
	eng := &mockEngine{responses: []string{"Error: flaky tool", "done"}}
	rec := &mockRecovery{suggestions: []string{"clear the tool cache"}}

	s := newTestSession(plans, eng, &scriptedPrompter{decisions: []Decision{DecisionRetry}}, rec)
	result := s.ExecutePlan(context.Background(), "")

	if !result.Success {
		t.Errorf("expected success after retry, got %+v", result)
	}
	if result.Completed != 1 || result.Failed != 0 {
		t.Errorf("unexpected counts: %+v", result)
	}
	if rec.successes != 1 {
		t.Errorf("expected one resolution success, got %d", rec.successes)
	}

	if eng.callCount() != 2 {
		t.Fatalf("expected 2 engine calls, got %d", eng.callCount())
	}
	retry := eng.prompts[1]
	if !strings.Contains(retry, "Previous Attempt Failed") {
		t.Error("retry prompt missing previous failure section")
	}
	if !strings.Contains(retry, "clear the tool cache") {
		t.Error("retry prompt missing learned guidance")
	}
}

func TestExecutePlanRetryFailsAgainStops(t *testing.T) {
	plans := planWith(t, "first step", "second step", "third step")
	eng := &mockEngine{responses: []string{"failed: still broken"}}
	rec := &mockRecovery{}

	s := newTestSession(plans, eng, &scriptedPrompter{decisions: []Decision{DecisionRetry}}, rec)
	result := s.ExecutePlan(context.Background(), "")

	if result.Success {
		t.Error("expected failure result")
	}
	if result.Failed != 1 || result.Skipped != 2 {
		t.Errorf("expected 1 failed, 2 skipped, got %+v", result)
	}
	if rec.failedRes != 1 {
		t.Errorf("expected one failed resolution, got %d", rec.failedRes)
	}
	// Exactly one retry: initial attempt + retry, then stop
	if eng.callCount() != 2 {
		t.Errorf("expected 2 engine calls, got %d", eng.callCount())
	}
}

func TestExecutePlanStopDecision(t *testing.T) {
	plans := planWith(t, "first step", "second step", "third step")
	eng := &mockEngine{responses: []string{"cannot proceed"}}

	s := newTestSession(plans, eng, &StaticPrompter{Decision: DecisionStop}, &mockRecovery{})
	result := s.ExecutePlan(context.Background(), "")

	if result.Failed != 1 || result.Skipped != 2 || result.Completed != 0 {
		t.Errorf("unexpected counts: %+v", result)
	}
	// Skipped tasks keep their stored pending status
	if got := plans.Current().Task(2).Status; got != types.TaskStatusPending {
		t.Errorf("skipped task should remain pending, got %s", got)
	}
}

func TestExecutePlanEngineErrorIsTaskFailure(t *testing.T) {
	plans := planWith(t, "only step")
	eng := &mockEngine{errs: []error{errors.New("connection refused")}}

	s := newTestSession(plans, eng, &StaticPrompter{Decision: DecisionSkip}, &mockRecovery{})
	result := s.ExecutePlan(context.Background(), "")

	if result.Failed != 1 {
		t.Errorf("expected engine error counted as failure, got %+v", result)
	}
	if got := plans.Current().Task(1).Error; got != "connection refused" {
		t.Errorf("expected transport error on task, got %q", got)
	}
}

func TestExecutePlanRejectsConcurrentRun(t *testing.T) {
	plans := planWith(t, "slow step")
	release := make(chan struct{})
	eng := &mockEngine{responses: []string{"done"}, release: release}

	s := newTestSession(plans, eng, &StaticPrompter{Decision: DecisionStop}, nil)

	done := make(chan types.ExecutionResult, 1)
	go func() {
		done <- s.ExecutePlan(context.Background(), "")
	}()

	// Wait for the first run to reach the engine
	for eng.callCount() == 0 {
		time.Sleep(time.Millisecond)
	}

	second := s.ExecutePlan(context.Background(), "")
	if second.Success || second.Message != "execution already in progress" {
		t.Errorf("expected concurrent run rejection, got %+v", second)
	}

	close(release)
	first := <-done
	if !first.Success {
		t.Errorf("original run should finish normally, got %+v", first)
	}
}

func TestExecutePlanStopBeforeFirstTask(t *testing.T) {
	plans := planWith(t, "first step", "second step")
	eng := &mockEngine{responses: []string{"done"}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := newTestSession(plans, eng, &StaticPrompter{Decision: DecisionStop}, nil)
	result := s.ExecutePlan(ctx, "")

	if result.Skipped != 2 || result.Completed != 0 {
		t.Errorf("expected all tasks skipped on cancelled context, got %+v", result)
	}
	if eng.callCount() != 0 {
		t.Errorf("cancelled run must not hit the engine, got %d calls", eng.callCount())
	}
}

func TestBuildTaskPromptIncludesOnlyEarlierCompleted(t *testing.T) {
	plans := planWith(t, "set up schema", "write migration", "run migration")
	plans.StartTask(1)
	plans.CompleteTask(1)

	p := plans.Current()
	prompt := buildTaskPrompt(p, p.Task(2), "a Go service")

	if !strings.Contains(prompt, "a Go service") {
		t.Error("prompt missing project context")
	}
	if !strings.Contains(prompt, "Current Step (2 of 3)") {
		t.Error("prompt missing step position")
	}
	if !strings.Contains(prompt, "1. set up schema") {
		t.Error("prompt missing earlier completed task")
	}
	if strings.Contains(prompt, "run migration") && strings.Contains(prompt, "Already Completed\n\n3.") {
		t.Error("prompt must not list later tasks as completed")
	}
}

func TestKeywordClassifier(t *testing.T) {
	tests := []struct {
		name     string
		response string
		failed   bool
		reason   string
	}{
		{"clean success", "Created the file and updated the config.", false, ""},
		{"error prefix", "Error: file not found\nI could not proceed.", true, "Error: file not found"},
		{"failed marker", "The build failed: missing dependency", true, "The build failed: missing dependency"},
		{"cannot marker", "I cannot access that directory", true, genericFailureReason},
		{"unable marker", "unable to resolve the host", true, genericFailureReason},
		{"case insensitive", "ERROR: permission denied", true, "ERROR: permission denied"},
		{"mentions errors benignly", "Added better handling for user mistakes.", false, ""},
	}

	c := KeywordClassifier{}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.Classify(tt.response)
			if got.Failed != tt.failed {
				t.Errorf("Classify(%q).Failed = %v, want %v", tt.response, got.Failed, tt.failed)
			}
			if tt.failed && got.Reason != tt.reason {
				t.Errorf("Classify(%q).Reason = %q, want %q", tt.response, got.Reason, tt.reason)
			}
		})
	}
}
