package plan

import (
	"context"
	"errors"
	"strings"
	"testing"
)

// mockEngine returns a fixed response or error
type mockEngine struct {
	response string
	err      error
	prompt   string
}

func (m *mockEngine) Query(ctx context.Context, prompt string) (string, error) {
	m.prompt = prompt
	return m.response, m.err
}

func TestDecomposeGoalFencedJSON(t *testing.T) {
	eng := &mockEngine{response: "Here is the breakdown:\n```json\n[\"create the schema\", \"write the handler\", \"add tests\"]\n```"}

	steps, err := DecomposeGoal(context.Background(), eng, "build the API", 10)
	if err != nil {
		t.Fatalf("DecomposeGoal: %v", err)
	}
	if len(steps) != 3 {
		t.Fatalf("expected 3 steps, got %d: %v", len(steps), steps)
	}
	if steps[0] != "create the schema" {
		t.Errorf("unexpected first step: %q", steps[0])
	}
	if !strings.Contains(eng.prompt, "build the API") {
		t.Error("prompt missing the goal")
	}
}

func TestDecomposeGoalRawArray(t *testing.T) {
	eng := &mockEngine{response: `["only step one", "only step two"]`}

	steps, err := DecomposeGoal(context.Background(), eng, "goal", 10)
	if err != nil {
		t.Fatalf("DecomposeGoal: %v", err)
	}
	if len(steps) != 2 {
		t.Fatalf("expected 2 steps, got %v", steps)
	}
}

func TestDecomposeGoalCapsSteps(t *testing.T) {
	eng := &mockEngine{response: `["a1", "a2", "a3", "a4", "a5"]`}

	steps, err := DecomposeGoal(context.Background(), eng, "goal", 3)
	if err != nil {
		t.Fatalf("DecomposeGoal: %v", err)
	}
	if len(steps) != 3 {
		t.Errorf("expected steps capped at 3, got %d", len(steps))
	}
}

func TestDecomposeGoalSkipsBlankSteps(t *testing.T) {
	eng := &mockEngine{response: `["real step", "  ", ""]`}

	steps, err := DecomposeGoal(context.Background(), eng, "goal", 10)
	if err != nil {
		t.Fatalf("DecomposeGoal: %v", err)
	}
	if len(steps) != 1 || steps[0] != "real step" {
		t.Errorf("expected blank steps dropped, got %v", steps)
	}
}

func TestDecomposeGoalErrors(t *testing.T) {
	if _, err := DecomposeGoal(context.Background(), &mockEngine{err: errors.New("down")}, "goal", 10); err == nil {
		t.Error("expected engine error to propagate")
	}
	if _, err := DecomposeGoal(context.Background(), &mockEngine{response: "no JSON here"}, "goal", 10); err == nil {
		t.Error("expected error when no array present")
	}
	if _, err := DecomposeGoal(context.Background(), &mockEngine{response: `[]`}, "goal", 10); err == nil {
		t.Error("expected error for empty step list")
	}
}
