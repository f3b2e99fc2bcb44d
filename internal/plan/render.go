package plan

import (
	"fmt"
	"strings"

	"github.com/cloud-shuttle/sherpa/pkg/types"
)

// statusGlyph maps a task status to its display marker
func statusGlyph(status types.TaskStatus) string {
	switch status {
	case types.TaskStatusCompleted:
		return "✅"
	case types.TaskStatusInProgress:
		return "🔄"
	case types.TaskStatusFailed:
		return "❌"
	default:
		return "⬜"
	}
}

// Render produces the full formatted view of the current plan: goal,
// progress fraction, per-task status glyphs and any attached error text.
// Returns an empty string when no plan is current.
func (m *Manager) Render() string {
	plan := m.Current()
	if plan == nil {
		return ""
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("📋 Plan: %s\n", plan.Description))
	sb.WriteString(fmt.Sprintf("   Progress: %d/%d tasks | Status: %s\n",
		plan.CompletedCount(), len(plan.Tasks), plan.OverallStatus()))

	for _, t := range plan.Tasks {
		sb.WriteString(fmt.Sprintf("   %s %d. %s\n", statusGlyph(t.Status), t.Number, t.Description))
		if t.Error != "" {
			sb.WriteString(fmt.Sprintf("      ⚠️  %s\n", t.Error))
		}
	}

	return sb.String()
}

// RenderCompact produces a one-line view showing the task currently in
// progress, or the next pending task. Returns an empty string when no
// plan is current.
func (m *Manager) RenderCompact() string {
	plan := m.Current()
	if plan == nil {
		return ""
	}

	for _, t := range plan.Tasks {
		if t.Status == types.TaskStatusInProgress {
			return fmt.Sprintf("🔄 [%d/%d] %s", t.Number, len(plan.Tasks), t.Description)
		}
	}
	for _, t := range plan.Tasks {
		if t.Status == types.TaskStatusPending {
			return fmt.Sprintf("⬜ [%d/%d] %s", t.Number, len(plan.Tasks), t.Description)
		}
	}

	return fmt.Sprintf("📋 %s: %s", plan.Description, plan.OverallStatus())
}

// PromptSummary produces a plain-text summary of the plan suitable for
// embedding in a reasoning-engine prompt.
func (m *Manager) PromptSummary() string {
	plan := m.Current()
	if plan == nil {
		return ""
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Goal: %s\n", plan.Description))
	sb.WriteString("Steps:\n")
	for _, t := range plan.Tasks {
		sb.WriteString(fmt.Sprintf("%d. [%s] %s\n", t.Number, t.Status, t.Description))
	}
	return sb.String()
}
