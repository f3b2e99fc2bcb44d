// Package recovery bridges the plan executor to the error knowledge
// store: it wraps raised faults into normalized error records and
// forwards resolution outcomes for learning.
package recovery

import (
	"log"
	"strings"

	"github.com/cloud-shuttle/sherpa/internal/knowledge"
	"github.com/cloud-shuttle/sherpa/pkg/types"
)

// Recorder wraps task faults and talks to the knowledge store on the
// executor's behalf. The executor depends only on this wrapping, never
// on the store directly.
type Recorder struct {
	store   *knowledge.Store
	verbose bool
}

// NewRecorder creates a recorder backed by the given knowledge store
func NewRecorder(store *knowledge.Store) *Recorder {
	return &Recorder{store: store}
}

// SetVerbose enables verbose logging
func (r *Recorder) SetVerbose(v bool) {
	r.verbose = v
}

// RecordFailure wraps a task failure into an error record. The record
// enters the knowledge store only once a resolution attempt's outcome is
// known; at this point there is nothing to learn from yet.
func (r *Recorder) RecordFailure(taskDescription, errorMessage string) types.ErrorRecord {
	rec := types.ErrorRecord{
		Type:    classifyErrorType(errorMessage),
		Message: errorMessage,
	}

	if r.verbose {
		log.Printf("🧠 Captured failure [%s] on task %q: %s", rec.Type, taskDescription, errorMessage)
	}

	return rec
}

// Suggestions returns learned solution texts for the record, best first
func (r *Recorder) Suggestions(rec types.ErrorRecord) []string {
	solutions := r.store.GetLearnedSolutions(rec)
	out := make([]string, len(solutions))
	for i, s := range solutions {
		out[i] = s.Solution
	}
	return out
}

// RecordResolutionSuccess records that a solution resolved the error
func (r *Recorder) RecordResolutionSuccess(rec types.ErrorRecord, solution, outcome string) {
	r.store.RecordSuccessfulResolution(rec, solution, outcome)
	if r.verbose {
		log.Printf("🧠 Learned resolution for [%s]: %s", rec.Type, solution)
	}
}

// RecordResolutionFailure records that an attempted solution did not work
func (r *Recorder) RecordResolutionFailure(rec types.ErrorRecord, attempted, reason string) {
	r.store.RecordFailedResolution(rec, attempted, reason)
	if r.verbose {
		log.Printf("🧠 Recorded failed attempt for [%s]: %s", rec.Type, reason)
	}
}

// classifyErrorType buckets an error message into a coarse type. The
// type is half of the pattern signature, so buckets need to be stable,
// not precise.
func classifyErrorType(message string) string {
	lower := strings.ToLower(message)

	switch {
	case strings.Contains(lower, "timeout") || strings.Contains(lower, "timed out"):
		return "timeout"
	case strings.Contains(lower, "connection") || strings.Contains(lower, "network"):
		return "network"
	case strings.Contains(lower, "permission") || strings.Contains(lower, "denied"):
		return "permission"
	case strings.Contains(lower, "not found") || strings.Contains(lower, "no such"):
		return "not_found"
	case strings.Contains(lower, "exception"):
		return "exception"
	case strings.Contains(lower, "cannot") || strings.Contains(lower, "unable to"):
		return "capability"
	default:
		return "task_failure"
	}
}
