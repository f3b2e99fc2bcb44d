package executor

import "strings"

// Classification is the verdict on a single engine response
type Classification struct {
	Failed bool
	Reason string
}

// Classifier judges whether an engine response indicates task failure.
// Keyword scanning of free-form output is inherently heuristic; keeping
// it behind this interface lets it be refined without touching the
// execution loop. The operator retry/skip/stop protocol exists because
// no classifier gets this right every time.
type Classifier interface {
	Classify(response string) Classification
}

// failureMarkers flag a response as failed when present, case-insensitive
var failureMarkers = []string{
	"error:",
	"failed:",
	"exception:",
	"cannot",
	"unable to",
}

// genericFailureReason is used when no error-bearing line can be found
const genericFailureReason = "task execution reported a failure"

// KeywordClassifier is the default marker-scanning classifier
type KeywordClassifier struct{}

// Classify scans the response for failure markers. On failure the reason
// is the first line containing "error" or "failed", or a generic message
// if no line matches.
func (KeywordClassifier) Classify(response string) Classification {
	lower := strings.ToLower(response)

	failed := false
	for _, marker := range failureMarkers {
		if strings.Contains(lower, marker) {
			failed = true
			break
		}
	}

	if !failed {
		return Classification{}
	}

	return Classification{
		Failed: true,
		Reason: extractErrorLine(response),
	}
}

// extractErrorLine returns the first line mentioning an error or failure
func extractErrorLine(response string) string {
	for _, line := range strings.Split(response, "\n") {
		lower := strings.ToLower(line)
		if strings.Contains(lower, "error") || strings.Contains(lower, "failed") {
			return strings.TrimSpace(line)
		}
	}
	return genericFailureReason
}
