// Package complexity scores natural-language requests to decide whether
// they warrant a multi-step plan or can be answered directly.
package complexity

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/cloud-shuttle/sherpa/pkg/types"
)

// Score thresholds for mapping a raw score to a complexity level
const (
	thresholdModerate    = 3
	thresholdComplex     = 6
	thresholdVeryComplex = 10
)

// CommandSigil prefixes a request that should bypass planning entirely
// and go straight to command dispatch.
const CommandSigil = "/"

// actionKeywords are verbs that indicate work to be done (+2 each)
var actionKeywords = []string{
	"add", "create", "implement", "build", "refactor", "fix", "update",
	"write", "develop", "design", "integrate", "migrate", "optimize",
	"remove", "delete", "rename", "move", "setup", "configure", "install",
	"deploy", "generate", "convert", "extend", "replace",
}

// domainKeywords are nouns that indicate breadth of impact (+3 each)
var domainKeywords = []string{
	"system", "feature", "module", "database", "architecture", "api",
	"service", "component", "authentication", "authorization",
	"infrastructure", "pipeline", "framework", "integration", "schema",
	"endpoint", "workflow", "migration", "frontend", "backend",
}

// queryWords mark a question that deserves a direct answer, not a plan
var queryWords = []string{
	"what", "how", "where", "when", "why", "who", "which",
	"explain", "show", "display", "describe", "list", "tell",
}

// componentKeywords count as component mentions alongside file extensions
var componentKeywords = []string{
	"controller", "handler", "service", "repository", "model", "view",
	"client", "server", "parser", "store", "router", "middleware",
}

var (
	wordRe    = regexp.MustCompile(`[a-z0-9_]+`)
	fileExtRe = regexp.MustCompile(`\b[\w./-]+\.(go|js|jsx|ts|tsx|py|rs|java|rb|c|cpp|h|hpp|css|html|sql|json|yaml|yml|toml|md|sh|proto)\b`)
)

// Analyze scores a request and returns a complexity verdict. It is a pure
// function: same input, same verdict, no side effects.
func Analyze(text string) types.ComplexityVerdict {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return simpleVerdict("empty request")
	}

	if strings.HasPrefix(trimmed, CommandSigil) {
		return simpleVerdict("command dispatch bypasses planning")
	}

	lower := strings.ToLower(trimmed)
	words := wordRe.FindAllString(lower, -1)
	wordSet := make(map[string]bool, len(words))
	for _, w := range words {
		wordSet[w] = true
	}

	if strings.Contains(trimmed, "?") && containsAny(wordSet, queryWords) {
		return simpleVerdict("simple question")
	}

	score := 0
	var reasons []string

	actions := matchCount(wordSet, actionKeywords)
	if actions > 0 {
		score += 2 * actions
		reasons = append(reasons, fmt.Sprintf("%d action keyword(s)", actions))
	}

	domains := matchCount(wordSet, domainKeywords)
	if domains > 0 {
		score += 3 * domains
		reasons = append(reasons, fmt.Sprintf("%d domain keyword(s)", domains))
	}

	// Multiple action verbs imply multiple pieces of work
	if actions >= 2 {
		score += 2 * (actions - 1)
		reasons = append(reasons, "multiple action verbs")
	}

	mentions := fileAndComponentMentions(lower, wordSet)
	if mentions >= 2 {
		score += 2 * mentions
		reasons = append(reasons, fmt.Sprintf("%d file/component mention(s)", mentions))
	}

	if wordSet["and"] || strings.Contains(lower, "&") {
		score += 3
		reasons = append(reasons, "conjoined requirements")
	}

	if len(words) > 15 {
		score += 2
		reasons = append(reasons, "long request")
	}

	level := levelFor(score)
	reasoning := "no planning signals detected"
	if len(reasons) > 0 {
		reasoning = strings.Join(reasons, ", ")
	}

	return types.ComplexityVerdict{
		Level:     level,
		Score:     score,
		Reasoning: reasoning,
	}
}

// ShouldSuggestPlan reports whether the verdict is complex enough to
// trigger plan creation. This is the sole planning gate.
func ShouldSuggestPlan(v types.ComplexityVerdict) bool {
	return v.Level == types.ComplexityComplex || v.Level == types.ComplexityVeryComplex
}

func simpleVerdict(reason string) types.ComplexityVerdict {
	return types.ComplexityVerdict{
		Level:     types.ComplexitySimple,
		Score:     0,
		Reasoning: reason,
	}
}

func levelFor(score int) types.ComplexityLevel {
	switch {
	case score >= thresholdVeryComplex:
		return types.ComplexityVeryComplex
	case score >= thresholdComplex:
		return types.ComplexityComplex
	case score >= thresholdModerate:
		return types.ComplexityModerate
	default:
		return types.ComplexitySimple
	}
}

// matchCount counts how many of the keywords appear as whole words
func matchCount(wordSet map[string]bool, keywords []string) int {
	n := 0
	for _, kw := range keywords {
		if wordSet[kw] {
			n++
		}
	}
	return n
}

func containsAny(wordSet map[string]bool, keywords []string) bool {
	return matchCount(wordSet, keywords) > 0
}

// fileAndComponentMentions counts distinct file-name mentions (by
// extension) plus distinct component keywords.
func fileAndComponentMentions(lower string, wordSet map[string]bool) int {
	seen := make(map[string]bool)
	for _, m := range fileExtRe.FindAllString(lower, -1) {
		seen[m] = true
	}
	return len(seen) + matchCount(wordSet, componentKeywords)
}
