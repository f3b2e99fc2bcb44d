package plan

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/cloud-shuttle/sherpa/internal/engine"
)

// decomposePrompt asks the engine for a strict JSON array of step
// descriptions so the response can be parsed without heuristics.
const decomposePrompt = `You are breaking a development request into an ordered sequence of executable steps.

## Request

%s

## Requirements

1. Produce between 2 and %d steps.
2. Each step must be a single, self-contained action completable in one pass.
3. Steps must be sequenced so that later steps can rely on earlier ones.
4. Each description must name the specific files, components, or packages involved.
5. Avoid vague phrases like "various improvements" or "make it better".

## Output Format

Respond ONLY with a valid JSON array of step description strings:

["First step description", "Second step description"]

Begin your breakdown now.`

// DecomposeGoal asks the reasoning engine to break a goal into ordered
// step descriptions.
func DecomposeGoal(ctx context.Context, eng engine.Engine, goal string, maxSteps int) ([]string, error) {
	if maxSteps < 2 {
		maxSteps = 2
	}

	response, err := eng.Query(ctx, fmt.Sprintf(decomposePrompt, goal, maxSteps))
	if err != nil {
		return nil, fmt.Errorf("querying engine: %w", err)
	}

	jsonStr, err := extractJSONArray(response)
	if err != nil {
		return nil, fmt.Errorf("extracting JSON: %w", err)
	}

	var steps []string
	if err := json.Unmarshal([]byte(jsonStr), &steps); err != nil {
		return nil, fmt.Errorf("parsing steps: %w", err)
	}

	var cleaned []string
	for _, s := range steps {
		if s = strings.TrimSpace(s); s != "" {
			cleaned = append(cleaned, s)
		}
	}

	if len(cleaned) == 0 {
		return nil, fmt.Errorf("no steps generated")
	}
	if len(cleaned) > maxSteps {
		cleaned = cleaned[:maxSteps]
	}

	return cleaned, nil
}

// extractJSONArray extracts a JSON array from engine output, handling
// markdown code blocks.
func extractJSONArray(content string) (string, error) {
	re := regexp.MustCompile("```json\n([\\s\\S]*?)\n?```")
	if matches := re.FindStringSubmatch(content); len(matches) > 1 {
		return strings.TrimSpace(matches[1]), nil
	}

	re = regexp.MustCompile("```\n([\\s\\S]*?)\n?```")
	if matches := re.FindStringSubmatch(content); len(matches) > 1 {
		return strings.TrimSpace(matches[1]), nil
	}

	re = regexp.MustCompile(`\[[\s\S]*\]`)
	if matches := re.FindStringSubmatch(content); len(matches) > 0 {
		return strings.TrimSpace(matches[0]), nil
	}

	return "", fmt.Errorf("no JSON array found in response")
}
