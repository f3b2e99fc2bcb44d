// Package engine defines the reasoning engine boundary and provides an
// HTTP client for OpenAI-compatible chat completion endpoints.
package engine

import "context"

// Engine answers a natural-language prompt. Implementations may block
// for an arbitrary duration; timeout policy is the engine's concern.
type Engine interface {
	Query(ctx context.Context, prompt string) (string, error)
}
