// Package generation produces answers from a text generation backend.
package generation

import (
	"context"
	"errors"
)

// ErrBackend indicates the generation backend failed to produce a
// response. Callers degrade to a fallback answer instead of surfacing
// this to end users.
var ErrBackend = errors.New("generation backend error")

// Client generates a completion for a user prompt under a system prompt.
type Client interface {
	Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}
