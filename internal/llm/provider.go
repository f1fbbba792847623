// Package llm wraps the generative model used for open-ended answers, code
// generation, SQL translation and summarization.
package llm

import (
	"context"
	"errors"
)

// ErrNoAPIKey is returned when no API key is configured.
var ErrNoAPIKey = errors.New("no API key configured for the language model")

// Generator produces a text completion for a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
	Name() string
}

// GeneratorFunc adapts a function to Generator. Mostly useful in tests.
type GeneratorFunc func(ctx context.Context, prompt string) (string, error)

// Generate calls f.
func (f GeneratorFunc) Generate(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

// Name returns "func".
func (f GeneratorFunc) Name() string { return "func" }

// Unavailable is a Generator that always fails with Err. It stands in when
// the real model cannot be constructed so the rest of the assistant still runs.
type Unavailable struct {
	Err error
}

// Generate returns u.Err.
func (u Unavailable) Generate(context.Context, string) (string, error) {
	if u.Err == nil {
		return "", ErrNoAPIKey
	}
	return "", u.Err
}

// Name returns "unavailable".
func (u Unavailable) Name() string { return "unavailable" }
