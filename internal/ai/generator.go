// Package ai talks to the generative model used for question generation, email
// drafting and quote extraction.
package ai

import "context"

// Generator turns a prompt into model text. Implementations make no promise about
// the structure of the text.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, prompt string) (string, error)

// Generate calls f.
func (f GeneratorFunc) Generate(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}
