// Package backend abstracts the text-generation engine behind the chat
// service. The service only ever hands it a fully rendered prompt and
// consumes the returned text.
package backend

import "context"

// Generator produces a completion for a rendered prompt. The returned
// text may or may not echo the prompt; callers are responsible for
// extracting the fresh continuation. Generate is a single blocking
// call with no internal retry.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// GeneratorFunc adapts a plain function to the Generator interface.
type GeneratorFunc func(ctx context.Context, prompt string) (string, error)

// Generate implements Generator.
func (f GeneratorFunc) Generate(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}
