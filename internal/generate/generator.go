// Package generate holds the external text-generator boundary. The
// engine treats generation as an opaque text-to-text function: it hands
// over a bounded prompt and receives prose. No retry or backoff policy
// lives here — that belongs to the calling layer.
package generate

import "context"

// Generator is the opaque external collaborator.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Static is an offline Generator for tests and the CLI's offline mode.
// It records the last prompt and returns a fixed response.
type Static struct {
	Response   string
	LastPrompt string
	Calls      int
}

// Generate implements Generator.
func (s *Static) Generate(_ context.Context, prompt string) (string, error) {
	s.LastPrompt = prompt
	s.Calls++
	if s.Response != "" {
		return s.Response, nil
	}
	return "[offline] " + prompt, nil
}
