// Package ai declares the narrow model-backend interfaces the pipeline depends on.
package ai

import "context"

// Generator produces a text completion for a message under a system instruction.
type Generator interface {
	GenerateContent(ctx context.Context, systemInstruction, message string) (string, error)
	Model() string
}

// Embedder turns texts into vectors. The i-th vector belongs to the i-th text.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Pinger reports backend reachability for health checks.
type Pinger interface {
	Ping(ctx context.Context) error
}
