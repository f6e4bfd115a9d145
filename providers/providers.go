// Package providers defines the remote model capabilities the pipeline
// consumes, plus the rate limiting and prompt helpers shared by the adapters.
package providers

import "context"

// Embedder computes one vector per input text, in input order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// ImageDescriber reads and describes an image (OCR plus a short description).
type ImageDescriber interface {
	DescribeImage(ctx context.Context, image []byte) (string, error)
}

// Generator produces an answer to question grounded in promptContext.
type Generator interface {
	Generate(ctx context.Context, promptContext, question string) (string, error)
}
