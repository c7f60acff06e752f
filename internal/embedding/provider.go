// Package embedding defines the embedding provider contract used by both the
// batch analysis path and the suggestion-serving path. Providers are
// constructed once at startup and injected; Embed and EmbedBatch must be safe
// to call from concurrent requests.
package embedding

import "context"

// Provider converts text into fixed-length numeric vectors. The same
// provider instance must be used for clustering and for matching so that
// vectors stay comparable across the two paths.
type Provider interface {
	// Embed returns the vector for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)
	// EmbedBatch returns one vector per input text, in input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	// Dimension returns the length of the vectors this provider produces.
	Dimension() int
	// Name returns the provider identifier (e.g., "fastembed", "ollama").
	Name() string
	// Close releases resources held by the provider.
	Close() error
}
