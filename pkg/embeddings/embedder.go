// Package embeddings
package embeddings

import "context"

// Embedder provides text embedding capabilities.
type Embedder interface {
	// Embed converts text into a vector embedding.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Model returns the embedding model identifier, recorded on each
	// memory so stored vectors can be traced to the model that made them.
	Model() string

	// Dimensions returns the width of the vectors this embedder emits.
	Dimensions() uint

	// Close releases any resources held by the embedder.
	Close() error
}
