// Package vector provides interfaces and implementations for vector storage.
//
// Drivers are collection-scoped: each project gets its own collection, named
// by pkg/memory's collection scheme, so one store serves many projects
// without cross-tenant leakage.
package vector

import "context"

// Document represents a stored item with its embedding and payload.
type Document struct {
	// ID is a unique identifier for the document (the memory id).
	ID string

	// Embedding is the vector representation of the document content.
	Embedding []float32

	// Payload carries metadata stored alongside the vector and usable in
	// query filters (project_id, chapter_id, memory_type, importance).
	Payload map[string]any
}

// QueryResult represents a search result with similarity score.
type QueryResult struct {
	Document

	// Score represents the similarity score (higher = more similar).
	Score float32
}

// Filter matches documents whose payload fields equal the given values.
type Filter map[string]string

// Query describes one similarity search.
type Query struct {
	// Collection to search.
	Collection string

	// Embedding is the query vector.
	Embedding []float32

	// TopK caps the number of results. Defaults to 10 when <= 0.
	TopK int

	// Floor drops results scoring below it. Zero means no floor.
	Floor float32

	// Filter restricts results by payload equality. Nil means no filter.
	Filter Filter
}

// Driver handles storage and retrieval of vector embeddings.
type Driver interface {
	// EnsureCollection creates the collection if it doesn't exist.
	// Idempotent.
	EnsureCollection(ctx context.Context, name string, dimensions uint) error

	// Upsert stores documents with their embeddings. Documents with an
	// existing ID are updated.
	Upsert(ctx context.Context, collection string, docs []Document) error

	// Query finds the most similar documents per q.
	Query(ctx context.Context, q Query) ([]QueryResult, error)

	// Delete removes documents by their IDs.
	Delete(ctx context.Context, collection string, ids []string) error

	// DropCollection removes a collection and everything in it.
	DropCollection(ctx context.Context, name string) error

	// Close releases any resources held by the driver.
	Close() error
}
