// Package retrieval stores embedded knowledge chunks and finds the ones
// most similar to a query vector.
package retrieval

import (
	"context"
	"time"
)

// Metadata describes where a chunk came from.
type Metadata struct {
	Source     string `json:"source"`
	TextLength int    `json:"text_length"`
	PageNumber int    `json:"page_number,omitempty"`
}

// Chunk is an embedded piece of a document stored in the index.
type Chunk struct {
	ID        string
	Text      string
	Embedding []float32
	Metadata  Metadata
	CreatedAt time.Time
}

// ScoredChunk pairs a chunk with its cosine similarity to a query vector.
type ScoredChunk struct {
	Chunk
	Score float32
}

// Index is the vector store behind retrieval. Implementations must be safe
// for concurrent use.
type Index interface {
	// Upsert inserts chunks, replacing any with the same ID.
	Upsert(ctx context.Context, chunks []Chunk) error

	// Query returns up to topK chunks most similar to vector, ordered by
	// descending score. An empty index yields an empty result, not an error.
	Query(ctx context.Context, vector []float32, topK int) ([]ScoredChunk, error)

	// Count returns the number of stored chunks.
	Count(ctx context.Context) (int, error)

	// Clear removes all chunks and returns how many were removed.
	Clear(ctx context.Context) (int, error)
}
