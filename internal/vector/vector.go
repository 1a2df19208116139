// Package vector defines the minimal contract every vector backend
// implements. Retrieval depends only on this interface, so backends are
// interchangeable.
package vector

import "context"

type Entry struct {
	ID      string
	Vector  []float32
	DocID   string
	Ordinal int
	Text    string
}

type Match struct {
	Entry
	Score float32
}

// Store upserts chunk vectors and answers topK similarity searches with
// matches ranked best first. Higher score is better for every backend.
type Store interface {
	Upsert(ctx context.Context, entries []Entry) error
	Search(ctx context.Context, vec []float32, topK int) ([]Match, error)
	Close() error
}
