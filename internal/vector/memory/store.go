// Package memory is the in-process vector backend: a cosine scan over a
// guarded slice. It is the default backend and the reference for search
// semantics; the Milvus backend must rank the same way.
package memory

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/relaynet/chatcore/internal/vector"
)

type Store struct {
	dim int

	mu      sync.RWMutex
	entries map[string]vector.Entry
}

func NewStore(dim int) *Store {
	return &Store{
		dim:     dim,
		entries: make(map[string]vector.Entry),
	}
}

func (s *Store) Upsert(ctx context.Context, entries []vector.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range entries {
		if len(e.Vector) != s.dim {
			return fmt.Errorf("entry %s: vector length %d does not match configured dimensionality %d", e.ID, len(e.Vector), s.dim)
		}
		s.entries[e.ID] = e
	}

	return nil
}

// Search ranks by cosine similarity descending; ties break by ordinal
// ascending, then id, so repeated queries return identical orderings.
func (s *Store) Search(ctx context.Context, vec []float32, topK int) ([]vector.Match, error) {
	if len(vec) != s.dim {
		return nil, fmt.Errorf("query vector length %d does not match configured dimensionality %d", len(vec), s.dim)
	}

	s.mu.RLock()
	matches := make([]vector.Match, 0, len(s.entries))
	for _, e := range s.entries {
		matches = append(matches, vector.Match{
			Entry: e,
			Score: cosine(vec, e.Vector),
		})
	}
	s.mu.RUnlock()

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		if matches[i].Ordinal != matches[j].Ordinal {
			return matches[i].Ordinal < matches[j].Ordinal
		}
		return matches[i].ID < matches[j].ID
	})

	if topK < len(matches) {
		matches = matches[:topK]
	}

	return matches, nil
}

func (s *Store) Close() error {
	return nil
}

func cosine(a, b []float32) float32 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}
