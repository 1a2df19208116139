package memory

import (
	"context"
	"testing"

	"github.com/relaynet/chatcore/internal/vector"
)

func TestSearchRanksByCosine(t *testing.T) {
	s := NewStore(3)

	entries := []vector.Entry{
		{ID: "aligned", Vector: []float32{1, 0, 0}, DocID: "d1", Ordinal: 0, Text: "aligned"},
		{ID: "partial", Vector: []float32{1, 1, 0}, DocID: "d1", Ordinal: 1, Text: "partial"},
		{ID: "orthogonal", Vector: []float32{0, 0, 1}, DocID: "d1", Ordinal: 2, Text: "orthogonal"},
	}
	if err := s.Upsert(context.Background(), entries); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	matches, err := s.Search(context.Background(), []float32{1, 0, 0}, 3)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(matches) != 3 {
		t.Fatalf("expected 3 matches, got %d", len(matches))
	}
	for i, want := range []string{"aligned", "partial", "orthogonal"} {
		if matches[i].ID != want {
			t.Fatalf("position %d: got %q, want %q", i, matches[i].ID, want)
		}
	}
	if matches[0].Score <= matches[1].Score || matches[1].Score <= matches[2].Score {
		t.Fatalf("scores not strictly descending: %v %v %v", matches[0].Score, matches[1].Score, matches[2].Score)
	}
}

func TestSearchTiesBreakByOrdinalThenID(t *testing.T) {
	s := NewStore(2)

	// Scaled copies of one direction: identical cosine scores.
	entries := []vector.Entry{
		{ID: "b", Vector: []float32{2, 0}, DocID: "d1", Ordinal: 1},
		{ID: "c", Vector: []float32{3, 0}, DocID: "d1", Ordinal: 0},
		{ID: "a", Vector: []float32{1, 0}, DocID: "d1", Ordinal: 1},
	}
	if err := s.Upsert(context.Background(), entries); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	for i := 0; i < 10; i++ {
		matches, err := s.Search(context.Background(), []float32{1, 0}, 3)
		if err != nil {
			t.Fatalf("search: %v", err)
		}
		got := []string{matches[0].ID, matches[1].ID, matches[2].ID}
		want := []string{"c", "a", "b"}
		for j := range want {
			if got[j] != want[j] {
				t.Fatalf("iteration %d: got order %v, want %v", i, got, want)
			}
		}
	}
}

func TestSearchTopKTruncates(t *testing.T) {
	s := NewStore(2)

	entries := []vector.Entry{
		{ID: "a", Vector: []float32{1, 0}, Ordinal: 0},
		{ID: "b", Vector: []float32{0, 1}, Ordinal: 1},
	}
	if err := s.Upsert(context.Background(), entries); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	matches, err := s.Search(context.Background(), []float32{1, 0}, 1)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(matches) != 1 || matches[0].ID != "a" {
		t.Fatalf("expected only the best match, got %+v", matches)
	}
}

func TestDimensionalityMismatchRejected(t *testing.T) {
	s := NewStore(3)

	err := s.Upsert(context.Background(), []vector.Entry{{ID: "bad", Vector: []float32{1, 0}}})
	if err == nil {
		t.Fatalf("upsert with wrong dimensionality should fail")
	}

	if _, err := s.Search(context.Background(), []float32{1, 0}, 1); err == nil {
		t.Fatalf("search with wrong dimensionality should fail")
	}
}

func TestUpsertReplacesExistingEntry(t *testing.T) {
	s := NewStore(2)

	if err := s.Upsert(context.Background(), []vector.Entry{{ID: "a", Vector: []float32{1, 0}, Text: "old"}}); err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	if err := s.Upsert(context.Background(), []vector.Entry{{ID: "a", Vector: []float32{0, 1}, Text: "new"}}); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	matches, err := s.Search(context.Background(), []float32{0, 1}, 1)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(matches) != 1 || matches[0].Text != "new" {
		t.Fatalf("expected the replaced entry, got %+v", matches)
	}
}
