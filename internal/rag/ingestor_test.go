package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/relaynet/chatcore/internal/vector/memory"
)

func TestIngestDocumentChunksAndIndexes(t *testing.T) {
	embedder := &bagEmbedder{vocab: testVocab}
	store := memory.NewStore(len(testVocab))
	db := &fakeDocumentStore{}
	ingestor := NewIngestor(db, store, embedder, NewChunker(60, 0))

	content := "The sky is blue today. The grass is green here. The ocean is deep there. The mountain is tall too."
	doc, chunks, err := ingestor.IngestDocument(context.Background(), "outdoors", "text", content)
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}

	if doc.Title != "outdoors" {
		t.Fatalf("unexpected title %q", doc.Title)
	}
	if len(chunks) < 2 {
		t.Fatalf("expected the document to split into multiple chunks, got %d", len(chunks))
	}

	for i, chunk := range chunks {
		if chunk.Ordinal != i {
			t.Fatalf("chunk %d has ordinal %d", i, chunk.Ordinal)
		}
		if chunk.DocID != doc.ID {
			t.Fatalf("chunk %d references doc %q, want %q", i, chunk.DocID, doc.ID)
		}
		if chunk.ID != fmt.Sprintf("%s_chunk_%d", doc.ID, i) {
			t.Fatalf("chunk %d has unexpected id %q", i, chunk.ID)
		}
	}

	if len(db.docs) != 1 || len(db.chunks) != len(chunks) {
		t.Fatalf("rows not persisted: %d docs, %d chunks", len(db.docs), len(db.chunks))
	}

	// The indexed chunks are retrievable.
	query, err := embedder.Embed(context.Background(), "blue sky")
	if err != nil {
		t.Fatalf("embed query: %v", err)
	}
	matches, err := store.Search(context.Background(), query, 1)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(matches) != 1 || !strings.Contains(matches[0].Text, "sky is blue") {
		t.Fatalf("expected the sky chunk to be retrievable, got %+v", matches)
	}
}

func TestIngestDocumentSameContentSameID(t *testing.T) {
	embedder := &bagEmbedder{vocab: testVocab}
	db := &fakeDocumentStore{}
	ingestor := NewIngestor(db, memory.NewStore(len(testVocab)), embedder, NewChunker(1000, 100))

	first, _, err := ingestor.IngestDocument(context.Background(), "colors", "text", "The sky is blue.")
	if err != nil {
		t.Fatalf("first ingest: %v", err)
	}
	second, _, err := ingestor.IngestDocument(context.Background(), "colors", "text", "The sky is blue.")
	if err != nil {
		t.Fatalf("second ingest: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("identical documents should hash to the same id: %q vs %q", first.ID, second.ID)
	}
}

func TestIngestDocumentStripsHTML(t *testing.T) {
	embedder := &bagEmbedder{vocab: testVocab}
	db := &fakeDocumentStore{}
	ingestor := NewIngestor(db, memory.NewStore(len(testVocab)), embedder, NewChunker(1000, 100))

	html := `<html><head><title>Sky Notes</title><script>alert(1)</script></head>` +
		`<body><nav>menu</nav><p>The sky is blue.</p><footer>footer text</footer></body></html>`

	doc, chunks, err := ingestor.IngestDocument(context.Background(), "", "html", html)
	if err != nil {
		t.Fatalf("ingest html: %v", err)
	}
	if doc.Title != "Sky Notes" {
		t.Fatalf("expected title from the html head, got %q", doc.Title)
	}

	joined := ""
	for _, c := range chunks {
		joined += c.Text + " "
	}
	if !strings.Contains(joined, "The sky is blue.") {
		t.Fatalf("visible text missing from chunks: %q", joined)
	}
	for _, noise := range []string{"alert", "menu", "footer text"} {
		if strings.Contains(joined, noise) {
			t.Fatalf("markup noise %q leaked into chunks: %q", noise, joined)
		}
	}
}

func TestIngestDocumentFailureLeavesNoRows(t *testing.T) {
	broken := &bagEmbedder{vocab: testVocab, err: errors.New("provider down")}
	db := &fakeDocumentStore{}
	ingestor := NewIngestor(db, memory.NewStore(len(testVocab)), broken, NewChunker(1000, 100))

	_, _, err := ingestor.IngestDocument(context.Background(), "colors", "text", "The sky is blue.")
	if err == nil {
		t.Fatalf("expected the embedding failure to surface")
	}
	if len(db.docs) != 0 || len(db.chunks) != 0 {
		t.Fatalf("failed ingest must not persist anything: %d docs, %d chunks", len(db.docs), len(db.chunks))
	}
}

func TestIngestDocumentRejectsEmptyContent(t *testing.T) {
	embedder := &bagEmbedder{vocab: testVocab}
	ingestor := NewIngestor(&fakeDocumentStore{}, memory.NewStore(len(testVocab)), embedder, NewChunker(1000, 100))

	if _, _, err := ingestor.IngestDocument(context.Background(), "empty", "text", "   "); err == nil {
		t.Fatalf("expected an error for empty content")
	}
}
