package rag

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/relaynet/chatcore/internal/metrics"
	"github.com/relaynet/chatcore/internal/storage/models"
	"github.com/relaynet/chatcore/internal/vector"
	"github.com/relaynet/chatcore/pkg/logger"
	"github.com/relaynet/chatcore/pkg/utils"
)

// DocumentStore persists a document and its chunks as one unit; a failure
// must leave no partial rows behind.
type DocumentStore interface {
	InsertDocumentWithChunks(doc *models.Document, chunks []models.Chunk) error
}

// Embedder turns text into fixed-length vectors. Implemented by the llm
// client in production and by deterministic fakes in tests.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

type Ingestor struct {
	db       DocumentStore
	store    vector.Store
	embedder Embedder
	chunker  *Chunker
}

func NewIngestor(db DocumentStore, store vector.Store, embedder Embedder, chunker *Chunker) *Ingestor {
	return &Ingestor{
		db:       db,
		store:    store,
		embedder: embedder,
		chunker:  chunker,
	}
}

// IngestDocument splits a document into chunks, embeds each chunk and
// stores both rows and vectors. HTML content is reduced to visible text
// first.
func (i *Ingestor) IngestDocument(ctx context.Context, title, docType, content string) (*models.Document, []models.Chunk, error) {
	text := content
	if looksLikeHTML(content) {
		text = cleanHTML(content)
		if title == "" {
			title = extractTitle(content)
		}
	}
	if strings.TrimSpace(text) == "" {
		return nil, nil, fmt.Errorf("no text content in document")
	}
	if title == "" {
		title = "Untitled"
	}

	docID := utils.HashString(title + text)
	doc := &models.Document{
		ID:         docID,
		Title:      title,
		DocType:    docType,
		UploadedAt: time.Now(),
	}

	pieces := i.chunker.Split(text)
	logger.Info("Document chunked",
		zap.String("doc_id", docID),
		zap.Int("chunks", len(pieces)),
	)

	embeddings, err := i.embedder.EmbedBatch(ctx, pieces)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate embeddings: %w", err)
	}
	if len(embeddings) != len(pieces) {
		return nil, nil, fmt.Errorf("embedding count mismatch: got %d, expected %d", len(embeddings), len(pieces))
	}

	chunks := make([]models.Chunk, 0, len(pieces))
	entries := make([]vector.Entry, 0, len(pieces))
	for ord, piece := range pieces {
		chunk := models.Chunk{
			ID:        fmt.Sprintf("%s_chunk_%d", docID, ord),
			DocID:     docID,
			Ordinal:   ord,
			Text:      piece,
			Embedding: embeddings[ord],
			CreatedAt: time.Now(),
		}

		chunks = append(chunks, chunk)
		entries = append(entries, vector.Entry{
			ID:      chunk.ID,
			Vector:  chunk.Embedding,
			DocID:   docID,
			Ordinal: ord,
			Text:    piece,
		})
	}

	if err := i.db.InsertDocumentWithChunks(doc, chunks); err != nil {
		return nil, nil, fmt.Errorf("failed to persist document: %w", err)
	}

	if err := i.store.Upsert(ctx, entries); err != nil {
		return nil, nil, fmt.Errorf("failed to upsert vectors: %w", err)
	}

	metrics.DocumentsIngested.Inc()
	metrics.ChunksIndexed.Add(float64(len(chunks)))
	logger.Info("Document ingested",
		zap.String("doc_id", docID),
		zap.String("title", title),
		zap.Int("chunks", len(chunks)),
	)

	return doc, chunks, nil
}

func looksLikeHTML(content string) bool {
	lower := strings.ToLower(content)
	return strings.Contains(lower, "<html") || strings.Contains(lower, "<body") || strings.Contains(lower, "<p>")
}

func cleanHTML(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}

	doc.Find("script, style, nav, footer, header, aside").Each(func(i int, s *goquery.Selection) {
		s.Remove()
	})

	text := doc.Find("body").Text()
	if text == "" {
		text = doc.Text()
	}

	text = regexp.MustCompile(`\s+`).ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

func extractTitle(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}

	title := doc.Find("title").First().Text()
	if title == "" {
		title = doc.Find("h1").First().Text()
	}

	return strings.TrimSpace(title)
}
