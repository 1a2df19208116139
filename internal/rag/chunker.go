package rag

import (
	"strings"

	prose "github.com/jdkato/prose/v2"
)

// Chunker splits document text into overlapping spans. Boundaries snap to
// sentences so a concept is never cut mid-sentence; the overlap re-emits
// the tail of the previous chunk so spans crossing a boundary stay
// retrievable from at least one chunk.
type Chunker struct {
	size    int
	overlap int
}

func NewChunker(size, overlap int) *Chunker {
	if size <= 0 {
		size = 1000
	}
	if overlap < 0 || overlap >= size {
		overlap = size / 10
	}

	return &Chunker{size: size, overlap: overlap}
}

func (c *Chunker) Split(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	sentences := splitSentences(text)
	if len(sentences) == 0 {
		return nil
	}

	var chunks []string
	var current []string
	currentLen := 0

	for _, sentence := range sentences {
		sentenceLen := len(sentence) + 1

		if currentLen+sentenceLen > c.size && len(current) > 0 {
			chunks = append(chunks, strings.Join(current, " "))

			current = tailByLength(current, c.overlap)
			currentLen = joinedLength(current)
		}

		current = append(current, sentence)
		currentLen += sentenceLen
	}

	if len(current) > 0 {
		chunks = append(chunks, strings.Join(current, " "))
	}

	return chunks
}

func splitSentences(text string) []string {
	doc, err := prose.NewDocument(text,
		prose.WithExtraction(false),
		prose.WithTagging(false),
	)
	if err != nil {
		// Degrade to whitespace-joined text as a single sentence; the
		// size cap still applies at the chunk level.
		return []string{strings.Join(strings.Fields(text), " ")}
	}

	sentences := make([]string, 0)
	for _, s := range doc.Sentences() {
		trimmed := strings.TrimSpace(s.Text)
		if trimmed != "" {
			sentences = append(sentences, trimmed)
		}
	}
	return sentences
}

// tailByLength returns the trailing whole sentences that fit within the
// overlap budget. Overlap snaps down to sentence boundaries: it never
// exceeds the budget, and it is empty when even the last sentence alone is
// larger than the budget.
func tailByLength(sentences []string, overlap int) []string {
	if overlap == 0 {
		return nil
	}

	total := 0
	start := len(sentences)
	for i := len(sentences) - 1; i >= 0; i-- {
		total += len(sentences[i]) + 1
		if total > overlap {
			break
		}
		start = i
	}

	if start == len(sentences) {
		return nil
	}
	tail := make([]string, len(sentences)-start)
	copy(tail, sentences[start:])
	return tail
}

func joinedLength(sentences []string) int {
	total := 0
	for _, s := range sentences {
		total += len(s) + 1
	}
	return total
}
