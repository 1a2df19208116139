package sqlite

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/relaynet/chatcore/internal/storage/models"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()

	client, err := NewClient(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { client.Close() })

	if err := client.InitSchema(); err != nil {
		t.Fatalf("init schema: %v", err)
	}
	return client
}

func TestMessagesByRoomReturnsPersistenceOrder(t *testing.T) {
	client := newTestClient(t)

	now := time.Now()
	for i := 0; i < 5; i++ {
		msg := &models.Message{
			ID:       fmt.Sprintf("m%d", i),
			RoomID:   "general",
			SenderID: "alice",
			Body:     fmt.Sprintf("message %d", i),
			Kind:     models.KindUser,
			// Same wall-clock second for all rows: ordering must come
			// from insertion, not from timestamps.
			CreatedAt: now,
		}
		if err := client.InsertMessage(msg); err != nil {
			t.Fatalf("insert %d: %v", i, err)
		}
	}

	messages, err := client.MessagesByRoom("general", 10)
	if err != nil {
		t.Fatalf("read messages: %v", err)
	}
	if len(messages) != 5 {
		t.Fatalf("expected 5 messages, got %d", len(messages))
	}
	for i, m := range messages {
		if m.ID != fmt.Sprintf("m%d", i) {
			t.Fatalf("position %d: got %q, expected insertion order", i, m.ID)
		}
	}
}

func TestMessagesByRoomLimitKeepsMostRecent(t *testing.T) {
	client := newTestClient(t)

	for i := 0; i < 10; i++ {
		msg := &models.Message{
			ID:        fmt.Sprintf("m%d", i),
			RoomID:    "general",
			SenderID:  "alice",
			Body:      "x",
			Kind:      models.KindUser,
			CreatedAt: time.Now(),
		}
		if err := client.InsertMessage(msg); err != nil {
			t.Fatalf("insert %d: %v", i, err)
		}
	}

	messages, err := client.MessagesByRoom("general", 3)
	if err != nil {
		t.Fatalf("read messages: %v", err)
	}
	if len(messages) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(messages))
	}
	// The window is the newest 3, still oldest first.
	for i, want := range []string{"m7", "m8", "m9"} {
		if messages[i].ID != want {
			t.Fatalf("position %d: got %q, want %q", i, messages[i].ID, want)
		}
	}
}

func TestInsertMessageRoundTripsFields(t *testing.T) {
	client := newTestClient(t)

	msg := &models.Message{
		ID:         "m1",
		RoomID:     "general",
		SenderID:   "assistant",
		Body:       "compressed bytes here",
		Kind:       models.KindAI,
		ReplyTo:    "m0",
		Compressed: true,
		CreatedAt:  time.Now(),
	}
	if err := client.InsertMessage(msg); err != nil {
		t.Fatalf("insert: %v", err)
	}

	messages, err := client.MessagesByRoom("general", 1)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	got := messages[0]
	if got.Kind != models.KindAI || got.ReplyTo != "m0" || !got.Compressed {
		t.Fatalf("fields lost in round trip: %+v", got)
	}
	if got.Body != msg.Body {
		t.Fatalf("body mismatch: %q", got.Body)
	}
}

func TestInsertMessageRejectsDuplicateID(t *testing.T) {
	client := newTestClient(t)

	msg := &models.Message{ID: "m1", RoomID: "general", SenderID: "alice", Body: "x", Kind: models.KindUser, CreatedAt: time.Now()}
	if err := client.InsertMessage(msg); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	if err := client.InsertMessage(msg); err == nil {
		t.Fatalf("duplicate message id should be rejected")
	}
}

func TestAttemptsAreAppendOnlyAndOrdered(t *testing.T) {
	client := newTestClient(t)

	attempts := []models.AIResponseAttempt{
		{MessageID: "m1", Path: "external", LatencyMS: 1500, Success: false, ErrorKind: "timeout"},
		{MessageID: "m1", Path: "fallback", LatencyMS: 2, Success: true},
		{MessageID: "m2", Path: "external", LatencyMS: 40, Success: true},
	}
	for i := range attempts {
		if err := client.InsertAttempt(&attempts[i]); err != nil {
			t.Fatalf("insert attempt %d: %v", i, err)
		}
	}

	got, err := client.AttemptsByMessage("m1")
	if err != nil {
		t.Fatalf("read attempts: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 attempts for m1, got %d", len(got))
	}
	if got[0].Path != "external" || got[0].Success || got[0].ErrorKind != "timeout" {
		t.Fatalf("unexpected first attempt: %+v", got[0])
	}
	if got[1].Path != "fallback" || !got[1].Success {
		t.Fatalf("unexpected second attempt: %+v", got[1])
	}
	if got[0].ID >= got[1].ID {
		t.Fatalf("attempt ids should be monotonically increasing")
	}
}

func TestDocumentsAndChunksRoundTrip(t *testing.T) {
	client := newTestClient(t)

	doc := &models.Document{ID: "d1", Title: "Sky Notes", DocType: "text", UploadedAt: time.Now()}
	chunks := make([]models.Chunk, 0, 3)
	for i := 2; i >= 0; i-- {
		chunks = append(chunks, models.Chunk{
			ID:        fmt.Sprintf("d1_chunk_%d", i),
			DocID:     "d1",
			Ordinal:   i,
			Text:      fmt.Sprintf("chunk %d", i),
			CreatedAt: time.Now(),
		})
	}

	if err := client.InsertDocumentWithChunks(doc, chunks); err != nil {
		t.Fatalf("insert document: %v", err)
	}

	got, err := client.ChunksByDocument("d1")
	if err != nil {
		t.Fatalf("read chunks: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(got))
	}
	// Ordinal order regardless of insertion order.
	for i, ch := range got {
		if ch.Ordinal != i {
			t.Fatalf("position %d has ordinal %d", i, ch.Ordinal)
		}
	}
}

func TestFailedChunkInsertRollsBackDocument(t *testing.T) {
	client := newTestClient(t)

	doc := &models.Document{ID: "d1", Title: "Sky Notes", DocType: "text", UploadedAt: time.Now()}
	// The duplicate chunk id fails midway through the batch.
	bad := []models.Chunk{
		{ID: "d1_chunk_0", DocID: "d1", Ordinal: 0, Text: "a", CreatedAt: time.Now()},
		{ID: "d1_chunk_0", DocID: "d1", Ordinal: 1, Text: "b", CreatedAt: time.Now()},
	}

	if err := client.InsertDocumentWithChunks(doc, bad); err == nil {
		t.Fatalf("duplicate chunk id should fail the whole insert")
	}

	chunks, err := client.ChunksByDocument("d1")
	if err != nil {
		t.Fatalf("read chunks: %v", err)
	}
	if len(chunks) != 0 {
		t.Fatalf("failed insert left %d chunk rows behind", len(chunks))
	}

	// The document row was rolled back too: the same insert succeeds once
	// the chunks are valid.
	good := []models.Chunk{
		{ID: "d1_chunk_0", DocID: "d1", Ordinal: 0, Text: "a", CreatedAt: time.Now()},
	}
	if err := client.InsertDocumentWithChunks(doc, good); err != nil {
		t.Fatalf("retry after rollback should succeed: %v", err)
	}
}

func TestChunkRequiresExistingDocument(t *testing.T) {
	client := newTestClient(t)

	doc := &models.Document{ID: "d1", Title: "Sky Notes", DocType: "text", UploadedAt: time.Now()}
	orphan := []models.Chunk{
		{ID: "orphan", DocID: "missing", Ordinal: 0, Text: "x", CreatedAt: time.Now()},
	}

	if err := client.InsertDocumentWithChunks(doc, orphan); err == nil {
		t.Fatalf("chunk referencing a missing document should be rejected")
	}
}
