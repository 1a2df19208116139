package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/relaynet/chatcore/internal/storage/models"
	"github.com/relaynet/chatcore/pkg/logger"
)

type Client struct {
	db *sql.DB
}

func NewClient(dbPath string) (*Client, error) {
	// Foreign keys are a per-connection pragma; the DSN parameter applies
	// it to every connection the pool opens.
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	_, err = db.Exec("PRAGMA journal_mode = WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	logger.Info("SQLite client initialized", zap.String("path", dbPath))

	return &Client{db: db}, nil
}

func (c *Client) Close() error {
	return c.db.Close()
}

func (c *Client) InitSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS messages (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT UNIQUE NOT NULL,
		room_id TEXT NOT NULL,
		sender_id TEXT NOT NULL,
		body BLOB NOT NULL,
		kind TEXT NOT NULL,
		reply_to TEXT,
		compressed INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_messages_room ON messages(room_id, seq);
	CREATE INDEX IF NOT EXISTS idx_messages_created ON messages(created_at);

	CREATE TABLE IF NOT EXISTS ai_response_attempts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		message_id TEXT NOT NULL,
		path TEXT NOT NULL,
		latency_ms INTEGER NOT NULL,
		success INTEGER NOT NULL,
		error_kind TEXT,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_attempts_message ON ai_response_attempts(message_id);

	CREATE TABLE IF NOT EXISTS documents (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		doc_type TEXT,
		uploaded_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS chunks (
		id TEXT PRIMARY KEY,
		doc_id TEXT NOT NULL,
		ordinal INTEGER NOT NULL,
		text TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		FOREIGN KEY (doc_id) REFERENCES documents(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_chunks_doc ON chunks(doc_id, ordinal);
	`

	_, err := c.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info("SQLite schema initialized")
	return nil
}

func (c *Client) InsertMessage(msg *models.Message) error {
	query := `
		INSERT INTO messages (id, room_id, sender_id, body, kind, reply_to, compressed, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	compressed := 0
	if msg.Compressed {
		compressed = 1
	}

	_, err := c.db.Exec(
		query,
		msg.ID,
		msg.RoomID,
		msg.SenderID,
		[]byte(msg.Body),
		string(msg.Kind),
		msg.ReplyTo,
		compressed,
		msg.CreatedAt.Unix(),
	)

	if err != nil {
		return fmt.Errorf("failed to insert message: %w", err)
	}

	logger.Debug("Message persisted",
		zap.String("message_id", msg.ID),
		zap.String("room_id", msg.RoomID),
		zap.String("kind", string(msg.Kind)),
	)
	return nil
}

// MessagesByRoom returns the most recent messages in persistence order
// (oldest first). Bodies may still be compressed; the pipeline decompresses.
func (c *Client) MessagesByRoom(roomID string, limit int) ([]models.Message, error) {
	query := `
		SELECT id, room_id, sender_id, body, kind, reply_to, compressed, created_at
		FROM (
			SELECT seq, id, room_id, sender_id, body, kind, reply_to, compressed, created_at
			FROM messages
			WHERE room_id = ?
			ORDER BY seq DESC
			LIMIT ?
		)
		ORDER BY seq ASC
	`

	rows, err := c.db.Query(query, roomID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to read messages: %w", err)
	}
	defer rows.Close()

	var messages []models.Message
	for rows.Next() {
		var m models.Message
		var body []byte
		var kind string
		var replyTo sql.NullString
		var compressed int
		var createdAt int64

		err := rows.Scan(&m.ID, &m.RoomID, &m.SenderID, &body, &kind, &replyTo, &compressed, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		m.Body = string(body)
		m.Kind = models.MessageKind(kind)
		m.ReplyTo = replyTo.String
		m.Compressed = compressed == 1
		m.CreatedAt = time.Unix(createdAt, 0)
		messages = append(messages, m)
	}

	return messages, rows.Err()
}

func (c *Client) InsertAttempt(attempt *models.AIResponseAttempt) error {
	query := `
		INSERT INTO ai_response_attempts (message_id, path, latency_ms, success, error_kind, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	success := 0
	if attempt.Success {
		success = 1
	}

	createdAt := attempt.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err := c.db.Exec(
		query,
		attempt.MessageID,
		attempt.Path,
		attempt.LatencyMS,
		success,
		attempt.ErrorKind,
		createdAt.Unix(),
	)

	if err != nil {
		return fmt.Errorf("failed to insert attempt: %w", err)
	}

	return nil
}

func (c *Client) AttemptsByMessage(messageID string) ([]models.AIResponseAttempt, error) {
	query := `
		SELECT id, message_id, path, latency_ms, success, error_kind, created_at
		FROM ai_response_attempts
		WHERE message_id = ?
		ORDER BY id ASC
	`

	rows, err := c.db.Query(query, messageID)
	if err != nil {
		return nil, fmt.Errorf("failed to read attempts: %w", err)
	}
	defer rows.Close()

	var attempts []models.AIResponseAttempt
	for rows.Next() {
		var a models.AIResponseAttempt
		var success int
		var errorKind sql.NullString
		var createdAt int64

		err := rows.Scan(&a.ID, &a.MessageID, &a.Path, &a.LatencyMS, &success, &errorKind, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		a.Success = success == 1
		a.ErrorKind = errorKind.String
		a.CreatedAt = time.Unix(createdAt, 0)
		attempts = append(attempts, a)
	}

	return attempts, rows.Err()
}

// InsertDocumentWithChunks writes a document and its chunks in one
// transaction, so a failed ingest never leaves a document row behind
// without its chunks.
func (c *Client) InsertDocumentWithChunks(doc *models.Document, chunks []models.Chunk) error {
	tx, err := c.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT INTO documents (id, title, doc_type, uploaded_at) VALUES (?, ?, ?, ?)`,
		doc.ID,
		doc.Title,
		doc.DocType,
		doc.UploadedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert document: %w", err)
	}

	for _, chunk := range chunks {
		_, err = tx.Exec(
			`INSERT INTO chunks (id, doc_id, ordinal, text, created_at) VALUES (?, ?, ?, ?, ?)`,
			chunk.ID,
			chunk.DocID,
			chunk.Ordinal,
			chunk.Text,
			chunk.CreatedAt.Unix(),
		)
		if err != nil {
			return fmt.Errorf("failed to insert chunk %s: %w", chunk.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit document: %w", err)
	}

	logger.Debug("Document persisted",
		zap.String("doc_id", doc.ID),
		zap.String("title", doc.Title),
		zap.Int("chunks", len(chunks)),
	)
	return nil
}

func (c *Client) ChunksByDocument(docID string) ([]models.Chunk, error) {
	query := `SELECT id, doc_id, ordinal, text, created_at FROM chunks WHERE doc_id = ? ORDER BY ordinal ASC`

	rows, err := c.db.Query(query, docID)
	if err != nil {
		return nil, fmt.Errorf("failed to read chunks: %w", err)
	}
	defer rows.Close()

	var chunks []models.Chunk
	for rows.Next() {
		var ch models.Chunk
		var createdAt int64

		err := rows.Scan(&ch.ID, &ch.DocID, &ch.Ordinal, &ch.Text, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		ch.CreatedAt = time.Unix(createdAt, 0)
		chunks = append(chunks, ch)
	}

	return chunks, rows.Err()
}
