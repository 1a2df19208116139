package models

import "time"

type MessageKind string

const (
	KindUser         MessageKind = "user"
	KindAI           MessageKind = "ai"
	KindSystem       MessageKind = "system"
	KindCommand      MessageKind = "command"
	KindNotification MessageKind = "notification"
)

// Message is immutable once persisted. Compressed marks bodies that were
// gzipped before storage; readers must decompress before handing the body
// to a client.
type Message struct {
	ID         string      `json:"id"`
	RoomID     string      `json:"room_id"`
	SenderID   string      `json:"sender_id"`
	Body       string      `json:"body"`
	Kind       MessageKind `json:"kind"`
	ReplyTo    string      `json:"reply_to,omitempty"`
	Compressed bool        `json:"-"`
	CreatedAt  time.Time   `json:"created_at"`
}

// AIResponseAttempt is a write-once audit record; one row per orchestrator
// transition out of an attempting state.
type AIResponseAttempt struct {
	ID        int
	MessageID string
	Path      string
	LatencyMS int
	Success   bool
	ErrorKind string
	CreatedAt time.Time
}

type Document struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	DocType    string    `json:"doc_type"`
	UploadedAt time.Time `json:"uploaded_at"`
}

type Chunk struct {
	ID        string    `json:"id"`
	DocID     string    `json:"doc_id"`
	Ordinal   int       `json:"ordinal"`
	Text      string    `json:"text"`
	Embedding []float32 `json:"-"`
	CreatedAt time.Time `json:"created_at"`
}
