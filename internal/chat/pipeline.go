package chat

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/relaynet/chatcore/internal/ai"
	"github.com/relaynet/chatcore/internal/auth"
	"github.com/relaynet/chatcore/internal/metrics"
	"github.com/relaynet/chatcore/internal/storage/models"
	"github.com/relaynet/chatcore/pkg/logger"
)

type MessageStore interface {
	InsertMessage(msg *models.Message) error
	MessagesByRoom(roomID string, limit int) ([]models.Message, error)
}

// Responder produces the assistant reply for a message; the orchestrator
// implements it.
type Responder interface {
	Respond(ctx context.Context, req ai.Request) (ai.Result, error)
}

// ContextProvider supplies retrieval context for assistant-directed
// messages. It degrades to an empty string, never an error.
type ContextProvider interface {
	Context(ctx context.Context, query string) string
}

// Inbound is a raw message from the transport layer. ToAssistant is the
// explicit routing attribute: the transport decides how users address the
// assistant; the core only honors the flag.
type Inbound struct {
	RoomID      string
	SenderID    string
	Body        string
	Kind        models.MessageKind
	ReplyTo     string
	ToAssistant bool
}

type PipelineConfig struct {
	MaxBodyBytes      int
	CompressThreshold int
}

type Pipeline struct {
	store       MessageStore
	registry    *Registry
	broadcaster Broadcaster
	responder   Responder
	retriever   ContextProvider
	authz       auth.Authorizer

	maxBodyBytes      int
	compressThreshold int
}

func NewPipeline(store MessageStore, registry *Registry, broadcaster Broadcaster, responder Responder, retriever ContextProvider, authz auth.Authorizer, cfg PipelineConfig) *Pipeline {
	if cfg.MaxBodyBytes == 0 {
		cfg.MaxBodyBytes = 16384
	}
	if cfg.CompressThreshold == 0 {
		cfg.CompressThreshold = 2048
	}
	if authz == nil {
		authz = auth.AllowAll{}
	}

	return &Pipeline{
		store:             store,
		registry:          registry,
		broadcaster:       broadcaster,
		responder:         responder,
		retriever:         retriever,
		authz:             authz,
		maxBodyBytes:      cfg.MaxBodyBytes,
		compressThreshold: cfg.CompressThreshold,
	}
}

// Ingest validates, persists and broadcasts an inbound message, then runs
// assistant orchestration when the message is addressed to the assistant.
// The returned message is the persisted user message; the assistant reply
// is persisted and broadcast separately, always after it.
func (p *Pipeline) Ingest(ctx context.Context, in Inbound) (*models.Message, error) {
	body := strings.TrimSpace(in.Body)
	if body == "" {
		metrics.MessagesIngested.WithLabelValues(string(in.Kind), "rejected").Inc()
		return nil, fmt.Errorf("%w: empty body", ErrValidation)
	}
	if len(body) > p.maxBodyBytes {
		metrics.MessagesIngested.WithLabelValues(string(in.Kind), "rejected").Inc()
		return nil, ErrBodyTooLarge
	}
	if !p.authz.CanSend(in.SenderID, in.RoomID) {
		metrics.MessagesIngested.WithLabelValues(string(in.Kind), "rejected").Inc()
		return nil, ErrNotAuthorized
	}
	if !p.registry.IsMember(in.RoomID, in.SenderID) {
		metrics.MessagesIngested.WithLabelValues(string(in.Kind), "rejected").Inc()
		return nil, ErrNotRoomMember
	}

	kind := in.Kind
	if kind == "" {
		kind = models.KindUser
	}

	msg := models.Message{
		ID:        uuid.New().String(),
		RoomID:    in.RoomID,
		SenderID:  in.SenderID,
		Body:      body,
		Kind:      kind,
		ReplyTo:   in.ReplyTo,
		CreatedAt: time.Now(),
	}

	if err := p.persist(msg); err != nil {
		metrics.MessagesIngested.WithLabelValues(string(kind), "error").Inc()
		return nil, err
	}
	metrics.MessagesIngested.WithLabelValues(string(kind), "persisted").Inc()

	if err := p.broadcaster.Publish(ctx, msg); err != nil {
		logger.Warn("Broadcast failed after persist",
			zap.String("message_id", msg.ID),
			zap.Error(err),
		)
	}

	if in.ToAssistant {
		p.respond(ctx, msg)
	}

	return &msg, nil
}

// persist compresses large bodies before storage. Compression failure is
// non-fatal: the message is stored uncompressed and a warning recorded.
func (p *Pipeline) persist(msg models.Message) error {
	stored := msg
	if len(msg.Body) > p.compressThreshold {
		compressed, err := compressBody(msg.Body)
		if err != nil {
			logger.Warn("Body compression failed, storing uncompressed",
				zap.String("message_id", msg.ID),
				zap.Error(err),
			)
		} else {
			stored.Body = compressed
			stored.Compressed = true
		}
	}

	return p.store.InsertMessage(&stored)
}

// respond runs the orchestrator for an assistant-directed message. Model
// unavailability never reaches the sender; only a fatal fallback error
// degrades to a system notice in the room.
func (p *Pipeline) respond(ctx context.Context, trigger models.Message) {
	var ragContext string
	if p.retriever != nil {
		ragContext = p.retriever.Context(ctx, trigger.Body)
	}

	result, err := p.responder.Respond(ctx, ai.Request{
		MessageID: trigger.ID,
		Body:      trigger.Body,
		Context:   ragContext,
	})
	if err != nil {
		logger.Error("Assistant orchestration failed",
			zap.String("message_id", trigger.ID),
			zap.Error(err),
		)
		notice := models.Message{
			ID:        uuid.New().String(),
			RoomID:    trigger.RoomID,
			SenderID:  "system",
			Body:      "The assistant could not respond to this message.",
			Kind:      models.KindSystem,
			ReplyTo:   trigger.ID,
			CreatedAt: time.Now(),
		}
		if perr := p.persist(notice); perr != nil {
			logger.Error("Failed to persist assistant failure notice", zap.Error(perr))
		}
		p.broadcaster.Publish(ctx, notice)
		return
	}

	reply := models.Message{
		ID:        uuid.New().String(),
		RoomID:    trigger.RoomID,
		SenderID:  "assistant",
		Body:      result.Reply,
		Kind:      models.KindAI,
		ReplyTo:   trigger.ID,
		CreatedAt: time.Now(),
	}

	if err := p.persist(reply); err != nil {
		logger.Error("Failed to persist assistant reply",
			zap.String("message_id", trigger.ID),
			zap.Error(err),
		)
		return
	}
	metrics.MessagesIngested.WithLabelValues(string(models.KindAI), "persisted").Inc()

	if err := p.broadcaster.Publish(ctx, reply); err != nil {
		logger.Warn("Failed to broadcast assistant reply",
			zap.String("message_id", reply.ID),
			zap.Error(err),
		)
	}
}

// History returns recent room messages in persistence order with bodies
// decompressed.
func (p *Pipeline) History(roomID string, limit int) ([]models.Message, error) {
	messages, err := p.store.MessagesByRoom(roomID, limit)
	if err != nil {
		return nil, err
	}

	for i := range messages {
		if !messages[i].Compressed {
			continue
		}
		body, err := decompressBody(messages[i].Body)
		if err != nil {
			return nil, fmt.Errorf("message %s: %w", messages[i].ID, err)
		}
		messages[i].Body = body
		messages[i].Compressed = false
	}

	return messages, nil
}
