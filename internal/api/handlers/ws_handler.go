package handlers

import (
	"context"
	"errors"
	"sync"

	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/relaynet/chatcore/internal/chat"
	"github.com/relaynet/chatcore/internal/storage/models"
	"github.com/relaynet/chatcore/pkg/logger"
)

type WebSocketHandler struct {
	registry *chat.Registry
	pipeline *chat.Pipeline
}

func NewWebSocketHandler(registry *chat.Registry, pipeline *chat.Pipeline) *WebSocketHandler {
	return &WebSocketHandler{
		registry: registry,
		pipeline: pipeline,
	}
}

// wsTransport adapts one websocket connection to the registry's Transport.
// Writes are serialized; the registry may broadcast from several
// goroutines.
type wsTransport struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (t *wsTransport) Send(msg models.Message) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conn.WriteJSON(map[string]interface{}{
		"type":       "message",
		"id":         msg.ID,
		"room_id":    msg.RoomID,
		"sender_id":  msg.SenderID,
		"body":       msg.Body,
		"kind":       string(msg.Kind),
		"reply_to":   msg.ReplyTo,
		"created_at": msg.CreatedAt,
	})
}

func (t *wsTransport) Close() error {
	return t.conn.Close()
}

// HandleConnection owns one client session: register on handshake, feed
// frames into the pipeline, unregister on any read failure.
func (h *WebSocketHandler) HandleConnection(c *websocket.Conn) {
	roomID := c.Params("room")
	userID := c.Query("user_id")

	if roomID == "" || userID == "" {
		c.WriteJSON(map[string]interface{}{"type": "error", "error": "room and user_id are required"})
		c.Close()
		return
	}

	transport := &wsTransport{conn: c}

	handle, err := h.registry.Register(userID, roomID, transport)
	if err != nil {
		logger.Warn("Connection rejected",
			zap.String("user_id", userID),
			zap.String("room_id", roomID),
			zap.Error(err),
		)
		c.WriteJSON(map[string]interface{}{"type": "error", "error": "connection already registered"})
		c.Close()
		return
	}
	defer h.registry.Unregister(handle)

	logger.Info("WebSocket session established",
		zap.String("user_id", userID),
		zap.String("room_id", roomID),
	)

	for {
		var frame struct {
			Type        string `json:"type"`
			Body        string `json:"body"`
			ToAssistant bool   `json:"to_assistant"`
			ReplyTo     string `json:"reply_to"`
		}

		if err := c.ReadJSON(&frame); err != nil {
			logger.Debug("WebSocket read ended", zap.String("user_id", userID), zap.Error(err))
			return
		}

		h.registry.Touch(handle)

		switch frame.Type {
		case "heartbeat":
			continue
		case "message":
			_, err := h.pipeline.Ingest(context.Background(), chat.Inbound{
				RoomID:      roomID,
				SenderID:    userID,
				Body:        frame.Body,
				ReplyTo:     frame.ReplyTo,
				ToAssistant: frame.ToAssistant,
			})
			if err != nil {
				h.sendError(transport, err)
			}
		default:
			// Unknown frame types are ignored; they still count as
			// liveness.
		}
	}
}

func (h *WebSocketHandler) sendError(t *wsTransport, err error) {
	message := "Failed to process message"
	if errors.Is(err, chat.ErrValidation) {
		message = err.Error()
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.conn.WriteJSON(map[string]interface{}{
		"type":  "error",
		"error": message,
	})
}
