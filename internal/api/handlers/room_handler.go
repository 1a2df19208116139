package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/relaynet/chatcore/internal/chat"
	"github.com/relaynet/chatcore/pkg/logger"
)

type RoomHandler struct {
	pipeline     *chat.Pipeline
	historyLimit int
}

func NewRoomHandler(pipeline *chat.Pipeline, historyLimit int) *RoomHandler {
	if historyLimit == 0 {
		historyLimit = 100
	}
	return &RoomHandler{
		pipeline:     pipeline,
		historyLimit: historyLimit,
	}
}

func (h *RoomHandler) GetHistory(c *fiber.Ctx) error {
	roomID := c.Params("room")
	if roomID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "room is required",
		})
	}

	limit := c.QueryInt("limit", h.historyLimit)
	if limit <= 0 || limit > h.historyLimit {
		limit = h.historyLimit
	}

	messages, err := h.pipeline.History(roomID, limit)
	if err != nil {
		logger.Error("Failed to read room history", zap.String("room_id", roomID), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to read history",
		})
	}

	return c.JSON(fiber.Map{
		"room_id":  roomID,
		"messages": messages,
	})
}
