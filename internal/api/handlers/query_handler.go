package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/relaynet/chatcore/internal/rag"
	"github.com/relaynet/chatcore/pkg/logger"
)

type QueryHandler struct {
	retriever *rag.Retriever
}

func NewQueryHandler(retriever *rag.Retriever) *QueryHandler {
	return &QueryHandler{
		retriever: retriever,
	}
}

func (h *QueryHandler) HandleQuery(c *fiber.Ctx) error {
	var req struct {
		Text string `json:"text"`
		TopK int    `json:"top_k"`
	}

	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if req.Text == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "text is required",
		})
	}

	result := h.retriever.Query(c.Context(), req.Text, req.TopK)

	matches := make([]fiber.Map, 0, len(result.Matches))
	for _, m := range result.Matches {
		matches = append(matches, fiber.Map{
			"chunk_id": m.ID,
			"doc_id":   m.DocID,
			"ordinal":  m.Ordinal,
			"score":    m.Score,
			"text":     m.Text,
		})
	}

	return c.JSON(fiber.Map{
		"query":   result.Query,
		"matches": matches,
	})
}
