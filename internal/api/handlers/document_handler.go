package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/relaynet/chatcore/internal/rag"
	"github.com/relaynet/chatcore/pkg/logger"
)

type DocumentHandler struct {
	ingestor *rag.Ingestor
}

func NewDocumentHandler(ingestor *rag.Ingestor) *DocumentHandler {
	return &DocumentHandler{
		ingestor: ingestor,
	}
}

func (h *DocumentHandler) UploadDocument(c *fiber.Ctx) error {
	var req struct {
		Title   string `json:"title"`
		DocType string `json:"doc_type"`
		Content string `json:"content"`
	}

	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if req.Content == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "content is required",
		})
	}

	doc, chunks, err := h.ingestor.IngestDocument(c.Context(), req.Title, req.DocType, req.Content)
	if err != nil {
		logger.Error("Failed to ingest document", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to ingest document",
		})
	}

	return c.JSON(fiber.Map{
		"id":     doc.ID,
		"title":  doc.Title,
		"chunks": len(chunks),
	})
}
