package handlers

import (
	"io"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/support-agent/backend/internal/ingestion"
	"github.com/support-agent/backend/internal/storage/models"
	"github.com/support-agent/backend/internal/storage/sqlite"
	"github.com/support-agent/backend/pkg/logger"
)

const maxUploadBytes = 10 << 20

type DocumentHandler struct {
	processor *ingestion.Processor
	store     *sqlite.Client
}

func NewDocumentHandler(processor *ingestion.Processor, store *sqlite.Client) *DocumentHandler {
	return &DocumentHandler{processor: processor, store: store}
}

// HandleUpload ingests one file into the knowledge base.
// POST /api/v1/documents (multipart, field "file")
func (h *DocumentHandler) HandleUpload(c *fiber.Ctx) error {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "file field is required")
	}
	if fileHeader.Size > maxUploadBytes {
		return fiber.NewError(fiber.StatusRequestEntityTooLarge, "file exceeds maximum size")
	}

	file, err := fileHeader.Open()
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "failed to open uploaded file")
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "failed to read uploaded file")
	}

	doc, err := h.processor.ProcessDocument(c.Context(), fileHeader.Filename, content)
	if err != nil {
		logger.Error("Document ingestion failed",
			zap.String("filename", fileHeader.Filename),
			zap.Error(err),
		)
		return fiber.NewError(fiber.StatusUnprocessableEntity, "failed to process document")
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"doc_id":      doc.ID,
		"filename":    doc.Filename,
		"status":      doc.Status,
		"chunk_count": doc.ChunkCount,
	})
}

// HandleList returns the document catalog.
// GET /api/v1/documents
func (h *DocumentHandler) HandleList(c *fiber.Ctx) error {
	docs, err := h.store.ListDocuments(c.Context())
	if err != nil {
		logger.Error("Failed to list documents", zap.Error(err))
		return fiber.NewError(fiber.StatusInternalServerError, "failed to list documents")
	}
	if docs == nil {
		docs = []models.Document{}
	}

	return c.JSON(fiber.Map{"documents": docs})
}

// HandleDelete removes a document and its chunks everywhere.
// DELETE /api/v1/documents/:id
func (h *DocumentHandler) HandleDelete(c *fiber.Ctx) error {
	id := c.Params("id")

	if err := h.processor.DeleteDocument(c.Context(), id); err != nil {
		logger.Error("Failed to delete document", zap.String("id", id), zap.Error(err))
		return fiber.NewError(fiber.StatusInternalServerError, "failed to delete document")
	}

	return c.JSON(fiber.Map{"deleted": id})
}

// HandleStatus reports knowledge-base size and recent uploads.
// GET /api/v1/kb/status
func (h *DocumentHandler) HandleStatus(c *fiber.Ctx) error {
	docs, chunks, recent, err := h.store.KnowledgeBaseStatus(c.Context())
	if err != nil {
		logger.Error("Failed to read knowledge base status", zap.Error(err))
		return fiber.NewError(fiber.StatusInternalServerError, "failed to read knowledge base status")
	}
	if recent == nil {
		recent = []models.Document{}
	}

	return c.JSON(fiber.Map{
		"documents": docs,
		"chunks":    chunks,
		"recent":    recent,
	})
}
