package handlers

import (
	"errors"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/support-agent/backend/internal/ledger"
	"github.com/support-agent/backend/internal/middleware/validation"
	"github.com/support-agent/backend/internal/pipeline"
	"github.com/support-agent/backend/internal/storage/models"
	"github.com/support-agent/backend/internal/storage/sqlite"
	"github.com/support-agent/backend/pkg/logger"
)

type QueryHandler struct {
	orchestrator *pipeline.Orchestrator
	ledger       *ledger.Ledger
	store        *sqlite.Client
}

func NewQueryHandler(orchestrator *pipeline.Orchestrator, l *ledger.Ledger, store *sqlite.Client) *QueryHandler {
	return &QueryHandler{
		orchestrator: orchestrator,
		ledger:       l,
		store:        store,
	}
}

// HandleQuery runs one question through the pipeline.
// POST /api/v1/query
func (h *QueryHandler) HandleQuery(c *fiber.Ctx) error {
	req, err := validation.ValidateQueryRequest(c)
	if err != nil {
		return err
	}

	resp, err := h.orchestrator.Ask(c.Context(), pipeline.Request{
		Question:       req.Question,
		ConversationID: req.ConversationID,
		CustomerID:     req.CustomerID,
	})
	if err != nil {
		if errors.Is(err, pipeline.ErrEmptyQuestion) {
			return fiber.NewError(fiber.StatusBadRequest, "question is required")
		}
		if errors.Is(err, pipeline.ErrGenerationFailed) {
			return fiber.NewError(fiber.StatusBadGateway, "answer generation is temporarily unavailable")
		}
		logger.Error("Query failed", zap.Error(err))
		return fiber.NewError(fiber.StatusInternalServerError, "failed to process query")
	}

	return c.JSON(resp)
}

// HandleGetConversation returns a conversation transcript.
// GET /api/v1/conversations/:id
func (h *QueryHandler) HandleGetConversation(c *fiber.Ctx) error {
	id := c.Params("id")

	conv, err := h.store.GetConversation(c.Context(), id)
	if err != nil {
		logger.Error("Failed to load conversation", zap.String("id", id), zap.Error(err))
		return fiber.NewError(fiber.StatusInternalServerError, "failed to load conversation")
	}
	if conv == nil {
		return fiber.NewError(fiber.StatusNotFound, "conversation not found")
	}

	return c.JSON(conv)
}

// HandleDeleteConversation removes a conversation and its messages.
// DELETE /api/v1/conversations/:id
func (h *QueryHandler) HandleDeleteConversation(c *fiber.Ctx) error {
	id := c.Params("id")

	if err := h.store.DeleteConversation(c.Context(), id); err != nil {
		logger.Error("Failed to delete conversation", zap.String("id", id), zap.Error(err))
		return fiber.NewError(fiber.StatusInternalServerError, "failed to delete conversation")
	}

	return c.JSON(fiber.Map{"deleted": id})
}

// HandleFeedback records a user rating for a run.
// POST /api/v1/feedback
func (h *QueryHandler) HandleFeedback(c *fiber.Ctx) error {
	req, err := validation.ValidateFeedbackRequest(c)
	if err != nil {
		return err
	}

	err = h.ledger.SubmitFeedback(c.Context(), &models.Feedback{
		ConversationID: req.ConversationID,
		RunID:          req.RunID,
		Rating:         req.Rating,
		Comment:        req.Comment,
	})
	if err != nil {
		logger.Error("Failed to store feedback", zap.Error(err))
		return fiber.NewError(fiber.StatusInternalServerError, "failed to store feedback")
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"status": "recorded"})
}

// HandleSummary returns run aggregates for the trailing period.
// GET /api/v1/analytics/summary?hours=24
func (h *QueryHandler) HandleSummary(c *fiber.Ctx) error {
	hours := parseIntQuery(c, "hours", 24)

	summary, err := h.ledger.Summary(c.Context(), time.Duration(hours)*time.Hour)
	if err != nil {
		logger.Error("Failed to build summary", zap.Error(err))
		return fiber.NewError(fiber.StatusInternalServerError, "failed to build summary")
	}

	return c.JSON(summary)
}

// HandleSentimentTrend returns per-day sentiment averages.
// GET /api/v1/analytics/sentiment?days=7
func (h *QueryHandler) HandleSentimentTrend(c *fiber.Ctx) error {
	days := parseIntQuery(c, "days", 7)

	buckets, err := h.ledger.SentimentTrend(c.Context(), days)
	if err != nil {
		logger.Error("Failed to build sentiment trend", zap.Error(err))
		return fiber.NewError(fiber.StatusInternalServerError, "failed to build sentiment trend")
	}
	if buckets == nil {
		buckets = []models.SentimentBucket{}
	}

	return c.JSON(fiber.Map{"days": days, "buckets": buckets})
}

// HandleCacheMetrics returns cache usage aggregates.
// GET /api/v1/analytics/cache
func (h *QueryHandler) HandleCacheMetrics(c *fiber.Ctx) error {
	m, err := h.ledger.CacheMetrics(c.Context())
	if err != nil {
		logger.Error("Failed to read cache metrics", zap.Error(err))
		return fiber.NewError(fiber.StatusInternalServerError, "failed to read cache metrics")
	}

	return c.JSON(m)
}

func parseIntQuery(c *fiber.Ctx, name string, fallback int) int {
	raw := c.Query(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}
