package validation

import (
	"strings"
	"unicode/utf8"

	"github.com/gofiber/fiber/v2"
)

const maxQuestionLength = 4000

// QueryRequest is the body accepted by the query endpoints.
type QueryRequest struct {
	Question       string `json:"question"`
	ConversationID string `json:"conversation_id"`
	CustomerID     string `json:"customer_id"`
}

// ValidateQueryRequest parses and sanity-checks a query body before it
// reaches the pipeline. An empty question never starts a run.
func ValidateQueryRequest(c *fiber.Ctx) (*QueryRequest, error) {
	var req QueryRequest
	if err := c.BodyParser(&req); err != nil {
		return nil, fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	req.Question = strings.TrimSpace(req.Question)
	if req.Question == "" {
		return nil, fiber.NewError(fiber.StatusBadRequest, "question is required")
	}
	if utf8.RuneCountInString(req.Question) > maxQuestionLength {
		return nil, fiber.NewError(fiber.StatusBadRequest, "question exceeds maximum length")
	}
	if !utf8.ValidString(req.Question) {
		return nil, fiber.NewError(fiber.StatusBadRequest, "question contains invalid encoding")
	}

	return &req, nil
}

// FeedbackRequest is the body accepted by the feedback endpoint.
type FeedbackRequest struct {
	ConversationID string `json:"conversation_id"`
	RunID          string `json:"run_id"`
	Rating         int    `json:"rating"`
	Comment        string `json:"comment"`
}

func ValidateFeedbackRequest(c *fiber.Ctx) (*FeedbackRequest, error) {
	var req FeedbackRequest
	if err := c.BodyParser(&req); err != nil {
		return nil, fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	if strings.TrimSpace(req.ConversationID) == "" {
		return nil, fiber.NewError(fiber.StatusBadRequest, "conversation_id is required")
	}
	if req.Rating < 1 || req.Rating > 5 {
		return nil, fiber.NewError(fiber.StatusBadRequest, "rating must be between 1 and 5")
	}

	return &req, nil
}
