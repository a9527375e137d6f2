package handlers

import (
	"context"
	"strings"
	"time"

	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/support-agent/backend/internal/pipeline"
	"github.com/support-agent/backend/pkg/logger"
)

type WebSocketHandler struct {
	orchestrator *pipeline.Orchestrator
}

func NewWebSocketHandler(orchestrator *pipeline.Orchestrator) *WebSocketHandler {
	return &WebSocketHandler{orchestrator: orchestrator}
}

type wsQuery struct {
	Question       string `json:"question"`
	ConversationID string `json:"conversation_id"`
	CustomerID     string `json:"customer_id"`
}

type wsEvent struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

// HandleConnection serves one chat session. Each incoming question runs
// through the pipeline; the answer streams back word by word, followed by a
// complete event carrying the trace and attribution.
func (h *WebSocketHandler) HandleConnection(c *websocket.Conn) {
	defer c.Close()

	for {
		var query wsQuery
		if err := c.ReadJSON(&query); err != nil {
			logger.Debug("WebSocket connection closed", zap.Error(err))
			return
		}

		if strings.TrimSpace(query.Question) == "" {
			c.WriteJSON(wsEvent{Type: "error", Payload: "question is required"})
			continue
		}

		c.WriteJSON(wsEvent{Type: "status", Payload: "processing"})

		resp, err := h.orchestrator.Ask(context.Background(), pipeline.Request{
			Question:       query.Question,
			ConversationID: query.ConversationID,
			CustomerID:     query.CustomerID,
		})
		if err != nil {
			logger.Error("WebSocket query failed", zap.Error(err))
			c.WriteJSON(wsEvent{Type: "error", Payload: "failed to process query"})
			continue
		}

		for _, word := range strings.Fields(resp.Answer) {
			if err := c.WriteJSON(wsEvent{Type: "chunk", Payload: word + " "}); err != nil {
				return
			}
			time.Sleep(20 * time.Millisecond)
		}

		c.WriteJSON(wsEvent{Type: "complete", Payload: resp})
	}
}
