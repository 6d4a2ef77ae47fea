package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/mohammad-safakhou/supportbot/internal/assistant"
	"github.com/mohammad-safakhou/supportbot/provider"
)

// Chatter answers one chat turn.
type Chatter interface {
	Chat(ctx context.Context, sessionID, message string) (*assistant.Reply, error)
}

type ChatHandler struct {
	Chat     Chatter
	Provider provider.Client
	Metrics  *Metrics
}

func (h *ChatHandler) Register(g *echo.Group) {
	g.POST("/chat", h.chat)
}

func (h *ChatHandler) chat(c echo.Context) error {
	var req ChatRequest
	if err := c.Bind(&req); err != nil {
		h.outcome("invalid")
		return echo.NewHTTPError(http.StatusBadRequest, msgInvalidBody).SetInternal(err)
	}

	reply, err := h.Chat.Chat(c.Request().Context(), req.SessionID, req.Message)
	if err != nil {
		code, msg, outcome := classify(err, h.Provider)
		h.outcome(outcome)
		return echo.NewHTTPError(code, msg).SetInternal(err)
	}

	h.outcome("ok")
	if h.Metrics != nil {
		h.Metrics.TokensUsed.Add(float64(reply.TokensUsed))
		if reply.Overridden {
			h.Metrics.GroundingOverrides.Inc()
		}
	}
	return c.JSON(http.StatusOK, ChatResponse{Reply: reply.Reply, TokensUsed: reply.TokensUsed})
}

func (h *ChatHandler) outcome(o string) {
	if h.Metrics != nil {
		h.Metrics.ChatRequests.WithLabelValues(o).Inc()
	}
}

// classify maps the chat error taxonomy to a status, body and metric label.
func classify(err error, client provider.Client) (int, string, string) {
	switch {
	case errors.Is(err, assistant.ErrInvalidRequest):
		return http.StatusBadRequest, msgMissingFields, "invalid"
	case errors.Is(err, assistant.ErrUpstreamAuth):
		if client == "" {
			client = provider.Gemini
		}
		return http.StatusBadGateway, fmt.Sprintf(invalidKeyTemplate, client.DisplayName()), "upstream_auth"
	case errors.Is(err, assistant.ErrStore):
		return http.StatusInternalServerError, msgDatabaseError, "store_error"
	default:
		return http.StatusInternalServerError, msgLLMFailed, "upstream_error"
	}
}
