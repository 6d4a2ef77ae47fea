package server

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/mohammad-safakhou/supportbot/models"
)

// HistoryStore reads back persisted conversations.
type HistoryStore interface {
	ListMessages(ctx context.Context, sessionID string) ([]models.Message, error)
	ListSessions(ctx context.Context) ([]models.Session, error)
}

type HistoryHandler struct {
	Store HistoryStore
}

func (h *HistoryHandler) Register(g *echo.Group) {
	g.GET("/conversations/:sessionId", h.conversation)
	g.GET("/sessions", h.sessions)
}

func (h *HistoryHandler) conversation(c echo.Context) error {
	msgs, err := h.Store.ListMessages(c.Request().Context(), c.Param("sessionId"))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, msgDatabaseError).SetInternal(err)
	}
	if msgs == nil {
		msgs = []models.Message{}
	}
	return c.JSON(http.StatusOK, MessagesResponse{Messages: msgs})
}

func (h *HistoryHandler) sessions(c echo.Context) error {
	items, err := h.Store.ListSessions(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, msgDatabaseError).SetInternal(err)
	}
	if items == nil {
		items = []models.Session{}
	}
	return c.JSON(http.StatusOK, SessionsResponse{Sessions: items})
}
