package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/nfrund/roomchat/internal/domain"
	"github.com/nfrund/roomchat/internal/middleware"
	"github.com/nfrund/roomchat/internal/roomsync"
)

// MessageHandler serves the room message API.
type MessageHandler struct {
	mediator *roomsync.Mediator
}

// NewMessageHandler creates a handler writing through mediator.
func NewMessageHandler(mediator *roomsync.Mediator) *MessageHandler {
	return &MessageHandler{mediator: mediator}
}

func roomParam(c echo.Context) (string, error) {
	room := strings.TrimSpace(c.Param("room"))
	if room == "" {
		return "", echo.NewHTTPError(http.StatusBadRequest, "room is required")
	}
	return room, nil
}

// List returns the room's history.
func (h *MessageHandler) List(c echo.Context) error {
	room, err := roomParam(c)
	if err != nil {
		return err
	}
	msgs, err := h.mediator.History(c.Request().Context(), room)
	if err != nil {
		return err
	}
	if msgs == nil {
		msgs = []domain.Message{}
	}
	return c.JSON(http.StatusOK, &HistoryResponse{Room: room, Messages: msgs})
}

// Create publishes a message as the session's participant.
func (h *MessageHandler) Create(c echo.Context) error {
	sess, ok := middleware.SessionFrom(c)
	if !ok {
		return domain.ErrNoSession
	}
	room, err := roomParam(c)
	if err != nil {
		return err
	}

	var req PublishRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	msg, err := h.mediator.Publish(c.Request().Context(), room, *sess, req.Body)
	if errors.Is(err, roomsync.ErrBroadcastFailed) {
		// durable; live sessions pick it up on their next resync
		middleware.FromContext(c.Request().Context()).Warn("Message stored but not broadcast", "room", room, "error", err)
		err = nil
	}
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, msg)
}

// Delete removes one of the session's own messages.
func (h *MessageHandler) Delete(c echo.Context) error {
	sess, ok := middleware.SessionFrom(c)
	if !ok {
		return domain.ErrNoSession
	}
	room, err := roomParam(c)
	if err != nil {
		return err
	}

	err = h.mediator.Delete(c.Request().Context(), room, c.Param("id"), sess.ParticipantID)
	if errors.Is(err, roomsync.ErrBroadcastFailed) {
		middleware.FromContext(c.Request().Context()).Warn("Message deleted but not broadcast", "room", room, "error", err)
		err = nil
	}
	if err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}
