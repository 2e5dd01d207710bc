package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/nfrund/roomchat/internal/presence"
)

// PresenceHandler serves presence snapshots.
type PresenceHandler struct {
	tracker *presence.Tracker
}

// NewPresenceHandler creates a new presence handler.
func NewPresenceHandler(tracker *presence.Tracker) *PresenceHandler {
	return &PresenceHandler{tracker: tracker}
}

// Get returns the current online participants of a room.
func (h *PresenceHandler) Get(c echo.Context) error {
	room, err := roomParam(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, NewPresenceResponse(room, h.tracker.Snapshot(room)))
}
