package handlers

import (
	"github.com/nfrund/roomchat/internal/domain"
	"github.com/nfrund/roomchat/internal/presence"
)

// ErrorResponse is the standard format for API error responses.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// HistoryResponse is the body of GET /api/rooms/:room/messages.
type HistoryResponse struct {
	Room     string           `json:"room"`
	Messages []domain.Message `json:"messages"`
}

// PresenceResponse is the body of GET /api/rooms/:room/presence.
type PresenceResponse struct {
	Room           string   `json:"room"`
	ParticipantIDs []string `json:"participantIds"`
	Count          int      `json:"count"`
	Sequence       uint64   `json:"sequence"`
}

// NewPresenceResponse converts a tracker snapshot.
func NewPresenceResponse(room string, snap presence.Snapshot) *PresenceResponse {
	ids := snap.ParticipantIDs
	if ids == nil {
		ids = []string{}
	}
	return &PresenceResponse{Room: room, ParticipantIDs: ids, Count: len(ids), Sequence: snap.Sequence}
}
