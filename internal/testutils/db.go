package testutils

import (
	"github.com/google/uuid"
	"github.com/nfrund/roomchat/internal/domain"
)

// UniqueRoom returns a room name no other test run uses, so tests against
// shared backends do not see each other's messages.
func UniqueRoom(prefix string) string {
	return prefix + "-" + uuid.NewString()
}

// NewSession returns a session for participantID.
func NewSession(participantID string) domain.Session {
	return domain.Session{ParticipantID: participantID, DisplayName: "User " + participantID}
}
