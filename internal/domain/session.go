package domain

// Session is the authenticated participant for a connection. It is issued by
// the external auth collaborator and treated as read-only.
type Session struct {
	ParticipantID string `json:"participantId"`
	DisplayName   string `json:"displayName"`
	AvatarRef     string `json:"avatarRef,omitempty"`
}

// Valid reports whether the session identifies a participant.
func (s *Session) Valid() bool {
	return s != nil && s.ParticipantID != ""
}

// Name returns the display name, falling back to the participant id.
func (s Session) Name() string {
	if s.DisplayName != "" {
		return s.DisplayName
	}
	return s.ParticipantID
}
