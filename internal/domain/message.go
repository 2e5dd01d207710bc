package domain

import "time"

// DefaultRoom is used when a client does not name a room.
const DefaultRoom = "general"

// MaxBodyLength is the longest accepted message body, in characters.
const MaxBodyLength = 4000

// Message is a durably written chat message.
type Message struct {
	ID           string    `json:"id" msgpack:"id"`
	Room         string    `json:"room" msgpack:"room"`
	Seq          int64     `json:"seq" msgpack:"seq"`
	AuthorID     string    `json:"authorId" msgpack:"author_id"`
	AuthorName   string    `json:"authorName" msgpack:"author_name"`
	AuthorAvatar string    `json:"authorAvatar,omitempty" msgpack:"author_avatar,omitempty"`
	Body         string    `json:"body" msgpack:"body"`
	CreatedAt    time.Time `json:"createdAt" msgpack:"created_at"`
}

// Draft is a message that has not been written yet. It has no id and no timestamp.
type Draft struct {
	Room         string `json:"room" validate:"required"`
	AuthorID     string `json:"authorId" validate:"required"`
	AuthorName   string `json:"authorName"`
	AuthorAvatar string `json:"authorAvatar,omitempty"`
	Body         string `json:"body" validate:"max=4000"`
}

// NewDraft builds a draft authored by the given session.
func NewDraft(room string, s Session, body string) Draft {
	return Draft{
		Room:         room,
		AuthorID:     s.ParticipantID,
		AuthorName:   s.DisplayName,
		AuthorAvatar: s.AvatarRef,
		Body:         body,
	}
}

// Less reports whether m sorts before other in a room's view.
// Seq is the durable per-room order; CreatedAt and ID only break ties
// between messages that came from different stores.
func (m Message) Less(other Message) bool {
	if m.Seq != other.Seq {
		return m.Seq < other.Seq
	}
	if !m.CreatedAt.Equal(other.CreatedAt) {
		return m.CreatedAt.Before(other.CreatedAt)
	}
	return m.ID < other.ID
}
