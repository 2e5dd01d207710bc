package domain

// EventKind discriminates the events carried on room and presence channels.
type EventKind string

const (
	KindMessage  EventKind = "message"
	KindDelete   EventKind = "delete"
	KindPresence EventKind = "presence"
)

// Event is the wire shape shared by the room channel, the presence channel
// and websocket clients. Only the fields relevant to Kind are set.
type Event struct {
	Kind           EventKind `json:"kind"`
	Room           string    `json:"room"`
	Message        *Message  `json:"message,omitempty"`
	MessageID      string    `json:"messageId,omitempty"`
	ParticipantIDs []string  `json:"participantIds,omitempty"`
	Sequence       uint64    `json:"sequence,omitempty"`
}

// MessageEvent announces a durably written message.
func MessageEvent(m Message) Event {
	return Event{Kind: KindMessage, Room: m.Room, Message: &m}
}

// DeleteEvent announces the removal of a message.
func DeleteEvent(room, messageID string) Event {
	return Event{Kind: KindDelete, Room: room, MessageID: messageID}
}

// PresenceEvent carries a full presence snapshot.
func PresenceEvent(room string, participantIDs []string, sequence uint64) Event {
	if participantIDs == nil {
		participantIDs = []string{}
	}
	return Event{Kind: KindPresence, Room: room, ParticipantIDs: participantIDs, Sequence: sequence}
}
