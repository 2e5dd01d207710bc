package domain

// Frame kinds sent to websocket clients in addition to the event kinds.
const (
	FrameHello   EventKind = "hello"
	FrameState   EventKind = "state"
	FrameHistory EventKind = "history"
	FrameError   EventKind = "error"
)

// Actions a websocket client may send.
const (
	ActionPublish = "publish"
	ActionDelete  = "delete"
	ActionResync  = "resync"
)

// Frame is one server-to-client websocket message.
type Frame struct {
	Kind           EventKind `json:"kind"`
	Room           string    `json:"room,omitempty"`
	Session        *Session  `json:"session,omitempty"`
	State          string    `json:"state,omitempty"`
	Messages       []Message `json:"messages,omitempty"`
	Message        *Message  `json:"message,omitempty"`
	MessageID      string    `json:"messageId,omitempty"`
	ParticipantIDs []string  `json:"participantIds,omitempty"`
	Count          *int      `json:"count,omitempty"`
	Sequence       uint64    `json:"sequence,omitempty"`
	Ref            string    `json:"ref,omitempty"`
	Code           string    `json:"code,omitempty"`
	Error          string    `json:"error,omitempty"`
}

// ClientAction is one client-to-server websocket message.
type ClientAction struct {
	Action    string `json:"action"`
	Body      string `json:"body,omitempty"`
	MessageID string `json:"messageId,omitempty"`
	Ref       string `json:"ref,omitempty"`
}

// FrameFromEvent converts a channel event to its client frame.
func FrameFromEvent(ev Event) Frame {
	f := Frame{Kind: ev.Kind, Room: ev.Room, Message: ev.Message, MessageID: ev.MessageID}
	if ev.Kind == KindPresence {
		ids := ev.ParticipantIDs
		if ids == nil {
			ids = []string{}
		}
		n := len(ids)
		f.ParticipantIDs, f.Count, f.Sequence = ids, &n, ev.Sequence
	}
	return f
}
