package roomsync

import (
	"sort"

	"github.com/nfrund/roomchat/internal/domain"
)

// RoomView is one session's materialised view of a room: the ordered
// message list and the latest presence snapshot. It is not safe for
// concurrent use; the engine loop owns it.
type RoomView struct {
	room        string
	messages    []domain.Message
	ids         map[string]struct{}
	online      []string
	presenceSeq uint64
	hasPresence bool
}

// ViewSnapshot is a copy of a RoomView handed to callers outside the loop.
type ViewSnapshot struct {
	Room             string           `json:"room"`
	State            State            `json:"state"`
	Messages         []domain.Message `json:"messages"`
	ParticipantIDs   []string         `json:"participantIds"`
	PresenceSequence uint64           `json:"sequence"`
}

// NewRoomView builds a view from loaded history. History order is not
// trusted; messages are placed by Message.Less and duplicates are dropped.
func NewRoomView(room string, history []domain.Message) *RoomView {
	v := &RoomView{
		room:     room,
		messages: make([]domain.Message, 0, len(history)),
		ids:      make(map[string]struct{}, len(history)),
		online:   []string{},
	}
	for _, m := range history {
		v.Insert(m)
	}
	return v
}

// Room returns the room the view belongs to.
func (v *RoomView) Room() string { return v.room }

// Len returns the number of messages in the view.
func (v *RoomView) Len() int { return len(v.messages) }

// Has reports whether a message id is in the view.
func (v *RoomView) Has(id string) bool {
	_, ok := v.ids[id]
	return ok
}

// Get returns the message with the given id.
func (v *RoomView) Get(id string) (domain.Message, bool) {
	if !v.Has(id) {
		return domain.Message{}, false
	}
	for _, m := range v.messages {
		if m.ID == id {
			return m, true
		}
	}
	return domain.Message{}, false
}

// Apply merges an inbound event and reports whether the view changed.
// Events for other rooms are ignored.
func (v *RoomView) Apply(ev domain.Event) bool {
	if ev.Room != v.room {
		return false
	}
	switch ev.Kind {
	case domain.KindMessage:
		if ev.Message == nil {
			return false
		}
		return v.Insert(*ev.Message)
	case domain.KindDelete:
		return v.Remove(ev.MessageID)
	case domain.KindPresence:
		return v.ApplyPresence(ev.ParticipantIDs, ev.Sequence)
	default:
		return false
	}
}

// Insert places m by (Seq, CreatedAt, ID). A message whose id is already
// present is left where it is.
func (v *RoomView) Insert(m domain.Message) bool {
	if m.ID == "" || v.Has(m.ID) {
		return false
	}
	i := sort.Search(len(v.messages), func(i int) bool { return m.Less(v.messages[i]) })
	v.messages = append(v.messages, domain.Message{})
	copy(v.messages[i+1:], v.messages[i:])
	v.messages[i] = m
	v.ids[m.ID] = struct{}{}
	return true
}

// Remove deletes a message if present.
func (v *RoomView) Remove(id string) bool {
	if !v.Has(id) {
		return false
	}
	for i, m := range v.messages {
		if m.ID == id {
			v.messages = append(v.messages[:i], v.messages[i+1:]...)
			break
		}
	}
	delete(v.ids, id)
	return true
}

// ApplyPresence replaces the online set when seq is newer than the one held.
func (v *RoomView) ApplyPresence(participantIDs []string, seq uint64) bool {
	if v.hasPresence && seq <= v.presenceSeq {
		return false
	}
	online := make([]string, len(participantIDs))
	copy(online, participantIDs)
	sort.Strings(online)

	v.online = online
	v.presenceSeq = seq
	v.hasPresence = true
	return true
}

// Messages returns a copy of the ordered message list.
func (v *RoomView) Messages() []domain.Message {
	out := make([]domain.Message, len(v.messages))
	copy(out, v.messages)
	return out
}

// Online returns a copy of the online participant ids.
func (v *RoomView) Online() []string {
	out := make([]string, len(v.online))
	copy(out, v.online)
	return out
}

// PresenceSequence returns the sequence of the snapshot the online set came from.
func (v *RoomView) PresenceSequence() uint64 { return v.presenceSeq }

// Snapshot copies the view.
func (v *RoomView) Snapshot(state State) ViewSnapshot {
	return ViewSnapshot{
		Room:             v.room,
		State:            state,
		Messages:         v.Messages(),
		ParticipantIDs:   v.Online(),
		PresenceSequence: v.presenceSeq,
	}
}
