package roomsync

import (
	"fmt"

	"github.com/nfrund/roomchat/internal/domain"
)

// State is the lifecycle position of an engine in its room.
type State int32

const (
	StateDisconnected State = iota
	StateLoading
	StateLive
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateLoading:
		return "loading"
	case StateLive:
		return "live"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UpdateKind discriminates Update values.
type UpdateKind int

const (
	// UpdateState reports a lifecycle transition.
	UpdateState UpdateKind = iota
	// UpdateReset replaces the whole view, after a (re)load.
	UpdateReset
	// UpdateEvent carries one inbound event that changed the view.
	UpdateEvent
)

// Update is delivered to the engine's OnUpdate callback from the engine
// loop. Callbacks must not block.
type Update struct {
	Kind  UpdateKind
	Room  string
	State State
	Err   error
	View  *ViewSnapshot
	Event *domain.Event
}
