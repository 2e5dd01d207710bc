package roomsync

import (
	"context"
	"errors"
	"fmt"

	"github.com/nfrund/roomchat/internal/channel"
	"github.com/nfrund/roomchat/internal/domain"
	"github.com/nfrund/roomchat/internal/store"
)

// ErrBroadcastFailed means the store write succeeded but the room channel
// did not accept the event. Live subscribers recover through a resync.
var ErrBroadcastFailed = errors.New("broadcast failed")

// Mediator performs the write side of a room: durable write first, then
// broadcast. Engines and the HTTP handlers share it.
type Mediator struct {
	store   store.MessageStore
	channel channel.Broadcaster
}

// NewMediator creates a mediator over a store and a room channel.
func NewMediator(s store.MessageStore, ch channel.Broadcaster) *Mediator {
	return &Mediator{store: s, channel: ch}
}

// Publish writes body as a message from session and broadcasts it. Nothing
// is broadcast when the write fails.
func (m *Mediator) Publish(ctx context.Context, room string, session domain.Session, body string) (*domain.Message, error) {
	if !session.Valid() {
		return nil, domain.ErrNoSession
	}

	msg, err := m.store.Append(ctx, domain.NewDraft(room, session, body))
	if err != nil {
		if errors.Is(err, domain.ErrValidation) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", domain.ErrPublishFailed, err)
	}

	if err := m.channel.Publish(ctx, room, domain.MessageEvent(*msg)); err != nil {
		return msg, fmt.Errorf("message %s: %w: %w", msg.ID, ErrBroadcastFailed, err)
	}
	return msg, nil
}

// Delete removes a message written by requesterID and broadcasts the
// removal. ErrForbidden and ErrNotFound from the store are returned as is.
func (m *Mediator) Delete(ctx context.Context, room, id, requesterID string) error {
	if err := m.store.DeleteByID(ctx, room, id, requesterID); err != nil {
		return err
	}
	if err := m.channel.Publish(ctx, room, domain.DeleteEvent(room, id)); err != nil {
		return fmt.Errorf("delete %s: %w: %w", id, ErrBroadcastFailed, err)
	}
	return nil
}

// History returns the durable history of room.
func (m *Mediator) History(ctx context.Context, room string) ([]domain.Message, error) {
	return m.store.ListByRoom(ctx, room)
}
