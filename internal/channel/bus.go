// Package channel implements the per-room broadcast bus used for chat
// events and presence snapshots.
package channel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/nfrund/roomchat/internal/domain"
	"github.com/nfrund/roomchat/internal/metrics"
	"github.com/nfrund/roomchat/internal/pubsub"
	"github.com/nfrund/roomchat/internal/topicmgr"
)

// DefaultNamespace is used for chat message and delete events.
const DefaultNamespace = "room"

// ErrClosed is returned by Publish and Subscribe after Close.
var ErrClosed = errors.New("channel bus closed")

// Handler receives events for one subscription. Calls for the same
// subscription never overlap and arrive in publish order.
type Handler func(ctx context.Context, ev domain.Event)

// Broadcaster is the part of Bus the sync engine and presence tracker need.
type Broadcaster interface {
	Publish(ctx context.Context, room string, ev domain.Event) error
	Subscribe(ctx context.Context, room string, handler Handler) (*Subscription, error)
}

// Bus fans events out to every live subscription of a room.
type Bus struct {
	ps        pubsub.PubSub
	topics    *topicmgr.Manager
	namespace string
	logger    *slog.Logger

	mu     sync.Mutex
	rooms  map[string]*roomState
	subs   map[*Subscription]struct{}
	closed bool
}

var _ Broadcaster = (*Bus)(nil)

type roomState struct {
	topic string
	mu    sync.Mutex // serialises publishes to the room
	seq   uint64
}

// Option configures a Bus.
type Option func(*Bus)

// WithNamespace places the bus's topics under namespace, so several buses
// can share one transport without colliding.
func WithNamespace(namespace string) Option {
	return func(b *Bus) { b.namespace = namespace }
}

// WithTopicManager registers topics with m instead of the process-wide manager.
func WithTopicManager(m *topicmgr.Manager) Option {
	return func(b *Bus) { b.topics = m }
}

// New creates a bus on top of ps.
func New(ps pubsub.PubSub, opts ...Option) *Bus {
	b := &Bus{
		ps:        ps,
		topics:    topicmgr.Default(),
		namespace: DefaultNamespace,
		rooms:     make(map[string]*roomState),
		subs:      make(map[*Subscription]struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.logger = slog.Default().With("component", "channel", "namespace", b.namespace)
	return b
}

// Namespace returns the topic namespace of the bus.
func (b *Bus) Namespace() string {
	return b.namespace
}

// Topic returns the pubsub topic carrying room's events, registering it on first use.
func (b *Bus) Topic(room string) (string, error) {
	st, err := b.room(room)
	if err != nil {
		return "", err
	}
	return st.topic, nil
}

func (b *Bus) room(room string) (*roomState, error) {
	if strings.TrimSpace(room) == "" {
		return nil, fmt.Errorf("%w: room name is required", domain.ErrValidation)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrClosed
	}
	if st, ok := b.rooms[room]; ok {
		return st, nil
	}

	name := topicName(b.namespace, room)
	_, err := b.topics.Ensure(topicmgr.Define(topicmgr.TopicConfig{
		Name:        name,
		Namespace:   b.namespace,
		Room:        room,
		Description: fmt.Sprintf("%s events for room %q", b.namespace, room),
	}))
	if err != nil {
		return nil, fmt.Errorf("register topic for room %q: %w", room, err)
	}

	st := &roomState{topic: name}
	b.rooms[room] = st
	return st, nil
}

// Publish delivers ev to every subscription of room that is registered at
// the moment of the call. Publishes to one room are serialised, so all
// subscribers observe them in the same order.
func (b *Bus) Publish(ctx context.Context, room string, ev domain.Event) error {
	st, err := b.room(room)
	if err != nil {
		return err
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", ev.Kind, err)
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	st.seq++
	msg := pubsub.Message{
		Topic:   st.topic,
		Payload: payload,
		Metadata: map[string]string{
			pubsub.MetaKeyRoom: room,
			pubsub.MetaKeySeq:  strconv.FormatUint(st.seq, 10),
			pubsub.MetaKeyKind: string(ev.Kind),
		},
	}
	if ev.Message != nil {
		msg.UserID = ev.Message.AuthorID
	}

	if err := b.ps.Publish(ctx, msg); err != nil {
		b.logger.WarnContext(ctx, "Failed to publish event", "room", room, "kind", ev.Kind, "error", err)
		return fmt.Errorf("publish %s event to room %q: %w", ev.Kind, room, err)
	}
	metrics.EventsPublished.WithLabelValues(b.namespace, string(ev.Kind)).Inc()
	return nil
}

// Subscribe registers handler for room. When Subscribe returns without
// error the subscription is active and will see every later Publish; it
// does not replay earlier events. The subscription lives until
// Unsubscribe or Close, independent of ctx.
func (b *Bus) Subscribe(ctx context.Context, room string, handler Handler) (*Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	st, err := b.room(room)
	if err != nil {
		return nil, err
	}

	subCtx, cancel := context.WithCancel(context.Background())
	sub := &Subscription{
		room:      room,
		topic:     st.topic,
		namespace: b.namespace,
		cancel:    cancel,
		bus:       b,
	}

	err = b.ps.Subscribe(subCtx, st.topic, func(hctx context.Context, msg pubsub.Message) error {
		if sub.closed.Load() {
			return nil
		}
		seq, _ := strconv.ParseUint(msg.Metadata[pubsub.MetaKeySeq], 10, 64)
		if seq != 0 && seq <= sub.lastSeq {
			metrics.EventsDropped.WithLabelValues("duplicate").Inc()
			return nil
		}
		sub.lastSeq = seq

		var ev domain.Event
		if err := json.Unmarshal(msg.Payload, &ev); err != nil {
			metrics.EventsDropped.WithLabelValues("decode").Inc()
			return fmt.Errorf("decode event on %s: %w", msg.Topic, err)
		}
		handler(hctx, ev)
		return nil
	})
	if err != nil {
		cancel()
		return nil, fmt.Errorf("%w: room %q: %v", domain.ErrSubscriptionFailed, room, err)
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		sub.Unsubscribe()
		return nil, ErrClosed
	}
	b.subs[sub] = struct{}{}
	b.mu.Unlock()
	metrics.ActiveSubscriptions.WithLabelValues(b.namespace).Inc()

	return sub, nil
}

func (b *Bus) forget(sub *Subscription) {
	b.mu.Lock()
	_, ok := b.subs[sub]
	delete(b.subs, sub)
	b.mu.Unlock()
	if ok {
		metrics.ActiveSubscriptions.WithLabelValues(b.namespace).Dec()
	}
}

// Close ends every subscription. It does not close the underlying transport.
func (b *Bus) Close() error {
	b.mu.Lock()
	b.closed = true
	subs := make([]*Subscription, 0, len(b.subs))
	for s := range b.subs {
		subs = append(subs, s)
	}
	b.mu.Unlock()

	for _, s := range subs {
		s.Unsubscribe()
	}
	return nil
}
