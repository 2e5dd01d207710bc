package pubsub

import (
	"context"
)

// Message is the structure passed between components on the bus.
type Message struct {
	// Topic identifies the channel the message belongs to (e.g. "room.general.events").
	Topic string
	// UserID identifies the participant whose action produced the message, if any.
	UserID string
	// Payload contains the encoded event.
	Payload []byte
	// Metadata carries transport attributes such as the per-topic sequence.
	Metadata map[string]string
}

// Handler defines the function signature for processing a received message.
type Handler func(ctx context.Context, msg Message) error

// Publisher defines the contract for sending messages to the Pub/Sub system.
type Publisher interface {
	Publish(ctx context.Context, msg Message) error
	Close() error
}

// Subscriber defines the contract for receiving messages from the Pub/Sub system.
type Subscriber interface {
	// Subscribe registers handler for topic and returns once the subscription
	// is active. Messages are delivered sequentially until ctx is cancelled.
	Subscribe(ctx context.Context, topic string, handler Handler) error
	Close() error
}

// PubSub is implemented by transports that both publish and subscribe.
type PubSub interface {
	Publisher
	Subscriber
}
