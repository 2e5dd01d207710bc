package channel

import (
	"context"
	"sync"
	"sync/atomic"
)

// Subscription is a live registration on a room's channel.
type Subscription struct {
	room      string
	topic     string
	namespace string
	cancel    context.CancelFunc
	bus       *Bus

	once   sync.Once
	closed atomic.Bool

	// only touched by the delivery goroutine
	lastSeq uint64
}

// Room returns the room the subscription listens to.
func (s *Subscription) Room() string { return s.room }

// Topic returns the underlying pubsub topic.
func (s *Subscription) Topic() string { return s.topic }

// Active reports whether the subscription still delivers events.
func (s *Subscription) Active() bool { return !s.closed.Load() }

// Unsubscribe stops delivery. It is idempotent and safe to call from inside
// the subscription's own handler. Events published after it returns are
// never handed to the handler.
func (s *Subscription) Unsubscribe() {
	if s == nil {
		return
	}
	s.once.Do(func() {
		s.closed.Store(true)
		s.cancel()
		if s.bus != nil {
			s.bus.forget(s)
		}
	})
}
