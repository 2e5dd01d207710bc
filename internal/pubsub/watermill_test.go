package pubsub

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatermillBridge_DeliversInPublishOrder(t *testing.T) {
	bridge := NewWatermillBridge()
	defer bridge.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var got []string
	require.NoError(t, bridge.Subscribe(ctx, "room.a.events", func(_ context.Context, msg Message) error {
		mu.Lock()
		got = append(got, string(msg.Payload))
		mu.Unlock()
		return nil
	}))

	var want []string
	for i := 0; i < 50; i++ {
		p := fmt.Sprintf("m%d", i)
		want = append(want, p)
		require.NoError(t, bridge.Publish(ctx, Message{Topic: "room.a.events", Payload: []byte(p)}))
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, want, got)
}

func TestWatermillBridge_MetadataRoundTrip(t *testing.T) {
	bridge := NewWatermillBridge()
	defer bridge.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	received := make(chan Message, 1)
	require.NoError(t, bridge.Subscribe(ctx, "room.a.events", func(_ context.Context, msg Message) error {
		received <- msg
		return nil
	}))

	require.NoError(t, bridge.Publish(ctx, Message{
		Topic:    "room.a.events",
		UserID:   "alice",
		Payload:  []byte("hi"),
		Metadata: map[string]string{MetaKeySeq: "7"},
	}))

	msg := <-received
	assert.Equal(t, "room.a.events", msg.Topic)
	assert.Equal(t, "alice", msg.UserID)
	assert.Equal(t, "7", msg.Metadata[MetaKeySeq])
}

func TestWatermillBridge_HandlerErrorDoesNotBlock(t *testing.T) {
	bridge := NewWatermillBridge()
	defer bridge.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	calls := 0
	var mu sync.Mutex
	require.NoError(t, bridge.Subscribe(ctx, "room.a.events", func(context.Context, Message) error {
		mu.Lock()
		calls++
		mu.Unlock()
		return errors.New("nope")
	}))

	done := make(chan struct{})
	go func() {
		_ = bridge.Publish(ctx, Message{Topic: "room.a.events", Payload: []byte("1")})
		_ = bridge.Publish(ctx, Message{Topic: "room.a.events", Payload: []byte("2")})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on failing handler")
	}
	mu.Lock()
	assert.Equal(t, 2, calls)
	mu.Unlock()
}

func TestWatermillBridge_CancelEndsSubscription(t *testing.T) {
	bridge := NewWatermillBridge()
	defer bridge.Close()

	subCtx, cancelSub := context.WithCancel(context.Background())

	var mu sync.Mutex
	count := 0
	require.NoError(t, bridge.Subscribe(subCtx, "room.a.events", func(context.Context, Message) error {
		mu.Lock()
		count++
		mu.Unlock()
		return nil
	}))

	ctx := context.Background()
	require.NoError(t, bridge.Publish(ctx, Message{Topic: "room.a.events", Payload: []byte("1")}))
	cancelSub()

	require.NoError(t, bridge.Publish(ctx, Message{Topic: "room.a.events", Payload: []byte("2")}))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, count)
}

func TestWatermillBridge_NotRetroactive(t *testing.T) {
	bridge := NewWatermillBridge()
	defer bridge.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, bridge.Publish(ctx, Message{Topic: "room.a.events", Payload: []byte("early")}))

	received := make(chan Message, 2)
	require.NoError(t, bridge.Subscribe(ctx, "room.a.events", func(_ context.Context, msg Message) error {
		received <- msg
		return nil
	}))
	require.NoError(t, bridge.Publish(ctx, Message{Topic: "room.a.events", Payload: []byte("late")}))

	msg := <-received
	assert.Equal(t, "late", string(msg.Payload))
	assert.Len(t, received, 0)
}
