package presence

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/nfrund/roomchat/internal/channel"
	"github.com/nfrund/roomchat/internal/domain"
	"github.com/nfrund/roomchat/internal/pubsub"
	"github.com/nfrund/roomchat/internal/topicmgr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockBroadcaster implements channel.Broadcaster for testing
type mockBroadcaster struct {
	mu     sync.Mutex
	events []domain.Event
	err    error
}

func (m *mockBroadcaster) Publish(_ context.Context, _ string, ev domain.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.events = append(m.events, ev)
	return nil
}

func (m *mockBroadcaster) Subscribe(context.Context, string, channel.Handler) (*channel.Subscription, error) {
	return nil, errors.New("not supported")
}

func (m *mockBroadcaster) getEvents() []domain.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Event, len(m.events))
	copy(out, m.events)
	return out
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestTracker(t *testing.T, opts ...Option) (*Tracker, *mockBroadcaster) {
	t.Helper()
	bus := &mockBroadcaster{}
	opts = append([]Option{WithSweepInterval(time.Hour)}, opts...)
	tr := NewTracker(bus, opts...)
	t.Cleanup(tr.Shutdown)
	return tr, bus
}

func TestTracker_JoinIsIdempotentOnLogicalSet(t *testing.T) {
	tr, bus := newTestTracker(t)
	ctx := context.Background()

	require.NoError(t, tr.Join(ctx, "general", "alice", "c1"))
	require.NoError(t, tr.Join(ctx, "general", "alice", "c1"))

	snap := tr.Snapshot("general")
	assert.Equal(t, []string{"alice"}, snap.ParticipantIDs)
	assert.Len(t, tr.Entries("general"), 1)

	// Every join re-broadcasts.
	events := bus.getEvents()
	require.Len(t, events, 2)
	assert.Equal(t, domain.KindPresence, events[1].Kind)
	assert.Equal(t, []string{"alice"}, events[1].ParticipantIDs)
}

func TestTracker_MultipleTabsCollapse(t *testing.T) {
	tr, _ := newTestTracker(t)
	ctx := context.Background()

	require.NoError(t, tr.Join(ctx, "general", "alice", "tab1"))
	require.NoError(t, tr.Join(ctx, "general", "alice", "tab2"))
	require.NoError(t, tr.Join(ctx, "general", "bob", "tab1"))

	snap := tr.Snapshot("general")
	assert.Equal(t, []string{"alice", "bob"}, snap.ParticipantIDs)
	assert.Equal(t, 2, snap.Count())

	require.NoError(t, tr.Leave(ctx, "general", "alice", "tab1"))
	assert.True(t, tr.Snapshot("general").Contains("alice"))

	require.NoError(t, tr.Leave(ctx, "general", "alice", "tab2"))
	assert.False(t, tr.Snapshot("general").Contains("alice"))
}

func TestTracker_LeaveIsIdempotent(t *testing.T) {
	tr, bus := newTestTracker(t)
	ctx := context.Background()

	require.NoError(t, tr.Leave(ctx, "general", "ghost", "c1"))
	assert.Empty(t, bus.getEvents())

	require.NoError(t, tr.Join(ctx, "general", "alice", "c1"))
	require.NoError(t, tr.Leave(ctx, "general", "alice", "c1"))
	require.NoError(t, tr.Leave(ctx, "general", "alice", "c1"))

	assert.Len(t, bus.getEvents(), 2)
	assert.Empty(t, tr.Snapshot("general").ParticipantIDs)
}

func TestTracker_SequenceStrictlyIncreases(t *testing.T) {
	tr, bus := newTestTracker(t)
	ctx := context.Background()

	require.NoError(t, tr.Join(ctx, "a", "alice", "c1"))
	require.NoError(t, tr.Join(ctx, "b", "bob", "c1"))
	require.NoError(t, tr.Leave(ctx, "a", "alice", "c1"))
	require.NoError(t, tr.Join(ctx, "a", "carol", "c1"))

	var last uint64
	for _, ev := range bus.getEvents() {
		assert.Greater(t, ev.Sequence, last)
		last = ev.Sequence
	}
	assert.Equal(t, last, tr.Snapshot("a").Sequence)
}

func TestTracker_RoomsAreIndependent(t *testing.T) {
	tr, _ := newTestTracker(t)
	ctx := context.Background()

	require.NoError(t, tr.Join(ctx, "a", "alice", "c1"))
	require.NoError(t, tr.Join(ctx, "b", "bob", "c1"))

	assert.Equal(t, []string{"alice"}, tr.Snapshot("a").ParticipantIDs)
	assert.Equal(t, []string{"bob"}, tr.Snapshot("b").ParticipantIDs)
	assert.Empty(t, tr.Snapshot("c").ParticipantIDs)
}

func TestTracker_Validation(t *testing.T) {
	tr, _ := newTestTracker(t)
	err := tr.Join(context.Background(), "", "alice", "c1")
	assert.ErrorIs(t, err, domain.ErrValidation)
	err = tr.Leave(context.Background(), "general", "", "c1")
	assert.ErrorIs(t, err, domain.ErrValidation)
}

// An abrupt disconnect never calls Leave; the sweep must notice.
func TestTracker_StaleSweepRemovesSilentConnection(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	tr, bus := newTestTracker(t, WithClock(clock.Now), WithStaleThreshold(30*time.Second))
	ctx := context.Background()

	require.NoError(t, tr.Join(ctx, "general", "p1", "c1"))
	require.NoError(t, tr.Join(ctx, "general", "p2", "c1"))

	clock.Advance(20 * time.Second)
	require.NoError(t, tr.Touch("general", "p2", "c1"))
	clock.Advance(20 * time.Second)

	assert.Equal(t, 1, tr.SweepStale())
	assert.Equal(t, []string{"p2"}, tr.Snapshot("general").ParticipantIDs)

	events := bus.getEvents()
	assert.Equal(t, []string{"p2"}, events[len(events)-1].ParticipantIDs)

	err := tr.Touch("general", "p1", "c1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Zero(t, tr.SweepStale())
}

func TestTracker_SweeperRunsOnTicker(t *testing.T) {
	bus := &mockBroadcaster{}
	tr := NewTracker(bus, WithStaleThreshold(20*time.Millisecond), WithSweepInterval(10*time.Millisecond))
	defer tr.Shutdown()

	require.NoError(t, tr.Join(context.Background(), "general", "p1", "c1"))

	require.Eventually(t, func() bool {
		return len(tr.Snapshot("general").ParticipantIDs) == 0
	}, time.Second, 10*time.Millisecond)
}

func TestTracker_OfflineDebounce(t *testing.T) {
	tr, bus := newTestTracker(t, WithOfflineDebounce(50*time.Millisecond))
	ctx := context.Background()

	require.NoError(t, tr.Join(ctx, "general", "alice", "c1"))
	require.NoError(t, tr.Leave(ctx, "general", "alice", "c1"))

	// Still online during the debounce window, no snapshot yet.
	assert.True(t, tr.Snapshot("general").Contains("alice"))
	assert.Len(t, bus.getEvents(), 1)

	require.Eventually(t, func() bool {
		return len(bus.getEvents()) == 2
	}, time.Second, 10*time.Millisecond)
	assert.False(t, tr.Snapshot("general").Contains("alice"))
	assert.Empty(t, bus.getEvents()[1].ParticipantIDs)
}

func TestTracker_ReconnectDuringDebounce(t *testing.T) {
	tr, _ := newTestTracker(t, WithOfflineDebounce(50*time.Millisecond))
	ctx := context.Background()

	require.NoError(t, tr.Join(ctx, "general", "alice", "c1"))
	require.NoError(t, tr.Leave(ctx, "general", "alice", "c1"))
	require.NoError(t, tr.Join(ctx, "general", "alice", "c2"))

	time.Sleep(100 * time.Millisecond)
	assert.True(t, tr.Snapshot("general").Contains("alice"))
}

func TestTracker_PublishFailureKeepsState(t *testing.T) {
	tr, bus := newTestTracker(t)
	bus.err = errors.New("bus down")

	require.NoError(t, tr.Join(context.Background(), "general", "alice", "c1"))
	assert.True(t, tr.Snapshot("general").Contains("alice"))
}

// After a burst of joins and leaves every subscriber that keeps the highest
// sequence ends with the tracker's own set.
func TestTracker_SubscribersConverge(t *testing.T) {
	bridge := pubsub.NewWatermillBridge()
	defer bridge.Close()
	bus := channel.New(bridge, channel.WithNamespace(Namespace), channel.WithTopicManager(topicmgr.NewManager()))
	defer bus.Close()

	tr := NewTracker(bus, WithSweepInterval(time.Hour))
	defer tr.Shutdown()
	ctx := context.Background()

	type view struct {
		mu  sync.Mutex
		seq uint64
		ids []string
	}
	views := make([]*view, 3)
	for i := range views {
		v := &view{}
		views[i] = v
		_, err := tr.Subscribe(ctx, "general", func(_ context.Context, snap Snapshot) {
			v.mu.Lock()
			defer v.mu.Unlock()
			if snap.Sequence > v.seq {
				v.seq = snap.Sequence
				v.ids = snap.ParticipantIDs
			}
		})
		require.NoError(t, err)
	}

	var wg sync.WaitGroup
	for p := 0; p < 5; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			id := fmt.Sprintf("p%d", p)
			for i := 0; i < 10; i++ {
				_ = tr.Join(ctx, "general", id, "c1")
				if i%3 != 0 {
					_ = tr.Leave(ctx, "general", id, "c1")
				}
			}
		}(p)
	}
	wg.Wait()

	want := tr.Snapshot("general")
	for _, v := range views {
		v.mu.Lock()
		assert.Equal(t, want.Sequence, v.seq)
		assert.Equal(t, want.ParticipantIDs, v.ids)
		v.mu.Unlock()
	}
}
