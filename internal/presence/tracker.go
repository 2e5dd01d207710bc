// Package presence tracks which participants are connected to each room and
// broadcasts a full, sequence-numbered snapshot on every membership change.
package presence

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/nfrund/roomchat/internal/channel"
	"github.com/nfrund/roomchat/internal/domain"
	"github.com/nfrund/roomchat/internal/metrics"
)

// Namespace is the channel namespace presence snapshots are published under.
const Namespace = "presence"

const (
	// DefaultStaleThreshold is how long a connection may go without a Touch
	// before the sweep removes it.
	DefaultStaleThreshold = 90 * time.Second

	// DefaultSweepInterval is how often stale connections are looked for.
	DefaultSweepInterval = 15 * time.Second
)

// Entry is one connection of a participant in a room. Two browser tabs are
// two entries for the same participant.
type Entry struct {
	Room          string    `json:"room"`
	ParticipantID string    `json:"participantId"`
	ConnectionID  string    `json:"connectionId"`
	JoinedAt      time.Time `json:"joinedAt"`
	LastSeen      time.Time `json:"lastSeen"`
}

// Snapshot is the logical online set of a room.
type Snapshot struct {
	Room           string   `json:"room"`
	ParticipantIDs []string `json:"participantIds"`
	Sequence       uint64   `json:"sequence"`
}

// Count returns the number of distinct online participants.
func (s Snapshot) Count() int { return len(s.ParticipantIDs) }

// Contains reports whether participantID is online.
func (s Snapshot) Contains(participantID string) bool {
	i := sort.SearchStrings(s.ParticipantIDs, participantID)
	return i < len(s.ParticipantIDs) && s.ParticipantIDs[i] == participantID
}

// Handler receives snapshots for a room.
type Handler func(ctx context.Context, snap Snapshot)

type participantKey struct {
	room          string
	participantID string
}

// Tracker is the presence registry shared by all sessions.
type Tracker struct {
	mu    sync.Mutex
	rooms map[string]map[string]map[string]*Entry // room -> participant -> connection -> entry
	seq   uint64

	bus    channel.Broadcaster
	logger *slog.Logger
	now    func() time.Time

	staleThreshold  time.Duration
	sweepInterval   time.Duration
	offlineDebounce time.Duration
	pendingOffline  map[participantKey]*time.Timer

	stop     chan struct{}
	stopOnce sync.Once
}

// Option is a function that configures a Tracker.
type Option func(*Tracker)

// WithStaleThreshold sets how long a connection may stay silent before it is swept.
func WithStaleThreshold(d time.Duration) Option {
	return func(t *Tracker) {
		if d > 0 {
			t.staleThreshold = d
		}
	}
}

// WithSweepInterval sets how often stale connections are swept.
func WithSweepInterval(d time.Duration) Option {
	return func(t *Tracker) {
		if d > 0 {
			t.sweepInterval = d
		}
	}
}

// WithOfflineDebounce delays removing a participant whose last connection
// left, so a page reload does not flap the online list. Zero (the default)
// removes them immediately.
func WithOfflineDebounce(d time.Duration) Option {
	return func(t *Tracker) { t.offlineDebounce = d }
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// NewTracker creates a tracker publishing snapshots on bus and starts its stale sweep.
// bus should be a channel.Bus created with channel.WithNamespace(presence.Namespace).
func NewTracker(bus channel.Broadcaster, opts ...Option) *Tracker {
	t := &Tracker{
		rooms:          make(map[string]map[string]map[string]*Entry),
		bus:            bus,
		logger:         slog.Default().With("service", "presence"),
		now:            func() time.Time { return time.Now().UTC() },
		staleThreshold: DefaultStaleThreshold,
		sweepInterval:  DefaultSweepInterval,
		pendingOffline: make(map[participantKey]*time.Timer),
		stop:           make(chan struct{}),
	}
	for _, opt := range opts {
		opt(t)
	}

	go t.runSweeper()
	return t
}

func validateKey(room, participantID, connectionID string) error {
	if strings.TrimSpace(room) == "" || participantID == "" || connectionID == "" {
		return fmt.Errorf("%w: room, participant and connection are required", domain.ErrValidation)
	}
	return nil
}

// Join records a connection of participantID in room. Joining again with
// the same connection only refreshes it. Every Join broadcasts a snapshot.
func (t *Tracker) Join(ctx context.Context, room, participantID, connectionID string) error {
	if err := validateKey(room, participantID, connectionID); err != nil {
		return err
	}

	t.mu.Lock()
	key := participantKey{room, participantID}
	if timer, ok := t.pendingOffline[key]; ok {
		timer.Stop()
		delete(t.pendingOffline, key)
		t.logger.Debug("Cancelled offline debounce due to reconnection", "room", room, "participant_id", participantID)
	}

	participants := t.rooms[room]
	if participants == nil {
		participants = make(map[string]map[string]*Entry)
		t.rooms[room] = participants
	}
	conns := participants[participantID]
	if conns == nil {
		conns = make(map[string]*Entry)
		participants[participantID] = conns
		t.logger.Info("Participant came online", "room", room, "participant_id", participantID, "connection_id", connectionID)
	}

	now := t.now()
	if e, ok := conns[connectionID]; ok {
		e.LastSeen = now
	} else {
		conns[connectionID] = &Entry{
			Room:          room,
			ParticipantID: participantID,
			ConnectionID:  connectionID,
			JoinedAt:      now,
			LastSeen:      now,
		}
	}

	snap := t.nextSnapshotLocked(room)
	t.mu.Unlock()

	t.publish(ctx, snap)
	return nil
}

// Leave removes one connection. Leaving with an unknown connection is a no-op.
func (t *Tracker) Leave(ctx context.Context, room, participantID, connectionID string) error {
	if err := validateKey(room, participantID, connectionID); err != nil {
		return err
	}

	t.mu.Lock()
	conns := t.rooms[room][participantID]
	if _, ok := conns[connectionID]; !ok {
		t.mu.Unlock()
		return nil
	}
	delete(conns, connectionID)

	if len(conns) == 0 && t.offlineDebounce > 0 {
		key := participantKey{room, participantID}
		if timer, ok := t.pendingOffline[key]; ok {
			timer.Stop()
		}
		t.pendingOffline[key] = time.AfterFunc(t.offlineDebounce, func() {
			t.expireOffline(key)
		})
		t.mu.Unlock()
		t.logger.Debug("Participant has no more connections, scheduling offline", "room", room,
			"participant_id", participantID, "debounce_delay", t.offlineDebounce)
		return nil
	}

	if len(conns) == 0 {
		t.removeParticipantLocked(room, participantID)
		t.logger.Info("Participant went offline", "room", room, "participant_id", participantID)
	}
	snap := t.nextSnapshotLocked(room)
	t.mu.Unlock()

	t.publish(ctx, snap)
	return nil
}

func (t *Tracker) expireOffline(key participantKey) {
	t.mu.Lock()
	if _, ok := t.pendingOffline[key]; !ok {
		t.mu.Unlock()
		return
	}
	delete(t.pendingOffline, key)

	if conns, ok := t.rooms[key.room][key.participantID]; !ok || len(conns) > 0 {
		t.mu.Unlock()
		return
	}
	t.removeParticipantLocked(key.room, key.participantID)
	snap := t.nextSnapshotLocked(key.room)
	t.mu.Unlock()

	t.logger.Info("Participant went offline after debounce period", "room", key.room, "participant_id", key.participantID)
	t.publish(context.Background(), snap)
}

// Touch refreshes a connection's last-seen time. It returns domain.ErrNotFound
// when the connection is not registered, e.g. after the sweep removed it.
func (t *Tracker) Touch(room, participantID, connectionID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.rooms[room][participantID][connectionID]
	if !ok {
		return fmt.Errorf("presence of %s in room %q: %w", participantID, room, domain.ErrNotFound)
	}
	e.LastSeen = t.now()
	return nil
}

// Snapshot returns the current online set of room with the sequence of the
// latest transition it reflects.
func (t *Tracker) Snapshot(room string) Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked(room)
}

// Entries returns copies of the connections registered in room.
func (t *Tracker) Entries(room string) []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()

	var out []Entry
	for _, conns := range t.rooms[room] {
		for _, e := range conns {
			out = append(out, *e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ParticipantID != out[j].ParticipantID {
			return out[i].ParticipantID < out[j].ParticipantID
		}
		return out[i].ConnectionID < out[j].ConnectionID
	})
	return out
}

// Subscribe delivers every snapshot published for room to handler.
func (t *Tracker) Subscribe(ctx context.Context, room string, handler Handler) (*channel.Subscription, error) {
	return t.bus.Subscribe(ctx, room, func(ctx context.Context, ev domain.Event) {
		if ev.Kind != domain.KindPresence {
			return
		}
		ids := ev.ParticipantIDs
		if ids == nil {
			ids = []string{}
		}
		handler(ctx, Snapshot{Room: ev.Room, ParticipantIDs: ids, Sequence: ev.Sequence})
	})
}

// Shutdown stops the stale sweep and pending offline timers.
func (t *Tracker) Shutdown() {
	t.stopOnce.Do(func() {
		close(t.stop)
		t.mu.Lock()
		for key, timer := range t.pendingOffline {
			timer.Stop()
			delete(t.pendingOffline, key)
		}
		t.mu.Unlock()
	})
}

func (t *Tracker) runSweeper() {
	ticker := time.NewTicker(t.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			t.SweepStale()
		case <-t.stop:
			return
		}
	}
}

// SweepStale removes connections whose last Touch is older than the stale
// threshold and broadcasts a snapshot for each affected room. It returns the
// number of connections removed.
func (t *Tracker) SweepStale() int {
	t.mu.Lock()
	cutoff := t.now().Add(-t.staleThreshold)
	removed := 0
	var snaps []Snapshot

	rooms := make([]string, 0, len(t.rooms))
	for room := range t.rooms {
		rooms = append(rooms, room)
	}
	sort.Strings(rooms)

	for _, room := range rooms {
		changed := false
		for participantID, conns := range t.rooms[room] {
			if len(conns) == 0 {
				continue // waiting for offline debounce
			}
			for connectionID, e := range conns {
				if e.LastSeen.Before(cutoff) {
					delete(conns, connectionID)
					removed++
					changed = true
				}
			}
			if len(conns) == 0 {
				t.removeParticipantLocked(room, participantID)
			}
		}
		if changed {
			snaps = append(snaps, t.nextSnapshotLocked(room))
		}
	}
	t.mu.Unlock()

	if removed == 0 {
		return 0
	}

	metrics.PresenceSweeps.Add(float64(removed))
	t.logger.Info("Cleaned up stale presences", "connections_removed", removed, "rooms", len(snaps))
	for _, snap := range snaps {
		t.publish(context.Background(), snap)
	}
	return removed
}

// removeParticipantLocked drops an emptied participant and, if it was the last, the room.
func (t *Tracker) removeParticipantLocked(room, participantID string) {
	delete(t.rooms[room], participantID)
	if len(t.rooms[room]) == 0 {
		delete(t.rooms, room)
	}
}

func (t *Tracker) nextSnapshotLocked(room string) Snapshot {
	t.seq++
	t.updateOnlineGaugeLocked()
	return t.snapshotLocked(room)
}

func (t *Tracker) snapshotLocked(room string) Snapshot {
	ids := make([]string, 0, len(t.rooms[room]))
	for participantID := range t.rooms[room] {
		ids = append(ids, participantID)
	}
	sort.Strings(ids)
	return Snapshot{Room: room, ParticipantIDs: ids, Sequence: t.seq}
}

func (t *Tracker) updateOnlineGaugeLocked() {
	seen := make(map[string]struct{})
	for _, participants := range t.rooms {
		for participantID := range participants {
			seen[participantID] = struct{}{}
		}
	}
	metrics.OnlineParticipants.Set(float64(len(seen)))
}

// publish runs without t.mu held so subscribers may call back into the tracker.
// Snapshots can reach the bus out of sequence order; receivers keep the highest.
func (t *Tracker) publish(ctx context.Context, snap Snapshot) {
	if err := t.bus.Publish(ctx, snap.Room, domain.PresenceEvent(snap.Room, snap.ParticipantIDs, snap.Sequence)); err != nil {
		t.logger.Error("Failed to publish presence snapshot", "room", snap.Room, "sequence", snap.Sequence, "error", err)
		return
	}
	t.logger.Debug("Published presence snapshot", "room", snap.Room, "count", snap.Count(), "sequence", snap.Sequence)
}
