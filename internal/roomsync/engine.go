// Package roomsync reconciles the message store, the room channel and the
// presence tracker into one consistent view per client session.
//
// Each Engine runs a single goroutine that owns its RoomView. Local actions
// and inbound events are closures on an ordered queue; store calls and
// subscriptions run off that goroutine and post their completions back,
// tagged with the generation of the room entry that started them.
package roomsync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/nfrund/roomchat/internal/channel"
	"github.com/nfrund/roomchat/internal/domain"
	"github.com/nfrund/roomchat/internal/metrics"
	"github.com/nfrund/roomchat/internal/presence"
	"github.com/nfrund/roomchat/internal/retry"
	"github.com/nfrund/roomchat/internal/store"
)

const (
	DefaultHeartbeatInterval    = 30 * time.Second
	DefaultMaxHeartbeatFailures = 3

	leaveTimeout = 5 * time.Second
)

var (
	// ErrEngineClosed is returned by calls made after Close.
	ErrEngineClosed = errors.New("sync engine closed")
	// ErrSuperseded is returned to an Enter whose load was overtaken by a
	// later Enter, Leave or resync.
	ErrSuperseded = errors.New("room entry superseded")
)

// Presence is the part of the presence tracker an engine uses.
type Presence interface {
	Join(ctx context.Context, room, participantID, connectionID string) error
	Leave(ctx context.Context, room, participantID, connectionID string) error
	Touch(room, participantID, connectionID string) error
	Snapshot(room string) presence.Snapshot
	Subscribe(ctx context.Context, room string, handler presence.Handler) (*channel.Subscription, error)
}

var _ Presence = (*presence.Tracker)(nil)

// Option configures an Engine.
type Option func(*Engine)

// WithRetryer sets the backoff used for subscriptions and the history load.
func WithRetryer(r retry.Retryer) Option {
	return func(e *Engine) { e.retryer = r }
}

// WithHeartbeatInterval sets how often a live engine refreshes its presence
// entry. Zero disables the heartbeat.
func WithHeartbeatInterval(d time.Duration) Option {
	return func(e *Engine) { e.heartbeatInterval = d }
}

// WithMaxHeartbeatFailures sets how many consecutive failed heartbeats
// trigger a resync.
func WithMaxHeartbeatFailures(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxHeartbeatFailures = n
		}
	}
}

// WithOnUpdate registers the callback that receives view changes.
func WithOnUpdate(fn func(Update)) Option {
	return func(e *Engine) { e.onUpdate = fn }
}

// WithConnectionID overrides the generated connection id.
func WithConnectionID(id string) Option {
	return func(e *Engine) {
		if id != "" {
			e.connID = id
		}
	}
}

// Engine is the per-session synchronisation state machine.
type Engine struct {
	session  domain.Session
	connID   string
	store    store.MessageStore
	channel  channel.Broadcaster
	presence Presence
	mediator *Mediator
	retryer  retry.Retryer
	onUpdate func(Update)
	logger   *slog.Logger

	heartbeatInterval    time.Duration
	maxHeartbeatFailures int

	q             *queue
	done          chan struct{}
	stopHeartbeat chan struct{}
	closeOnce     sync.Once
	loopWG        sync.WaitGroup
	heartbeatWG   sync.WaitGroup
	loadWG        sync.WaitGroup
	leaveWG       sync.WaitGroup
	stateMirror   atomic.Int32
	closing       atomic.Bool

	// Owned by the loop goroutine.
	state             State
	gen               uint64
	room              string
	view              *RoomView
	buffered          []domain.Event
	cancelLoad        context.CancelFunc
	msgSub            *channel.Subscription
	presSub           *channel.Subscription
	presenceConn      string
	joined            bool
	heartbeatFailures int
}

// NewEngine starts an engine for session. It stays Disconnected until Enter.
func NewEngine(session domain.Session, s store.MessageStore, ch channel.Broadcaster, p Presence, opts ...Option) (*Engine, error) {
	if !session.Valid() {
		return nil, domain.ErrNoSession
	}

	e := &Engine{
		session:              session,
		connID:               uuid.NewString(),
		store:                s,
		channel:              ch,
		presence:             p,
		mediator:             NewMediator(s, ch),
		retryer:              retry.NewExponentialBackoff(),
		heartbeatInterval:    DefaultHeartbeatInterval,
		maxHeartbeatFailures: DefaultMaxHeartbeatFailures,
		q:                    newQueue(),
		done:                 make(chan struct{}),
		stopHeartbeat:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = slog.Default().With("component", "roomsync",
		"participant_id", session.ParticipantID, "connection_id", e.connID)

	e.loopWG.Add(1)
	go e.loop()

	if e.heartbeatInterval > 0 {
		e.heartbeatWG.Add(1)
		go e.runHeartbeat()
	}

	metrics.ActiveSessions.Inc()
	return e, nil
}

// ConnectionID identifies this engine's connection to the presence tracker.
func (e *Engine) ConnectionID() string { return e.connID }

// Session returns the participant the engine acts for.
func (e *Engine) Session() domain.Session { return e.session }

// State returns the current lifecycle state.
func (e *Engine) State() State { return State(e.stateMirror.Load()) }

// Enter loads room and blocks until the engine is Live or the entry failed.
// A previous room is left first. Subscription and history failures are
// retried; once retries are exhausted the error wraps domain.ErrRoomUnavailable.
func (e *Engine) Enter(ctx context.Context, room string) error {
	if strings.TrimSpace(room) == "" {
		return fmt.Errorf("%w: room name is required", domain.ErrValidation)
	}

	result := make(chan error, 1)
	if err := e.call(ctx, func() { e.startLoad(room, result) }); err != nil {
		return err
	}
	return e.await(ctx, result)
}

// Resync discards the view and reloads the current room, as after a
// reconnect.
func (e *Engine) Resync(ctx context.Context) error {
	result := make(chan error, 1)
	var entered bool
	if err := e.call(ctx, func() {
		if e.room == "" {
			return
		}
		entered = true
		e.resync("requested", result)
	}); err != nil {
		return err
	}
	if !entered {
		return fmt.Errorf("no room entered: %w", domain.ErrNotLive)
	}
	return e.await(ctx, result)
}

// Leave unsubscribes from the room, leaves presence and moves to Disconnected.
func (e *Engine) Leave(ctx context.Context) error {
	return e.call(ctx, func() {
		e.teardown()
		e.room = ""
		e.setState(StateDisconnected, nil)
	})
}

// Close leaves the room and stops the engine. It is safe to call more than once.
func (e *Engine) Close() error {
	var err error
	e.closeOnce.Do(func() {
		e.closing.Store(true)
		ctx, cancel := context.WithTimeout(context.Background(), leaveTimeout)
		defer cancel()
		err = e.Leave(ctx)

		close(e.stopHeartbeat)
		e.heartbeatWG.Wait()
		e.loadWG.Wait()

		close(e.done)
		e.loopWG.Wait()
		// The loop has exited; run what it left behind so late loads release
		// their subscriptions.
		for _, fn := range e.q.drain() {
			fn()
		}
		e.teardown()
		e.leaveWG.Wait()

		metrics.ActiveSessions.Dec()
	})
	return err
}

// Publish writes text to the current room and broadcasts it. The view picks
// the message up from the broadcast echo, like any other participant's.
func (e *Engine) Publish(ctx context.Context, text string) (*domain.Message, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: message body is empty", domain.ErrValidation)
	}

	room, err := e.liveRoom(ctx)
	if err != nil {
		return nil, err
	}

	msg, err := e.mediator.Publish(ctx, room, e.session, text)
	if errors.Is(err, ErrBroadcastFailed) {
		e.q.push(func() { e.resyncRoom(room, "broadcast_failed") })
	}
	return msg, err
}

// Delete removes one of the session's own messages. A message in the view
// written by someone else is refused without calling the store.
func (e *Engine) Delete(ctx context.Context, id string) error {
	var (
		room      string
		live      bool
		forbidden bool
	)
	if err := e.call(ctx, func() {
		room = e.room
		live = e.state == StateLive
		if e.view != nil {
			if m, ok := e.view.Get(id); ok && m.AuthorID != e.session.ParticipantID {
				forbidden = true
			}
		}
	}); err != nil {
		return err
	}
	if !live {
		return domain.ErrNotLive
	}
	if forbidden {
		return fmt.Errorf("message %s: %w", id, domain.ErrForbidden)
	}

	err := e.mediator.Delete(ctx, room, id, e.session.ParticipantID)
	if errors.Is(err, ErrBroadcastFailed) {
		e.q.push(func() { e.resyncRoom(room, "broadcast_failed") })
	}
	return err
}

// Snapshot returns a copy of the current view.
func (e *Engine) Snapshot(ctx context.Context) (ViewSnapshot, error) {
	var snap ViewSnapshot
	err := e.call(ctx, func() {
		if e.view != nil {
			snap = e.view.Snapshot(e.state)
			return
		}
		snap = ViewSnapshot{
			Room:           e.room,
			State:          e.state,
			Messages:       []domain.Message{},
			ParticipantIDs: []string{},
		}
	})
	return snap, err
}

func (e *Engine) liveRoom(ctx context.Context) (string, error) {
	var (
		room string
		live bool
	)
	if err := e.call(ctx, func() {
		room = e.room
		live = e.state == StateLive
	}); err != nil {
		return "", err
	}
	if !live {
		return "", domain.ErrNotLive
	}
	return room, nil
}

// call runs fn on the loop and waits for it.
func (e *Engine) call(ctx context.Context, fn func()) error {
	ran := make(chan struct{})
	e.q.push(func() {
		fn()
		close(ran)
	})
	select {
	case <-ran:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-e.done:
		return ErrEngineClosed
	}
}

func (e *Engine) await(ctx context.Context, result <-chan error) error {
	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-e.done:
		return ErrEngineClosed
	}
}

func (e *Engine) loop() {
	defer e.loopWG.Done()
	for {
		select {
		case <-e.done:
			return
		case <-e.q.signal:
			for _, fn := range e.q.drain() {
				fn()
			}
		}
	}
}

func (e *Engine) runHeartbeat() {
	defer e.heartbeatWG.Done()
	ticker := time.NewTicker(e.heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-e.stopHeartbeat:
			return
		case <-ticker.C:
			e.q.push(e.heartbeat)
		}
	}
}

func (e *Engine) setState(s State, err error) {
	if e.state == s && err == nil {
		return
	}
	e.state = s
	e.stateMirror.Store(int32(s))
	e.logger.Debug("Room state changed", "room", e.room, "state", s.String(), "error", err)
	e.emit(Update{Kind: UpdateState, Room: e.room, State: s, Err: err})
}

func (e *Engine) emit(u Update) {
	if e.onUpdate != nil {
		e.onUpdate(u)
	}
}

// teardown ends the current room entry. Bumping the generation makes any
// in-flight load stale.
func (e *Engine) teardown() {
	e.gen++
	if e.cancelLoad != nil {
		e.cancelLoad()
		e.cancelLoad = nil
	}
	if e.msgSub != nil {
		e.msgSub.Unsubscribe()
		e.msgSub = nil
	}
	if e.presSub != nil {
		e.presSub.Unsubscribe()
		e.presSub = nil
	}
	if e.joined {
		e.leaveAsync(e.room, e.presenceConn)
		e.joined = false
	}
	e.presenceConn = ""
	e.view = nil
	e.buffered = nil
	e.heartbeatFailures = 0
}

func (e *Engine) startLoad(room string, result chan<- error) {
	if e.closing.Load() {
		reply(result, ErrEngineClosed)
		return
	}
	e.teardown()
	gen := e.gen
	e.room = room
	e.setState(StateLoading, nil)

	ctx, cancel := context.WithCancel(context.Background())
	e.cancelLoad = cancel

	e.loadWG.Add(1)
	go func() {
		defer e.loadWG.Done()
		res := e.load(ctx, gen, room)
		e.q.push(func() { e.finishLoad(gen, res, result) })
	}()
}

func (e *Engine) resync(reason string, result chan<- error) {
	metrics.Resyncs.WithLabelValues(reason).Inc()
	e.logger.Info("Resynchronising room", "room", e.room, "reason", reason)
	room := e.room
	e.teardown()
	e.setState(StateDisconnected, nil)
	e.startLoad(room, result)
}

// resyncRoom resyncs only if the engine is still in room.
func (e *Engine) resyncRoom(room, reason string) {
	if e.room == room && e.state == StateLive {
		e.resync(reason, nil)
	}
}

type loadResult struct {
	room     string
	msgSub   *channel.Subscription
	presSub  *channel.Subscription
	conn     string
	joined   bool
	history  []domain.Message
	snapshot presence.Snapshot
	err      error
}

// load runs off the loop. Subscriptions come first so that nothing
// published while history loads is missed; those events are buffered by
// the loop until the load completes.
func (e *Engine) load(ctx context.Context, gen uint64, room string) loadResult {
	res := loadResult{room: room, conn: fmt.Sprintf("%s/%d", e.connID, gen)}

	err := e.retryer.Retry(ctx, func() error {
		sub, err := e.channel.Subscribe(ctx, room, func(_ context.Context, ev domain.Event) {
			e.q.push(func() { e.onEvent(gen, ev) })
		})
		if err != nil {
			return err
		}
		res.msgSub = sub
		return nil
	})
	if err != nil {
		res.err = fmt.Errorf("%w: subscribe to messages: %w", domain.ErrRoomUnavailable, err)
		return res
	}

	err = e.retryer.Retry(ctx, func() error {
		sub, err := e.presence.Subscribe(ctx, room, func(_ context.Context, snap presence.Snapshot) {
			ev := domain.PresenceEvent(snap.Room, snap.ParticipantIDs, snap.Sequence)
			e.q.push(func() { e.onEvent(gen, ev) })
		})
		if err != nil {
			return err
		}
		res.presSub = sub
		return nil
	})
	if err != nil {
		res.err = fmt.Errorf("%w: subscribe to presence: %w", domain.ErrRoomUnavailable, err)
		return res
	}

	err = e.retryer.Retry(ctx, func() error {
		history, err := e.store.ListByRoom(ctx, room)
		if err != nil {
			return err
		}
		res.history = history
		return nil
	})
	if err != nil {
		res.err = fmt.Errorf("%w: load history: %w", domain.ErrRoomUnavailable, err)
		return res
	}

	if err := e.presence.Join(ctx, room, e.session.ParticipantID, res.conn); err != nil {
		res.err = fmt.Errorf("%w: join presence: %w", domain.ErrRoomUnavailable, err)
		return res
	}
	res.joined = true
	res.snapshot = e.presence.Snapshot(room)
	return res
}

func (e *Engine) finishLoad(gen uint64, res loadResult, result chan<- error) {
	if gen != e.gen || e.state != StateLoading {
		e.release(res)
		reply(result, ErrSuperseded)
		return
	}
	if e.cancelLoad != nil {
		e.cancelLoad()
		e.cancelLoad = nil
	}

	if res.err != nil {
		e.release(res)
		e.buffered = nil
		e.logger.Warn("Room load failed", "room", e.room, "error", res.err)
		e.setState(StateDisconnected, res.err)
		reply(result, res.err)
		return
	}

	e.msgSub, e.presSub = res.msgSub, res.presSub
	e.presenceConn, e.joined = res.conn, res.joined

	view := NewRoomView(e.room, res.history)
	view.ApplyPresence(res.snapshot.ParticipantIDs, res.snapshot.Sequence)
	for _, ev := range e.buffered {
		view.Apply(ev)
	}
	e.buffered = nil
	e.view = view
	e.heartbeatFailures = 0

	snap := view.Snapshot(StateLive)
	e.emit(Update{Kind: UpdateReset, Room: e.room, State: StateLive, View: &snap})
	e.setState(StateLive, nil)
	e.logger.Debug("Room live", "room", e.room, "messages", view.Len(), "online", len(snap.ParticipantIDs))
	reply(result, nil)
}

// release undoes whatever a load acquired.
func (e *Engine) release(res loadResult) {
	if res.msgSub != nil {
		res.msgSub.Unsubscribe()
	}
	if res.presSub != nil {
		res.presSub.Unsubscribe()
	}
	if res.joined {
		e.leaveAsync(res.room, res.conn)
	}
}

func (e *Engine) onEvent(gen uint64, ev domain.Event) {
	if gen != e.gen {
		return
	}
	switch e.state {
	case StateLoading:
		e.buffered = append(e.buffered, ev)
	case StateLive:
		if e.view.Apply(ev) {
			e.emit(Update{Kind: UpdateEvent, Room: e.room, State: StateLive, Event: &ev})
		}
	}
}

func (e *Engine) heartbeat() {
	switch e.state {
	case StateLive:
	case StateDisconnected:
		if e.room != "" && e.cancelLoad == nil {
			e.resync("recover", nil)
		}
		return
	default:
		return
	}

	if !e.msgSub.Active() || !e.presSub.Active() {
		e.resync("subscription_lost", nil)
		return
	}

	err := e.presence.Touch(e.room, e.session.ParticipantID, e.presenceConn)
	switch {
	case err == nil:
		e.heartbeatFailures = 0
	case errors.Is(err, domain.ErrNotFound):
		e.resync("presence_expired", nil)
	default:
		e.heartbeatFailures++
		e.logger.Warn("Presence heartbeat failed", "room", e.room, "failures", e.heartbeatFailures, "error", err)
		if e.heartbeatFailures >= e.maxHeartbeatFailures {
			e.resync("heartbeat_failed", nil)
		}
	}
}

func (e *Engine) leaveAsync(room, conn string) {
	if room == "" || conn == "" {
		return
	}
	e.leaveWG.Add(1)
	go func() {
		defer e.leaveWG.Done()
		ctx, cancel := context.WithTimeout(context.Background(), leaveTimeout)
		defer cancel()
		if err := e.presence.Leave(ctx, room, e.session.ParticipantID, conn); err != nil {
			e.logger.Warn("Presence leave failed", "room", room, "error", err)
		}
	}()
}

func reply(result chan<- error, err error) {
	if result != nil {
		result <- err
	}
}
