package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/labstack/echo/v4"
	"github.com/nfrund/roomchat/internal/channel"
	"github.com/nfrund/roomchat/internal/domain"
	"github.com/nfrund/roomchat/internal/metrics"
	"github.com/nfrund/roomchat/internal/middleware"
	"github.com/nfrund/roomchat/internal/roomsync"
	"github.com/nfrund/roomchat/internal/store"
)

const (
	defaultSendBuffer = 256
	readLimit         = 64 << 10
	writeTimeout      = 10 * time.Second
	pingInterval      = 30 * time.Second
)

// SocketHandler upgrades requests to websocket sessions, each driven by its
// own sync engine.
type SocketHandler struct {
	store       store.MessageStore
	channel     channel.Broadcaster
	presence    roomsync.Presence
	defaultRoom string
	engineOpts  []roomsync.Option
	sendBuffer  int

	// OriginPatterns lists the cross-origin hosts allowed to open a
	// session. Same-host requests are always accepted.
	OriginPatterns []string
}

// NewSocketHandler creates a websocket handler. opts are applied to every
// engine it creates.
func NewSocketHandler(s store.MessageStore, ch channel.Broadcaster, p roomsync.Presence, defaultRoom string, opts ...roomsync.Option) *SocketHandler {
	return &SocketHandler{
		store:       s,
		channel:     ch,
		presence:    p,
		defaultRoom: defaultRoom,
		engineOpts:  opts,
		sendBuffer:  defaultSendBuffer,
	}
}

// Serve runs one websocket session until the client goes away.
func (h *SocketHandler) Serve(c echo.Context) error {
	sess, ok := middleware.SessionFrom(c)
	if !ok {
		return domain.ErrNoSession
	}
	room := strings.TrimSpace(c.Param("room"))
	if room == "" {
		room = h.defaultRoom
	}
	if room == "" {
		return fmt.Errorf("%w: room is required", domain.ErrValidation)
	}

	conn, err := websocket.Accept(c.Response(), c.Request(), &websocket.AcceptOptions{
		OriginPatterns: h.OriginPatterns,
	})
	if err != nil {
		// Accept has already written the failure response.
		middleware.FromContext(c.Request().Context()).Warn("Websocket upgrade failed", "error", err)
		return nil
	}
	conn.SetReadLimit(readLimit)

	sc := &socketClient{
		conn:   conn,
		room:   room,
		send:   make(chan []byte, h.sendBuffer),
		logger: middleware.FromContext(c.Request().Context()).With("room", room, "participant_id", sess.ParticipantID),
	}
	opts := append([]roomsync.Option{}, h.engineOpts...)
	opts = append(opts, roomsync.WithOnUpdate(sc.onUpdate))
	engine, err := roomsync.NewEngine(*sess, h.store, h.channel, h.presence, opts...)
	if err != nil {
		conn.Close(websocket.StatusInternalError, "session unavailable")
		return nil
	}
	sc.engine = engine

	sc.run(c.Request().Context(), *sess)
	return nil
}

// socketClient pumps frames between one websocket and its engine.
type socketClient struct {
	conn   *websocket.Conn
	engine *roomsync.Engine
	room   string
	send   chan []byte
	logger *slog.Logger

	overflowOnce sync.Once
	wg           sync.WaitGroup
}

func (sc *socketClient) run(parent context.Context, sess domain.Session) {
	ctx, cancel := context.WithCancel(parent)
	defer func() {
		cancel()
		sc.wg.Wait()
		if err := sc.engine.Close(); err != nil {
			sc.logger.Warn("Failed to leave room on disconnect", "error", err)
		}
		sc.conn.Close(websocket.StatusNormalClosure, "")
	}()

	sc.enqueue(domain.Frame{Kind: domain.FrameHello, Room: sc.room, Session: &sess})

	sc.wg.Add(2)
	go sc.writePump(ctx)
	go func() {
		defer sc.wg.Done()
		if err := sc.engine.Enter(ctx, sc.room); err != nil && ctx.Err() == nil {
			sc.sendError("", err)
		}
	}()

	sc.readPump(ctx)
}

// readPump is the connection's only reader. It returns when the client
// disconnects or the context ends.
func (sc *socketClient) readPump(ctx context.Context) {
	for {
		_, data, err := sc.conn.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway || ctx.Err() != nil {
				sc.logger.Debug("Websocket closed", "status", status)
			} else {
				sc.logger.Warn("Websocket read failed", "error", err)
			}
			return
		}

		var action domain.ClientAction
		if err := json.Unmarshal(data, &action); err != nil {
			sc.sendError("", fmt.Errorf("%w: malformed frame", domain.ErrValidation))
			continue
		}
		sc.handle(ctx, action)
	}
}

func (sc *socketClient) handle(ctx context.Context, action domain.ClientAction) {
	switch action.Action {
	case domain.ActionPublish:
		if _, err := sc.engine.Publish(ctx, action.Body); err != nil {
			sc.sendError(action.Ref, err)
		}
	case domain.ActionDelete:
		if err := sc.engine.Delete(ctx, action.MessageID); err != nil {
			sc.sendError(action.Ref, err)
		}
	case domain.ActionResync:
		// Blocks until Live, so keep reading meanwhile.
		sc.wg.Add(1)
		go func() {
			defer sc.wg.Done()
			if err := sc.engine.Resync(ctx); err != nil && ctx.Err() == nil {
				sc.sendError(action.Ref, err)
			}
		}()
	default:
		sc.sendError(action.Ref, fmt.Errorf("%w: unknown action %q", domain.ErrValidation, action.Action))
	}
}

// writePump is the connection's only writer.
func (sc *socketClient) writePump(ctx context.Context) {
	defer sc.wg.Done()
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case b := <-sc.send:
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := sc.conn.Write(wctx, websocket.MessageText, b)
			cancel()
			if err != nil {
				if ctx.Err() == nil {
					sc.logger.Warn("Websocket write failed", "error", err)
				}
				sc.conn.CloseNow()
				return
			}
		case <-ticker.C:
			pctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := sc.conn.Ping(pctx)
			cancel()
			if err != nil {
				if ctx.Err() == nil {
					sc.logger.Info("Websocket ping failed, closing", "error", err)
				}
				sc.conn.CloseNow()
				return
			}
		}
	}
}

// onUpdate runs on the engine loop and must not block.
func (sc *socketClient) onUpdate(u roomsync.Update) {
	switch u.Kind {
	case roomsync.UpdateState:
		f := domain.Frame{Kind: domain.FrameState, Room: u.Room, State: u.State.String()}
		if u.Err != nil {
			_, f.Code = Classify(u.Err)
			f.Error = u.Err.Error()
		}
		sc.enqueue(f)
	case roomsync.UpdateReset:
		if u.View == nil {
			return
		}
		msgs := u.View.Messages
		if msgs == nil {
			msgs = []domain.Message{}
		}
		sc.enqueue(domain.Frame{Kind: domain.FrameHistory, Room: u.Room, Messages: msgs})
		sc.enqueue(domain.FrameFromEvent(domain.PresenceEvent(u.Room, u.View.ParticipantIDs, u.View.PresenceSequence)))
	case roomsync.UpdateEvent:
		if u.Event != nil {
			sc.enqueue(domain.FrameFromEvent(*u.Event))
		}
	}
}

func (sc *socketClient) sendError(ref string, err error) {
	_, code := Classify(err)
	msg := err.Error()
	if code == CodeInternal {
		msg = "internal error"
	}
	if errors.Is(err, roomsync.ErrBroadcastFailed) {
		msg = "change stored but not broadcast, other participants will see it after they resync"
	}
	sc.enqueue(domain.Frame{Kind: domain.FrameError, Room: sc.room, Ref: ref, Code: code, Error: msg})
}

// enqueue hands a frame to the writer. A client that cannot keep up is
// disconnected; it reloads history on reconnect.
func (sc *socketClient) enqueue(f domain.Frame) {
	b, err := json.Marshal(f)
	if err != nil {
		sc.logger.Error("Failed to encode frame", "kind", f.Kind, "error", err)
		return
	}
	select {
	case sc.send <- b:
	default:
		sc.overflowOnce.Do(func() {
			metrics.EventsDropped.WithLabelValues("slow_consumer").Inc()
			sc.logger.Warn("Send buffer full, closing websocket")
			go sc.conn.Close(websocket.StatusPolicyViolation, "send buffer full")
		})
	}
}
