// Package client is a small websocket client for room sessions, used by
// the CLI to follow a room.
package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/nfrund/roomchat/internal/domain"
)

const writeWait = 10 * time.Second

// Client is a connected room session.
type Client struct {
	conn *websocket.Conn
	mu   sync.Mutex // serialises writers
}

// SocketURL turns a server base URL (http or ws) into the room socket URL.
func SocketURL(base, room string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse server url: %w", err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/ws/rooms/" + room
	return u.String(), nil
}

// Dial opens a session on room. token is sent as a bearer token.
func Dial(ctx context.Context, base, room, token string) (*Client, error) {
	target, err := SocketURL(base, room)
	if err != nil {
		return nil, err
	}
	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, target, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %s: %w", target, resp.Status, err)
		}
		return nil, fmt.Errorf("dial %s: %w", target, err)
	}
	return &Client{conn: conn}, nil
}

// Next blocks for the next server frame.
func (c *Client) Next() (domain.Frame, error) {
	var f domain.Frame
	if err := c.conn.ReadJSON(&f); err != nil {
		if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			return f, ErrClosed
		}
		return f, err
	}
	return f, nil
}

// ErrClosed is returned by Next once the server closed the session normally.
var ErrClosed = errors.New("session closed")

// Send writes one action.
func (c *Client) Send(a domain.ClientAction) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(a)
}

// Publish sends a message body.
func (c *Client) Publish(body string) error {
	return c.Send(domain.ClientAction{Action: domain.ActionPublish, Body: body})
}

// Follow delivers frames to fn until ctx ends or the connection fails.
func (c *Client) Follow(ctx context.Context, fn func(domain.Frame)) error {
	stop := context.AfterFunc(ctx, func() { _ = c.Close() })
	defer stop()

	for {
		f, err := c.Next()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, ErrClosed) {
				return nil
			}
			return err
		}
		fn(f)
	}
}

// Close sends a close frame and closes the connection.
func (c *Client) Close() error {
	c.mu.Lock()
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	c.mu.Unlock()
	return c.conn.Close()
}
