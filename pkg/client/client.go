// Package client is the Go client half of the room sync protocol: one
// WebSocket per (room, player) with bounded fixed-delay reconnection and
// refetch-before-resume semantics.
package client

import (
	"context"
	"encoding/json"
	"net/url"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/hakusai-dev/axiswolf-backend/internal/apperr"
	"github.com/hakusai-dev/axiswolf-backend/internal/types"
)

const (
	DefaultRetryDelay   = 2 * time.Second
	DefaultMaxRetries   = 5
	DefaultPingInterval = 3 * time.Minute
)

type Config struct {
	// URL is the ws endpoint, e.g. "ws://host:8080/ws".
	URL      string
	RoomCode string
	PlayerID string

	// OnEvent receives every decoded server event, called from the read
	// loop. Unknown event types never reach it.
	OnEvent func(types.ServerEvent)

	// Refetch re-syncs authoritative room state. It runs before live event
	// handling on every open except the session's first, so a reconnecting
	// client never acts on stale state.
	Refetch func(ctx context.Context) error

	// OnOpen fires after a successful open (and refetch), with the value
	// the session's first-connection flag had for this open.
	OnOpen func(first bool)

	RetryDelay   time.Duration
	MaxRetries   int
	PingInterval time.Duration
	Logger       *zap.Logger
}

type Client struct {
	cfg     Config
	session *Session
	log     *zap.Logger

	outbox chan types.ClientMessage
}

func New(cfg Config, session *Session) *Client {
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = DefaultRetryDelay
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.PingInterval == 0 {
		cfg.PingInterval = DefaultPingInterval
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Client{
		cfg:     cfg,
		session: session,
		log:     cfg.Logger.With(zap.String("room", cfg.RoomCode), zap.String("player", cfg.PlayerID)),
		outbox:  make(chan types.ClientMessage, 16),
	}
}

// SendChat queues a chat message for the active connection.
func (c *Client) SendChat(text string) {
	c.queue(types.ClientMessage{Type: types.MsgChat, Text: text})
}

// SendPeerSignal relays opaque voice-chat signaling to the other members.
func (c *Client) SendPeerSignal(payload json.RawMessage) {
	c.queue(types.ClientMessage{Type: types.MsgVCPeerID, Payload: payload})
}

func (c *Client) queue(m types.ClientMessage) {
	select {
	case c.outbox <- m:
	default:
		c.log.Warn("client outbox full, dropping message", zap.String("type", m.Type))
	}
}

// Run connects and processes events until the context is canceled or the
// server closes cleanly; both end the session without retrying. An
// abnormal closure retries with a fixed delay up to MaxRetries; exhausting
// the budget returns a terminal connection error for the UI to surface.
func (c *Client) Run(ctx context.Context) error {
	attempts := 0
	for {
		opened, err := c.runOnce(ctx)
		if err == nil || ctx.Err() != nil {
			return nil
		}
		if opened {
			// The budget is per outage, not per session: a successful open
			// means the previous outage ended.
			attempts = 0
		}

		attempts++
		if attempts > c.cfg.MaxRetries {
			return apperr.Wrap(apperr.KindConnection, err, "connection lost")
		}
		c.log.Info("reconnecting",
			zap.Int("attempt", attempts),
			zap.Duration("delay", c.cfg.RetryDelay),
			zap.Error(err))
		select {
		case <-time.After(c.cfg.RetryDelay):
		case <-ctx.Done():
			return nil
		}
	}
}

// runOnce performs a single dial/read cycle. A nil error means a clean
// close; any error is an abnormal closure eligible for retry. opened
// reports whether the connection got as far as a successful open.
func (c *Client) runOnce(ctx context.Context) (opened bool, _ error) {
	first := c.session.IsFirstConnectionInSession

	conn, _, err := websocket.Dial(ctx, c.dialURL(first), nil)
	if err != nil {
		return false, apperr.Wrap(apperr.KindConnection, err, "dial")
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	if first {
		c.session.IsFirstConnectionInSession = false
	} else if c.cfg.Refetch != nil {
		if err := c.cfg.Refetch(ctx); err != nil {
			return false, apperr.Wrap(apperr.KindConnection, err, "refetch before resume")
		}
	}
	opened = true
	if c.cfg.OnOpen != nil {
		c.cfg.OnOpen(first)
	}

	writeCtx, cancelWrites := context.WithCancel(ctx)
	defer cancelWrites()
	go c.writeLoop(writeCtx, conn)

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				return opened, nil
			}
			if ctx.Err() != nil {
				return opened, nil // deliberate teardown
			}
			return opened, apperr.Wrap(apperr.KindConnection, err, "read")
		}

		var evt types.ServerEvent
		if err := json.Unmarshal(data, &evt); err != nil {
			c.log.Warn("bad server event", zap.Error(err))
			continue
		}
		if !types.KnownEventType(evt.Type) {
			c.log.Warn("unknown event type", zap.String("type", evt.Type))
			continue
		}
		if c.cfg.OnEvent != nil {
			c.cfg.OnEvent(evt)
		}
	}
}

// writeLoop drains queued messages and keeps the connection alive with
// periodic pings. The server never relays pings.
func (c *Client) writeLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()
	for {
		var msg types.ClientMessage
		select {
		case <-ctx.Done():
			return
		case msg = <-c.outbox:
		case <-ticker.C:
			msg = types.ClientMessage{Type: types.MsgPing}
		}
		payload, err := json.Marshal(msg)
		if err != nil {
			c.log.Error("marshal client message", zap.Error(err))
			continue
		}
		if err := conn.Write(ctx, websocket.MessageText, payload); err != nil {
			return
		}
	}
}

func (c *Client) dialURL(first bool) string {
	q := url.Values{}
	q.Set("code", c.cfg.RoomCode)
	q.Set("player_id", c.cfg.PlayerID)
	if first {
		q.Set("first", "1")
	}
	return c.cfg.URL + "?" + q.Encode()
}
