package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/hakusai-dev/axiswolf-backend/internal/apperr"
	"github.com/hakusai-dev/axiswolf-backend/internal/hub"
	"github.com/hakusai-dev/axiswolf-backend/internal/room"
	"github.com/hakusai-dev/axiswolf-backend/internal/types"
)

// outboxSize bounds each connection's pending events. The room actor drops
// a connection rather than block on a full outbox, so this also caps how
// far behind a slow consumer may fall.
const outboxSize = 64

const writeTimeout = 3 * time.Second

// Handler upgrades one connection per (room_code, player_id). Query params:
// code, player_id, and first=1 on the first open of a client session (the
// only open that replays chat history).
func Handler(h *hub.Hub, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		code := r.URL.Query().Get("code")
		playerID := r.URL.Query().Get("player_id")
		if code == "" || playerID == "" {
			http.Error(w, "missing code or player_id", http.StatusBadRequest)
			return
		}

		// Ensure, not get: after a restart the actor is revived from the
		// store, so a reconnect to a persisted room always finds it.
		reply := make(chan hub.EnsureReply, 1)
		h.Inbox() <- hub.EnsureRoom{Code: code, Reply: reply}
		er := <-reply
		if er.Err != nil {
			if apperr.IsKind(er.Err, apperr.KindNotFound) {
				http.Error(w, "room not found", http.StatusNotFound)
			} else {
				http.Error(w, "room unavailable", http.StatusInternalServerError)
			}
			return
		}
		rm := er.Room

		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")

		out := make(chan types.ServerEvent, outboxSize)
		connReply := make(chan error, 1)
		rm.Inbox() <- room.Connect{
			PlayerID: playerID,
			Outbox:   out,
			Replay:   r.URL.Query().Get("first") == "1",
			Reply:    connReply,
		}
		if err := <-connReply; err != nil {
			conn.Close(websocket.StatusPolicyViolation, "not a member of this room")
			return
		}
		defer func() { rm.Inbox() <- room.Disconnect{PlayerID: playerID, Outbox: out} }()

		clog := log.With(zap.String("room", code), zap.String("player", playerID))

		// Writer goroutine: drains the outbox until the room closes it.
		writeCtx, writeCancel := context.WithCancel(r.Context())
		defer writeCancel()
		go func() {
			for evt := range out {
				payload, err := json.Marshal(evt)
				if err != nil {
					clog.Error("marshal event", zap.Error(err))
					continue
				}
				ctx, cancel := context.WithTimeout(writeCtx, writeTimeout)
				err = conn.Write(ctx, websocket.MessageText, payload)
				cancel()
				if err != nil {
					return
				}
			}
			// Outbox closed: the room dropped or replaced this connection.
			conn.Close(websocket.StatusGoingAway, "superseded")
		}()

		for {
			_, data, err := conn.Read(r.Context())
			if err != nil {
				switch websocket.CloseStatus(err) {
				case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				default:
					clog.Debug("connection closed abnormally", zap.Error(err))
				}
				return
			}

			var cm types.ClientMessage
			if err := json.Unmarshal(data, &cm); err != nil {
				clog.Warn("bad client message", zap.Error(err))
				continue
			}

			switch cm.Type {
			case types.MsgPing:
				// Keepalive only; never relayed.
			case types.MsgChat:
				rm.Inbox() <- room.Chat{PlayerID: playerID, Text: cm.Text}
			case types.MsgVCPeerID:
				rm.Inbox() <- room.RelayVC{PlayerID: playerID, Payload: cm.Payload}
			default:
				clog.Warn("unknown message type", zap.String("type", cm.Type))
			}
		}
	}
}
