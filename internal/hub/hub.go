// Package hub is the room registry: one actor owning the code->room map.
// Room actors are created lazily from the store, so a room survives a
// process restart as long as its persisted state does.
package hub

import (
	"context"

	"go.uber.org/zap"

	"github.com/hakusai-dev/axiswolf-backend/internal/room"
	"github.com/hakusai-dev/axiswolf-backend/internal/store"
)

type HubMsg interface{ isHubMsg() }

type GetRoom struct {
	Code  string
	Reply chan *room.Room
}

// EnsureRoom returns the live actor for a persisted room, starting one if
// needed. Fails with the store's NotFound when the room was never created.
type EnsureRoom struct {
	Code  string
	Opts  room.Options
	Reply chan EnsureReply
}

type EnsureReply struct {
	Room *room.Room
	Err  error
}

type RemoveRoom struct {
	Code string
}

type ShutdownHub struct{}

func (GetRoom) isHubMsg()     {}
func (EnsureRoom) isHubMsg()  {}
func (RemoveRoom) isHubMsg()  {}
func (ShutdownHub) isHubMsg() {}

type Hub struct {
	inbox  chan HubMsg
	rooms  map[string]*room.Room
	st     store.Store
	log    *zap.Logger
	ctx    context.Context
	cancel context.CancelFunc
}

func NewHub(parent context.Context, st store.Store, log *zap.Logger) *Hub {
	ctx, cancel := context.WithCancel(parent)
	h := &Hub{
		inbox:  make(chan HubMsg, 64),
		rooms:  make(map[string]*room.Room),
		st:     st,
		log:    log,
		ctx:    ctx,
		cancel: cancel,
	}
	go h.loop()
	return h
}

func (h *Hub) Inbox() chan<- HubMsg { return h.inbox }

func (h *Hub) loop() {
	for {
		select {
		case <-h.ctx.Done():
			h.shutdown()
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case GetRoom:
				msg.Reply <- h.rooms[msg.Code] // may be nil

			case EnsureRoom:
				if r := h.rooms[msg.Code]; r != nil {
					msg.Reply <- EnsureReply{Room: r}
					break
				}
				r, err := room.New(h.ctx, msg.Code, h.st, h.log, msg.Opts)
				if err != nil {
					msg.Reply <- EnsureReply{Err: err}
					break
				}
				h.rooms[msg.Code] = r
				msg.Reply <- EnsureReply{Room: r}

			case RemoveRoom:
				if r := h.rooms[msg.Code]; r != nil {
					r.Inbox() <- room.Shutdown{}
					delete(h.rooms, msg.Code)
				}

			case ShutdownHub:
				h.shutdown()
				return
			}
		}
	}
}

func (h *Hub) shutdown() {
	for code, r := range h.rooms {
		r.Inbox() <- room.Shutdown{}
		delete(h.rooms, code)
	}
	h.cancel()
}
