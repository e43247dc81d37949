package hub

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"github.com/hakusai-dev/axiswolf-backend/internal/apperr"
	"github.com/hakusai-dev/axiswolf-backend/internal/room"
	"github.com/hakusai-dev/axiswolf-backend/internal/store"
)

func TestHub_Ensure_Get_SamePointer(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	if err := st.Create(ctx,
		store.Room{Code: "ZED123", Phase: store.PhaseLobby},
		store.Player{RoomCode: "ZED123", ID: "h", Slot: 0, Name: "ann", IsHost: true}); err != nil {
		t.Fatal(err)
	}

	h := NewHub(ctx, st, zap.NewNop())

	reply := make(chan EnsureReply, 1)
	h.Inbox() <- EnsureRoom{Code: "ZED123", Reply: reply}
	r1 := <-reply
	if r1.Err != nil {
		t.Fatalf("ensure: %v", r1.Err)
	}

	get := make(chan *room.Room, 1)
	h.Inbox() <- GetRoom{Code: "ZED123", Reply: get}
	r2 := <-get

	if r1.Room == nil || r2 == nil || r1.Room != r2 {
		t.Fatalf("expected same room pointer")
	}
}

func TestHub_Ensure_UnknownRoomFails(t *testing.T) {
	h := NewHub(context.Background(), store.NewMemory(), zap.NewNop())

	reply := make(chan EnsureReply, 1)
	h.Inbox() <- EnsureRoom{Code: "NOPE42", Reply: reply}
	r := <-reply
	if r.Err == nil || !apperr.IsKind(r.Err, apperr.KindNotFound) {
		t.Fatalf("want NotFound for a never-created room, got %v", r.Err)
	}
}

func TestHub_Remove_ThenGetNil(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	if err := st.Create(ctx,
		store.Room{Code: "ZED123", Phase: store.PhaseLobby},
		store.Player{RoomCode: "ZED123", ID: "h", Slot: 0, Name: "ann", IsHost: true}); err != nil {
		t.Fatal(err)
	}
	h := NewHub(ctx, st, zap.NewNop())

	reply := make(chan EnsureReply, 1)
	h.Inbox() <- EnsureRoom{Code: "ZED123", Reply: reply}
	if r := <-reply; r.Err != nil {
		t.Fatal(r.Err)
	}

	h.Inbox() <- RemoveRoom{Code: "ZED123"}

	get := make(chan *room.Room, 1)
	h.Inbox() <- GetRoom{Code: "ZED123", Reply: get}
	if r := <-get; r != nil {
		t.Fatalf("expected nil after removal")
	}
}
