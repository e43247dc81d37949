package ws

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hakusai-dev/axiswolf-backend/internal/hub"
	"github.com/hakusai-dev/axiswolf-backend/internal/store"
	"github.com/hakusai-dev/axiswolf-backend/internal/types"
)

func TestHandler_RevivesPersistedRoom(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	st := store.NewMemory()
	require.NoError(t, st.Create(ctx,
		store.Room{Code: "ZED123", Phase: store.PhaseLobby},
		store.Player{RoomCode: "ZED123", ID: "p0", Slot: 0, Name: "ann", IsHost: true}))

	// Fresh hub: the room is persisted but its actor is not live, as after
	// a process restart. The dial alone must bring it back.
	h := hub.NewHub(ctx, st, zap.NewNop())
	srv := httptest.NewServer(Handler(h, zap.NewNop()))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "?code=ZED123&player_id=p0"
	dialCtx, dialCancel := context.WithTimeout(ctx, 5*time.Second)
	defer dialCancel()
	conn, _, err := websocket.Dial(dialCtx, url, nil)
	require.NoError(t, err, "reconnect to a persisted room must not depend on a prior HTTP call")
	defer conn.Close(websocket.StatusNormalClosure, "")

	// The connect is acknowledged with the player's own presence event.
	_, data, err := conn.Read(dialCtx)
	require.NoError(t, err)
	var evt types.ServerEvent
	require.NoError(t, json.Unmarshal(data, &evt))
	assert.Equal(t, types.EvtPlayerOnline, evt.Type)
}

func TestHandler_UnknownRoom404s(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	h := hub.NewHub(ctx, store.NewMemory(), zap.NewNop())
	srv := httptest.NewServer(Handler(h, zap.NewNop()))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "?code=NOPE42&player_id=p0"
	dialCtx, dialCancel := context.WithTimeout(ctx, 5*time.Second)
	defer dialCancel()
	_, resp, err := websocket.Dial(dialCtx, url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, 404, resp.StatusCode)
}
