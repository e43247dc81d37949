package room

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hakusai-dev/axiswolf-backend/internal/apperr"
	"github.com/hakusai-dev/axiswolf-backend/internal/store"
	"github.com/hakusai-dev/axiswolf-backend/internal/types"
)

const testCode = "ROOM42"

func startRoom(t *testing.T, opts Options) *Room {
	t.Helper()
	st := store.NewMemory()
	err := st.Create(context.Background(),
		store.Room{Code: testCode, Phase: store.PhaseLobby},
		store.Player{RoomCode: testCode, ID: "p0", Slot: 0, Name: "ann", IsHost: true})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	r, err := New(ctx, testCode, st, zap.NewNop(), opts)
	require.NoError(t, err)
	return r
}

func join(t *testing.T, r *Room, id, name string) JoinReply {
	t.Helper()
	reply := make(chan JoinReply, 1)
	r.Inbox() <- Join{PlayerID: id, Name: name, Reply: reply}
	return recvReply(t, reply)
}

func advance(t *testing.T, r *Room, playerID string, expected store.Phase) error {
	t.Helper()
	reply := make(chan error, 1)
	r.Inbox() <- AdvancePhase{PlayerID: playerID, Expected: expected, Reply: reply}
	return recvReply(t, reply)
}

func snapshot(t *testing.T, r *Room, playerID string) Snapshot {
	t.Helper()
	reply := make(chan SnapshotReply, 1)
	r.Inbox() <- GetSnapshot{PlayerID: playerID, Reply: reply}
	sr := recvReply(t, reply)
	require.NoError(t, sr.Err)
	return sr.Snapshot
}

func recvReply[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for reply")
		panic("unreachable")
	}
}

func recvEvent(t *testing.T, ch <-chan types.ServerEvent, typ string) types.ServerEvent {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case evt, ok := <-ch:
			if !ok {
				t.Fatalf("outbox closed while waiting for %q", typ)
			}
			if evt.Type == typ {
				return evt
			}
		case <-deadline:
			t.Fatalf("timed out waiting for event %q", typ)
		}
	}
}

func connect(t *testing.T, r *Room, playerID string, replay bool) chan types.ServerEvent {
	t.Helper()
	out := make(chan types.ServerEvent, 64)
	reply := make(chan error, 1)
	r.Inbox() <- Connect{PlayerID: playerID, Outbox: out, Replay: replay, Reply: reply}
	require.NoError(t, recvReply(t, reply))
	return out
}

func TestJoin_DenseSlotsAndHostFlag(t *testing.T) {
	r := startRoom(t, Options{})

	p1 := join(t, r, "p1", "bob")
	require.NoError(t, p1.Err)
	assert.Equal(t, 1, p1.Player.Slot)
	assert.False(t, p1.Player.IsHost)

	p2 := join(t, r, "p2", "cho")
	require.NoError(t, p2.Err)
	assert.Equal(t, 2, p2.Player.Slot)
}

func TestJoin_MidGameRejectedButRejoinAllowed(t *testing.T) {
	r := startRoom(t, Options{})
	require.NoError(t, join(t, r, "p1", "bob").Err)
	require.NoError(t, advance(t, r, "p0", store.PhaseLobby))

	late := join(t, r, "p9", "dana")
	assert.True(t, apperr.IsKind(late.Err, apperr.KindConflict), "mid-game join must be rejected: %v", late.Err)

	back := join(t, r, "p1", "")
	require.NoError(t, back.Err, "a known token must be able to rejoin mid-game")
	assert.Equal(t, 1, back.Player.Slot)
}

func TestAdvance_HostOnly(t *testing.T) {
	r := startRoom(t, Options{})
	require.NoError(t, join(t, r, "p1", "bob").Err)

	err := advance(t, r, "p1", store.PhaseLobby)
	assert.True(t, apperr.IsKind(err, apperr.KindAuthorization))
}

func TestAdvance_CASRejectsDuplicate(t *testing.T) {
	r := startRoom(t, Options{})
	require.NoError(t, join(t, r, "p1", "bob").Err)
	require.NoError(t, advance(t, r, "p0", store.PhaseLobby))

	err := advance(t, r, "p0", store.PhaseLobby)
	assert.True(t, apperr.IsKind(err, apperr.KindConflict), "double-submitted transition must conflict: %v", err)
}

func TestAdvance_NeedsTwoPlayers(t *testing.T) {
	r := startRoom(t, Options{})
	err := advance(t, r, "p0", store.PhaseLobby)
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))
}

func TestPlacementSnapshot_WolfSeesMutatedAxis(t *testing.T) {
	r := startRoom(t, Options{})
	require.NoError(t, join(t, r, "p1", "bob").Err)
	require.NoError(t, join(t, r, "p2", "cho").Err)
	require.NoError(t, advance(t, r, "p0", store.PhaseLobby))

	snaps := map[string]Snapshot{}
	for _, id := range []string{"p0", "p1", "p2"} {
		s := snapshot(t, r, id)
		require.NotNil(t, s.Axis)
		require.Len(t, s.Hand, HandSize)
		assert.Equal(t, -1, s.WolfSlot, "wolf identity must stay hidden before results")
		snaps[id] = s
	}

	// ROOM42 round 0, 3 players: wolf is slot 0.
	wolf, villager := snaps["p0"], snaps["p1"]
	assert.NotEqual(t, *villager.Axis, *wolf.Axis, "the wolf must receive a divergent axis")
	assert.Equal(t, *snaps["p1"].Axis, *snaps["p2"].Axis, "non-wolves share one axis")
}

func TestPlaceCard_UpsertsLatestOffsets(t *testing.T) {
	r := startRoom(t, Options{})
	require.NoError(t, join(t, r, "p1", "bob").Err)
	require.NoError(t, advance(t, r, "p0", store.PhaseLobby))

	hand := snapshot(t, r, "p1").Hand
	card := hand[0]

	reply := make(chan error, 1)
	r.Inbox() <- PlaceCard{PlayerID: "p1", CardID: card, Quadrant: 0, X: 0.1, Y: 0.2, Reply: reply}
	require.NoError(t, recvReply(t, reply))
	r.Inbox() <- PlaceCard{PlayerID: "p1", CardID: card, Quadrant: 3, X: -0.4, Y: 0.9, Reply: reply}
	require.NoError(t, recvReply(t, reply))

	cards := snapshot(t, r, "p1").Cards
	require.Len(t, cards, 1, "re-placing the same card must update, not duplicate")
	assert.Equal(t, 3, cards[0].Quadrant)
	assert.Equal(t, -0.4, cards[0].X)
	assert.Equal(t, 0.9, cards[0].Y)
}

func TestPlaceCard_RejectsCardOutsideHand(t *testing.T) {
	r := startRoom(t, Options{})
	require.NoError(t, join(t, r, "p1", "bob").Err)
	require.NoError(t, advance(t, r, "p0", store.PhaseLobby))

	reply := make(chan error, 1)
	r.Inbox() <- PlaceCard{PlayerID: "p1", CardID: "not-a-card", Quadrant: 0, Reply: reply}
	err := recvReply(t, reply)
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))
}

func TestSubmitVote_OverwritesTarget(t *testing.T) {
	r := startRoom(t, Options{})
	require.NoError(t, join(t, r, "p1", "bob").Err)
	require.NoError(t, join(t, r, "p2", "cho").Err)
	require.NoError(t, advance(t, r, "p0", store.PhaseLobby))
	require.NoError(t, advance(t, r, "p0", store.PhasePlacement))

	reply := make(chan error, 1)
	r.Inbox() <- SubmitVote{PlayerID: "p1", TargetSlot: 0, Reply: reply}
	require.NoError(t, recvReply(t, reply))
	r.Inbox() <- SubmitVote{PlayerID: "p1", TargetSlot: 2, Reply: reply}
	require.NoError(t, recvReply(t, reply))

	votes := snapshot(t, r, "p1").Votes
	require.Len(t, votes, 1)
	assert.Equal(t, 2, votes[0].TargetSlot)
}

func TestVote_RejectedOutsideVotingPhase(t *testing.T) {
	r := startRoom(t, Options{})
	require.NoError(t, join(t, r, "p1", "bob").Err)
	require.NoError(t, advance(t, r, "p0", store.PhaseLobby))

	reply := make(chan error, 1)
	r.Inbox() <- SubmitVote{PlayerID: "p1", TargetSlot: 0, Reply: reply}
	err := recvReply(t, reply)
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))
}

func TestFullRound_ScoresAndRevealsWolf(t *testing.T) {
	r := startRoom(t, Options{})
	require.NoError(t, join(t, r, "p1", "bob").Err)
	require.NoError(t, join(t, r, "p2", "cho").Err)
	require.NoError(t, advance(t, r, "p0", store.PhaseLobby))
	require.NoError(t, advance(t, r, "p0", store.PhasePlacement))

	// Wolf is slot 0; both villagers vote for it.
	reply := make(chan error, 1)
	r.Inbox() <- SubmitVote{PlayerID: "p1", TargetSlot: 0, Reply: reply}
	require.NoError(t, recvReply(t, reply))
	r.Inbox() <- SubmitVote{PlayerID: "p2", TargetSlot: 0, Reply: reply}
	require.NoError(t, recvReply(t, reply))

	require.NoError(t, advance(t, r, "p0", store.PhaseVoting))

	snap := snapshot(t, r, "p1")
	assert.Equal(t, store.PhaseResults, snap.Phase)
	assert.Equal(t, 0, snap.WolfSlot, "results phase reveals the wolf")
	require.NotNil(t, snap.Results)
	assert.True(t, snap.Results.WolfCaught)
	assert.Equal(t, map[int]int{0: 0, 1: 2, 2: 2}, snap.Scores)

	// Duplicate scoring request must conflict, not re-score.
	err := advance(t, r, "p0", store.PhaseVoting)
	assert.True(t, apperr.IsKind(err, apperr.KindConflict))
	assert.Equal(t, map[int]int{0: 0, 1: 2, 2: 2}, snapshot(t, r, "p1").Scores)
}

func TestNextRound_ClearsCardsAndVotes(t *testing.T) {
	r := startRoom(t, Options{})
	require.NoError(t, join(t, r, "p1", "bob").Err)
	require.NoError(t, advance(t, r, "p0", store.PhaseLobby))

	hand := snapshot(t, r, "p1").Hand
	reply := make(chan error, 1)
	r.Inbox() <- PlaceCard{PlayerID: "p1", CardID: hand[0], Quadrant: 1, Reply: reply}
	require.NoError(t, recvReply(t, reply))

	require.NoError(t, advance(t, r, "p0", store.PhasePlacement))
	r.Inbox() <- SubmitVote{PlayerID: "p1", TargetSlot: 0, Reply: reply}
	require.NoError(t, recvReply(t, reply))
	require.NoError(t, advance(t, r, "p0", store.PhaseVoting))

	seedBefore := snapshot(t, r, "p0")
	require.NoError(t, advance(t, r, "p0", store.PhaseResults))

	snap := snapshot(t, r, "p0")
	assert.Equal(t, store.PhasePlacement, snap.Phase)
	assert.Equal(t, 1, snap.Round)
	assert.Empty(t, snap.Cards)
	assert.Empty(t, snap.Votes)
	assert.Equal(t, -1, snap.WolfSlot)
	assert.NotEqual(t, seedBefore.Axis, snap.Axis, "a new round regenerates the axis")
}

func TestDisconnect_ReassignsHostAndMarksOffline(t *testing.T) {
	r := startRoom(t, Options{})
	require.NoError(t, join(t, r, "p1", "bob").Err)

	hostOut := connect(t, r, "p0", false)
	peerOut := connect(t, r, "p1", false)
	_ = hostOut

	r.Inbox() <- Disconnect{PlayerID: "p0", Outbox: hostOut}

	evt := recvEvent(t, peerOut, types.EvtHostChanged)
	require.NotNil(t, evt.Player)
	assert.Equal(t, 1, evt.Player.Slot, "host hands off to the connected player")

	snap := snapshot(t, r, "p1")
	assert.False(t, snap.Online[0])
	assert.True(t, snap.Players[1].IsHost)
	assert.False(t, snap.Players[0].IsHost)
}

func TestDisconnect_ClosesOutbox(t *testing.T) {
	r := startRoom(t, Options{})

	out := connect(t, r, "p0", false)
	r.Inbox() <- Disconnect{PlayerID: "p0", Outbox: out}

	// The outbox must close so its writer goroutine can exit.
	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-out:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("outbox still open after disconnect")
		}
	}
}

func TestStaleDisconnect_DoesNotCloseNewOutbox(t *testing.T) {
	r := startRoom(t, Options{})

	stale := connect(t, r, "p0", false)
	fresh := connect(t, r, "p0", false) // supersedes and closes stale

	r.Inbox() <- Disconnect{PlayerID: "p0", Outbox: stale}

	r.Inbox() <- Chat{PlayerID: "p0", Text: "still here"}
	evt := recvEvent(t, fresh, types.EvtChat)
	assert.Equal(t, "still here", evt.Chat.Text)
	assert.True(t, snapshot(t, r, "p0").Online[0])
}

func TestRehydration_KeepsRoundStartWolf(t *testing.T) {
	// GAME09 round 0: wolf slot is 1 with the round-start roster of 3,
	// but a naive recompute over the 2 survivors would pick slot 0.
	const code = "GAME09"
	st := store.NewMemory()
	require.NoError(t, st.Create(context.Background(),
		store.Room{Code: code, Phase: store.PhaseLobby},
		store.Player{RoomCode: code, ID: "p0", Slot: 0, Name: "ann", IsHost: true}))

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	r, err := New(ctx, code, st, zap.NewNop(), Options{})
	require.NoError(t, err)
	require.NoError(t, join(t, r, "p1", "bob").Err)
	require.NoError(t, join(t, r, "p2", "cho").Err)
	require.NoError(t, advance(t, r, "p0", store.PhaseLobby))

	wolfAxis := snapshot(t, r, "p1").Axis
	normalAxis := snapshot(t, r, "p0").Axis
	require.NotEqual(t, *normalAxis, *wolfAxis, "slot 1 must be this round's wolf")

	// A non-wolf leaves mid-round, then the actor restarts from the store.
	r.Inbox() <- Leave{PlayerID: "p2"}
	require.Len(t, snapshot(t, r, "p0").Players, 2) // leave fully processed
	r.Inbox() <- Shutdown{}

	r2, err := New(ctx, code, st, zap.NewNop(), Options{})
	require.NoError(t, err)

	assert.Equal(t, *wolfAxis, *snapshot(t, r2, "p1").Axis,
		"the wolf must not move when the actor rehydrates mid-round")
	assert.Equal(t, *normalAxis, *snapshot(t, r2, "p0").Axis)
}

func TestChatReplay_DropsOverflowingClient(t *testing.T) {
	r := startRoom(t, Options{})
	require.NoError(t, join(t, r, "p1", "bob").Err)

	speaker := connect(t, r, "p0", false)
	_ = speaker
	for _, text := range []string{"one", "two", "three"} {
		r.Inbox() <- Chat{PlayerID: "p0", Text: text}
	}

	// A one-slot outbox cannot hold the history; replay must drop the
	// connection instead of blocking the actor or panicking.
	tiny := make(chan types.ServerEvent, 1)
	reply := make(chan error, 1)
	r.Inbox() <- Connect{PlayerID: "p1", Outbox: tiny, Replay: true, Reply: reply}
	require.NoError(t, recvReply(t, reply))

	require.Eventually(t, func() bool {
		return snapshot(t, r, "p0").Clients == 1
	}, 2*time.Second, 10*time.Millisecond, "only the speaker's connection should remain")
}

func TestLobbyDisconnect_ReapsAfterGrace(t *testing.T) {
	r := startRoom(t, Options{ReapDelay: 30 * time.Millisecond})
	require.NoError(t, join(t, r, "p1", "bob").Err)

	out := connect(t, r, "p1", false)
	r.Inbox() <- Disconnect{PlayerID: "p1", Outbox: out}

	require.Eventually(t, func() bool {
		return len(snapshot(t, r, "p0").Players) == 1
	}, 2*time.Second, 10*time.Millisecond, "offline lobby player should be removed after the grace period")
}

func TestLobbyDisconnect_ReconnectCancelsReap(t *testing.T) {
	r := startRoom(t, Options{ReapDelay: 50 * time.Millisecond})
	require.NoError(t, join(t, r, "p1", "bob").Err)

	out := connect(t, r, "p1", false)
	r.Inbox() <- Disconnect{PlayerID: "p1", Outbox: out}
	_ = connect(t, r, "p1", false)

	time.Sleep(150 * time.Millisecond)
	assert.Len(t, snapshot(t, r, "p0").Players, 2, "a reconnect must cancel the pending removal")
}

func TestChat_ReplayOnlyWhenRequested(t *testing.T) {
	r := startRoom(t, Options{})
	require.NoError(t, join(t, r, "p1", "bob").Err)

	first := connect(t, r, "p0", false)
	r.Inbox() <- Chat{PlayerID: "p0", Text: "hello"}
	recvEvent(t, first, types.EvtChat)

	replayed := connect(t, r, "p1", true)
	evt := recvEvent(t, replayed, types.EvtChat)
	require.NotNil(t, evt.Chat)
	assert.Equal(t, "hello", evt.Chat.Text)

	quiet := make(chan types.ServerEvent, 64)
	reply := make(chan error, 1)
	r.Inbox() <- Connect{PlayerID: "p1", Outbox: quiet, Replay: false, Reply: reply}
	require.NoError(t, recvReply(t, reply))
	select {
	case evt := <-quiet:
		if evt.Type == types.EvtChat {
			t.Fatalf("reconnect without replay flag must not receive history, got %+v", evt)
		}
	case <-time.After(100 * time.Millisecond):
	}
}

func TestVCRelay_SkipsSender(t *testing.T) {
	r := startRoom(t, Options{})
	require.NoError(t, join(t, r, "p1", "bob").Err)

	sender := connect(t, r, "p0", false)
	receiver := connect(t, r, "p1", false)

	r.Inbox() <- RelayVC{PlayerID: "p0", Payload: []byte(`{"peer":"abc"}`)}

	evt := recvEvent(t, receiver, types.MsgVCPeerID)
	assert.JSONEq(t, `{"peer":"abc"}`, string(evt.Peer))

	select {
	case evt := <-sender:
		if evt.Type == types.MsgVCPeerID {
			t.Fatalf("vc_peer_id must not echo back to the sender")
		}
	case <-time.After(100 * time.Millisecond):
	}
}

func TestBroadcast_DropsSlowClient(t *testing.T) {
	r := startRoom(t, Options{})
	require.NoError(t, join(t, r, "p1", "bob").Err)

	// A one-slot outbox that nobody drains fills immediately.
	stuck := make(chan types.ServerEvent, 1)
	reply := make(chan error, 1)
	r.Inbox() <- Connect{PlayerID: "p1", Outbox: stuck, Replay: false, Reply: reply}
	require.NoError(t, recvReply(t, reply))

	r.Inbox() <- Chat{PlayerID: "p0", Text: "one"}
	r.Inbox() <- Chat{PlayerID: "p0", Text: "two"}
	r.Inbox() <- Chat{PlayerID: "p0", Text: "three"}

	require.Eventually(t, func() bool {
		return snapshot(t, r, "p0").Clients == 0
	}, 2*time.Second, 10*time.Millisecond, "a stalled connection must be dropped, not block the room")
}

func TestSetThemes_HostOnlyLobbyOnly(t *testing.T) {
	r := startRoom(t, Options{})
	require.NoError(t, join(t, r, "p1", "bob").Err)

	out := connect(t, r, "p1", false)

	reply := make(chan error, 1)
	r.Inbox() <- SetThemes{PlayerID: "p1", Category: "sense", Reply: reply}
	assert.True(t, apperr.IsKind(recvReply(t, reply), apperr.KindAuthorization))

	r.Inbox() <- SetThemes{PlayerID: "p0", Category: "sense", Reply: reply}
	require.NoError(t, recvReply(t, reply))
	recvEvent(t, out, types.EvtThemesUpdated)

	require.NoError(t, advance(t, r, "p0", store.PhaseLobby))
	r.Inbox() <- SetThemes{PlayerID: "p0", Category: "taste", Reply: reply}
	assert.True(t, apperr.IsKind(recvReply(t, reply), apperr.KindValidation))
}
