package room

import (
	"encoding/json"

	"github.com/hakusai-dev/axiswolf-backend/internal/engine"
	"github.com/hakusai-dev/axiswolf-backend/internal/store"
	"github.com/hakusai-dev/axiswolf-backend/internal/types"
)

type Msg interface{ isRoomMsg() }

// Join admits a player in lobby phase, or re-admits a known player id in
// any phase. Unknown ids are rejected once the game is in progress.
type Join struct {
	PlayerID string
	Name     string
	Reply    chan JoinReply
}

type JoinReply struct {
	Player store.Player
	Err    error
}

// Leave removes the player entirely (explicit exit, not a disconnect).
type Leave struct{ PlayerID string }

// Connect registers a live connection's outbox. Replay is true only on the
// first open of a client session: chat history is pushed before live events.
type Connect struct {
	PlayerID string
	Outbox   chan types.ServerEvent
	Replay   bool
	Reply    chan error
}

// Disconnect unregisters a connection. Outbox identifies it, so a stale
// close can never clobber a newer connection of the same player.
type Disconnect struct {
	PlayerID string
	Outbox   chan types.ServerEvent
}

type PlaceCard struct {
	PlayerID string
	CardID   string
	Quadrant int
	X, Y     float64
	Reply    chan error
}

type SubmitVote struct {
	PlayerID   string
	TargetSlot int
	Reply      chan error
}

// AdvancePhase is the host-only compare-and-set transition. Expected names
// the phase the caller believes the room is in; a mismatch is a conflict
// and performs nothing. Advancing from results starts the next round.
type AdvancePhase struct {
	PlayerID string
	Expected store.Phase
	Reply    chan error
}

// SetThemes selects the label category the next round's axis is drawn
// from. Host only, lobby only. An empty category means the full catalog.
type SetThemes struct {
	PlayerID string
	Category string
	Reply    chan error
}

type Chat struct {
	PlayerID string
	Text     string
}

// RelayVC forwards an opaque voice-chat signaling payload to every other
// member. The engine never looks inside it.
type RelayVC struct {
	PlayerID string
	Payload  json.RawMessage
}

type GetSnapshot struct {
	PlayerID string
	Reply    chan SnapshotReply
}

type SnapshotReply struct {
	Snapshot Snapshot
	Err      error
}

type Shutdown struct{}

// reap fires after the lobby disconnect grace period. The generation guard
// drops fires armed before a newer connect.
type reap struct {
	PlayerID string
	Gen      int
}

func (Join) isRoomMsg()         {}
func (Leave) isRoomMsg()        {}
func (Connect) isRoomMsg()      {}
func (Disconnect) isRoomMsg()   {}
func (PlaceCard) isRoomMsg()    {}
func (SubmitVote) isRoomMsg()   {}
func (AdvancePhase) isRoomMsg() {}
func (SetThemes) isRoomMsg()    {}
func (Chat) isRoomMsg()         {}
func (RelayVC) isRoomMsg()      {}
func (GetSnapshot) isRoomMsg()  {}
func (Shutdown) isRoomMsg()     {}
func (reap) isRoomMsg()         {}

// Snapshot is one player's authoritative view of the room. Axis is the
// viewer's own layout: the wolf receives the mutated variant with nothing
// marking it as such. WolfSlot is -1 until the results phase.
type Snapshot struct {
	Code      string              `json:"code"`
	Phase     store.Phase         `json:"phase"`
	Round     int                 `json:"round"`
	Players   []types.PlayerInfo  `json:"players"`
	Axis      *engine.AxisPair    `json:"axis,omitempty"`
	Hand      []string            `json:"hand,omitempty"`
	StartSlot int                 `json:"start_slot"`
	Cards     []types.CardInfo    `json:"cards,omitempty"`
	Votes     []types.VoteInfo    `json:"votes,omitempty"`
	Scores    map[int]int         `json:"scores"`
	WolfSlot  int                 `json:"wolf_slot"`
	Results   *engine.ScoreResult `json:"results,omitempty"`
	Online    map[int]bool        `json:"online"`

	// Clients is the live connection count; used by tests.
	Clients int `json:"-"`
}
