// Package store is the persistence collaborator for room state. The room
// actor is the only writer for a given room code; implementations must make
// each call atomic but need no cross-call locking of their own beyond that.
package store

import (
	"context"
	"time"

	"github.com/hakusai-dev/axiswolf-backend/internal/engine"
)

type Phase string

const (
	PhaseLobby     Phase = "lobby"
	PhasePlacement Phase = "placement"
	PhaseVoting    Phase = "voting"
	PhaseResults   Phase = "results"
)

// NextPhase returns the only legal successor of p. The results→placement
// step is the round advance; every other pairing is rejected.
func NextPhase(p Phase) (Phase, bool) {
	switch p {
	case PhaseLobby:
		return PhasePlacement, true
	case PhasePlacement:
		return PhaseVoting, true
	case PhaseVoting:
		return PhaseResults, true
	case PhaseResults:
		return PhasePlacement, true
	default:
		return "", false
	}
}

type Room struct {
	Code      string
	Phase     Phase
	Round     int
	RoundSeed int32
	// RoundPlayers is the roster size frozen at round start; role slots
	// rehydrate from it, never from the live roster.
	RoundPlayers int
	Axis         engine.AxisPair
	WolfAxis     engine.AxisPair
	Scores       map[int]int
	LastResults  *engine.ScoreResult
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Player struct {
	RoomCode string
	ID       string // stable client-generated token
	Slot     int    // dense, join order, 0 = creator
	Name     string
	IsHost   bool
	Online   bool
	JoinedAt time.Time
}

type PlacedCard struct {
	RoomCode string
	Round    int
	Slot     int
	CardID   string
	Quadrant int     // 0..3
	X        float64 // [-1, 1]
	Y        float64 // [-1, 1]
	PlacedAt time.Time
}

type Vote struct {
	RoomCode   string
	Round      int
	VoterSlot  int
	TargetSlot int
	CastAt     time.Time
}

// RoundState bundles the values that must never be observed half-updated:
// a fresh seed always arrives together with both axis payloads and the
// roster size the round's roles were derived against.
type RoundState struct {
	Seed        int32
	Axis        engine.AxisPair
	WolfAxis    engine.AxisPair
	PlayerCount int
}

type Store interface {
	Create(ctx context.Context, room Room, host Player) error
	Get(ctx context.Context, code string) (Room, []Player, error)

	// UpdatePhase moves the room to phase. A non-nil next applies the
	// atomic seed/axis bundle in the same write.
	UpdatePhase(ctx context.Context, code string, phase Phase, next *RoundState) error

	UpsertPlayer(ctx context.Context, p Player) error
	RemovePlayer(ctx context.Context, code, playerID string) error

	// AppendCard upserts on (room, round, slot, card): re-placing the same
	// card updates its quadrant/offsets, never duplicates.
	AppendCard(ctx context.Context, c PlacedCard) error
	// AppendVote upserts on (room, round, voter): resubmission overwrites
	// the target.
	AppendVote(ctx context.Context, v Vote) error

	ListCards(ctx context.Context, code string, round int) ([]PlacedCard, error)
	ListVotes(ctx context.Context, code string, round int) ([]Vote, error)

	// ComputeAndPersistResults scores the room's current round from its
	// persisted votes and roster, merges the delta into cumulative scores,
	// stores the result for results-phase refetch and moves the room to the
	// results phase, all in one atomic call.
	ComputeAndPersistResults(ctx context.Context, code string, wolfSlot int) (engine.ScoreResult, error)

	// AdvanceRound increments the round, applies the new seed/axis bundle,
	// moves the room to placement and clears prior rounds' cards and votes.
	AdvanceRound(ctx context.Context, code string, next RoundState) error
}
