package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/hakusai-dev/axiswolf-backend/internal/apperr"
	"github.com/hakusai-dev/axiswolf-backend/internal/engine"
)

type cardKey struct {
	round  int
	slot   int
	cardID string
}

type memoryRoom struct {
	room    Room
	players map[string]Player
	cards   map[cardKey]PlacedCard
	votes   map[int]map[int]Vote // round -> voter slot -> vote
}

// Memory is the in-process Store used by tests and single-node dev servers.
type Memory struct {
	mu    sync.RWMutex
	rooms map[string]*memoryRoom
}

func NewMemory() *Memory {
	return &Memory{rooms: make(map[string]*memoryRoom)}
}

func (m *Memory) Create(_ context.Context, room Room, host Player) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rooms[room.Code]; ok {
		return apperr.Newf(apperr.KindConflict, "room %s already exists", room.Code)
	}
	if room.Scores == nil {
		room.Scores = make(map[int]int)
	}
	now := time.Now()
	room.CreatedAt, room.UpdatedAt = now, now
	mr := &memoryRoom{
		room:    room,
		players: map[string]Player{host.ID: host},
		cards:   make(map[cardKey]PlacedCard),
		votes:   make(map[int]map[int]Vote),
	}
	m.rooms[room.Code] = mr
	return nil
}

func (m *Memory) Get(_ context.Context, code string) (Room, []Player, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	mr, ok := m.rooms[code]
	if !ok {
		return Room{}, nil, apperr.Newf(apperr.KindNotFound, "room %s not found", code)
	}
	players := make([]Player, 0, len(mr.players))
	for _, p := range mr.players {
		players = append(players, p)
	}
	sort.Slice(players, func(i, j int) bool { return players[i].Slot < players[j].Slot })
	return copyRoom(mr.room), players, nil
}

func (m *Memory) UpdatePhase(_ context.Context, code string, phase Phase, next *RoundState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	mr, ok := m.rooms[code]
	if !ok {
		return apperr.Newf(apperr.KindNotFound, "room %s not found", code)
	}
	mr.room.Phase = phase
	if next != nil {
		mr.room.RoundSeed = next.Seed
		mr.room.Axis = next.Axis
		mr.room.WolfAxis = next.WolfAxis
		mr.room.RoundPlayers = next.PlayerCount
	}
	mr.room.UpdatedAt = time.Now()
	return nil
}

func (m *Memory) UpsertPlayer(_ context.Context, p Player) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	mr, ok := m.rooms[p.RoomCode]
	if !ok {
		return apperr.Newf(apperr.KindNotFound, "room %s not found", p.RoomCode)
	}
	mr.players[p.ID] = p
	return nil
}

func (m *Memory) RemovePlayer(_ context.Context, code, playerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	mr, ok := m.rooms[code]
	if !ok {
		return apperr.Newf(apperr.KindNotFound, "room %s not found", code)
	}
	delete(mr.players, playerID)
	return nil
}

func (m *Memory) AppendCard(_ context.Context, c PlacedCard) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	mr, ok := m.rooms[c.RoomCode]
	if !ok {
		return apperr.Newf(apperr.KindNotFound, "room %s not found", c.RoomCode)
	}
	mr.cards[cardKey{round: c.Round, slot: c.Slot, cardID: c.CardID}] = c
	return nil
}

func (m *Memory) AppendVote(_ context.Context, v Vote) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	mr, ok := m.rooms[v.RoomCode]
	if !ok {
		return apperr.Newf(apperr.KindNotFound, "room %s not found", v.RoomCode)
	}
	if mr.votes[v.Round] == nil {
		mr.votes[v.Round] = make(map[int]Vote)
	}
	mr.votes[v.Round][v.VoterSlot] = v
	return nil
}

func (m *Memory) ListCards(_ context.Context, code string, round int) ([]PlacedCard, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	mr, ok := m.rooms[code]
	if !ok {
		return nil, apperr.Newf(apperr.KindNotFound, "room %s not found", code)
	}
	var out []PlacedCard
	for k, c := range mr.cards {
		if k.round == round {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Slot != out[j].Slot {
			return out[i].Slot < out[j].Slot
		}
		return out[i].CardID < out[j].CardID
	})
	return out, nil
}

func (m *Memory) ListVotes(_ context.Context, code string, round int) ([]Vote, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	mr, ok := m.rooms[code]
	if !ok {
		return nil, apperr.Newf(apperr.KindNotFound, "room %s not found", code)
	}
	var out []Vote
	for _, v := range mr.votes[round] {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].VoterSlot < out[j].VoterSlot })
	return out, nil
}

func (m *Memory) ComputeAndPersistResults(_ context.Context, code string, wolfSlot int) (engine.ScoreResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mr, ok := m.rooms[code]
	if !ok {
		return engine.ScoreResult{}, apperr.Newf(apperr.KindNotFound, "room %s not found", code)
	}

	var votes []engine.Vote
	for _, v := range mr.votes[mr.room.Round] {
		votes = append(votes, engine.Vote{Voter: v.VoterSlot, Target: v.TargetSlot})
	}
	var roster []int
	for _, p := range mr.players {
		roster = append(roster, p.Slot)
	}
	sort.Ints(roster)

	res := engine.Score(votes, wolfSlot, roster, mr.room.Scores)
	mr.room.Scores = res.Cumulative
	mr.room.LastResults = &res
	mr.room.Phase = PhaseResults
	mr.room.UpdatedAt = time.Now()
	return res, nil
}

func (m *Memory) AdvanceRound(_ context.Context, code string, next RoundState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	mr, ok := m.rooms[code]
	if !ok {
		return apperr.Newf(apperr.KindNotFound, "room %s not found", code)
	}
	mr.room.Round++
	mr.room.Phase = PhasePlacement
	mr.room.RoundSeed = next.Seed
	mr.room.Axis = next.Axis
	mr.room.WolfAxis = next.WolfAxis
	mr.room.RoundPlayers = next.PlayerCount
	mr.room.LastResults = nil
	mr.room.UpdatedAt = time.Now()
	for k := range mr.cards {
		if k.round < mr.room.Round {
			delete(mr.cards, k)
		}
	}
	for round := range mr.votes {
		if round < mr.room.Round {
			delete(mr.votes, round)
		}
	}
	return nil
}

func copyRoom(r Room) Room {
	out := r
	out.Scores = make(map[int]int, len(r.Scores))
	for k, v := range r.Scores {
		out.Scores[k] = v
	}
	if r.LastResults != nil {
		res := *r.LastResults
		out.LastResults = &res
	}
	return out
}
