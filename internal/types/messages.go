// Package types defines the WebSocket wire protocol. Every message is a
// {type, ...fields} envelope; the set of types is closed and each type has
// exactly one payload schema. Receivers log and ignore unknown types.
package types

import "encoding/json"

// Client -> Server message types.
const (
	MsgPing     = "ping"       // keepalive, never relayed
	MsgChat     = "chat"       // broadcast to the room, kept in history
	MsgVCPeerID = "vc_peer_id" // opaque voice-chat signaling, relayed as-is
)

// ClientMessage is the single client->server envelope.
type ClientMessage struct {
	Type    string          `json:"type"`
	Text    string          `json:"text,omitempty"`    // chat
	Payload json.RawMessage `json:"payload,omitempty"` // vc_peer_id
}

// Server -> Client event types.
const (
	EvtChat          = "chat"
	EvtPlayerJoined  = "player_joined"
	EvtPlayerLeft    = "player_left"
	EvtPlayerOnline  = "player_online"
	EvtPlayerOffline = "player_offline"
	EvtPlayerRemoved = "player_removed"
	EvtHostChanged   = "host_changed"
	EvtPhaseChanged  = "phase_changed"
	EvtCardPlaced    = "card_placed"
	EvtVoteSubmitted = "vote_submitted"
	EvtThemesUpdated = "themes_updated"
	EvtRoundStarted  = "round_started"
)

var knownEvents = map[string]bool{
	EvtChat: true, EvtPlayerJoined: true, EvtPlayerLeft: true,
	EvtPlayerOnline: true, EvtPlayerOffline: true, EvtPlayerRemoved: true,
	EvtHostChanged: true, EvtPhaseChanged: true, EvtCardPlaced: true,
	EvtVoteSubmitted: true, EvtThemesUpdated: true, EvtRoundStarted: true,
	MsgVCPeerID: true,
}

// KnownEventType reports whether a server event type is part of the closed
// catalog. Receivers log and drop anything else.
func KnownEventType(t string) bool { return knownEvents[t] }

// PlayerInfo accompanies the roster events. Most of those events are
// notification-only: clients refetch the room snapshot rather than patching
// local state from this payload.
type PlayerInfo struct {
	Slot   int    `json:"slot"`
	Name   string `json:"name"`
	IsHost bool   `json:"is_host"`
}

// CardInfo is the full card_placed payload. It is safe to upsert directly
// into client state: (round, slot, card_id) uniqueness makes it idempotent.
type CardInfo struct {
	Round    int     `json:"round"`
	Slot     int     `json:"slot"`
	CardID   string  `json:"card_id"`
	Quadrant int     `json:"quadrant"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
}

// VoteInfo is the full vote_submitted payload; idempotent per (round, voter).
type VoteInfo struct {
	Round      int `json:"round"`
	VoterSlot  int `json:"voter_slot"`
	TargetSlot int `json:"target_slot"`
}

type ChatInfo struct {
	Slot int    `json:"slot"`
	Name string `json:"name"`
	Text string `json:"text"`
}

// ServerEvent is the server->client envelope. Exactly one payload field is
// set, matching Type.
type ServerEvent struct {
	Type   string          `json:"type"`
	Player *PlayerInfo     `json:"player,omitempty"`
	Phase  string          `json:"phase,omitempty"`
	Round  *int            `json:"round,omitempty"`
	Card   *CardInfo       `json:"card,omitempty"`
	Vote   *VoteInfo       `json:"vote,omitempty"`
	Chat   *ChatInfo       `json:"chat,omitempty"`
	Peer   json.RawMessage `json:"peer,omitempty"`
}

func PlayerEvent(typ string, p PlayerInfo) ServerEvent {
	return ServerEvent{Type: typ, Player: &p}
}

func PhaseChanged(phase string) ServerEvent {
	return ServerEvent{Type: EvtPhaseChanged, Phase: phase}
}

func RoundStarted(round int) ServerEvent {
	return ServerEvent{Type: EvtRoundStarted, Round: &round}
}

func ThemesUpdated() ServerEvent {
	return ServerEvent{Type: EvtThemesUpdated}
}

func CardPlaced(c CardInfo) ServerEvent {
	return ServerEvent{Type: EvtCardPlaced, Card: &c}
}

func VoteSubmitted(v VoteInfo) ServerEvent {
	return ServerEvent{Type: EvtVoteSubmitted, Vote: &v}
}

func ChatEvent(c ChatInfo) ServerEvent {
	return ServerEvent{Type: EvtChat, Chat: &c}
}

func PeerRelay(payload json.RawMessage) ServerEvent {
	return ServerEvent{Type: MsgVCPeerID, Peer: payload}
}
