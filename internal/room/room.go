// Package room implements the per-room state machine. Each room runs one
// actor goroutine; every mutation flows through its inbox, so a room is
// single-writer by construction while separate rooms run independently.
package room

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/hakusai-dev/axiswolf-backend/internal/apperr"
	"github.com/hakusai-dev/axiswolf-backend/internal/catalog"
	"github.com/hakusai-dev/axiswolf-backend/internal/engine"
	"github.com/hakusai-dev/axiswolf-backend/internal/store"
	"github.com/hakusai-dev/axiswolf-backend/internal/types"
)

const (
	HandSize = 5

	defaultReapDelay = 60 * time.Second
	chatHistoryMax   = 50
	minAxisCatalog   = 3 // replacement mutators need an index free of both in-use ones
)

type cardKey struct {
	slot   int
	cardID string
}

// Options tune a room actor. Zero values select the built-in catalogs and
// the default lobby reap delay.
type Options struct {
	Labels    []engine.Label
	Pool      []string
	ReapDelay time.Duration
}

type Room struct {
	inbox chan Msg
	code  string
	st    store.Store
	log   *zap.Logger

	fullLabels []engine.Label
	pool       []string
	reapDelay  time.Duration

	state    store.Room
	players  map[string]store.Player
	cards    map[cardKey]store.PlacedCard // current round only
	votes    map[int]store.Vote           // voter slot -> vote, current round only
	category string

	// Frozen at round start; roster changes never touch these mid-round.
	wolfSlot  int
	startSlot int

	chatLog []types.ChatInfo
	clients map[string]chan types.ServerEvent
	reapGen map[string]int

	ctx    context.Context
	cancel context.CancelFunc
}

// New hydrates a room actor from the store and starts its loop. Mid-round
// hidden state (wolf slot, start slot) is rederived from the persisted seed
// and current roster size.
func New(parent context.Context, code string, st store.Store, log *zap.Logger, opts Options) (*Room, error) {
	state, players, err := st.Get(parent, code)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(parent)
	r := &Room{
		inbox:      make(chan Msg, 64),
		code:       code,
		st:         st,
		log:        log.With(zap.String("room", code)),
		fullLabels: opts.Labels,
		pool:       opts.Pool,
		reapDelay:  opts.ReapDelay,
		state:      state,
		players:    make(map[string]store.Player, len(players)),
		cards:      make(map[cardKey]store.PlacedCard),
		votes:      make(map[int]store.Vote),
		clients:    make(map[string]chan types.ServerEvent),
		reapGen:    make(map[string]int),
		ctx:        ctx,
		cancel:     cancel,
	}
	if r.fullLabels == nil {
		r.fullLabels = catalog.Labels()
	}
	if r.pool == nil {
		r.pool = catalog.Cards()
	}
	if r.reapDelay == 0 {
		r.reapDelay = defaultReapDelay
	}
	for _, p := range players {
		p.Online = false
		r.players[p.ID] = p
	}
	if state.Phase != store.PhaseLobby {
		// Roles were frozen against the roster as it stood at round start,
		// so rederive them from the persisted count, not the live roster.
		n := state.RoundPlayers
		if n == 0 {
			n = len(players)
		}
		r.wolfSlot = engine.WolfSlot(state.RoundSeed, n)
		r.startSlot = engine.StartSlot(engine.StartSeed(code, state.Round), n)
		if err := r.hydrateRound(parent); err != nil {
			cancel()
			return nil, err
		}
	}

	go r.loop()
	return r, nil
}

func (r *Room) Inbox() chan<- Msg { return r.inbox }

func (r *Room) Code() string { return r.code }

func (r *Room) hydrateRound(ctx context.Context) error {
	cards, err := r.st.ListCards(ctx, r.code, r.state.Round)
	if err != nil {
		return err
	}
	for _, c := range cards {
		r.cards[cardKey{slot: c.Slot, cardID: c.CardID}] = c
	}
	votes, err := r.st.ListVotes(ctx, r.code, r.state.Round)
	if err != nil {
		return err
	}
	for _, v := range votes {
		r.votes[v.VoterSlot] = v
	}
	return nil
}

func (r *Room) loop() {
	for {
		select {
		case <-r.ctx.Done():
			r.shutdown()
			return

		case m := <-r.inbox:
			switch msg := m.(type) {
			case Join:
				msg.Reply <- r.handleJoin(msg)
			case Leave:
				r.handleLeave(msg.PlayerID, types.EvtPlayerLeft)
			case Connect:
				msg.Reply <- r.handleConnect(msg)
			case Disconnect:
				r.handleDisconnect(msg)
			case PlaceCard:
				msg.Reply <- r.handlePlaceCard(msg)
			case SubmitVote:
				msg.Reply <- r.handleSubmitVote(msg)
			case AdvancePhase:
				msg.Reply <- r.handleAdvance(msg)
			case SetThemes:
				msg.Reply <- r.handleSetThemes(msg)
			case Chat:
				r.handleChat(msg)
			case RelayVC:
				r.handleRelayVC(msg)
			case GetSnapshot:
				msg.Reply <- r.handleSnapshot(msg)
			case reap:
				r.handleReap(msg)
			case Shutdown:
				r.shutdown()
				return
			}
		}
	}
}

func (r *Room) shutdown() {
	for id, ch := range r.clients {
		close(ch)
		delete(r.clients, id)
	}
	r.cancel()
}

func (r *Room) handleJoin(msg Join) JoinReply {
	if msg.PlayerID == "" {
		return JoinReply{Err: apperr.New(apperr.KindValidation, "player id required")}
	}
	if p, ok := r.players[msg.PlayerID]; ok {
		// Known token: a rejoin is always allowed, mid-game included.
		return JoinReply{Player: p}
	}
	if msg.Name == "" {
		return JoinReply{Err: apperr.New(apperr.KindValidation, "name required")}
	}
	if r.state.Phase != store.PhaseLobby {
		return JoinReply{Err: apperr.New(apperr.KindConflict, "game already in progress")}
	}

	p := store.Player{
		RoomCode: r.code,
		ID:       msg.PlayerID,
		Slot:     len(r.players),
		Name:     msg.Name,
		IsHost:   len(r.players) == 0,
		JoinedAt: time.Now(),
	}
	if err := r.st.UpsertPlayer(r.ctx, p); err != nil {
		return JoinReply{Err: err}
	}
	r.players[p.ID] = p
	r.broadcast(types.PlayerEvent(types.EvtPlayerJoined, playerInfo(p)))
	r.log.Info("player joined", zap.Int("slot", p.Slot), zap.String("name", p.Name))
	return JoinReply{Player: p}
}

func (r *Room) handleLeave(playerID, evt string) {
	p, ok := r.players[playerID]
	if !ok {
		return
	}
	if ch, ok := r.clients[playerID]; ok {
		close(ch)
		delete(r.clients, playerID)
	}
	delete(r.players, playerID)
	if err := r.st.RemovePlayer(r.ctx, r.code, playerID); err != nil {
		r.log.Warn("remove player", zap.Error(err))
	}
	r.broadcast(types.PlayerEvent(evt, playerInfo(p)))
	if p.IsHost {
		r.reassignHost()
	}
	// Slots stay dense in the lobby. Mid-round the roster was frozen at
	// round start, so compaction waits for the next round boundary.
	if r.state.Phase == store.PhaseLobby {
		r.compactSlots()
	}
	r.log.Info("player left", zap.Int("slot", p.Slot))
}

func (r *Room) handleConnect(msg Connect) error {
	p, ok := r.players[msg.PlayerID]
	if !ok {
		return apperr.New(apperr.KindAuthorization, "unknown player for this room")
	}
	if old, ok := r.clients[msg.PlayerID]; ok {
		close(old)
	}
	r.clients[msg.PlayerID] = msg.Outbox
	r.reapGen[msg.PlayerID]++

	p.Online = true
	r.players[msg.PlayerID] = p
	if err := r.st.UpsertPlayer(r.ctx, p); err != nil {
		r.log.Warn("persist online flag", zap.Error(err))
	}

	if msg.Replay {
		for _, c := range r.chatLog {
			// send may drop the connection on a full outbox; stop replaying
			// the moment this one is gone.
			if _, ok := r.clients[msg.PlayerID]; !ok {
				return nil
			}
			r.send(msg.PlayerID, msg.Outbox, types.ChatEvent(c))
		}
	}
	r.broadcast(types.PlayerEvent(types.EvtPlayerOnline, playerInfo(p)))
	return nil
}

func (r *Room) handleDisconnect(msg Disconnect) {
	cur, ok := r.clients[msg.PlayerID]
	if !ok || cur != msg.Outbox {
		return // a newer connection already replaced this one
	}
	delete(r.clients, msg.PlayerID)
	close(cur)

	p, ok := r.players[msg.PlayerID]
	if !ok {
		return
	}
	p.Online = false
	r.players[msg.PlayerID] = p
	if err := r.st.UpsertPlayer(r.ctx, p); err != nil {
		r.log.Warn("persist offline flag", zap.Error(err))
	}
	r.broadcast(types.PlayerEvent(types.EvtPlayerOffline, playerInfo(p)))

	if p.IsHost {
		r.reassignHost()
	}
	if r.state.Phase == store.PhaseLobby {
		r.reapGen[msg.PlayerID]++
		gen := r.reapGen[msg.PlayerID]
		id := msg.PlayerID
		time.AfterFunc(r.reapDelay, func() {
			select {
			case r.inbox <- reap{PlayerID: id, Gen: gen}:
			case <-r.ctx.Done():
			}
		})
	}
}

func (r *Room) handleReap(msg reap) {
	if r.reapGen[msg.PlayerID] != msg.Gen {
		return
	}
	p, ok := r.players[msg.PlayerID]
	if !ok || p.Online || r.state.Phase != store.PhaseLobby {
		return
	}
	r.handleLeave(msg.PlayerID, types.EvtPlayerRemoved)
}

// reassignHost hands the host flag to the lowest-slot connected player,
// falling back to the lowest slot overall so the room never ends up
// host-less while anyone remains.
func (r *Room) reassignHost() {
	var next *store.Player
	for id := range r.players {
		p := r.players[id]
		if p.IsHost {
			p.IsHost = false
			r.players[id] = p
			_ = r.st.UpsertPlayer(r.ctx, p)
		}
	}
	for id := range r.players {
		p := r.players[id]
		if next == nil ||
			(p.Online && !next.Online) ||
			(p.Online == next.Online && p.Slot < next.Slot) {
			cp := p
			next = &cp
		}
	}
	if next == nil {
		return
	}
	next.IsHost = true
	r.players[next.ID] = *next
	if err := r.st.UpsertPlayer(r.ctx, *next); err != nil {
		r.log.Warn("persist host flag", zap.Error(err))
	}
	r.broadcast(types.PlayerEvent(types.EvtHostChanged, playerInfo(*next)))
	r.log.Info("host reassigned", zap.Int("slot", next.Slot))
}

// compactSlots re-densifies slot numbering after a removal and remaps the
// cumulative score keys with it.
func (r *Room) compactSlots() {
	ordered := r.sortedPlayers()
	remap := make(map[int]int, len(ordered))
	for newSlot, p := range ordered {
		remap[p.Slot] = newSlot
	}
	changed := false
	for id := range r.players {
		p := r.players[id]
		if ns := remap[p.Slot]; ns != p.Slot {
			p.Slot = ns
			r.players[id] = p
			_ = r.st.UpsertPlayer(r.ctx, p)
			changed = true
		}
	}
	if !changed {
		return
	}
	scores := make(map[int]int, len(r.state.Scores))
	for slot, pts := range r.state.Scores {
		if ns, ok := remap[slot]; ok {
			scores[ns] = pts
		}
	}
	r.state.Scores = scores
}

func (r *Room) handlePlaceCard(msg PlaceCard) error {
	p, ok := r.players[msg.PlayerID]
	if !ok {
		return apperr.New(apperr.KindAuthorization, "unknown player for this room")
	}
	if r.state.Phase != store.PhasePlacement {
		return apperr.New(apperr.KindValidation, "cards can only be placed during the placement phase")
	}
	if msg.Quadrant < 0 || msg.Quadrant > 3 {
		return apperr.Newf(apperr.KindValidation, "quadrant %d out of range", msg.Quadrant)
	}
	if msg.X < -1 || msg.X > 1 || msg.Y < -1 || msg.Y > 1 {
		return apperr.New(apperr.KindValidation, "offsets must be within [-1, 1]")
	}
	if !r.inHand(p.Slot, msg.CardID) {
		return apperr.Newf(apperr.KindValidation, "card %s is not in your hand", msg.CardID)
	}

	card := store.PlacedCard{
		RoomCode: r.code,
		Round:    r.state.Round,
		Slot:     p.Slot,
		CardID:   msg.CardID,
		Quadrant: msg.Quadrant,
		X:        msg.X,
		Y:        msg.Y,
		PlacedAt: time.Now(),
	}
	if err := r.st.AppendCard(r.ctx, card); err != nil {
		return err
	}
	r.cards[cardKey{slot: p.Slot, cardID: msg.CardID}] = card
	r.broadcast(types.CardPlaced(cardInfo(card)))
	return nil
}

func (r *Room) handleSubmitVote(msg SubmitVote) error {
	p, ok := r.players[msg.PlayerID]
	if !ok {
		return apperr.New(apperr.KindAuthorization, "unknown player for this room")
	}
	if r.state.Phase != store.PhaseVoting {
		return apperr.New(apperr.KindValidation, "votes can only be submitted during the voting phase")
	}
	if !r.slotExists(msg.TargetSlot) {
		return apperr.Newf(apperr.KindValidation, "no player at slot %d", msg.TargetSlot)
	}

	vote := store.Vote{
		RoomCode:   r.code,
		Round:      r.state.Round,
		VoterSlot:  p.Slot,
		TargetSlot: msg.TargetSlot,
		CastAt:     time.Now(),
	}
	if err := r.st.AppendVote(r.ctx, vote); err != nil {
		return err
	}
	r.votes[p.Slot] = vote
	r.broadcast(types.VoteSubmitted(voteInfo(vote)))
	return nil
}

func (r *Room) handleAdvance(msg AdvancePhase) error {
	p, ok := r.players[msg.PlayerID]
	if !ok {
		return apperr.New(apperr.KindAuthorization, "unknown player for this room")
	}
	if !p.IsHost {
		return apperr.New(apperr.KindAuthorization, "only the host can advance the phase")
	}
	if r.state.Phase != msg.Expected {
		return apperr.Newf(apperr.KindConflict, "room is in phase %s, not %s", r.state.Phase, msg.Expected)
	}
	next, ok := store.NextPhase(msg.Expected)
	if !ok {
		return apperr.Newf(apperr.KindValidation, "unknown phase %s", msg.Expected)
	}

	switch msg.Expected {
	case store.PhaseLobby:
		if len(r.players) < 2 {
			return apperr.New(apperr.KindValidation, "at least two players are required to start")
		}
		rs, err := r.newRoundState(r.state.Round)
		if err != nil {
			return err
		}
		if err := r.st.UpdatePhase(r.ctx, r.code, next, &rs); err != nil {
			return err
		}
		r.applyRoundState(rs)
		r.state.Phase = next
		r.broadcast(types.PhaseChanged(string(next)))
		r.log.Info("round started", zap.Int("round", r.state.Round))

	case store.PhasePlacement:
		if err := r.st.UpdatePhase(r.ctx, r.code, next, nil); err != nil {
			return err
		}
		r.state.Phase = next
		r.broadcast(types.PhaseChanged(string(next)))

	case store.PhaseVoting:
		// The CAS guard above makes this reachable exactly once per round:
		// a duplicate request observes phase=results and conflicts out.
		// Scoring and the phase move are one store call, so a crash can
		// never leave merged scores with the phase still at voting.
		res, err := r.st.ComputeAndPersistResults(r.ctx, r.code, r.wolfSlot)
		if err != nil {
			return err
		}
		r.state.Scores = res.Cumulative
		r.state.LastResults = &res
		r.state.Phase = next
		r.broadcast(types.PhaseChanged(string(next)))
		r.log.Info("round scored",
			zap.Int("round", r.state.Round),
			zap.Bool("wolf_caught", res.WolfCaught))

	case store.PhaseResults:
		r.compactSlots()
		rs, err := r.newRoundState(r.state.Round + 1)
		if err != nil {
			return err
		}
		if err := r.st.AdvanceRound(r.ctx, r.code, rs); err != nil {
			return err
		}
		r.state.Round++
		r.state.LastResults = nil
		r.cards = make(map[cardKey]store.PlacedCard)
		r.votes = make(map[int]store.Vote)
		r.applyRoundState(rs)
		r.state.Phase = store.PhasePlacement
		r.broadcast(types.RoundStarted(r.state.Round))
		r.log.Info("round started", zap.Int("round", r.state.Round))
	}
	return nil
}

func (r *Room) handleSetThemes(msg SetThemes) error {
	p, ok := r.players[msg.PlayerID]
	if !ok {
		return apperr.New(apperr.KindAuthorization, "unknown player for this room")
	}
	if !p.IsHost {
		return apperr.New(apperr.KindAuthorization, "only the host can change themes")
	}
	if r.state.Phase != store.PhaseLobby {
		return apperr.New(apperr.KindValidation, "themes can only be changed in the lobby")
	}
	r.category = msg.Category
	r.broadcast(types.ThemesUpdated())
	return nil
}

func (r *Room) handleChat(msg Chat) {
	p, ok := r.players[msg.PlayerID]
	if !ok || msg.Text == "" {
		return
	}
	c := types.ChatInfo{Slot: p.Slot, Name: p.Name, Text: msg.Text}
	r.chatLog = append(r.chatLog, c)
	if len(r.chatLog) > chatHistoryMax {
		r.chatLog = r.chatLog[len(r.chatLog)-chatHistoryMax:]
	}
	r.broadcast(types.ChatEvent(c))
}

func (r *Room) handleRelayVC(msg RelayVC) {
	if _, ok := r.players[msg.PlayerID]; !ok {
		return
	}
	evt := types.PeerRelay(msg.Payload)
	for id, ch := range r.clients {
		if id == msg.PlayerID {
			continue
		}
		r.send(id, ch, evt)
	}
}

func (r *Room) handleSnapshot(msg GetSnapshot) SnapshotReply {
	p, ok := r.players[msg.PlayerID]
	if !ok {
		return SnapshotReply{Err: apperr.New(apperr.KindAuthorization, "unknown player for this room")}
	}

	snap := Snapshot{
		Code:      r.code,
		Phase:     r.state.Phase,
		Round:     r.state.Round,
		StartSlot: r.startSlot,
		Scores:    copyScores(r.state.Scores),
		WolfSlot:  -1,
		Online:    make(map[int]bool, len(r.players)),
		Clients:   len(r.clients),
	}
	for _, pl := range r.sortedPlayers() {
		snap.Players = append(snap.Players, playerInfo(pl))
		snap.Online[pl.Slot] = pl.Online
	}

	if r.state.Phase != store.PhaseLobby {
		axis := r.state.Axis
		if p.Slot == r.wolfSlot {
			axis = r.state.WolfAxis
		}
		snap.Axis = &axis

		hand, err := engine.Hand(r.state.RoundSeed, p.Slot, HandSize, r.pool)
		if err != nil {
			return SnapshotReply{Err: err}
		}
		snap.Hand = hand

		for _, c := range r.sortedCards() {
			snap.Cards = append(snap.Cards, cardInfo(c))
		}
		for _, v := range r.sortedVotes() {
			snap.Votes = append(snap.Votes, voteInfo(v))
		}
	}
	if r.state.Phase == store.PhaseResults {
		snap.WolfSlot = r.wolfSlot
		snap.Results = r.state.LastResults
	}
	return SnapshotReply{Snapshot: snap}
}

// newRoundState derives the atomic seed/axis bundle for round. A category
// filter that leaves too few labels is recovered by falling back to the
// full catalog; the player never sees the difference.
func (r *Room) newRoundState(round int) (store.RoundState, error) {
	labels := r.fullLabels
	if r.category != "" {
		filtered := filterLabels(r.fullLabels, r.category)
		if len(filtered) >= minAxisCatalog {
			labels = filtered
		} else {
			genErr := apperr.Newf(apperr.KindGeneration,
				"category %q has %d labels, need %d", r.category, len(filtered), minAxisCatalog)
			r.log.Warn("axis catalog fallback", zap.Error(genErr))
		}
	}

	seed := engine.RoundSeed(r.code, round)
	axis, err := engine.GenerateAxis(seed, labels)
	if err != nil {
		return store.RoundState{}, apperr.Wrap(apperr.KindGeneration, err, "generate axis")
	}
	wolfAxis, err := engine.MutateAxis(axis, engine.WolfSeed(r.code, round), labels)
	if err != nil {
		return store.RoundState{}, apperr.Wrap(apperr.KindGeneration, err, "mutate axis")
	}
	return store.RoundState{
		Seed:        seed,
		Axis:        axis,
		WolfAxis:    wolfAxis,
		PlayerCount: len(r.players),
	}, nil
}

// applyRoundState installs a freshly generated bundle and freezes the
// round's hidden roles against later roster changes.
func (r *Room) applyRoundState(rs store.RoundState) {
	r.state.RoundSeed = rs.Seed
	r.state.Axis = rs.Axis
	r.state.WolfAxis = rs.WolfAxis
	r.state.RoundPlayers = rs.PlayerCount
	r.wolfSlot = engine.WolfSlot(rs.Seed, rs.PlayerCount)
	r.startSlot = engine.StartSlot(engine.StartSeed(r.code, r.state.Round), rs.PlayerCount)
}

func (r *Room) inHand(slot int, cardID string) bool {
	hand, err := engine.Hand(r.state.RoundSeed, slot, HandSize, r.pool)
	if err != nil {
		return false
	}
	for _, id := range hand {
		if id == cardID {
			return true
		}
	}
	return false
}

func (r *Room) slotExists(slot int) bool {
	for _, p := range r.players {
		if p.Slot == slot {
			return true
		}
	}
	return false
}

func (r *Room) sortedPlayers() []store.Player {
	out := make([]store.Player, 0, len(r.players))
	for _, p := range r.players {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Slot < out[j].Slot })
	return out
}

func (r *Room) sortedCards() []store.PlacedCard {
	out := make([]store.PlacedCard, 0, len(r.cards))
	for _, c := range r.cards {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Slot != out[j].Slot {
			return out[i].Slot < out[j].Slot
		}
		return out[i].CardID < out[j].CardID
	})
	return out
}

func (r *Room) sortedVotes() []store.Vote {
	out := make([]store.Vote, 0, len(r.votes))
	for _, v := range r.votes {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].VoterSlot < out[j].VoterSlot })
	return out
}

// broadcast fans an event out to every connected member. Delivery is
// best-effort per recipient: a full outbox gets closed and dropped so one
// stalled connection cannot hold up the room.
func (r *Room) broadcast(evt types.ServerEvent) {
	for id, ch := range r.clients {
		r.send(id, ch, evt)
	}
}

func (r *Room) send(id string, ch chan types.ServerEvent, evt types.ServerEvent) {
	select {
	case ch <- evt:
	default:
		close(ch)
		delete(r.clients, id)
		r.log.Warn("dropping slow client", zap.String("player", id))
	}
}

func playerInfo(p store.Player) types.PlayerInfo {
	return types.PlayerInfo{Slot: p.Slot, Name: p.Name, IsHost: p.IsHost}
}

func cardInfo(c store.PlacedCard) types.CardInfo {
	return types.CardInfo{Round: c.Round, Slot: c.Slot, CardID: c.CardID, Quadrant: c.Quadrant, X: c.X, Y: c.Y}
}

func voteInfo(v store.Vote) types.VoteInfo {
	return types.VoteInfo{Round: v.Round, VoterSlot: v.VoterSlot, TargetSlot: v.TargetSlot}
}

func copyScores(in map[int]int) map[int]int {
	out := make(map[int]int, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func filterLabels(labels []engine.Label, category string) []engine.Label {
	byCat := catalog.LabelsByCategory(category)
	if len(byCat) == 0 {
		return nil
	}
	// Restrict to entries present in the active label set so filtered and
	// unfiltered rounds index the same way.
	allowed := make(map[engine.Label]bool, len(byCat))
	for _, l := range byCat {
		allowed[l] = true
	}
	var out []engine.Label
	for _, l := range labels {
		if allowed[l] {
			out = append(out, l)
		}
	}
	return out
}
