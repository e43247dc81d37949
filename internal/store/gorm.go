package store

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/hakusai-dev/axiswolf-backend/internal/apperr"
	"github.com/hakusai-dev/axiswolf-backend/internal/engine"
)

type roomRow struct {
	Code         string `gorm:"primaryKey;size:12"`
	Phase        string `gorm:"size:16"`
	Round        int
	RoundSeed    int32
	RoundPlayers int
	AxisJSON     string `gorm:"type:text"`
	WolfAxisJSON string `gorm:"type:text"`
	ScoresJSON   string `gorm:"type:text"`
	ResultsJSON  string `gorm:"type:text"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (roomRow) TableName() string { return "rooms" }

type playerRow struct {
	RoomCode string `gorm:"primaryKey;size:12"`
	PlayerID string `gorm:"primaryKey;size:64"`
	Slot     int
	Name     string `gorm:"size:64"`
	IsHost   bool
	Online   bool
	JoinedAt time.Time
}

func (playerRow) TableName() string { return "players" }

type cardRow struct {
	RoomCode string `gorm:"primaryKey;size:12"`
	Round    int    `gorm:"primaryKey"`
	Slot     int    `gorm:"primaryKey"`
	CardID   string `gorm:"primaryKey;size:16"`
	Quadrant int
	X        float64
	Y        float64
	PlacedAt time.Time
}

func (cardRow) TableName() string { return "placed_cards" }

type voteRow struct {
	RoomCode   string `gorm:"primaryKey;size:12"`
	Round      int    `gorm:"primaryKey"`
	VoterSlot  int    `gorm:"primaryKey"`
	TargetSlot int
	CastAt     time.Time
}

func (voteRow) TableName() string { return "votes" }

// Gorm is the postgres-backed Store. Each room still has exactly one
// logical writer (its actor); the database only has to keep individual
// calls atomic, which transactions below provide.
type Gorm struct {
	db *gorm.DB
}

func OpenGorm(dsn string) (*Gorm, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&roomRow{}, &playerRow{}, &cardRow{}, &voteRow{}); err != nil {
		return nil, err
	}
	return &Gorm{db: db}, nil
}

func (g *Gorm) Create(ctx context.Context, room Room, host Player) error {
	row, err := toRoomRow(room)
	if err != nil {
		return err
	}
	return g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&row).Error; err != nil {
			return err
		}
		return tx.Create(toPlayerRow(host)).Error
	})
}

func (g *Gorm) Get(ctx context.Context, code string) (Room, []Player, error) {
	var row roomRow
	if err := g.db.WithContext(ctx).First(&row, "code = ?", code).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Room{}, nil, apperr.Newf(apperr.KindNotFound, "room %s not found", code)
		}
		return Room{}, nil, err
	}
	room, err := fromRoomRow(row)
	if err != nil {
		return Room{}, nil, err
	}

	var prows []playerRow
	if err := g.db.WithContext(ctx).
		Where("room_code = ?", code).Order("slot").Find(&prows).Error; err != nil {
		return Room{}, nil, err
	}
	players := make([]Player, len(prows))
	for i, pr := range prows {
		players[i] = fromPlayerRow(pr)
	}
	return room, players, nil
}

func (g *Gorm) UpdatePhase(ctx context.Context, code string, phase Phase, next *RoundState) error {
	updates := map[string]any{"phase": string(phase), "updated_at": time.Now()}
	if next != nil {
		axis, err := json.Marshal(next.Axis)
		if err != nil {
			return err
		}
		wolf, err := json.Marshal(next.WolfAxis)
		if err != nil {
			return err
		}
		updates["round_seed"] = next.Seed
		updates["axis_json"] = string(axis)
		updates["wolf_axis_json"] = string(wolf)
		updates["round_players"] = next.PlayerCount
	}
	res := g.db.WithContext(ctx).Model(&roomRow{}).Where("code = ?", code).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperr.Newf(apperr.KindNotFound, "room %s not found", code)
	}
	return nil
}

func (g *Gorm) UpsertPlayer(ctx context.Context, p Player) error {
	return g.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "room_code"}, {Name: "player_id"}},
		UpdateAll: true,
	}).Create(toPlayerRow(p)).Error
}

func (g *Gorm) RemovePlayer(ctx context.Context, code, playerID string) error {
	return g.db.WithContext(ctx).
		Delete(&playerRow{}, "room_code = ? AND player_id = ?", code, playerID).Error
}

func (g *Gorm) AppendCard(ctx context.Context, c PlacedCard) error {
	row := cardRow{
		RoomCode: c.RoomCode, Round: c.Round, Slot: c.Slot, CardID: c.CardID,
		Quadrant: c.Quadrant, X: c.X, Y: c.Y, PlacedAt: c.PlacedAt,
	}
	return g.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "room_code"}, {Name: "round"}, {Name: "slot"}, {Name: "card_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"quadrant", "x", "y", "placed_at"}),
	}).Create(&row).Error
}

func (g *Gorm) AppendVote(ctx context.Context, v Vote) error {
	row := voteRow{
		RoomCode: v.RoomCode, Round: v.Round, VoterSlot: v.VoterSlot,
		TargetSlot: v.TargetSlot, CastAt: v.CastAt,
	}
	return g.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "room_code"}, {Name: "round"}, {Name: "voter_slot"}},
		DoUpdates: clause.AssignmentColumns([]string{"target_slot", "cast_at"}),
	}).Create(&row).Error
}

func (g *Gorm) ListCards(ctx context.Context, code string, round int) ([]PlacedCard, error) {
	var rows []cardRow
	if err := g.db.WithContext(ctx).
		Where("room_code = ? AND round = ?", code, round).
		Order("slot, card_id").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]PlacedCard, len(rows))
	for i, r := range rows {
		out[i] = PlacedCard{
			RoomCode: r.RoomCode, Round: r.Round, Slot: r.Slot, CardID: r.CardID,
			Quadrant: r.Quadrant, X: r.X, Y: r.Y, PlacedAt: r.PlacedAt,
		}
	}
	return out, nil
}

func (g *Gorm) ListVotes(ctx context.Context, code string, round int) ([]Vote, error) {
	var rows []voteRow
	if err := g.db.WithContext(ctx).
		Where("room_code = ? AND round = ?", code, round).
		Order("voter_slot").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]Vote, len(rows))
	for i, r := range rows {
		out[i] = Vote{RoomCode: r.RoomCode, Round: r.Round, VoterSlot: r.VoterSlot, TargetSlot: r.TargetSlot, CastAt: r.CastAt}
	}
	return out, nil
}

func (g *Gorm) ComputeAndPersistResults(ctx context.Context, code string, wolfSlot int) (engine.ScoreResult, error) {
	var res engine.ScoreResult
	err := g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row roomRow
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&row, "code = ?", code).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.Newf(apperr.KindNotFound, "room %s not found", code)
			}
			return err
		}
		room, err := fromRoomRow(row)
		if err != nil {
			return err
		}

		var vrows []voteRow
		if err := tx.Where("room_code = ? AND round = ?", code, room.Round).Find(&vrows).Error; err != nil {
			return err
		}
		votes := make([]engine.Vote, len(vrows))
		for i, v := range vrows {
			votes[i] = engine.Vote{Voter: v.VoterSlot, Target: v.TargetSlot}
		}

		var prows []playerRow
		if err := tx.Where("room_code = ?", code).Find(&prows).Error; err != nil {
			return err
		}
		roster := make([]int, len(prows))
		for i, p := range prows {
			roster[i] = p.Slot
		}
		sort.Ints(roster)

		res = engine.Score(votes, wolfSlot, roster, room.Scores)
		scores, err := json.Marshal(res.Cumulative)
		if err != nil {
			return err
		}
		results, err := json.Marshal(res)
		if err != nil {
			return err
		}
		// Scores and the phase move commit together; a crash can never
		// leave merged totals behind a still-voting room.
		return tx.Model(&roomRow{}).Where("code = ?", code).Updates(map[string]any{
			"phase":        string(PhaseResults),
			"scores_json":  string(scores),
			"results_json": string(results),
			"updated_at":   time.Now(),
		}).Error
	})
	return res, err
}

func (g *Gorm) AdvanceRound(ctx context.Context, code string, next RoundState) error {
	axis, err := json.Marshal(next.Axis)
	if err != nil {
		return err
	}
	wolf, err := json.Marshal(next.WolfAxis)
	if err != nil {
		return err
	}
	return g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row roomRow
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&row, "code = ?", code).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.Newf(apperr.KindNotFound, "room %s not found", code)
			}
			return err
		}
		newRound := row.Round + 1
		if err := tx.Model(&roomRow{}).Where("code = ?", code).Updates(map[string]any{
			"round":          newRound,
			"phase":          string(PhasePlacement),
			"round_seed":     next.Seed,
			"axis_json":      string(axis),
			"wolf_axis_json": string(wolf),
			"round_players":  next.PlayerCount,
			"results_json":   "",
			"updated_at":     time.Now(),
		}).Error; err != nil {
			return err
		}
		if err := tx.Delete(&cardRow{}, "room_code = ? AND round < ?", code, newRound).Error; err != nil {
			return err
		}
		return tx.Delete(&voteRow{}, "room_code = ? AND round < ?", code, newRound).Error
	})
}

func toRoomRow(r Room) (roomRow, error) {
	axis, err := json.Marshal(r.Axis)
	if err != nil {
		return roomRow{}, err
	}
	wolf, err := json.Marshal(r.WolfAxis)
	if err != nil {
		return roomRow{}, err
	}
	scores := r.Scores
	if scores == nil {
		scores = map[int]int{}
	}
	sj, err := json.Marshal(scores)
	if err != nil {
		return roomRow{}, err
	}
	return roomRow{
		Code: r.Code, Phase: string(r.Phase), Round: r.Round, RoundSeed: r.RoundSeed,
		RoundPlayers: r.RoundPlayers,
		AxisJSON:     string(axis), WolfAxisJSON: string(wolf), ScoresJSON: string(sj),
	}, nil
}

func fromRoomRow(row roomRow) (Room, error) {
	r := Room{
		Code: row.Code, Phase: Phase(row.Phase), Round: row.Round, RoundSeed: row.RoundSeed,
		RoundPlayers: row.RoundPlayers,
		Scores:       map[int]int{},
		CreatedAt:    row.CreatedAt, UpdatedAt: row.UpdatedAt,
	}
	if row.AxisJSON != "" {
		if err := json.Unmarshal([]byte(row.AxisJSON), &r.Axis); err != nil {
			return Room{}, err
		}
	}
	if row.WolfAxisJSON != "" {
		if err := json.Unmarshal([]byte(row.WolfAxisJSON), &r.WolfAxis); err != nil {
			return Room{}, err
		}
	}
	if row.ScoresJSON != "" {
		if err := json.Unmarshal([]byte(row.ScoresJSON), &r.Scores); err != nil {
			return Room{}, err
		}
	}
	if row.ResultsJSON != "" {
		var res engine.ScoreResult
		if err := json.Unmarshal([]byte(row.ResultsJSON), &res); err != nil {
			return Room{}, err
		}
		r.LastResults = &res
	}
	return r, nil
}

func toPlayerRow(p Player) *playerRow {
	return &playerRow{
		RoomCode: p.RoomCode, PlayerID: p.ID, Slot: p.Slot, Name: p.Name,
		IsHost: p.IsHost, Online: p.Online, JoinedAt: p.JoinedAt,
	}
}

func fromPlayerRow(row playerRow) Player {
	return Player{
		RoomCode: row.RoomCode, ID: row.PlayerID, Slot: row.Slot, Name: row.Name,
		IsHost: row.IsHost, Online: row.Online, JoinedAt: row.JoinedAt,
	}
}
