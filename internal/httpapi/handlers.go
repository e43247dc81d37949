package httpapi

import (
	"crypto/rand"
	"encoding/json"
	"math/big"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hakusai-dev/axiswolf-backend/internal/apperr"
	"github.com/hakusai-dev/axiswolf-backend/internal/hub"
	"github.com/hakusai-dev/axiswolf-backend/internal/room"
	"github.com/hakusai-dev/axiswolf-backend/internal/store"
)

type API struct {
	Hub   *hub.Hub
	Store store.Store
	Log   *zap.Logger
}

// maxCodeAttempts bounds room-code allocation; 36^6 codes make even one
// retry rare, so hitting the bound means the store is lying about existence.
const maxCodeAttempts = 10

func GenerateCode() (string, error) {
	const charset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	code := make([]byte, 6)
	for i := 0; i < 6; i++ {
		num, err := rand.Int(rand.Reader, big.NewInt(int64(len(charset))))
		if err != nil {
			return "", err
		}
		code[i] = charset[num.Int64()]
	}
	return string(code), nil
}

type createRequest struct {
	Name     string `json:"name"`
	PlayerID string `json:"player_id"`
}

type joinResponse struct {
	Code     string `json:"code"`
	PlayerID string `json:"player_id"`
	Slot     int    `json:"slot"`
	IsHost   bool   `json:"is_host"`
}

func (a *API) CreateRoom(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperr.New(apperr.KindValidation, "invalid request body"))
		return
	}
	if req.Name == "" {
		writeError(w, apperr.New(apperr.KindValidation, "name required"))
		return
	}
	if req.PlayerID == "" {
		req.PlayerID = uuid.NewString()
	}

	var code string
	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		c, err := GenerateCode()
		if err != nil {
			http.Error(w, "failed to generate code", http.StatusInternalServerError)
			return
		}
		_, _, err = a.Store.Get(r.Context(), c)
		if apperr.IsKind(err, apperr.KindNotFound) {
			code = c
			break
		}
		if err != nil {
			// Store failure, not a collision; retrying would hot-loop.
			writeError(w, err)
			return
		}
		a.Log.Info("room code collision, regenerating")
	}
	if code == "" {
		writeError(w, apperr.New(apperr.KindConflict, "could not allocate a room code"))
		return
	}

	host := store.Player{
		RoomCode: code,
		ID:       req.PlayerID,
		Slot:     0,
		Name:     req.Name,
		IsHost:   true,
		JoinedAt: time.Now(),
	}
	if err := a.Store.Create(r.Context(), store.Room{Code: code, Phase: store.PhaseLobby}, host); err != nil {
		writeError(w, err)
		return
	}

	if _, err := a.ensure(code); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, joinResponse{Code: code, PlayerID: req.PlayerID, Slot: 0, IsHost: true})
}

func (a *API) JoinRoom(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperr.New(apperr.KindValidation, "invalid request body"))
		return
	}
	if req.PlayerID == "" {
		req.PlayerID = uuid.NewString()
	}

	rm, err := a.ensure(chi.URLParam(r, "code"))
	if err != nil {
		writeError(w, err)
		return
	}

	reply := make(chan room.JoinReply, 1)
	rm.Inbox() <- room.Join{PlayerID: req.PlayerID, Name: req.Name, Reply: reply}
	jr := <-reply
	if jr.Err != nil {
		writeError(w, jr.Err)
		return
	}
	writeJSON(w, http.StatusOK, joinResponse{
		Code:     jr.Player.RoomCode,
		PlayerID: jr.Player.ID,
		Slot:     jr.Player.Slot,
		IsHost:   jr.Player.IsHost,
	})
}

func (a *API) LeaveRoom(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PlayerID string `json:"player_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.PlayerID == "" {
		writeError(w, apperr.New(apperr.KindValidation, "player_id required"))
		return
	}
	rm, err := a.ensure(chi.URLParam(r, "code"))
	if err != nil {
		writeError(w, err)
		return
	}
	rm.Inbox() <- room.Leave{PlayerID: req.PlayerID}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := a.snapshot(chi.URLParam(r, "code"), r.URL.Query().Get("player_id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (a *API) ListCards(w http.ResponseWriter, r *http.Request) {
	snap, err := a.snapshot(chi.URLParam(r, "code"), r.URL.Query().Get("player_id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"round": snap.Round, "cards": snap.Cards})
}

func (a *API) ListVotes(w http.ResponseWriter, r *http.Request) {
	snap, err := a.snapshot(chi.URLParam(r, "code"), r.URL.Query().Get("player_id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"round": snap.Round, "votes": snap.Votes})
}

func (a *API) PlaceCard(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PlayerID string  `json:"player_id"`
		CardID   string  `json:"card_id"`
		Quadrant int     `json:"quadrant"`
		X        float64 `json:"x"`
		Y        float64 `json:"y"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperr.New(apperr.KindValidation, "invalid request body"))
		return
	}
	rm, err := a.ensure(chi.URLParam(r, "code"))
	if err != nil {
		writeError(w, err)
		return
	}
	reply := make(chan error, 1)
	rm.Inbox() <- room.PlaceCard{
		PlayerID: req.PlayerID, CardID: req.CardID,
		Quadrant: req.Quadrant, X: req.X, Y: req.Y, Reply: reply,
	}
	if err := <-reply; err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) SubmitVote(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PlayerID   string `json:"player_id"`
		TargetSlot int    `json:"target_slot"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperr.New(apperr.KindValidation, "invalid request body"))
		return
	}
	rm, err := a.ensure(chi.URLParam(r, "code"))
	if err != nil {
		writeError(w, err)
		return
	}
	reply := make(chan error, 1)
	rm.Inbox() <- room.SubmitVote{PlayerID: req.PlayerID, TargetSlot: req.TargetSlot, Reply: reply}
	if err := <-reply; err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) AdvancePhase(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PlayerID string `json:"player_id"`
		Expected string `json:"expected"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperr.New(apperr.KindValidation, "invalid request body"))
		return
	}
	rm, err := a.ensure(chi.URLParam(r, "code"))
	if err != nil {
		writeError(w, err)
		return
	}
	reply := make(chan error, 1)
	rm.Inbox() <- room.AdvancePhase{PlayerID: req.PlayerID, Expected: store.Phase(req.Expected), Reply: reply}
	if err := <-reply; err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) SetThemes(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PlayerID string `json:"player_id"`
		Category string `json:"category"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperr.New(apperr.KindValidation, "invalid request body"))
		return
	}
	rm, err := a.ensure(chi.URLParam(r, "code"))
	if err != nil {
		writeError(w, err)
		return
	}
	reply := make(chan error, 1)
	rm.Inbox() <- room.SetThemes{PlayerID: req.PlayerID, Category: req.Category, Reply: reply}
	if err := <-reply; err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (a *API) ensure(code string) (*room.Room, error) {
	if code == "" {
		return nil, apperr.New(apperr.KindValidation, "room code required")
	}
	reply := make(chan hub.EnsureReply, 1)
	a.Hub.Inbox() <- hub.EnsureRoom{Code: code, Reply: reply}
	er := <-reply
	if er.Err != nil {
		return nil, er.Err
	}
	return er.Room, nil
}

func (a *API) snapshot(code, playerID string) (room.Snapshot, error) {
	rm, err := a.ensure(code)
	if err != nil {
		return room.Snapshot{}, err
	}
	reply := make(chan room.SnapshotReply, 1)
	rm.Inbox() <- room.GetSnapshot{PlayerID: playerID, Reply: reply}
	sr := <-reply
	return sr.Snapshot, sr.Err
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch apperr.KindOf(err) {
	case apperr.KindValidation:
		status = http.StatusBadRequest
	case apperr.KindAuthorization:
		status = http.StatusForbidden
	case apperr.KindNotFound:
		status = http.StatusNotFound
	case apperr.KindConflict:
		status = http.StatusConflict
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
