package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hakusai-dev/axiswolf-backend/internal/ws"
)

func SetupRoutes(a *API) http.Handler {
	r := chi.NewRouter()

	r.Post("/rooms", a.CreateRoom)
	r.Route("/rooms/{code}", func(r chi.Router) {
		r.Get("/", a.GetSnapshot)
		r.Post("/join", a.JoinRoom)
		r.Post("/leave", a.LeaveRoom)
		r.Get("/cards", a.ListCards)
		r.Post("/cards", a.PlaceCard)
		r.Get("/votes", a.ListVotes)
		r.Post("/votes", a.SubmitVote)
		r.Post("/phase", a.AdvancePhase)
		r.Post("/themes", a.SetThemes)
	})
	r.Get("/healthz", Healthz)
	r.Get("/ws", ws.Handler(a.Hub, a.Log))
	return r
}
