package routers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"notecollab/internal/api"
	"notecollab/internal/session"
	"notecollab/internal/store"
	"notecollab/internal/utils"
)

func New(log *utils.Logger, st store.NoteStore, reg *session.Registry, n api.Notifier) http.Handler {
	h := api.NewHandlers(log, st, reg, n)
	r := chi.NewRouter()

	r.Get("/api/v1/healthz", h.Health)
	r.Get("/api/v1/notes/{id}/presence", h.NotePresence)

	r.Get("/ws/notes", h.NotesWS)

	return r
}
