package httpapi

import (
	"net/http"

	"github.com/now-is/chicommons-maps/internal/auth"
	"github.com/now-is/chicommons-maps/internal/middleware"

	"github.com/go-chi/chi/v5"
)

// Routes mounts the API under /api. Every API route requires an actor.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(api chi.Router) {
		api.Use(auth.RequireActor)
		api.Use(middleware.DataLoaderMiddleware(h.Store.Repos().Snapshots()))

		api.Post("/proposals", h.SubmitProposal)
		api.Get("/proposals", h.ListProposals)
		api.Get("/proposals/{id}", h.GetProposal)
		api.Post("/proposals/{id}/review", h.ReviewProposal)
		api.Get("/entries/{identityId}", h.GetEntry)
		api.Get("/vocabulary", h.ListVocabulary)
		if h.Imports != nil {
			api.Post("/imports", h.ImportEntries)
		}
	})

	return r
}
