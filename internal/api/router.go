package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/ocrlabel/internal/labelservice"
)

// NewRouter creates a chi router with the labeling pages and the JSON API.
// sseHandler, if non-nil, is mounted at GET /api/events inside the auth group.
func NewRouter(svc *labelservice.Service, auth AuthOptions, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc)

	r := chi.NewRouter()
	r.Use(NoCache)
	r.Use(AuthMiddleware(auth))

	// Labeling pages.
	r.Get("/", h.Index)
	r.Get("/index", h.Index)
	r.Get("/action", h.Action)
	r.Post("/action", h.Action)
	r.Get("/images/{name}", h.Image)

	r.Route("/api", func(r chi.Router) {
		r.Get("/cursor", h.Status)
		r.Get("/next", h.Next)
		r.Post("/save", h.Save)
		r.Post("/skip", h.Skip)
		r.Post("/jump", h.Jump)
		r.Put("/settings", h.Settings)
		r.Get("/labels", h.Labels)

		if sseHandler != nil {
			r.Get("/events", sseHandler.ServeHTTP)
		}
	})

	return r
}
