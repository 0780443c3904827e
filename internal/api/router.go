package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/sitefeed/internal/site"
)

// NewRouter creates a chi router with all API routes mounted.
// required controls whether requests without a Bearer token are rejected;
// tokens maps accepted tokens to viewers.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(svc *site.Service, required bool, tokens Tokens, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(required, tokens))

	// Feeds.
	r.Get("/views", h.Views)
	r.Get("/feeds/{view}", h.Feed)
	r.Get("/feeds/{view}/*", h.Feed)
	r.Get("/facets/{view}", h.Facets)
	r.Get("/facets/{view}/*", h.Facets)

	// Tags.
	r.Get("/tags", h.TagCloud)
	r.Get("/tags/{tag}", h.TagFeed)

	// Boxes and ordered sets.
	r.Get("/boxes/{capability}", h.Boxes)
	r.Get("/boxes/{capability}/*", h.Boxes)
	r.Get("/orders/{set}", h.GetOrder)
	r.Get("/orders/{set}/*", h.GetOrder)
	r.Post("/orders/{set}", h.Reorder)
	r.Post("/orders/{set}/*", h.Reorder)

	// Items.
	r.Post("/items", h.CreateItem)
	r.Delete("/items/*", h.DeleteItem)
	r.Post("/reindex", h.Reindex)

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
