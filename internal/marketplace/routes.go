package marketplace

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// SetupRoutes mounts under /marketplace. Everything here is public.
func SetupRoutes(h *Handler) http.Handler {
	r := chi.NewRouter()

	for _, c := range Catalogues {
		r.Get("/"+c.Path, h.List(c))
		r.Get("/"+c.Path+"/{id}", h.Detail(c))
	}
	r.Get("/nearby", h.Nearby)
	r.Get("/search", h.Search)

	return r
}
