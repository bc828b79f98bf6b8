package parcels

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// SetupRoutes mounts under /coordinates.
func SetupRoutes(h *Handler, requireAuth func(http.Handler) http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(requireAuth)

	r.Get("/", h.Coordinates)

	return r
}
