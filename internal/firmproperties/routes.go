package firmproperties

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/manzil-bh/manzil-backend/internal/middleware"
)

// SetupRoutes mounts under /firm-properties. Every route needs a caller
// attached to a firm. extra registers nested routes such as
// /{id}/images.
func SetupRoutes(h *Handler, requireAuth func(http.Handler) http.Handler, extra ...func(chi.Router)) http.Handler {
	r := chi.NewRouter()
	r.Use(requireAuth, middleware.RequireFirm)

	r.Post("/", h.Create)
	r.Get("/", h.List)
	r.Get("/parcel/{parcelNo}", h.ListByParcel)
	r.Get("/{id}", h.Get)
	r.Patch("/{id}", h.Update)
	r.Delete("/{id}", h.Delete)

	for _, register := range extra {
		register(r)
	}
	return r
}
