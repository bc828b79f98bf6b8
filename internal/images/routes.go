package images

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// ListingRoutes registers the attachment endpoints on the
// /firm-properties router, which already requires a firm member.
func (h *Handler) ListingRoutes(r chi.Router) {
	r.Post("/{id}/images", h.Upload)
	r.Get("/{id}/images", h.List)
	r.Delete("/{id}/images/{imgId}", h.Delete)
}

// MediaRoutes mounts under /media.
func MediaRoutes(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Get("/*", h.Media)
	return r
}
