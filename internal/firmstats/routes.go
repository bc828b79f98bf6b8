package firmstats

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/manzil-bh/manzil-backend/internal/middleware"
)

// SetupRoutes mounts under /firmSpecificData.
func SetupRoutes(h *Handler, requireAuth func(http.Handler) http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(requireAuth, middleware.RequireFirm)

	r.Route("/firm/{firmId}", func(r chi.Router) {
		r.Get("/median-asking-psqft", h.MedianAskingPsqft)
		r.Get("/median-sold-psqft", h.MedianSoldPsqft)
		r.Get("/pipeline-counts", h.PipelineCounts)
	})

	return r
}
