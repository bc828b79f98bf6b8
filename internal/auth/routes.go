package auth

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// SetupRoutes mounts under /auth. limit guards the credential endpoints.
func SetupRoutes(h *Handler, requireAuth, limit func(http.Handler) http.Handler) http.Handler {
	r := chi.NewRouter()

	r.With(limit).Post("/login", h.Login)
	r.With(limit).Post("/verify-otp", h.VerifyOTP)
	r.Post("/logout", h.Logout)
	r.With(requireAuth).Get("/me", h.Me)

	return r
}
