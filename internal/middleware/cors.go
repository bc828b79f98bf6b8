package middleware

import (
	"net/http"

	"github.com/go-chi/cors"
)

// CORS echoes only allow-listed origins and permits credentials, since the
// session travels in a cookie.
func CORS(origins []string) func(http.Handler) http.Handler {
	return cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		ExposedHeaders:   []string{"Server-Timing", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	})
}
