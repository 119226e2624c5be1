package security

import (
	"net/http"

	"github.com/go-chi/cors"
)

// CORS allows the sponsorship front-end origins to call the JSON API. An
// empty list allows any origin without credentials, matching a public form.
func CORS(origins []string) func(http.Handler) http.Handler {
	opts := cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID", "Retry-After"},
		AllowCredentials: len(origins) > 0,
		MaxAge:           300,
	}
	if len(origins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}
	return cors.Handler(opts)
}
