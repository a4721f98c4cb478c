package middleware

import (
	"net/http"

	"github.com/rs/cors"
)

// CORS allows the listed web origins to send the session cookie. An empty
// list admits no cross-origin callers; rs/cors would otherwise read it as
// "allow all".
func CORS(origins []string) func(http.Handler) http.Handler {
	options := cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		MaxAge:           3600,
		AllowCredentials: true,
	}
	if len(origins) == 0 {
		options.AllowOriginFunc = func(string) bool { return false }
	}

	return cors.New(options).Handler
}
