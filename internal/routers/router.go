package routers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"codecollab/internal/api"
	"codecollab/internal/auth"
	"codecollab/internal/metrics"
)

func New(h *api.Handlers, authHandler *auth.Handler) http.Handler {
	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5500", "http://127.0.0.1:5500"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(metrics.Middleware)

	r.Get("/api/v1/healthz", h.Health)
	r.Handle("/metrics", promhttp.Handler())

	r.Post("/api/v1/auth/signup", authHandler.Signup)
	r.Post("/api/v1/auth/login", authHandler.Login)
	r.Get("/api/v1/auth/me", authHandler.Me)
	r.Post("/api/v1/auth/logout", authHandler.Logout)

	r.Group(func(r chi.Router) {
		r.Use(h.RequireAuth)
		r.Get("/api/v1/rooms/{roomId}/versions", h.ListVersions)
		r.Delete("/api/v1/rooms/{roomId}/versions/{index}", h.DeleteVersion)
		r.Post("/api/v1/rooms/{roomId}/restore", h.RestoreVersion)
	})

	r.Get("/ws/collab", h.CollabWS)

	return r
}
