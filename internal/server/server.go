// Package server assembles the HTTP router.
package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gluk-w/boxterm/internal/handlers"
	"github.com/gluk-w/boxterm/internal/middleware"
)

// Options controls optional routes.
type Options struct {
	// Metrics is served on /metrics when non-nil.
	Metrics prometheus.Gatherer
}

// New returns the router for h.
func New(h *handlers.Handler, opts Options) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)

	r.Get("/health", h.HealthCheck)
	if opts.Metrics != nil {
		r.Handle("/metrics", promhttp.HandlerFor(opts.Metrics, promhttp.HandlerOpts{}))
	}
	r.Post("/auth/login", h.Login)

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth(h.Sessions))

		r.Get("/", h.Index)
		r.Post("/auth/logout", h.Logout)

		r.Route("/api", func(r chi.Router) {
			r.Get("/me", h.Me)

			r.Get("/sessions", h.ListSessions)
			r.Post("/sessions", h.CreateSession)
			r.Get("/sessions/{name}/messages", h.GetMessages)
			r.Post("/sessions/{name}/run", h.RunCommand)
			r.Post("/sessions/{name}/remove", h.RemoveSession)
			r.Post("/sessions/{name}/remove-with-history", h.RemoveSessionWithHistory)
			r.Get("/sessions/{name}/terminal/ws", h.TerminalWS)

			r.Get("/terminals", h.ListTerminals)

			r.Get("/server-logs", h.GetServerLogs)
			r.Delete("/server-logs", h.ClearServerLogs)
		})
	})

	return r
}
