package handlers

import (
	"io/fs"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/gluk-w/webssh/internal/middleware"
)

// RouterOptions holds the optional parts of the route table.
type RouterOptions struct {
	// Static serves the browser client for every unmatched GET.
	Static fs.FS
	// LoginLimiter guards POST /auth/login.
	LoginLimiter *middleware.RateLimiter
	// GeneralLimiter guards every route.
	GeneralLimiter *middleware.RateLimiter
	// MetricsHandler is mounted at /metrics when set.
	MetricsHandler http.Handler
}

// Router builds the HTTP surface.
func (h *Handler) Router(opts RouterOptions) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestLogger(h.log))
	r.Use(middleware.Recoverer(h.log, h.dev))
	r.Use(middleware.SecurityHeaders)
	if opts.GeneralLimiter != nil {
		r.Use(opts.GeneralLimiter.Middleware(h.log, h.metrics.RateLimited))
	}

	r.Get("/health", h.Health)
	if opts.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", opts.MetricsHandler)
	}

	r.Route("/auth", func(r chi.Router) {
		login := http.Handler(http.HandlerFunc(h.Login))
		if opts.LoginLimiter != nil {
			login = opts.LoginLimiter.Middleware(h.log, h.metrics.RateLimited)(login)
		}
		r.Method(http.MethodPost, "/login", login)
		r.Post("/logout", h.Logout)
		r.With(middleware.RequireAuth(h.sessions)).Get("/status", h.Status)
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth(h.sessions))
		r.Get("/ws", h.TerminalWS)
		r.Get("/terminal/stats", h.TerminalStats)
		r.Get("/api/audit", h.AuditLogs)
	})

	if opts.Static != nil {
		static := middleware.NewStaticHandler(opts.Static)
		r.NotFound(static.ServeHTTP)
	}
	return r
}
