package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Routes constructs the HTTP router with all auth and resource endpoints.
func (a *App) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(a.Logger))
	r.Use(RecoveryMiddleware(a.Logger))
	r.Use(CORSMiddleware(a.Config.CORS))
	if !a.Config.Server.DevMode {
		r.Use(SecurityHeadersMiddleware())
	}

	r.Get("/auth/login", a.handleLogin)
	r.Get("/auth/callback", a.handleCallback)
	r.Get("/auth/me", a.handleMe)
	r.Post("/auth/logout", a.handleLogout)

	r.Route("/api", func(r chi.Router) {
		r.Get("/units", a.handleListUnits)
		r.Post("/units", a.handleCreateUnit)
		r.Get("/tenants", a.handleListTenants)
		r.Post("/tenants", a.handleCreateTenant)
		r.Get("/rentals", a.handleRentals)
	})

	return r
}
