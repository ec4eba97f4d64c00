package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-access/internal/auth"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		// Health check (no auth, not rate limited, so probes never see 429)
		r.Get("/health", s.handleHealth)

		r.Group(func(r chi.Router) {
			r.Use(s.rateLimitMiddleware(s.generalLimiter))

			// Credential endpoints carry the stricter limiter on top.
			r.Group(func(r chi.Router) {
				r.Use(s.rateLimitMiddleware(s.authLimiter))
				r.Post("/auth/login", s.handleLogin)
				r.Post("/auth/refresh", s.handleRefresh)
			})

			// WebSocket (auth via ticket, validated in handler)
			r.Get("/ws", s.handleWebSocket)

			// Protected routes
			r.Group(func(r chi.Router) {
				r.Use(s.authMiddleware)

				r.Post("/auth/logout", s.handleLogout)
				r.Get("/auth/me", s.handleMe)
				r.Post("/auth/ws-ticket", s.handleWSTicket)

				r.Route("/locks", func(r chi.Router) {
					r.Get("/", s.handleListLocks)
					r.With(s.requireRole(auth.RoleAdmin, auth.RoleOwner)).Post("/", s.handleCreateLock)

					r.Route("/{id}", func(r chi.Router) {
						r.Get("/", s.handleGetLock)
						r.Post("/lock", s.handleLock)
						r.Post("/unlock", s.handleUnlock)

						r.Group(func(r chi.Router) {
							r.Use(s.requireRole(auth.RoleAdmin, auth.RoleOwner))
							r.Patch("/", s.handleUpdateLock)
							r.Delete("/", s.handleDeleteLock)
							r.Post("/verify", s.handleVerifyLock)
						})
					})
				})

				r.Route("/users", func(r chi.Router) {
					r.Put("/me/password", s.handleChangePassword)
					r.Put("/me/biometric", s.handleSetBiometric)
					r.Delete("/me/biometric", s.handleClearBiometric)

					r.Group(func(r chi.Router) {
						r.Use(s.requireRole(auth.RoleAdmin, auth.RoleOwner))
						r.Get("/", s.handleListUsers)
						r.Post("/", s.handleCreateUser)
						r.Get("/{id}", s.handleGetUser)
						r.Patch("/{id}", s.handleUpdateUser)
						r.Delete("/{id}", s.handleDeleteUser)
						r.Post("/{id}/revoke", s.handleRevokeUserSessions)
					})
				})

				r.With(s.requireRole(auth.RoleAdmin, auth.RoleOwner)).Get("/audit", s.handleListAuditLogs)
			})
		})
	})

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
	})
}
