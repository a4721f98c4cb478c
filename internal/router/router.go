package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"workbridge/internal/auth"
	"workbridge/internal/config"
	"workbridge/internal/handler"
	"workbridge/internal/middleware"
	"workbridge/internal/observability"
)

const serviceName = "workbridge"

// Handlers groups everything the router mounts.
type Handlers struct {
	Auth    *handler.AuthHandler
	Users   *handler.UserHandler
	Project *handler.ProjectHandler
	Escrow  *handler.EscrowHandler
	Health  *handler.HealthHandler

	// Notifications upgrades to the websocket stream. Optional.
	Notifications http.Handler
}

// New builds the HTTP surface. edgeSessions backs the prefix guard in front
// of the router; authMiddleware backs the per-route checks.
func New(
	cfg *config.Config,
	metrics *observability.Metrics,
	edgeSessions *auth.Sessions,
	authMiddleware *middleware.AuthMiddleware,
	h Handlers,
) http.Handler {
	r := chi.NewRouter()
	rateLimitMiddleware := middleware.NewRateLimitMiddleware(cfg.RateLimitRPM, cfg.AuthRateLimitRPM)

	r.Use(middleware.Recovery)
	r.Use(middleware.Tracing(serviceName))
	r.Use(middleware.Logging)
	r.Use(middleware.Metrics(metrics))
	r.Use(middleware.CORS(cfg.CORSOrigins))
	r.Use(middleware.SecurityHeaders)
	r.Use(rateLimitMiddleware.Handler)
	r.Use(middleware.Session)
	r.Use(middleware.EdgeGuard(edgeSessions, metrics, middleware.EdgeRule{
		Prefix: "/api/v1/admin",
		Roles:  []auth.Role{auth.RoleAdmin},
	}))

	r.Get("/health", h.Health.Live)
	r.Get("/ready", h.Health.Ready)
	r.Handle("/metrics", metrics.Handler())

	anyUser := authMiddleware.RequireRoles()
	admin := authMiddleware.RequireRoles(auth.RoleAdmin)
	client := authMiddleware.RequireRoles(auth.RoleClient)
	freelancer := authMiddleware.RequireRoles(auth.RoleFreelancer)
	party := authMiddleware.RequireRoles(auth.RoleClient, auth.RoleFreelancer)
	clientOrAdmin := authMiddleware.RequireRoles(auth.RoleClient, auth.RoleAdmin)

	r.Route("/api/v1", func(api chi.Router) {
		// Long-lived upgrade; kept out of the timeout group.
		if h.Notifications != nil {
			api.With(anyUser).Get("/notifications/ws", h.Notifications.ServeHTTP)
		}

		api.Group(func(g chi.Router) {
			g.Use(middleware.Timeout(cfg.RequestTimeout))

			g.Route("/auth", func(a chi.Router) {
				a.Post("/register", h.Auth.Register)
				a.Post("/login", h.Auth.Login)
				a.Post("/logout", h.Auth.Logout)
				a.Get("/me", h.Auth.Me)
				a.Get("/session", h.Auth.Session)
			})

			g.Route("/projects", func(p chi.Router) {
				p.With(client).Post("/", h.Project.Create)
				p.With(anyUser).Get("/", h.Project.List)
				p.With(anyUser).Get("/{id}", h.Project.Get)
				p.With(clientOrAdmin).Post("/{id}/close", h.Project.Close)
				p.With(freelancer).Post("/{id}/proposals", h.Project.SubmitProposal)
				p.With(clientOrAdmin).Get("/{id}/proposals", h.Project.ListProposals)
			})

			g.With(client).Post("/proposals/{id}/accept", h.Project.AcceptProposal)

			g.Route("/transactions", func(t chi.Router) {
				t.With(party).Get("/", h.Escrow.ListMine)
				t.With(client).Post("/{id}/release", h.Escrow.Release)
				t.With(admin).Post("/{id}/refund", h.Escrow.Refund)
			})

			g.Route("/admin", func(a chi.Router) {
				a.Use(admin)
				a.Get("/users", h.Users.List)
				a.Get("/users/{id}", h.Users.Get)
				a.Put("/users/{id}/role", h.Users.UpdateRole)
				a.Delete("/users/{id}", h.Users.Delete)
				a.Get("/transactions", h.Escrow.ListAll)
			})
		})
	})

	return r
}
