/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

ROUTER: chi
  Chi was chosen for:
  - Lightweight and fast
  - Context-based
  - Middleware support
  - RESTful route patterns

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Logger:     Request logging
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. CORS:       Cross-origin requests for frontend
  5. RateLimit:  Per-IP token bucket

ROUTE GROUPS:
  /api/auth/*    Registration and login (public)
  /api/user/*    Account operations (bearer token)
  /api/admin/*   Admin operations (bearer token + admin claim)
  /healthz       Liveness probe (public)

SEE ALSO:
  - handlers.go: Handler implementations
  - middleware.go: Authentication middleware
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))
	r.Use(NewRateLimiter(10, 50).Middleware)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Auth routes (public)
		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", h.Register)
			r.Post("/login", h.Login)
			r.Post("/admin/login", h.AdminLogin)
		})

		// User routes
		r.Route("/user", func(r chi.Router) {
			r.Use(h.Authenticator)

			r.Get("/dashboard", h.Dashboard)
			r.Get("/transactions", h.Transactions)
			r.Get("/referral", h.Referral)

			r.Get("/investments", h.ListMyInvestments)
			r.Post("/investments", h.CreateInvestment)

			r.Get("/payments", h.ListMyPayments)
			r.Post("/payments", h.SubmitPayment)

			r.Get("/withdrawals", h.ListMyWithdrawals)
			r.Post("/withdrawals", h.CreateWithdrawal)
		})

		// Admin routes
		r.Route("/admin", func(r chi.Router) {
			r.Use(h.Authenticator)
			r.Use(AdminOnly)

			r.Get("/overview", h.Overview)
			r.Get("/users", h.ListUsers)
			r.Post("/users/{id}/toggle-block", h.ToggleBlock)

			r.Get("/investments", h.ListAllInvestments)
			r.Post("/confirm-investment", h.ConfirmInvestment)

			r.Get("/payments", h.ListAllPayments)
			r.Post("/confirm-payment", h.ConfirmPayment)

			r.Get("/withdrawals", h.ListAllWithdrawals)
			r.Post("/approve-withdrawal", h.ApproveWithdrawal)

			r.Post("/trigger-roi", h.TriggerAccrual)
		})
	})

	return r
}
