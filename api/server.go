/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Logger:     Request logging
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. CORS:       Cross-origin requests for the admin frontend

ROUTE GROUPS:
  /api/members/*        Membership lifecycle, payments, debt
  /api/payments/*       Payment approval and deletion
  /api/reports/*        Aggregated debt
  /api/institutions/*   Institution registry
  /api/approvals/*      Generic approval workflow
  /api/scenarios/*      Demo scenarios
  /api/digest/*         Dues digest status and manual run
  /health               Liveness probe

SECURITY NOTE:
  No authentication middleware. Identity (X-Actor-ID) and scope headers
  are expected to be set by the gateway in front of this service.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// RouterOptions tunes the router. Zero value is usable.
type RouterOptions struct {
	AllowedOrigins []string
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, opts RouterOptions) *chi.Mux {
	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:5173", "http://localhost:8080"}
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", HeaderActorID, HeaderScopeProvince, HeaderScopeDistrict},
		AllowCredentials: true,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Member routes
		r.Route("/members", func(r chi.Router) {
			r.Get("/", h.ListMembers)
			r.Post("/", h.ApplyMember)
			r.Get("/prior-cancellation", h.CheckPriorCancellation)
			r.Get("/{id}", h.GetMember)
			r.Delete("/{id}", h.DeleteMember)
			r.Post("/{id}/approve", h.ApproveMember)
			r.Post("/{id}/reject", h.RejectMember)
			r.Post("/{id}/activate", h.ActivateMember)
			r.Post("/{id}/cancel", h.CancelMember)
			r.Get("/{id}/debt", h.GetMemberDebt)
			r.Get("/{id}/payments", h.ListMemberPayments)
			r.Post("/{id}/payments", h.RecordMemberPayment)
		})

		// Payment routes
		r.Route("/payments", func(r chi.Router) {
			r.Post("/{id}/approve", h.ApprovePayment)
			r.Delete("/{id}", h.DeletePayment)
		})

		// Report routes
		r.Get("/reports/debt", h.GetDebtReport)

		// Institution routes
		r.Route("/institutions", func(r chi.Router) {
			r.Post("/", h.CreateInstitution)
			r.Get("/{id}", h.GetInstitution)
		})

		// Approval routes
		r.Route("/approvals", func(r chi.Router) {
			r.Post("/", h.SubmitApproval)
			r.Get("/pending", h.ListPendingApprovals)
			r.Get("/{id}", h.GetApproval)
			r.Post("/{id}/approve", h.ApproveApproval)
			r.Post("/{id}/reject", h.RejectApproval)
		})

		// Digest routes
		r.Route("/digest", func(r chi.Router) {
			r.Get("/", h.GetDigestStatus)
			r.Post("/run", h.RunDigest)
		})

		// Scenario routes
		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/load", h.LoadScenario)
		})
	})

	return r
}
