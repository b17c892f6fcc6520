/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Logger:     Request logging
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. CORS:       Cross-origin requests for frontend

ROUTE GROUPS:
  /api/subjects/*     Catalog and eligibility
  /api/packages/*     Catalog
  /api/students/*     Directory and credit summaries
  /api/teachers/*     Directory
  /api/purchases/*    Purchase lifecycle and settlement
  /api/attendance/*   Check-in, cancel, history, audit logs
  /api/scenarios/*    Demo scenarios
  /api/reset          Database reset (dev only)
  /healthz            Liveness + database ping
  /metrics            Prometheus metrics

SECURITY NOTE:
  No authentication middleware. All endpoints are public; deploy behind a
  gateway that handles auth.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/studyhall/credit-engine/metrics"
)

// Pinger reports store reachability for the health endpoint.
type Pinger interface {
	Ping(ctx context.Context) error
}

// NewRouter creates a new router with all routes configured. corsOrigins is
// a comma-separated allowlist; empty means the local dev ports.
func NewRouter(h *Handler, ping Pinger, corsOrigins string) *chi.Mux {
	r := chi.NewRouter()

	origins := []string{"http://localhost:5173", "http://localhost:8080"}
	if corsOrigins != "" {
		origins = strings.Split(corsOrigins, ",")
	}

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Route("/subjects", func(r chi.Router) {
			r.Get("/", h.ListSubjects)
			r.Post("/", h.CreateSubject)
			r.Get("/{id}/eligible-students", h.EligibleStudents)
		})

		r.Route("/packages", func(r chi.Router) {
			r.Get("/", h.ListPackages)
			r.Post("/", h.CreatePackage)
		})

		r.Route("/students", func(r chi.Router) {
			r.Get("/", h.ListStudents)
			r.Post("/", h.CreateStudent)
			r.Get("/{id}/credits", h.GetStudentCredits)
		})

		r.Route("/teachers", func(r chi.Router) {
			r.Get("/", h.ListTeachers)
			r.Post("/", h.CreateTeacher)
		})

		r.Route("/purchases", func(r chi.Router) {
			r.Get("/", h.ListPurchases)
			r.Post("/", h.CreatePurchase)
			r.Post("/{id}/settle", h.SettlePurchase)
			r.Delete("/{id}", h.DeletePurchase)
		})

		r.Route("/attendance", func(r chi.Router) {
			r.Get("/", h.SearchAttendance)
			r.Post("/", h.CheckIn)
			r.Post("/{id}/cancel", h.CancelAttendance)
			r.Get("/{id}/logs", h.AttendanceLogs)
		})

		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Post("/load", h.LoadScenario)
		})
		r.Post("/reset", h.Reset)
	})

	// Operational endpoints
	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		if ping != nil {
			ctx, cancel := context.WithTimeout(req.Context(), 2*time.Second)
			defer cancel()
			start := time.Now()
			if err := ping.Ping(ctx); err != nil {
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{
					"status": "degraded", "db": err.Error(),
				})
				return
			}
			metrics.ObserveDBPing(time.Since(start))
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	return r
}
