/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Logger:     Structured request log line (zerolog)
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. CORS:       Cross-origin requests for the back-office frontend
  5. Auth:       Bearer JWT on every /api route except login

ROUTE GROUPS:
  /healthz                 Liveness
  /api/auth/login          Token issue (public)
  /api/clients/*           Client management and loan origination
  /api/loans/*             Loans, statements, schedule export
  /api/payments/*          Outstanding payments view
  /api/installments/*      Payment recording
  /api/payment-methods     Method catalogue
  /api/admin/*             Admin operations
  /api/scenarios/*         Sample data (dev only)

SEE ALSO:
  - handlers.go: Handler implementations
  - auth/auth.go: Token middleware
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, corsOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(requestLogger(h.Log))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   corsOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Disposition"},
		AllowCredentials: true,
	}))

	r.Get("/healthz", h.Healthz)

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/login", h.Login)

		r.Group(func(r chi.Router) {
			if h.Auth != nil {
				r.Use(h.Auth.Middleware)
			}

			r.Get("/dashboard", h.Dashboard)

			// Client routes
			r.Route("/clients", func(r chi.Router) {
				r.Get("/", h.ListClients)
				r.Post("/", h.CreateClient)
				r.Get("/{id}", h.GetClient)
				r.Get("/{id}/loans", h.ListClientLoans)
				r.Post("/{id}/loans", h.CreateClientLoan)
			})

			// Loan routes
			r.Route("/loans", func(r chi.Router) {
				r.Get("/", h.ListLoans)
				r.Post("/preview", h.PreviewLoan)
				r.Get("/{id}", h.GetLoan)
				r.Get("/{id}/schedule", h.ExportSchedule)
				r.Get("/{id}/payments", h.ListLoanPayments)
			})

			// Payment routes
			r.Get("/payments/outstanding", h.Outstanding)
			r.Post("/installments/{id}/pay", h.PayInstallment)
			r.Get("/payment-methods", h.ListPaymentMethods)
			r.Post("/payment-methods", h.SavePaymentMethod)

			// Admin routes
			r.Post("/admin/reminders", h.TriggerReminders)
			r.Post("/scenarios/sample", h.LoadSample)
		})
	})

	return r
}

// requestLogger writes one structured line per request.
func requestLogger(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()

			defer func() {
				ev := log.Info()
				if ww.Status() >= http.StatusInternalServerError {
					ev = log.Error()
				}
				ev.Str("request_id", middleware.GetReqID(r.Context())).
					Str("method", r.Method).
					Str("path", r.URL.Path).
					Int("status", ww.Status()).
					Int("bytes", ww.BytesWritten()).
					Dur("duration", time.Since(start)).
					Msg("request")
			}()

			next.ServeHTTP(ww, r)
		})
	}
}
