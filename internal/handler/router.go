package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	custommiddleware "github.com/mmeshcher/billing-system/internal/middleware"
)

// SetupRouter настраивает HTTP-маршруты и middleware биллингового сервиса.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))

	r.Route("/api", func(r chi.Router) {
		r.Route("/loans", func(r chi.Router) {
			r.Post("/", h.CreateLoan)
			r.Get("/schedule", h.GetSchedule)
			r.Get("/{accountID}", h.GetLoan)
		})

		r.Post("/payments", h.ProcessPayment)
		r.Get("/accounts/{accountID}/debt", h.GetDebt)

		r.Route("/admin", func(r chi.Router) {
			r.Post("/billing/run", h.RunBilling)
			r.Post("/interest/run", h.RunInterest)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	return r
}
