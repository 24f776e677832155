package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	custommiddleware "github.com/mmeshcher/bloodbank-system/internal/middleware"
)

// SetupRouter настраивает HTTP-маршруты и middleware сервиса донорства.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimiddleware.Recoverer)
	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))

	r.Route("/api", func(r chi.Router) {
		r.Use(h.authMiddleware.Middleware)

		r.Get("/users/me", h.Me)

		r.Route("/requests", func(r chi.Router) {
			r.Post("/", h.CreateRequest)
			r.Get("/nearby", h.NearbyRequests)
			r.Get("/all", h.AllRequests)
			r.Get("/my-requests", h.MyRequests)
			r.Get("/my-donations", h.MyDonations)

			r.Post("/{id}/accept", h.AcceptRequest)
			r.Post("/{id}/fulfill", h.FulfillRequest)
			r.Post("/{id}/cancel", h.CancelRequest)
		})

		r.Route("/camps", func(r chi.Router) {
			r.Post("/", h.CreateCamp)
			r.Get("/", h.ListCamps)
			r.Get("/mine", h.MyCamps)
			r.Get("/summary", h.InstitutionSummary)

			r.Post("/{id}/donate", h.DonateToCamp)
			r.Post("/{id}/close", h.CloseCamp)
			r.Post("/{id}/reopen", h.ReopenCamp)
			r.Get("/{id}/donations", h.CampDonations)
			r.Get("/{id}/summary", h.CampSummary)
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
