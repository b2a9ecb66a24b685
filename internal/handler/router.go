package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	custommiddleware "github.com/mmeshcher/referral-commissions/internal/middleware"
)

// SetupRouter настраивает HTTP-маршруты и middleware сервиса комиссий.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))

	r.Get("/healthz", h.Healthz)
	// Ответ сжимает GzipMiddleware.
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(h.opts.Gatherer, promhttp.HandlerOpts{
		DisableCompression: true,
	}))

	r.Route("/api", func(r chi.Router) {
		r.With(
			h.limiter.Middleware,
			custommiddleware.WebhookSecret(h.opts.WebhookSecret),
		).Post("/webhook/sales", h.WebhookSale)

		r.Post("/referrers", h.Register)

		r.Route("/referrer", func(r chi.Router) {
			r.Use(h.auth.Require(custommiddleware.RoleReferrer))

			r.Get("/me", h.Me)
			r.Get("/sales", h.MySales)
			r.Get("/badges", h.MyBadges)
			r.Get("/challenges", h.MyChallenges)
			r.Get("/cascade", h.MyCascade)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(h.auth.Require(custommiddleware.RoleAdmin))

			r.Post("/sales", h.CreateAdminSale)
			r.Get("/sales", h.ListSales)
			r.Post("/sales/{id}/paid", h.MarkSalePaid)
			r.Delete("/sales/{id}", h.DeleteSale)

			r.Get("/rates", h.GetGlobalRates)
			r.Put("/rates", h.PutGlobalRates)

			r.Get("/referrers", h.ListReferrers)
			r.Put("/referrers/{id}/status", h.SetReferrerStatus)
			r.Get("/referrers/{id}/rates", h.GetReferrerRates)
			r.Put("/referrers/{id}/rates", h.PutReferrerRates)
			r.Delete("/referrers/{id}/rates", h.DeleteReferrerRates)

			r.Get("/cascade/rate", h.GetCascadeRate)
			r.Put("/cascade/rate", h.PutCascadeRate)
			r.Get("/cascade/commissions", h.ListCascadeCommissions)
			r.Post("/cascade/commissions/{id}/paid", h.MarkCascadePaid)

			r.Post("/challenges", h.CreateChallenge)
			r.Get("/challenges", h.ListChallenges)
			r.Put("/challenges/{id}/active", h.SetChallengeActive)
			r.Get("/challenges/{id}/completions", h.ListChallengeCompletions)
			r.Post("/challenges/{id}/completions/{referrerID}/paid", h.MarkChallengeBonusPaid)
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
