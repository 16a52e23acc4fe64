package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Router builds the API router with the global middleware stack.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/health"))

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/user/init", h.initUser)

		r.Route("/profile", func(r chi.Router) {
			r.Post("/current", h.createCurrentProfile)
			r.Post("/future", h.createFutureProfiles)
		})

		r.Route("/letters", func(r chi.Router) {
			r.Post("/submit", h.submitLetter)
			r.Get("/status", h.letterStatus)
			r.Get("/inbox/latest", h.latestInbox)
		})

		r.Route("/chat/{futureProfileID}", func(r chi.Router) {
			r.Get("/history", h.chatHistory)
			r.Post("/send", h.sendChatMessage)
		})

		r.Route("/report", func(r chi.Router) {
			r.Post("/generate", h.generateReport)
			r.Get("/status", h.reportStatus)
			r.Get("/latest", h.latestReport)
		})
	})

	return r
}
