package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func NewRouter(apiHandler *APIHandler) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(requestLogger(apiHandler.logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.StripSlashes)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", apiHandler.HealthHandler)

		r.Post("/sessions", apiHandler.CreateSessionHandler)
		r.Post("/conversation", apiHandler.ConversationHandler)
		r.Get("/conversation/{conversationID}", apiHandler.GetConversationHandler)

		r.Get("/knowledge/search", apiHandler.SearchHandler)
		r.Get("/personal-info", apiHandler.PersonalInfoHandler)
	})

	return r
}
