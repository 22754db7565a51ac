package server

import (
	"net/http"

	"github.com/cloo-solutions/replygate/internal/api"
	"github.com/cloo-solutions/replygate/internal/api/handlers"
	"github.com/cloo-solutions/replygate/internal/api/middleware"
	"github.com/go-chi/chi/v5"
)

type RouterConfig struct {
	KnowledgeHandler *handlers.KnowledgeHandler
	ResponseHandler  *handlers.ResponseHandler
	SettingsHandler  *handlers.SettingsHandler
	StreamHandler    *handlers.StreamHandler
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	const maxBodyBytes int64 = 5 * 1024 * 1024

	r.Use(middleware.RequestID)
	r.Use(middleware.Reviewer)
	r.Use(middleware.SentryMiddleware)
	r.Use(middleware.AccessLog)
	r.Use(middleware.MaxBodyBytes(maxBodyBytes))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		api.Success(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/knowledge", func(r chi.Router) {
		r.Post("/", cfg.KnowledgeHandler.Create)
		r.Get("/", cfg.KnowledgeHandler.List)
		r.Post("/search", cfg.KnowledgeHandler.Search)
		r.Get("/{id}", cfg.KnowledgeHandler.Get)
		r.Put("/{id}", cfg.KnowledgeHandler.Update)
		r.Delete("/{id}", cfg.KnowledgeHandler.Delete)
	})

	r.Route("/tickets/{id}/responses", func(r chi.Router) {
		r.Post("/", cfg.ResponseHandler.Generate)
		r.Get("/", cfg.ResponseHandler.ListByTicket)
	})

	r.Route("/responses", func(r chi.Router) {
		r.Get("/pending", cfg.ResponseHandler.ListPending)
		r.Get("/{id}", cfg.ResponseHandler.Get)
		r.Get("/{id}/history", cfg.ResponseHandler.History)
		r.Post("/{id}/approve", cfg.ResponseHandler.Approve)
		r.Post("/{id}/reject", cfg.ResponseHandler.Reject)
		r.Post("/{id}/edit", cfg.ResponseHandler.Edit)
		r.Post("/{id}/send", cfg.ResponseHandler.Send)
	})

	r.Get("/settings/ai", cfg.SettingsHandler.Get)
	r.Put("/settings/ai", cfg.SettingsHandler.Put)

	r.Get("/stream", cfg.StreamHandler.Stream)

	return r
}
