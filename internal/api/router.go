package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func Router(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/v1/health", h.Health)

	r.Route("/v1/run", func(r chi.Router) {
		r.Get("/status", h.RunStatus)
		r.Post("/start", h.RunStart)
		r.Post("/stop", h.RunStop)
	})

	r.Get("/v1/stats", h.Stats)

	r.Get("/v1/progress", h.Progress)
	r.Post("/v1/progress/reset", h.ResetProgress)

	r.Route("/v1/recipients", func(r chi.Router) {
		r.Get("/", h.GetRecipients)
		r.Put("/", h.PutRecipients)
		r.Delete("/{index}", h.DeleteRecipient)
	})

	r.Get("/v1/messages", h.GetMessages)
	r.Put("/v1/messages", h.PutMessages)

	r.Get("/v1/config", h.GetConfig)

	r.Get("/v1/connection", h.ConnectionStatus)
	r.Post("/v1/connection/connect", h.Connect)

	r.Get("/v1/outcomes", h.ListOutcomes)
	r.Get("/v1/events", h.Events)

	r.Handle("/metrics", h.app.Metrics.Handler())

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("pacedsend"))
	})

	return r
}
