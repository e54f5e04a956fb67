package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all run routes. stream may be nil.
func (h *Handler) RegisterRoutes(r chi.Router, stream *StreamHandler) {
	r.Route("/runs", func(r chi.Router) {
		if stream != nil {
			r.Method("GET", "/stream", stream)
		}
		r.Post("/", h.HandleSubmit)
		r.Post("/sync", h.HandleRunSync)
		r.Get("/", h.HandleList)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.HandleGet)
			r.Get("/evolution", h.HandleEvolution)
			r.Get("/evolution/{iteration}", h.HandleEvolutionAt)
			r.Get("/feedback", h.HandleFeedback)
			r.Get("/voltages", h.HandleVoltages)
		})
	})
}
