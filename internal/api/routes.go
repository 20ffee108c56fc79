package api

import "github.com/go-chi/chi/v5"

// RegisterRoutes mounts the widget backend surface.
func RegisterRoutes(r chi.Router, h *Handler) {
	r.Route("/api/v1/widget", func(r chi.Router) {
		r.Post("/", h.RegisterWidget)
		r.Get("/{widgetID}/status", h.WidgetStatus)
		r.Post("/verify/{widgetID}", h.VerifyWidget)
		r.Get("/config/{widgetID}", h.WidgetConfig)
		r.Post("/session", h.CreateSession)
		r.Post("/message", h.SendMessage)
	})
}
