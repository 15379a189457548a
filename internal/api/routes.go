package api

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes mounts the rendering endpoints on r.
func (h *RenderHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api/renders", func(r chi.Router) {
		r.Post("/", h.CreateRender)
		r.Get("/{id}", h.GetRenderStatus)
		r.Get("/{id}/download", h.DownloadRender)
	})

	r.Get("/download-book", h.DownloadBook)
	r.Post("/download-book", h.DownloadBook)

	r.Get("/health", h.Health)
}
