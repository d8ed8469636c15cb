package documents

import "github.com/go-chi/chi/v5"

// MountRoutes attaches the document routes relative to the kind's collection path.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Post("/preview", h.Preview)
	r.Get("/{id}", h.Show)
	r.Put("/{id}", h.Update)
	r.Post("/{id}/status", h.Transition)
}
