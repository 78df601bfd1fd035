package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func NewRouter(apiHandler *APIHandler) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Logger)       // Basic request logging
	r.Use(middleware.Recoverer)    // Recover from panics
	r.Use(middleware.StripSlashes) // Ensure consistent path handling

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"status":"ok"}`))
		})
		r.Get("/options", apiHandler.OptionsHandler)

		r.Get("/state", apiHandler.GetStateHandler)
		r.Put("/image", apiHandler.SetImageHandler)
		r.Get("/export.png", apiHandler.ExportHandler)
		r.Post("/reset", apiHandler.ResetHandler)

		r.Route("/boxes", func(r chi.Router) {
			r.Post("/", apiHandler.AddBoxHandler)
			r.Put("/", apiHandler.ReplaceBoxesHandler)
			r.Delete("/", apiHandler.ClearBoxesHandler)
			r.Patch("/{boxID}", apiHandler.UpdateBoxHandler)
			r.Delete("/{boxID}", apiHandler.DeleteBoxHandler)
		})
		r.Put("/selection", apiHandler.SelectHandler)

		r.Route("/canvas", func(r chi.Router) {
			r.Post("/events", apiHandler.CanvasEventHandler)
			r.Put("/viewport", apiHandler.SetViewportHandler)
			r.Delete("/viewport", apiHandler.ResetViewportHandler)
			r.Put("/style", apiHandler.SetDrawStyleHandler)
		})

		r.Get("/chat", apiHandler.GetChatHandler)
		r.Post("/chat", apiHandler.PostMessageHandler)
		r.Delete("/chat", apiHandler.ClearChatHandler)

		r.Get("/settings", apiHandler.GetSettingsHandler)
		r.Put("/settings", apiHandler.PutSettingsHandler)
	})

	return r
}
