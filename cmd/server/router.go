package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/phrazzld/bookrender/internal/api"
	apiMiddleware "github.com/phrazzld/bookrender/internal/api/middleware"
)

// setupRouter creates the router with all routes and middleware.
func (app *application) setupRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(apiMiddleware.TraceMiddleware(app.logger))
	r.Use(middleware.Recoverer)

	handler := api.NewRenderHandler(app.renderService, app.config.Render.DefaultFormat, app.logger)
	handler.RegisterRoutes(r)

	return r
}
