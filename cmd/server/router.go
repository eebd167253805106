package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/insilica/dockgate/internal/api"
	apiMiddleware "github.com/insilica/dockgate/internal/api/middleware"
)

// setupRouter creates and configures the application router with all
// routes and middleware.
func (app *application) setupRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(apiMiddleware.TraceMiddleware)

	dockingHandler := api.NewDockingHandler(app.dockingService, app.runner.Slots())

	r.Post("/start_docking_uniprot", dockingHandler.StartDocking)
	r.Get("/jobs/{id}", dockingHandler.GetJob)
	r.Get("/health", dockingHandler.Health)
	r.Get("/.well-known/tool.json", dockingHandler.ToolDescriptor)

	return r
}
