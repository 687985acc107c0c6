package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/onionroute/internal/httpserver/deps"
	"github.com/MrSnakeDoc/onionroute/internal/httpserver/handlers"
)

func init() { RegisterAPI(registerServiceState) }

func registerServiceState(r chi.Router, d deps.Deps) {
	r.Get("/service-state", handlers.GetServiceState(d))
	r.Put("/service-state", handlers.SetServiceState(d))
}
