package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/onionroute/internal/httpserver/deps"
	"github.com/MrSnakeDoc/onionroute/internal/httpserver/handlers"
)

func init() { RegisterAPI(registerMaintenance) }

func registerMaintenance(r chi.Router, d deps.Deps) {
	r.Get("/warnings", handlers.Warnings(d))
	r.Get("/status", handlers.Status(d))
	r.Post("/snapshot/regenerate", handlers.RegenerateSnapshot(d))
	r.Post("/hook/install", handlers.InstallHook(d))
}
