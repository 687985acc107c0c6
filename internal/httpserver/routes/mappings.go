package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/onionroute/internal/httpserver/deps"
	"github.com/MrSnakeDoc/onionroute/internal/httpserver/handlers"
)

func init() { RegisterAPI(registerMappings) }

func registerMappings(r chi.Router, d deps.Deps) {
	r.Get("/mappings", handlers.ListMappings(d))
	r.Post("/mappings", handlers.SaveMapping(d))
	r.Delete("/mappings/{tenantID}", handlers.DeleteMapping(d))
}
