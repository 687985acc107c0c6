package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/onionroute/internal/httpserver/deps"
	"github.com/MrSnakeDoc/onionroute/internal/httpserver/handlers"
)

func init() { RegisterAPI(registerTenants) }

func registerTenants(r chi.Router, d deps.Deps) {
	r.Get("/tenants", handlers.SearchTenants(d))
	r.Post("/tenants/reload", handlers.ReloadTenants(d))
}
