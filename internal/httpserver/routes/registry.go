package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/onionroute/internal/httpserver/deps"
	"github.com/MrSnakeDoc/onionroute/internal/httpserver/mw"
)

type (
	Registrar  func(r chi.Router, d deps.Deps)
	Middleware = func(http.Handler) http.Handler
)

type entry struct {
	reg Registrar
	mws []Middleware
}

var (
	registry    []entry
	apiRegistry []entry
)

// Register a root registrar with optional per-route middlewares.
func Register(reg Registrar, mws ...Middleware) {
	registry = append(registry, entry{reg: reg, mws: mws})
}

// RegisterAPI registers under /api, behind the admin guard.
func RegisterAPI(reg Registrar, mws ...Middleware) {
	apiRegistry = append(apiRegistry, entry{reg: reg, mws: mws})
}

// Called once from httpserver.NewAdmin()
func RegisterAll(r chi.Router, d deps.Deps) {
	mount(r, registry, d)

	r.Route("/api", func(api chi.Router) {
		api.Use(
			mw.AllowOnlyCIDRS(d.AllowedCIDRS, d.TrustProxy, d.Logger),
			mw.EnforceHost(d.AllowedHosts, d.Logger),
			mw.CORS(d.CORSOrigins),
			mw.RateLimit(d.RateLimit),
		)
		mount(api, apiRegistry, d)
	})
}

func mount(r chi.Router, entries []entry, d deps.Deps) {
	for _, e := range entries {
		if len(e.mws) == 0 {
			e.reg(r, d)
			continue
		}
		sub := r.With(e.mws...) // apply per-route middlewares
		e.reg(sub, d)
	}
}
