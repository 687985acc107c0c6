// internal/httpserver/server.go
package httpserver

import (
	"context"
	"errors"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/MrSnakeDoc/onionroute/internal/earlyboot"
	"github.com/MrSnakeDoc/onionroute/internal/httpserver/deps"
	"github.com/MrSnakeDoc/onionroute/internal/httpserver/mw"
	"github.com/MrSnakeDoc/onionroute/internal/httpserver/routes"
	"github.com/MrSnakeDoc/onionroute/internal/logger"
)

// Server wraps an HTTP listener and its handler chain.
type Server struct {
	name    string
	http    *http.Server
	logger  logger.Logger
	started time.Time
}

// NewAdmin builds the operator server (router, middlewares, route registration).
func NewAdmin(addr string, loggerClient logger.Logger, d deps.Deps) *Server {
	r := chi.NewRouter()

	// --- Global middlewares (safe defaults)
	r.Use(middleware.GetHead)
	r.Use(middleware.RequestID)                // X-Request-ID on each request
	r.Use(middleware.Recoverer)                // never crash the process on panic
	r.Use(middleware.Timeout(5 * time.Second)) // per-request timeout
	r.Use(mw.Log(loggerClient))                // structured access logs

	// healthz/readyz at the root, operator API under /api
	routes.RegisterAll(r, d)

	s := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	return &Server{
		name:    "admin",
		http:    s,
		logger:  loggerClient,
		started: d.StartTime,
	}
}

// NewSite builds the public listener standing in for the host application.
// Every request runs through the early boot point before anything else, then
// is forwarded to the tenant platform at upstream.
func NewSite(addr string, upstream *url.URL, loggerClient logger.Logger, d deps.Deps) *Server {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	site := mw.Log(loggerClient)(
		d.Point.Wrap(
			mw.OnionLocation(d.Tenants, d.Store, d.Store.Aliases(), loggerClient)(
				newUpstreamProxy(upstream, loggerClient),
			),
		),
	)
	r.Handle("/*", site)

	s := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	return &Server{
		name:    "site",
		http:    s,
		logger:  loggerClient,
		started: d.StartTime,
	}
}

// newUpstreamProxy forwards to the tenant platform. X-Tenant-ID is only ever
// set from the early router decision, never passed through from the client.
func newUpstreamProxy(upstream *url.URL, log logger.Logger) *httputil.ReverseProxy {
	return &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(upstream)
			pr.SetXForwarded()
			pr.Out.Host = pr.In.Host

			pr.Out.Header.Del(earlyboot.HeaderTenantID)
			if id, ok := earlyboot.TenantFromContext(pr.In.Context()); ok {
				pr.Out.Header.Set(earlyboot.HeaderTenantID, strconv.FormatInt(id, 10))
			}
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			log.Error("upstream request failed",
				logger.String("host", r.Host),
				logger.String("path", r.URL.Path),
				logger.Error(err))
			http.Error(w, http.StatusText(http.StatusBadGateway), http.StatusBadGateway)
		},
	}
}

// Handler exposes the handler chain.
func (s *Server) Handler() http.Handler { return s.http.Handler }

// Start runs the HTTP server (blocks until error or shutdown).
func (s *Server) Start() error {
	s.logger.Info("HTTP server listening",
		logger.String("server", s.name),
		logger.String("addr", s.http.Addr))
	err := s.http.ListenAndServe()
	// http.ErrServerClosed is expected on graceful shutdown.
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Stop gracefully shuts down the server with the provided context deadline.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("HTTP server shutting down...", logger.String("server", s.name))
	return s.http.Shutdown(ctx)
}
