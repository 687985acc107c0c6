package handlers

import (
	"net/http"

	"github.com/MrSnakeDoc/onionroute/internal/httpserver/deps"
	"github.com/MrSnakeDoc/onionroute/internal/logger"
)

func SearchTenants(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, d.Admin.SearchTenants(r.Context(), r.URL.Query().Get("q")))
	}
}

// ReloadTenants triggers a manual reload of the tenants file
func ReloadTenants(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if d.ReloadTrigger == nil {
			writeJSON(w, http.StatusNotFound, errorResponse{Error: "tenants reload is not configured"})
			return
		}

		select {
		case d.ReloadTrigger <- struct{}{}:
			d.Logger.Info("manual tenants reload triggered via endpoint",
				logger.String("remote_ip", r.RemoteAddr))
			writeJSON(w, http.StatusAccepted, mutationResponse{Status: "reload triggered"})
		default:
			d.Logger.Warn("tenants reload already in progress",
				logger.String("remote_ip", r.RemoteAddr))
			writeJSON(w, http.StatusTooManyRequests, errorResponse{Error: "reload already in progress, please wait"})
		}
	}
}
