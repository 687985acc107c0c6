package handlers

import (
	"errors"
	"net/http"

	"github.com/MrSnakeDoc/onionroute/internal/earlyboot"
	"github.com/MrSnakeDoc/onionroute/internal/httpserver/deps"
	"github.com/MrSnakeDoc/onionroute/internal/logger"
)

type installHookResponse struct {
	Result string `json:"result"`
	Active bool   `json:"active"`
}

func Warnings(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, d.Admin.Warnings())
	}
}

func RegenerateSnapshot(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := d.Admin.RegenerateSnapshot(r.Context()); err != nil {
			writeError(w, r, d, err)
			return
		}
		writeJSON(w, http.StatusOK, mutationResponse{Status: "regenerated"})
	}
}

// InstallHook patches the bootstrap config, then registers the early router
// into the running site when possible.
func InstallHook(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := d.Admin.InstallHook(r.Context())
		if err != nil {
			writeError(w, r, d, err)
			return
		}

		if d.ActivateHook != nil {
			if err := d.ActivateHook(); err != nil && !errors.Is(err, earlyboot.ErrAlreadyRegistered) {
				d.Logger.Warn("early router activation failed", logger.Error(err))
			}
		}

		active := d.Point != nil && d.Point.Registered()
		writeJSON(w, http.StatusOK, installHookResponse{Result: res.String(), Active: active})
	}
}
