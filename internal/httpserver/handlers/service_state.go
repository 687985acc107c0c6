package handlers

import (
	"net/http"

	"github.com/MrSnakeDoc/onionroute/internal/httpserver/deps"
)

type setServiceStateRequest struct {
	Disabled *bool  `json:"disabled" validate:"required"`
	Message  string `json:"message" validate:"max=1000"`
}

func GetServiceState(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		state, err := d.Admin.GetServiceState(r.Context())
		if err != nil {
			writeError(w, r, d, err)
			return
		}
		writeJSON(w, http.StatusOK, state)
	}
}

func SetServiceState(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req setServiceStateRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, d, err)
			return
		}

		err := d.Admin.SetServiceState(r.Context(), *req.Disabled, req.Message)
		writeMutation(w, r, d, http.StatusOK, "updated", err)
	}
}
