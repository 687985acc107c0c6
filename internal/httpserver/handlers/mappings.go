package handlers

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/onionroute/internal/domain"
	"github.com/MrSnakeDoc/onionroute/internal/httpserver/deps"
)

type saveMappingRequest struct {
	TenantID int64  `json:"tenant_id" validate:"required,gt=0"`
	Alias    string `json:"alias" validate:"required"`
}

func ListMappings(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		mappings, err := d.Admin.ListMappings(r.Context())
		if err != nil {
			writeError(w, r, d, err)
			return
		}
		writeJSON(w, http.StatusOK, mappings)
	}
}

func SaveMapping(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req saveMappingRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, d, err)
			return
		}

		err := d.Admin.SaveMapping(r.Context(), req.TenantID, req.Alias)
		writeMutation(w, r, d, http.StatusCreated, "saved", err)
	}
}

func DeleteMapping(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw := chi.URLParam(r, "tenantID")
		tenantID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeError(w, r, d, fmt.Errorf("%w: %q", domain.ErrInvalidTenant, raw))
			return
		}

		err = d.Admin.DeleteMapping(r.Context(), tenantID)
		writeMutation(w, r, d, http.StatusOK, "deleted", err)
	}
}
