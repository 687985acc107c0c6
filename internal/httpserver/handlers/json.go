package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/MrSnakeDoc/onionroute/internal/domain"
	"github.com/MrSnakeDoc/onionroute/internal/httpserver/deps"
	"github.com/MrSnakeDoc/onionroute/internal/logger"
)

const maxBodyBytes = 64 << 10

var validate = validator.New()

// errBadRequest marks malformed or invalid request bodies.
var errBadRequest = errors.New("bad request")

type errorResponse struct {
	Error string `json:"error"`
}

// mutationResponse answers admin writes. Warning is set when the change was
// stored but the snapshot could not be published.
type mutationResponse struct {
	Status  string `json:"status"`
	Warning string `json:"warning,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// decodeJSON reads a single JSON object into dst and validates it.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return fmt.Errorf("%w: body must contain a single JSON object", errBadRequest)
	}
	if err := validate.Struct(dst); err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, errBadRequest),
		errors.Is(err, domain.ErrInvalidAlias),
		errors.Is(err, domain.ErrInvalidTenant):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrAliasTaken):
		return http.StatusConflict
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// writeError logs server side failures and hides their detail from clients.
func writeError(w http.ResponseWriter, r *http.Request, d deps.Deps, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		d.Logger.Error("admin request failed",
			logger.String("method", r.Method),
			logger.String("path", r.URL.Path),
			logger.Error(err))
		msg = http.StatusText(status)
	}
	writeJSON(w, status, errorResponse{Error: msg})
}

// writeMutation answers a write. A snapshot failure keeps the success status
// and reports the failure as a warning.
func writeMutation(w http.ResponseWriter, r *http.Request, d deps.Deps, status int, label string, err error) {
	switch {
	case err == nil:
		writeJSON(w, status, mutationResponse{Status: label})
	case errors.Is(err, domain.ErrSnapshotIO):
		d.Logger.Warn("change stored but snapshot not published",
			logger.String("path", r.URL.Path),
			logger.Error(err))
		writeJSON(w, status, mutationResponse{Status: label, Warning: err.Error()})
	default:
		writeError(w, r, d, err)
	}
}
