package utils

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"contractor-backend/internal/apperr"

	"github.com/rs/zerolog/log"
)

// ErrorResponse is the body of every non-2xx JSON response
type ErrorResponse struct {
	Error string `json:"error"`
}

func JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Warn().Err(err).Msg("Failed to encode response")
	}
}

func RespondError(w http.ResponseWriter, status int, message string) {
	JSON(w, status, ErrorResponse{Error: message})
}

// StatusFor maps an error kind to its HTTP status
func StatusFor(err error) int {
	switch {
	case errors.Is(err, apperr.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, apperr.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, apperr.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, apperr.ErrUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, apperr.ErrRenderFailure):
		return http.StatusBadGateway
	case errors.Is(err, apperr.ErrReconciliationRejected):
		return http.StatusUnauthorized
	}
	return http.StatusInternalServerError
}

// HandleError writes err with the status of its kind. Unclassified errors are
// logged and reported generically.
func HandleError(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusFor(err)
	if status == http.StatusInternalServerError {
		log.Ctx(r.Context()).Error().Err(err).Str("path", r.URL.Path).Msg("Request failed")
	}
	RespondError(w, status, apperr.Message(err))
}

// DecodeJSON decodes a request body of at most 1 MiB into dst. Fields dst
// does not declare are ignored.
func DecodeJSON(r *http.Request, dst interface{}) error {
	if r.Body == nil {
		return apperr.Validation("decode", "request body is required")
	}
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	if err := dec.Decode(dst); err != nil {
		return apperr.Validation("decode", "invalid request body: %v", err)
	}
	return nil
}

// DecodeOptionalJSON is DecodeJSON for bodies that may be empty
func DecodeOptionalJSON(r *http.Request, dst interface{}) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	err := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20)).Decode(dst)
	if err != nil && !errors.Is(err, io.EOF) {
		return apperr.Validation("decode", "invalid request body: %v", err)
	}
	return nil
}
