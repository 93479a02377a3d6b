package utils

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"contractor-backend/internal/apperr"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{apperr.Validation("op", "bad"), http.StatusBadRequest},
		{apperr.NotFound("op", "missing"), http.StatusNotFound},
		{apperr.Conflict("op", "not approved"), http.StatusConflict},
		{apperr.Unavailable("op", "mail", nil), http.StatusServiceUnavailable},
		{apperr.RenderFailure("op", errors.New("boom")), http.StatusBadGateway},
		{apperr.Rejected("op", errors.New("sig")), http.StatusUnauthorized},
		{errors.New("plain"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, StatusFor(tt.err), tt.err.Error())
	}
}

func TestHandleErrorHidesInternalDetails(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/api/invoices/1", nil)

	HandleError(w, r, errors.New("pq: password authentication failed"))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	var body ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "internal server error", body.Error)
}

func TestHandleErrorUsesMessage(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/api/estimates/1", nil)

	HandleError(w, r, apperr.Conflict("convert", "estimate EST-2026-0001 must be approved"))

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "EST-2026-0001 must be approved")
}

func TestDecodeJSON(t *testing.T) {
	var dst struct {
		Title string `json:"title"`
	}
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"title":"Panel","paid_date":"2026-01-01"}`))
	require.NoError(t, DecodeJSON(r, &dst))
	assert.Equal(t, "Panel", dst.Title)

	r = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"title":`))
	err := DecodeJSON(r, &dst)
	assert.True(t, errors.Is(err, apperr.ErrValidation))
}
