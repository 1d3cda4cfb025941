package httputil

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/bigandbest/admin-deployed-sub000/pkg/errors"
	"github.com/bigandbest/admin-deployed-sub000/pkg/logger"
	"github.com/bigandbest/admin-deployed-sub000/pkg/validator"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) Response {
	t.Helper()
	var resp Response
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp
}

// --- WriteJSON ---

func TestWriteJSON_SetsContentTypeAndStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteJSON(rec, http.StatusCreated, Response{Data: "hello"})

	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, http.StatusCreated, rec.Code)
}

// --- WriteError ---

func TestWriteError_Mapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"app not found", apperrors.NotFound("warehouse", "9"), http.StatusNotFound, "NOT_FOUND"},
		{"unknown pincode", apperrors.UnknownPincode("400001"), http.StatusNotFound, "UNKNOWN_PINCODE"},
		{"conflict", fmt.Errorf("create division: %w", apperrors.Conflict("pincode 400001 already claimed")), http.StatusConflict, "CONFLICT"},
		{"has dependents", apperrors.HasDependents("warehouse", "1", 2), http.StatusConflict, "HAS_DEPENDENTS"},
		{"validation", apperrors.InvalidInput("zone_ids must not be empty"), http.StatusBadRequest, "VALIDATION_ERROR"},
		{"bare not found", fmt.Errorf("get: %w", apperrors.ErrNotFound), http.StatusNotFound, "NOT_FOUND"},
		{"bare conflict", apperrors.ErrConflict, http.StatusConflict, "CONFLICT"},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, "INTERNAL_ERROR"},
		{"app internal", apperrors.Internal(errors.New("db")), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/api/v1/warehouses/1", nil)

			WriteError(rec, req, tc.err, testLogger())

			assert.Equal(t, tc.status, rec.Code)
			resp := decodeResponse(t, rec)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tc.code, resp.Error.Code)
		})
	}
}

func TestWriteError_InternalHidesMessage(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	WriteError(rec, req, errors.New("connection string leaked"), testLogger())

	resp := decodeResponse(t, rec)
	assert.Equal(t, "an internal error occurred", resp.Error.Message)
}

func TestWriteError_IncludesDetailsAndRequestID(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req = req.WithContext(logger.WithCorrelationID(req.Context(), "corr-1"))

	err := apperrors.Conflict("pincode 400001 already claimed").WithDetail("warehouse_id", "4")
	WriteError(rec, req, err, testLogger())

	resp := decodeResponse(t, rec)
	assert.Equal(t, "4", resp.Error.Details["warehouse_id"])
	assert.Equal(t, "corr-1", resp.Error.RequestID)
}

// --- WriteValidationError ---

func TestWriteValidationError_Fields(t *testing.T) {
	type req struct {
		Name string `json:"name" validate:"required"`
	}
	err := validator.Validate(req{})

	rec := httptest.NewRecorder()
	WriteValidationError(rec, err)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeResponse(t, rec)
	assert.Equal(t, "VALIDATION_ERROR", resp.Error.Code)
	assert.Equal(t, "is required", resp.Error.Fields["name"])
}

func TestWriteValidationError_PlainError(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteValidationError(rec, errors.New("bad json"))

	resp := decodeResponse(t, rec)
	assert.Equal(t, "INVALID_INPUT", resp.Error.Code)
}

// --- Pagination ---

func TestNewPaginatedResponse(t *testing.T) {
	resp := NewPaginatedResponse[int](nil, 41, 2, 20)
	assert.Equal(t, []int{}, resp.Data)
	assert.Equal(t, 3, resp.TotalPages)
	assert.True(t, resp.HasNext)
}

// --- Parsers ---

func TestParseID(t *testing.T) {
	rec := httptest.NewRecorder()
	id, ok := ParseID(rec, "warehouse_id", "42")
	assert.True(t, ok)
	assert.Equal(t, int64(42), id)

	for _, raw := range []string{"", "abc", "0", "-3"} {
		rec := httptest.NewRecorder()
		_, ok := ParseID(rec, "warehouse_id", raw)
		assert.False(t, ok, raw)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	}
}

func TestParseOptionalID(t *testing.T) {
	rec := httptest.NewRecorder()
	id, ok := ParseOptionalID(rec, "variant_id", "")
	assert.True(t, ok)
	assert.Nil(t, id)

	id, ok = ParseOptionalID(rec, "variant_id", "7")
	require.True(t, ok)
	assert.Equal(t, int64(7), *id)
}

func TestParsePincode(t *testing.T) {
	rec := httptest.NewRecorder()
	code, ok := ParsePincode(rec, "400001")
	assert.True(t, ok)
	assert.Equal(t, "400001", code)

	rec = httptest.NewRecorder()
	_, ok = ParsePincode(rec, "4000")
	assert.False(t, ok)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
