package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atelier-erp/atelier/internal/platform/db"
	"github.com/atelier-erp/atelier/internal/shared"
)

func TestRespondErrorStatusMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{"validation", shared.Validation("quantity", "must be positive"), http.StatusBadRequest},
		{"referential", shared.Referential("material", "material 9 does not exist"), http.StatusBadRequest},
		{"not found", shared.NotFound("transaction", 4), http.StatusNotFound},
		{"duplicate", shared.ErrIdempotencyConflict, http.StatusConflict},
		{"serialization", shared.StoreFailure(fmt.Errorf("%w: could not serialize", db.ErrSerialization)), http.StatusConflict},
		{"store", shared.StoreFailure(errors.New("connection reset")), http.StatusInternalServerError},
		{"plain", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			RespondError(rr, tc.err)
			assert.Equal(t, tc.status, rr.Code)
		})
	}
}

func TestRespondErrorHidesStoreDetails(t *testing.T) {
	rr := httptest.NewRecorder()
	RespondError(rr, shared.StoreFailure(errors.New("pq: relation missing")))

	var body ProblemDetail
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "internal error, please try again", body.Detail)
	assert.Equal(t, "application/problem+json", rr.Header().Get("Content-Type"))
}

func TestRespondErrorInsufficientStock(t *testing.T) {
	rr := httptest.NewRecorder()
	RespondError(rr, shared.InsufficientStock("leather", decimal.NewFromInt(12), decimal.NewFromInt(10)))

	require.Equal(t, http.StatusBadRequest, rr.Code)
	var body StockProblem
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "leather", body.Entity)
	assert.Equal(t, "12", body.Required)
	assert.Equal(t, "10", body.Remaining)
}

func TestBindReportsFields(t *testing.T) {
	type payload struct {
		Name string `json:"name" validate:"required"`
	}
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{}`))
	var target payload
	err := Bind(req, validator.New(), &target)
	require.Error(t, err)

	rr := httptest.NewRecorder()
	RespondValidation(rr, err)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	var body FieldProblem
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Len(t, body.Fields, 1)
	assert.Equal(t, "payload.Name", body.Fields[0].Field)
	assert.Equal(t, "required", body.Fields[0].Message)
}

func TestDecodeJSONRejectsUnknownFields(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"x","extra":1}`))
	var target struct {
		Name string `json:"name"`
	}
	err := DecodeJSON(req, &target)
	require.Error(t, err)
	assert.True(t, shared.IsKind(err, shared.KindValidation))
}
