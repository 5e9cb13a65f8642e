package httpx

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/atelier-erp/atelier/internal/shared"
)

// IdempotencyHeader carries the client supplied request key of a write.
const IdempotencyHeader = "Idempotency-Key"

// URLInt64 parses a positive chi URL parameter.
func URLInt64(r *http.Request, name string) (int64, error) {
	return parsePositive(name, chi.URLParam(r, name))
}

// QueryInt64 parses an optional positive query parameter; missing yields 0.
func QueryInt64(r *http.Request, name string) (int64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	return parsePositive(name, raw)
}

// QueryDecimal parses a required positive decimal query parameter.
func QueryDecimal(r *http.Request, name string) (decimal.Decimal, error) {
	value, err := decimal.NewFromString(r.URL.Query().Get(name))
	if err != nil || !value.IsPositive() {
		return decimal.Zero, shared.Validation(name, "must be a positive number")
	}
	return value, nil
}

func parsePositive(name, raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, shared.Validation(name, "must be a positive integer")
	}
	return id, nil
}

// Bind decodes the JSON body into target and validates it.
func Bind(r *http.Request, v *validator.Validate, target any) error {
	if err := DecodeJSON(r, target); err != nil {
		return err
	}
	return v.Struct(target)
}

// Fail logs unexpected failures and writes the problem response for err.
func Fail(w http.ResponseWriter, r *http.Request, logger *slog.Logger, msg string, err error) {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		RespondValidation(w, err)
		return
	}
	if shared.KindOf(err) == shared.KindStoreFailure && !errors.Is(err, shared.ErrIdempotencyConflict) {
		logger.Error(msg, slog.String("request_id", middleware.GetReqID(r.Context())), slog.Any("error", err))
	} else {
		logger.Info(msg, slog.String("kind", string(shared.KindOf(err))), slog.String("detail", err.Error()))
	}
	RespondError(w, err)
}
