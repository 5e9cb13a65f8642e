// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/atelier-erp/atelier/internal/platform/db"
	"github.com/atelier-erp/atelier/internal/shared"
)

// RespondError maps domain errors to HTTP responses using RFC7807.
func RespondError(w http.ResponseWriter, err error) {
	var domainErr *shared.Error
	switch {
	case errors.Is(err, shared.ErrIdempotencyConflict):
		Problem(w, http.StatusConflict, "Duplicate Request", err.Error())
	case errors.Is(err, db.ErrSerialization):
		Problem(w, http.StatusConflict, "Concurrent Update", err.Error())
	case errors.As(err, &domainErr):
		respondDomain(w, domainErr)
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", shared.UserSafeMessage(err))
	}
}

func respondDomain(w http.ResponseWriter, err *shared.Error) {
	switch err.Kind {
	case shared.KindValidation:
		ValidationProblem(w, err.Error(), err.Fields)
	case shared.KindReferential:
		Problem(w, http.StatusBadRequest, "Invalid Reference", err.Error())
	case shared.KindInsufficientStock:
		JSON(w, http.StatusBadRequest, StockProblem{
			ProblemDetail: ProblemDetail{Title: "Insufficient Stock", Status: http.StatusBadRequest, Detail: err.Error()},
			Entity:        err.Entity,
			Required:      err.Required.String(),
			Remaining:     err.Remaining.String(),
		})
	case shared.KindNotFound:
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", shared.UserSafeMessage(err))
	}
}

// RespondValidation converts validator failures into a field-level problem.
func RespondValidation(w http.ResponseWriter, err error) {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	fields := make([]shared.FieldError, 0, len(verrs))
	for _, fieldErr := range verrs {
		fields = append(fields, shared.FieldError{Field: fieldErr.Namespace(), Message: fieldErr.Tag()})
	}
	RespondError(w, shared.ValidationFields(fields))
}
