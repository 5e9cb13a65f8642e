package shared

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Kind classifies ledger failures.
type Kind string

const (
	// KindValidation marks malformed or missing input.
	KindValidation Kind = "validation"
	// KindReferential marks references to dimensions that do not exist.
	KindReferential Kind = "referential"
	// KindInsufficientStock marks FIFO requests that cannot be satisfied.
	KindInsufficientStock Kind = "insufficient_stock"
	// KindNotFound marks lookups by id that returned nothing.
	KindNotFound Kind = "not_found"
	// KindStoreFailure marks unexpected persistence failures.
	KindStoreFailure Kind = "store_failure"
)

// ErrNotFound indicates resource not found.
var ErrNotFound = errors.New("not found")

// FieldError names one invalid input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error is the structured failure returned by ledger operations.
type Error struct {
	Kind      Kind
	Entity    string
	Field     string
	Fields    []FieldError
	Required  decimal.Decimal
	Remaining decimal.Decimal
	Message   string
	Err       error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindInsufficientStock:
		return fmt.Sprintf("insufficient stock for %s: required %s, remaining %s", e.Entity, e.Required.String(), e.Remaining.String())
	case KindValidation:
		if e.Message != "" {
			return e.Message
		}
		parts := make([]string, 0, len(e.Fields))
		for _, f := range e.Fields {
			parts = append(parts, f.Field+": "+f.Message)
		}
		return "validation failed: " + strings.Join(parts, "; ")
	case KindStoreFailure:
		if e.Err != nil {
			return "store failure: " + e.Err.Error()
		}
	}
	if e.Message != "" {
		return e.Message
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error {
	if e.Kind == KindNotFound && e.Err == nil {
		return ErrNotFound
	}
	return e.Err
}

// Validation builds a validation error for one field.
func Validation(field, message string) *Error {
	return &Error{Kind: KindValidation, Field: field, Fields: []FieldError{{Field: field, Message: message}}, Message: fmt.Sprintf("%s: %s", field, message)}
}

// ValidationFields builds a validation error listing several fields.
func ValidationFields(fields []FieldError) *Error {
	return &Error{Kind: KindValidation, Fields: fields}
}

// Referential reports a missing referenced dimension.
func Referential(entity, message string) *Error {
	return &Error{Kind: KindReferential, Entity: entity, Message: message}
}

// InsufficientStock reports a FIFO shortfall.
func InsufficientStock(entity string, required, remaining decimal.Decimal) *Error {
	return &Error{Kind: KindInsufficientStock, Entity: entity, Required: required, Remaining: remaining}
}

// NotFound reports a missing record.
func NotFound(entity string, id int64) *Error {
	return &Error{Kind: KindNotFound, Entity: entity, Message: fmt.Sprintf("%s %d not found", entity, id)}
}

// StoreFailure wraps an unexpected persistence error.
func StoreFailure(err error) *Error {
	if err == nil {
		return nil
	}
	var existing *Error
	if errors.As(err, &existing) {
		return existing
	}
	return &Error{Kind: KindStoreFailure, Err: err}
}

// KindOf extracts the error kind, defaulting to StoreFailure.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if errors.Is(err, ErrNotFound) {
		return KindNotFound
	}
	return KindStoreFailure
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

// UserSafeMessage returns a message that never leaks store internals.
func UserSafeMessage(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, ErrIdempotencyConflict) {
		return err.Error()
	}
	var e *Error
	if errors.As(err, &e) && e.Kind != KindStoreFailure {
		return e.Error()
	}
	return "internal error, please try again"
}
