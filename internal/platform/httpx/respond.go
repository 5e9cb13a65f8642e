// Package httpx provides HTTP response utilities following RFC7807 problem details.
package httpx

import (
	"encoding/json"
	"net/http"

	"github.com/atelier-erp/atelier/internal/shared"
)

// ProblemDetail represents RFC7807 problem details.
type ProblemDetail struct {
	Type   string `json:"type,omitempty"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// FieldProblem extends ProblemDetail with per-field validation messages.
type FieldProblem struct {
	ProblemDetail
	Fields []shared.FieldError `json:"fields,omitempty"`
}

// StockProblem extends ProblemDetail with the shortfall of an insufficient stock failure.
type StockProblem struct {
	ProblemDetail
	Entity    string `json:"entity"`
	Required  string `json:"required"`
	Remaining string `json:"remaining"`
}

// JSON sends a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// Problem sends an RFC7807 problem details response.
func Problem(w http.ResponseWriter, status int, title, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ProblemDetail{
		Title:  title,
		Status: status,
		Detail: detail,
	})
}

// ValidationProblem sends a 400 problem listing the offending fields.
func ValidationProblem(w http.ResponseWriter, detail string, fields []shared.FieldError) {
	JSON(w, http.StatusBadRequest, FieldProblem{
		ProblemDetail: ProblemDetail{Title: "Validation Failed", Status: http.StatusBadRequest, Detail: detail},
		Fields:        fields,
	})
}

// DecodeJSON decodes JSON request body into the target struct. Unknown fields are rejected.
func DecodeJSON(r *http.Request, target any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(target); err != nil {
		return shared.Validation("body", err.Error())
	}
	return nil
}
