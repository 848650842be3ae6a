// Package apperr defines the error kinds surfaced by the storefront and admin
// APIs and maps them onto the HTTP result envelope.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var ErrNotFound = errors.New("not found")

type Issue struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError carries every field-level problem found in a payload.
// Cause, when set, names the rule that failed so callers can use errors.Is.
type ValidationError struct {
	Issues []Issue
	Cause  error
}

func NewValidation(field, message string) *ValidationError {
	return &ValidationError{Issues: []Issue{{Field: field, Message: message}}}
}

func (e *ValidationError) Add(field, message string) {
	e.Issues = append(e.Issues, Issue{Field: field, Message: message})
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Issues))
	for _, issue := range e.Issues {
		parts = append(parts, issue.Field+": "+issue.Message)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error { return e.Cause }

// UpstreamError wraps a failure of the payment gateway or object store. The
// upstream message is passed through unchanged.
type UpstreamError struct {
	Service string
	Err     error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s: %v", e.Service, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

type PersistenceError struct {
	Err error
}

func (e *PersistenceError) Error() string {
	return "failed to save data: " + e.Err.Error()
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// ReconciliationError means the customer paid but no order exists.
type ReconciliationError struct {
	Reference string
	PaymentID string
	Err       error
}

func (e *ReconciliationError) Error() string {
	msg := "payment " + e.PaymentID + " was received but the order could not be saved; please contact support"
	if e.Reference != "" {
		msg += " with reference " + e.Reference
	}
	return msg
}

func (e *ReconciliationError) Unwrap() error { return e.Err }

// Result is the envelope every API response is wrapped in.
type Result struct {
	Success bool    `json:"success"`
	Data    any     `json:"data,omitempty"`
	Error   string  `json:"error,omitempty"`
	Issues  []Issue `json:"issues,omitempty"`
}

func OK(data any) Result {
	return Result{Success: true, Data: data}
}

// Describe converts err into an HTTP status and failure envelope.
func Describe(err error) (int, Result) {
	var (
		validation     *ValidationError
		upstream       *UpstreamError
		persistence    *PersistenceError
		reconciliation *ReconciliationError
	)

	switch {
	// A reconciliation error may wrap any other kind.
	case errors.As(err, &reconciliation):
		return http.StatusConflict, Result{Error: reconciliation.Error()}
	case errors.As(err, &validation):
		return http.StatusBadRequest, Result{Error: "validation failed", Issues: validation.Issues}
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound, Result{Error: err.Error()}
	case errors.As(err, &upstream):
		return http.StatusBadGateway, Result{Error: upstream.Error()}
	case errors.As(err, &persistence):
		return http.StatusInternalServerError, Result{Error: persistence.Error()}
	default:
		return http.StatusInternalServerError, Result{Error: "internal server error"}
	}
}
