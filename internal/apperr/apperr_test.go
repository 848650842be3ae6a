package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestDescribe(t *testing.T) {
	errBelow := errors.New("below minimum")

	cases := []struct {
		name       string
		err        error
		wantStatus int
		wantError  string
		wantIssues int
	}{
		{
			name:       "validation",
			err:        &ValidationError{Issues: []Issue{{"a", "is required"}, {"b", "is required"}}, Cause: errBelow},
			wantStatus: http.StatusBadRequest,
			wantError:  "validation failed",
			wantIssues: 2,
		},
		{
			name:       "wrapped not found",
			err:        fmt.Errorf("order %w", ErrNotFound),
			wantStatus: http.StatusNotFound,
			wantError:  "order not found",
		},
		{
			name:       "upstream passes message through",
			err:        &UpstreamError{Service: "payment gateway", Err: errors.New("Authentication failed")},
			wantStatus: http.StatusBadGateway,
			wantError:  "payment gateway: Authentication failed",
		},
		{
			name:       "persistence appends cause",
			err:        &PersistenceError{Err: errors.New("connection refused")},
			wantStatus: http.StatusInternalServerError,
			wantError:  "failed to save data: connection refused",
		},
		{
			name:       "reconciliation",
			err:        &ReconciliationError{Reference: "ref-1", PaymentID: "pay_1"},
			wantStatus: http.StatusConflict,
			wantError:  "payment pay_1 was received but the order could not be saved; please contact support with reference ref-1",
		},
		{
			name:       "unknown errors are hidden",
			err:        errors.New("boom"),
			wantStatus: http.StatusInternalServerError,
			wantError:  "internal server error",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, result := Describe(tc.err)
			if status != tc.wantStatus {
				t.Errorf("expected status %d, got %d", tc.wantStatus, status)
			}
			if result.Success {
				t.Error("expected success=false")
			}
			if result.Error != tc.wantError {
				t.Errorf("expected error %q, got %q", tc.wantError, result.Error)
			}
			if len(result.Issues) != tc.wantIssues {
				t.Errorf("expected %d issues, got %d", tc.wantIssues, len(result.Issues))
			}
		})
	}
}

func TestValidationError_Unwrap(t *testing.T) {
	cause := errors.New("invalid status")
	err := fmt.Errorf("update: %w", &ValidationError{Issues: []Issue{{"status", "bad"}}, Cause: cause})

	if !errors.Is(err, cause) {
		t.Error("expected errors.Is to find the cause")
	}

	var verr *ValidationError
	if !errors.As(err, &verr) || verr.Issues[0].Field != "status" {
		t.Errorf("expected ValidationError with status issue, got %v", err)
	}
}

func TestDescribe_ReconciliationWins(t *testing.T) {
	err := &ReconciliationError{
		Reference: "ref-2",
		PaymentID: "pay_2",
		Err:       NewValidation("ecommerce.items[0].quantity", "only 0 left in stock"),
	}

	status, result := Describe(err)
	if status != http.StatusConflict {
		t.Errorf("expected 409, got %d", status)
	}
	if len(result.Issues) != 0 {
		t.Errorf("expected no issues, got %+v", result.Issues)
	}
}
