package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestNew(t *testing.T) {
	err := New(CodeValidation, "validation failed", http.StatusUnprocessableEntity)

	if err.Code != CodeValidation {
		t.Errorf("expected code %s, got %s", CodeValidation, err.Code)
	}
	if err.Message != "validation failed" {
		t.Errorf("expected message 'validation failed', got %s", err.Message)
	}
	if err.HTTPStatus != http.StatusUnprocessableEntity {
		t.Errorf("expected status %d, got %d", http.StatusUnprocessableEntity, err.HTTPStatus)
	}
}

func TestWrap(t *testing.T) {
	originalErr := errors.New("database connection failed")
	wrapped := Wrap(originalErr, CodeInternal, "internal error", http.StatusInternalServerError)

	if wrapped.Err != originalErr {
		t.Errorf("expected wrapped error to contain original error")
	}
	if wrapped.Code != CodeInternal {
		t.Errorf("expected code %s, got %s", CodeInternal, wrapped.Code)
	}
}

func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name     string
		appErr   *AppError
		expected string
	}{
		{
			name: "without underlying error",
			appErr: &AppError{
				Code:    CodeNotFound,
				Message: "resource not found",
			},
			expected: "NOT_FOUND: resource not found",
		},
		{
			name: "with underlying error",
			appErr: &AppError{
				Code:    CodeInternal,
				Message: "internal error",
				Err:     errors.New("database connection failed"),
			},
			expected: "INTERNAL_ERROR: internal error (caused by: database connection failed)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.appErr.Error(); got != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestStaleWrite(t *testing.T) {
	err := StaleWrite("booking request", "abc123")

	if err.Code != CodeStaleWrite {
		t.Errorf("expected code %s, got %s", CodeStaleWrite, err.Code)
	}
	if err.HTTPStatus != http.StatusConflict {
		t.Errorf("expected status %d, got %d", http.StatusConflict, err.HTTPStatus)
	}
	if err.Details["id"] != "abc123" {
		t.Errorf("expected id detail to carry the request id, got %v", err.Details["id"])
	}
	if !IsStaleWrite(err) {
		t.Error("IsStaleWrite should be true for a StaleWrite error")
	}
	if IsConflict(err) {
		t.Error("a stale write is not a time conflict")
	}
}

func TestInvalidTransition(t *testing.T) {
	err := InvalidTransition("req1", "rejected", "approved")

	if !IsInvalidTransition(err) {
		t.Error("IsInvalidTransition should be true")
	}
	if err.Details["from"] != "rejected" || err.Details["to"] != "approved" {
		t.Errorf("expected from/to details, got %v", err.Details)
	}
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"transient", Transient("network down", errors.New("dial tcp: refused")), true},
		{"timeout", Timeout("request timed out"), true},
		{"unavailable", Unavailable("request store"), true},
		{"conflict", Conflict("slot overlaps"), false},
		{"validation", Validation("bad input", nil), false},
		{"plain error", errors.New("boom"), false},
		{"wrapped transient", fmt.Errorf("sync: %w", Transient("flaky", nil)), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTransient(tt.err); got != tt.want {
				t.Errorf("IsTransient(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestIsValidation(t *testing.T) {
	if !IsValidation(Validation("nope", nil)) {
		t.Error("expected validation error to be classified as validation")
	}
	if !IsValidation(InvalidInput("empty id")) {
		t.Error("expected invalid input to be classified as validation")
	}
	if IsValidation(Conflict("overlap")) {
		t.Error("conflict is not a validation failure")
	}
}

func TestAsAppError(t *testing.T) {
	plain := errors.New("some error")
	appErr := AsAppError(plain)

	if appErr.Code != CodeInternal {
		t.Errorf("expected plain errors to map to %s, got %s", CodeInternal, appErr.Code)
	}

	conflict := Conflict("slot taken")
	if AsAppError(conflict) != conflict {
		t.Error("expected AppError to pass through unchanged")
	}
}
