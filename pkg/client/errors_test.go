package client

import (
	"errors"
	"fmt"
	"testing"
)

func TestShouldRetry(t *testing.T) {
	tests := []struct {
		name       string
		errorClass ErrorClass
		expected   bool
	}{
		{"auth error should not retry", ErrorClassAuth, false},
		{"validation error should not retry", ErrorClassValidation, false},
		{"client error should not retry", ErrorClassClient, false},
		{"server error should retry", ErrorClassServer, true},
		{"quota should retry", ErrorClassQuota, true},
		{"network error should retry", ErrorClassNetwork, true},
		{"empty error class should not retry", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := shouldRetry(tt.errorClass); got != tt.expected {
				t.Errorf("shouldRetry(%q) = %v, want %v", tt.errorClass, got, tt.expected)
			}
		})
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		status    int
		faultType string
		expected  ErrorClass
	}{
		{401, "", ErrorClassAuth},
		{403, "", ErrorClassAuth},
		{500, "AuthenticationError", ErrorClassAuth},
		{400, "", ErrorClassValidation},
		{500, "StatementError", ErrorClassValidation},
		{500, "RequiredValidationError", ErrorClassValidation},
		{429, "", ErrorClassQuota},
		{500, "QuotaError", ErrorClassQuota},
		{404, "", ErrorClassClient},
		{503, "", ErrorClassServer},
		{200, "", ""},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d_%s", tt.status, tt.faultType), func(t *testing.T) {
			if got := classify(tt.status, tt.faultType); got != tt.expected {
				t.Errorf("classify(%d, %q) = %q, want %q", tt.status, tt.faultType, got, tt.expected)
			}
		})
	}
}

func TestAPIError_Error(t *testing.T) {
	tests := []struct {
		name     string
		apiError *APIError
		expected string
	}{
		{
			name: "fault with type",
			apiError: &APIError{
				StatusCode: 401,
				ErrorClass: ErrorClassAuth,
				Type:       "AuthenticationError",
				Reason:     "NETWORK_CODE_REQUIRED",
			},
			expected: "ad server auth error (status 401): AuthenticationError: NETWORK_CODE_REQUIRED",
		},
		{
			name: "network error with wrapped error",
			apiError: &APIError{
				ErrorClass: ErrorClassNetwork,
				Reason:     "request failed",
				Err:        errors.New("connection refused"),
			},
			expected: "ad server network error (status 0): request failed: connection refused",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.apiError.Error(); got != tt.expected {
				t.Errorf("Error() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestAPIError_Unwrap(t *testing.T) {
	wrappedErr := errors.New("wrapped error")
	apiError := &APIError{ErrorClass: ErrorClassNetwork, Err: wrappedErr}

	if !errors.Is(apiError, wrappedErr) {
		t.Error("errors.Is should work with wrapped error")
	}
	if ClassOf(fmt.Errorf("outer: %w", apiError)) != ErrorClassNetwork {
		t.Error("ClassOf should find a wrapped APIError")
	}
	if ClassOf(wrappedErr) != "" {
		t.Error("ClassOf of a plain error should be empty")
	}
}
