package client

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Common errors returned by the client.
var (
	// ErrRetryExhausted is returned when all retry attempts are exhausted.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrContextCancelled is returned when the context is cancelled during retry.
	ErrContextCancelled = errors.New("context cancelled")

	// ErrQuotaBlocked is returned when the quota tracker refuses a request.
	ErrQuotaBlocked = errors.New("request blocked: quota critical")
)

// ErrorClass represents a classification of ad server failures.
type ErrorClass string

const (
	// ErrorClassAuth represents rejected credentials or missing permissions.
	ErrorClassAuth ErrorClass = "auth"

	// ErrorClassValidation represents a malformed request or statement.
	ErrorClassValidation ErrorClass = "validation"

	// ErrorClassClient represents other 4xx errors.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx server errors.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassQuota represents quota exhaustion (429 or QuotaError).
	ErrorClassQuota ErrorClass = "quota"

	// ErrorClassNetwork represents network/timeout errors.
	ErrorClassNetwork ErrorClass = "network"
)

// APIError is a failure reported by the ad server.
type APIError struct {
	StatusCode int
	ErrorClass ErrorClass
	// Type is the server fault type, e.g. "AuthenticationError".
	Type   string
	Reason string
	Err    error
}

// Error implements the error interface.
func (e *APIError) Error() string {
	msg := e.Reason
	if e.Type != "" {
		msg = e.Type + ": " + e.Reason
	}
	if e.Err != nil {
		return fmt.Sprintf("ad server %s error (status %d): %s: %v",
			e.ErrorClass, e.StatusCode, msg, e.Err)
	}
	return fmt.Sprintf("ad server %s error (status %d): %s",
		e.ErrorClass, e.StatusCode, msg)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *APIError) Unwrap() error {
	return e.Err
}

// ClassOf returns the ErrorClass of err, or "" if err carries none.
func ClassOf(err error) ErrorClass {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorClass
	}
	return ""
}

// classify maps a status code and optional fault type to an ErrorClass.
// The fault type wins when it is known.
func classify(statusCode int, faultType string) ErrorClass {
	switch {
	case strings.HasPrefix(faultType, "Authentication"), strings.HasPrefix(faultType, "Authorization"):
		return ErrorClassAuth
	case strings.HasPrefix(faultType, "Quota"):
		return ErrorClassQuota
	case strings.HasSuffix(faultType, "ValidationError"), strings.HasPrefix(faultType, "Statement"):
		return ErrorClassValidation
	}

	switch {
	case statusCode == http.StatusUnauthorized, statusCode == http.StatusForbidden:
		return ErrorClassAuth
	case statusCode == http.StatusTooManyRequests:
		return ErrorClassQuota
	case statusCode == http.StatusBadRequest:
		return ErrorClassValidation
	case statusCode >= 400 && statusCode < 500:
		return ErrorClassClient
	case statusCode >= 500:
		return ErrorClassServer
	default:
		return ""
	}
}

// shouldRetry determines if an error should be retried based on its classification.
func shouldRetry(errorClass ErrorClass) bool {
	switch errorClass {
	case ErrorClassServer, ErrorClassQuota, ErrorClassNetwork:
		return true
	default:
		// auth, validation and other client errors will fail again
		return false
	}
}
