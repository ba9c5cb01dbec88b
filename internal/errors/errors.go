// Package errors defines the categorized error taxonomy shared by the sync
// engine, services and the HTTP API.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Category groups errors by their origin.
type Category string

const (
	CategoryUserInput  Category = "user_input"
	CategoryCredential Category = "credential"
	CategoryExchange   Category = "exchange"
	CategoryDatabase   Category = "database"
	CategoryCache      Category = "cache"
	CategoryNotFound   Category = "not_found"
	CategoryConflict   Category = "conflict"
	CategorySystem     Category = "system"
)

// CategorizedError carries a category, an HTTP status and a stable code
// alongside the human-readable message.
type CategorizedError struct {
	Category   Category
	StatusCode int
	Code       string
	Message    string
	Details    map[string]interface{}
	Cause      error
}

func (e *CategorizedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *CategorizedError) Unwrap() error {
	return e.Cause
}

// NewCredentialError reports a missing or malformed API key/secret. Sync never
// starts when this is returned.
func NewCredentialError(message string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryCredential,
		StatusCode: http.StatusBadRequest,
		Code:       "CREDENTIAL_ERROR",
		Message:    message,
	}
}

// NewDecryptionError reports stored ciphertext that failed authentication.
// The integration is unusable until the user reconnects.
func NewDecryptionError(cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryCredential,
		StatusCode: http.StatusConflict,
		Code:       "DECRYPTION_ERROR",
		Message:    "stored credentials could not be decrypted; reconnect the integration",
		Cause:      cause,
	}
}

// NewExchangeAPIError reports a non-2xx response from the exchange. Status and
// body are kept for diagnostics.
func NewExchangeAPIError(status int, body string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryExchange,
		StatusCode: http.StatusBadGateway,
		Code:       "EXCHANGE_API_ERROR",
		Message:    fmt.Sprintf("exchange returned status %d", status),
		Details: map[string]interface{}{
			"status": status,
			"body":   body,
		},
	}
}

// NewExchangeTransportError reports a network-level failure reaching the
// exchange (connection refused, timeout). Always retryable.
func NewExchangeTransportError(cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryExchange,
		StatusCode: http.StatusBadGateway,
		Code:       "EXCHANGE_TRANSPORT_ERROR",
		Message:    "exchange request failed",
		Cause:      cause,
	}
}

// NewExchangeResponseError reports a response body that could not be parsed.
func NewExchangeResponseError(cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryExchange,
		StatusCode: http.StatusBadGateway,
		Code:       "EXCHANGE_RESPONSE_ERROR",
		Message:    "exchange response could not be parsed",
		Cause:      cause,
	}
}

// NewValidationError reports malformed request input.
func NewValidationError(message string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryUserInput,
		StatusCode: http.StatusBadRequest,
		Code:       "VALIDATION_ERROR",
		Message:    message,
	}
}

// NewUnsupportedProviderError rejects a connect request for an unknown provider.
func NewUnsupportedProviderError(provider string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryUserInput,
		StatusCode: http.StatusBadRequest,
		Code:       "UNSUPPORTED_PROVIDER",
		Message:    fmt.Sprintf("provider not supported: %s", provider),
		Details: map[string]interface{}{
			"provider": provider,
		},
	}
}

// NewNotFoundError reports an operation referencing an unknown resource.
func NewNotFoundError(resource, id string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryNotFound,
		StatusCode: http.StatusNotFound,
		Code:       "NOT_FOUND",
		Message:    fmt.Sprintf("%s not found: %s", resource, id),
		Details: map[string]interface{}{
			"resource": resource,
			"id":       id,
		},
	}
}

// NewSyncInProgressError rejects a second concurrent sync of the same
// integration. Interleaved runs would race on cursor advancement.
func NewSyncInProgressError(integrationID string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryConflict,
		StatusCode: http.StatusConflict,
		Code:       "SYNC_IN_PROGRESS",
		Message:    fmt.Sprintf("a sync is already running for integration %s", integrationID),
		Details: map[string]interface{}{
			"integrationId": integrationID,
		},
	}
}

// NewDatabaseError wraps a storage failure.
func NewDatabaseError(operation string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryDatabase,
		StatusCode: http.StatusInternalServerError,
		Code:       "DATABASE_ERROR",
		Message:    fmt.Sprintf("database error during %s", operation),
		Cause:      cause,
		Details: map[string]interface{}{
			"operation": operation,
		},
	}
}

// NewCacheError wraps a cache failure.
func NewCacheError(operation string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryCache,
		StatusCode: http.StatusInternalServerError,
		Code:       "CACHE_ERROR",
		Message:    fmt.Sprintf("cache error during %s", operation),
		Cause:      cause,
	}
}

// NewInternalError wraps an unexpected failure.
func NewInternalError(message string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategorySystem,
		StatusCode: http.StatusInternalServerError,
		Code:       "INTERNAL_ERROR",
		Message:    message,
		Cause:      cause,
	}
}

// Categorize coerces an arbitrary error into a CategorizedError.
func Categorize(err error) *CategorizedError {
	if err == nil {
		return nil
	}
	var catErr *CategorizedError
	if errors.As(err, &catErr) {
		return catErr
	}
	return NewInternalError("unexpected error", err)
}

// ExchangeStatus returns the upstream HTTP status carried by an exchange API
// error, or 0 when the error is not one.
func ExchangeStatus(err error) int {
	catErr := Categorize(err)
	if catErr == nil || catErr.Code != "EXCHANGE_API_ERROR" {
		return 0
	}
	if status, ok := catErr.Details["status"].(int); ok {
		return status
	}
	return 0
}

// IsRetryable reports whether a retry with backoff is worthwhile. Rate-limit
// and server-side exchange failures are transient; other 4xx responses,
// credential and validation failures are not.
func IsRetryable(err error) bool {
	catErr := Categorize(err)
	if catErr == nil {
		return false
	}
	switch catErr.Category {
	case CategoryExchange:
		if catErr.Code == "EXCHANGE_RESPONSE_ERROR" {
			return false
		}
		status := ExchangeStatus(err)
		return status == http.StatusTooManyRequests || status >= 500 || status == 0
	case CategoryDatabase, CategoryCache:
		return true
	default:
		return false
	}
}

// HTTPStatus returns the HTTP status code an error should surface as.
func HTTPStatus(err error) int {
	if catErr := Categorize(err); catErr != nil {
		return catErr.StatusCode
	}
	return http.StatusInternalServerError
}
