package billing

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConfigured is returned when no provider API key is set.
	// Callers treat this as "skip the invoicing step", not as a failure.
	ErrNotConfigured = errors.New("billing: provider not configured")

	// ErrInvalidAPIKey is returned when the provider API key is invalid or missing.
	ErrInvalidAPIKey = errors.New("billing: invalid or missing API key")

	// ErrInvoiceNotFound is returned when an invoice does not exist.
	ErrInvoiceNotFound = errors.New("billing: invoice not found")

	// ErrInvalidWebhookSignature is returned when webhook signature verification fails.
	ErrInvalidWebhookSignature = errors.New("billing: invalid webhook signature")

	// ErrIdempotencyConflict is returned when an idempotency key matches a different request.
	ErrIdempotencyConflict = errors.New("billing: idempotency key conflict")
)

// ProviderError wraps a provider API error with additional context.
type ProviderError struct {
	Message       string // Human-readable error message
	Code          string // Provider error code (e.g., "resource_missing")
	RequestID     string // Provider request ID for debugging
	OriginalError error  // Original error from the provider SDK
}

func (e *ProviderError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("billing provider: %s (code: %s)", e.Message, e.Code)
	}
	return fmt.Sprintf("billing provider: %s", e.Message)
}

func (e *ProviderError) Unwrap() error {
	return e.OriginalError
}

// IsTemporary returns true if the error is likely transient and retryable.
func (e *ProviderError) IsTemporary() bool {
	return e.Code == "rate_limit" || e.Code == "api_connection_error"
}
