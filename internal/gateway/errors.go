package gateway

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrModelNotFound means no active model configuration matched the
	// requested reference.
	ErrModelNotFound = errors.New("no active model configuration matches the request")

	// ErrInsufficientCredits means the user has no eligible entitlement able
	// to fund the call. Checked pre-flight so unfunded calls never reach the
	// provider.
	ErrInsufficientCredits = errors.New("insufficient call credits")

	// ErrEmptyResponse means the provider returned a well-formed but
	// content-free response. Never billed.
	ErrEmptyResponse = errors.New("provider returned an empty response")
)

// ProviderError carries a structured error body returned by the upstream
// provider, preserving the vendor's own code and HTTP status.
type ProviderError struct {
	Code    string
	Status  int
	Message string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider error (status %d, code %s): %s", e.Status, e.Code, e.Message)
}

// UpstreamError means the call failed after exhausting retries or hitting a
// non-retryable failure. Raw HTTP and library errors never cross the
// executor boundary; they are wrapped here.
type UpstreamError struct {
	Message  string
	Code     string
	Attempts int
	Err      error
}

func (e *UpstreamError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("upstream call failed after %d attempt(s): %s: %v", e.Attempts, e.Message, e.Err)
	}
	return fmt.Sprintf("upstream call failed after %d attempt(s): %s", e.Attempts, e.Message)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// ErrorType classifies an error for the client-facing error_type field so
// the browser can render a message without parsing free text.
func ErrorType(err error) string {
	switch {
	case errors.Is(err, ErrInsufficientCredits):
		return "insufficient_credits"
	case errors.Is(err, ErrModelNotFound):
		return "model_not_found"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout_error"
	}

	var pe *ProviderError
	if errors.As(err, &pe) {
		return "api_error"
	}

	var ue *UpstreamError
	if errors.As(err, &ue) {
		if ue.Code == "timeout" || errors.Is(ue.Err, context.DeadlineExceeded) {
			return "timeout_error"
		}
		if ue.Code == "connection_error" {
			return "connection_error"
		}
		return "service_unavailable"
	}

	return "api_error"
}

// ErrorCode extracts a provider/vendor error code when one is known.
func ErrorCode(err error) string {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Code
	}
	var ue *UpstreamError
	if errors.As(err, &ue) {
		return ue.Code
	}
	return ""
}
