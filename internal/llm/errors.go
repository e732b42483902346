package llm

import (
	"errors"
	"fmt"
)

// Sentinel errors for response-shape failures.
var (
	// ErrEmptyResponse indicates a backend replied without usable text.
	ErrEmptyResponse = errors.New("backend returned empty response")

	// ErrTruncatedPayload indicates a structured response that opens a JSON
	// bracket but never closes it. Treated like a transport failure by the
	// router so the fallback backend gets a chance at a complete payload.
	ErrTruncatedPayload = errors.New("structured response appears truncated")
)

// TransportError wraps network-level and HTTP-level failures from a backend.
type TransportError struct {
	Backend string
	Err     error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: transport failure: %v", e.Backend, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// AuthError indicates a backend rejected our credentials, including the case
// where every configured key has been exhausted.
type AuthError struct {
	Backend string
	Status  int
	Err     error
}

func (e *AuthError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: authentication rejected (status %d)", e.Backend, e.Status)
	}
	return fmt.Sprintf("%s: authentication failed: %v", e.Backend, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// AllProvidersFailedError is returned by the router when the fallback backend
// also fails. Both underlying failures are preserved for diagnostics.
type AllProvidersFailedError struct {
	PrimaryErr   error
	SecondaryErr error
}

func (e *AllProvidersFailedError) Error() string {
	return fmt.Sprintf("all providers failed: primary: %v; secondary: %v", e.PrimaryErr, e.SecondaryErr)
}

func (e *AllProvidersFailedError) Unwrap() error { return e.SecondaryErr }
