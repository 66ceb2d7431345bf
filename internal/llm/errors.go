package llm

import (
	"errors"
	"fmt"
)

// ErrorKind classifies why a provider call failed. The answer composer only
// cares that a call failed (it advances the chain either way); the kind is
// kept for logs and for retry decisions.
type ErrorKind string

const (
	ErrAuth        ErrorKind = "auth"
	ErrQuota       ErrorKind = "quota"
	ErrTimeout     ErrorKind = "timeout"
	ErrMalformed   ErrorKind = "malformed_response"
	ErrUnavailable ErrorKind = "unavailable"
)

// ProviderError wraps a failure from a single backend.
type ProviderError struct {
	Provider string
	Kind     ErrorKind
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Provider, e.Kind, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// KindForStatus maps an HTTP status code to an error kind.
func KindForStatus(status int) ErrorKind {
	switch {
	case status == 401 || status == 403:
		return ErrAuth
	case status == 429:
		return ErrQuota
	case status == 408 || status == 504:
		return ErrTimeout
	case status >= 500:
		return ErrUnavailable
	default:
		return ErrMalformed
	}
}

// ErrChainExhausted reports that every provider in the chain failed or
// returned empty output.
var ErrChainExhausted = errors.New("all providers in chain failed")
