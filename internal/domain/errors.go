package domain

import (
	"errors"
	"fmt"
)

var (
	ErrEndpointNotFound  = errors.New("endpoint not found")
	ErrEndpointDisabled  = errors.New("endpoint disabled")
	ErrModelNotFound     = errors.New("model not found")
	ErrMissingCredential = errors.New("missing credential")
	ErrMissingBaseURL    = errors.New("missing base URL")
	ErrUnexpectedShape   = errors.New("unexpected upstream response shape")
	ErrUpstreamTimeout   = errors.New("upstream timeout")
	ErrInvalidRequest    = errors.New("invalid request")
)

// UpstreamError is a non-2xx reply from a provider. Status is the provider's
// original HTTP status; Message is the best-effort extracted error text.
type UpstreamError struct {
	Status  int
	Message string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream error: status=%d message=%s", e.Status, e.Message)
}
