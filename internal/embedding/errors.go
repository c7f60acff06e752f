package embedding

import "errors"

var (
	// ErrProviderUnavailable marks transient collaborator failures. Callers
	// may retry; it is never folded into a no-match result.
	ErrProviderUnavailable = errors.New("embedding provider unavailable")
	ErrEmptyInput          = errors.New("embedding input is empty")
	ErrInvalidConfig       = errors.New("invalid embedding configuration")
)
