package provider

import "errors"

// Sentinel errors for provider operations.
var (
	// ErrRateLimit indicates the provider returned a rate limit response.
	ErrRateLimit = errors.New("provider rate limited")

	// ErrContextLength indicates the request exceeded the model's context window.
	ErrContextLength = errors.New("context length exceeded")

	// ErrProviderDown indicates the provider is temporarily unavailable,
	// including while the circuit breaker is open.
	ErrProviderDown = errors.New("provider unavailable")

	// ErrAuthentication indicates the provider rejected the credentials.
	ErrAuthentication = errors.New("provider authentication failed")

	// ErrInvalidResponse indicates the provider answered with something
	// that could not be interpreted.
	ErrInvalidResponse = errors.New("invalid provider response")
)

// IsRetryable reports whether the error is transient: the same request
// may succeed after a delay. Only these errors count against the breaker.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrRateLimit) || errors.Is(err, ErrProviderDown)
}
