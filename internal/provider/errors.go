package provider

import "errors"

var (
	// ErrProviderUnavailable marks a vendor that could not be constructed.
	// The registry recovers from it by falling back to the simulation provider.
	ErrProviderUnavailable = errors.New("provider unavailable")
	ErrMissingCredential   = errors.New("provider credential missing")
	ErrUnsupportedTool     = errors.New("tool not supported by provider")

	// ErrProviderFailed is a vendor call that failed or reported failure.
	ErrProviderFailed = errors.New("provider reported failure")
	// ErrProviderUnreachable is a transport failure; the call may be retried.
	ErrProviderUnreachable = errors.New("provider unreachable")
	ErrInvalidResponse     = errors.New("provider returned invalid response")
	// ErrJobNotFound is returned by GetStatus for ids the provider does not know.
	ErrJobNotFound = errors.New("provider job not found")
)
