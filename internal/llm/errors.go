package llm

import (
	"errors"
	"fmt"
)

type ErrUnsupportedProvider struct {
	Provider string
}

func (e ErrUnsupportedProvider) Error() string {
	return fmt.Sprintf("unsupported LLM provider: %s", e.Provider)
}

type HTTPError struct {
	StatusCode int
	Status     string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("LLM request failed: %s", e.Status)
}

type ErrUnknownModelPricing struct {
	Model string
}

func (e ErrUnknownModelPricing) Error() string {
	return fmt.Sprintf("no pricing configured for model: %s", e.Model)
}

// IsRetryable reports whether a provider failure is worth retrying: rate
// limits, server-side errors, and transport failures. Client errors (bad
// key, unknown model) are permanent.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode == 429 || httpErr.StatusCode >= 500
	}
	var unsupported ErrUnsupportedProvider
	if errors.As(err, &unsupported) {
		return false
	}
	var unknownPricing ErrUnknownModelPricing
	if errors.As(err, &unknownPricing) {
		return false
	}
	if errors.Is(err, ErrMissingCredentials) {
		return false
	}
	// Transport-level failures (timeouts, refused connections) arrive as
	// url.Error values from the HTTP client.
	return true
}
