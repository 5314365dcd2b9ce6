package llm

import (
	"context"
	"errors"
	"net"

	openai "github.com/openai/openai-go"
)

// Sentinel errors for LLM operations
var (
	// ErrConnectionFailed indicates the LLM connection failed
	ErrConnectionFailed = errors.New("LLM connection failed")

	// ErrRequestFailed indicates the LLM request failed
	ErrRequestFailed = errors.New("LLM request failed")

	// ErrAllProvidersFailed indicates primary and fallback providers both failed
	ErrAllProvidersFailed = errors.New("all LLM providers failed")
)

// IsRetryable reports whether a completion error is worth retrying on the
// same provider. Rate limits, server errors and transport failures are
// transient. Auth and validation errors are not.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == 429:
			return true
		case apiErr.StatusCode >= 500:
			return true
		default:
			return false
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	return false
}
