package reliability

import (
	"errors"
	"time"

	"github.com/antoniostano/chatstore/internal/store"
)

// IsRetryable reports whether a storage error is transient and worth one
// more attempt. Not-found, unsupported-capability and validation failures
// are terminal outcomes, not transport faults.
func IsRetryable(err error) bool {
	return errors.Is(err, store.ErrUnavailable)
}

// IsRetryableHTTPStatus classifies retryable HTTP status codes for clients
// of the service surface.
func IsRetryableHTTPStatus(code int) bool {
	switch code {
	case 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

// ExponentialBackoff computes a deterministic capped backoff duration.
func ExponentialBackoff(attempt int, base, cap time.Duration) time.Duration {
	if attempt <= 0 {
		return base
	}
	d := base
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= cap {
			return cap
		}
	}
	return d
}
