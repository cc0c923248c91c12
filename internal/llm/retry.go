package llm

import (
	"strings"
	"time"
)

// IsRetryableError classifies transient transport failures (rate
// limits, 5xx, timeouts, connection resets) as retryable, grounded on
// the teacher's AnthropicProvider.isRetryableError string-matching
// approach (the SDKs do not expose a uniform typed error here).
// Exported so each provider package can reuse the same classification.
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "rate_limit"),
		strings.Contains(msg, "429"),
		strings.Contains(msg, "too many requests"),
		strings.Contains(msg, "500"),
		strings.Contains(msg, "502"),
		strings.Contains(msg, "503"),
		strings.Contains(msg, "504"),
		strings.Contains(msg, "internal server error"),
		strings.Contains(msg, "bad gateway"),
		strings.Contains(msg, "service unavailable"),
		strings.Contains(msg, "gateway timeout"),
		strings.Contains(msg, "timeout"),
		strings.Contains(msg, "deadline exceeded"),
		strings.Contains(msg, "connection reset"),
		strings.Contains(msg, "connection refused"),
		strings.Contains(msg, "no such host"):
		return true
	default:
		return false
	}
}

// backoffDelay returns the linear retry delay for attempt n (1-based),
// matching RESTClient's backoff shape used elsewhere in the codebase
// for consistency across outbound integrations.
func backoffDelay(base time.Duration, attempt int) time.Duration {
	return base * time.Duration(attempt)
}
