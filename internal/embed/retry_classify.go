package embed

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"
)

// ErrorKind classifies the origin of an embedding provider failure, used by
// isRetryable to decide whether an attempt should be retried.
type ErrorKind int

const (
	// KindNetwork covers transport-level failures (refused, reset, DNS).
	KindNetwork ErrorKind = iota
	// KindHTTP covers a non-2xx HTTP response from the provider.
	KindHTTP
	// KindOther covers anything not otherwise classified (decode errors, etc).
	KindOther
)

// RetryClassification holds the inputs isRetryable needs to classify a
// provider failure. httpStatus is zero when the failure never reached an
// HTTP response (network errors).
type RetryClassification struct {
	Kind       ErrorKind
	HTTPStatus int
	Message    string
}

// nonRetryableMessages are substrings that indicate the request itself is
// malformed or unauthorized; retrying would reproduce the same failure.
var nonRetryableMessages = []string{
	"invalid request",
	"malformed",
	"unauthorized",
	"forbidden",
	"api key",
}

// retryableMessages are substrings of transient-failure messages that merit
// a retry even when no HTTP status or network errno is available.
var retryableMessages = []string{
	"rate limit",
	"quota exceeded",
	"service unavailable",
	"timeout",
	"connection",
}

// isRetryable implements the §4.9 classification: non-retryable errors
// (HTTP 400/401/403, malformed-request messages) fail immediately;
// retryable errors (network errno, HTTP 429/5xx, or a transient-sounding
// message) are eligible for backoff.
func isRetryable(c RetryClassification) bool {
	msg := strings.ToLower(c.Message)
	for _, m := range nonRetryableMessages {
		if strings.Contains(msg, m) {
			return false
		}
	}

	switch c.HTTPStatus {
	case 400, 401, 403:
		return false
	case 429:
		return true
	}
	if c.HTTPStatus >= 500 && c.HTTPStatus < 600 {
		return true
	}

	if c.Kind == KindNetwork {
		return true
	}

	for _, m := range retryableMessages {
		if strings.Contains(msg, m) {
			return true
		}
	}

	return c.HTTPStatus == 0 && c.Kind == KindOther && msg == ""
}

// classifyError turns a Go error plus an optional HTTP status into a
// RetryClassification. status is 0 when no HTTP response was received.
func classifyError(err error, status int) RetryClassification {
	if err == nil {
		return RetryClassification{Kind: KindHTTP, HTTPStatus: status}
	}
	var netErr net.Error
	if errors.As(err, &netErr) || isConnRefusedOrReset(err) {
		return RetryClassification{Kind: KindNetwork, HTTPStatus: status, Message: err.Error()}
	}
	if status != 0 {
		return RetryClassification{Kind: KindHTTP, HTTPStatus: status, Message: err.Error()}
	}
	return RetryClassification{Kind: KindOther, Message: err.Error()}
}

func isConnRefusedOrReset(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "no such host") ||
		strings.Contains(msg, "i/o timeout")
}

// RequestBackoff is the spec-exact exponential backoff policy for
// per-request embedding retries (distinct from DownloadWithRetry's model
// download policy): base 1s, doubling per attempt, capped at 10s.
type RequestBackoff struct {
	BaseDelay time.Duration
	MaxDelay  time.Duration
	MaxRetries int
}

// DefaultRequestBackoff returns the §4.9 defaults: 1s base, 10s cap, 3 attempts in total.
func DefaultRequestBackoff() RequestBackoff {
	return RequestBackoff{BaseDelay: time.Second, MaxDelay: 10 * time.Second, MaxRetries: 3}
}

func (b RequestBackoff) delay(attempt int) time.Duration {
	d := b.BaseDelay
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= b.MaxDelay {
			return b.MaxDelay
		}
	}
	return d
}

// withRetry runs fn up to b.MaxRetries times, classifying each failure via
// classify and stopping immediately on a non-retryable one.
func withRetry(ctx context.Context, b RequestBackoff, fn func(ctx context.Context) (int, error), classify func(status int, err error) RetryClassification) error {
	var lastErr error
	for attempt := 0; attempt < b.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(b.delay(attempt - 1)):
			}
		}

		status, err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if !isRetryable(classify(status, err)) {
			return err
		}
	}
	return lastErr
}
